package discord

import (
	"errors"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"bigbrother/internal/transport"
)

// mapError classifies a discordgo error into the transport taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) {
		if rest.Message != nil {
			switch rest.Message.Code {
			case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeMissingAccess:
				return &transport.SendError{Kind: transport.ErrChannelNotFound, Err: err}
			case discordgo.ErrCodeMissingPermissions:
				return &transport.SendError{Kind: transport.ErrPermission, Err: err}
			}
		}
		if rest.Response != nil {
			switch rest.Response.StatusCode {
			case http.StatusNotFound:
				return &transport.SendError{Kind: transport.ErrChannelNotFound, Err: err}
			case http.StatusForbidden:
				return &transport.SendError{Kind: transport.ErrPermission, Err: err}
			}
		}
	}
	if errors.Is(err, discordgo.ErrStateNotFound) {
		return &transport.SendError{Kind: transport.ErrChannelNotFound, Err: err}
	}
	return &transport.SendError{Kind: transport.ErrTransport, Err: err}
}
