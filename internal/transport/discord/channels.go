package discord

import (
	"bytes"
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"

	"bigbrother/internal/transport"
)

func toChannel(c *discordgo.Channel) transport.Channel {
	return transport.Channel{ID: c.ID, GuildID: c.GuildID, Name: c.Name}
}

func (a *Adapter) lookupChannel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	if st := a.s.State; st != nil {
		if c, err := st.Channel(channelID); err == nil {
			return c, nil
		}
	}
	c, err := a.s.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}
	return c, nil
}

// Channel implements transport.ChannelDirectory.
func (a *Adapter) Channel(ctx context.Context, guildID, channelID string) (transport.Channel, error) {
	c, err := a.lookupChannel(ctx, channelID)
	if err != nil {
		return transport.Channel{}, err
	}
	if c.GuildID != guildID {
		return transport.Channel{}, &transport.SendError{Kind: transport.ErrChannelNotFound, Err: errors.New("channel belongs to another guild")}
	}
	return toChannel(c), nil
}

func (a *Adapter) FindChannelByName(ctx context.Context, guildID, name string) (transport.Channel, bool, error) {
	chans, err := a.guildChannels(ctx, guildID)
	if err != nil {
		return transport.Channel{}, false, err
	}
	for _, c := range chans {
		if c.Type == discordgo.ChannelTypeGuildText && c.Name == name {
			return toChannel(c), true, nil
		}
	}
	return transport.Channel{}, false, nil
}

func (a *Adapter) guildChannels(ctx context.Context, guildID string) ([]*discordgo.Channel, error) {
	if st := a.s.State; st != nil {
		if g, err := st.Guild(guildID); err == nil {
			st.RLock()
			out := append([]*discordgo.Channel(nil), g.Channels...)
			st.RUnlock()
			return out, nil
		}
	}
	chans, err := a.s.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}
	return chans, nil
}

// CreatePrivateChannel creates a text channel hidden from @everyone and
// visible to spec.ViewerIDs.
func (a *Adapter) CreatePrivateChannel(ctx context.Context, guildID string, spec transport.ChannelSpec) (transport.Channel, error) {
	overwrites := []*discordgo.PermissionOverwrite{{
		ID:   guildID, // the @everyone role shares the guild id
		Type: discordgo.PermissionOverwriteTypeRole,
		Deny: discordgo.PermissionViewChannel,
	}}
	for _, id := range spec.ViewerIDs {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    id,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionAttachFiles,
		})
	}
	opts := []discordgo.RequestOption{discordgo.WithContext(ctx)}
	if spec.Reason != "" {
		opts = append(opts, discordgo.WithAuditLogReason(spec.Reason))
	}
	c, err := a.s.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:                 spec.Name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                spec.Topic,
		PermissionOverwrites: overwrites,
	}, opts...)
	if err != nil {
		return transport.Channel{}, mapError(err)
	}
	return toChannel(c), nil
}

// Send implements transport.Sender. Mentions in relayed payloads never ping.
func (a *Adapter) Send(ctx context.Context, channelID string, msg transport.OutboundMessage) (transport.MessageRef, error) {
	data := &discordgo.MessageSend{
		Content:         msg.Text,
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}},
	}
	if at := msg.Attachment; at != nil {
		data.Files = []*discordgo.File{{
			Name:        at.Name,
			ContentType: at.ContentType,
			Reader:      bytes.NewReader(at.Data),
		}}
	}
	m, err := a.s.ChannelMessageSendComplex(channelID, data, discordgo.WithContext(ctx))
	if err != nil {
		return transport.MessageRef{}, mapError(err)
	}
	return transport.MessageRef{ChannelID: m.ChannelID, MessageID: m.ID}, nil
}
