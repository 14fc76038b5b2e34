package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"bigbrother/internal/transport"
	logx "bigbrother/pkg/logx"
)

func (a *Adapter) handleInteraction(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	if ic == nil || ic.Interaction == nil || ic.Type != discordgo.InteractionApplicationCommand || a.onInteraction == nil {
		return
	}
	in := a.toInteraction(ic.Interaction)
	reply, ok := a.onInteraction(a.baseCtx(), in)
	if !ok {
		return
	}
	if err := a.respond(ic.Interaction, reply); err != nil {
		a.log.Warn("interaction reply failed", logx.String("cmd", in.Command), logx.Err(err))
	}
}

func (a *Adapter) toInteraction(i *discordgo.Interaction) *transport.Interaction {
	data := i.ApplicationCommandData()
	in := &transport.Interaction{
		ID:        i.ID,
		Command:   data.Name,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		Options:   map[string]string{},
		CreatedAt: time.Now(),
	}
	if t, err := discordgo.SnowflakeTimestamp(i.ID); err == nil {
		in.CreatedAt = t
	}
	if i.GuildID != "" {
		in.GuildName = a.guild(i.GuildID).Name
	}
	switch {
	case i.Member != nil:
		in.MemberPermissions = transport.PermissionBits(i.Member.Permissions)
		if i.Member.User != nil {
			in.UserID = i.Member.User.ID
		}
	case i.User != nil:
		in.UserID = i.User.ID
	}
	for _, o := range data.Options {
		if o == nil {
			continue
		}
		in.Options[o.Name] = fmt.Sprint(o.Value)
	}
	return in
}

func (a *Adapter) respond(i *discordgo.Interaction, r transport.Reply) error {
	data := &discordgo.InteractionResponseData{
		Content:         r.Content,
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}},
	}
	if r.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return a.s.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
}

// toCommands converts specs to discordgo application commands.
func toCommands(specs []transport.CommandSpec) []*discordgo.ApplicationCommand {
	out := make([]*discordgo.ApplicationCommand, 0, len(specs))
	for _, sp := range specs {
		cmd := &discordgo.ApplicationCommand{Name: sp.Name, Description: sp.Description}
		if sp.DefaultMemberPermissions != 0 {
			p := int64(sp.DefaultMemberPermissions)
			cmd.DefaultMemberPermissions = &p
		}
		for _, o := range sp.Options {
			opt := &discordgo.ApplicationCommandOption{
				Name:        o.Name,
				Description: o.Description,
				Required:    o.Required,
			}
			switch o.Kind {
			case transport.OptionChannel:
				opt.Type = discordgo.ApplicationCommandOptionChannel
				opt.ChannelTypes = []discordgo.ChannelType{discordgo.ChannelTypeGuildText}
			default:
				opt.Type = discordgo.ApplicationCommandOptionString
			}
			cmd.Options = append(cmd.Options, opt)
		}
		out = append(out, cmd)
	}
	return out
}

// RegisterCommands bulk-overwrites the application's commands, globally or
// on guildID when it is set. No gateway connection is needed.
func (a *Adapter) RegisterCommands(ctx context.Context, guildID string, specs []transport.CommandSpec) (int, error) {
	if a.cfg.ApplicationID == "" {
		return 0, fmt.Errorf("discord: application id is required to register commands")
	}
	got, err := a.s.ApplicationCommandBulkOverwrite(a.cfg.ApplicationID, guildID, toCommands(specs), discordgo.WithContext(ctx))
	if err != nil {
		return 0, mapError(err)
	}
	return len(got), nil
}
