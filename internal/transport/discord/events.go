package discord

import (
	"context"
	"encoding/json"

	"github.com/bwmarrin/discordgo"

	logx "bigbrother/pkg/logx"
)

func (a *Adapter) handleRaw(s *discordgo.Session, e *discordgo.Event) {
	if e == nil || e.Type == "" || skipped[e.Type] || a.onEvent == nil {
		return
	}
	guildID := guildIDOf(e.Type, e.RawData)
	if guildID == "" {
		return
	}
	if a.ownUpdate(e) {
		return
	}
	label := EventLabel(e.Type)
	args := a.argsOf(e)
	a.log.Trace("dispatch", logx.String("type", e.Type), logx.String("guild_id", guildID))
	a.onEvent(a.baseCtx(), label, a.guild(guildID), args)
}

// ownUpdate reports edits of the bot's own messages, which would otherwise
// feed log output back into the log channel.
func (a *Adapter) ownUpdate(e *discordgo.Event) bool {
	mu, ok := e.Struct.(*discordgo.MessageUpdate)
	if !ok || mu.Message == nil || mu.Author == nil {
		return false
	}
	return mu.Author.ID == a.Identity().UserID
}

// argsOf builds the handler arguments for a dispatch. Messages that the state
// no longer holds become partial members.
func (a *Adapter) argsOf(e *discordgo.Event) []any {
	switch v := e.Struct.(type) {
	case *discordgo.MessageDelete:
		if v.Message == nil {
			break
		}
		if v.BeforeDelete != nil {
			return []any{v.BeforeDelete}
		}
		return []any{a.partialMessage(v.GuildID, v.ChannelID, v.ID)}
	case *discordgo.MessageUpdate:
		if v.Message == nil {
			break
		}
		var before any = a.partialMessage(v.GuildID, v.ChannelID, v.ID)
		if v.BeforeUpdate != nil {
			before = v.BeforeUpdate
		}
		return []any{before, v.Message}
	case *discordgo.MessageReactionAdd:
		if v.MessageReaction == nil {
			break
		}
		return []any{v.MessageReaction, a.partialMessage(v.GuildID, v.ChannelID, v.MessageID)}
	case *discordgo.MessageReactionRemove:
		if v.MessageReaction == nil {
			break
		}
		return []any{v.MessageReaction, a.partialMessage(v.GuildID, v.ChannelID, v.MessageID)}
	case nil:
		return []any{json.RawMessage(e.RawData)}
	default:
		return []any{v}
	}
	return []any{json.RawMessage(e.RawData)}
}

func (a *Adapter) partialMessage(guildID, channelID, messageID string) *partialMessage {
	return &partialMessage{s: a.s, guildID: guildID, channelID: channelID, messageID: messageID}
}

// partialMessage is a message known only by id.
type partialMessage struct {
	s                             *discordgo.Session
	guildID, channelID, messageID string
}

func (p *partialMessage) Partial() bool { return true }

func (p *partialMessage) Fetch(ctx context.Context) (any, error) {
	if p.s.State != nil {
		if m, err := p.s.State.Message(p.channelID, p.messageID); err == nil {
			return m, nil
		}
	}
	m, err := p.s.ChannelMessage(p.channelID, p.messageID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}
	return m, nil
}

func (p *partialMessage) Stub() any {
	return map[string]any{
		"id":         p.messageID,
		"channel_id": p.channelID,
		"guild_id":   p.guildID,
		"partial":    true,
	}
}
