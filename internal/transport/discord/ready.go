package discord

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/discordgo"

	logx "bigbrother/pkg/logx"
)

type readyReport struct {
	Version string `json:"version"`
	Guilds  int    `json:"guilds"`
	Users   int    `json:"users"`
}

func (a *Adapter) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	if r == nil || r.User == nil {
		return
	}
	a.selfID.Store(r.User.ID)
	a.log.Info("gateway ready", logx.String("user", r.User.Username), logx.Int("guilds", len(r.Guilds)))

	if err := s.UpdateListeningStatus("/help | v" + a.cfg.Version); err != nil {
		a.log.Warn("set presence failed", logx.Err(err))
	}
	if !a.cfg.ReadyReport {
		return
	}
	st := a.Stats()
	text, err := readyMessage(readyReport{Version: a.cfg.Version, Guilds: max(st.Guilds, len(r.Guilds)), Users: st.Users})
	if err != nil {
		return
	}
	if err := a.messageOwner(a.baseCtx(), text); err != nil {
		a.log.Warn("ready report failed", logx.Err(err))
	}
}

func readyMessage(r readyReport) (string, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return "# Big Brother Bot Ready Event\n```json\n" + string(b) + "\n```", nil
}

// messageOwner DMs the application owner (or the team owner).
func (a *Adapter) messageOwner(ctx context.Context, text string) error {
	app, err := a.s.Application("@me")
	if err != nil {
		return mapError(err)
	}
	ownerID := ""
	switch {
	case app.Team != nil && app.Team.OwnerID != "":
		ownerID = app.Team.OwnerID
	case app.Owner != nil:
		ownerID = app.Owner.ID
	}
	if ownerID == "" {
		return fmt.Errorf("discord: application has no owner")
	}
	dm, err := a.s.UserChannelCreate(ownerID, discordgo.WithContext(ctx))
	if err != nil {
		return mapError(err)
	}
	_, err = a.s.ChannelMessageSend(dm.ID, text, discordgo.WithContext(ctx))
	return mapError(err)
}
