package discord

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"

	"bigbrother/internal/transport"
)

var errNoIdentity = errors.New("discord: bot identity unknown before READY")

// ChannelPermissions implements transport.PermissionSource for the bot user.
func (a *Adapter) ChannelPermissions(ctx context.Context, guildID, channelID string) (transport.PermissionBits, error) {
	self := a.Identity().UserID
	if self == "" {
		return 0, &transport.SendError{Kind: transport.ErrTransport, Err: errNoIdentity}
	}
	if st := a.s.State; st != nil {
		if p, err := st.UserChannelPermissions(self, channelID); err == nil {
			return transport.PermissionBits(p), nil
		}
	}
	g, m, err := a.guildAndSelf(ctx, guildID, self)
	if err != nil {
		return 0, err
	}
	c, err := a.lookupChannel(ctx, channelID)
	if err != nil {
		return 0, err
	}
	return transport.PermissionBits(channelPermissions(g, m, c.PermissionOverwrites)), nil
}

// GuildPermissions returns the bot's guild-wide permissions.
func (a *Adapter) GuildPermissions(ctx context.Context, guildID string) (transport.PermissionBits, error) {
	self := a.Identity().UserID
	if self == "" {
		return 0, &transport.SendError{Kind: transport.ErrTransport, Err: errNoIdentity}
	}
	g, m, err := a.guildAndSelf(ctx, guildID, self)
	if err != nil {
		return 0, err
	}
	return transport.PermissionBits(basePermissions(g, m)), nil
}

func (a *Adapter) guildAndSelf(ctx context.Context, guildID, self string) (*discordgo.Guild, *discordgo.Member, error) {
	var g *discordgo.Guild
	var m *discordgo.Member
	if st := a.s.State; st != nil {
		g, _ = st.Guild(guildID)
		m, _ = st.Member(guildID, self)
	}
	var err error
	if g == nil {
		if g, err = a.s.Guild(guildID, discordgo.WithContext(ctx)); err != nil {
			return nil, nil, mapError(err)
		}
	}
	if m == nil {
		if m, err = a.s.GuildMember(guildID, self, discordgo.WithContext(ctx)); err != nil {
			return nil, nil, mapError(err)
		}
	}
	return g, m, nil
}

// basePermissions applies @everyone and the member's roles.
func basePermissions(g *discordgo.Guild, m *discordgo.Member) int64 {
	if m.User != nil && m.User.ID == g.OwnerID {
		return discordgo.PermissionAll
	}
	var perms int64
	for _, r := range g.Roles {
		if r.ID == g.ID {
			perms |= r.Permissions
			break
		}
	}
	for _, r := range g.Roles {
		for _, id := range m.Roles {
			if r.ID == id {
				perms |= r.Permissions
				break
			}
		}
	}
	if perms&discordgo.PermissionAdministrator == discordgo.PermissionAdministrator {
		return discordgo.PermissionAll
	}
	return perms
}

// channelPermissions applies overwrites in Discord's order: @everyone, roles, member.
func channelPermissions(g *discordgo.Guild, m *discordgo.Member, overwrites []*discordgo.PermissionOverwrite) int64 {
	perms := basePermissions(g, m)
	if perms == discordgo.PermissionAll {
		return perms
	}
	for _, o := range overwrites {
		if o.Type == discordgo.PermissionOverwriteTypeRole && o.ID == g.ID {
			perms &^= o.Deny
			perms |= o.Allow
			break
		}
	}
	var deny, allow int64
	for _, o := range overwrites {
		if o.Type != discordgo.PermissionOverwriteTypeRole {
			continue
		}
		for _, id := range m.Roles {
			if o.ID == id {
				deny |= o.Deny
				allow |= o.Allow
				break
			}
		}
	}
	perms &^= deny
	perms |= allow
	if m.User != nil {
		for _, o := range overwrites {
			if o.Type == discordgo.PermissionOverwriteTypeMember && o.ID == m.User.ID {
				perms &^= o.Deny
				perms |= o.Allow
				break
			}
		}
	}
	return perms
}
