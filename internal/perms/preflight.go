package perms

import (
	"context"
	"fmt"

	"bigbrother/internal/transport"
)

// Result of a preflight. Missing lists required capabilities in table order.
type Result struct {
	OK      bool
	Missing []Capability
}

// Preflight computes the bot's effective capabilities. It has no side effects.
type Preflight struct {
	Source transport.PermissionSource
}

// Check evaluates required on channelID (channel-scoped) or guildID (guild-scoped).
func (p Preflight) Check(ctx context.Context, guildID, channelID string, required []Capability) (Result, error) {
	var chanBits, guildBits transport.PermissionBits
	var chanLoaded, guildLoaded bool

	res := Result{OK: true}
	for _, c := range required {
		in, ok := Lookup(c)
		if !ok {
			return Result{}, fmt.Errorf("unknown capability %q", c)
		}
		var bits transport.PermissionBits
		switch in.Scope {
		case ScopeChannel:
			if !chanLoaded {
				b, err := p.Source.ChannelPermissions(ctx, guildID, channelID)
				if err != nil {
					return Result{}, fmt.Errorf("channel permissions: %w", err)
				}
				chanBits, chanLoaded = b, true
			}
			bits = chanBits
		case ScopeGuild:
			if !guildLoaded {
				b, err := p.Source.GuildPermissions(ctx, guildID)
				if err != nil {
					return Result{}, fmt.Errorf("guild permissions: %w", err)
				}
				guildBits, guildLoaded = b, true
			}
			bits = guildBits
		}
		if !Granted(bits, c) {
			res.OK = false
			res.Missing = append(res.Missing, c)
		}
	}
	return res, nil
}

// Diagnose is the help-command view: required channel gaps plus optional guild gaps.
func (p Preflight) Diagnose(ctx context.Context, guildID, channelID string) (required, optional Result, err error) {
	required, err = p.Check(ctx, guildID, channelID, Required)
	if err != nil {
		return Result{}, Result{}, err
	}
	optional, err = p.Check(ctx, guildID, channelID, Optional)
	if err != nil {
		return Result{}, Result{}, err
	}
	return required, optional, nil
}
