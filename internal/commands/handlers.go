package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"bigbrother/internal/perms"
	"bigbrother/internal/stats"
	"bigbrother/internal/transport"
)

// Provisioning policies understood by setup.
const (
	PolicyAuto   = "auto"
	PolicyManual = "manual"
)

// Resolver is implemented by *channels.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, guildID string) (transport.Channel, bool, error)
}

// Provisioner is implemented by *channels.Provisioner.
type Provisioner interface {
	Ensure(ctx context.Context, guild transport.Guild) (transport.Channel, bool, error)
	Adopt(ctx context.Context, guildID string, ch transport.Channel) error
}

// Preflighter is implemented by perms.Preflight.
type Preflighter interface {
	Check(ctx context.Context, guildID, channelID string, required []perms.Capability) (perms.Result, error)
	Diagnose(ctx context.Context, guildID, channelID string) (required, optional perms.Result, err error)
}

// Policy is the hot-reloadable part of setup.
type Policy struct {
	Provisioning string
	ChannelName  string
}

type Handlers struct {
	Resolver    Resolver
	Provisioner Provisioner
	Directory   transport.ChannelDirectory
	Preflight   Preflighter
	Gateway     transport.Gateway
	Stats       stats.Counters
	// Timeout bounds each handler; 0 means none.
	Timeout time.Duration

	policy atomic.Pointer[Policy]
	now    func() time.Time
}

func (h *Handlers) SetPolicy(p Policy) { h.policy.Store(&p) }

func (h *Handlers) currentPolicy() Policy {
	if p := h.policy.Load(); p != nil {
		return *p
	}
	return Policy{Provisioning: PolicyAuto, ChannelName: "bb-logs"}
}

func (h *Handlers) clock() time.Time {
	if h.now != nil {
		return h.now()
	}
	return time.Now()
}

// Commands returns the four commands in registration order.
func (h *Handlers) Commands() []Command {
	admin := perms.BitAdministrator
	return []Command{
		{Spec: transport.CommandSpec{Name: "help", Description: "Shows the help menu for this bot.", DefaultMemberPermissions: admin}, Timeout: h.Timeout, Handle: h.Help},
		{Spec: transport.CommandSpec{Name: "ping", Description: "Replies with Pong!"}, Timeout: h.Timeout, Handle: h.Ping},
		{Spec: transport.CommandSpec{
			Name:                     "setup",
			Description:              "Sets up the bot for this server.",
			DefaultMemberPermissions: admin,
			Options: []transport.CommandOption{{
				Kind:        transport.OptionChannel,
				Name:        "channel",
				Description: "The channel to use for logging. If not provided, one will be created.",
			}},
		}, Timeout: h.Timeout, Handle: h.Setup},
		{Spec: transport.CommandSpec{Name: "stats", Description: "Shows some stats about the bot"}, Timeout: h.Timeout, Handle: h.Stat},
	}
}

func ephemeral(format string, args ...any) transport.Reply {
	return transport.Reply{Content: fmt.Sprintf(format, args...), Ephemeral: true}
}

// Setup maps (and under the auto policy creates) the guild's logging channel.
func (h *Handlers) Setup(ctx context.Context, in *transport.Interaction) (transport.Reply, error) {
	if !in.MemberPermissions.Has(perms.BitAdministrator) {
		return ephemeral("You must be an administrator to use this command!"), nil
	}
	if in.GuildID == "" {
		return ephemeral("This command can only be used in a server."), nil
	}

	existing, ok, err := h.Resolver.Resolve(ctx, in.GuildID)
	if err != nil {
		return transport.Reply{}, err
	}
	if ok {
		return ephemeral("Gateway event logging is already enabled for this server. The logs channel is %s.", existing.Mention()), nil
	}

	if id := in.Options["channel"]; id != "" {
		ch, err := h.Directory.Channel(ctx, in.GuildID, id)
		if errors.Is(err, transport.ErrChannelNotFound) {
			return ephemeral("I can't see that channel. Please give me the `View Channel` permission in it and try again."), nil
		}
		if err != nil {
			return transport.Reply{}, err
		}
		return h.adopted(ctx, in.GuildID, ch)
	}

	pol := h.currentPolicy()
	if pol.Provisioning == PolicyManual {
		ch, found, err := h.Directory.FindChannelByName(ctx, in.GuildID, pol.ChannelName)
		if err != nil {
			return transport.Reply{}, err
		}
		if !found {
			return ephemeral("Please create a channel named `%s` and try this command again.", pol.ChannelName), nil
		}
		return h.adopted(ctx, in.GuildID, ch)
	}

	res, err := h.Preflight.Check(ctx, in.GuildID, "", []perms.Capability{perms.ManageChannels})
	if err != nil {
		return transport.Reply{}, err
	}
	if !res.OK {
		return ephemeral("I don't have permission to create a channel! Please give me the `Manage Channels` permission and try again or provide a channel."), nil
	}
	ch, _, err := h.Provisioner.Ensure(ctx, transport.Guild{ID: in.GuildID, Name: in.GuildName})
	if errors.Is(err, transport.ErrPermission) {
		return ephemeral("I don't have permission to create a channel! Please give me the `Manage Channels` permission and try again or provide a channel."), nil
	}
	if err != nil {
		return transport.Reply{}, err
	}
	return enabled(ch), nil
}

func (h *Handlers) adopted(ctx context.Context, guildID string, ch transport.Channel) (transport.Reply, error) {
	if err := h.Provisioner.Adopt(ctx, guildID, ch); err != nil {
		return transport.Reply{}, err
	}
	return enabled(ch), nil
}

func enabled(ch transport.Channel) transport.Reply {
	return ephemeral("Gateway event logging has been enabled for this server. The logs channel is %s.", ch.Mention())
}

// Help diagnoses the guild's logging setup.
func (h *Handlers) Help(ctx context.Context, in *transport.Interaction) (transport.Reply, error) {
	if in.GuildID == "" {
		return ephemeral("This command can only be used in a server."), nil
	}
	ch, ok, err := h.Resolver.Resolve(ctx, in.GuildID)
	if err != nil {
		return transport.Reply{}, err
	}
	if !ok {
		return ephemeral("Gateway event logging is not set up for this server. Run `/setup` to choose or create a logs channel."), nil
	}

	required, optional, err := h.Preflight.Diagnose(ctx, in.GuildID, ch.ID)
	if err != nil {
		return transport.Reply{}, err
	}
	if !required.OK {
		return ephemeral("Please give me the following permissions in the %s channel: %s",
			ch.Mention(), quoted(perms.Labels(required.Missing))), nil
	}
	if !optional.OK {
		parts := make([]string, len(optional.Missing))
		for i, c := range optional.Missing {
			info, _ := perms.Lookup(c)
			parts[i] = fmt.Sprintf("`%s` (%s)", info.Label, info.Rationale)
			if evs := perms.AffectedEvents(c); len(evs) > 0 {
				parts[i] += " affecting " + quoted(evs)
			}
		}
		return ephemeral("I'm missing the following permissions in this server: %s. Some features may not work.", strings.Join(parts, ", ")), nil
	}
	return ephemeral("Everything looks good! Events are being logged to %s.", ch.Mention()), nil
}

func quoted(labels []string) string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = "`" + l + "`"
	}
	return strings.Join(out, ", ")
}

// Stat reports gateway cache sizes and the global events counter.
func (h *Handlers) Stat(ctx context.Context, in *transport.Interaction) (transport.Reply, error) {
	snap, err := h.Stats.Collect(ctx, h.Gateway)
	if err != nil {
		return transport.Reply{}, err
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return transport.Reply{}, err
	}
	return transport.Reply{Content: "# Big Brother Bot Stats 📊\n\n```json\n" + string(b) + "\n```"}, nil
}

// Ping reports the interaction round trip and the gateway heartbeat.
func (h *Handlers) Ping(ctx context.Context, in *transport.Interaction) (transport.Reply, error) {
	latency := h.clock().Sub(in.CreatedAt)
	if latency < 0 {
		latency = -latency
	}
	text := fmt.Sprintf("Pong! Latency: `%dms`", latency.Milliseconds())
	if h.Gateway != nil {
		text += fmt.Sprintf(" (gateway heartbeat: `%dms`)", h.Gateway.HeartbeatLatency().Milliseconds())
	}
	return transport.Reply{Content: text}, nil
}
