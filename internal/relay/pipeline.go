package relay

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"bigbrother/internal/delivery"
	"bigbrother/internal/eventbus"
	"bigbrother/internal/perms"
	"bigbrother/internal/stats"
	"bigbrother/internal/transport"
	"bigbrother/pkg/logx"
)

// ChannelResolver is implemented by *channels.Resolver.
type ChannelResolver interface {
	Resolve(ctx context.Context, guildID string) (transport.Channel, bool, error)
	Repair(ctx context.Context, guildID, channelID string) error
}

// Preflighter is implemented by perms.Preflight.
type Preflighter interface {
	Check(ctx context.Context, guildID, channelID string, required []perms.Capability) (perms.Result, error)
}

// Counter is implemented by stats.Counters.
type Counter interface {
	Increment(ctx context.Context, key string, delta float64) error
}

type Status string

const (
	StatusDelivered Status = "delivered"
	StatusSkipped   Status = "skipped"
	StatusBlocked   Status = "blocked"
	StatusFailed    Status = "failed"
)

// Skip and failure reasons.
const (
	ReasonExcluded    = "excluded"
	ReasonNoChannel   = "no_channel"
	ReasonPermissions = "missing_permissions"
	ReasonResolve     = "resolve_failed"
	ReasonPreflight   = "preflight_failed"
	ReasonFormat      = "format_failed"
	ReasonSendDenied  = "send_denied"
	ReasonChannelGone = "channel_gone"
	ReasonSend        = "send_failed"
)

type Outcome struct {
	Status  Status
	Reason  string
	Channel transport.Channel
	Missing []perms.Capability
	Mode    delivery.Mode
	Message transport.MessageRef
	Err     error
}

type Deps struct {
	Resolver  ChannelResolver
	Preflight Preflighter
	Sender    transport.Sender
	Stats     Counter
	Bus       eventbus.Bus
	Log       logx.Logger
}

type Pipeline struct {
	resolver  ChannelResolver
	preflight Preflighter
	sender    transport.Sender
	stats     Counter
	bus       eventbus.Bus
	log       logx.Logger

	settings atomic.Pointer[Settings]
}

func New(deps Deps, s Settings) *Pipeline {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	bus := deps.Bus
	if bus == nil {
		bus = eventbus.Nop{}
	}
	p := &Pipeline{
		resolver:  deps.Resolver,
		preflight: deps.Preflight,
		sender:    deps.Sender,
		stats:     deps.Stats,
		bus:       bus,
		log:       log.With(logx.String("comp", "relay")),
	}
	p.SetSettings(s)
	return p
}

// SetSettings swaps the settings used by subsequent events. Events already in
// flight finish with the settings they started with.
func (p *Pipeline) SetSettings(s Settings) {
	s.index()
	p.settings.Store(&s)
}

func (p *Pipeline) Settings() Settings { return *p.settings.Load() }

// RecordEvent delivers ev to its guild's logging channel.
func (p *Pipeline) RecordEvent(ctx context.Context, ev Event) Outcome {
	start := time.Now()
	out := p.record(ctx, ev)
	p.publish(ev, out, time.Since(start))
	return out
}

func (p *Pipeline) record(ctx context.Context, ev Event) Outcome {
	s := p.settings.Load()
	log := p.log.With(
		logx.String("event_id", ev.ID.String()),
		logx.String("event", ev.Type),
		logx.String("guild_id", ev.Guild.ID),
	)

	if s.excluded(ev.Type) {
		return Outcome{Status: StatusSkipped, Reason: ReasonExcluded}
	}

	ch, ok, err := p.resolver.Resolve(ctx, ev.Guild.ID)
	if err != nil {
		log.Warn("resolve logging channel failed", logx.Err(err))
		return Outcome{Status: StatusFailed, Reason: ReasonResolve, Err: err}
	}
	if !ok {
		log.Trace("no logging channel configured")
		return Outcome{Status: StatusSkipped, Reason: ReasonNoChannel}
	}
	log = log.With(logx.String("channel_id", ch.ID))

	pre, err := p.preflight.Check(ctx, ev.Guild.ID, ch.ID, perms.Required)
	if err != nil {
		if errors.Is(err, transport.ErrChannelNotFound) {
			// A cached channel deleted since it was resolved.
			if rerr := p.resolver.Repair(ctx, ev.Guild.ID, ch.ID); rerr != nil {
				log.Warn("clear stale logging channel failed", logx.Err(rerr))
			}
			log.Info("logging channel gone before delivery")
			return Outcome{Status: StatusFailed, Reason: ReasonChannelGone, Channel: ch, Err: err}
		}
		log.Warn("permission preflight failed", logx.Err(err))
		return Outcome{Status: StatusFailed, Reason: ReasonPreflight, Channel: ch, Err: err}
	}
	if !pre.OK {
		log.Warn("missing required permissions on logging channel",
			logx.String("guild_name", ev.Guild.Name),
			logx.Strings("missing", perms.Names(pre.Missing)),
		)
		return Outcome{Status: StatusBlocked, Reason: ReasonPermissions, Channel: ch, Missing: pre.Missing}
	}

	var args any = materialize(ctx, toAnySlice(ev.Args), func(err error) {
		log.Debug("partial member fetch failed, using stub", logx.Err(err))
	})
	payload := s.Redactor.Apply(args)

	f := s.Formatter
	if s.legacyName(ch.Name) {
		f = f.WithNotice(fmt.Sprintf(LegacyChannelNotice, s.ChannelName, ch.Name))
	}
	msg, err := f.Format(ev.Type, payload)
	if err != nil {
		log.Error("format event failed", logx.Err(err))
		return Outcome{Status: StatusFailed, Reason: ReasonFormat, Channel: ch, Err: err}
	}

	ref, err := p.sender.Send(ctx, ch.ID, msg.Message())
	if err != nil {
		reason := ReasonSend
		switch {
		case errors.Is(err, transport.ErrChannelNotFound):
			reason = ReasonChannelGone
			if rerr := p.resolver.Repair(ctx, ev.Guild.ID, ch.ID); rerr != nil {
				log.Warn("clear stale logging channel failed", logx.Err(rerr))
			}
		case errors.Is(err, transport.ErrPermission):
			reason = ReasonSendDenied
		}
		log.Warn("deliver event failed", logx.String("reason", reason), logx.Err(err))
		return Outcome{Status: StatusFailed, Reason: reason, Channel: ch, Mode: msg.Mode, Err: err}
	}

	if p.stats != nil {
		if err := p.stats.Increment(ctx, stats.KeyEventsLogged, 1); err != nil {
			log.Warn("increment events counter failed", logx.Err(err))
		}
	}
	log.Trace("event delivered", logx.String("mode", string(msg.Mode)))
	return Outcome{Status: StatusDelivered, Channel: ch, Mode: msg.Mode, Message: ref}
}

func toAnySlice(args []any) []any {
	if args == nil {
		return []any{}
	}
	return args
}

func (p *Pipeline) publish(ev Event, out Outcome, d time.Duration) {
	var typ string
	switch out.Status {
	case StatusDelivered:
		typ = eventbus.TypeDelivered
	case StatusSkipped:
		typ = eventbus.TypeSkipped
	case StatusBlocked:
		typ = eventbus.TypeBlocked
	default:
		typ = eventbus.TypeFailed
	}
	p.bus.Publish(eventbus.Event{Type: typ, Data: eventbus.Delivery{
		ID:        ev.ID.String(),
		GuildID:   ev.Guild.ID,
		EventType: ev.Type,
		Mode:      string(out.Mode),
		Reason:    out.Reason,
		Missing:   perms.Names(out.Missing),
		Duration:  d,
	}})
}
