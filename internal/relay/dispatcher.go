package relay

import (
	"context"
	"sync/atomic"

	"bigbrother/internal/runtime/supervisor"
	"bigbrother/pkg/logx"
)

// Dispatcher runs RecordEvent asynchronously, one supervised goroutine per
// event, with at most maxInFlight running at once. There is no ordering
// between events, not even within one guild.
type Dispatcher struct {
	p   *Pipeline
	sup *supervisor.Supervisor
	sem chan struct{}
	log logx.Logger

	dropped atomic.Uint64
}

func NewDispatcher(sup *supervisor.Supervisor, p *Pipeline, maxInFlight int, log logx.Logger) *Dispatcher {
	if maxInFlight <= 0 {
		maxInFlight = 64
	}
	return &Dispatcher{
		p:   p,
		sup: sup,
		sem: make(chan struct{}, maxInFlight),
		log: log.With(logx.String("comp", "relay.dispatch")),
	}
}

// Dispatch waits for a free slot and starts ev. It returns false when ctx or
// the supervisor is done first; the event is then dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) bool {
	if d.sup.Context().Err() != nil {
		d.drop(ev)
		return false
	}
	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		d.drop(ev)
		return false
	case <-d.sup.Context().Done():
		d.drop(ev)
		return false
	}
	d.sup.Go0("relay.event", func(ctx context.Context) {
		defer func() { <-d.sem }()
		d.p.RecordEvent(ctx, ev)
	})
	return true
}

// InFlight is the number of events currently being delivered.
func (d *Dispatcher) InFlight() int { return len(d.sem) }

// Dropped counts events abandoned because the dispatcher was shutting down.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

func (d *Dispatcher) drop(ev Event) {
	d.dropped.Add(1)
	d.log.Debug("event dropped", logx.String("event", ev.Type), logx.String("guild_id", ev.Guild.ID))
}
