// Package relay turns gateway events into log channel messages.
//
// The hot path is Pipeline.RecordEvent: resolve the logging channel, check
// permissions, materialize partial members, redact, format and send. It never
// returns an error to the event source; every failure ends in an Outcome and a
// log line.
package relay

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bigbrother/internal/transport"
)

// Event is one gateway event. Args are the handler arguments in order; any of
// them may be a transport.Fetchable.
type Event struct {
	ID         uuid.UUID
	Type       string
	Guild      transport.Guild
	Args       []any
	ReceivedAt time.Time
}

func NewEvent(eventType string, guild transport.Guild, args ...any) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		Guild:      guild,
		Args:       args,
		ReceivedAt: time.Now(),
	}
}

// materialize replaces partial members with their fetched value, or with
// their stub when the fetch fails. It recurses into []any and map[string]any.
func materialize(ctx context.Context, v any, onErr func(error)) any {
	switch x := v.(type) {
	case transport.Fetchable:
		if !x.Partial() {
			return x.Stub()
		}
		full, err := x.Fetch(ctx)
		if err != nil {
			onErr(err)
			return x.Stub()
		}
		return full
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = materialize(ctx, x[i], onErr)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			out[k] = materialize(ctx, vv, onErr)
		}
		return out
	default:
		return v
	}
}
