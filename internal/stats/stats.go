// Package stats keeps persisted counters in the "stats" table as {key, value}.
package stats

import (
	"context"
	"fmt"

	"bigbrother/internal/storage"
)

const Table = "stats"

// KeyEventsLogged counts every event delivered by the relay.
const KeyEventsLogged = "logJSON_invocations"

type Counters struct {
	Store storage.Store
}

func keyFilter(key string) storage.Filter { return storage.Filter{"key": key} }

// Increment adds delta to key, creating the counter at 0 first.
func (c Counters) Increment(ctx context.Context, key string, delta float64) error {
	if err := c.Store.Increment(ctx, Table, keyFilter(key), map[string]float64{"value": delta}); err != nil {
		return fmt.Errorf("stats: increment %s: %w", key, err)
	}
	return nil
}

// Get returns the value of key; ok is false when the counter does not exist.
func (c Counters) Get(ctx context.Context, key string) (value float64, ok bool, err error) {
	doc, found, err := c.Store.FindOne(ctx, Table, keyFilter(key))
	if err != nil {
		return 0, false, fmt.Errorf("stats: get %s: %w", key, err)
	}
	if !found {
		return 0, false, nil
	}
	v, isNum := doc["value"].(float64)
	if !isNum {
		return 0, false, nil
	}
	return v, true, nil
}

// EventsLogged is Get(KeyEventsLogged) with a missing counter read as 0.
func (c Counters) EventsLogged(ctx context.Context) (int64, error) {
	v, _, err := c.Get(ctx, KeyEventsLogged)
	return int64(v), err
}
