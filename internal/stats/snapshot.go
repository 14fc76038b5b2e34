package stats

import (
	"context"

	"bigbrother/internal/transport"
)

// Snapshot is the public bot summary shown by the stats command and /stats.
type Snapshot struct {
	Guilds             int   `json:"guilds"`
	Channels           int   `json:"channels"`
	Users              int   `json:"users"`
	GlobalEventsLogged int64 `json:"globalEventsLogged"`
}

// Collect combines gateway cache counters with the persisted events counter.
// A nil gateway reports zero cache counters.
func (c Counters) Collect(ctx context.Context, gw transport.Gateway) (Snapshot, error) {
	var snap Snapshot
	if gw != nil {
		gs := gw.Stats()
		snap.Guilds, snap.Channels, snap.Users = gs.Guilds, gs.Channels, gs.Users
	}
	n, err := c.EventsLogged(ctx)
	if err != nil {
		return snap, err
	}
	snap.GlobalEventsLogged = n
	return snap, nil
}
