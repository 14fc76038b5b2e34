package stats

import (
	"context"
	"sync"
	"testing"
	"time"

	"bigbrother/internal/storage"
	"bigbrother/internal/transport"
)

func TestCounters(t *testing.T) {
	ctx := context.Background()
	c := Counters{Store: storage.NewMemory()}

	if _, ok, err := c.Get(ctx, KeyEventsLogged); ok || err != nil {
		t.Fatalf("Get on empty = ok %v err %v", ok, err)
	}
	if n, err := c.EventsLogged(ctx); n != 0 || err != nil {
		t.Fatalf("EventsLogged = %d %v, want 0", n, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Increment(ctx, KeyEventsLogged, 1); err != nil {
				t.Errorf("Increment: %v", err)
			}
		}()
	}
	wg.Wait()

	if n, err := c.EventsLogged(ctx); n != 25 || err != nil {
		t.Fatalf("EventsLogged = %d %v, want 25", n, err)
	}
	docs, _ := c.Store.Find(ctx, Table, nil)
	if len(docs) != 1 {
		t.Fatalf("records = %d, want 1", len(docs))
	}
	if docs[0]["key"] != KeyEventsLogged {
		t.Fatalf("record = %v", docs[0])
	}
}

type fakeGateway struct{}

func (fakeGateway) Identity() transport.Identity { return transport.Identity{} }

func (fakeGateway) Stats() transport.GatewayStats {
	return transport.GatewayStats{Guilds: 2, Channels: 7, Users: 40}
}

func (fakeGateway) HeartbeatLatency() time.Duration { return 0 }

func TestCollect(t *testing.T) {
	ctx := context.Background()
	c := Counters{Store: storage.NewMemory()}
	_ = c.Increment(ctx, KeyEventsLogged, 3)

	got, err := c.Collect(ctx, fakeGateway{})
	if err != nil {
		t.Fatal(err)
	}
	want := Snapshot{Guilds: 2, Channels: 7, Users: 40, GlobalEventsLogged: 3}
	if got != want {
		t.Fatalf("Collect = %+v, want %+v", got, want)
	}
}
