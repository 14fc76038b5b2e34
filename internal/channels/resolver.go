package channels

import (
	"context"
	"errors"
	"sync"
	"time"

	"bigbrother/internal/eventbus"
	"bigbrother/internal/transport"
	"bigbrother/pkg/logx"
)

// Resolver returns the live logging channel of a tenant, or false when none is
// configured. A mapping that points at a vanished channel is cleared before
// Resolve returns.
//
// With TTL > 0 resolved channels are cached per tenant. Entries are replaced
// whole under a short lock, so concurrent resolves of different tenants never
// wait on each other's I/O.
type Resolver struct {
	Repo      Repository
	Directory transport.ChannelDirectory
	Bus       eventbus.Bus
	Log       logx.Logger
	TTL       time.Duration

	// now is replaced in tests.
	now func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	ch      transport.Channel
	expires time.Time
}

func (r *Resolver) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// Resolve loads the mapping of tenantID and materializes its channel.
func (r *Resolver) Resolve(ctx context.Context, tenantID string) (transport.Channel, bool, error) {
	if ch, ok := r.cached(tenantID); ok {
		return ch, true, nil
	}

	m, ok, err := r.Repo.Get(ctx, tenantID)
	if err != nil {
		return transport.Channel{}, false, err
	}
	if !ok || m.ChannelID == "" {
		return transport.Channel{}, false, nil
	}

	ch, err := r.Directory.Channel(ctx, tenantID, m.ChannelID)
	if err != nil {
		if !errors.Is(err, transport.ErrChannelNotFound) {
			return transport.Channel{}, false, err
		}
		return transport.Channel{}, false, r.Repair(ctx, tenantID, m.ChannelID)
	}

	r.store(tenantID, ch)
	return ch, true, nil
}

// Repair clears a mapping whose channel is gone. The relay also calls it when
// a send reports the channel missing, which covers channels served from cache.
func (r *Resolver) Repair(ctx context.Context, tenantID, channelID string) error {
	r.Invalidate(tenantID)
	m, ok, err := r.Repo.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	if !ok || m.ChannelID != channelID {
		// Already cleared or remapped meanwhile.
		return nil
	}
	if err := r.Repo.Clear(ctx, tenantID); err != nil {
		return err
	}
	r.Log.Info("stale logging channel cleared",
		logx.String("guild_id", tenantID),
		logx.String("channel_id", channelID),
	)
	if r.Bus != nil {
		r.Bus.Publish(eventbus.Event{Type: eventbus.TypeChannelRepaired, Data: eventbus.Channel{GuildID: tenantID, ChannelID: channelID}})
	}
	return nil
}

// Remember caches ch for tenantID, e.g. right after provisioning.
func (r *Resolver) Remember(tenantID string, ch transport.Channel) { r.store(tenantID, ch) }

// Invalidate drops the cached entry of tenantID.
func (r *Resolver) Invalidate(tenantID string) {
	r.mu.Lock()
	delete(r.cache, tenantID)
	r.mu.Unlock()
}

// Sweep evicts expired entries and reports how many were removed.
func (r *Resolver) Sweep() int {
	now := r.clock()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, e := range r.cache {
		if !now.Before(e.expires) {
			delete(r.cache, k)
			n++
		}
	}
	return n
}

// SetTTL changes the cache lifetime. Zero disables caching and empties the cache.
func (r *Resolver) SetTTL(ttl time.Duration) {
	r.mu.Lock()
	r.TTL = ttl
	if ttl <= 0 {
		r.cache = nil
	}
	r.mu.Unlock()
}

func (r *Resolver) cached(tenantID string) (transport.Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.TTL <= 0 {
		return transport.Channel{}, false
	}
	e, ok := r.cache[tenantID]
	if !ok || !r.clock().Before(e.expires) {
		return transport.Channel{}, false
	}
	return e.ch, true
}

func (r *Resolver) store(tenantID string, ch transport.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.TTL <= 0 {
		return
	}
	if r.cache == nil {
		r.cache = map[string]cacheEntry{}
	}
	r.cache[tenantID] = cacheEntry{ch: ch, expires: r.clock().Add(r.TTL)}
}
