// Package channels maps tenants to their logging channel: a persisted mapping,
// a self-healing resolver and an idempotent provisioner.
package channels

import (
	"context"
	"fmt"

	"bigbrother/internal/storage"
)

// Table holds one document per guild: {tenantId, loggingChannelId}.
const Table = "guilds"

const (
	fieldTenant  = "tenantId"
	fieldChannel = "loggingChannelId"
)

// Mapping is the persisted guild -> channel record. ChannelID is empty when cleared.
type Mapping struct {
	TenantID  string
	ChannelID string
}

// Repository reads and writes mappings in a storage.Store.
type Repository struct {
	Store storage.Store
}

func tenantFilter(tenantID string) storage.Filter {
	return storage.Filter{fieldTenant: tenantID}
}

// Get returns the mapping of tenantID. A missing document is (Mapping{}, false, nil).
func (r Repository) Get(ctx context.Context, tenantID string) (Mapping, bool, error) {
	doc, ok, err := r.Store.FindOne(ctx, Table, tenantFilter(tenantID))
	if err != nil {
		return Mapping{}, false, fmt.Errorf("channels: load mapping: %w", err)
	}
	if !ok {
		return Mapping{}, false, nil
	}
	m := Mapping{TenantID: tenantID}
	if s, ok := doc[fieldChannel].(string); ok {
		m.ChannelID = s
	}
	return m, true, nil
}

// Set upserts the mapping keyed by tenantID.
func (r Repository) Set(ctx context.Context, tenantID, channelID string) error {
	if err := r.Store.Upsert(ctx, Table, tenantFilter(tenantID), storage.Doc{fieldChannel: channelID}); err != nil {
		return fmt.Errorf("channels: save mapping: %w", err)
	}
	return nil
}

// Clear nulls the channel id of tenantID, keeping the document.
func (r Repository) Clear(ctx context.Context, tenantID string) error {
	if err := r.Store.Upsert(ctx, Table, tenantFilter(tenantID), storage.Doc{fieldChannel: nil}); err != nil {
		return fmt.Errorf("channels: clear mapping: %w", err)
	}
	return nil
}
