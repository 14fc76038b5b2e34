package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// ErrNotNumeric is returned by Increment when the stored field is not a number.
var ErrNotNumeric = errors.New("field is not numeric")

// Config configures storage.
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Doc is a stored document. Values are JSON types: string, float64, bool, nil,
// []any and map[string]any.
type Doc map[string]any

// Filter selects documents by exact equality of top-level string fields.
type Filter map[string]string

// String returns the filter in canonical form (sorted, escaped); it is the
// document identity used by Upsert and Increment.
func (f Filter) String() string {
	if len(f) == 0 {
		return ""
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(escapeKey(k))
		b.WriteByte('=')
		b.WriteString(escapeKey(f[k]))
	}
	return b.String()
}

func escapeKey(s string) string {
	return strings.NewReplacer(`\`, `\\`, "&", `\&`, "=", `\=`).Replace(s)
}

// Match reports whether d satisfies f.
func (f Filter) Match(d Doc) bool {
	for k, want := range f {
		got, ok := d[k].(string)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// Store is the persistence API used by the channel resolver, provisioner and stats.
//
// Every call is one operation: there are no transactions spanning calls.
// Empty results are not errors.
type Store interface {
	// Find returns matching documents ordered by identity.
	Find(ctx context.Context, table string, filter Filter) ([]Doc, error)
	// FindOne returns the first match, or (nil, false, nil).
	FindOne(ctx context.Context, table string, filter Filter) (Doc, bool, error)
	// Upsert sets fields on the document identified by filter, creating it
	// (with the filter fields) when missing.
	Upsert(ctx context.Context, table string, filter Filter, fields Doc) error
	// Increment adds deltas to numeric fields of the document identified by filter,
	// creating it when missing. Missing fields start at 0.
	Increment(ctx context.Context, table string, filter Filter, deltas map[string]float64) error
	// Delete removes matching documents and reports how many were removed.
	Delete(ctx context.Context, table string, filter Filter) (int, error)
	Close() error
}

func checkTable(table string) error {
	if strings.TrimSpace(table) == "" {
		return errors.New("storage: table is required")
	}
	return nil
}

// normalizeDoc round-trips d through JSON so every driver stores and returns the same value types.
func normalizeDoc(d Doc) (Doc, error) {
	if d == nil {
		return Doc{}, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("storage: encode document: %w", err)
	}
	var out Doc
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("storage: decode document: %w", err)
	}
	if out == nil {
		out = Doc{}
	}
	return out, nil
}

// applyUpsert returns cur with the filter fields and fields set. cur may be nil.
func applyUpsert(cur Doc, filter Filter, fields Doc) (Doc, error) {
	next := make(Doc, len(cur)+len(filter)+len(fields))
	for k, v := range cur {
		next[k] = v
	}
	for k, v := range filter {
		next[k] = v
	}
	for k, v := range fields {
		next[k] = v
	}
	return normalizeDoc(next)
}

// applyIncrement returns cur with deltas added. cur may be nil.
func applyIncrement(cur Doc, filter Filter, deltas map[string]float64) (Doc, error) {
	next := make(Doc, len(cur)+len(filter)+len(deltas))
	for k, v := range cur {
		next[k] = v
	}
	for k, v := range filter {
		next[k] = v
	}
	for k, delta := range deltas {
		var base float64
		switch v := next[k].(type) {
		case nil:
		case float64:
			base = v
		default:
			return nil, fmt.Errorf("storage: increment %q: %w", k, ErrNotNumeric)
		}
		next[k] = base + delta
	}
	return normalizeDoc(next)
}

func cloneDoc(d Doc) Doc {
	if d == nil {
		return nil
	}
	out, err := normalizeDoc(d)
	if err != nil {
		return d
	}
	return out
}
