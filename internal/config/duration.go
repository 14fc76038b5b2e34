package config

import (
	"fmt"
	"strings"
	"time"
)

// DurationField describes one duration-valued config key. Values are Go
// duration strings ("750ms", "1m"); negative values are rejected.
type DurationField struct {
	Path    string
	Default time.Duration
	// ZeroDisables keeps an explicit "0s" instead of replacing it with Default.
	ZeroDisables bool
}

var (
	StorageBusyTimeout = DurationField{Path: "storage.busy_timeout", Default: time.Second}
	ResolverCacheTTL   = DurationField{Path: "relay.resolver_cache_ttl", Default: time.Minute, ZeroDisables: true}
	HTTPReadTimeout    = DurationField{Path: "http.read_timeout", Default: 10 * time.Second}
	HTTPWriteTimeout   = DurationField{Path: "http.write_timeout", Default: 30 * time.Second}
)

// Parse returns the value of raw, or f.Default when raw is blank (or zero,
// unless f.ZeroDisables).
func (f DurationField) Parse(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return f.Default, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", f.Path, raw, err)
	}
	switch {
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", f.Path)
	case d == 0 && !f.ZeroDisables:
		return f.Default, nil
	}
	return d, nil
}

type boundDuration struct {
	field DurationField
	raw   string
}

// durations lists every duration key present in cfg, for validation.
func (cfg *Config) durations() []boundDuration {
	out := []boundDuration{
		{ResolverCacheTTL, cfg.Relay.ResolverCacheTTL},
		{HTTPReadTimeout, cfg.HTTP.ReadTimeout},
		{HTTPWriteTimeout, cfg.HTTP.WriteTimeout},
	}
	if cfg.Storage != nil {
		out = append(out, boundDuration{StorageBusyTimeout, cfg.Storage.BusyTimeout})
	}
	return out
}
