package app

import (
	"fmt"
	"strings"
	"time"

	"bigbrother/internal/config"
	"bigbrother/internal/delivery"
	"bigbrother/internal/httpapi"
	"bigbrother/internal/redact"
	"bigbrother/internal/relay"
	"bigbrother/internal/scheduler"
	"bigbrother/internal/storage"
	logx "bigbrother/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled:    l.File.Enabled,
			Path:       l.File.Path,
			MaxSizeMB:  l.File.MaxSizeMB,
			MaxBackups: l.File.MaxBackups,
			MaxAgeDays: l.File.MaxAgeDays,
			Compress:   l.File.Compress,
		},
		Operator: logx.OperatorConfig{
			Enabled:    l.Telegram.Enabled,
			ChatID:     l.Telegram.ChatID,
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

// mapStorageConfig turns the storage section into a driver config. A nil
// section selects memory.
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{Driver: "memory"}, nil
	}
	sc := cfg.Storage
	busy, err := config.StorageBusyTimeout.Parse(sc.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		DSN:         strings.TrimSpace(sc.DSN),
		BusyTimeout: busy,
	}, nil
}

func mapRelaySettings(cfg *config.Config) (relay.Settings, error) {
	r := cfg.Relay
	red, err := redact.New(r.Secrets, r.Sentinel, redact.Limits{
		MaxDepth: r.MaxDepth,
		MaxNodes: r.MaxNodes,
	})
	if err != nil {
		return relay.Settings{}, fmt.Errorf("relay.secrets: %w", err)
	}
	return relay.Settings{
		Formatter:   delivery.Formatter{InlineLimit: r.InlineLimit},
		Redactor:    red,
		ChannelName: r.ChannelName,
		LegacyNames: r.LegacyChannelNames,
		Exclude:     r.ExcludeEvents,
	}, nil
}

func mapResolverTTL(cfg *config.Config) time.Duration {
	// Validated on load.
	d, _ := config.ResolverCacheTTL.Parse(cfg.Relay.ResolverCacheTTL)
	return d
}

func mapHTTPConfig(cfg *config.Config) (httpapi.Config, error) {
	rt, err := config.HTTPReadTimeout.Parse(cfg.HTTP.ReadTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	wt, err := config.HTTPWriteTimeout.Parse(cfg.HTTP.WriteTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	return httpapi.Config{
		Enabled:      cfg.HTTP.Enabled,
		Addr:         cfg.HTTP.Addr,
		Pprof:        cfg.HTTP.Pprof,
		ReadTimeout:  rt,
		WriteTimeout: wt,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Enabled: cfg.Scheduler.Enabled, Timezone: cfg.Scheduler.Timezone}
}
