package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"bigbrother/internal/redact"
	logx "bigbrother/pkg/logx"
)

// CronParser accepts 5-field specs plus descriptors (@every, @daily, ...).
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks a defaulted config. Errors from every section are joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Discord.Intents)) {
	case "", "all", "unprivileged":
	default:
		add(fmt.Errorf("discord.intents: unknown value %q (want all|unprivileged)", cfg.Discord.Intents))
	}

	if !logx.ValidLevel(cfg.Logging.Level) {
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if !logx.ValidLevel(cfg.Logging.Telegram.MinLevel) {
		add(fmt.Errorf("logging.telegram.min_level: unknown level %q", cfg.Logging.Telegram.MinLevel))
	}
	if cfg.Logging.Telegram.Enabled && strings.TrimSpace(cfg.Logging.Telegram.Token) == "" {
		add(errors.New("logging.telegram.token: required when logging.telegram.enabled"))
	}

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "memory":
		case "file", "sqlite":
			if strings.TrimSpace(s.Path) == "" {
				add(fmt.Errorf("storage.path: required for driver %q", s.Driver))
			}
		case "postgres", "postgresql", "pg":
			if strings.TrimSpace(s.DSN) == "" {
				add(errors.New("storage.dsn: required for driver postgres"))
			}
		default:
			add(fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
		}
	}

	r := cfg.Relay
	switch r.Provisioning {
	case "", ProvisioningAuto, ProvisioningManual:
	default:
		add(fmt.Errorf("relay.provisioning: unknown policy %q (want auto|manual)", r.Provisioning))
	}
	if r.InlineLimit < 0 {
		add(errors.New("relay.inline_limit: must be >= 0"))
	}
	if r.MaxInFlight < 0 {
		add(errors.New("relay.max_in_flight: must be >= 0"))
	}
	sentinel := r.Sentinel
	if sentinel == "" {
		sentinel = DefaultSentinel
	}
	for i, s := range r.Secrets {
		if redact.Conflict(s, sentinel) {
			add(fmt.Errorf("relay.secrets[%d]: overlaps relay.sentinel %q", i, sentinel))
		}
	}
	for _, d := range cfg.durations() {
		_, err := d.field.Parse(d.raw)
		add(err)
	}

	if cfg.HTTP.Enabled && strings.TrimSpace(cfg.HTTP.Addr) == "" {
		add(errors.New("http.addr: required when http.enabled"))
	}

	sc := cfg.Scheduler
	if tz := strings.TrimSpace(sc.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	for _, job := range []struct{ path, spec string }{
		{"scheduler.stats_report", sc.StatsReport},
		{"scheduler.cache_sweep", sc.CacheSweep},
	} {
		if strings.TrimSpace(job.spec) == "" {
			continue
		}
		if _, err := CronParser.Parse(job.spec); err != nil {
			add(fmt.Errorf("%s: invalid cron spec %q: %w", job.path, job.spec, err))
		}
	}

	return errors.Join(errs...)
}
