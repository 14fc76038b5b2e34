package config

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func withEnv(t *testing.T, env map[string]string) {
	t.Helper()
	prev := LookupEnv
	LookupEnv = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	t.Cleanup(func() { LookupEnv = prev })
}

func TestDecodeYAMLAndDefaults(t *testing.T) {
	withEnv(t, nil)
	src := `
discord:
  token: abc
  application_id: "123"
logging:
  level: info
relay:
  provisioning: manual
  secrets: [hunter2]
scheduler:
  enabled: true
`
	cfg, err := Decode("config.yaml", []byte(src))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Discord.Token != "abc" || cfg.Discord.ApplicationID != "123" {
		t.Fatalf("discord = %+v", cfg.Discord)
	}
	r := cfg.Relay
	if r.Provisioning != ProvisioningManual || r.ChannelName != DefaultChannelName || r.InlineLimit != DefaultInlineLimit {
		t.Fatalf("relay = %+v", r)
	}
	if !slices.Equal(r.LegacyChannelNames, []string{"dlb-logs"}) || r.ResolverCacheTTL != "" || r.MaxInFlight != 64 {
		t.Fatalf("relay defaults = %+v", r)
	}
	if cfg.HTTP.Addr != DefaultHTTPAddr || cfg.Scheduler.StatsReport != "@every 6h" || cfg.Discord.Intents != "all" {
		t.Fatalf("defaults = %+v %+v", cfg.HTTP, cfg.Scheduler)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestDecodeRejects(t *testing.T) {
	withEnv(t, nil)
	tests := []struct {
		name, path, src string
	}{
		{"unknown field json", "config.json", `{"discord":{"tokn":"x"}}`},
		{"unknown field yaml", "config.yaml", "relay:\n  inline: 5\n"},
		{"trailing data", "config.json", `{} {}`},
		{"bad yaml", "config.yml", "discord: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.path, []byte(tt.src)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDecodeEmptyYAML(t *testing.T) {
	withEnv(t, nil)
	cfg, err := Decode("c.yaml", nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Relay.ChannelName != DefaultChannelName {
		t.Fatalf("defaults not applied: %+v", cfg.Relay)
	}
}

func TestApplyEnv(t *testing.T) {
	withEnv(t, map[string]string{
		"DISCORD_BOT_TOKEN":            "tok",
		"DISCORD_APPLICATION_ID":       "app",
		"DISCORD_DEVELOPMENT_GUILD_ID": "dev",
		"DATABASE_URL":                 "postgres://x",
		"WEB_API_PORT":                 "8080",
		"ENVIRONMENT":                  "production",
	})
	cfg := &Config{HTTP: HTTPConfig{Addr: "127.0.0.1:3000"}, Relay: RelayConfig{Secrets: []string{"a"}}}
	ApplyEnv(cfg)
	ApplyEnv(cfg)

	if cfg.Discord.Token != "tok" || cfg.Discord.ApplicationID != "app" || cfg.Discord.DevelopmentGuildID != "dev" {
		t.Fatalf("discord = %+v", cfg.Discord)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "postgres" || cfg.Storage.DSN != "postgres://x" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.HTTP.Addr != "127.0.0.1:8080" {
		t.Fatalf("addr = %q", cfg.HTTP.Addr)
	}
	if !slices.Equal(cfg.Relay.Secrets, []string{"a", "production"}) {
		t.Fatalf("secrets = %v", cfg.Relay.Secrets)
	}
}

func TestApplyEnvIgnoresBlank(t *testing.T) {
	withEnv(t, map[string]string{"DISCORD_BOT_TOKEN": "  "})
	cfg := &Config{Discord: DiscordConfig{Token: "file"}}
	ApplyEnv(cfg)
	if cfg.Discord.Token != "file" {
		t.Fatalf("token = %q", cfg.Discord.Token)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mut  func(c *Config)
		want string
	}{
		{"ok", func(c *Config) {}, ""},
		{"intents", func(c *Config) { c.Discord.Intents = "some" }, "discord.intents"},
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"telegram token", func(c *Config) { c.Logging.Telegram.Enabled = true }, "logging.telegram.token"},
		{"sqlite path", func(c *Config) { c.Storage = &StorageConfig{Driver: "sqlite"} }, "storage.path"},
		{"postgres dsn", func(c *Config) { c.Storage = &StorageConfig{Driver: "postgres"} }, "storage.dsn"},
		{"driver", func(c *Config) { c.Storage = &StorageConfig{Driver: "mongo"} }, "storage.driver"},
		{"provisioning", func(c *Config) { c.Relay.Provisioning = "lazy" }, "relay.provisioning"},
		{"sentinel contains secret", func(c *Config) { c.Relay.Secrets = []string{"secret"} }, "relay.secrets[0]"},
		{"secret overlaps sentinel edge", func(c *Config) { c.Relay.Secrets = []string{"ok", "]aSECRET"} }, "relay.secrets[1]"},
		{"secret contains sentinel", func(c *Config) { c.Relay.Secrets = []string{"[SECRET]kcK]"} }, "relay.secrets[0]"},
		{"custom sentinel overlap", func(c *Config) { c.Relay.Sentinel = "***"; c.Relay.Secrets = []string{"*pw"} }, "relay.sentinel"},
		{"custom sentinel ok", func(c *Config) { c.Relay.Sentinel = "***"; c.Relay.Secrets = []string{"secret"} }, ""},
		{"ttl", func(c *Config) { c.Relay.ResolverCacheTTL = "forever" }, "relay.resolver_cache_ttl"},
		{"cron", func(c *Config) { c.Scheduler.CacheSweep = "every tuesday" }, "scheduler.cache_sweep"},
		{"timezone", func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, "scheduler.timezone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			tt.mut(cfg)
			Defaults(cfg)
			err := Validate(cfg)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	base := &Config{}
	Defaults(base)

	next := *base
	next.Relay.Secrets = []string{"hunter2"}
	next.HTTP.Enabled = true
	next.Discord.Token = "new"

	sum := SummarizeConfigChange(base, &next)
	if !slices.Equal(sum.Changed, []string{"discord", "http", "relay"}) {
		t.Fatalf("changed = %v", sum.Changed)
	}
	if !slices.Equal(sum.RestartRequired, []string{"discord", "http"}) {
		t.Fatalf("restart = %v", sum.RestartRequired)
	}

	same := SummarizeConfigChange(base, base)
	if len(same.Changed) != 0 {
		t.Fatalf("no-op changed = %v", same.Changed)
	}
}

func TestDurationFieldParse(t *testing.T) {
	tests := []struct {
		name    string
		field   DurationField
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"blank uses default", HTTPReadTimeout, " ", 10 * time.Second, false},
		{"explicit", HTTPWriteTimeout, "2s", 2 * time.Second, false},
		{"zero uses default", StorageBusyTimeout, "0s", time.Second, false},
		{"zero disables ttl", ResolverCacheTTL, "0s", 0, false},
		{"blank ttl", ResolverCacheTTL, "", time.Minute, false},
		{"negative", HTTPReadTimeout, "-1s", 0, true},
		{"garbage", ResolverCacheTTL, "soon", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.field.Parse(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !strings.Contains(err.Error(), tt.field.Path) {
					t.Fatalf("err %q does not name %s", err, tt.field.Path)
				}
				return
			}
			if got != tt.want {
				t.Fatalf("Parse(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestManagerWatchPublishesValidChanges(t *testing.T) {
	withEnv(t, nil)
	path := filepath.Join(t.TempDir(), "config.yaml")
	write := func(s string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(s), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write("relay:\n  inline_limit: 1000\n")

	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher a moment to register.
	time.Sleep(100 * time.Millisecond)
	write("relay:\n  provisioning: bogus\n")
	time.Sleep(600 * time.Millisecond)
	write("relay:\n  inline_limit: 1500\n")

	select {
	case cfg := <-sub:
		if cfg.Relay.InlineLimit != 1500 {
			t.Fatalf("published inline_limit = %d", cfg.Relay.InlineLimit)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}
	if got := m.Get().Relay.InlineLimit; got != 1500 {
		t.Fatalf("committed inline_limit = %d", got)
	}
}
