package config

type Config struct {
	Discord   DiscordConfig   `json:"discord"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Relay     RelayConfig     `json:"relay"`
	HTTP      HTTPConfig      `json:"http"`
	Scheduler SchedulerConfig `json:"scheduler"`
}

// DiscordConfig holds gateway credentials.
//
// Token and ApplicationID are usually supplied through DISCORD_BOT_TOKEN and
// DISCORD_APPLICATION_ID instead of the file.
type DiscordConfig struct {
	Token              string `json:"token"`
	ApplicationID      string `json:"application_id"`
	DevelopmentGuildID string `json:"development_guild_id,omitempty"`
	// Intents is "all" (default, needs privileged intents enabled) or "unprivileged".
	Intents string `json:"intents,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

// LoggingTelegram forwards operator-level log lines to a Telegram chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token,omitempty"` // do not log
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls the document store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./bigbrother.db" }
//
// Nil means the in-memory driver.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`          // postgres; do not log
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// RelayConfig controls the event-to-channel pipeline.
//
// All durations are Go duration strings. Zero/empty values take defaults,
// see Defaults.
type RelayConfig struct {
	ChannelName  string `json:"channel_name,omitempty"`
	ChannelTopic string `json:"channel_topic,omitempty"`
	// Provisioning is "auto" (setup creates the channel) or "manual"
	// (setup only maps an existing channel).
	Provisioning       string   `json:"provisioning,omitempty"`
	InlineLimit        int      `json:"inline_limit,omitempty"`
	Sentinel           string   `json:"sentinel,omitempty"`
	Secrets            []string `json:"secrets,omitempty"` // do not log
	LegacyChannelNames []string `json:"legacy_channel_names,omitempty"`
	ResolverCacheTTL   string   `json:"resolver_cache_ttl,omitempty"`
	MaxInFlight        int      `json:"max_in_flight,omitempty"`
	ExcludeEvents      []string `json:"exclude_events,omitempty"`
	MaxDepth           int      `json:"max_depth,omitempty"`
	MaxNodes           int      `json:"max_nodes,omitempty"`
}

// HTTPConfig controls the stats/health HTTP server.
type HTTPConfig struct {
	Enabled      bool   `json:"enabled"`
	Addr         string `json:"addr,omitempty"` // default: ":3000"
	Pprof        bool   `json:"pprof,omitempty"`
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
}

// SchedulerConfig controls periodic maintenance jobs.
// Specs are robfig/cron expressions ("@every 6h", "0 */6 * * *"); empty disables a job.
type SchedulerConfig struct {
	Enabled     bool   `json:"enabled"`
	Timezone    string `json:"timezone,omitempty"`
	StatsReport string `json:"stats_report,omitempty"`
	CacheSweep  string `json:"cache_sweep,omitempty"`
}

const (
	ProvisioningAuto   = "auto"
	ProvisioningManual = "manual"

	DefaultChannelName  = "bb-logs"
	DefaultChannelTopic = "Logs all events in this server. Created by Big Brother Bot."
	DefaultInlineLimit  = 2000
	DefaultSentinel     = "[SECRET]"
	DefaultHTTPAddr     = ":3000"
)

// Defaults fills zero values with runtime defaults. It mutates cfg in place.
func Defaults(cfg *Config) {
	if cfg == nil {
		return
	}
	r := &cfg.Relay
	if r.ChannelName == "" {
		r.ChannelName = DefaultChannelName
	}
	if r.ChannelTopic == "" {
		r.ChannelTopic = DefaultChannelTopic
	}
	if r.Provisioning == "" {
		r.Provisioning = ProvisioningAuto
	}
	if r.InlineLimit <= 0 {
		r.InlineLimit = DefaultInlineLimit
	}
	if r.Sentinel == "" {
		r.Sentinel = DefaultSentinel
	}
	if r.LegacyChannelNames == nil {
		r.LegacyChannelNames = []string{"dlb-logs"}
	}
	if r.MaxInFlight <= 0 {
		r.MaxInFlight = 64
	}
	if r.MaxDepth <= 0 {
		r.MaxDepth = 32
	}
	if r.MaxNodes <= 0 {
		r.MaxNodes = 20000
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = DefaultHTTPAddr
	}
	if cfg.Scheduler.StatsReport == "" {
		cfg.Scheduler.StatsReport = "@every 6h"
	}
	if cfg.Scheduler.CacheSweep == "" {
		cfg.Scheduler.CacheSweep = "@every 10m"
	}
	if cfg.Discord.Intents == "" {
		cfg.Discord.Intents = "all"
	}
}
