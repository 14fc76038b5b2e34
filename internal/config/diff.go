package config

import (
	"reflect"
	"slices"
	"sort"
	"strings"

	logx "bigbrother/pkg/logx"
)

// Sections whose changes only take effect after a restart.
var restartSections = map[string]bool{"discord": true, "storage": true, "http": true}

// ChangeSummary describes a config reload.
type ChangeSummary struct {
	Changed         []string
	RestartRequired []string
	Attrs           []logx.Field // safe to log, never includes secrets
}

// SummarizeConfigChange compares two configs section by section.
func SummarizeConfigChange(oldCfg, newCfg *Config) ChangeSummary {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var out ChangeSummary
	mark := func(section string, attrs ...logx.Field) {
		out.Changed = append(out.Changed, section)
		if restartSections[section] {
			out.RestartRequired = append(out.RestartRequired, section)
		}
		out.Attrs = append(out.Attrs, attrs...)
	}

	// Discord (never log token)
	od, nd := oldCfg.Discord, newCfg.Discord
	if od.Token != nd.Token || od.ApplicationID != nd.ApplicationID ||
		od.DevelopmentGuildID != nd.DevelopmentGuildID || od.Intents != nd.Intents {
		mark("discord",
			logx.Bool("discord.token_changed", od.Token != nd.Token),
			logx.String("discord.application_id", nd.ApplicationID),
			logx.String("discord.intents", nd.Intents),
		)
	}

	// Logging (never log telegram token)
	ol, nl := oldCfg.Logging, newCfg.Logging
	olt, nlt := ol.Telegram, nl.Telegram
	olt.Token, nlt.Token = "", ""
	if ol.Level != nl.Level || ol.Console != nl.Console || ol.File != nl.File || olt != nlt ||
		ol.Telegram.Token != nl.Telegram.Token {
		mark("logging",
			logx.String("logx.level", nl.Level),
			logx.Bool("logx.console", nl.Console),
			logx.Bool("logx.file_enabled", nl.File.Enabled),
			logx.Bool("logx.telegram_enabled", nl.Telegram.Enabled),
		)
	}

	// Storage (never log dsn). Nil means memory.
	oldS, newS := derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)
	if oldS != newS {
		mark("storage",
			logx.String("storage.driver", newS.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(newS.Path) != ""),
			logx.Bool("storage.dsn_set", strings.TrimSpace(newS.DSN) != ""),
		)
	}

	// Relay (never log secret values)
	or, nr := oldCfg.Relay, newCfg.Relay
	if !reflect.DeepEqual(or, nr) {
		mark("relay",
			logx.String("relay.provisioning", nr.Provisioning),
			logx.Int("relay.inline_limit", nr.InlineLimit),
			logx.Int("relay.secret_count", len(nr.Secrets)),
			logx.Bool("relay.secrets_changed", !slices.Equal(or.Secrets, nr.Secrets)),
			logx.Int("relay.excluded_events", len(nr.ExcludeEvents)),
		)
	}

	if oldCfg.HTTP != newCfg.HTTP {
		mark("http",
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", newCfg.HTTP.Addr),
			logx.Bool("http.pprof", newCfg.HTTP.Pprof),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		mark("scheduler",
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.stats_report", newCfg.Scheduler.StatsReport),
			logx.String("scheduler.cache_sweep", newCfg.Scheduler.CacheSweep),
		)
	}

	sort.Strings(out.Changed)
	sort.Strings(out.RestartRequired)
	return out
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{Driver: "memory"}
	}
	return *s
}
