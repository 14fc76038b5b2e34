package config

import (
	"os"
	"strings"
)

// LookupEnv is swapped in tests.
var LookupEnv = os.LookupEnv

// ApplyEnv overlays deployment environment variables onto cfg.
//
//	DISCORD_BOT_TOKEN             discord.token
//	DISCORD_APPLICATION_ID        discord.application_id
//	DISCORD_DEVELOPMENT_GUILD_ID  discord.development_guild_id
//	DATABASE_URL                  storage.dsn (driver defaults to postgres)
//	WEB_API_PORT                  http.addr port
//	ENVIRONMENT                   appended to relay.secrets
func ApplyEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	if v, ok := lookup("DISCORD_BOT_TOKEN"); ok {
		cfg.Discord.Token = v
	}
	if v, ok := lookup("DISCORD_APPLICATION_ID"); ok {
		cfg.Discord.ApplicationID = v
	}
	if v, ok := lookup("DISCORD_DEVELOPMENT_GUILD_ID"); ok {
		cfg.Discord.DevelopmentGuildID = v
	}
	if v, ok := lookup("DATABASE_URL"); ok {
		if cfg.Storage == nil {
			cfg.Storage = &StorageConfig{Driver: "postgres"}
		}
		cfg.Storage.DSN = v
	}
	if v, ok := lookup("WEB_API_PORT"); ok {
		host := ""
		if i := strings.LastIndex(cfg.HTTP.Addr, ":"); i > 0 {
			host = cfg.HTTP.Addr[:i]
		}
		cfg.HTTP.Addr = host + ":" + strings.TrimPrefix(v, ":")
	}
	if v, ok := lookup("ENVIRONMENT"); ok {
		found := false
		for _, s := range cfg.Relay.Secrets {
			if s == v {
				found = true
				break
			}
		}
		if !found {
			cfg.Relay.Secrets = append(cfg.Relay.Secrets, v)
		}
	}
}

func lookup(key string) (string, bool) {
	v, ok := LookupEnv(key)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
