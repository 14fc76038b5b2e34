package discord

import (
	"encoding/json"
	"strings"
)

// skipped dispatch types are never relayed: interactions and new messages
// would echo the bot's own traffic, the rest carry no guild.
var skipped = map[string]bool{
	"READY":              true,
	"RESUMED":            true,
	"INTERACTION_CREATE": true,
	"MESSAGE_CREATE":     true,
	"USER_UPDATE":        true,
	"PRESENCES_REPLACE":  true,
}

// guildKeyed are dispatch types whose payload id is the guild id itself.
var guildKeyed = map[string]bool{
	"GUILD_CREATE": true,
	"GUILD_UPDATE": true,
	"GUILD_DELETE": true,
}

// EventLabel turns a dispatch name into a camelCase label: GUILD_UPDATE -> guildUpdate.
func EventLabel(dispatch string) string {
	parts := strings.Split(strings.ToLower(dispatch), "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i > 0 {
			b.WriteString(strings.ToUpper(p[:1]))
			b.WriteString(p[1:])
			continue
		}
		b.WriteString(p)
	}
	return b.String()
}

// guildIDOf extracts the guild id of a raw dispatch payload, "" when absent.
func guildIDOf(dispatch string, raw json.RawMessage) string {
	var probe struct {
		ID      string `json:"id"`
		GuildID string `json:"guild_id"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &probe) != nil {
		return ""
	}
	if guildKeyed[dispatch] {
		return probe.ID
	}
	return probe.GuildID
}
