package discord

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"

	"bigbrother/internal/transport"
)

func TestEventLabel(t *testing.T) {
	tests := map[string]string{
		"GUILD_UPDATE":                     "guildUpdate",
		"MESSAGE_DELETE_BULK":              "messageDeleteBulk",
		"AUTO_MODERATION_ACTION_EXECUTION": "autoModerationActionExecution",
		"TYPING_START":                     "typingStart",
		"READY":                            "ready",
	}
	for in, want := range tests {
		if got := EventLabel(in); got != want {
			t.Fatalf("EventLabel(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestGuildIDOf(t *testing.T) {
	tests := []struct {
		dispatch string
		raw      string
		want     string
	}{
		{"GUILD_UPDATE", `{"id":"g1","name":"x"}`, "g1"},
		{"CHANNEL_CREATE", `{"id":"c1","guild_id":"g2"}`, "g2"},
		{"CHANNEL_CREATE", `{"id":"c1"}`, ""},
		{"MESSAGE_DELETE_BULK", `{"ids":["1"],"guild_id":"g3"}`, "g3"},
		{"X", `[1,2]`, ""},
		{"X", ``, ""},
	}
	for _, tt := range tests {
		if got := guildIDOf(tt.dispatch, json.RawMessage(tt.raw)); got != tt.want {
			t.Fatalf("guildIDOf(%s, %s) = %q, want %q", tt.dispatch, tt.raw, got, tt.want)
		}
	}
}

func TestMapError(t *testing.T) {
	rest := func(code, status int) error {
		return &discordgo.RESTError{
			Response: &http.Response{StatusCode: status},
			Message:  &discordgo.APIErrorMessage{Code: code},
		}
	}
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unknown channel", rest(discordgo.ErrCodeUnknownChannel, 404), transport.ErrChannelNotFound},
		{"missing access", rest(discordgo.ErrCodeMissingAccess, 403), transport.ErrChannelNotFound},
		{"missing permissions", rest(discordgo.ErrCodeMissingPermissions, 403), transport.ErrPermission},
		{"bare 403", rest(0, 403), transport.ErrPermission},
		{"server error", rest(0, 502), transport.ErrTransport},
		{"network", errors.New("dial tcp: timeout"), transport.ErrTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapError(tt.err); !errors.Is(got, tt.want) {
				t.Fatalf("mapError = %v, want %v", got, tt.want)
			}
		})
	}
	if mapError(nil) != nil {
		t.Fatal("mapError(nil) != nil")
	}
}

func TestChannelPermissions(t *testing.T) {
	const view, send, attach = discordgo.PermissionViewChannel, discordgo.PermissionSendMessages, discordgo.PermissionAttachFiles
	g := &discordgo.Guild{ID: "g", OwnerID: "owner", Roles: []*discordgo.Role{
		{ID: "g", Permissions: view | send},
		{ID: "bots", Permissions: attach},
		{ID: "admins", Permissions: discordgo.PermissionAdministrator},
	}}
	bot := &discordgo.Member{User: &discordgo.User{ID: "bot"}, Roles: []string{"bots"}}

	tests := []struct {
		name       string
		member     *discordgo.Member
		overwrites []*discordgo.PermissionOverwrite
		want, not  int64
	}{
		{"base", bot, nil, view | send | attach, 0},
		{"everyone deny", bot, []*discordgo.PermissionOverwrite{{ID: "g", Type: discordgo.PermissionOverwriteTypeRole, Deny: view}}, send | attach, view},
		{"member allow wins", bot, []*discordgo.PermissionOverwrite{
			{ID: "g", Type: discordgo.PermissionOverwriteTypeRole, Deny: view},
			{ID: "bot", Type: discordgo.PermissionOverwriteTypeMember, Allow: view},
		}, view | send | attach, 0},
		{"role deny", bot, []*discordgo.PermissionOverwrite{{ID: "bots", Type: discordgo.PermissionOverwriteTypeRole, Deny: attach}}, view | send, attach},
		{"admin ignores overwrites", &discordgo.Member{User: &discordgo.User{ID: "x"}, Roles: []string{"admins"}},
			[]*discordgo.PermissionOverwrite{{ID: "g", Type: discordgo.PermissionOverwriteTypeRole, Deny: view}}, discordgo.PermissionAll, 0},
		{"owner", &discordgo.Member{User: &discordgo.User{ID: "owner"}}, nil, discordgo.PermissionAll, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := channelPermissions(g, tt.member, tt.overwrites)
			if got&tt.want != tt.want {
				t.Fatalf("perms %b missing %b", got, tt.want)
			}
			if tt.not != 0 && got&tt.not != 0 {
				t.Fatalf("perms %b unexpectedly has %b", got, tt.not)
			}
		})
	}
}

func TestToCommands(t *testing.T) {
	cmds := toCommands([]transport.CommandSpec{{
		Name:                     "setup",
		Description:              "Sets up the bot for this server.",
		DefaultMemberPermissions: transport.PermissionBits(discordgo.PermissionAdministrator),
		Options:                  []transport.CommandOption{{Kind: transport.OptionChannel, Name: "channel", Description: "d"}},
	}, {Name: "ping", Description: "Replies with Pong!"}})

	if len(cmds) != 2 {
		t.Fatalf("commands = %d, want 2", len(cmds))
	}
	setup := cmds[0]
	if setup.DefaultMemberPermissions == nil || *setup.DefaultMemberPermissions != discordgo.PermissionAdministrator {
		t.Fatalf("default permissions = %v", setup.DefaultMemberPermissions)
	}
	if len(setup.Options) != 1 || setup.Options[0].Type != discordgo.ApplicationCommandOptionChannel {
		t.Fatalf("options = %+v", setup.Options)
	}
	if cmds[1].DefaultMemberPermissions != nil {
		t.Fatal("ping should be visible to everyone")
	}
}

func TestReadyMessage(t *testing.T) {
	got, err := readyMessage(readyReport{Version: "1.2.3", Guilds: 2, Users: 10})
	if err != nil {
		t.Fatal(err)
	}
	want := "# Big Brother Bot Ready Event\n```json\n{\n  \"version\": \"1.2.3\",\n  \"guilds\": 2,\n  \"users\": 10\n}\n```"
	if got != want {
		t.Fatalf("readyMessage =\n%s\nwant\n%s", got, want)
	}
}

func TestPartialMessageStub(t *testing.T) {
	p := &partialMessage{guildID: "g", channelID: "c", messageID: "m"}
	var f transport.Fetchable = p
	stub, _ := f.Stub().(map[string]any)
	if !f.Partial() || stub["partial"] != true || stub["id"] != "m" {
		t.Fatalf("stub = %v", stub)
	}
}
