package commands

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"bigbrother/internal/channels"
	"bigbrother/internal/eventbus"
	"bigbrother/internal/perms"
	"bigbrother/internal/stats"
	"bigbrother/internal/storage"
	"bigbrother/internal/transport"
	"bigbrother/pkg/logx"
)

type directory struct {
	channels map[string]transport.Channel
	created  int
}

func (d *directory) Channel(ctx context.Context, guildID, channelID string) (transport.Channel, error) {
	ch, ok := d.channels[channelID]
	if !ok {
		return transport.Channel{}, &transport.SendError{Kind: transport.ErrChannelNotFound}
	}
	return ch, nil
}

func (d *directory) FindChannelByName(ctx context.Context, guildID, name string) (transport.Channel, bool, error) {
	for _, ch := range d.channels {
		if ch.Name == name {
			return ch, true, nil
		}
	}
	return transport.Channel{}, false, nil
}

func (d *directory) CreatePrivateChannel(ctx context.Context, guildID string, spec transport.ChannelSpec) (transport.Channel, error) {
	d.created++
	ch := transport.Channel{ID: "new", GuildID: guildID, Name: spec.Name}
	d.channels[ch.ID] = ch
	return ch, nil
}

type sender struct{}

func (sender) Send(ctx context.Context, channelID string, msg transport.OutboundMessage) (transport.MessageRef, error) {
	return transport.MessageRef{}, nil
}

type permSource struct {
	channel, guild transport.PermissionBits
}

func (p permSource) ChannelPermissions(ctx context.Context, guildID, channelID string) (transport.PermissionBits, error) {
	return p.channel, nil
}

func (p permSource) GuildPermissions(ctx context.Context, guildID string) (transport.PermissionBits, error) {
	return p.guild, nil
}

type gateway struct{}

func (gateway) Identity() transport.Identity { return transport.Identity{UserID: "bot"} }

func (gateway) Stats() transport.GatewayStats {
	return transport.GatewayStats{Guilds: 1, Channels: 2, Users: 3}
}

func (gateway) HeartbeatLatency() time.Duration { return 42 * time.Millisecond }

type env struct {
	store storage.Store
	dir   *directory
	h     *Handlers
}

func newEnv(src permSource) *env {
	store := storage.NewMemory()
	dir := &directory{channels: map[string]transport.Channel{
		"existing": {ID: "existing", GuildID: "g1", Name: "bb-logs"},
	}}
	res := &channels.Resolver{Repo: channels.Repository{Store: store}, Directory: dir}
	h := &Handlers{
		Resolver:    res,
		Provisioner: &channels.Provisioner{Resolver: res, Directory: dir, Sender: sender{}, Name: "bb-logs"},
		Directory:   dir,
		Preflight:   perms.Preflight{Source: src},
		Gateway:     gateway{},
		Stats:       stats.Counters{Store: store},
	}
	return &env{store: store, dir: dir, h: h}
}

const channelOK = perms.BitViewChannel | perms.BitSendMessages | perms.BitAttachFiles

func admin(opts map[string]string) *transport.Interaction {
	return &transport.Interaction{Command: "setup", GuildID: "g1", MemberPermissions: perms.BitAdministrator, Options: opts}
}

func TestSetup(t *testing.T) {
	tests := []struct {
		name    string
		policy  string
		guild   transport.PermissionBits
		in      *transport.Interaction
		want    string
		created int
	}{
		{"not admin", PolicyAuto, perms.BitManageChannels, &transport.Interaction{GuildID: "g1"}, "You must be an administrator", 0},
		{"auto creates", PolicyAuto, perms.BitManageChannels, admin(nil), "has been enabled for this server. The logs channel is <#new>.", 1},
		{"auto without manage channels", PolicyAuto, 0, admin(nil), "I don't have permission to create a channel!", 0},
		{"explicit channel", PolicyAuto, 0, admin(map[string]string{"channel": "existing"}), "The logs channel is <#existing>.", 0},
		{"unknown explicit channel", PolicyAuto, 0, admin(map[string]string{"channel": "nope"}), "I can't see that channel", 0},
		{"manual adopts by name", PolicyManual, perms.BitManageChannels, admin(nil), "The logs channel is <#existing>.", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(permSource{channel: channelOK, guild: tt.guild})
			e.h.SetPolicy(Policy{Provisioning: tt.policy, ChannelName: "bb-logs"})
			r, err := e.h.Setup(context.Background(), tt.in)
			if err != nil {
				t.Fatalf("Setup: %v", err)
			}
			if !r.Ephemeral || !strings.Contains(r.Content, tt.want) {
				t.Fatalf("reply = %+v, want ephemeral containing %q", r, tt.want)
			}
			if e.dir.created != tt.created {
				t.Fatalf("created = %d, want %d", e.dir.created, tt.created)
			}
		})
	}
}

func TestSetupManualWithoutChannel(t *testing.T) {
	e := newEnv(permSource{channel: channelOK})
	delete(e.dir.channels, "existing")
	e.h.SetPolicy(Policy{Provisioning: PolicyManual, ChannelName: "bb-logs"})
	r, _ := e.h.Setup(context.Background(), admin(nil))
	if !strings.Contains(r.Content, "Please create a channel named `bb-logs`") {
		t.Fatalf("reply = %q", r.Content)
	}
}

func TestSetupAlreadyEnabled(t *testing.T) {
	e := newEnv(permSource{channel: channelOK, guild: perms.BitManageChannels})
	ctx := context.Background()
	_, _ = e.h.Setup(ctx, admin(nil))
	r, _ := e.h.Setup(ctx, admin(nil))
	if !strings.Contains(r.Content, "already enabled") || !strings.Contains(r.Content, "<#new>") {
		t.Fatalf("reply = %q", r.Content)
	}
	if e.dir.created != 1 {
		t.Fatalf("created = %d, want 1", e.dir.created)
	}
}

func TestHelp(t *testing.T) {
	tests := []struct {
		name   string
		mapped bool
		src    permSource
		want   string
	}{
		{"no channel", false, permSource{}, "Run `/setup`"},
		{"missing required", true, permSource{channel: perms.BitViewChannel}, "`Send Messages`, `Attach Files`"},
		{"missing optional", true, permSource{channel: channelOK, guild: perms.BitManageGuild}, "`Manage Channels` (needed to receive invite events"},
		{"optional names events", true, permSource{channel: channelOK}, "`Manage Server` (needed to receive auto moderation events) affecting `autoModeration*`"},
		{"healthy", true, permSource{channel: channelOK, guild: perms.BitManageGuild | perms.BitManageChannels}, "Everything looks good"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(tt.src)
			if tt.mapped {
				_ = channels.Repository{Store: e.store}.Set(context.Background(), "g1", "existing")
			}
			r, err := e.h.Help(context.Background(), &transport.Interaction{Command: "help", GuildID: "g1"})
			if err != nil {
				t.Fatalf("Help: %v", err)
			}
			if !strings.Contains(r.Content, tt.want) {
				t.Fatalf("reply = %q, want %q", r.Content, tt.want)
			}
		})
	}
}

func TestStatAndPing(t *testing.T) {
	e := newEnv(permSource{})
	ctx := context.Background()
	_ = e.h.Stats.Increment(ctx, stats.KeyEventsLogged, 5)

	r, err := e.h.Stat(ctx, &transport.Interaction{})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"# Big Brother Bot Stats 📊", `"globalEventsLogged": 5`, `"users": 3`} {
		if !strings.Contains(r.Content, want) {
			t.Fatalf("stats reply %q missing %q", r.Content, want)
		}
	}

	created := time.Unix(100, 0)
	e.h.now = func() time.Time { return created.Add(25 * time.Millisecond) }
	r, _ = e.h.Ping(ctx, &transport.Interaction{CreatedAt: created})
	if r.Content != "Pong! Latency: `25ms` (gateway heartbeat: `42ms`)" {
		t.Fatalf("ping = %q", r.Content)
	}
}

func TestRouter(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	boom := Command{Spec: transport.CommandSpec{Name: "boom"}, Handle: func(ctx context.Context, in *transport.Interaction) (transport.Reply, error) {
		return transport.Reply{}, errors.New("kaboom")
	}}
	panics := Command{Spec: transport.CommandSpec{Name: "panics"}, Handle: func(ctx context.Context, in *transport.Interaction) (transport.Reply, error) {
		panic("oops")
	}}
	echo := Command{Spec: transport.CommandSpec{Name: "echo"}, Handle: func(ctx context.Context, in *transport.Interaction) (transport.Reply, error) {
		return transport.Reply{Content: in.Options["text"]}, nil
	}}
	r := NewRouter(logx.Nop(), bus, true, boom, panics, echo)

	tests := []struct {
		cmd    string
		want   transport.Reply
		wantOK bool
	}{
		{"dev-echo", transport.Reply{Content: "hi"}, true},
		{"echo", transport.Reply{Content: "hi"}, true},
		{"boom", ErrorReply, true},
		{"panics", ErrorReply, true},
		{"missing", transport.Reply{}, false},
	}
	for _, tt := range tests {
		got, ok := r.Handle(context.Background(), &transport.Interaction{Command: tt.cmd, Options: map[string]string{"text": "hi"}})
		if ok != tt.wantOK || got != tt.want {
			t.Fatalf("Handle(%s) = %+v %v, want %+v %v", tt.cmd, got, ok, tt.want, tt.wantOK)
		}
	}
	e := <-events
	if d := e.Data.(eventbus.Command); d.Name != "echo" || !d.OK {
		t.Fatalf("first event = %+v", d)
	}
	if n := len(r.Specs()); n != 3 {
		t.Fatalf("specs = %d, want 3", n)
	}
	if got := DevSpecs(r.Specs())[0].Name; got != "dev-boom" {
		t.Fatalf("DevSpecs = %s", got)
	}
}
