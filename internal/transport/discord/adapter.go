// Package discord adapts a discordgo gateway session to the transport
// interfaces: event source, channel directory, sender, permission source and
// slash-command interactions.
package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"bigbrother/internal/transport"
	logx "bigbrother/pkg/logx"
)

type Config struct {
	Token         string
	ApplicationID string
	// Intents is "all" or "unprivileged".
	Intents string
	// Version is shown in the presence and the ready report.
	Version string
	// ReadyReport DMs the application owner on every READY.
	ReadyReport bool
}

// EventFunc receives every relayable dispatch.
type EventFunc func(ctx context.Context, eventType string, guild transport.Guild, args []any)

// InteractionFunc handles a slash command; ok=false means no reply.
type InteractionFunc func(ctx context.Context, in *transport.Interaction) (reply transport.Reply, ok bool)

type Adapter struct {
	cfg Config
	log logx.Logger
	s   *discordgo.Session

	selfID atomic.Value // string

	mu            sync.Mutex
	ctx           context.Context
	onEvent       EventFunc
	onInteraction InteractionFunc
	removers      []func()
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("discord: token is required")
	}
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: session: %w", err)
	}
	s.Identify.Intents = intents(cfg.Intents)
	s.StateEnabled = true
	s.State.MaxMessageCount = 200
	s.ShouldReconnectOnError = true
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log.With(logx.String("comp", "discord")), s: s, ctx: context.Background()}
	a.selfID.Store("")
	return a, nil
}

func intents(mode string) discordgo.Intent {
	if strings.EqualFold(strings.TrimSpace(mode), "unprivileged") {
		return discordgo.IntentsAllWithoutPrivileged
	}
	return discordgo.IntentsAll
}

// Session exposes the underlying session for one-off tooling (register-commands).
func (a *Adapter) Session() *discordgo.Session { return a.s }

// OnEvent and OnInteraction must be set before Open.
func (a *Adapter) OnEvent(fn EventFunc)             { a.onEvent = fn }
func (a *Adapter) OnInteraction(fn InteractionFunc) { a.onInteraction = fn }

// Open connects the gateway. ctx is the parent of every handler context and
// should live until Close.
func (a *Adapter) Open(ctx context.Context) error {
	a.mu.Lock()
	a.ctx = ctx
	a.removers = append(a.removers,
		a.s.AddHandler(a.handleReady),
		a.s.AddHandler(a.handleRaw),
		a.s.AddHandler(a.handleInteraction),
	)
	a.mu.Unlock()

	if err := a.s.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	a.log.Info("gateway connected", logx.String("intents", a.cfg.Intents))
	return nil
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	for _, rm := range a.removers {
		rm()
	}
	a.removers = nil
	a.mu.Unlock()
	return a.s.Close()
}

func (a *Adapter) baseCtx() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ctx
}

func (a *Adapter) Identity() transport.Identity {
	id, _ := a.selfID.Load().(string)
	if id == "" && a.s.State != nil && a.s.State.User != nil {
		id = a.s.State.User.ID
	}
	return transport.Identity{UserID: id, ApplicationID: a.cfg.ApplicationID}
}

func (a *Adapter) Stats() transport.GatewayStats {
	st := a.s.State
	if st == nil {
		return transport.GatewayStats{}
	}
	st.RLock()
	defer st.RUnlock()
	var out transport.GatewayStats
	out.Guilds = len(st.Guilds)
	for _, g := range st.Guilds {
		out.Channels += len(g.Channels) + len(g.Threads)
		out.Users += g.MemberCount
	}
	return out
}

func (a *Adapter) HeartbeatLatency() time.Duration { return a.s.HeartbeatLatency() }

// guild returns what the state knows about guildID.
func (a *Adapter) guild(guildID string) transport.Guild {
	g := transport.Guild{ID: guildID}
	if st := a.s.State; st != nil {
		if sg, err := st.Guild(guildID); err == nil {
			g.Name, g.MemberCount = sg.Name, sg.MemberCount
		}
	}
	return g
}
