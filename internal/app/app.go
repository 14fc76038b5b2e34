package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bigbrother/internal/channels"
	"bigbrother/internal/commands"
	"bigbrother/internal/config"
	"bigbrother/internal/eventbus"
	"bigbrother/internal/httpapi"
	"bigbrother/internal/observability/metrics"
	"bigbrother/internal/perms"
	"bigbrother/internal/relay"
	"bigbrother/internal/runtime/supervisor"
	"bigbrother/internal/scheduler"
	"bigbrother/internal/stats"
	"bigbrother/internal/storage"
	"bigbrother/internal/transport"
	"bigbrother/internal/transport/discord"
	"bigbrother/internal/transport/telegram"
	logx "bigbrother/pkg/logx"
)

const commandTimeout = 10 * time.Second

type Options struct {
	// Version is shown in the bot presence and the ready report.
	Version string
	// ReadyReport DMs the application owner on every gateway READY.
	ReadyReport bool
}

type App struct {
	opts Options
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	root  logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	discord     *discord.Adapter
	resolver    *channels.Resolver
	provisioner *channels.Provisioner
	counters    stats.Counters
	pipeline    *relay.Pipeline
	dispatcher  *relay.Dispatcher
	handlers    *commands.Handlers
	router      *commands.Router

	metrics *metrics.Collector
	http    *httpapi.Service
	sched   *scheduler.Service

	operatorToken string
}

func New(cfgPath string, opts Options) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	sender, err := operatorSender(cfg)
	if err != nil {
		return nil, err
	}
	logSvc, root := logx.New(mapLogging(cfg), sender)
	log := root.With(logx.String("comp", "app"))

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, root)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	ad, err := discord.New(discord.Config{
		Token:         cfg.Discord.Token,
		ApplicationID: cfg.Discord.ApplicationID,
		Intents:       cfg.Discord.Intents,
		Version:       opts.Version,
		ReadyReport:   opts.ReadyReport,
	}, root)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	chLog := root.With(logx.String("comp", "channels"))
	resolver := &channels.Resolver{
		Repo:      channels.Repository{Store: store},
		Directory: ad,
		Bus:       bus,
		Log:       chLog,
		TTL:       mapResolverTTL(cfg),
	}
	prov := &channels.Provisioner{
		Resolver:  resolver,
		Directory: ad,
		Sender:    ad,
		Identity:  ad.Identity,
		Bus:       bus,
		Log:       chLog,
		Name:      cfg.Relay.ChannelName,
		Topic:     cfg.Relay.ChannelTopic,
	}
	preflight := perms.Preflight{Source: ad}
	counters := stats.Counters{Store: store}

	relaySettings, err := mapRelaySettings(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	pipeline := relay.New(relay.Deps{
		Resolver:  resolver,
		Preflight: preflight,
		Sender:    ad,
		Stats:     counters,
		Bus:       bus,
		Log:       root,
	}, relaySettings)

	handlers := &commands.Handlers{
		Resolver:    resolver,
		Provisioner: prov,
		Directory:   ad,
		Preflight:   preflight,
		Gateway:     ad,
		Stats:       counters,
		Timeout:     commandTimeout,
	}
	handlers.SetPolicy(commands.Policy{Provisioning: cfg.Relay.Provisioning, ChannelName: cfg.Relay.ChannelName})
	router := commands.NewRouter(root, bus, cfg.Discord.DevelopmentGuildID != "", handlers.Commands()...)

	httpCfg, err := mapHTTPConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &App{
		opts:          opts,
		cfgm:          cfgm,
		log:           log,
		root:          root,
		logs:          logSvc,
		bus:           bus,
		store:         store,
		discord:       ad,
		resolver:      resolver,
		provisioner:   prov,
		counters:      counters,
		pipeline:      pipeline,
		handlers:      handlers,
		router:        router,
		metrics:       metrics.New(),
		sched:         scheduler.New(mapSchedulerConfig(cfg), root),
		operatorToken: cfg.Logging.Telegram.Token,
	}
	a.http = httpapi.New(httpCfg, httpapi.Sources{
		Stats:   a.collectStats,
		Health:  a.health,
		Metrics: a.metrics.Handler(),
	}, root)
	return a, nil
}

// operatorSender returns nil (not a typed nil) when the Telegram sink is off.
func operatorSender(cfg *config.Config) (logx.Sender, error) {
	t := cfg.Logging.Telegram
	if !t.Enabled || strings.TrimSpace(t.Token) == "" {
		return nil, nil
	}
	s, err := telegram.NewSender(t.Token)
	if err != nil {
		return nil, fmt.Errorf("logging.telegram: %w", err)
	}
	return s, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	cfg := a.cfgm.Get()

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.root.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		_, err := mapHTTPConfig(cfg)
		return err
	})

	a.dispatcher = relay.NewDispatcher(a.sup, a.pipeline, cfg.Relay.MaxInFlight, a.root)
	a.discord.OnEvent(func(ctx context.Context, eventType string, guild transport.Guild, args []any) {
		a.dispatcher.Dispatch(ctx, relay.NewEvent(eventType, guild, args...))
	})
	a.discord.OnInteraction(a.router.Handle)

	a.sup.Go0("metrics.collect", func(c context.Context) { a.metrics.Run(c, a.bus) })
	a.sup.Go0("eventbus.log", a.logEvents)

	if err := a.discord.Open(a.sup.Context()); err != nil {
		a.sup.Cancel()
		return err
	}

	a.http.Start(a.sup.Context())
	if err := a.sched.Start(a.sup.Context(), a.jobs(cfg)...); err != nil {
		a.sup.Cancel()
		return err
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) { a.reloadLoop(c, sub) })
	a.sup.Go("config.watch", func(c context.Context) error { return a.cfgm.Watch(c) })

	a.log.Info("app started",
		logx.String("version", a.opts.Version),
		logx.String("provisioning", cfg.Relay.Provisioning),
		logx.Int("max_in_flight", cfg.Relay.MaxInFlight),
	)
	return nil
}

// logEvents mirrors pipeline outcomes at debug level.
func (a *App) logEvents(c context.Context) {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-c.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

func (a *App) collectStats(ctx context.Context) (stats.Snapshot, error) {
	return a.counters.Collect(ctx, a.discord)
}

func (a *App) health() any {
	out := map[string]any{}
	if a.sup != nil {
		out["app"] = a.sup.Snapshot()
	}
	if a.dispatcher != nil {
		out["relay"] = map[string]any{
			"in_flight": a.dispatcher.InFlight(),
			"dropped":   a.dispatcher.Dropped(),
		}
	}
	out["scheduler"] = a.sched.Entries()
	out["gateway"] = map[string]any{"heartbeat_ms": a.discord.HeartbeatLatency().Milliseconds()}
	return out
}

func (a *App) jobs(cfg *config.Config) []scheduler.Job {
	return []scheduler.Job{
		{
			Name:    "stats.report",
			Spec:    cfg.Scheduler.StatsReport,
			Timeout: 30 * time.Second,
			Run: func(ctx context.Context) error {
				snap, err := a.collectStats(ctx)
				if err != nil {
					return err
				}
				a.log.Info("stats report",
					logx.Int("guilds", snap.Guilds),
					logx.Int("channels", snap.Channels),
					logx.Int("users", snap.Users),
					logx.Int64("events_logged", snap.GlobalEventsLogged),
				)
				return nil
			},
		},
		{
			Name: "resolver.sweep",
			Spec: cfg.Scheduler.CacheSweep,
			Run: func(ctx context.Context) error {
				if n := a.resolver.Sweep(); n > 0 {
					a.log.Debug("resolver cache swept", logx.Int("evicted", n))
				}
				return nil
			},
		},
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Stop the event source first and let in-flight deliveries finish before
	// canceling the run context they use.
	a.step(ctx, "discord", 2*time.Second, func(c context.Context) error { return a.discord.Close() })
	a.step(ctx, "relay.drain", 5*time.Second, func(c context.Context) error { return a.drain(c) })

	a.sup.Cancel()

	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "http", 2*time.Second, func(c context.Context) error { return a.http.Stop(c) })
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.step(ctx, "storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })

	if err := a.sup.Err(); err != nil && !errors.Is(err, context.Canceled) {
		a.log.Warn("stopped after error", logx.Err(err))
	} else {
		a.log.Info("stopped")
	}
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

func (a *App) drain(ctx context.Context) error {
	if a.dispatcher == nil {
		return nil
	}
	t := time.NewTicker(20 * time.Millisecond)
	defer t.Stop()
	for a.dispatcher.InFlight() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%d deliveries still in flight: %w", a.dispatcher.InFlight(), ctx.Err())
		case <-t.C:
		}
	}
	return nil
}

// step runs one shutdown step with an upper bound so one component can't stall the whole stop.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", limit))

	// respect the caller's deadline; never extend it
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < limit {
			limit = rem
		}
	}
	if limit <= 0 {
		a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}
