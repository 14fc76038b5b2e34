// Package scheduler runs periodic maintenance jobs on robfig/cron.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"bigbrother/internal/config"
	logx "bigbrother/pkg/logx"
)

type Config struct {
	Enabled  bool
	Timezone string
}

// Job is one named periodic task. An empty Spec disables it.
type Job struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

type Service struct {
	mu   sync.Mutex
	log  logx.Logger
	cfg  Config
	jobs []Job

	ctx context.Context
	c   *cron.Cron
	ids map[string]cron.EntryID
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log.With(logx.String("comp", "scheduler")), ids: map[string]cron.EntryID{}}
}

// Start begins triggering. Job contexts derive from ctx.
func (s *Service) Start(ctx context.Context, jobs ...Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.ctx = ctx
	s.jobs = jobs
	if !s.cfg.Enabled {
		s.log.Debug("scheduler disabled")
		return nil
	}
	return s.startLocked()
}

func (s *Service) startLocked() error {
	loc, err := loadLocation(s.cfg.Timezone)
	if err != nil {
		return err
	}
	cl := cronLogger{log: s.log}
	s.c = cron.New(
		cron.WithParser(config.CronParser),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		cron.WithLogger(cl),
	)
	s.ids = map[string]cron.EntryID{}
	for _, j := range s.jobs {
		if err := s.addLocked(j); err != nil {
			s.c = nil
			return err
		}
	}
	s.c.Start()
	s.log.Info("service started", logx.String("tz", loc.String()), logx.Int("jobs", len(s.ids)))
	return nil
}

func (s *Service) addLocked(j Job) error {
	spec := strings.TrimSpace(j.Spec)
	if spec == "" || j.Run == nil {
		return nil
	}
	ctx := s.ctx
	id, err := s.c.AddFunc(spec, func() {
		jctx := ctx
		cancel := func() {}
		if j.Timeout > 0 {
			jctx, cancel = context.WithTimeout(ctx, j.Timeout)
		}
		defer cancel()
		start := time.Now()
		if err := j.Run(jctx); err != nil {
			s.log.Warn("job failed", logx.String("job", j.Name), logx.Err(err))
			return
		}
		s.log.Debug("job done", logx.String("job", j.Name), logx.Duration("took", time.Since(start)))
	})
	if err != nil {
		return fmt.Errorf("scheduler: job %s: %w", j.Name, err)
	}
	s.ids[j.Name] = id
	return nil
}

// Apply swaps config and jobs, restarting cron when anything is scheduled.
func (s *Service) Apply(cfg Config, jobs ...Job) error {
	s.mu.Lock()
	old := s.c
	s.c = nil
	s.cfg = cfg
	s.jobs = jobs
	started := s.ctx != nil
	var err error
	if started && cfg.Enabled {
		err = s.startLocked()
	}
	s.mu.Unlock()

	if old != nil {
		<-old.Stop().Done()
	}
	return err
}

// Entries lists scheduled job names with their next run, for diagnostics.
func (s *Service) Entries() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]time.Time{}
	if s.c == nil {
		return out
	}
	for name, id := range s.ids {
		out[name] = s.c.Entry(id).Next
	}
	return out
}

// Stop stops triggering and waits for running jobs within ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("service stopped")
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler: timezone %q: %w", tz, err)
	}
	return loc, nil
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Trace("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
