// Package sweeper clears sessions that have been idle longer than a
// configured TTL on a cron schedule.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/contextcore/contextd/internal/core"
	"github.com/contextcore/contextd/internal/memory"
)

func init() {
	core.RegisterModule(&Sweeper{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Sweeper)(nil)
	_ core.Provisioner  = (*Sweeper)(nil)
	_ core.Validator    = (*Sweeper)(nil)
	_ core.Starter      = (*Sweeper)(nil)
	_ core.Stopper      = (*Sweeper)(nil)
)

const (
	defaultSchedule = "*/5 * * * *"
	defaultTTL      = 24 * time.Hour
)

// Sweeper is the idle-session cleanup module.
type Sweeper struct {
	config Config
	appCtx *core.AppContext
	logger *slog.Logger

	store  *memory.ContextStore
	cron   *cron.Cron
	runMu  sync.Mutex
	cancel context.CancelFunc
}

// Config holds the sweeper configuration.
type Config struct {
	// Schedule is a 5-field cron expression. Defaults to every 5 minutes.
	Schedule string `yaml:"schedule"`

	// TTL is the idle duration after which a session is cleared.
	// Defaults to 24h.
	TTL time.Duration `yaml:"ttl"`
}

func (c *Config) defaults() {
	if c.Schedule == "" {
		c.Schedule = defaultSchedule
	}
	if c.TTL <= 0 {
		c.TTL = defaultTTL
	}
}

// ModuleInfo implements core.Module.
func (s *Sweeper) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "sweeper.sessions",
		New: func() core.Module { return &Sweeper{} },
	}
}

// Configure implements core.Configurable.
func (s *Sweeper) Configure(node *yaml.Node) error {
	if err := node.Decode(&s.config); err != nil {
		return fmt.Errorf("sweeper: decode config: %w", err)
	}
	s.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (s *Sweeper) Provision(ctx *core.AppContext) error {
	s.appCtx = ctx
	s.logger = ctx.Logger
	s.config.defaults()
	return nil
}

// Validate implements core.Validator.
func (s *Sweeper) Validate() error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(s.config.Schedule); err != nil {
		return fmt.Errorf("sweeper: invalid schedule %q: %w", s.config.Schedule, err)
	}
	return nil
}

// Start implements core.Starter.
func (s *Sweeper) Start() error {
	svc, ok := s.appCtx.Service("context.store")
	if !ok {
		return errors.New("sweeper: context.store service not registered, is context.engine configured?")
	}
	store, ok := svc.(*memory.ContextStore)
	if !ok {
		return fmt.Errorf("sweeper: context.store has unexpected type %T", svc)
	}
	s.store = store

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	s.cron = cron.New(cron.WithParser(parser))

	_, err := s.cron.AddFunc(s.config.Schedule, func() {
		// TryLock is atomic; if the previous tick is still running,
		// skip this one.
		if !s.runMu.TryLock() {
			s.logger.Warn("sweeper: previous sweep still running, skipping tick")
			return
		}
		defer s.runMu.Unlock()

		if err := s.sweep(ctx); err != nil {
			s.logger.Error("sweeper: sweep failed", "error", err)
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("sweeper: add cron job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("sweeper started", "schedule", s.config.Schedule, "ttl", s.config.TTL)
	return nil
}

// Stop implements core.Stopper, waiting for an in-flight sweep.
func (s *Sweeper) Stop(_ context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.logger.Info("sweeper stopped")
	}
	return nil
}

// sweep clears every session idle longer than the TTL. Errors on individual
// sessions are logged and do not stop the pass.
func (s *Sweeper) sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-s.config.TTL)
	ids, err := s.store.Sessions().IdleBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("listing idle sessions: %w", err)
	}

	var cleared int64
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := s.store.Clear(ctx, id)
		if err != nil {
			s.logger.Error("sweeper: clear failed", "session_id", id, "error", err)
			continue
		}
		cleared += n
	}
	if len(ids) > 0 {
		s.logger.Info("sweeper: cleared idle sessions",
			"sessions", len(ids), "messages", cleared)
	}
	return nil
}
