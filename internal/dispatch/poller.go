package dispatch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/sekia-ai/mailcmd/internal/registry"
)

// DefaultPollInterval is used when PollerConfig.Interval is not positive.
const DefaultPollInterval = 60 * time.Second

// reloadDebounce collects bursts of file events into one reload.
const reloadDebounce = 500 * time.Millisecond

// Runner runs one cycle.
type Runner interface {
	RunOnce(ctx context.Context) (Report, error)
}

// PollerConfig configures a Poller.
type PollerConfig struct {
	Interval     time.Duration
	ServicesPath string
	Watch        bool
}

// Poller runs a cycle immediately and then on every tick. Each cycle gets a
// fresh Runner built from the registry current at cycle start.
type Poller struct {
	cfg    PollerConfig
	build  func(reg *registry.Registry) Runner
	logger zerolog.Logger

	mu       sync.RWMutex
	registry *registry.Registry

	// Overridable for testing.
	load   func(path string) (*registry.Registry, error)
	verify func(reg *registry.Registry) error
	cycles chan Report
}

// NewPoller creates a Poller. build is called once per cycle. verify, when
// non-nil, vets a reloaded registry before it replaces the active one.
func NewPoller(cfg PollerConfig, reg *registry.Registry, build func(*registry.Registry) Runner, verify func(*registry.Registry) error, logger zerolog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if reg == nil {
		reg = registry.Empty()
	}
	return &Poller{
		cfg:      cfg,
		build:    build,
		logger:   logger.With().Str("component", "poller").Logger(),
		registry: reg,
		load:     registry.Load,
		verify:   verify,
	}
}

// Registry returns the active registry.
func (p *Poller) Registry() *registry.Registry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.registry
}

// Run blocks until ctx is cancelled. A cycle that fails is logged and the
// next tick runs as usual.
func (p *Poller) Run(ctx context.Context) error {
	if p.cfg.Watch && p.cfg.ServicesPath != "" {
		if err := p.startWatcher(ctx); err != nil {
			p.logger.Error().Err(err).Str("path", p.cfg.ServicesPath).Msg("services watcher disabled")
		}
	}

	p.poll(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	report, err := p.build(p.Registry()).RunOnce(ctx)
	if err != nil {
		p.logger.Error().Err(err).Str("run_id", report.RunID).Msg("cycle failed")
	}
	if p.cycles != nil {
		select {
		case p.cycles <- report:
		case <-ctx.Done():
		}
	}
}

// reload replaces the active registry with the file's contents. An invalid
// or missing file leaves the active registry in place.
func (p *Poller) reload() {
	reg, err := p.load(p.cfg.ServicesPath)
	if err != nil {
		p.logger.Error().Err(err).Str("path", p.cfg.ServicesPath).Msg("services reload rejected, keeping previous registry")
		return
	}
	if p.verify != nil {
		if err := p.verify(reg); err != nil {
			p.logger.Error().Err(err).Str("path", p.cfg.ServicesPath).Msg("services reload rejected, keeping previous registry")
			return
		}
	}

	p.mu.Lock()
	p.registry = reg
	p.mu.Unlock()

	p.logger.Info().Int("services", reg.Len()).Str("path", p.cfg.ServicesPath).Msg("services reloaded")
}

// startWatcher watches the directory holding the services file so that
// editors replacing the file are noticed too.
func (p *Poller) startWatcher(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(p.cfg.ServicesPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go p.watchLoop(ctx, watcher)

	p.logger.Info().Str("path", p.cfg.ServicesPath).Msg("watching services file")
	return nil
}

func (p *Poller) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	target := filepath.Clean(p.cfg.ServicesPath)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, p.reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error().Err(err).Msg("watcher error")
		}
	}
}
