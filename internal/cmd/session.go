package cmd

import (
	"context"
	"sync"

	"github.com/Iron-Ham/trialrun/internal/config"
	"github.com/Iron-Ham/trialrun/internal/dryrun"
	"github.com/Iron-Ham/trialrun/internal/event"
	"github.com/Iron-Ham/trialrun/internal/logging"
	"github.com/Iron-Ham/trialrun/internal/metrics"
	"github.com/Iron-Ham/trialrun/internal/trialrun"
	"github.com/Iron-Ham/trialrun/internal/workspace"
)

type sessionOptions struct {
	workspace string
	notifier  trialrun.Notifier
	metrics   *metrics.Metrics
	watch     bool
}

// session wires one workspace, runner and coordinator together for the
// lifetime of a command.
type session struct {
	cfg     *config.Config
	logger  *logging.Logger
	bus     *event.Bus
	runner  *dryrun.Runner
	coord   *trialrun.Coordinator
	watcher *workspace.Watcher

	mu       sync.Mutex
	catalog  *workspace.Catalog
	current  workspace.QueryDef
	selected bool
}

func newSession(ctx context.Context, cfg *config.Config, opts sessionOptions) (*session, error) {
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	cat, err := workspace.Load(opts.workspace)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	runner, err := dryrun.NewRunner(cfg.Runner, logger)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	bus := event.NewBus(logger)
	s := &session{
		cfg:     cfg,
		logger:  logger,
		bus:     bus,
		runner:  runner,
		catalog: cat,
		coord: trialrun.NewCoordinator(ctx, trialrun.Config{
			Notifier:           opts.notifier,
			Bus:                bus,
			Metrics:            opts.metrics,
			Logger:             logger,
			Title:              cfg.Notifications.Title,
			MaxAge:             cfg.Trial.MaxAge,
			DisableAutoTrigger: !cfg.Trial.AutoTrigger,
		}),
	}

	if opts.watch {
		w, err := workspace.NewWatcher(opts.workspace, s.reload, bus, logger)
		if err != nil {
			s.close()
			return nil, err
		}
		s.watcher = w
		w.Start()
	}

	logger.Info("session started",
		"workspace", cat.Path(),
		"queries", cat.Len(),
		"watch", opts.watch,
	)
	return s, nil
}

func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	if !cfg.Enabled {
		return logging.NopLogger(), nil
	}
	return logging.NewLoggerWithRotation(cfg.ResolveLogDir(), cfg.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	})
}

// selectQuery makes the named query the coordinator's entity.
func (s *session) selectQuery(ref string) error {
	s.mu.Lock()
	def, err := s.catalog.Query(ref)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	q := s.catalog.NewQuery(def, s.runner, "")
	s.current = def
	s.selected = true
	s.mu.Unlock()

	s.logger.Info("query selected", "query_id", def.ID, "name", def.Name)
	s.coord.SetEntity(q)
	return nil
}

// reload swaps in a freshly loaded catalog. If the selected query's
// definition changed, the coordinator gets a new entity that keeps the
// previous entity's latest result.
func (s *session) reload(cat *workspace.Catalog, err error) {
	if err != nil {
		// Keep serving the last good catalog.
		return
	}

	s.mu.Lock()
	s.catalog = cat
	if !s.selected {
		s.mu.Unlock()
		return
	}
	def, err := cat.Query(s.current.ID)
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("selected query removed from workspace", "query_id", s.current.ID)
		return
	}
	if def.Equal(s.current) {
		s.mu.Unlock()
		return
	}

	latest := ""
	if prev, ok := s.coord.Entity().(*dryrun.Query); ok {
		latest = prev.LatestDataID()
	}
	q := cat.NewQuery(def, s.runner, latest)
	s.current = def
	s.mu.Unlock()

	s.logger.Info("query changed on disk", "query_id", def.ID)
	s.coord.SetEntity(q)
}

func (s *session) queryName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Name
}

// close tears everything down. The tracked run is cancelled after the
// coordinator is closed so its outcome is discarded.
func (s *session) close() {
	if s.watcher != nil {
		s.watcher.Stop()
	}
	tracked := s.coord.TrackedRun()
	s.coord.Close()
	if tracked != nil {
		tracked.Cancel()
	}
	s.coord.Wait()
	s.runner.Wait()
	_ = s.logger.Close()
}
