package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rickgao/fmp-data/internal/config"
	"github.com/rickgao/fmp-data/internal/importer"
	"github.com/rickgao/fmp-data/internal/model"
)

// Runner executes one import. *importer.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, target string) ([]model.ImportJob, error)
}

// Stats contains runtime statistics.
type Stats struct {
	Runs    int64 // Ticks that ran an import
	Skipped int64 // Ticks skipped because an import was already running
	Failed  int64 // Runs that returned an error or had a failed job
}

// Scheduler triggers imports from cron expressions.
type Scheduler struct {
	entries []config.ScheduleEntry
	runner  Runner
	logger  *slog.Logger
	cron    *cron.Cron

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	stats Stats
}

// New creates a Scheduler. Cron expressions use the standard five-field
// syntax evaluated in UTC.
func New(entries []config.ScheduleEntry, runner Runner, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		entries: entries,
		runner:  runner,
		logger:  logger,
	}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cronLogger{logger})),
		cron.WithLogger(cronLogger{logger}),
	)

	for i, e := range entries {
		target := e.Target
		if _, err := s.cron.AddFunc(e.Cron, func() { s.runOnce(target) }); err != nil {
			return nil, fmt.Errorf("schedule[%d] %q: %w", i, e.Cron, err)
		}
	}
	return s, nil
}

// Start begins firing scheduled imports.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()

	for _, e := range s.cron.Entries() {
		s.logger.Info("import scheduled", "next", e.Next)
	}
	s.logger.Info("refresh scheduler started", "entries", len(s.entries))
	return nil
}

// Stop halts the schedule, cancels a running import and waits for it.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	done := s.cron.Stop().Done()

	select {
	case <-done:
		s.logger.Info("refresh scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current statistics.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Scheduler) runOnce(target string) {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	jobs, err := s.runner.Run(ctx, target)
	if errors.Is(err, importer.ErrAlreadyRunning) {
		s.logger.Warn("scheduled import skipped, another import is running", "target", target)
		s.count(func(st *Stats) { st.Skipped++ })
		return
	}

	failed := err != nil
	for _, j := range jobs {
		if j.Status == model.StatusFailed {
			failed = true
		}
	}
	s.count(func(st *Stats) {
		st.Runs++
		if failed {
			st.Failed++
		}
	})

	if err != nil {
		s.logger.Error("scheduled import failed", "target", target, "error", err)
		return
	}
	s.logger.Info("scheduled import complete",
		"target", target,
		"jobs", len(jobs),
		"failed", failed,
		"duration", time.Since(start),
	)
}

func (s *Scheduler) count(fn func(*Stats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
