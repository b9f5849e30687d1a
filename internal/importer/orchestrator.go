package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/fmp-data/internal/api"
	"github.com/rickgao/fmp-data/internal/catalog"
	"github.com/rickgao/fmp-data/internal/depgraph"
	"github.com/rickgao/fmp-data/internal/model"
	"github.com/rickgao/fmp-data/internal/storage"
	"github.com/rickgao/fmp-data/internal/writer"
)

// TargetAll imports every catalog entity.
const TargetAll = "all"

// ErrAlreadyRunning is returned when an import is requested while one is in progress.
var ErrAlreadyRunning = errors.New("import already running")

// Fetcher fetches one page of an entity. *api.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, et *model.EntityType, p api.Params, cursor string) (*api.Page, error)
}

// Sink receives every job status transition. It must not block.
type Sink interface {
	Publish(ev model.JobEvent)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithSink adds a job event sink.
func WithSink(s Sink) Option {
	return func(o *Orchestrator) {
		o.sinks = append(o.sinks, s)
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// Orchestrator imports catalog entities through a Fetcher into a
// storage.Gateway. Only one run is active at a time.
type Orchestrator struct {
	catalog *catalog.Catalog
	fetcher Fetcher
	gw      storage.Gateway
	writer  *writer.Writer
	cfg     Config
	logger  *slog.Logger
	sinks   []Sink
	now     func() time.Time

	cancelled atomic.Bool

	mu      sync.Mutex
	running bool
	runID   string
	order   []string
	jobs    map[string]model.ImportJob
	lastErr error
	wg      sync.WaitGroup
}

// New creates an Orchestrator.
func New(cat *catalog.Catalog, fetcher Fetcher, gw storage.Gateway, w *writer.Writer, cfg Config, opts ...Option) *Orchestrator {
	cfg.applyDefaults()
	o := &Orchestrator{
		catalog: cat,
		fetcher: fetcher,
		gw:      gw,
		writer:  w,
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
		jobs:    make(map[string]model.ImportJob),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// ListEntityTypes returns the catalog in declaration order.
func (o *Orchestrator) ListEntityTypes() []*model.EntityType {
	return o.catalog.List()
}

// ScheduleOrder returns the catalog in dependency order.
func (o *Orchestrator) ScheduleOrder() ([]*model.EntityType, error) {
	return depgraph.Order(o.catalog.List())
}

// Status returns the jobs of the current or last run in schedule order.
func (o *Orchestrator) Status() []model.ImportJob {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]model.ImportJob, 0, len(o.order))
	for _, id := range o.order {
		if job, ok := o.jobs[id]; ok {
			out = append(out, job)
		}
	}
	return out
}

// Running reports whether a run is in progress.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// LastError returns the pipeline error of the last finished run.
func (o *Orchestrator) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Cancel asks the active run to stop after its current page. It reports
// whether a run was active.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running {
		return false
	}
	o.cancelled.Store(true)
	o.logger.Info("import cancel requested", "run_id", o.runID)
	return true
}

// Wait blocks until a run started with StartImport has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Run imports target ("all" or an entity id) and blocks until done. The
// returned error is a pipeline error; entity failures are job statuses.
func (o *Orchestrator) Run(ctx context.Context, target string) ([]model.ImportJob, error) {
	plan, err := o.begin(target)
	if err != nil {
		return nil, err
	}
	return o.execute(ctx, plan)
}

// StartImport validates target and runs it in the background.
func (o *Orchestrator) StartImport(ctx context.Context, target string) (string, error) {
	plan, err := o.begin(target)
	if err != nil {
		return "", err
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if _, err := o.execute(ctx, plan); err != nil {
			o.logger.Error("import run failed", "run_id", plan.runID, "error", err)
		}
	}()
	return plan.runID, nil
}

// runPlan is a validated import request.
type runPlan struct {
	runID   string
	target  string
	order   []*model.EntityType // full catalog in dependency order
	targets []*model.EntityType // entities imported by this run
}

// begin validates target and claims the single run slot.
func (o *Orchestrator) begin(target string) (*runPlan, error) {
	if target == "" {
		target = TargetAll
	}

	order, err := depgraph.Order(o.catalog.List())
	if err != nil {
		return nil, err
	}

	var targets []*model.EntityType
	if target == TargetAll {
		targets = order
	} else {
		et, err := o.catalog.Get(target)
		if err != nil {
			return nil, err
		}
		targets = []*model.EntityType{et}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return nil, ErrAlreadyRunning
	}
	o.running = true
	o.cancelled.Store(false)

	plan := &runPlan{
		runID:   uuid.NewString(),
		target:  target,
		order:   order,
		targets: targets,
	}
	o.runID = plan.runID
	o.order = depgraph.IDs(targets)
	o.jobs = make(map[string]model.ImportJob, len(targets))
	o.lastErr = nil
	return plan, nil
}

func (o *Orchestrator) end(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.running = false
	o.lastErr = err
}

func (o *Orchestrator) execute(ctx context.Context, plan *runPlan) (jobs []model.ImportJob, err error) {
	defer func() { o.end(err) }()

	start := o.now()
	o.logger.Info("import run started",
		"run_id", plan.runID,
		"target", plan.target,
		"entities", len(plan.targets),
	)

	if err := o.gw.EnsureSchema(ctx, plan.order); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	for _, et := range plan.targets {
		o.transition(ctx, model.ImportJob{RunID: plan.runID, Entity: et.ID, Status: model.StatusPending})
	}

	inRun := make(map[string]chan struct{}, len(plan.targets))
	for _, et := range plan.targets {
		inRun[et.ID] = make(chan struct{})
	}

	var (
		fatalMu  sync.Mutex
		fatal    = make(map[string]error)
		attempts atomic.Int64
	)

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for _, et := range plan.targets {
		done := inRun[et.ID]
		g.Go(func() error {
			defer close(done)

			if reason := o.blockedBy(ctx, et, inRun); reason != "" {
				o.skip(ctx, et, reason)
				return nil
			}

			attempts.Add(1)
			job, storageErr := o.importEntity(ctx, et)
			if storageErr != nil {
				fatalMu.Lock()
				fatal[job.Entity] = storageErr
				fatalMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	jobs = o.Status()

	counts := make(map[model.JobStatus]int)
	for _, j := range jobs {
		counts[j.Status]++
	}
	o.logger.Info("import run finished",
		"run_id", plan.runID,
		"succeeded", counts[model.StatusSucceeded],
		"partial", counts[model.StatusPartial],
		"failed", counts[model.StatusFailed],
		"skipped", counts[model.StatusSkippedDependency],
		"cancelled", counts[model.StatusCancelled],
		"duration", o.now().Sub(start),
	)

	if n := attempts.Load(); n > 0 && int64(len(fatal)) == n {
		var merr *multierror.Error
		for _, et := range plan.targets {
			if e, ok := fatal[et.ID]; ok {
				merr = multierror.Append(merr, fmt.Errorf("%s: %w", et.ID, e))
			}
		}
		return jobs, merr.ErrorOrNil()
	}
	return jobs, nil
}

// blockedBy returns why et cannot run, or "" if every dependency succeeded.
// Dependencies outside the run are judged by their last recorded job.
func (o *Orchestrator) blockedBy(ctx context.Context, et *model.EntityType, inRun map[string]chan struct{}) string {
	for _, dep := range et.DependsOn {
		if done, ok := inRun[dep]; ok {
			<-done
			o.mu.Lock()
			status := o.jobs[dep].Status
			o.mu.Unlock()
			if status != model.StatusSucceeded {
				return fmt.Sprintf("dependency %s %s", dep, status)
			}
			continue
		}

		last, err := o.gw.LastJob(ctx, dep)
		if err != nil {
			return fmt.Sprintf("dependency %s: %v", dep, err)
		}
		if last == nil {
			return fmt.Sprintf("dependency %s never imported", dep)
		}
		if last.Status != model.StatusSucceeded {
			return fmt.Sprintf("dependency %s %s", dep, last.Status)
		}
	}
	return ""
}

func (o *Orchestrator) skip(ctx context.Context, et *model.EntityType, reason string) {
	job := o.job(et.ID)
	job.Status = model.StatusSkippedDependency
	job.Error = reason
	job.FinishedAt = o.now().UTC()
	o.logger.Warn("import skipped", "entity", et.ID, "reason", reason)
	o.transition(ctx, job)
}

func (o *Orchestrator) job(entity string) model.ImportJob {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.jobs[entity]
}

// transition records a status change, persists it and notifies sinks.
func (o *Orchestrator) transition(ctx context.Context, job model.ImportJob) {
	o.mu.Lock()
	from := o.jobs[job.Entity].Status
	o.jobs[job.Entity] = job
	o.mu.Unlock()

	o.persist(ctx, job)

	ev := model.JobEvent{From: from, Job: job, At: o.now().UTC()}
	for _, s := range o.sinks {
		s.Publish(ev)
	}
}

// progress records counts without a status change.
func (o *Orchestrator) progress(ctx context.Context, job model.ImportJob) {
	o.mu.Lock()
	o.jobs[job.Entity] = job
	o.mu.Unlock()

	o.persist(ctx, job)
}

func (o *Orchestrator) persist(ctx context.Context, job model.ImportJob) {
	if err := o.gw.SaveJob(context.WithoutCancel(ctx), job); err != nil {
		o.logger.Warn("save job failed", "entity", job.Entity, "status", job.Status, "error", err)
	}
}

// stopping reports whether the run should stop before the next page.
func (o *Orchestrator) stopping(ctx context.Context) bool {
	return o.cancelled.Load() || ctx.Err() != nil
}
