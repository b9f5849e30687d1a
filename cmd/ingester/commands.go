package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/fmp-data/internal/api"
	"github.com/rickgao/fmp-data/internal/auth"
	"github.com/rickgao/fmp-data/internal/catalog"
	"github.com/rickgao/fmp-data/internal/config"
	"github.com/rickgao/fmp-data/internal/database"
	"github.com/rickgao/fmp-data/internal/depgraph"
	"github.com/rickgao/fmp-data/internal/events"
	"github.com/rickgao/fmp-data/internal/importer"
	"github.com/rickgao/fmp-data/internal/metrics"
	"github.com/rickgao/fmp-data/internal/model"
	"github.com/rickgao/fmp-data/internal/refresh"
	"github.com/rickgao/fmp-data/internal/server"
	"github.com/rickgao/fmp-data/internal/writer"
)

// runOrder prints the catalog's creation order grouped by dependency level.
func runOrder(w io.Writer) error {
	ordered, err := depgraph.Order(catalog.Default().List())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LEVEL\tENTITY\tSOURCE\tDEPENDS ON")
	byID := make(map[string]*model.EntityType, len(ordered))
	for _, et := range ordered {
		byID[et.ID] = et
	}
	for _, lvl := range depgraph.Levels(ordered) {
		for _, id := range lvl.Entities {
			et := byID[id]
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", lvl.Depth, et.ID, et.Source, strings.Join(et.DependsOn, ", "))
		}
	}
	return tw.Flush()
}

func runCreateDB(ctx context.Context, cfg *config.IngesterConfig, logger *slog.Logger) error {
	created, err := database.CreateDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	if !created {
		logger.Info("database already exists", "database", cfg.Database.Name)
	}
	return nil
}

// connect opens the pool and brings the state tables up to date.
func connect(ctx context.Context, cfg *config.IngesterConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(pool, logger); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("database connected")
	return pool, nil
}

func runMigrate(ctx context.Context, cfg *config.IngesterConfig, logger *slog.Logger) error {
	pool, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	ordered, err := depgraph.Order(catalog.Default().List())
	if err != nil {
		return err
	}
	return database.NewGateway(pool, logger).EnsureSchema(ctx, ordered)
}

func runReport(ctx context.Context, cfg *config.IngesterConfig, w io.Writer, logger *slog.Logger) error {
	pool, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	stats, err := database.NewGateway(pool, logger).TableReport(ctx, catalog.Default().List())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "TABLE\tROWS\tHYPERTABLE\tSIZE\t")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%t\t%s\t\n", s.Table, s.Rows, s.Hypertable, humanBytes(s.SizeBytes))
	}
	return tw.Flush()
}

// stack is the wired import pipeline.
type stack struct {
	pool         *pgxpool.Pool
	gateway      *database.Gateway
	metrics      *metrics.Metrics
	hub          *events.Hub
	orchestrator *importer.Orchestrator
}

func build(ctx context.Context, cfg *config.IngesterConfig, logger *slog.Logger) (*stack, error) {
	creds, err := auth.LoadCredentials(cfg.API.APIKey, auth.Mode(cfg.API.AuthMode))
	if err != nil {
		return nil, err
	}

	pool, err := connect(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	hub := events.NewHub(cfg.Events.BufferSize, logger)
	gw := database.NewGateway(pool, logger)

	client := api.NewClient(cfg.API.BaseURL, creds,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, cfg.API.RetryBackoff),
		api.WithRateLimitRetries(cfg.API.RateLimitRetries),
		api.WithPageSize(cfg.API.PageSize),
		api.WithObserver(m),
		api.WithLimiter(api.NewLimiter(api.LimiterConfig{
			RequestsPerMinute: cfg.API.RequestsPerMinute,
			Burst:             cfg.API.Burst,
			BaseBackoff:       cfg.API.RetryBackoff,
			MaxBackoff:        cfg.API.RateLimitMaxBackoff,
		})),
	)

	orch := importer.New(
		catalog.Default(),
		client,
		gw,
		writer.New(gw, m, logger),
		importer.ConfigFrom(cfg.Import),
		importer.WithLogger(logger),
		importer.WithSink(hub),
		importer.WithSink(m),
	)

	return &stack{pool: pool, gateway: gw, metrics: m, hub: hub, orchestrator: orch}, nil
}

func (s *stack) close() {
	s.hub.Close()
	s.pool.Close()
}

func runImport(ctx context.Context, cfg *config.IngesterConfig, target string, logger *slog.Logger) error {
	st, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	jobs, err := st.orchestrator.Run(ctx, target)
	printJobs(logger, jobs)
	if err != nil {
		return err
	}

	for _, j := range jobs {
		switch j.Status {
		case model.StatusFailed:
			return fmt.Errorf("import of %s failed: %s", j.Entity, j.Error)
		case model.StatusCancelled:
			return context.Canceled
		}
	}
	return nil
}

func printJobs(logger *slog.Logger, jobs []model.ImportJob) {
	for _, j := range jobs {
		logger.Info("job",
			"entity", j.Entity,
			"status", j.Status,
			"fetched", j.Fetched,
			"written", j.Written,
			"skipped_duplicate", j.Skipped,
			"rejected", j.Rejected,
			"pages", j.Pages,
			"failed_pages", j.FailedPages,
		)
	}
}

func runServe(ctx context.Context, cfg *config.IngesterConfig, logger *slog.Logger) error {
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	st, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	srv := server.New(cfg.Server, st.orchestrator,
		server.WithLogger(logger),
		server.WithReporter(st.gateway),
		server.WithHub(st.hub),
		server.WithMetrics(st.metrics.Handler()),
	)

	sched, err := refresh.New(cfg.Schedule, st.orchestrator, logger)
	if err != nil {
		return err
	}

	var nats *events.NATSPublisher
	if cfg.Events.NATSURL != "" {
		nats, err = events.DialNATS(cfg.Events.NATSURL, cfg.Events.Subject, st.hub, logger)
		if err != nil {
			return err
		}
		if err := nats.Start(ctx); err != nil {
			return err
		}
	}

	if err := srv.Start(ctx); err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}

	logger.Info("ingester running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port),
		"schedules", len(cfg.Schedule),
		"nats", cfg.Events.NATSURL != "",
	)

	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	var errs []error
	if err := sched.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	if err := srv.Stop(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	st.orchestrator.Cancel()
	st.orchestrator.Wait()
	if nats != nil {
		if err := nats.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop nats publisher: %w", err))
		}
	}

	logger.Info("ingester stopped")
	return errors.Join(errs...)
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
