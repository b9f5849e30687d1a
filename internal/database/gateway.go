package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/fmp-data/internal/model"
	"github.com/rickgao/fmp-data/internal/storage"
)

const (
	upsertWatermarkSQL = `
		INSERT INTO watermarks (entity, symbol, watermark, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (entity, symbol) DO UPDATE
		SET watermark = GREATEST(watermarks.watermark, EXCLUDED.watermark),
		    updated_at = now()
	`
	upsertCheckpointSQL = `
		INSERT INTO import_checkpoints (entity, cursor, run_id, committed_pages, failed_pages, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (entity) DO UPDATE
		SET cursor = EXCLUDED.cursor, run_id = EXCLUDED.run_id,
		    committed_pages = EXCLUDED.committed_pages, failed_pages = EXCLUDED.failed_pages,
		    updated_at = EXCLUDED.updated_at
	`
	upsertJobSQL = `
		INSERT INTO import_jobs (run_id, entity, status, cursor, fetched, written, skipped,
			rejected, pages, failed_pages, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (run_id, entity) DO UPDATE
		SET status = EXCLUDED.status, cursor = EXCLUDED.cursor, fetched = EXCLUDED.fetched,
			written = EXCLUDED.written, skipped = EXCLUDED.skipped, rejected = EXCLUDED.rejected,
			pages = EXCLUDED.pages, failed_pages = EXCLUDED.failed_pages, error = EXCLUDED.error,
			started_at = EXCLUDED.started_at, finished_at = EXCLUDED.finished_at
	`
	lastJobSQL = `
		SELECT run_id, entity, status, cursor, fetched, written, skipped, rejected,
			pages, failed_pages, error, started_at, finished_at
		FROM import_jobs
		WHERE entity = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
)

// Gateway is the PostgreSQL/TimescaleDB storage.Gateway. Each entity type
// is one table; pipeline state lives in the migrated tables.
type Gateway struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	mu        sync.RWMutex
	schemas   map[string]*model.EntityType
	timescale bool
}

var _ storage.Gateway = (*Gateway)(nil)

// NewGateway creates a Gateway over pool.
func NewGateway(pool *pgxpool.Pool, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		pool:    pool,
		logger:  logger,
		schemas: make(map[string]*model.EntityType),
	}
}

// EnsureSchema creates entity tables in the given order, so referenced
// tables must precede the tables that reference them.
func (g *Gateway) EnsureSchema(ctx context.Context, entities []*model.EntityType) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	byID := make(map[string]*model.EntityType, len(g.schemas)+len(entities))
	for id, et := range g.schemas {
		byID[id] = et
	}
	for _, et := range entities {
		byID[et.ID] = et
	}

	timescale, err := g.hasTimescale(ctx)
	if err != nil {
		return err
	}
	g.timescale = timescale

	hypertables := 0
	for _, et := range entities {
		ddl, err := createTableSQL(et, byID)
		if err != nil {
			return err
		}
		if _, err := g.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", et.TableName(), classify(et.ID, err))
		}

		if et.TimeSeries {
			if timescale {
				if _, err := g.pool.Exec(ctx, hypertableSQL(et)); err != nil {
					return fmt.Errorf("create hypertable %s: %w", et.TableName(), classify(et.ID, err))
				}
				hypertables++
			} else {
				g.logger.Warn("timescaledb not installed, keeping plain table", "table", et.TableName())
			}
		}
		g.schemas[et.ID] = et
	}

	g.logger.Info("schema ensured", "tables", len(entities), "hypertables", hypertables)
	return nil
}

func (g *Gateway) hasTimescale(ctx context.Context) (bool, error) {
	var ok bool
	err := g.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'timescaledb')`,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check timescaledb extension: %w", unavailable(err))
	}
	return ok, nil
}

func (g *Gateway) schema(entity string) (*model.EntityType, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	et, ok := g.schemas[entity]
	if !ok {
		return nil, fmt.Errorf("table for %s has not been created", entity)
	}
	return et, nil
}

// Upsert implements storage.Gateway.
func (g *Gateway) Upsert(ctx context.Context, b storage.Batch) (storage.WriteResult, error) {
	return g.write(ctx, b)
}

// AppendTimeSeries implements storage.Gateway.
func (g *Gateway) AppendTimeSeries(ctx context.Context, b storage.Batch) (storage.WriteResult, error) {
	return g.write(ctx, b)
}

// write applies rows, seen marks, watermarks and the checkpoint in one
// transaction.
func (g *Gateway) write(ctx context.Context, b storage.Batch) (storage.WriteResult, error) {
	et := b.Entity
	var res storage.WriteResult

	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return res, classify(et.ID, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	insert := upsertSQL(et)
	rows := &pgx.Batch{}
	for _, r := range b.Rows {
		args := r.Values
		if !et.TimeSeries {
			args = append(append(make([]any, 0, len(r.Values)+1), r.Values...), b.RunID)
		}
		rows.Queue(insert, args...)
	}

	var unchanged []storage.Row
	results := tx.SendBatch(ctx, rows)
	for _, r := range b.Rows {
		ct, err := results.Exec()
		if err != nil {
			results.Close()
			return storage.WriteResult{}, classify(et.ID, err)
		}
		if ct.RowsAffected() == 0 {
			res.Skipped++
			unchanged = append(unchanged, r)
		} else {
			res.Written++
		}
	}
	if err := results.Close(); err != nil {
		return storage.WriteResult{}, classify(et.ID, err)
	}

	follow := &pgx.Batch{}
	if !et.TimeSeries && b.RunID != "" {
		mark := markSeenSQL(et)
		keyIdx := make([]int, len(et.Key))
		for i, k := range et.Key {
			keyIdx[i] = et.FieldIndex(k)
		}
		for _, r := range unchanged {
			args := []any{b.RunID}
			for _, idx := range keyIdx {
				args = append(args, r.Values[idx])
			}
			follow.Queue(mark, args...)
		}
	}
	if et.TimeSeries {
		for symbol, t := range latestBySymbol(b.Rows) {
			follow.Queue(upsertWatermarkSQL, et.ID, symbol, t)
		}
	}
	if cp := b.Checkpoint; cp != nil {
		follow.Queue(upsertCheckpointSQL, checkpointArgs(*cp)...)
	}
	if follow.Len() > 0 {
		if err := tx.SendBatch(ctx, follow).Close(); err != nil {
			return storage.WriteResult{}, classify(et.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return storage.WriteResult{}, classify(et.ID, err)
	}
	return res, nil
}

func latestBySymbol(rows []storage.Row) map[string]time.Time {
	out := make(map[string]time.Time)
	for _, r := range rows {
		if r.Symbol == "" || r.Time.IsZero() {
			continue
		}
		if r.Time.After(out[r.Symbol]) {
			out[r.Symbol] = r.Time
		}
	}
	return out
}

func checkpointTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// GetWatermark implements storage.Gateway.
func (g *Gateway) GetWatermark(ctx context.Context, entity, symbol string) (time.Time, bool, error) {
	var t time.Time
	err := g.pool.QueryRow(ctx,
		`SELECT watermark FROM watermarks WHERE entity = $1 AND symbol = $2`,
		entity, symbol,
	).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, classify(entity, err)
	}
	return t.UTC(), true, nil
}

// SetWatermark implements storage.Gateway. Watermarks never move backwards.
func (g *Gateway) SetWatermark(ctx context.Context, entity, symbol string, t time.Time) error {
	_, err := g.pool.Exec(ctx, upsertWatermarkSQL, entity, symbol, t)
	return classify(entity, err)
}

// LoadCheckpoint implements storage.Gateway.
func (g *Gateway) LoadCheckpoint(ctx context.Context, entity string) (*model.Checkpoint, error) {
	cp := model.Checkpoint{Entity: entity}
	err := g.pool.QueryRow(ctx,
		`SELECT cursor, run_id, committed_pages, failed_pages, updated_at
		 FROM import_checkpoints WHERE entity = $1`,
		entity,
	).Scan(&cp.Cursor, &cp.RunID, &cp.CommittedPages, &cp.FailedPages, &cp.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(entity, err)
	}
	return &cp, nil
}

// SaveCheckpoint implements storage.Gateway.
func (g *Gateway) SaveCheckpoint(ctx context.Context, cp model.Checkpoint) error {
	_, err := g.pool.Exec(ctx, upsertCheckpointSQL, checkpointArgs(cp)...)
	return classify(cp.Entity, err)
}

func checkpointArgs(cp model.Checkpoint) []any {
	return []any{cp.Entity, cp.Cursor, cp.RunID, cp.CommittedPages, cp.FailedPages, checkpointTime(cp.UpdatedAt)}
}

// ClearCheckpoint implements storage.Gateway.
func (g *Gateway) ClearCheckpoint(ctx context.Context, entity string) error {
	_, err := g.pool.Exec(ctx, `DELETE FROM import_checkpoints WHERE entity = $1`, entity)
	return classify(entity, err)
}

// SaveJob implements storage.Gateway.
func (g *Gateway) SaveJob(ctx context.Context, job model.ImportJob) error {
	_, err := g.pool.Exec(ctx, upsertJobSQL,
		job.RunID, job.Entity, string(job.Status), job.Cursor,
		job.Fetched, job.Written, job.Skipped, job.Rejected, job.Pages, job.FailedPages,
		job.Error, nullTime(job.StartedAt), nullTime(job.FinishedAt),
	)
	return classify(job.Entity, err)
}

// LastJob implements storage.Gateway.
func (g *Gateway) LastJob(ctx context.Context, entity string) (*model.ImportJob, error) {
	var (
		job               model.ImportJob
		status            string
		started, finished *time.Time
	)
	err := g.pool.QueryRow(ctx, lastJobSQL, entity).Scan(
		&job.RunID, &job.Entity, &status, &job.Cursor,
		&job.Fetched, &job.Written, &job.Skipped, &job.Rejected, &job.Pages, &job.FailedPages,
		&job.Error, &started, &finished,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(entity, err)
	}

	job.Status = model.JobStatus(status)
	if started != nil {
		job.StartedAt = started.UTC()
	}
	if finished != nil {
		job.FinishedAt = finished.UTC()
	}
	return &job, nil
}

// Keys implements storage.Gateway.
func (g *Gateway) Keys(ctx context.Context, entity string, filter storage.KeyFilter) ([]string, error) {
	et, err := g.schema(entity)
	if err != nil {
		return nil, err
	}
	q, args, err := keysSQL(et, filter.Where, filter.Limit)
	if err != nil {
		return nil, err
	}

	rows, err := g.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, classify(entity, err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, classify(entity, err)
	}
	return keys, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
