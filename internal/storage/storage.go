// Package storage defines the persistence contract of the import pipeline
// and an in-memory gateway used by tests.
//
// internal/database provides the PostgreSQL/TimescaleDB implementation.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rickgao/fmp-data/internal/model"
)

// ErrStorageUnavailable means the store could not be reached. It is fatal
// to the entity being imported.
var ErrStorageUnavailable = errors.New("storage unavailable")

// ConstraintViolationError is a batch rejected by an integrity constraint
// (unknown foreign key, check failure). Nothing from the batch is kept.
type ConstraintViolationError struct {
	Entity     string
	Constraint string
	Cause      error
}

func (e *ConstraintViolationError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("%s: constraint %s violated: %v", e.Entity, e.Constraint, e.Cause)
	}
	return fmt.Sprintf("%s: constraint violated: %v", e.Entity, e.Cause)
}

func (e *ConstraintViolationError) Unwrap() error { return e.Cause }

// Row is one transformed record ready to persist.
type Row struct {
	Key    string    // Encoded natural key
	Symbol string    // Normalized ticker, if the entity has one
	Time   time.Time // Time-series rows only
	Seq    int64     // Fetch order; later wins on duplicate keys
	Values []any     // Aligned with EntityType.Fields
}

// keySep joins natural key parts; it cannot appear in tickers or dates.
const keySep = "\x1f"

// EncodeKey joins natural key parts into Row.Key.
func EncodeKey(parts ...string) string {
	return strings.Join(parts, keySep)
}

// DecodeKey splits Row.Key into its parts.
func DecodeKey(key string) []string {
	return strings.Split(key, keySep)
}

// Batch is the unit of one all-or-nothing write.
type Batch struct {
	Entity *model.EntityType
	Rows   []Row
	RunID  string

	// Checkpoint is persisted in the same transaction as Rows.
	// Nil leaves the stored checkpoint unchanged.
	Checkpoint *model.Checkpoint
}

// WriteResult counts the outcome of a batch.
type WriteResult struct {
	Written int64 // Inserted or changed rows
	Skipped int64 // Rows identical to what was already stored
}

// KeyFilter narrows Keys to rows whose columns match one of the values.
type KeyFilter struct {
	Where map[string][]string
	Limit int // <= 0 means no limit
}

// Gateway is the persistence boundary of the pipeline.
type Gateway interface {
	// EnsureSchema creates tables for the entities if they do not exist.
	EnsureSchema(ctx context.Context, entities []*model.EntityType) error

	// Upsert writes reference rows, overwriting on natural key and
	// stamping them as seen by b.RunID.
	Upsert(ctx context.Context, b Batch) (WriteResult, error)

	// AppendTimeSeries writes time-series rows, deduplicating on
	// (symbol, time), and advances each symbol's watermark.
	AppendTimeSeries(ctx context.Context, b Batch) (WriteResult, error)

	GetWatermark(ctx context.Context, entity, symbol string) (time.Time, bool, error)
	// SetWatermark is for manual correction; imports advance watermarks
	// inside AppendTimeSeries.
	SetWatermark(ctx context.Context, entity, symbol string, t time.Time) error

	// LoadCheckpoint returns nil when the entity has no checkpoint.
	LoadCheckpoint(ctx context.Context, entity string) (*model.Checkpoint, error)
	SaveCheckpoint(ctx context.Context, cp model.Checkpoint) error
	ClearCheckpoint(ctx context.Context, entity string) error

	SaveJob(ctx context.Context, job model.ImportJob) error

	// LastJob returns the most recently started job for entity, or nil.
	LastJob(ctx context.Context, entity string) (*model.ImportJob, error)

	// Keys returns the single-column natural keys of entity in ascending order.
	Keys(ctx context.Context, entity string, filter KeyFilter) ([]string, error)
}

// TableStats summarizes one entity table.
type TableStats struct {
	Entity     string `json:"entity"`
	Table      string `json:"table"`
	Rows       int64  `json:"rows"`
	Hypertable bool   `json:"hypertable"`
	SizeBytes  int64  `json:"size_bytes"`
}

// Reporter is implemented by gateways that can describe their tables.
type Reporter interface {
	TableReport(ctx context.Context, entities []*model.EntityType) ([]TableStats, error)
}
