package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/fmp-data/internal/model"
	"github.com/rickgao/fmp-data/internal/storage"
)

// WriterMetrics tracks writer activity across all entities.
type WriterMetrics struct {
	Inserts    int64 // Rows inserted or changed
	Conflicts  int64 // Rows identical to stored rows
	Duplicates int64 // Same-key rows collapsed within a page
	Rejected   int64 // Records failing coercion
	Errors     int64 // Failed batch writes
	Flushes    int64 // Committed batches
}

// CommitObserver receives batch commit timings. internal/metrics implements it.
type CommitObserver interface {
	ObserveCommit(entity string, elapsed time.Duration, err error)
}

// Prepared is a page transformed and filtered for one write.
type Prepared struct {
	Rows       []storage.Row
	Rejected   int
	Duplicates int
}

// Writer prepares pages and commits them through a storage.Gateway.
type Writer struct {
	gw       storage.Gateway
	logger   *slog.Logger
	observer CommitObserver

	mu      sync.Mutex
	metrics WriterMetrics
}

// New creates a Writer. observer may be nil.
func New(gw storage.Gateway, observer CommitObserver, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		gw:       gw,
		logger:   logger,
		observer: observer,
	}
}

// Stats returns current metrics.
func (w *Writer) Stats() WriterMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}

// Prepare transforms records and collapses duplicate keys (later Seq
// wins). Rows at or before a watermark are kept: the store overwrites a
// revised bar and reports an identical one as skipped.
func (w *Writer) Prepare(et *model.EntityType, records []model.Record) Prepared {
	rows, rejected := w.transform(et, records)
	rows, dups := Dedupe(rows)

	w.mu.Lock()
	w.metrics.Rejected += int64(rejected)
	w.metrics.Duplicates += int64(dups)
	w.mu.Unlock()

	return Prepared{Rows: rows, Rejected: rejected, Duplicates: dups}
}

// Write commits one batch: Upsert for reference entities, AppendTimeSeries
// for time-series entities. An empty batch with a checkpoint only moves
// the checkpoint.
func (w *Writer) Write(ctx context.Context, b storage.Batch) (storage.WriteResult, error) {
	if len(b.Rows) == 0 {
		if b.Checkpoint != nil {
			return storage.WriteResult{}, w.gw.SaveCheckpoint(ctx, *b.Checkpoint)
		}
		return storage.WriteResult{}, nil
	}

	start := time.Now()

	var (
		res storage.WriteResult
		err error
	)
	if b.Entity.TimeSeries {
		res, err = w.gw.AppendTimeSeries(ctx, b)
	} else {
		res, err = w.gw.Upsert(ctx, b)
	}
	elapsed := time.Since(start)

	if w.observer != nil {
		w.observer.ObserveCommit(b.Entity.ID, elapsed, err)
	}

	if err != nil {
		w.logger.Error("batch write failed", "entity", b.Entity.ID, "error", err, "count", len(b.Rows))
		w.mu.Lock()
		w.metrics.Errors++
		w.mu.Unlock()
		return res, err
	}

	w.mu.Lock()
	w.metrics.Inserts += res.Written
	w.metrics.Conflicts += res.Skipped
	w.metrics.Flushes++
	w.mu.Unlock()

	w.logger.Debug("flushed rows",
		"entity", b.Entity.ID,
		"count", len(b.Rows),
		"written", res.Written,
		"conflicts", res.Skipped,
		"duration", elapsed,
	)

	return res, nil
}

// transform converts records to rows aligned with et.Fields.
func (w *Writer) transform(et *model.EntityType, records []model.Record) ([]storage.Row, int) {
	symbolField := et.SymbolField
	if symbolField == "" && et.FieldIndex("symbol") >= 0 {
		symbolField = "symbol"
	}

	rows := make([]storage.Row, 0, len(records))
	rejected := 0

	for _, rec := range records {
		row, ok := w.transformRecord(et, symbolField, rec)
		if !ok {
			rejected++
			continue
		}
		rows = append(rows, row)
	}

	return rows, rejected
}

func (w *Writer) transformRecord(et *model.EntityType, symbolField string, rec model.Record) (storage.Row, bool) {
	values := make([]any, len(et.Fields))

	for i, f := range et.Fields {
		v, err := coerce(f, rec.Values[f.Name])
		if err != nil {
			if f.Required {
				w.logger.Debug("record rejected", "entity", et.ID, "field", f.Name, "error", err)
				return storage.Row{}, false
			}
			v = nil
		}
		if v == nil && f.Required {
			return storage.Row{}, false
		}
		if f.Name == symbolField {
			if s, ok := v.(string); ok {
				v = model.NormalizeSymbol(s)
			}
		}
		values[i] = v
	}

	parts := make([]string, len(et.Key))
	for i, k := range et.Key {
		idx := et.FieldIndex(k)
		if idx < 0 || values[idx] == nil {
			return storage.Row{}, false
		}
		parts[i] = keyPart(et.Fields[idx].Kind, values[idx])
	}

	row := storage.Row{
		Key:    storage.EncodeKey(parts...),
		Seq:    rec.Seq,
		Values: values,
	}
	if idx := et.FieldIndex(symbolField); idx >= 0 {
		row.Symbol, _ = values[idx].(string)
	}
	if et.TimeSeries {
		t, ok := values[et.FieldIndex(et.TimeField)].(time.Time)
		if !ok {
			return storage.Row{}, false
		}
		row.Time = t
	}

	return row, true
}

// Dedupe collapses rows sharing a natural key. The row with the highest
// Seq wins and takes the position of the key's first occurrence.
func Dedupe(rows []storage.Row) ([]storage.Row, int) {
	pos := make(map[string]int, len(rows))
	out := make([]storage.Row, 0, len(rows))
	dups := 0

	for _, r := range rows {
		i, seen := pos[r.Key]
		if !seen {
			pos[r.Key] = len(out)
			out = append(out, r)
			continue
		}
		dups++
		if r.Seq >= out[i].Seq {
			out[i] = r
		}
	}

	return out, dups
}
