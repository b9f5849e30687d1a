package importer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rickgao/fmp-data/internal/api"
	"github.com/rickgao/fmp-data/internal/model"
	"github.com/rickgao/fmp-data/internal/storage"
)

// entityRun is the state of one entity's job within a run.
type entityRun struct {
	o   *Orchestrator
	et  *model.EntityType
	job model.ImportJob

	ctx  context.Context // fetches; cancelled with the run
	wctx context.Context // storage; never cancelled

	seq        int64
	okPages    int64
	storageErr error

	// keep is set when a page after the cursor was never fetched.
	keep bool
}

// importEntity runs et to a terminal status. The error is non-nil only
// when the store was unavailable.
func (o *Orchestrator) importEntity(ctx context.Context, et *model.EntityType) (model.ImportJob, error) {
	r := &entityRun{
		o:    o,
		et:   et,
		job:  o.job(et.ID),
		ctx:  ctx,
		wctx: context.WithoutCancel(ctx),
	}

	r.job.Status = model.StatusRunning
	r.job.StartedAt = o.now().UTC()
	o.transition(ctx, r.job)
	o.logger.Info("import started", "entity", et.ID, "source", et.Source, "run_id", r.job.RunID)

	var status model.JobStatus
	cp, err := o.gw.LoadCheckpoint(r.wctx, et.ID)
	switch {
	case err != nil:
		status = r.storageFailed(fmt.Errorf("load checkpoint: %w", err))
	case et.Source == model.SourcePerSymbol:
		status = r.perSymbol(cp)
	default:
		status = r.list(cp)
	}

	r.finish(status)
	return r.job, r.storageErr
}

// list walks a list endpoint page by page from the checkpoint cursor.
func (r *entityRun) list(cp *model.Checkpoint) model.JobStatus {
	cursor := ""
	if cp != nil && cp.Cursor != "" {
		cursor = cp.Cursor
		r.resume(cp)
		r.o.logger.Info("resuming import",
			"entity", r.et.ID,
			"cursor", cursor,
			"from_run", cp.RunID,
			"failed_pages", cp.FailedPages,
		)
	}

	decodeFailures := 0
	for {
		if r.o.stopping(r.ctx) {
			return model.StatusCancelled
		}

		page, err := r.o.fetcher.Fetch(r.ctx, r.et, api.Params{}, cursor)
		if err != nil {
			var de *api.DecodeFailedError
			if !errors.As(err, &de) {
				return r.fetchFailed(err, cursor)
			}

			r.job.Pages++
			r.job.FailedPages++
			r.job.Error = err.Error()
			decodeFailures++
			r.o.logger.Warn("page skipped", "entity", r.et.ID, "cursor", cursor, "error", err)

			if de.Done {
				break
			}
			if decodeFailures >= r.o.cfg.MaxDecodeFailures {
				r.job.Error = fmt.Sprintf("%d consecutive undecodable pages: %v", decodeFailures, err)
				return r.outcome()
			}
			cursor = de.Next
			if r.saveCheckpoint(cursor) != nil {
				return model.StatusFailed
			}
			continue
		}
		decodeFailures = 0

		r.job.Pages++
		r.job.Fetched += int64(page.Items)
		r.job.Rejected += int64(page.Rejected)

		if err := r.commit(page.Records, page.Next); err != nil {
			return model.StatusFailed
		}
		r.o.progress(r.ctx, r.job)

		if page.Done {
			break
		}
		cursor = page.Next
	}

	return r.outcome()
}

// perSymbol requests the symbol universe in batches; the checkpoint is
// the last symbol committed.
func (r *entityRun) perSymbol(cp *model.Checkpoint) model.JobStatus {
	symbols, err := r.o.symbolUniverse(r.wctx, r.et)
	if err != nil {
		return r.storageFailed(fmt.Errorf("symbol universe: %w", err))
	}

	if cp != nil && cp.Cursor != "" {
		i := slices.IndexFunc(symbols, func(s string) bool { return s > cp.Cursor })
		if i < 0 {
			i = len(symbols)
		}
		r.o.logger.Info("resuming import",
			"entity", r.et.ID,
			"cursor", cp.Cursor,
			"from_run", cp.RunID,
			"failed_pages", cp.FailedPages,
			"remaining", len(symbols)-i,
		)
		symbols = symbols[i:]
		r.resume(cp)
	}

	size := r.o.batchSize(r.et)
	for start := 0; start < len(symbols); start += size {
		if r.o.stopping(r.ctx) {
			return model.StatusCancelled
		}

		batch := symbols[start:min(start+size, len(symbols))]
		last := batch[len(batch)-1]
		params := api.Params{Symbols: batch}

		if r.et.TimeSeries {
			from, err := r.window(batch)
			if err != nil {
				return r.storageFailed(fmt.Errorf("read watermark: %w", err))
			}
			if !from.IsZero() && from.After(r.o.now()) {
				r.o.logger.Debug("symbol up to date", "entity", r.et.ID, "symbols", batch)
				continue
			}
			params.From = from
		}

		page, err := r.o.fetcher.Fetch(r.ctx, r.et, params, last)
		if err != nil {
			var de *api.DecodeFailedError
			var ff *api.FetchFailedError
			if !errors.As(err, &de) && !errors.As(err, &ff) {
				return r.fetchFailed(err, last)
			}

			r.job.Pages++
			r.job.FailedPages++
			r.job.Error = err.Error()
			r.o.logger.Warn("symbol batch skipped", "entity", r.et.ID, "symbols", batch, "error", err)
			if r.saveCheckpoint(last) != nil {
				return model.StatusFailed
			}
			continue
		}

		r.job.Pages++
		r.job.Fetched += int64(page.Items)
		r.job.Rejected += int64(page.Rejected)

		if err := r.commit(page.Records, last); err != nil {
			return model.StatusFailed
		}
		r.o.progress(r.ctx, r.job)
	}

	return r.outcome()
}

// window returns the first day to fetch for batch: one granule after the
// oldest watermark, or the history start if any symbol has none. Rows
// the provider sends from before the window are still written.
func (r *entityRun) window(batch []string) (time.Time, error) {
	var oldest time.Time
	for _, s := range batch {
		wm, ok, err := r.o.gw.GetWatermark(r.wctx, r.et.ID, s)
		if err != nil {
			return time.Time{}, err
		}
		if !ok {
			return r.o.cfg.HistoryStart, nil
		}
		if oldest.IsZero() || wm.Before(oldest) {
			oldest = wm
		}
	}

	if oldest.IsZero() {
		return r.o.cfg.HistoryStart, nil
	}
	return oldest.Add(r.et.TimeGranule()), nil
}

// resume carries the page counts of the interrupted job into this one.
func (r *entityRun) resume(cp *model.Checkpoint) {
	r.job.Cursor = cp.Cursor
	r.job.FailedPages += cp.FailedPages
	r.okPages += cp.CommittedPages
}

// checkpoint is the resume point at cursor with the page counts so far.
func (r *entityRun) checkpoint(cursor string, committed int64) *model.Checkpoint {
	return &model.Checkpoint{
		Entity:         r.et.ID,
		Cursor:         cursor,
		RunID:          r.job.RunID,
		CommittedPages: committed,
		FailedPages:    r.job.FailedPages,
		UpdatedAt:      r.o.now().UTC(),
	}
}

// commit writes one page together with the checkpoint of next. It
// returns an error only when the entity must stop; a constraint
// violation rejects the page and the import continues.
func (r *entityRun) commit(records []model.Record, next string) error {
	for i := range records {
		r.seq++
		records[i].Seq = r.seq
	}

	prep := r.o.writer.Prepare(r.et, records)
	r.job.Rejected += int64(prep.Rejected)
	r.job.Skipped += int64(prep.Duplicates)

	res, err := r.o.writer.Write(r.wctx, storage.Batch{
		Entity:     r.et,
		Rows:       prep.Rows,
		RunID:      r.job.RunID,
		Checkpoint: r.checkpoint(next, r.okPages+1),
	})
	if err != nil {
		var cv *storage.ConstraintViolationError
		if errors.As(err, &cv) {
			r.job.FailedPages++
			r.job.Rejected += int64(len(prep.Rows))
			r.job.Error = err.Error()
			r.o.logger.Warn("page rejected", "entity", r.et.ID, "constraint", cv.Constraint, "error", err)
			return r.saveCheckpoint(next)
		}
		r.storageFailed(err)
		return err
	}

	r.okPages++
	r.job.Written += res.Written
	r.job.Skipped += res.Skipped
	r.job.Cursor = next
	return nil
}

// saveCheckpoint moves the checkpoint past a skipped page.
func (r *entityRun) saveCheckpoint(cursor string) error {
	_, err := r.o.writer.Write(r.wctx, storage.Batch{
		Entity:     r.et,
		RunID:      r.job.RunID,
		Checkpoint: r.checkpoint(cursor, r.okPages),
	})
	if err != nil {
		r.storageFailed(fmt.Errorf("save checkpoint: %w", err))
		return err
	}
	r.job.Cursor = cursor
	return nil
}

// fetchFailed maps a fetch error that is not page-scoped to a status.
func (r *entityRun) fetchFailed(err error, cursor string) model.JobStatus {
	if r.ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return model.StatusCancelled
	}

	r.job.Error = err.Error()

	var rl *api.RateLimitExceededError
	if errors.As(err, &rl) {
		r.o.logger.Error("rate limit exceeded", "entity", r.et.ID, "cursor", cursor, "attempts", rl.Attempts)
		return model.StatusFailed
	}

	// The page after a failed list page is unknown; stop here and
	// retry it from the checkpoint next run.
	r.job.FailedPages++
	r.keep = true
	r.o.logger.Error("page fetch failed", "entity", r.et.ID, "cursor", cursor, "error", err)
	return r.outcome()
}

func (r *entityRun) storageFailed(err error) model.JobStatus {
	r.job.Error = err.Error()
	if errors.Is(err, storage.ErrStorageUnavailable) {
		r.storageErr = err
	}
	return model.StatusFailed
}

// outcome is the status of a job that ran to the end of its pages.
func (r *entityRun) outcome() model.JobStatus {
	switch {
	case r.job.FailedPages == 0:
		return model.StatusSucceeded
	case r.okPages > 0:
		return model.StatusPartial
	default:
		return model.StatusFailed
	}
}

// finish records the terminal status. Completed jobs drop their
// checkpoint; failed and cancelled jobs keep it to resume from, as does
// a partial job that stopped before its last page.
func (r *entityRun) finish(status model.JobStatus) {
	r.job.Status = status
	r.job.FinishedAt = r.o.now().UTC()
	if status == model.StatusSucceeded {
		r.job.Error = ""
	}
	if status == model.StatusCancelled && r.job.Error == "" {
		r.job.Error = "cancelled"
	}

	if status == model.StatusSucceeded || (status == model.StatusPartial && !r.keep) {
		if err := r.o.gw.ClearCheckpoint(r.wctx, r.et.ID); err != nil {
			r.o.logger.Warn("clear checkpoint failed", "entity", r.et.ID, "error", err)
		}
	}

	attrs := []any{
		"entity", r.et.ID,
		"status", status,
		"fetched", r.job.Fetched,
		"written", r.job.Written,
		"skipped", r.job.Skipped,
		"rejected", r.job.Rejected,
		"pages", r.job.Pages,
		"failed_pages", r.job.FailedPages,
		"duration", r.job.FinishedAt.Sub(r.job.StartedAt),
	}
	switch status {
	case model.StatusSucceeded:
		r.o.logger.Info("import finished", attrs...)
	case model.StatusFailed:
		r.o.logger.Error("import finished", append(attrs, "error", r.job.Error)...)
	default:
		r.o.logger.Warn("import finished", append(attrs, "error", r.job.Error)...)
	}

	r.o.transition(r.ctx, r.job)
}

// symbolUniverse returns the filtered keys of et.SymbolsFrom.
func (o *Orchestrator) symbolUniverse(ctx context.Context, et *model.EntityType) ([]string, error) {
	src, err := o.catalog.Get(et.SymbolsFrom)
	if err != nil {
		return nil, err
	}

	where := make(map[string][]string)
	if len(o.cfg.Exchanges) > 0 && src.FieldIndex("exchange_short_name") >= 0 {
		where["exchange_short_name"] = o.cfg.Exchanges
	}
	if len(o.cfg.SymbolTypes) > 0 && src.FieldIndex("type") >= 0 {
		where["type"] = o.cfg.SymbolTypes
	}

	return o.gw.Keys(ctx, src.ID, storage.KeyFilter{Where: where, Limit: o.cfg.SymbolLimit})
}

// batchSize is the entity's symbols per request, capped by config.
func (o *Orchestrator) batchSize(et *model.EntityType) int {
	n := et.SymbolBatch
	if n <= 0 {
		n = 1
	}
	return min(n, o.cfg.SymbolBatchSize)
}
