package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/fmp-data/internal/model"
)

// Memory is an in-process Gateway. Every write holds one lock, so a batch
// is applied entirely or not at all.
type Memory struct {
	mu sync.Mutex

	schemas     map[string]*model.EntityType
	tables      map[string]map[string]*memRow
	watermarks  map[string]map[string]time.Time
	checkpoints map[string]model.Checkpoint
	jobs        map[string][]model.ImportJob

	// FailHook, when set, is consulted before every operation; a non-nil
	// error aborts the operation unchanged.
	FailHook func(op, entity string) error
}

type memRow struct {
	values   []any
	lastSeen string
}

// NewMemory creates an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{
		schemas:     make(map[string]*model.EntityType),
		tables:      make(map[string]map[string]*memRow),
		watermarks:  make(map[string]map[string]time.Time),
		checkpoints: make(map[string]model.Checkpoint),
		jobs:        make(map[string][]model.ImportJob),
	}
}

func (m *Memory) fail(op, entity string) error {
	if m.FailHook == nil {
		return nil
	}
	return m.FailHook(op, entity)
}

// EnsureSchema registers the entities. It is idempotent.
func (m *Memory) EnsureSchema(_ context.Context, entities []*model.EntityType) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, et := range entities {
		if err := m.fail("ensure_schema", et.ID); err != nil {
			return err
		}
		m.schemas[et.ID] = et
		if _, ok := m.tables[et.ID]; !ok {
			m.tables[et.ID] = make(map[string]*memRow)
		}
	}
	return nil
}

// Upsert implements Gateway.
func (m *Memory) Upsert(_ context.Context, b Batch) (WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("upsert", b.Entity.ID); err != nil {
		return WriteResult{}, err
	}
	return m.apply(b, false)
}

// AppendTimeSeries implements Gateway.
func (m *Memory) AppendTimeSeries(_ context.Context, b Batch) (WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("append", b.Entity.ID); err != nil {
		return WriteResult{}, err
	}
	return m.apply(b, true)
}

// apply validates the whole batch before touching any state.
func (m *Memory) apply(b Batch, timeSeries bool) (WriteResult, error) {
	et := b.Entity
	table, ok := m.tables[et.ID]
	if !ok {
		return WriteResult{}, fmt.Errorf("table %s does not exist", et.TableName())
	}

	for _, ref := range et.References {
		idx := et.FieldIndex(ref.Column)
		parent := m.tables[ref.Entity]
		for _, r := range b.Rows {
			v := r.Values[idx]
			if v == nil {
				continue
			}
			if _, ok := parent[fmt.Sprint(v)]; !ok {
				return WriteResult{}, &ConstraintViolationError{
					Entity:     et.ID,
					Constraint: fmt.Sprintf("%s_%s_fkey", et.TableName(), ref.Column),
					Cause:      fmt.Errorf("%s=%v not present in %s", ref.Column, v, ref.Entity),
				}
			}
		}
	}

	var res WriteResult
	for _, r := range b.Rows {
		existing, ok := table[r.Key]
		switch {
		case !ok:
			table[r.Key] = &memRow{values: slices.Clone(r.Values), lastSeen: b.RunID}
			res.Written++
		case valuesEqual(existing.values, r.Values):
			existing.lastSeen = b.RunID
			res.Skipped++
		default:
			existing.values = slices.Clone(r.Values)
			existing.lastSeen = b.RunID
			res.Written++
		}

		if timeSeries && r.Symbol != "" {
			marks := m.watermarks[et.ID]
			if marks == nil {
				marks = make(map[string]time.Time)
				m.watermarks[et.ID] = marks
			}
			if r.Time.After(marks[r.Symbol]) {
				marks[r.Symbol] = r.Time
			}
		}
	}

	if b.Checkpoint != nil {
		m.checkpoints[et.ID] = *b.Checkpoint
	}

	return res, nil
}

// GetWatermark implements Gateway.
func (m *Memory) GetWatermark(_ context.Context, entity, symbol string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("get_watermark", entity); err != nil {
		return time.Time{}, false, err
	}
	t, ok := m.watermarks[entity][symbol]
	return t, ok, nil
}

// SetWatermark implements Gateway. Watermarks never move backwards.
func (m *Memory) SetWatermark(_ context.Context, entity, symbol string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("set_watermark", entity); err != nil {
		return err
	}
	marks := m.watermarks[entity]
	if marks == nil {
		marks = make(map[string]time.Time)
		m.watermarks[entity] = marks
	}
	if t.After(marks[symbol]) {
		marks[symbol] = t
	}
	return nil
}

// LoadCheckpoint implements Gateway.
func (m *Memory) LoadCheckpoint(_ context.Context, entity string) (*model.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("load_checkpoint", entity); err != nil {
		return nil, err
	}
	cp, ok := m.checkpoints[entity]
	if !ok {
		return nil, nil
	}
	return &cp, nil
}

// SaveCheckpoint implements Gateway.
func (m *Memory) SaveCheckpoint(_ context.Context, cp model.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("save_checkpoint", cp.Entity); err != nil {
		return err
	}
	m.checkpoints[cp.Entity] = cp
	return nil
}

// ClearCheckpoint implements Gateway.
func (m *Memory) ClearCheckpoint(_ context.Context, entity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("clear_checkpoint", entity); err != nil {
		return err
	}
	delete(m.checkpoints, entity)
	return nil
}

// SaveJob implements Gateway. Saving a job with a known run id replaces it.
func (m *Memory) SaveJob(_ context.Context, job model.ImportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("save_job", job.Entity); err != nil {
		return err
	}
	jobs := m.jobs[job.Entity]
	for i := range jobs {
		if jobs[i].RunID == job.RunID {
			jobs[i] = job
			return nil
		}
	}
	m.jobs[job.Entity] = append(jobs, job)
	return nil
}

// LastJob implements Gateway.
func (m *Memory) LastJob(_ context.Context, entity string) (*model.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("last_job", entity); err != nil {
		return nil, err
	}
	jobs := m.jobs[entity]
	if len(jobs) == 0 {
		return nil, nil
	}
	job := jobs[len(jobs)-1]
	return &job, nil
}

// Keys implements Gateway.
func (m *Memory) Keys(_ context.Context, entity string, filter KeyFilter) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("keys", entity); err != nil {
		return nil, err
	}
	et, ok := m.schemas[entity]
	if !ok {
		return nil, fmt.Errorf("table %s does not exist", entity)
	}

	var keys []string
	for key, row := range m.tables[entity] {
		if matches(et, row.values, filter.Where) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	if filter.Limit > 0 && len(keys) > filter.Limit {
		keys = keys[:filter.Limit]
	}
	return keys, nil
}

// Rows returns a copy of the stored rows of entity keyed by natural key.
func (m *Memory) Rows(entity string) map[string][]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string][]any, len(m.tables[entity]))
	for k, r := range m.tables[entity] {
		out[k] = slices.Clone(r.values)
	}
	return out
}

// Count returns the number of stored rows of entity.
func (m *Memory) Count(entity string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[entity])
}

// LastSeen returns the run id that last wrote or confirmed a row.
func (m *Memory) LastSeen(entity, key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.tables[entity][key]; ok {
		return r.lastSeen
	}
	return ""
}

// Jobs returns every job recorded for entity in start order.
func (m *Memory) Jobs(entity string) []model.ImportJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.jobs[entity])
}

func matches(et *model.EntityType, values []any, where map[string][]string) bool {
	for col, allowed := range where {
		if len(allowed) == 0 {
			continue
		}
		idx := et.FieldIndex(col)
		if idx < 0 || values[idx] == nil {
			return false
		}
		if !slices.Contains(allowed, fmt.Sprint(values[idx])) {
			return false
		}
	}
	return true
}

// valuesEqual compares stored and incoming values, treating numerically
// equal decimals and identical instants as equal.
func valuesEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !valueEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	switch av := a.(type) {
	case decimal.Decimal:
		bv, ok := b.(decimal.Decimal)
		return ok && av.Equal(bv)
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	default:
		return a == b
	}
}

// TableReport implements Reporter. Sizes are not tracked in memory.
func (m *Memory) TableReport(_ context.Context, entities []*model.EntityType) ([]TableStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]TableStats, 0, len(entities))
	for _, et := range entities {
		if _, ok := m.schemas[et.ID]; !ok {
			continue
		}
		out = append(out, TableStats{
			Entity: et.ID,
			Table:  et.TableName(),
			Rows:   int64(len(m.tables[et.ID])),
		})
	}
	return out, nil
}
