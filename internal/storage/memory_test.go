package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/fmp-data/internal/model"
)

var (
	symbols = &model.EntityType{
		ID: "stock_symbol",
		Fields: []model.FieldDef{
			{Name: "symbol", Kind: model.KindString},
			{Name: "exchange_short_name", Kind: model.KindString},
		},
		Key: []string{"symbol"},
	}
	bars = &model.EntityType{
		ID: "daily_chart",
		Fields: []model.FieldDef{
			{Name: "symbol", Kind: model.KindString},
			{Name: "date", Kind: model.KindDate},
			{Name: "close", Kind: model.KindDecimal},
		},
		Key:         []string{"symbol", "date"},
		DependsOn:   []string{"stock_symbol"},
		References:  []model.Reference{{Column: "symbol", Entity: "stock_symbol"}},
		TimeSeries:  true,
		TimeField:   "date",
		SymbolField: "symbol",
	}
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func symbolRow(sym, exch string) Row {
	return Row{Key: EncodeKey(sym), Symbol: sym, Values: []any{sym, exch}}
}

func barRow(sym string, d int, close string) Row {
	return Row{
		Key:    EncodeKey(sym, day(d).Format("2006-01-02")),
		Symbol: sym,
		Time:   day(d),
		Values: []any{sym, day(d), decimal.RequireFromString(close)},
	}
}

func newSeeded(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	ctx := context.Background()
	if err := m.EnsureSchema(ctx, []*model.EntityType{symbols, bars}); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	_, err := m.Upsert(ctx, Batch{Entity: symbols, RunID: "r0", Rows: []Row{
		symbolRow("AAPL", "NASDAQ"),
		symbolRow("MC.PA", "EURONEXT"),
		symbolRow("MSFT", "NASDAQ"),
	}})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	return m
}

func TestMemory_UpsertCounts(t *testing.T) {
	m := newSeeded(t)
	ctx := context.Background()

	res, err := m.Upsert(ctx, Batch{Entity: symbols, RunID: "r1", Rows: []Row{
		symbolRow("AAPL", "NASDAQ"), // unchanged
		symbolRow("MSFT", "NYSE"),   // changed
		symbolRow("IBM", "NYSE"),    // new
	}})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if res.Written != 2 || res.Skipped != 1 {
		t.Errorf("result = %+v, want Written=2 Skipped=1", res)
	}
	if m.Count("stock_symbol") != 4 {
		t.Errorf("Count = %d, want 4", m.Count("stock_symbol"))
	}
	if got := m.Rows("stock_symbol")["MSFT"][1]; got != "NYSE" {
		t.Errorf("MSFT exchange = %v, want NYSE", got)
	}
	if got := m.LastSeen("stock_symbol", "AAPL"); got != "r1" {
		t.Errorf("LastSeen(AAPL) = %q, want r1", got)
	}
	if got := m.LastSeen("stock_symbol", "MC.PA"); got != "r0" {
		t.Errorf("LastSeen(MC.PA) = %q, want r0", got)
	}
}

func TestMemory_AppendTimeSeries(t *testing.T) {
	m := newSeeded(t)
	ctx := context.Background()
	cp := &model.Checkpoint{Entity: "daily_chart", Cursor: "AAPL", RunID: "r1"}

	res, err := m.AppendTimeSeries(ctx, Batch{Entity: bars, RunID: "r1", Checkpoint: cp, Rows: []Row{
		barRow("AAPL", 2, "185.64"),
		barRow("AAPL", 3, "184.25"),
	}})
	if err != nil {
		t.Fatalf("AppendTimeSeries() error = %v", err)
	}
	if res.Written != 2 {
		t.Errorf("Written = %d, want 2", res.Written)
	}

	wm, ok, err := m.GetWatermark(ctx, "daily_chart", "AAPL")
	if err != nil || !ok || !wm.Equal(day(3)) {
		t.Errorf("GetWatermark() = (%v, %v, %v), want (%v, true, nil)", wm, ok, err, day(3))
	}

	got, err := m.LoadCheckpoint(ctx, "daily_chart")
	if err != nil || got == nil || got.Cursor != "AAPL" {
		t.Errorf("LoadCheckpoint() = (%+v, %v)", got, err)
	}

	// Same values with a different decimal scale are duplicates.
	res, err = m.AppendTimeSeries(ctx, Batch{Entity: bars, RunID: "r2", Rows: []Row{
		barRow("AAPL", 3, "184.250"),
	}})
	if err != nil {
		t.Fatalf("AppendTimeSeries() error = %v", err)
	}
	if res.Written != 0 || res.Skipped != 1 {
		t.Errorf("result = %+v, want Written=0 Skipped=1", res)
	}
}

func TestMemory_ConstraintViolationIsAtomic(t *testing.T) {
	m := newSeeded(t)
	ctx := context.Background()

	_, err := m.AppendTimeSeries(ctx, Batch{Entity: bars, RunID: "r1", Rows: []Row{
		barRow("AAPL", 2, "185.64"),
		barRow("GHOST", 2, "1.00"),
	}})

	var cv *ConstraintViolationError
	if !errors.As(err, &cv) {
		t.Fatalf("error = %v, want *ConstraintViolationError", err)
	}
	if m.Count("daily_chart") != 0 {
		t.Errorf("Count = %d, want 0 after rejected batch", m.Count("daily_chart"))
	}
	if _, ok, _ := m.GetWatermark(ctx, "daily_chart", "AAPL"); ok {
		t.Error("watermark advanced by rejected batch")
	}
}

func TestMemory_FailHook(t *testing.T) {
	m := newSeeded(t)
	m.FailHook = func(op, entity string) error {
		if op == "append" {
			return ErrStorageUnavailable
		}
		return nil
	}

	_, err := m.AppendTimeSeries(context.Background(), Batch{Entity: bars, Rows: []Row{barRow("AAPL", 2, "1")}})
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("error = %v, want ErrStorageUnavailable", err)
	}
}

func TestMemory_Watermark(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, ok, _ := m.GetWatermark(ctx, "daily_chart", "AAPL"); ok {
		t.Fatal("watermark present before any write")
	}

	m.SetWatermark(ctx, "daily_chart", "AAPL", day(5))
	m.SetWatermark(ctx, "daily_chart", "AAPL", day(4))

	wm, _, _ := m.GetWatermark(ctx, "daily_chart", "AAPL")
	if !wm.Equal(day(5)) {
		t.Errorf("watermark = %v, want %v (never backwards)", wm, day(5))
	}
}

func TestMemory_Checkpoints(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if cp, err := m.LoadCheckpoint(ctx, "x"); cp != nil || err != nil {
		t.Fatalf("LoadCheckpoint() = (%v, %v), want (nil, nil)", cp, err)
	}
	if err := m.SaveCheckpoint(ctx, model.Checkpoint{Entity: "x", Cursor: "3"}); err != nil {
		t.Fatalf("SaveCheckpoint() error = %v", err)
	}
	if cp, _ := m.LoadCheckpoint(ctx, "x"); cp == nil || cp.Cursor != "3" {
		t.Errorf("LoadCheckpoint() = %+v, want cursor 3", cp)
	}
	if err := m.ClearCheckpoint(ctx, "x"); err != nil {
		t.Fatalf("ClearCheckpoint() error = %v", err)
	}
	if cp, _ := m.LoadCheckpoint(ctx, "x"); cp != nil {
		t.Errorf("LoadCheckpoint() after clear = %+v", cp)
	}
}

func TestMemory_Jobs(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.SaveJob(ctx, model.ImportJob{RunID: "a", Entity: "e", Status: model.StatusRunning})
	m.SaveJob(ctx, model.ImportJob{RunID: "a", Entity: "e", Status: model.StatusSucceeded})
	m.SaveJob(ctx, model.ImportJob{RunID: "b", Entity: "e", Status: model.StatusFailed})

	if n := len(m.Jobs("e")); n != 2 {
		t.Errorf("len(Jobs) = %d, want 2", n)
	}
	last, err := m.LastJob(ctx, "e")
	if err != nil || last == nil || last.RunID != "b" {
		t.Errorf("LastJob() = (%+v, %v), want run b", last, err)
	}
	if job, _ := m.LastJob(ctx, "other"); job != nil {
		t.Errorf("LastJob(other) = %+v, want nil", job)
	}
}

func TestMemory_Keys(t *testing.T) {
	m := newSeeded(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter KeyFilter
		want   []string
	}{
		{"all sorted", KeyFilter{}, []string{"AAPL", "MC.PA", "MSFT"}},
		{"by exchange", KeyFilter{Where: map[string][]string{"exchange_short_name": {"NASDAQ"}}}, []string{"AAPL", "MSFT"}},
		{"limit", KeyFilter{Limit: 1}, []string{"AAPL"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Keys(ctx, "stock_symbol", tt.filter)
			if err != nil {
				t.Fatalf("Keys() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Keys() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Keys()[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}

	if _, err := m.Keys(ctx, "unknown", KeyFilter{}); err == nil {
		t.Error("Keys(unknown) expected error")
	}
}

func TestEncodeKey(t *testing.T) {
	key := EncodeKey("AAPL", "2024-01-02")
	parts := DecodeKey(key)
	if len(parts) != 2 || parts[0] != "AAPL" || parts[1] != "2024-01-02" {
		t.Errorf("DecodeKey(EncodeKey()) = %v", parts)
	}
	if EncodeKey("AAPL") != "AAPL" {
		t.Errorf("single-part key = %q, want AAPL", EncodeKey("AAPL"))
	}
}
