package model

import (
	"testing"
	"time"
)

func TestEntityType_TableName(t *testing.T) {
	e := &EntityType{ID: "daily_chart"}
	if got := e.TableName(); got != "daily_chart" {
		t.Errorf("TableName() = %q, want %q", got, "daily_chart")
	}

	e.Table = "dailychart"
	if got := e.TableName(); got != "dailychart" {
		t.Errorf("TableName() = %q, want %q", got, "dailychart")
	}
}

func TestEntityType_TimeGranule(t *testing.T) {
	tests := []struct {
		name string
		kind FieldKind
		want time.Duration
	}{
		{"date", KindDate, 24 * time.Hour},
		{"timestamp", KindTimestamp, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &EntityType{
				TimeField: "at",
				Fields:    []FieldDef{{Name: "at", Kind: tt.kind}},
			}
			if got := e.TimeGranule(); got != tt.want {
				t.Errorf("TimeGranule() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntityType_FieldLookup(t *testing.T) {
	e := &EntityType{Fields: []FieldDef{
		{Name: "symbol", Kind: KindString},
		{Name: "adj_close", Key: "adjClose", Kind: KindDecimal},
	}}

	f, ok := e.Field("adj_close")
	if !ok {
		t.Fatal("adj_close not found")
	}
	if f.ProviderKey() != "adjClose" {
		t.Errorf("ProviderKey() = %q, want %q", f.ProviderKey(), "adjClose")
	}
	if e.FieldIndex("symbol") != 0 {
		t.Errorf("FieldIndex(symbol) = %d, want 0", e.FieldIndex("symbol"))
	}
	if e.FieldIndex("missing") != -1 {
		t.Errorf("FieldIndex(missing) = %d, want -1", e.FieldIndex("missing"))
	}
	if f, _ := e.Field("symbol"); f.ProviderKey() != "symbol" {
		t.Errorf("ProviderKey() = %q, want %q", f.ProviderKey(), "symbol")
	}
}

func TestJobStatus_Terminal(t *testing.T) {
	tests := []struct {
		status JobStatus
		want   bool
	}{
		{StatusPending, false},
		{StatusRunning, false},
		{StatusSucceeded, true},
		{StatusPartial, true},
		{StatusFailed, true},
		{StatusSkippedDependency, true},
		{StatusCancelled, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestNormalizeSymbol(t *testing.T) {
	tests := map[string]string{
		"aapl":     "AAPL",
		" tte.pa ": "TTE.PA",
		"":         "",
	}
	for in, want := range tests {
		if got := NormalizeSymbol(in); got != want {
			t.Errorf("NormalizeSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}
