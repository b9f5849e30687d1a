package importer

import (
	"testing"
	"time"

	"github.com/rickgao/fmp-data/internal/config"
)

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.ImportConfig{
		Exchanges:   []string{"NASDAQ"},
		SymbolLimit: 25,
		HistoryFrom: "2020-01-01",
	})
	cfg.applyDefaults()

	if cfg.Concurrency != DefaultConcurrency {
		t.Errorf("Concurrency = %d, want %d", cfg.Concurrency, DefaultConcurrency)
	}
	if cfg.SymbolBatchSize != DefaultSymbolBatchSize {
		t.Errorf("SymbolBatchSize = %d, want %d", cfg.SymbolBatchSize, DefaultSymbolBatchSize)
	}
	if cfg.MaxDecodeFailures != DefaultMaxDecodeFailures {
		t.Errorf("MaxDecodeFailures = %d, want %d", cfg.MaxDecodeFailures, DefaultMaxDecodeFailures)
	}
	if cfg.SymbolLimit != 25 || len(cfg.Exchanges) != 1 {
		t.Errorf("filter = %v limit %d", cfg.Exchanges, cfg.SymbolLimit)
	}
	if !cfg.HistoryStart.Equal(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("HistoryStart = %v", cfg.HistoryStart)
	}
}
