package importer

import (
	"time"

	"github.com/rickgao/fmp-data/internal/config"
)

// Default values for Config.
const (
	DefaultConcurrency       = 4
	DefaultSymbolBatchSize   = 50
	DefaultMaxDecodeFailures = 3
)

// Config controls an Orchestrator.
type Config struct {
	Concurrency     int
	SymbolBatchSize int // Upper bound on symbols per request

	// Symbol universe filter for per-symbol entities.
	Exchanges   []string
	SymbolTypes []string
	SymbolLimit int

	// HistoryStart is the first day fetched for a symbol with no
	// watermark. Zero lets the provider choose.
	HistoryStart time.Time

	// MaxDecodeFailures stops a paged import after this many
	// consecutive undecodable pages.
	MaxDecodeFailures int
}

// ConfigFrom maps the import section of the ingester config.
func ConfigFrom(c config.ImportConfig) Config {
	return Config{
		Concurrency:     c.Concurrency,
		SymbolBatchSize: c.SymbolBatchSize,
		Exchanges:       c.Exchanges,
		SymbolTypes:     c.SymbolTypes,
		SymbolLimit:     c.SymbolLimit,
		HistoryStart:    c.HistoryStart(),
	}
}

func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.SymbolBatchSize <= 0 {
		c.SymbolBatchSize = DefaultSymbolBatchSize
	}
	if c.MaxDecodeFailures <= 0 {
		c.MaxDecodeFailures = DefaultMaxDecodeFailures
	}
}
