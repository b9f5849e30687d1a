package config

import (
	"log/slog"
	"time"
)

// IngesterConfig is the root configuration for an ingester instance.
type IngesterConfig struct {
	Instance InstanceConfig  `yaml:"instance"`
	API      APIConfig       `yaml:"api"`
	Database DBConfig        `yaml:"database"`
	Import   ImportConfig    `yaml:"import"`
	Schedule []ScheduleEntry `yaml:"schedule"`
	Events   EventsConfig    `yaml:"events"`
	Server   ServerConfig    `yaml:"server"`
	Log      LogConfig       `yaml:"log"`
}

// InstanceConfig identifies this ingester.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds FMP API settings.
type APIConfig struct {
	BaseURL             string        `yaml:"base_url"`
	APIKey              string        `yaml:"api_key"`
	AuthMode            string        `yaml:"auth_mode"` // "query" or "header"
	Timeout             time.Duration `yaml:"timeout"`
	MaxRetries          int           `yaml:"max_retries"`
	RetryBackoff        time.Duration `yaml:"retry_backoff"`
	RequestsPerMinute   int           `yaml:"requests_per_minute"`
	Burst               int           `yaml:"burst"`
	RateLimitRetries    int           `yaml:"rate_limit_retries"`
	RateLimitMaxBackoff time.Duration `yaml:"rate_limit_max_backoff"`
	PageSize            int           `yaml:"page_size"`
}

// DBConfig holds the PostgreSQL/TimescaleDB connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`

	// AdminDatabase is connected to when creating Name.
	AdminDatabase string `yaml:"admin_database"`
}

// ImportConfig holds orchestrator settings.
type ImportConfig struct {
	Concurrency     int `yaml:"concurrency"`
	SymbolBatchSize int `yaml:"symbol_batch_size"`

	// Symbol universe filter applied to per-symbol entities.
	Exchanges   []string `yaml:"exchanges"`    // exchange_short_name values, e.g. NASDAQ
	SymbolTypes []string `yaml:"symbol_types"` // type values, e.g. stock, etf
	SymbolLimit int      `yaml:"symbol_limit"`

	// HistoryFrom is the first day fetched for a symbol with no watermark.
	// Empty lets the provider choose.
	HistoryFrom string `yaml:"history_from"`
}

// ScheduleEntry runs an import on a cron schedule.
type ScheduleEntry struct {
	Cron   string `yaml:"cron"`
	Target string `yaml:"target"` // entity id or "all"
}

// EventsConfig holds job event fan-out settings.
type EventsConfig struct {
	NATSURL    string `yaml:"nats_url"` // Empty disables NATS publishing
	Subject    string `yaml:"subject"`
	BufferSize int    `yaml:"buffer_size"` // Per-subscriber channel capacity
}

// ServerConfig holds control API settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	MetricsPath     string        `yaml:"metrics_path"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// SlogLevel returns the configured level, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// HistoryStart parses HistoryFrom. The zero time means no lower bound.
func (c ImportConfig) HistoryStart() time.Time {
	if c.HistoryFrom == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", c.HistoryFrom)
	if err != nil {
		return time.Time{}
	}
	return t
}
