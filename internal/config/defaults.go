package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBaseURL             = "https://financialmodelingprep.com"
	DefaultAuthMode            = "query"
	DefaultAPITimeout          = 30 * time.Second
	DefaultMaxRetries          = 5
	DefaultRetryBackoff        = 1 * time.Second
	DefaultRequestsPerMinute   = 300
	DefaultBurst               = 10
	DefaultRateLimitRetries    = 8
	DefaultRateLimitMaxBackoff = 60 * time.Second
	DefaultPageSize            = 1000
	DefaultDBPort              = 5432
	DefaultDBSSLMode           = "prefer"
	DefaultMaxConns            = 10
	DefaultMinConns            = 2
	DefaultAdminDatabase       = "postgres"
	DefaultImportConcurrency   = 4
	DefaultSymbolBatchSize     = 50
	DefaultEventsSubject       = "fmp.import.jobs"
	DefaultEventsBufferSize    = 256
	DefaultServerPort          = 8080
	DefaultMetricsPath         = "/metrics"
	DefaultShutdownTimeout     = 10 * time.Second
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
)

func (c *IngesterConfig) applyDefaults() {
	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.AuthMode == "" {
		c.API.AuthMode = DefaultAuthMode
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RetryBackoff == 0 {
		c.API.RetryBackoff = DefaultRetryBackoff
	}
	if c.API.RequestsPerMinute == 0 {
		c.API.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if c.API.Burst == 0 {
		c.API.Burst = DefaultBurst
	}
	if c.API.RateLimitRetries == 0 {
		c.API.RateLimitRetries = DefaultRateLimitRetries
	}
	if c.API.RateLimitMaxBackoff == 0 {
		c.API.RateLimitMaxBackoff = DefaultRateLimitMaxBackoff
	}
	if c.API.PageSize == 0 {
		c.API.PageSize = DefaultPageSize
	}

	// Database defaults
	applyDBDefaults(&c.Database)

	// Import defaults
	if c.Import.Concurrency == 0 {
		c.Import.Concurrency = DefaultImportConcurrency
	}
	if c.Import.SymbolBatchSize == 0 {
		c.Import.SymbolBatchSize = DefaultSymbolBatchSize
	}

	// Events defaults
	if c.Events.Subject == "" {
		c.Events.Subject = DefaultEventsSubject
	}
	if c.Events.BufferSize == 0 {
		c.Events.BufferSize = DefaultEventsBufferSize
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.MetricsPath == "" {
		c.Server.MetricsPath = DefaultMetricsPath
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
	if db.AdminDatabase == "" {
		db.AdminDatabase = DefaultAdminDatabase
	}
}
