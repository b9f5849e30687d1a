package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Validate checks that all required fields are set and values are valid.
func (c *IngesterConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.API.APIKey == "" {
		return errors.New("api.api_key is required")
	}
	if c.API.AuthMode != "query" && c.API.AuthMode != "header" {
		return fmt.Errorf("api.auth_mode must be query or header, got %q", c.API.AuthMode)
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}
	if c.API.RequestsPerMinute < 0 {
		return errors.New("api.requests_per_minute must be >= 0")
	}
	if c.API.PageSize < 1 {
		return errors.New("api.page_size must be >= 1")
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.Import.Concurrency < 1 {
		return errors.New("import.concurrency must be >= 1")
	}
	if c.Import.SymbolBatchSize < 1 {
		return errors.New("import.symbol_batch_size must be >= 1")
	}
	if c.Import.SymbolLimit < 0 {
		return errors.New("import.symbol_limit must be >= 0")
	}
	if c.Import.HistoryFrom != "" {
		if _, err := time.Parse("2006-01-02", c.Import.HistoryFrom); err != nil {
			return fmt.Errorf("import.history_from must be YYYY-MM-DD, got %q", c.Import.HistoryFrom)
		}
	}

	for i, s := range c.Schedule {
		if s.Target == "" {
			return fmt.Errorf("schedule[%d].target is required", i)
		}
		if _, err := cron.ParseStandard(s.Cron); err != nil {
			return fmt.Errorf("schedule[%d].cron: %w", i, err)
		}
	}

	if c.Events.BufferSize < 1 {
		return errors.New("events.buffer_size must be >= 1")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
