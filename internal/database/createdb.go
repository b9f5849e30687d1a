package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/fmp-data/internal/config"
)

// CreateDatabase creates cfg.Name if it does not exist and installs the
// timescaledb extension into it. It reports whether the database was new.
func CreateDatabase(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (bool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	admin, err := pgx.Connect(ctx, AdminConnString(cfg))
	if err != nil {
		return false, fmt.Errorf("connect admin database: %w", unavailable(err))
	}
	defer admin.Close(ctx)

	var exists bool
	if err := admin.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, cfg.Name,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check database %s: %w", cfg.Name, err)
	}

	if !exists {
		if _, err := admin.Exec(ctx, "CREATE DATABASE "+quote(cfg.Name)); err != nil {
			return false, fmt.Errorf("create database %s: %w", cfg.Name, err)
		}
		logger.Info("database created", "name", cfg.Name)
	} else {
		logger.Info("database exists", "name", cfg.Name)
	}

	conn, err := pgx.Connect(ctx, BuildConnString(cfg))
	if err != nil {
		return !exists, fmt.Errorf("connect database %s: %w", cfg.Name, unavailable(err))
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS timescaledb`); err != nil {
		// Plain PostgreSQL still works; time-series tables stay regular tables.
		logger.Warn("timescaledb extension unavailable", "error", err)
	}

	return !exists, nil
}
