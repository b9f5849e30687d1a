package database

import (
	"fmt"
	"net/url"

	"github.com/rickgao/fmp-data/internal/config"
)

// BuildConnString builds a PostgreSQL connection string from config.
func BuildConnString(cfg config.DBConfig) string {
	return buildConnString(cfg, cfg.Name)
}

// AdminConnString targets the admin database, used to create cfg.Name.
func AdminConnString(cfg config.DBConfig) string {
	name := cfg.AdminDatabase
	if name == "" {
		name = config.DefaultAdminDatabase
	}
	return buildConnString(cfg, name)
}

func buildConnString(cfg config.DBConfig, dbName string) string {
	// URL-encode password to handle special characters
	escapedPassword := url.QueryEscape(cfg.Password)

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		escapedPassword,
		cfg.Host,
		cfg.Port,
		dbName,
		sslMode,
	)
}
