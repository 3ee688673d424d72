package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/lychee-technology/eavsearch"
)

// ValidatePostgresConfig performs basic sanity checks on Postgres-related settings.
func ValidatePostgresConfig(cfg eavsearch.DatabaseConfig) error {
	if cfg.DSN != "" {
		return nil
	}
	if cfg.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("database.port must be a valid TCP port")
	}
	if cfg.MaxConnections <= 0 {
		return fmt.Errorf("database.maxConnections must be greater than 0")
	}
	if cfg.UseIAMAuth && cfg.Region == "" {
		return fmt.Errorf("database.region is required with IAM auth")
	}
	return nil
}

// DatabaseHealthCheck runs a trivial query through db.
// timeout may be 0 to use a sensible default (5s).
func DatabaseHealthCheck(ctx context.Context, db eavsearch.Database, timeout time.Duration) error {
	if db == nil {
		return fmt.Errorf("no database configured")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := db.Select(ctx, "SELECT 1 AS ok")
	if err != nil {
		return fmt.Errorf("database health query failed: %w", err)
	}
	if len(rows) != 1 {
		return fmt.Errorf("database health query returned %d rows", len(rows))
	}
	return nil
}
