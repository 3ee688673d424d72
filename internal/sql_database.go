package internal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lychee-technology/eavsearch"
	"github.com/lychee-technology/eavsearch/internal/sqlast"
)

// SQLDatabase runs searches through database/sql, for drivers without a
// native pool (lib/pq, pgx stdlib, DuckDB, SQLite).
type SQLDatabase struct {
	db *sql.DB
}

var _ eavsearch.Database = (*SQLDatabase)(nil)

// NewSQLDatabase wraps db. The handle stays owned by the caller.
func NewSQLDatabase(db *sql.DB) *SQLDatabase {
	return &SQLDatabase{db: db}
}

// OpenSQLDatabase opens and pings a database/sql handle with pool settings from cfg.
func OpenSQLDatabase(ctx context.Context, cfg eavsearch.DatabaseConfig) (*sql.DB, error) {
	dsn := cfg.DSN
	if dsn == "" && (cfg.Driver == "postgres" || cfg.Driver == "pgx") {
		dsn = cfg.ConnString()
	}
	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	return db, nil
}

// Select runs query and returns each row keyed by column name. Byte slices
// are returned as strings.
func (d *SQLDatabase) Select(ctx context.Context, query string, args ...any) ([]eavsearch.Row, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	var out []eavsearch.Row
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(eavsearch.Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// PrepareIn renders a placeholder list "(p1,p2,...)" for values, numbered
// from 1 in dialect d, with the bindings to pass alongside.
func PrepareIn(values []any, d sqlast.Dialect) (string, []any) {
	if d == nil {
		d = sqlast.Postgres
	}
	items := make([]sqlast.Expr, len(values))
	for i, v := range values {
		items[i] = sqlast.Param{Value: v}
	}
	list, bindings := sqlast.RenderExpr(sqlast.List(items), d)
	args := make([]any, len(bindings))
	for i, b := range bindings {
		args[i] = b.Value
	}
	return list, args
}
