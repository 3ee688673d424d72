package sqlast

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Dialect covers the handful of places where supported databases disagree.
type Dialect interface {
	Name() string
	Placeholder(n int) string
	BindingKey(n int) string
	QuoteIdent(name string) string
	QuoteAlias(alias string) string
	Limit(offset, count int) string
	CastNumeric(expr string) string
}

// DialectByName returns the named dialect; "" selects Postgres.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "", "postgres", "postgresql", "pgx", "duckdb":
		return Postgres, nil
	case "mysql", "mariadb", "sqlite", "sqlite3":
		return MySQL, nil
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", name)
	}
}

var (
	Postgres Dialect = postgresDialect{}
	MySQL    Dialect = mysqlDialect{}
)

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresDialect) BindingKey(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresDialect) QuoteIdent(name string) string {
	return pgx.Identifier(splitQualified(name)).Sanitize()
}

func (postgresDialect) QuoteAlias(alias string) string {
	return pgx.Identifier{alias}.Sanitize()
}

func (postgresDialect) Limit(offset, count int) string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", count, offset)
}

// numericPattern matches the decimal literals NUMERIC accepts. Values that
// do not match compare as NULL instead of failing the statement.
const numericPattern = `^[-+]?([0-9]+(\.[0-9]*)?|\.[0-9]+)([eE][-+]?[0-9]+)?$`

func (postgresDialect) CastNumeric(expr string) string {
	return "CASE WHEN " + expr + " ~ '" + numericPattern + "' THEN CAST(" + expr + " AS NUMERIC) END"
}

// mysqlDialect also serves SQLite, which accepts backticks and LIMIT offset,count.
type mysqlDialect struct{}

func (mysqlDialect) Name() string { return "mysql" }

func (mysqlDialect) Placeholder(int) string { return "?" }

func (mysqlDialect) BindingKey(n int) string { return fmt.Sprintf("?%d", n) }

func (mysqlDialect) QuoteIdent(name string) string {
	parts := splitQualified(name)
	for i, p := range parts {
		parts[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
	}
	return strings.Join(parts, ".")
}

func (mysqlDialect) QuoteAlias(alias string) string {
	return "`" + strings.ReplaceAll(alias, "`", "``") + "`"
}

func (mysqlDialect) Limit(offset, count int) string {
	return fmt.Sprintf("LIMIT %d,%d", offset, count)
}

// CastNumeric needs no guard: MySQL and SQLite read malformed numbers as 0.
func (mysqlDialect) CastNumeric(expr string) string {
	return "CAST(" + expr + " AS DECIMAL(65,10))"
}

// splitQualified splits "schema.table" and trims stray quotes.
func splitQualified(name string) []string {
	parts := strings.Split(name, ".")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.Trim(part, " \"`")
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}
	if len(clean) == 0 {
		clean = []string{name}
	}
	return clean
}
