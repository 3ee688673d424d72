package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/eavsearch"
	"github.com/lychee-technology/eavsearch/internal"
	"github.com/spf13/cobra"
)

type initDBOptions struct {
	host            string
	port            int
	database        string
	user            string
	password        string
	sslMode         string
	attributesTable string
	valuesTable     string
	valueLength     int
	schemaFile      string
	attributesFile  string
}

func newInitDBCmd() *cobra.Command {
	opts := initDBOptions{}
	cmd := &cobra.Command{
		Use:   "init-db",
		Short: "Create the attribute tables, and optionally the entity table, in PostgreSQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			return initDatabase(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.host, "db-host", getenvDefault("DB_HOST", "localhost"), "database host")
	flags.IntVar(&opts.port, "db-port", getenvDefaultInt("DB_PORT", 5432), "database port")
	flags.StringVar(&opts.database, "db-name", getenvDefault("DB_NAME", "eavsearch"), "database name")
	flags.StringVar(&opts.user, "db-user", getenvDefault("DB_USER", "postgres"), "database user")
	flags.StringVar(&opts.password, "db-password", getenvDefault("DB_PASSWORD", "postgres"), "database password")
	flags.StringVar(&opts.sslMode, "db-ssl-mode", getenvDefault("DB_SSL_MODE", "disable"), "database sslmode")
	flags.StringVar(&opts.attributesTable, "attributes-table", getenvDefault("ATTRIBUTES_TABLE", "attributes"), "attribute definition table name")
	flags.StringVar(&opts.valuesTable, "values-table", getenvDefault("ATTRIBUTE_VALUES_TABLE", "attribute_values"), "attribute value table name")
	flags.IntVar(&opts.valueLength, "value-length", 255, "longest string kept in the value column")
	flags.StringVar(&opts.schemaFile, "schema-file", "", "schema document; creates the entity table when set")
	flags.StringVar(&opts.attributesFile, "attributes-file", "", "attributes file from generate-attributes to seed the definition table")
	return cmd
}

func initDatabase(ctx context.Context, opts initDBOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	pool, err := pgxpool.New(ctx, buildConnString(opts))
	if err != nil {
		return fmt.Errorf("create connection pool: %w", err)
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var statements []string
	statements = append(statements, attributeTableDDL(opts)...)
	if opts.schemaFile != "" {
		data, err := os.ReadFile(opts.schemaFile)
		if err != nil {
			return fmt.Errorf("read schema file: %w", err)
		}
		bundle, err := internal.ParseSchemaDocument(data)
		if err != nil {
			return err
		}
		statements = append(statements, entityTableDDL(bundle.Entity))
	}

	var seed map[string]attributeEntry
	if opts.attributesFile != "" {
		if seed, err = loadAttributesFile(opts.attributesFile); err != nil {
			return err
		}
	}

	if err := withTx(ctx, conn, func(tx pgx.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
			}
		}
		return seedAttributes(ctx, tx, opts.attributesTable, seed, out)
	}); err != nil {
		return err
	}

	fmt.Fprintln(out, "Database initialized successfully.")
	return nil
}

func buildConnString(opts initDBOptions) string {
	var userInfo *url.Userinfo
	if opts.password != "" {
		userInfo = url.UserPassword(opts.user, opts.password)
	} else {
		userInfo = url.User(opts.user)
	}
	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", opts.host, opts.port),
		Path:   "/" + opts.database,
	}
	q := url.Values{}
	if opts.sslMode != "" {
		q.Set("sslmode", opts.sslMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// attributeTableDDL creates the definition and value tables. The value index
// leads with attribute_id so each condition join is an index range scan.
func attributeTableDDL(opts initDBOptions) []string {
	attributes := quoteIdentifier(opts.attributesTable)
	values := quoteIdentifier(opts.valuesTable)
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id       BIGSERIAL PRIMARY KEY,
		code     TEXT NOT NULL UNIQUE,
		caption  TEXT NOT NULL DEFAULT ''
	)`, attributes),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		entity_id     BIGINT NOT NULL,
		attribute_id  BIGINT NOT NULL,
		value         VARCHAR(%d) NOT NULL DEFAULT '',
		text_value    TEXT,
		PRIMARY KEY (entity_id, attribute_id)
	)`, values, opts.valueLength),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (attribute_id, value, entity_id)`,
			quoteIdentifier(makeIndexName(opts.valuesTable, "value")), values),
	}
}

// entityTableDDL creates the entity table from the stored properties of schema.
func entityTableDDL(schema *eavsearch.Schema) string {
	var columns, keys []string
	for _, prop := range schema.Properties() {
		if prop.Has(eavsearch.FlagEAV) || prop.Has(eavsearch.FlagNoInsert) {
			continue
		}
		column := quoteIdentifier(prop.ColumnName())
		def := column + " " + columnType(prop)
		if prop.Has(eavsearch.FlagPrimary) {
			keys = append(keys, column)
			if prop.Type == eavsearch.PropertyTypeInteger {
				def = column + " BIGSERIAL"
			}
		}
		if prop.Has(eavsearch.FlagRequired) || prop.Has(eavsearch.FlagPrimary) {
			def += " NOT NULL"
		}
		columns = append(columns, def)
	}
	if len(keys) > 0 {
		columns = append(columns, "PRIMARY KEY ("+strings.Join(keys, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t\t%s\n\t)", quoteIdentifier(schema.Table()), strings.Join(columns, ",\n\t\t"))
}

func columnType(prop *eavsearch.Property) string {
	switch prop.Type {
	case eavsearch.PropertyTypeInteger:
		return "BIGINT"
	case eavsearch.PropertyTypeNumber:
		return "NUMERIC"
	case eavsearch.PropertyTypeBoolean:
		return "BOOLEAN"
	case eavsearch.PropertyTypeDate:
		return "TIMESTAMPTZ"
	case eavsearch.PropertyTypeObject, eavsearch.PropertyTypeArray:
		return "JSONB"
	default:
		if prop.MaxLength > 0 {
			return fmt.Sprintf("VARCHAR(%d)", prop.MaxLength)
		}
		return "TEXT"
	}
}

// seedAttributes inserts attribute definitions in id order, leaving codes
// that already exist untouched.
func seedAttributes(ctx context.Context, tx pgx.Tx, table string, attrs map[string]attributeEntry, out io.Writer) error {
	if len(attrs) == 0 {
		return nil
	}
	codes := make([]string, 0, len(attrs))
	for code := range attrs {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return attrs[codes[i]].ID < attrs[codes[j]].ID })

	insertSQL := fmt.Sprintf(`INSERT INTO %s (id, code, caption) VALUES ($1, $2, $3) ON CONFLICT (code) DO NOTHING`, quoteIdentifier(table))
	inserted := 0
	for _, code := range codes {
		entry := attrs[code]
		tag, err := tx.Exec(ctx, insertSQL, entry.ID, code, entry.Caption)
		if err != nil {
			return fmt.Errorf("insert attribute %s: %w", code, err)
		}
		inserted += int(tag.RowsAffected())
	}
	fmt.Fprintf(out, "Seeded attributes, new: %d, total: %d\n", inserted, len(codes))
	return nil
}

func withTx(ctx context.Context, conn *pgxpool.Conn, fn func(pgx.Tx) error) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w; rollback failed: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func quoteIdentifier(name string) string {
	parts := strings.Split(name, ".")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	if len(result) == 0 {
		result = []string{name}
	}
	return pgx.Identifier(result).Sanitize()
}

func makeIndexName(table, suffix string) string {
	base := strings.ReplaceAll(table, ".", "_")
	base = strings.ReplaceAll(base, `"`, "")
	return fmt.Sprintf("%s_%s_idx", base, suffix)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func getenvDefaultInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}
