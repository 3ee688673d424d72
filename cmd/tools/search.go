package main

import (
	"context"
	"fmt"
	"io"

	"github.com/lychee-technology/eavsearch"
	"github.com/lychee-technology/eavsearch/factory"
	"github.com/spf13/cobra"
)

type searchOptions struct {
	configFile  string
	driver      string
	dsn         string
	schemaFile  string
	requestFile string
	countOnly   bool
}

func newSearchCmd() *cobra.Command {
	opts := searchOptions{}
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run a search request against a database",
		Long: `Run a search request against a database opened through database/sql.

Drivers: postgres (lib/pq), pgx, duckdb, sqlite3. SQLite uses the mysql dialect.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.configFile, "config", getenvDefault("CONFIG_FILE", ""), "YAML config file")
	flags.StringVar(&opts.driver, "driver", "", "database/sql driver, overrides the config")
	flags.StringVar(&opts.dsn, "dsn", "", "data source name, overrides the config")
	flags.StringVar(&opts.schemaFile, "schema-file", "", "schema document, overrides the config")
	flags.StringVar(&opts.requestFile, "request", "-", "path to the search request JSON, - for stdin")
	flags.BoolVar(&opts.countOnly, "count", false, "print only the number of matching entities")
	return cmd
}

func runSearch(ctx context.Context, opts searchOptions, stdin io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	config, err := eavsearch.LoadConfig(opts.configFile)
	if err != nil {
		return err
	}
	if opts.driver != "" {
		config.Database.Driver = opts.driver
		if dialect := dialectForDriver(opts.driver); dialect != "" {
			config.Search.Dialect = dialect
		}
	}
	if opts.dsn != "" {
		config.Database.DSN = opts.dsn
	}
	if opts.schemaFile != "" {
		config.Schema.Location = opts.schemaFile
	}

	req, err := readSearchRequest(opts.requestFile, stdin)
	if err != nil {
		return err
	}

	db, closeDB, err := factory.NewDatabase(ctx, config)
	if err != nil {
		return err
	}
	defer closeDB()

	searcher, err := factory.NewSearcherWithConfig(ctx, config, db)
	if err != nil {
		return err
	}

	if opts.countOnly {
		total, err := searcher.Count(ctx, req)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, total)
		return err
	}
	result, err := searcher.Search(ctx, req)
	if err != nil {
		return err
	}
	return writeIndentedJSON(out, result)
}

func dialectForDriver(driver string) string {
	switch driver {
	case "sqlite3", "mysql":
		return "mysql"
	case "postgres", "pgx", "duckdb":
		return "postgres"
	}
	return ""
}
