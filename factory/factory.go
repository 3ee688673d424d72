package factory

import (
	"context"
	"fmt"

	"github.com/lychee-technology/eavsearch"
	"github.com/lychee-technology/eavsearch/internal"
	"github.com/lychee-technology/eavsearch/internal/sqlast"
	"go.uber.org/zap"
)

// NewSearcherWithConfig creates a Searcher for the schema document named by
// config.Schema.Location, executing through db.
// This is the primary way for external projects to create a Searcher instance.
//
// Usage:
//
//	import (
//	    "github.com/lychee-technology/eavsearch"
//	    "github.com/lychee-technology/eavsearch/factory"
//	)
//
//	config := eavsearch.DefaultConfig()
//	config.Schema.Location = "schemas/products.json"
//	db, closeDB, err := factory.NewDatabase(ctx, config)
//	if err != nil {
//	    // handle error
//	}
//	defer closeDB()
//	searcher, err := factory.NewSearcherWithConfig(ctx, config, db)
func NewSearcherWithConfig(ctx context.Context, config *eavsearch.Config, db eavsearch.Database) (eavsearch.Searcher, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	bundle, err := internal.LoadSchemaBundle(ctx, config.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	return newSearcher(config, bundle, db)
}

// NewSearcherFromDocument is NewSearcherWithConfig for a schema document
// already in memory.
func NewSearcherFromDocument(config *eavsearch.Config, document []byte, db eavsearch.Database) (eavsearch.Searcher, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	bundle, err := internal.ParseSchemaDocument(document)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	return newSearcher(config, bundle, db)
}

func newSearcher(config *eavsearch.Config, bundle *internal.SchemaBundle, db eavsearch.Database) (eavsearch.Searcher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	dialect, err := sqlast.DialectByName(config.Search.Dialect)
	if err != nil {
		return nil, err
	}

	resolver := internal.NewAttributeResolver(db, config.Tables.Attributes, dialect, config.Search.StrictAttributeCodes)
	generator, err := internal.NewQueryGenerator(bundle.Entity, bundle.Joins, resolver, internal.GeneratorOptions{
		Dialect:         dialect,
		AttributesTable: config.Tables.Attributes,
		ValuesTable:     config.Tables.AttributeValues,
		OverflowLength:  config.Search.OverflowLength,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create query generator: %w", err)
	}

	var breaker *internal.CircuitBreaker
	if config.Breaker.Enabled {
		breaker = internal.NewCircuitBreaker(config.Breaker.Threshold, config.Breaker.Window, config.Breaker.OpenDuration)
	}

	zap.S().Infow("searcher ready",
		"table", bundle.Entity.Table(),
		"dialect", dialect.Name(),
		"joins", bundle.Joins.Names(),
		"strictAttributeCodes", config.Search.StrictAttributeCodes,
	)
	return internal.NewSearchService(generator, db, breaker, config.Logging.LogQueries), nil
}

// NewDatabase opens the database named by config.Database: a pgx pool when
// Driver is empty, otherwise a database/sql handle whose driver the binary
// has registered. The returned func releases it.
func NewDatabase(ctx context.Context, config *eavsearch.Config) (eavsearch.Database, func(), error) {
	if config.Database.Driver == "" {
		if err := internal.ValidatePostgresConfig(config.Database); err != nil {
			return nil, nil, err
		}
		pool, err := internal.NewPostgresPool(ctx, config.Database)
		if err != nil {
			return nil, nil, err
		}
		return internal.NewPoolDatabase(pool), pool.Close, nil
	}

	db, err := internal.OpenSQLDatabase(ctx, config.Database)
	if err != nil {
		return nil, nil, err
	}
	return internal.NewSQLDatabase(db), func() { _ = db.Close() }, nil
}
