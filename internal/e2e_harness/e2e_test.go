//go:build integration

package e2e_harness

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/lychee-technology/eavsearch"
	"github.com/lychee-technology/eavsearch/factory"
	"github.com/lychee-technology/eavsearch/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type catalogCase struct {
	name  string
	req   func() *eavsearch.SearchRequest
	ids   []string
	total int64
}

func catalogCases() []catalogCase {
	return []catalogCase{
		{
			name: "numeric range on attribute",
			req: func() *eavsearch.SearchRequest {
				tree := eavsearch.NewConditionTree().
					Add(eavsearch.LogicAnd, eavsearch.OpEquals, "color", "red").
					Add(eavsearch.LogicAnd, eavsearch.OpGreaterEq, "weight", 2)
				req := eavsearch.NewSearchRequest(tree, 10)
				req.AddAttribute("sku", "color", "weight")
				return req
			},
			ids:   []string{"1", "2"},
			total: 2,
		},
		{
			name: "unset attribute",
			req: func() *eavsearch.SearchRequest {
				tree := eavsearch.NewConditionTree().
					Add(eavsearch.LogicAnd, eavsearch.OpEquals, "color", "red").
					Add(eavsearch.LogicAnd, eavsearch.OpEquals, "weight", nil)
				return eavsearch.NewSearchRequest(tree, 10)
			},
			ids:   []string{"4"},
			total: 1,
		},
		{
			name: "foreign and reverse filters",
			req: func() *eavsearch.SearchRequest {
				tree := eavsearch.NewConditionTree().
					Add(eavsearch.LogicAnd, eavsearch.OpEquals, "brand.country", "DE").
					Add(eavsearch.LogicAnd, eavsearch.OpGreaterEq, "reviews.rating", 4)
				req := eavsearch.NewSearchRequest(tree, 10)
				req.AddAttribute("brand.name")
				return req
			},
			ids:   []string{"1"},
			total: 1,
		},
		{
			name: "overflowed description",
			req: func() *eavsearch.SearchRequest {
				tree := eavsearch.NewConditionTree().Add(eavsearch.LogicOr, eavsearch.OpLike, "description", "%oak%")
				req := eavsearch.NewSearchRequest(tree, 10)
				req.AddAttribute("description")
				return req
			},
			ids:   []string{"3"},
			total: 1,
		},
		{
			name: "ordered plain search",
			req: func() *eavsearch.SearchRequest {
				tree := eavsearch.NewConditionTree().Add(eavsearch.LogicAnd, eavsearch.OpIn, "sku", []any{"A", "B", "C"})
				req := eavsearch.NewSearchRequest(tree, 2)
				req.OrderBy = []eavsearch.OrderBy{{Property: "price", SortOrder: eavsearch.SortOrderDesc}}
				return req
			},
			ids:   []string{"2", "1"},
			total: 3,
		},
	}
}

func runCatalogCases(t *testing.T, searcher eavsearch.Searcher) {
	t.Helper()
	for _, tc := range catalogCases() {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			result, err := searcher.Search(ctx, tc.req())
			require.NoError(t, err)

			ids := make([]string, len(result.Data))
			for i, record := range result.Data {
				ids[i] = fmt.Sprint(record.ID)
			}
			assert.Equal(t, tc.ids, ids)
			assert.Equal(t, tc.total, result.TotalRecords)

			total, err := searcher.Count(ctx, tc.req())
			require.NoError(t, err)
			assert.Equal(t, tc.total, total)
		})
	}
}

func readSchemaDocument(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(SchemaDocument)
	require.NoError(t, err)
	return data
}

func TestPostgresCatalogSearch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container in -short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	h := &TestHarness{}
	dsn, err := h.StartPostgres(ctx)
	require.NoError(t, err)
	defer h.StopPostgres(context.Background())
	require.NoError(t, SeedCatalog(ctx, h.PGDB))

	for _, driver := range []string{"", "postgres", "pgx"} {
		t.Run("driver="+driver, func(t *testing.T) {
			config := eavsearch.DefaultConfig()
			config.Database.Driver = driver
			config.Database.DSN = dsn
			config.Schema.Location = SchemaDocument

			db, closeDB, err := factory.NewDatabase(ctx, config)
			require.NoError(t, err)
			defer closeDB()
			require.NoError(t, internal.DatabaseHealthCheck(ctx, db, 0))

			searcher, err := factory.NewSearcherWithConfig(ctx, config, db)
			require.NoError(t, err)
			runCatalogCases(t, searcher)
		})
	}
}

func TestDuckDBCatalogSearch(t *testing.T) {
	ctx := context.Background()
	h := &TestHarness{}
	db, err := h.StartDuckDB(ctx)
	require.NoError(t, err)
	defer h.StopDuckDB()
	require.NoError(t, SeedCatalog(ctx, db))

	config := eavsearch.DefaultConfig()
	searcher, err := factory.NewSearcherFromDocument(config, readSchemaDocument(t), internal.NewSQLDatabase(db))
	require.NoError(t, err)
	runCatalogCases(t, searcher)
}

func TestSchemaDocumentFromS3(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping s3 container in -short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	h := &TestHarness{}
	endpoint, err := h.StartS3(ctx)
	require.NoError(t, err)
	defer h.StopS3(context.Background())

	db, err := h.StartDuckDB(ctx)
	require.NoError(t, err)
	defer h.StopDuckDB()
	require.NoError(t, SeedCatalog(ctx, db))

	config := eavsearch.DefaultConfig()
	config.Schema = eavsearch.SchemaConfig{
		Location:  "s3://schemas/catalog/products.json",
		Endpoint:  endpoint,
		AccessKey: S3AccessKey,
		SecretKey: S3SecretKey,
	}
	require.NoError(t, UploadSchemaDocument(ctx, config.Schema, "schemas", "catalog/products.json", readSchemaDocument(t)))

	searcher, err := factory.NewSearcherWithConfig(ctx, config, internal.NewSQLDatabase(db))
	require.NoError(t, err)
	runCatalogCases(t, searcher)

	config.Schema.Location = "s3://schemas/catalog/missing.json"
	_, err = factory.NewSearcherWithConfig(ctx, config, internal.NewSQLDatabase(db))
	assert.True(t, eavsearch.IsSearchError(err, eavsearch.ErrCodeSchemaNotFound))
}
