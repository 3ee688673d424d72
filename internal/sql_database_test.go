package internal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/lychee-technology/eavsearch"
	"github.com/lychee-technology/eavsearch/internal/sqlast"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sqliteFixture = `
CREATE TABLE products (id INTEGER PRIMARY KEY, sku TEXT NOT NULL, product_name TEXT, price REAL, brand_id INTEGER, created_at TEXT);
CREATE TABLE brands (id INTEGER PRIMARY KEY, name TEXT, country TEXT);
CREATE TABLE reviews (id INTEGER PRIMARY KEY, product_id INTEGER, rating INTEGER, author TEXT);
CREATE TABLE attributes (id INTEGER PRIMARY KEY, code TEXT UNIQUE NOT NULL, caption TEXT);
CREATE TABLE attribute_values (entity_id INTEGER, attribute_id INTEGER, value TEXT, text_value TEXT, PRIMARY KEY (entity_id, attribute_id));

INSERT INTO brands VALUES (1, 'Acme', 'DE'), (2, 'Bolt', 'FR');
INSERT INTO products (id, sku, product_name, price, brand_id) VALUES
  (1, 'A', 'Anvil', 10.5, 1),
  (2, 'B', 'Bolt cutter', 20, 2),
  (3, 'C', 'Crate', 5, 1),
  (4, 'D', 'Drum', 7, NULL);
INSERT INTO reviews VALUES (1, 1, 5, 'alice'), (2, 2, 2, 'bob');
INSERT INTO attributes VALUES (1, 'color', 'Color'), (2, 'weight', 'Weight'), (3, 'description', 'Description');
INSERT INTO attribute_values (entity_id, attribute_id, value, text_value) VALUES
  (1, 1, 'red', NULL), (1, 2, '2.5', NULL),
  (2, 1, 'red', NULL), (2, 2, '10', NULL),
  (3, 1, 'blue', NULL), (3, 2, '3', NULL),
  (4, 1, 'red', NULL),
  (3, 3, '', 'solid oak crate');
`

func newSQLiteService(t *testing.T) *SearchService {
	t.Helper()
	ctx := context.Background()
	db, err := OpenSQLDatabase(ctx, eavsearch.DatabaseConfig{
		Driver:         "sqlite3",
		DSN:            filepath.Join(t.TempDir(), "search.db"),
		MaxConnections: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.ExecContext(ctx, sqliteFixture)
	require.NoError(t, err)

	database := NewSQLDatabase(db)
	resolver := NewAttributeResolver(database, "attributes", sqlast.MySQL, false)
	g, err := NewQueryGenerator(productSchema(), productJoins(t), resolver, GeneratorOptions{
		Dialect:        sqlast.MySQL,
		OverflowLength: 255,
	})
	require.NoError(t, err)
	return NewSearchService(g, database, nil, false)
}

func recordIDs(records []*eavsearch.EntityRecord) []any {
	ids := make([]any, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

func TestSQLiteSearchRoundTrip(t *testing.T) {
	svc := newSQLiteService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		req   *eavsearch.SearchRequest
		ids   []any
		total int64
	}{
		{
			name: "attribute conjunction with numeric range",
			req: searchRequest(where().
				Add(eavsearch.LogicAnd, eavsearch.OpEquals, "color", "red").
				Add(eavsearch.LogicAnd, eavsearch.OpGreaterEq, "weight", 2), 1, 10, "sku", "color", "weight"),
			ids:   []any{int64(1), int64(2)},
			total: 2,
		},
		{
			name: "unset attribute",
			req: searchRequest(where().
				Add(eavsearch.LogicAnd, eavsearch.OpEquals, "color", "red").
				Add(eavsearch.LogicAnd, eavsearch.OpEquals, "weight", nil), 1, 10),
			ids:   []any{int64(4)},
			total: 1,
		},
		{
			name:  "reverse join filter",
			req:   searchRequest(where().Add(eavsearch.LogicAnd, eavsearch.OpGreaterEq, "reviews.rating", 4), 1, 10),
			ids:   []any{int64(1)},
			total: 1,
		},
		{
			name:  "overflowed text value",
			req:   searchRequest(where().Add(eavsearch.LogicAnd, eavsearch.OpLike, "description", "%oak%"), 1, 10, "description"),
			ids:   []any{int64(3)},
			total: 1,
		},
		{
			name: "or bucket",
			req: searchRequest(where().
				Add(eavsearch.LogicAnd, eavsearch.OpEquals, "sku", "C").
				Add(eavsearch.LogicOr, eavsearch.OpEquals, "brand.country", "FR"), 1, 10),
			ids:   []any{int64(2), int64(3)},
			total: 2,
		},
		{
			name: "or bucket next to attribute conjunction",
			req: searchRequest(where().
				Add(eavsearch.LogicAnd, eavsearch.OpEquals, "weight", "10").
				Add(eavsearch.LogicOr, eavsearch.OpEquals, "sku", "D"), 1, 10),
			ids:   []any{int64(2), int64(4)},
			total: 2,
		},
		{
			name: "or bucket next to foreign filter",
			req: searchRequest(where().
				Add(eavsearch.LogicAnd, eavsearch.OpEquals, "brand.country", "FR").
				Add(eavsearch.LogicOr, eavsearch.OpEquals, "sku", "D"), 1, 10),
			ids:   []any{int64(2), int64(4)},
			total: 2,
		},
		{
			name: "or bucket next to numeric range",
			req: searchRequest(where().
				Add(eavsearch.LogicAnd, eavsearch.OpGreater, "weight", 5).
				Add(eavsearch.LogicOr, eavsearch.OpEquals, "color", "blue"), 1, 10),
			ids:   []any{int64(2), int64(3)},
			total: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.Search(ctx, tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.ids, recordIDs(result.Data))
			assert.Equal(t, tt.total, result.TotalRecords)

			total, err := svc.Count(ctx, tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.total, total)
		})
	}
}

func TestSQLiteSearchProjection(t *testing.T) {
	svc := newSQLiteService(t)
	ctx := context.Background()

	req := searchRequest(where().Add(eavsearch.LogicAnd, eavsearch.OpEquals, "brand.country", "DE"), 1, 10,
		"name", "brand.name", "color", "description")
	result, err := svc.Search(ctx, req)
	require.NoError(t, err)
	require.Len(t, result.Data, 2)

	first := result.Data[0].Attributes
	assert.Equal(t, "Anvil", first["name"])
	assert.Equal(t, "Acme", first["brand.name"])
	assert.Equal(t, "red", first["color"])
	assert.Equal(t, "", first["description"], "unset attributes read as empty")

	third := result.Data[1].Attributes
	assert.Equal(t, "blue", third["color"])
	assert.Equal(t, "solid oak crate", third["description"])
}

func TestSQLitePlainSearchKeepsWholeEntities(t *testing.T) {
	svc := newSQLiteService(t)

	req := searchRequest(where().Add(eavsearch.LogicAnd, eavsearch.OpIn, "sku", []any{"A", "B"}), 2, 1, "color", "weight")
	result, err := svc.Search(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Data, 1)
	assert.Equal(t, int64(2), result.Data[0].ID)
	assert.Equal(t, "red", result.Data[0].Attributes["color"])
	assert.Equal(t, "10", result.Data[0].Attributes["weight"])
	assert.Equal(t, 2, result.TotalPages)
	assert.False(t, result.HasNext)
}

func TestPrepareIn(t *testing.T) {
	list, args := PrepareIn([]any{"a", 2, true}, nil)
	assert.Equal(t, "($1,$2,$3)", list)
	assert.Equal(t, []any{"a", 2, true}, args)

	list, args = PrepareIn([]any{"a"}, sqlast.MySQL)
	assert.Equal(t, "(?)", list)
	assert.Len(t, args, 1)
}

func TestOpenSQLDatabaseUnknownDriver(t *testing.T) {
	_, err := OpenSQLDatabase(context.Background(), eavsearch.DatabaseConfig{Driver: "nosuchdriver", DSN: "x"})
	assert.Error(t, err)
}
