package internal

import (
	"context"
	"sync"
	"testing"

	"github.com/lychee-technology/eavsearch"
	"github.com/lychee-technology/eavsearch/internal/sqlast"
	"github.com/stretchr/testify/require"
)

// staticResolver resolves codes from a fixed map and records each call.
type staticResolver struct {
	mu    sync.Mutex
	ids   map[string]int64
	calls [][]string
	err   error
}

func (r *staticResolver) ResolveIDs(_ context.Context, codes []string) (map[string]int64, error) {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string(nil), codes...))
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	out := make(map[string]int64, len(codes))
	for _, code := range codes {
		if id, ok := r.ids[code]; ok {
			out[code] = id
		}
	}
	return out, nil
}

func productSchema() *eavsearch.Schema {
	return eavsearch.MustSchema("products",
		&eavsearch.Property{Name: "id", Type: eavsearch.PropertyTypeInteger, Flags: eavsearch.FlagPrimary},
		&eavsearch.Property{Name: "sku", Type: eavsearch.PropertyTypeString, MaxLength: 64, Flags: eavsearch.FlagRequired},
		&eavsearch.Property{Name: "name", Column: "product_name", Type: eavsearch.PropertyTypeString},
		&eavsearch.Property{Name: "price", Type: eavsearch.PropertyTypeNumber},
		&eavsearch.Property{Name: "brand_id", Type: eavsearch.PropertyTypeInteger, Flags: eavsearch.FlagForeignJoin},
		&eavsearch.Property{Name: "created_at", Type: eavsearch.PropertyTypeDate},
		&eavsearch.Property{Name: "tags", Type: eavsearch.PropertyTypeArray},
		&eavsearch.Property{Name: "search_vector", Type: eavsearch.PropertyTypeString, Flags: eavsearch.FlagNoInsert},
		&eavsearch.Property{Name: "color", Type: eavsearch.PropertyTypeString, Title: "Color", Flags: eavsearch.FlagEAV},
		&eavsearch.Property{Name: "weight", Type: eavsearch.PropertyTypeNumber, Flags: eavsearch.FlagEAV},
		&eavsearch.Property{Name: "description", Type: eavsearch.PropertyTypeString, MaxLength: 4000, Flags: eavsearch.FlagEAV},
	)
}

func productJoins(t *testing.T) *JoinRegistry {
	t.Helper()
	brands := eavsearch.MustSchema("brands",
		&eavsearch.Property{Name: "id", Type: eavsearch.PropertyTypeInteger, Flags: eavsearch.FlagPrimary},
		&eavsearch.Property{Name: "name", Type: eavsearch.PropertyTypeString},
		&eavsearch.Property{Name: "country", Type: eavsearch.PropertyTypeString},
		&eavsearch.Property{Name: "meta", Type: eavsearch.PropertyTypeObject},
	)
	reviews := eavsearch.MustSchema("reviews",
		&eavsearch.Property{Name: "id", Type: eavsearch.PropertyTypeInteger, Flags: eavsearch.FlagPrimary},
		&eavsearch.Property{Name: "product_id", Type: eavsearch.PropertyTypeInteger},
		&eavsearch.Property{Name: "rating", Type: eavsearch.PropertyTypeInteger},
		&eavsearch.Property{Name: "author", Type: eavsearch.PropertyTypeString},
	)
	brand, err := NewForeignJoinFilter("brand", "brand_id", brands)
	require.NoError(t, err)
	review, err := NewReverseJoinFilter("reviews", "product_id", reviews)
	require.NoError(t, err)
	registry, err := NewJoinRegistry(brand, review)
	require.NoError(t, err)
	return registry
}

// pgNumeric is the guarded numeric cast rendered by the Postgres dialect.
func pgNumeric(col string) string {
	return "CASE WHEN " + col + ` ~ '^[-+]?([0-9]+(\.[0-9]*)?|\.[0-9]+)([eE][-+]?[0-9]+)?$' ` +
		"THEN CAST(" + col + " AS NUMERIC) END"
}

func defaultAttributeIDs() map[string]int64 {
	return map[string]int64{"color": 7, "weight": 9, "description": 11}
}

func newTestGenerator(t *testing.T, dialect sqlast.Dialect) (*QueryGenerator, *staticResolver) {
	t.Helper()
	resolver := &staticResolver{ids: defaultAttributeIDs()}
	g, err := NewQueryGenerator(productSchema(), productJoins(t), resolver, GeneratorOptions{Dialect: dialect})
	require.NoError(t, err)
	return g, resolver
}

func searchRequest(tree *eavsearch.ConditionTree, page, size int, attributes ...string) *eavsearch.SearchRequest {
	req := &eavsearch.SearchRequest{Where: tree, PageNumber: page, PageSize: size}
	req.AddAttribute(attributes...)
	return req
}

func where() *eavsearch.ConditionTree {
	return eavsearch.NewConditionTree()
}
