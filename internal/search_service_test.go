package internal

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lychee-technology/eavsearch"
	"github.com/lychee-technology/eavsearch/internal/sqlast"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDatabase answers count statements with countRows and everything else with pageRows.
type fakeDatabase struct {
	mu        sync.Mutex
	pageRows  []eavsearch.Row
	countRows []eavsearch.Row
	err       error
	queries   []string
	args      [][]any
}

func (d *fakeDatabase) Select(_ context.Context, query string, args ...any) ([]eavsearch.Row, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queries = append(d.queries, query)
	d.args = append(d.args, args)
	if d.err != nil {
		return nil, d.err
	}
	if strings.HasPrefix(query, "SELECT COUNT(") {
		return d.countRows, nil
	}
	return d.pageRows, nil
}

func colorRequest(page, size int) *eavsearch.SearchRequest {
	return searchRequest(where().Add(eavsearch.LogicAnd, eavsearch.OpEquals, "color", "red"), page, size, "sku", "color")
}

func newTestService(t *testing.T, db eavsearch.Database, breaker *CircuitBreaker) *SearchService {
	t.Helper()
	g, _ := newTestGenerator(t, sqlast.Postgres)
	return NewSearchService(g, db, breaker, true)
}

func TestSearchServiceSearch(t *testing.T) {
	db := &fakeDatabase{
		pageRows: []eavsearch.Row{
			{"id": int64(1), "sku": "A", "code": "color", "caption": "Color", "value": "red"},
			{"id": int64(2), "sku": []byte("B"), "code": "color", "caption": "Color", "value": "red"},
		},
		countRows: []eavsearch.Row{{"count": int64(5)}},
	}
	svc := newTestService(t, db, nil)

	result, err := svc.Search(context.Background(), colorRequest(1, 2))
	require.NoError(t, err)

	assert.NotEmpty(t, result.SearchID)
	assert.Equal(t, int64(5), result.TotalRecords)
	assert.Equal(t, 3, result.TotalPages)
	assert.Equal(t, 1, result.CurrentPage)
	assert.Equal(t, 2, result.ItemsPerPage)
	assert.True(t, result.HasNext)
	assert.False(t, result.HasPrevious)

	require.Len(t, result.Data, 2)
	assert.Equal(t, int64(1), result.Data[0].ID)
	assert.Equal(t, map[string]any{"id": int64(1), "sku": "A", "color": "red"}, result.Data[0].Attributes)
	assert.Equal(t, "B", result.Data[1].Attributes["sku"])

	require.Len(t, db.queries, 2)
	assert.Contains(t, db.queries[0], "LIMIT 2 OFFSET 0) idList")
	assert.True(t, strings.HasPrefix(db.queries[1], "SELECT COUNT(DISTINCT e.id) AS count"))
	assert.Equal(t, []any{"red", "color"}, db.args[0])
	assert.Equal(t, []any{"red"}, db.args[1])
}

func TestSearchServiceResolvesAttributesOnce(t *testing.T) {
	g, resolver := newTestGenerator(t, sqlast.Postgres)
	db := &fakeDatabase{countRows: []eavsearch.Row{{"count": int64(1)}}}
	svc := NewSearchService(g, db, nil, false)

	tree := where().
		Add(eavsearch.LogicAnd, eavsearch.OpEquals, "color", "red").
		Add(eavsearch.LogicOr, eavsearch.OpGreater, "weight", 5)
	_, err := svc.Search(context.Background(), searchRequest(tree, 1, 10, "sku", "description"))
	require.NoError(t, err)

	require.Len(t, resolver.calls, 1)
	assert.Equal(t, []string{"color", "weight", "description", "color", "weight"}, resolver.calls[0])
	require.Len(t, db.queries, 2)
}

func TestSearchServiceLastPage(t *testing.T) {
	db := &fakeDatabase{countRows: []eavsearch.Row{{"count": int64(5)}}}
	svc := newTestService(t, db, nil)

	result, err := svc.Search(context.Background(), colorRequest(3, 2))
	require.NoError(t, err)
	assert.Empty(t, result.Data)
	assert.NotNil(t, result.Data)
	assert.False(t, result.HasNext)
	assert.True(t, result.HasPrevious)
}

func TestSearchServiceCount(t *testing.T) {
	db := &fakeDatabase{countRows: []eavsearch.Row{{"count": "12"}}}
	svc := newTestService(t, db, nil)

	total, err := svc.Count(context.Background(), colorRequest(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(12), total)
	require.Len(t, db.queries, 1)
}

func TestSearchServiceCompileErrorsSkipTheDatabase(t *testing.T) {
	db := &fakeDatabase{}
	svc := newTestService(t, db, nil)

	_, err := svc.Search(context.Background(), searchRequest(where(), 1, 10))
	assert.True(t, eavsearch.IsSearchError(err, eavsearch.ErrCodeNoConditions))
	assert.Empty(t, db.queries)
}

func TestSearchServiceOpensBreaker(t *testing.T) {
	db := &fakeDatabase{err: errors.New("too many connections")}
	breaker := NewCircuitBreaker(1, time.Minute, time.Minute)
	svc := newTestService(t, db, breaker)

	_, err := svc.Search(context.Background(), colorRequest(1, 10))
	assert.True(t, eavsearch.IsSearchError(err, eavsearch.ErrCodeQueryExecution))
	assert.True(t, breaker.IsOpen())

	_, err = svc.Count(context.Background(), colorRequest(1, 10))
	assert.True(t, eavsearch.IsSearchError(err, eavsearch.ErrCodeCircuitOpen))
	assert.Len(t, db.queries, 1, "open breaker keeps queries off the database")
}

func TestSearchServiceCancelledContextDoesNotTripBreaker(t *testing.T) {
	db := &fakeDatabase{err: context.Canceled}
	breaker := NewCircuitBreaker(1, time.Minute, time.Minute)
	svc := newTestService(t, db, breaker)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Count(ctx, colorRequest(1, 10))
	assert.True(t, eavsearch.IsSearchError(err, eavsearch.ErrCodeQueryExecution))
	assert.False(t, breaker.IsOpen())
}

func TestSearchServiceEmitsTelemetry(t *testing.T) {
	var mu sync.Mutex
	seen := map[string][]map[string]string{}
	RegisterTelemetryEmitter(func(_ context.Context, name string, labels map[string]string, _ any) {
		mu.Lock()
		defer mu.Unlock()
		seen[name] = append(seen[name], labels)
	})
	defer RegisterTelemetryEmitter(nil)

	db := &fakeDatabase{countRows: []eavsearch.Row{{"count": int64(0)}}}
	svc := newTestService(t, db, nil)
	_, err := svc.Search(context.Background(), colorRequest(1, 10))
	require.NoError(t, err)
	_, err = svc.Search(context.Background(), searchRequest(where(), 1, 10))
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []map[string]string{{"stage": "compile"}, {"stage": "execute"}, {"stage": "count"}}, seen["search_latency_ms"])
	assert.Equal(t, []map[string]string{{"kind": "page"}}, seen["search_row_count"])
	assert.Equal(t, []map[string]string{{"code": eavsearch.ErrCodeNoConditions}}, seen["search_errors_total"])
}

func TestSearchServiceThroughPgxPool(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta(scenarioPageSQL)).
		WithArgs("red", "color").
		WillReturnRows(pgxmock.NewRows([]string{"id", "sku", "code", "caption", "value"}).
			AddRow(int64(4), "A-4", "color", "Color", "red"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(DISTINCT e.id) AS count FROM "products" e`)).
		WithArgs("red").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))

	svc := newTestService(t, NewPoolDatabase(mock), NewCircuitBreaker(3, time.Minute, time.Minute))
	result, err := svc.Search(context.Background(), colorRequest(1, 10))
	require.NoError(t, err)
	require.Len(t, result.Data, 1)
	assert.Equal(t, map[string]any{"id": int64(4), "sku": "A-4", "color": "red"}, result.Data[0].Attributes)
	assert.Equal(t, 1, result.TotalPages)
	require.NoError(t, mock.ExpectationsWereMet())
}
