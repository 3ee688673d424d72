package internal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/eavsearch"
	"go.uber.org/zap"
)

// SearchService compiles searches with a QueryGenerator and runs them
// through a borrowed Database.
type SearchService struct {
	generator    *QueryGenerator
	db           eavsearch.Database
	breaker      *CircuitBreaker
	materializer *ResultMaterializer
	logQueries   bool
}

var _ eavsearch.Searcher = (*SearchService)(nil)

// NewSearchService creates a searcher. breaker may be nil.
func NewSearchService(generator *QueryGenerator, db eavsearch.Database, breaker *CircuitBreaker, logQueries bool) *SearchService {
	return &SearchService{
		generator:    generator,
		db:           db,
		breaker:      breaker,
		materializer: NewResultMaterializer(generator.UniqueIDColumn()),
		logQueries:   logQueries,
	}
}

// Generator exposes the compiler behind the service.
func (s *SearchService) Generator() *QueryGenerator {
	return s.generator
}

func (s *SearchService) CreateQuery(ctx context.Context, q eavsearch.SearchQuery) (*eavsearch.QueryBuilderOutput, error) {
	return s.generator.CreateQuery(ctx, q)
}

func (s *SearchService) CreateCountQuery(ctx context.Context, q eavsearch.SearchQuery) (*eavsearch.QueryBuilderOutput, error) {
	return s.generator.CreateCountQuery(ctx, q)
}

// Search returns one page of entities together with the total match count.
func (s *SearchService) Search(ctx context.Context, q eavsearch.SearchQuery) (*eavsearch.SearchResult, error) {
	start := time.Now()
	searchID := uuid.NewString()
	logger := zap.S().With("search_id", searchID, "table", s.generator.Schema().Table())

	pageQuery, countQuery, err := s.generator.CreateSearchQueries(ctx, q)
	if err != nil {
		return nil, s.fail(ctx, logger, "compile", err)
	}
	EmitLatency(ctx, "compile", time.Since(start).Milliseconds())

	execStart := time.Now()
	rows, err := s.run(ctx, logger, pageQuery)
	if err != nil {
		return nil, s.fail(ctx, logger, "execute", err)
	}
	EmitRowCount(ctx, "page", int64(len(rows)))
	EmitLatency(ctx, "execute", time.Since(execStart).Milliseconds())

	countStart := time.Now()
	countRows, err := s.run(ctx, logger, countQuery)
	if err != nil {
		return nil, s.fail(ctx, logger, "count", err)
	}
	total, err := CountFromRows(countRows)
	if err != nil {
		return nil, s.fail(ctx, logger, "count", err)
	}
	EmitLatency(ctx, "count", time.Since(countStart).Milliseconds())

	page := q.Page()
	if page < 1 {
		page = 1
	}
	_, size := pageWindow(page, q.ResultSize())
	totalPages := int((total + int64(size) - 1) / int64(size))

	result := &eavsearch.SearchResult{
		SearchID:      searchID,
		Data:          s.materializer.Records(rows),
		TotalRecords:  total,
		TotalPages:    totalPages,
		CurrentPage:   page,
		ItemsPerPage:  size,
		HasNext:       page < totalPages,
		HasPrevious:   page > 1,
		ExecutionTime: time.Since(start),
	}
	logger.Infow("search completed", "records", len(result.Data), "total", total, "duration", result.ExecutionTime)
	return result, nil
}

// Count returns the number of entities matching q.
func (s *SearchService) Count(ctx context.Context, q eavsearch.SearchQuery) (int64, error) {
	logger := zap.S().With("search_id", uuid.NewString(), "table", s.generator.Schema().Table())
	countQuery, err := s.generator.CreateCountQuery(ctx, q)
	if err != nil {
		return 0, s.fail(ctx, logger, "compile", err)
	}
	rows, err := s.run(ctx, logger, countQuery)
	if err != nil {
		return 0, s.fail(ctx, logger, "count", err)
	}
	total, err := CountFromRows(rows)
	if err != nil {
		return 0, s.fail(ctx, logger, "count", err)
	}
	return total, nil
}

func (s *SearchService) run(ctx context.Context, logger *zap.SugaredLogger, out *eavsearch.QueryBuilderOutput) ([]eavsearch.Row, error) {
	if s.breaker.IsOpen() {
		return nil, eavsearch.NewSearchError(eavsearch.ErrorTypeUnavailable, eavsearch.ErrCodeCircuitOpen,
			"database circuit breaker is open")
	}
	if s.logQueries {
		logger.Infow("executing search query", "query", out.SQL, "args", out.Args())
	}
	rows, err := s.db.Select(ctx, out.SQL, out.Args()...)
	if err != nil {
		if ctx.Err() == nil {
			s.breaker.RecordFailure()
		}
		return nil, eavsearch.NewQueryExecutionError("search query failed", err)
	}
	s.breaker.RecordSuccess()
	return rows, nil
}

func (s *SearchService) fail(ctx context.Context, logger *zap.SugaredLogger, stage string, err error) error {
	code := "UNKNOWN"
	var se *eavsearch.SearchError
	if errors.As(err, &se) {
		code = se.Code
	}
	EmitSearchError(ctx, code)
	if eavsearch.IsClientError(err) {
		logger.Debugw("search rejected", "stage", stage, "code", code, "error", err)
	} else {
		logger.Errorw("search failed", "stage", stage, "code", code, "error", err)
	}
	return err
}
