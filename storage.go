package eavsearch

import (
	"context"
)

// Database is the connection collaborator a search executes through. It is
// borrowed from the caller; timeouts and cancellation come from ctx.
type Database interface {
	Select(ctx context.Context, sql string, args ...any) ([]Row, error)
}

// Searcher compiles and runs searches against one entity schema.
type Searcher interface {
	// Compile operations
	CreateQuery(ctx context.Context, q SearchQuery) (*QueryBuilderOutput, error)
	CreateCountQuery(ctx context.Context, q SearchQuery) (*QueryBuilderOutput, error)

	// Execution
	Search(ctx context.Context, q SearchQuery) (*SearchResult, error)
	Count(ctx context.Context, q SearchQuery) (int64, error)
}
