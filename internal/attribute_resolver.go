package internal

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/lychee-technology/eavsearch"
	"github.com/lychee-technology/eavsearch/internal/sqlast"
	"go.uber.org/zap"
)

// AttributeResolver maps attribute codes to definition ids with one batched
// lookup per search.
type AttributeResolver struct {
	db      eavsearch.Database
	table   string
	dialect sqlast.Dialect
	strict  bool
}

// NewAttributeResolver creates a resolver reading the attribute definition table.
func NewAttributeResolver(db eavsearch.Database, table string, dialect sqlast.Dialect, strict bool) *AttributeResolver {
	if dialect == nil {
		dialect = sqlast.Postgres
	}
	return &AttributeResolver{db: db, table: table, dialect: dialect, strict: strict}
}

// Strict reports whether unknown codes fail the search.
func (r *AttributeResolver) Strict() bool {
	return r.strict
}

// BuildLookup returns the lookup statement for codes, sorted and de-duplicated.
func (r *AttributeResolver) BuildLookup(codes []string) (string, []any) {
	unique := uniqueSorted(codes)
	values := make([]sqlast.Expr, len(unique))
	for i, code := range unique {
		values[i] = sqlast.Param{Value: code}
	}
	stmt := &sqlast.Select{
		Columns: []sqlast.SelectItem{{Expr: sqlast.Col("", "id")}, {Expr: sqlast.Col("", "code")}},
		From:    sqlast.Table{Name: r.table},
		Where:   sqlast.In{Expr: sqlast.Col("", "code"), Values: values},
	}
	sql, bindings := sqlast.Render(stmt, r.dialect)
	args := make([]any, len(bindings))
	for i, b := range bindings {
		args[i] = b.Value
	}
	return sql, args
}

// ResolveIDs returns the id of every known code. Unknown codes are dropped,
// or reported as ATTRIBUTE_NOT_FOUND in strict mode.
func (r *AttributeResolver) ResolveIDs(ctx context.Context, codes []string) (map[string]int64, error) {
	ids := make(map[string]int64, len(codes))
	if len(codes) == 0 {
		return ids, nil
	}
	if r.db == nil {
		return nil, eavsearch.NewSearchError(eavsearch.ErrorTypeInternal, eavsearch.ErrCodeQueryExecution,
			"attribute resolver has no database")
	}

	query, args := r.BuildLookup(codes)
	zap.S().Debugw("resolving attribute codes", "query", query, "codes", args)

	rows, err := r.db.Select(ctx, query, args...)
	if err != nil {
		return nil, eavsearch.NewQueryExecutionError("failed to resolve attribute codes", err)
	}
	for _, row := range rows {
		code, ok := row["code"].(string)
		if !ok {
			if b, isBytes := row["code"].([]byte); isBytes {
				code = string(b)
			} else {
				return nil, eavsearch.NewSearchError(eavsearch.ErrorTypeExecution, eavsearch.ErrCodeResultScan,
					fmt.Sprintf("attribute code has unexpected type %T", row["code"]))
			}
		}
		id, err := toInt64(row["id"])
		if err != nil {
			return nil, eavsearch.NewSearchError(eavsearch.ErrorTypeExecution, eavsearch.ErrCodeResultScan,
				"attribute id is not an integer").WithCause(err).WithField(code)
		}
		ids[code] = id
	}

	var missing []string
	for _, code := range uniqueSorted(codes) {
		if _, ok := ids[code]; !ok {
			missing = append(missing, code)
		}
	}
	if len(missing) > 0 {
		if r.strict {
			return nil, eavsearch.NewAttributeNotFoundError(missing)
		}
		zap.S().Warnw("dropping undefined attribute codes", "codes", missing)
	}
	return ids, nil
}

func uniqueSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to int64", v)
	}
}
