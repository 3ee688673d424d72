package internal

import (
	"context"

	"github.com/lychee-technology/eavsearch"
	"github.com/lychee-technology/eavsearch/internal/sqlast"
	"go.uber.org/zap"
)

// AttributeIDResolver maps attribute codes to definition ids.
type AttributeIDResolver interface {
	ResolveIDs(ctx context.Context, codes []string) (map[string]int64, error)
}

// GeneratorOptions configures a QueryGenerator.
type GeneratorOptions struct {
	Dialect         sqlast.Dialect
	AttributesTable string
	ValuesTable     string
	// OverflowLength is the longest string kept in the value column.
	OverflowLength int
}

func (o GeneratorOptions) withDefaults() GeneratorOptions {
	if o.Dialect == nil {
		o.Dialect = sqlast.Postgres
	}
	if o.AttributesTable == "" {
		o.AttributesTable = "attributes"
	}
	if o.ValuesTable == "" {
		o.ValuesTable = "attribute_values"
	}
	if o.OverflowLength <= 0 {
		o.OverflowLength = 255
	}
	return o
}

// QueryGenerator compiles searches over one entity schema. It holds no
// per-call state and may be shared between goroutines.
type QueryGenerator struct {
	schema   eavsearch.PropertySet
	joins    *JoinRegistry
	resolver AttributeIDResolver
	kinds    map[string]eavsearch.PropertyKind

	dialect         sqlast.Dialect
	attributesTable string
	valuesTable     string
	overflowLength  int

	entityKey     string // primary key column
	entityKeyName string // primary key property, the output column
}

// NewQueryGenerator resolves every property to its storage kind once.
func NewQueryGenerator(schema eavsearch.PropertySet, joins *JoinRegistry, resolver AttributeIDResolver, opts GeneratorOptions) (*QueryGenerator, error) {
	if schema == nil {
		return nil, eavsearch.NewSearchError(eavsearch.ErrorTypeInternal, eavsearch.ErrCodeSchemaInvalid, "schema is required")
	}
	pk := schema.PrimaryKey()
	if len(pk) == 0 {
		return nil, eavsearch.NewMissingPrimaryKeyError(schema.Table())
	}
	if joins == nil {
		joins, _ = NewJoinRegistry()
	}
	opts = opts.withDefaults()

	g := &QueryGenerator{
		schema:          schema,
		joins:           joins,
		resolver:        resolver,
		kinds:           make(map[string]eavsearch.PropertyKind),
		dialect:         opts.Dialect,
		attributesTable: opts.AttributesTable,
		valuesTable:     opts.ValuesTable,
		overflowLength:  opts.OverflowLength,
		entityKey:       pk[0].ColumnName(),
		entityKeyName:   pk[0].Name,
	}
	for _, prop := range schema.Properties() {
		switch {
		case g.isJoinFilter(prop.Name):
			g.kinds[prop.Name] = eavsearch.KindJoinFilter
		case prop.Has(eavsearch.FlagEAV):
			g.kinds[prop.Name] = eavsearch.KindAttribute
		default:
			g.kinds[prop.Name] = eavsearch.KindCoreColumn
		}
	}
	for _, name := range joins.Names() {
		g.kinds[name] = eavsearch.KindJoinFilter
	}
	return g, nil
}

func (g *QueryGenerator) isJoinFilter(name string) bool {
	_, ok := g.joins.Lookup(name)
	return ok
}

// Kind reports how a property name is stored.
func (g *QueryGenerator) Kind(name string) (eavsearch.PropertyKind, bool) {
	k, ok := g.kinds[name]
	return k, ok
}

// Schema returns the entity schema.
func (g *QueryGenerator) Schema() eavsearch.PropertySet {
	return g.schema
}

// Dialect returns the SQL dialect statements are rendered in.
func (g *QueryGenerator) Dialect() sqlast.Dialect {
	return g.dialect
}

// UniqueIDColumn is the result column holding the entity id.
func (g *QueryGenerator) UniqueIDColumn() string {
	return g.entityKeyName
}

// CreateQuery compiles the page query of q.
func (g *QueryGenerator) CreateQuery(ctx context.Context, q eavsearch.SearchQuery) (*eavsearch.QueryBuilderOutput, error) {
	c, err := g.compile(q, false)
	if err != nil {
		return nil, err
	}
	ids, err := g.resolve(ctx, c.codes())
	if err != nil {
		return nil, err
	}
	return g.render(c, q, ids), nil
}

// CreateCountQuery compiles the count query of q. It filters exactly the
// entities the page query would return without LIMIT.
func (g *QueryGenerator) CreateCountQuery(ctx context.Context, q eavsearch.SearchQuery) (*eavsearch.QueryBuilderOutput, error) {
	c, err := g.compile(q, true)
	if err != nil {
		return nil, err
	}
	ids, err := g.resolve(ctx, c.codes())
	if err != nil {
		return nil, err
	}
	return g.render(c, q, ids), nil
}

// CreateSearchQueries compiles the page and count queries of q with a single
// attribute lookup covering both.
func (g *QueryGenerator) CreateSearchQueries(ctx context.Context, q eavsearch.SearchQuery) (page, count *eavsearch.QueryBuilderOutput, err error) {
	pc, err := g.compile(q, false)
	if err != nil {
		return nil, nil, err
	}
	cc, err := g.compile(q, true)
	if err != nil {
		return nil, nil, err
	}
	ids, err := g.resolve(ctx, append(pc.codes(), cc.codes()...))
	if err != nil {
		return nil, nil, err
	}
	return g.render(pc, q, ids), g.render(cc, q, ids), nil
}

// compiled holds one statement between compilation and rendering, while its
// attribute codes are still unresolved.
type compiled struct {
	cc     *compileContext
	where  sqlast.Expr
	proj   *projection
	orders []sqlast.OrderItem
	count  bool
}

func (c *compiled) codes() []string {
	return append(c.cc.attributeCodes(), c.proj.pivotCodes...)
}

func (g *QueryGenerator) compile(q eavsearch.SearchQuery, count bool) (*compiled, error) {
	if q == nil {
		return nil, eavsearch.NewSearchError(eavsearch.ErrorTypeValidation, eavsearch.ErrCodeInvalidRequest, "search query is required")
	}
	if err := q.Validate(g.schema); err != nil {
		return nil, err
	}

	c := &compiled{cc: newCompileContext(), proj: newProjection(), count: count}
	var err error
	if c.where, err = g.compileConditions(c.cc, q.Conditions()); err != nil {
		return nil, err
	}
	if !count {
		if c.proj, err = g.compileProjection(q); err != nil {
			return nil, err
		}
		if c.orders, err = g.compileOrdering(q.Ordering()); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (g *QueryGenerator) resolve(ctx context.Context, codes []string) (map[string]int64, error) {
	if len(codes) == 0 {
		return map[string]int64{}, nil
	}
	if g.resolver == nil {
		return nil, eavsearch.NewSearchError(eavsearch.ErrorTypeInternal, eavsearch.ErrCodeSchemaInvalid,
			"attribute conditions require an attribute resolver")
	}
	return g.resolver.ResolveIDs(ctx, codes)
}

func (g *QueryGenerator) render(c *compiled, q eavsearch.SearchQuery, ids map[string]int64) *eavsearch.QueryBuilderOutput {
	var stmt *sqlast.Select
	if c.count {
		stmt = g.countStatement(c.cc, c.where, ids)
	} else {
		stmt = g.pageStatement(c.cc, c.where, c.proj, c.orders, ids, q.Page(), q.ResultSize())
	}

	sql, bindings := sqlast.Render(stmt, g.dialect)
	out := &eavsearch.QueryBuilderOutput{
		SQL:            sql,
		Bindings:       make([]eavsearch.Binding, len(bindings)),
		UniqueIDColumn: g.entityKeyName,
	}
	for i, b := range bindings {
		out.Bindings[i] = eavsearch.Binding{Placeholder: b.Placeholder, Value: b.Value}
	}

	zap.S().Debugw("compiled search", "table", g.schema.Table(), "count", c.count, "query", out.SQL, "args", out.Args())
	return out
}

func (g *QueryGenerator) compileOrdering(ordering []eavsearch.OrderBy) ([]sqlast.OrderItem, error) {
	items := make([]sqlast.OrderItem, 0, len(ordering))
	for _, ob := range ordering {
		prop, ok := g.schema.Property(ob.Property)
		if !ok {
			return nil, eavsearch.NewUnknownPropertyError(ob.Property)
		}
		if g.kinds[prop.Name] != eavsearch.KindCoreColumn || !prop.Selectable() {
			return nil, eavsearch.NewSearchError(eavsearch.ErrorTypeValidation, eavsearch.ErrCodeNotSelectable,
				"ordering is supported on entity columns only").WithField(ob.Property)
		}
		items = append(items, sqlast.OrderItem{Expr: sqlast.Col(entityAlias, prop.ColumnName()), Desc: ob.Desc()})
	}
	return items, nil
}
