package internal

import (
	"github.com/lychee-technology/eavsearch/internal/sqlast"
)

// pageWindow clamps page and size to at least 1 and returns offset and count.
func pageWindow(page, size int) (offset, count int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 1
	}
	return (page - 1) * size, size
}

func (g *QueryGenerator) entityTable() sqlast.Table {
	return sqlast.Table{Name: g.schema.Table(), Alias: entityAlias}
}

func (g *QueryGenerator) entityKeyColumn() sqlast.Column {
	return sqlast.Col(entityAlias, g.entityKey)
}

// keyColumns selects the primary key properties, entity id first.
func (g *QueryGenerator) keyColumns() []sqlast.SelectItem {
	items := make([]sqlast.SelectItem, 0, 1)
	for _, pk := range g.schema.PrimaryKey() {
		item := sqlast.SelectItem{Expr: sqlast.Col(entityAlias, pk.ColumnName())}
		if pk.ColumnName() != pk.Name {
			item.Alias = pk.Name
		}
		items = append(items, item)
	}
	return items
}

// resolvedPivot keeps the requested attribute codes that have a definition,
// in request order.
func resolvedPivot(codes []string, ids map[string]int64) []string {
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		if _, ok := ids[code]; ok {
			out = append(out, code)
		}
	}
	return out
}

func pivotColumns() []sqlast.SelectItem {
	return []sqlast.SelectItem{
		{Expr: sqlast.Col(pivotAttrAlias, "code"), Alias: "code"},
		{Expr: sqlast.Col(pivotAttrAlias, "caption"), Alias: "caption"},
		{
			Expr: sqlast.Func{Name: "coalesce", Args: []sqlast.Expr{
				sqlast.Func{Name: "nullif", Args: []sqlast.Expr{sqlast.Col(pivotValAlias, "value"), sqlast.String("")}},
				sqlast.Col(pivotValAlias, "text_value"),
				sqlast.String(""),
			}},
			Alias: "value",
		},
	}
}

func (g *QueryGenerator) pivotJoins(codes []string) []sqlast.Join {
	values := make([]sqlast.Expr, len(codes))
	for i, code := range codes {
		values[i] = sqlast.Param{Value: code}
	}
	return []sqlast.Join{
		{
			Kind:   sqlast.LeftJoin,
			Source: sqlast.Table{Name: g.attributesTable, Alias: pivotAttrAlias},
			On:     sqlast.In{Expr: sqlast.Col(pivotAttrAlias, "code"), Values: values},
		},
		{
			Kind:   sqlast.LeftJoin,
			Source: sqlast.Table{Name: g.valuesTable, Alias: pivotValAlias},
			On: sqlast.And(
				sqlast.Eq(sqlast.Col(pivotValAlias, "entity_id"), g.entityKeyColumn()),
				sqlast.Eq(sqlast.Col(pivotValAlias, "attribute_id"), sqlast.Col(pivotAttrAlias, "id")),
			),
		},
	}
}

// withKeyOrder appends the entity id as a tiebreaker unless already ordered on.
func (g *QueryGenerator) withKeyOrder(orders []sqlast.OrderItem) []sqlast.OrderItem {
	out := append([]sqlast.OrderItem(nil), orders...)
	for _, o := range orders {
		if c, ok := o.Expr.(sqlast.Column); ok && c == g.entityKeyColumn() {
			return out
		}
	}
	return append(out, sqlast.OrderItem{Expr: g.entityKeyColumn()})
}

// pageStatement assembles the page variant. Attribute searches find the
// page of entity ids in an idList subquery grouped by entity id, so AND
// conditions on different attribute rows hold for the same entity, then
// join back to read the projection. Plain searches read in one pass.
func (g *QueryGenerator) pageStatement(cc *compileContext, where sqlast.Expr, proj *projection, orders []sqlast.OrderItem, ids map[string]int64, page, size int) *sqlast.Select {
	offset, count := pageWindow(page, size)
	pivot := resolvedPivot(proj.pivotCodes, ids)

	columns := append(g.keyColumns(), proj.columns...)
	var outerJoins []sqlast.Join
	if len(pivot) > 0 {
		columns = append(columns, pivotColumns()...)
		outerJoins = append(outerJoins, g.pivotJoins(pivot)...)
	}
	for _, f := range proj.filters {
		outerJoins = append(outerJoins, f.JoinClause(sqlast.LeftJoin, entityAlias))
	}

	outerOrder := g.withKeyOrder(orders)
	if len(pivot) > 0 {
		outerOrder = append(outerOrder, sqlast.OrderItem{Expr: sqlast.Col(pivotAttrAlias, "id")})
	}

	if !cc.attributeSearch {
		// One row per entity and pivoted attribute; scale the window to keep
		// whole entities in the page.
		rowsPerEntity := 1
		if len(pivot) > 0 {
			rowsPerEntity = len(pivot)
		}
		return &sqlast.Select{
			Columns: columns,
			From:    g.entityTable(),
			Joins:   outerJoins,
			Where:   where,
			OrderBy: outerOrder,
			Limit:   &sqlast.Limit{Offset: offset * rowsPerEntity, Count: count * rowsPerEntity},
		}
	}

	groupBy := []sqlast.Expr{g.entityKeyColumn()}
	for _, o := range orders {
		if c, ok := o.Expr.(sqlast.Column); ok && c == g.entityKeyColumn() {
			continue
		}
		groupBy = append(groupBy, o.Expr)
	}
	idList := &sqlast.Select{
		Columns: []sqlast.SelectItem{{Expr: g.entityKeyColumn()}},
		From:    g.entityTable(),
		Joins:   cc.joins(g.valuesTable, g.entityKey, ids),
		Where:   where,
		GroupBy: groupBy,
		OrderBy: g.withKeyOrder(orders),
		Limit:   &sqlast.Limit{Offset: offset, Count: count},
	}

	joins := make([]sqlast.Join, 0, len(outerJoins)+1)
	joins = append(joins, sqlast.Join{
		Kind:   sqlast.InnerJoin,
		Source: g.entityTable(),
		On:     sqlast.Eq(g.entityKeyColumn(), sqlast.Col(idListAlias, g.entityKey)),
	})
	joins = append(joins, outerJoins...)

	return &sqlast.Select{
		Columns: columns,
		From:    sqlast.Subquery{Query: idList, Alias: idListAlias},
		Joins:   joins,
		OrderBy: outerOrder,
	}
}

// countStatement counts distinct entities over the same FROM, JOIN and WHERE
// the idList subquery uses, without a window.
func (g *QueryGenerator) countStatement(cc *compileContext, where sqlast.Expr, ids map[string]int64) *sqlast.Select {
	return &sqlast.Select{
		Columns: []sqlast.SelectItem{{
			Expr:  sqlast.Func{Name: "COUNT", Distinct: true, Args: []sqlast.Expr{g.entityKeyColumn()}},
			Alias: "count",
		}},
		From:  g.entityTable(),
		Joins: cc.joins(g.valuesTable, g.entityKey, ids),
		Where: where,
	}
}
