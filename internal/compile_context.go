package internal

import (
	"fmt"

	"github.com/lychee-technology/eavsearch"
	"github.com/lychee-technology/eavsearch/internal/sqlast"
)

const (
	entityAlias    = "e"
	idListAlias    = "idList"
	pivotAttrAlias = "a1"
	pivotValAlias  = "v1"
)

// attrJoinKey identifies one attribute-value join. Leaves sharing a logic,
// operator and code share the join; anything else gets its own alias.
type attrJoinKey struct {
	logic eavsearch.Logic
	op    eavsearch.Operator
	code  string
}

type attrJoin struct {
	alias string
	code  string
	kind  sqlast.JoinKind
}

type filterJoin struct {
	filter *ForeignJoinFilter
	kind   sqlast.JoinKind
}

// compileContext carries the mutable state of one compile call. It is never
// shared between calls, so generators stay safe for concurrent use.
type compileContext struct {
	aliasSeq    int
	attrAliases map[attrJoinKey]*attrJoin
	attrJoins   []*attrJoin

	filterJoins map[string]*filterJoin
	filterOrder []string

	attributeSearch bool

	// alternatives is set when the tree has OR-bucket leaves. Every join is
	// then LEFT so an entity failing the AND bucket can still match an
	// alternative.
	alternatives bool
}

func newCompileContext() *compileContext {
	return &compileContext{
		attrAliases: make(map[attrJoinKey]*attrJoin),
		filterJoins: make(map[string]*filterJoin),
	}
}

// attributeJoin returns the join for key, allocating the next vN alias on
// first use. A LEFT request upgrades an existing INNER join.
func (c *compileContext) attributeJoin(key attrJoinKey, kind sqlast.JoinKind) *attrJoin {
	c.attributeSearch = true
	if c.alternatives {
		kind = sqlast.LeftJoin
	}
	if j, ok := c.attrAliases[key]; ok {
		if kind == sqlast.LeftJoin {
			j.kind = sqlast.LeftJoin
		}
		return j
	}
	c.aliasSeq++
	j := &attrJoin{alias: fmt.Sprintf("v%d", c.aliasSeq), code: key.code, kind: kind}
	c.attrAliases[key] = j
	c.attrJoins = append(c.attrJoins, j)
	return j
}

// useFilter records a foreign join filter referenced by a condition. The
// join is emitted once; any null comparison or OR-bucket leaf in the tree
// turns it into a LEFT JOIN.
func (c *compileContext) useFilter(f *ForeignJoinFilter, left bool) {
	c.attributeSearch = true
	left = left || c.alternatives
	if j, ok := c.filterJoins[f.Name()]; ok {
		if left {
			j.kind = sqlast.LeftJoin
		}
		return
	}
	kind := sqlast.InnerJoin
	if left {
		kind = sqlast.LeftJoin
	}
	c.filterJoins[f.Name()] = &filterJoin{filter: f, kind: kind}
	c.filterOrder = append(c.filterOrder, f.Name())
}

func (c *compileContext) markAttributeSearch() {
	c.attributeSearch = true
}

// attributeCodes lists the codes referenced by condition joins in first-use order.
func (c *compileContext) attributeCodes() []string {
	codes := make([]string, 0, len(c.attrJoins))
	for _, j := range c.attrJoins {
		codes = append(codes, j.code)
	}
	return codes
}

// joins emits the attribute joins, inner ones first so LEFT joins can anchor
// on the first of them, followed by the condition join filters.
func (c *compileContext) joins(valuesTable, entityKey string, ids map[string]int64) []sqlast.Join {
	ordered := make([]*attrJoin, 0, len(c.attrJoins))
	for _, j := range c.attrJoins {
		if j.kind == sqlast.InnerJoin {
			ordered = append(ordered, j)
		}
	}
	for _, j := range c.attrJoins {
		if j.kind == sqlast.LeftJoin {
			ordered = append(ordered, j)
		}
	}

	var anchor sqlast.Expr = sqlast.Col(entityAlias, entityKey)
	out := make([]sqlast.Join, 0, len(ordered)+len(c.filterOrder))
	for i, j := range ordered {
		// Unknown codes resolve to id 0, which matches no value row.
		out = append(out, sqlast.Join{
			Kind:   j.kind,
			Source: sqlast.Table{Name: valuesTable, Alias: j.alias},
			On: sqlast.And(
				sqlast.Eq(sqlast.Col(j.alias, "entity_id"), anchor),
				sqlast.Eq(sqlast.Col(j.alias, "attribute_id"), sqlast.Int(ids[j.code])),
			),
		})
		if i == 0 && j.kind == sqlast.InnerJoin {
			anchor = sqlast.Col(j.alias, "entity_id")
		}
	}
	for _, name := range c.filterOrder {
		fj := c.filterJoins[name]
		out = append(out, fj.filter.JoinClause(fj.kind, entityAlias))
	}
	return out
}
