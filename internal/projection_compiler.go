package internal

import (
	"fmt"

	"github.com/lychee-technology/eavsearch"
	"github.com/lychee-technology/eavsearch/internal/sqlast"
)

// projection is the compiled select list of one search.
type projection struct {
	// columns are entity and join-filter columns after the primary key.
	columns []sqlast.SelectItem
	// pivotCodes are requested attribute codes, pulled as code/value rows.
	pivotCodes []string
	// filters are foreign join filters that must be LEFT JOINed to select from.
	filters []*ForeignJoinFilter

	seenOutput  map[string]struct{}
	seenFilters map[string]struct{}
	seenCodes   map[string]struct{}
}

func newProjection() *projection {
	return &projection{
		seenOutput:  make(map[string]struct{}),
		seenFilters: make(map[string]struct{}),
		seenCodes:   make(map[string]struct{}),
	}
}

func (p *projection) addColumn(expr sqlast.Expr, output, alias string) {
	if _, ok := p.seenOutput[output]; ok {
		return
	}
	p.seenOutput[output] = struct{}{}
	p.columns = append(p.columns, sqlast.SelectItem{Expr: expr, Alias: alias})
}

func (p *projection) addFilter(f *ForeignJoinFilter) {
	if _, ok := p.seenFilters[f.Name()]; ok {
		return
	}
	p.seenFilters[f.Name()] = struct{}{}
	p.filters = append(p.filters, f)
}

func (p *projection) addPivot(code string) {
	if _, ok := p.seenCodes[code]; ok {
		return
	}
	p.seenCodes[code] = struct{}{}
	p.pivotCodes = append(p.pivotCodes, code)
}

// compileProjection validates and compiles the requested attributes. The
// wildcard selects every stored entity column and never pivots.
func (g *QueryGenerator) compileProjection(q eavsearch.SearchQuery) (*projection, error) {
	p := newProjection()
	for _, pk := range g.schema.PrimaryKey() {
		p.seenOutput[pk.Name] = struct{}{}
	}

	if q.IsWild() {
		for _, prop := range g.schema.Properties() {
			if !prop.Has(eavsearch.FlagEAV) {
				g.addEntityColumn(p, prop)
			}
		}
		return p, nil
	}

	for _, name := range q.Attributes() {
		base, sub, err := eavsearch.SplitPropertyPath(name)
		if err != nil {
			return nil, err
		}
		if sub != "" {
			if err := g.addJoinColumn(p, name, base, sub); err != nil {
				return nil, err
			}
			continue
		}

		prop, ok := g.schema.Property(base)
		if !ok {
			return nil, eavsearch.NewUnknownPropertyError(name)
		}
		if prop.Has(eavsearch.FlagEAV) {
			p.addPivot(prop.Name)
			continue
		}
		g.addEntityColumn(p, prop)
	}
	return p, nil
}

// addEntityColumn skips keys, which are always selected first, and
// properties that cannot be read back as one column.
func (g *QueryGenerator) addEntityColumn(p *projection, prop *eavsearch.Property) {
	if prop.Has(eavsearch.FlagPrimary) || !prop.Selectable() {
		return
	}
	alias := ""
	if prop.ColumnName() != prop.Name {
		alias = prop.Name
	}
	p.addColumn(sqlast.Col(entityAlias, prop.ColumnName()), prop.Name, alias)
}

func (g *QueryGenerator) addJoinColumn(p *projection, name, base, sub string) error {
	filter, err := g.joins.Get(base)
	if err != nil {
		return err
	}
	foreign, ok := filter.(*ForeignJoinFilter)
	if !ok {
		return eavsearch.NewSearchError(eavsearch.ErrorTypeValidation, eavsearch.ErrCodeNotSelectable,
			fmt.Sprintf("join filter %q is not a foreign join and cannot be selected", base)).WithField(name)
	}
	column, err := foreign.Column(sub)
	if err != nil {
		return err
	}
	p.addFilter(foreign)
	p.addColumn(sqlast.Col(foreign.Alias(), column), name, name)
	return nil
}
