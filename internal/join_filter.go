package internal

import (
	"fmt"
	"sort"

	"github.com/lychee-technology/eavsearch"
	"github.com/lychee-technology/eavsearch/internal/sqlast"
)

// HostRepository identifies the table a join filter reaches.
type HostRepository struct {
	Table      string
	PrimaryKey string
}

// JoinFilter links the entity table to one other table and translates
// sub-property names into that table's columns.
type JoinFilter interface {
	// Name is the trigger property name that activates the filter.
	Name() string
	// IsForeign reports a many-to-one link that may be joined and selected.
	// Non-foreign filters only constrain through correlated EXISTS.
	IsForeign() bool
	Properties() eavsearch.PropertySet
	Host() HostRepository
	// Alias is the table alias used for the host inside generated SQL.
	Alias() string
	// Column returns the host column for sub; an empty sub means the host key.
	Column(sub string) (string, error)
	// Link is the predicate tying the host alias to the entity alias.
	Link(entityAlias, entityKey string) sqlast.Expr
}

type baseJoinFilter struct {
	name  string
	props eavsearch.PropertySet
	host  HostRepository
}

func newBaseJoinFilter(name string, props eavsearch.PropertySet) (baseJoinFilter, error) {
	if !eavsearch.ValidIdentifier(name) {
		return baseJoinFilter{}, fmt.Errorf("invalid join filter name %q", name)
	}
	if props == nil {
		return baseJoinFilter{}, fmt.Errorf("join filter %q has no property set", name)
	}
	pk := props.PrimaryKey()
	if len(pk) == 0 {
		return baseJoinFilter{}, eavsearch.NewMissingPrimaryKeyError(props.Table())
	}
	return baseJoinFilter{
		name:  name,
		props: props,
		host:  HostRepository{Table: props.Table(), PrimaryKey: pk[0].ColumnName()},
	}, nil
}

func (f baseJoinFilter) Name() string                      { return f.name }
func (f baseJoinFilter) Properties() eavsearch.PropertySet { return f.props }
func (f baseJoinFilter) Host() HostRepository              { return f.host }
func (f baseJoinFilter) Alias() string                     { return "j_" + f.name }

func (f baseJoinFilter) Column(sub string) (string, error) {
	if sub == "" {
		return f.host.PrimaryKey, nil
	}
	p, ok := f.props.Property(sub)
	if !ok || p.Has(eavsearch.FlagEAV) {
		return "", eavsearch.NewUnknownPropertyError(f.name + "." + sub)
	}
	if p.Type.IsComposite() {
		return "", eavsearch.NewSearchError(eavsearch.ErrorTypeValidation, eavsearch.ErrCodeNotSelectable,
			"composite properties cannot be compared or selected").WithField(f.name + "." + sub)
	}
	return p.ColumnName(), nil
}

// ForeignJoinFilter follows a local column on the entity to the host's key.
type ForeignJoinFilter struct {
	baseJoinFilter
	localColumn string
}

// NewForeignJoinFilter creates a many-to-one filter: host.pk = entity.localColumn.
func NewForeignJoinFilter(name, localColumn string, host eavsearch.PropertySet) (*ForeignJoinFilter, error) {
	base, err := newBaseJoinFilter(name, host)
	if err != nil {
		return nil, err
	}
	if !eavsearch.ValidIdentifier(localColumn) {
		return nil, fmt.Errorf("join filter %q: invalid local column %q", name, localColumn)
	}
	return &ForeignJoinFilter{baseJoinFilter: base, localColumn: localColumn}, nil
}

func (f *ForeignJoinFilter) IsForeign() bool { return true }

// LocalColumn is the entity column holding the host key.
func (f *ForeignJoinFilter) LocalColumn() string { return f.localColumn }

func (f *ForeignJoinFilter) Link(entityAlias, _ string) sqlast.Expr {
	return sqlast.Eq(sqlast.Col(f.Alias(), f.host.PrimaryKey), sqlast.Col(entityAlias, f.localColumn))
}

// JoinClause emits the JOIN linking the host into a statement.
func (f *ForeignJoinFilter) JoinClause(kind sqlast.JoinKind, entityAlias string) sqlast.Join {
	return sqlast.Join{
		Kind:   kind,
		Source: sqlast.Table{Name: f.host.Table, Alias: f.Alias()},
		On:     f.Link(entityAlias, ""),
	}
}

// ReverseJoinFilter reaches rows of the host that point back at the entity.
// Joining it would multiply entity rows, so it only filters.
type ReverseJoinFilter struct {
	baseJoinFilter
	foreignColumn string
}

// NewReverseJoinFilter creates a one-to-many filter: host.foreignColumn = entity.pk.
func NewReverseJoinFilter(name, foreignColumn string, host eavsearch.PropertySet) (*ReverseJoinFilter, error) {
	base, err := newBaseJoinFilter(name, host)
	if err != nil {
		return nil, err
	}
	if !eavsearch.ValidIdentifier(foreignColumn) {
		return nil, fmt.Errorf("join filter %q: invalid foreign column %q", name, foreignColumn)
	}
	return &ReverseJoinFilter{baseJoinFilter: base, foreignColumn: foreignColumn}, nil
}

func (f *ReverseJoinFilter) IsForeign() bool { return false }

func (f *ReverseJoinFilter) Link(entityAlias, entityKey string) sqlast.Expr {
	return sqlast.Eq(sqlast.Col(f.Alias(), f.foreignColumn), sqlast.Col(entityAlias, entityKey))
}

// Exists wraps pred in a correlated subquery over the host.
func (f *ReverseJoinFilter) Exists(entityAlias, entityKey string, pred sqlast.Expr) *sqlast.Select {
	return &sqlast.Select{
		Columns: []sqlast.SelectItem{{Expr: sqlast.Int(1)}},
		From:    sqlast.Table{Name: f.host.Table, Alias: f.Alias()},
		Where:   sqlast.And(f.Link(entityAlias, entityKey), pred),
	}
}

// JoinRegistry is the named set of join filters of one generator. It is
// never mutated after construction.
type JoinRegistry struct {
	filters map[string]JoinFilter
}

// NewJoinRegistry indexes filters by trigger name.
func NewJoinRegistry(filters ...JoinFilter) (*JoinRegistry, error) {
	r := &JoinRegistry{filters: make(map[string]JoinFilter, len(filters))}
	for _, f := range filters {
		if f == nil {
			continue
		}
		if _, dup := r.filters[f.Name()]; dup {
			return nil, fmt.Errorf("join filter %q registered twice", f.Name())
		}
		r.filters[f.Name()] = f
	}
	return r, nil
}

// Lookup returns the filter registered under name.
func (r *JoinRegistry) Lookup(name string) (JoinFilter, bool) {
	if r == nil {
		return nil, false
	}
	f, ok := r.filters[name]
	return f, ok
}

// Get is Lookup for callers that require the filter to exist.
func (r *JoinRegistry) Get(name string) (JoinFilter, error) {
	f, ok := r.Lookup(name)
	if !ok {
		return nil, eavsearch.NewUnknownJoinFilterError(name)
	}
	return f, nil
}

// Names lists registered filter names in lexical order.
func (r *JoinRegistry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.filters))
	for name := range r.filters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
