// Package sqlast is a small SQL statement tree and its serializer. Statements
// are built as values and rendered once per dialect; parameters are numbered
// in render order so the placeholder sequence always matches the bindings.
package sqlast

// Expr is any renderable SQL expression.
type Expr interface {
	render(r *renderer)
}

// Column references alias.name. Table may be empty.
type Column struct {
	Table string
	Name  string
}

// Col is shorthand for Column{Table: table, Name: name}.
func Col(table, name string) Column {
	return Column{Table: table, Name: name}
}

// Param is a bound value.
type Param struct {
	Value any
}

// Int is an integer literal inlined into the SQL text.
type Int int64

// String is a trusted string constant inlined into the SQL text.
type String string

// Star renders "*".
type Star struct{}

// Compare renders Left Op Right.
type Compare struct {
	Left  Expr
	Op    string
	Right Expr
}

// Eq is shorthand for an equality comparison.
func Eq(left, right Expr) Compare {
	return Compare{Left: left, Op: "=", Right: right}
}

// IsNull renders "expr IS NULL" or "expr IS NOT NULL".
type IsNull struct {
	Expr Expr
	Not  bool
}

// In renders "expr IN (v1, v2, ...)".
type In struct {
	Expr   Expr
	Values []Expr
}

// List renders "(v1,v2,...)".
type List []Expr

// Junction joins its items with AND or OR. Nested junctions of more than one
// item are parenthesized; the outermost one is not.
type Junction struct {
	Op    string
	Items []Expr
}

// And builds an AND junction, dropping nil items and collapsing single items.
func And(items ...Expr) Expr {
	return junction("AND", items)
}

// Or builds an OR junction, dropping nil items and collapsing single items.
func Or(items ...Expr) Expr {
	return junction("OR", items)
}

func junction(op string, items []Expr) Expr {
	kept := make([]Expr, 0, len(items))
	for _, item := range items {
		if item != nil {
			kept = append(kept, item)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return Junction{Op: op, Items: kept}
	}
}

// Group forces parentheses around a junction even when it has one item.
type Group struct {
	Expr Expr
}

// Func renders name(args) with an optional DISTINCT.
type Func struct {
	Name     string
	Distinct bool
	Args     []Expr
}

// CastNumeric casts a stored string to the dialect's numeric type.
type CastNumeric struct {
	Expr Expr
}

// Exists renders "EXISTS (subquery)" or "NOT EXISTS (subquery)".
type Exists struct {
	Query *Select
	Not   bool
}

// SelectItem is one projected expression with an optional output alias.
type SelectItem struct {
	Expr  Expr
	Alias string
}

// Source is a FROM or JOIN target.
type Source interface {
	renderSource(r *renderer)
}

// Table is a named table with an alias.
type Table struct {
	Name  string
	Alias string
}

// Subquery is a derived table.
type Subquery struct {
	Query *Select
	Alias string
}

// JoinKind selects INNER or LEFT join.
type JoinKind string

const (
	InnerJoin JoinKind = "JOIN"
	LeftJoin  JoinKind = "LEFT JOIN"
)

// Join links a source into the statement.
type Join struct {
	Kind   JoinKind
	Source Source
	On     Expr
}

// OrderItem is one ORDER BY key.
type OrderItem struct {
	Expr Expr
	Desc bool
}

// Limit is a page window; both values are inlined integers.
type Limit struct {
	Offset int
	Count  int
}

// Select is a complete SELECT statement.
type Select struct {
	Columns []SelectItem
	From    Source
	Joins   []Join
	Where   Expr
	GroupBy []Expr
	OrderBy []OrderItem
	Limit   *Limit
}

// HasJoin reports whether a join with the given alias already exists.
func (s *Select) HasJoin(alias string) bool {
	for _, j := range s.Joins {
		if sourceAlias(j.Source) == alias {
			return true
		}
	}
	return false
}

func sourceAlias(src Source) string {
	switch s := src.(type) {
	case Table:
		return s.Alias
	case Subquery:
		return s.Alias
	}
	return ""
}
