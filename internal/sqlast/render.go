package sqlast

import (
	"regexp"
	"strconv"
	"strings"
)

// Binding is a rendered parameter.
type Binding struct {
	Placeholder string
	Value       any
}

// Render serializes stmt for dialect d.
func Render(stmt *Select, d Dialect) (string, []Binding) {
	r := &renderer{dialect: d}
	r.selectStmt(stmt)
	return r.sb.String(), r.bindings
}

// RenderExpr serializes a standalone expression; used for fragments such as
// IN lists handed to callers.
func RenderExpr(e Expr, d Dialect) (string, []Binding) {
	r := &renderer{dialect: d}
	r.expr(e, false)
	return r.sb.String(), r.bindings
}

type renderer struct {
	dialect  Dialect
	sb       strings.Builder
	bindings []Binding
}

var plainAlias = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (r *renderer) write(s string) {
	r.sb.WriteString(s)
}

func (r *renderer) selectStmt(s *Select) {
	r.write("SELECT ")
	for i, item := range s.Columns {
		if i > 0 {
			r.write(", ")
		}
		r.expr(item.Expr, false)
		if item.Alias != "" {
			r.write(" AS ")
			if plainAlias.MatchString(item.Alias) {
				r.write(item.Alias)
			} else {
				r.write(r.dialect.QuoteAlias(item.Alias))
			}
		}
	}
	if s.From != nil {
		r.write(" FROM ")
		s.From.renderSource(r)
	}
	for _, j := range s.Joins {
		r.write(" ")
		r.write(string(j.Kind))
		r.write(" ")
		j.Source.renderSource(r)
		if j.On != nil {
			r.write(" ON ")
			r.expr(j.On, false)
		}
	}
	if s.Where != nil {
		r.write(" WHERE ")
		r.expr(s.Where, false)
	}
	if len(s.GroupBy) > 0 {
		r.write(" GROUP BY ")
		for i, g := range s.GroupBy {
			if i > 0 {
				r.write(", ")
			}
			r.expr(g, false)
		}
	}
	if len(s.OrderBy) > 0 {
		r.write(" ORDER BY ")
		for i, o := range s.OrderBy {
			if i > 0 {
				r.write(", ")
			}
			r.expr(o.Expr, false)
			if o.Desc {
				r.write(" DESC")
			}
		}
	}
	if s.Limit != nil {
		r.write(" ")
		r.write(r.dialect.Limit(s.Limit.Offset, s.Limit.Count))
	}
}

// expr renders e; nested marks a junction that must be parenthesized.
func (r *renderer) expr(e Expr, nested bool) {
	if j, ok := e.(Junction); ok {
		r.junction(j, nested)
		return
	}
	e.render(r)
}

func (r *renderer) junction(j Junction, nested bool) {
	if nested {
		r.write("(")
	}
	for i, item := range j.Items {
		if i > 0 {
			r.write(" " + j.Op + " ")
		}
		r.expr(item, true)
	}
	if nested {
		r.write(")")
	}
}

func (r *renderer) param(v any) {
	n := len(r.bindings) + 1
	r.write(r.dialect.Placeholder(n))
	r.bindings = append(r.bindings, Binding{Placeholder: r.dialect.BindingKey(n), Value: v})
}

func (c Column) render(r *renderer) {
	if c.Table != "" {
		r.write(c.Table)
		r.write(".")
	}
	r.write(c.Name)
}

func (p Param) render(r *renderer) {
	r.param(p.Value)
}

func (i Int) render(r *renderer) {
	r.write(strconv.FormatInt(int64(i), 10))
}

func (s String) render(r *renderer) {
	r.write("'" + strings.ReplaceAll(string(s), "'", "''") + "'")
}

func (Star) render(r *renderer) {
	r.write("*")
}

func (c Compare) render(r *renderer) {
	r.expr(c.Left, true)
	r.write(" " + c.Op + " ")
	r.expr(c.Right, true)
}

func (n IsNull) render(r *renderer) {
	r.expr(n.Expr, true)
	if n.Not {
		r.write(" IS NOT NULL")
		return
	}
	r.write(" IS NULL")
}

func (in In) render(r *renderer) {
	r.expr(in.Expr, true)
	r.write(" IN ")
	List(in.Values).render(r)
}

func (l List) render(r *renderer) {
	r.write("(")
	for i, v := range l {
		if i > 0 {
			r.write(",")
		}
		r.expr(v, false)
	}
	r.write(")")
}

func (j Junction) render(r *renderer) {
	r.junction(j, true)
}

func (g Group) render(r *renderer) {
	r.write("(")
	r.expr(g.Expr, false)
	r.write(")")
}

func (f Func) render(r *renderer) {
	r.write(f.Name)
	r.write("(")
	if f.Distinct {
		r.write("DISTINCT ")
	}
	for i, a := range f.Args {
		if i > 0 {
			r.write(", ")
		}
		r.expr(a, false)
	}
	r.write(")")
}

func (c CastNumeric) render(r *renderer) {
	inner := &renderer{dialect: r.dialect, bindings: r.bindings}
	inner.expr(c.Expr, false)
	r.bindings = inner.bindings
	r.write(r.dialect.CastNumeric(inner.sb.String()))
}

func (e Exists) render(r *renderer) {
	if e.Not {
		r.write("NOT ")
	}
	r.write("EXISTS (")
	r.selectStmt(e.Query)
	r.write(")")
}

func (t Table) renderSource(r *renderer) {
	r.write(r.dialect.QuoteIdent(t.Name))
	if t.Alias != "" {
		r.write(" ")
		r.write(t.Alias)
	}
}

func (s Subquery) renderSource(r *renderer) {
	r.write("(")
	r.selectStmt(s.Query)
	r.write(")")
	if s.Alias != "" {
		r.write(" ")
		r.write(s.Alias)
	}
}
