package internal

import (
	"fmt"
	"reflect"
	"time"

	"github.com/lychee-technology/eavsearch"
	"github.com/lychee-technology/eavsearch/internal/sqlast"
)

// compileConditions turns the tree into the WHERE expression. Every
// AND-bucket leaf forms one conjunction; OR-bucket leaves are alternatives
// to it:
//
//	(a AND b) OR c OR d
func (g *QueryGenerator) compileConditions(ctx *compileContext, tree *eavsearch.ConditionTree) (sqlast.Expr, error) {
	if tree.Len() == 0 {
		return nil, eavsearch.NewNoConditionsError()
	}

	logics := make([]eavsearch.Logic, len(tree.Groups))
	for i, group := range tree.Groups {
		logic, err := eavsearch.ParseLogic(string(group.Logic))
		if err != nil {
			return nil, err
		}
		logics[i] = logic
		if logic == eavsearch.LogicOr && len(group.Leaves) > 0 {
			ctx.alternatives = true
		}
	}

	var andLeaves, orLeaves []sqlast.Expr
	for i, group := range tree.Groups {
		for _, leaf := range group.Leaves {
			expr, err := g.compileLeaf(ctx, logics[i], group.Operator, leaf)
			if err != nil {
				return nil, err
			}
			if logics[i] == eavsearch.LogicOr {
				orLeaves = append(orLeaves, expr)
			} else {
				andLeaves = append(andLeaves, expr)
			}
		}
	}

	items := make([]sqlast.Expr, 0, len(orLeaves)+1)
	items = append(items, sqlast.And(andLeaves...))
	items = append(items, orLeaves...)
	return sqlast.Or(items...), nil
}

func (g *QueryGenerator) compileLeaf(ctx *compileContext, logic eavsearch.Logic, op eavsearch.Operator, leaf eavsearch.Leaf) (sqlast.Expr, error) {
	base, sub, err := leaf.SplitCode()
	if err != nil {
		return nil, err
	}
	if sub != "" {
		filter, err := g.joins.Get(base)
		if err != nil {
			return nil, err
		}
		return g.compileJoinFilterLeaf(ctx, filter, sub, op, leaf)
	}

	switch g.kinds[base] {
	case eavsearch.KindCoreColumn:
		prop, _ := g.schema.Property(base)
		if prop.Has(eavsearch.FlagPrimary) {
			return nil, eavsearch.NewSearchError(eavsearch.ErrorTypeReference, eavsearch.ErrCodePrimaryKeyCondition,
				"conditions on the primary key are not supported").WithField(leaf.Code)
		}
		if prop.Type.IsComposite() {
			return nil, eavsearch.NewInvalidOperandError(leaf.Code, "composite properties cannot be compared")
		}
		return compileOperand(leaf.Code, op, sqlast.Col(entityAlias, prop.ColumnName()), leaf.Value)

	case eavsearch.KindAttribute:
		prop, _ := g.schema.Property(base)
		return g.compileAttributeLeaf(ctx, logic, op, prop, leaf)

	case eavsearch.KindJoinFilter:
		filter, _ := g.joins.Lookup(base)
		return g.compileJoinFilterLeaf(ctx, filter, "", op, leaf)

	default:
		return nil, eavsearch.NewUnknownPropertyError(leaf.Code)
	}
}

func (g *QueryGenerator) compileAttributeLeaf(ctx *compileContext, logic eavsearch.Logic, op eavsearch.Operator, prop *eavsearch.Property, leaf eavsearch.Leaf) (sqlast.Expr, error) {
	kind := sqlast.InnerJoin
	if logic == eavsearch.LogicOr || leaf.Value == nil {
		kind = sqlast.LeftJoin
	}
	join := ctx.attributeJoin(attrJoinKey{logic: logic, op: op, code: leaf.Code}, kind)

	// No value row means the attribute is unset.
	if leaf.Value == nil {
		return sqlast.IsNull{Expr: sqlast.Col(join.alias, "entity_id")}, nil
	}

	valueColumn := func(name string) sqlast.Expr {
		col := sqlast.Col(join.alias, name)
		if op.IsRange() && prop.Type.IsNumeric() {
			return sqlast.CastNumeric{Expr: col}
		}
		return col
	}

	if prop.Type == eavsearch.PropertyTypeString && prop.MaxLength > g.overflowLength {
		short, err := compileOperand(leaf.Code, op, valueColumn("value"), leaf.Value)
		if err != nil {
			return nil, err
		}
		long, err := compileOperand(leaf.Code, op, valueColumn("text_value"), leaf.Value)
		if err != nil {
			return nil, err
		}
		return sqlast.Group{Expr: sqlast.Or(short, long)}, nil
	}
	return compileOperand(leaf.Code, op, valueColumn("value"), leaf.Value)
}

func (g *QueryGenerator) compileJoinFilterLeaf(ctx *compileContext, filter JoinFilter, sub string, op eavsearch.Operator, leaf eavsearch.Leaf) (sqlast.Expr, error) {
	column, err := filter.Column(sub)
	if err != nil {
		return nil, err
	}
	lhs := sqlast.Col(filter.Alias(), column)

	switch f := filter.(type) {
	case *ForeignJoinFilter:
		ctx.useFilter(f, leaf.Value == nil)
		return compileOperand(leaf.Code, op, lhs, leaf.Value)

	case *ReverseJoinFilter:
		ctx.markAttributeSearch()
		if leaf.Value == nil {
			// No related row carries a value.
			pred := sqlast.IsNull{Expr: lhs, Not: true}
			return sqlast.Exists{Query: f.Exists(entityAlias, g.entityKey, pred), Not: true}, nil
		}
		pred, err := compileOperand(leaf.Code, op, lhs, leaf.Value)
		if err != nil {
			return nil, err
		}
		return sqlast.Exists{Query: f.Exists(entityAlias, g.entityKey, pred)}, nil

	default:
		return nil, eavsearch.NewSearchError(eavsearch.ErrorTypeInternal, eavsearch.ErrCodeUnknownJoinFilter,
			fmt.Sprintf("join filter %q has unsupported type %T", filter.Name(), filter))
	}
}

var sqlOperators = map[eavsearch.Operator]string{
	eavsearch.OpEquals:    "=",
	eavsearch.OpLike:      "LIKE",
	eavsearch.OpGreater:   ">",
	eavsearch.OpGreaterEq: ">=",
	eavsearch.OpLess:      "<",
	eavsearch.OpLessEq:    "<=",
}

// compileOperand binds value against lhs. A null value always compiles to
// IS NULL without a binding.
func compileOperand(code string, op eavsearch.Operator, lhs sqlast.Expr, value any) (sqlast.Expr, error) {
	if value == nil {
		return sqlast.IsNull{Expr: lhs}, nil
	}

	if op == eavsearch.OpIn {
		items, ok := sliceValues(value)
		if !ok {
			return nil, eavsearch.NewInvalidOperandError(code, "operator 'in' requires an array value")
		}
		if len(items) == 0 {
			return nil, eavsearch.NewInvalidOperandError(code, "operator 'in' requires at least one value")
		}
		params := make([]sqlast.Expr, len(items))
		for i, item := range items {
			if item == nil || !isScalar(item) {
				return nil, eavsearch.NewInvalidOperandError(code, "operator 'in' accepts only non-null scalar values")
			}
			params[i] = sqlast.Param{Value: item}
		}
		return sqlast.In{Expr: lhs, Values: params}, nil
	}

	sqlOp, ok := sqlOperators[op]
	if !ok {
		return nil, eavsearch.NewUnknownOperatorError(string(op))
	}
	if !isScalar(value) {
		return nil, eavsearch.NewInvalidOperandError(code, fmt.Sprintf("operator '%s' requires a scalar value", op))
	}
	return sqlast.Compare{Left: lhs, Op: sqlOp, Right: sqlast.Param{Value: value}}, nil
}

func sliceValues(value any) ([]any, bool) {
	if items, ok := value.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if _, isBytes := value.([]byte); isBytes {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

func isScalar(value any) bool {
	switch value.(type) {
	case []byte, time.Time:
		return true
	}
	switch reflect.ValueOf(value).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct, reflect.Func, reflect.Chan:
		return false
	}
	return true
}
