package eavsearch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

// ParseLogic validates a condition group key.
func ParseLogic(s string) (Logic, error) {
	switch Logic(strings.ToLower(s)) {
	case LogicAnd:
		return LogicAnd, nil
	case LogicOr:
		return LogicOr, nil
	default:
		return "", NewInvalidLogicError(s)
	}
}

type Operator string

const (
	OpEquals    Operator = "="
	OpIn        Operator = "in"
	OpLike      Operator = "like"
	OpGreater   Operator = ">"
	OpGreaterEq Operator = ">="
	OpLess      Operator = "<"
	OpLessEq    Operator = "<="
)

// ParseOperator validates an operator key.
func ParseOperator(s string) (Operator, error) {
	op := Operator(strings.ToLower(s))
	switch op {
	case OpEquals, OpIn, OpLike, OpGreater, OpGreaterEq, OpLess, OpLessEq:
		return op, nil
	default:
		return "", NewUnknownOperatorError(s)
	}
}

// IsRange reports whether the operator orders values.
func (op Operator) IsRange() bool {
	switch op {
	case OpGreater, OpGreaterEq, OpLess, OpLessEq:
		return true
	}
	return false
}

// Leaf compares one property code against a value.
type Leaf struct {
	Code  string `json:"code"`
	Value any    `json:"value"`
}

// SplitCode splits a property code into its base and optional sub-property.
// Codes with more than one dot are rejected.
func (l Leaf) SplitCode() (base, sub string, err error) {
	return SplitPropertyPath(l.Code)
}

// SplitPropertyPath splits "join.sub" into ("join", "sub").
func SplitPropertyPath(path string) (base, sub string, err error) {
	parts := strings.Split(path, ".")
	switch len(parts) {
	case 1:
		return parts[0], "", nil
	case 2:
		return parts[0], parts[1], nil
	default:
		return "", "", NewNestingTooDeepError(path)
	}
}

// ConditionGroup is one condition bucket: every leaf shares a logic and an operator.
type ConditionGroup struct {
	Logic    Logic    `json:"logic"`
	Operator Operator `json:"operator"`
	Leaves   []Leaf   `json:"leaves"`
}

// ConditionTree is the ordered form of
//
//	{ "and"|"or": { operator: { propertyCode: value } } }
//
// Key order of the JSON document is kept so that compiled SQL is stable.
type ConditionTree struct {
	Groups []ConditionGroup
}

// NewConditionTree returns an empty tree.
func NewConditionTree() *ConditionTree {
	return &ConditionTree{}
}

// Add appends a leaf to the (logic, operator) bucket, creating it when needed.
func (t *ConditionTree) Add(logic Logic, op Operator, code string, value any) *ConditionTree {
	for i := range t.Groups {
		if t.Groups[i].Logic == logic && t.Groups[i].Operator == op {
			t.Groups[i].Leaves = append(t.Groups[i].Leaves, Leaf{Code: code, Value: value})
			return t
		}
	}
	t.Groups = append(t.Groups, ConditionGroup{
		Logic:    logic,
		Operator: op,
		Leaves:   []Leaf{{Code: code, Value: value}},
	})
	return t
}

// Len returns the number of leaves in the tree.
func (t *ConditionTree) Len() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, g := range t.Groups {
		n += len(g.Leaves)
	}
	return n
}

// Codes returns every leaf code in tree order.
func (t *ConditionTree) Codes() []string {
	if t == nil {
		return nil
	}
	codes := make([]string, 0, t.Len())
	for _, g := range t.Groups {
		for _, leaf := range g.Leaves {
			codes = append(codes, leaf.Code)
		}
	}
	return codes
}

// UnmarshalJSON decodes the nested object form while keeping key order.
func (t *ConditionTree) UnmarshalJSON(data []byte) error {
	t.Groups = nil
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		logicKey, err := readKey(dec)
		if err != nil {
			return err
		}
		logic, err := ParseLogic(logicKey)
		if err != nil {
			return err
		}
		if err := expectDelim(dec, '{'); err != nil {
			return err
		}
		for dec.More() {
			opKey, err := readKey(dec)
			if err != nil {
				return err
			}
			op, err := ParseOperator(opKey)
			if err != nil {
				return err
			}
			if err := expectDelim(dec, '{'); err != nil {
				return err
			}
			for dec.More() {
				code, err := readKey(dec)
				if err != nil {
					return err
				}
				var raw any
				if err := dec.Decode(&raw); err != nil {
					return fmt.Errorf("decode value of %q: %w", code, err)
				}
				t.Add(logic, op, code, normalizeJSONValue(raw))
			}
			if err := expectDelim(dec, '}'); err != nil {
				return err
			}
		}
		if err := expectDelim(dec, '}'); err != nil {
			return err
		}
	}
	return expectDelim(dec, '}')
}

// MarshalJSON encodes the tree back into the nested object form.
func (t ConditionTree) MarshalJSON() ([]byte, error) {
	type opEntry struct {
		op     Operator
		leaves []Leaf
	}
	var order []Logic
	byLogic := make(map[Logic][]opEntry)
	for _, g := range t.Groups {
		if _, ok := byLogic[g.Logic]; !ok {
			order = append(order, g.Logic)
		}
		byLogic[g.Logic] = append(byLogic[g.Logic], opEntry{op: g.Operator, leaves: g.Leaves})
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, logic := range order {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONKey(&buf, string(logic))
		buf.WriteByte('{')
		for j, entry := range byLogic[logic] {
			if j > 0 {
				buf.WriteByte(',')
			}
			writeJSONKey(&buf, string(entry.op))
			buf.WriteByte('{')
			for k, leaf := range entry.leaves {
				if k > 0 {
					buf.WriteByte(',')
				}
				writeJSONKey(&buf, leaf.Code)
				value, err := json.Marshal(leaf.Value)
				if err != nil {
					return nil, fmt.Errorf("encode value of %q: %w", leaf.Code, err)
				}
				buf.Write(value)
			}
			buf.WriteByte('}')
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSONKey(buf *bytes.Buffer, key string) {
	encoded, _ := json.Marshal(key)
	buf.Write(encoded)
	buf.WriteByte(':')
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("invalid condition tree: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return NewSearchError(ErrorTypeValidation, ErrCodeInvalidRequest,
			fmt.Sprintf("invalid condition tree: expected %q, got %v", want, tok))
	}
	return nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("invalid condition tree: %w", err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", NewSearchError(ErrorTypeValidation, ErrCodeInvalidRequest,
			fmt.Sprintf("invalid condition tree: expected object key, got %v", tok))
	}
	return key, nil
}

// normalizeJSONValue turns json.Number into int64 or float64 so drivers can
// bind it, recursing into arrays.
func normalizeJSONValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeJSONValue(item)
		}
		return out
	default:
		return v
	}
}
