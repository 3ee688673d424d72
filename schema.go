package eavsearch

import (
	"fmt"
	"regexp"
	"sort"
)

// PropertyType is the declared type of a property.
type PropertyType string

const (
	PropertyTypeString  PropertyType = "string"
	PropertyTypeInteger PropertyType = "integer"
	PropertyTypeNumber  PropertyType = "number"
	PropertyTypeBoolean PropertyType = "boolean"
	PropertyTypeDate    PropertyType = "date"
	PropertyTypeObject  PropertyType = "object"
	PropertyTypeArray   PropertyType = "array"
)

// IsComposite reports whether values of the type cannot be selected as a column.
func (t PropertyType) IsComposite() bool {
	return t == PropertyTypeObject || t == PropertyTypeArray
}

// IsNumeric reports whether values of the type compare numerically.
func (t PropertyType) IsNumeric() bool {
	return t == PropertyTypeInteger || t == PropertyTypeNumber
}

// PropertyFlag marks how a property is stored.
type PropertyFlag uint8

const (
	FlagPrimary PropertyFlag = 1 << iota
	FlagRequired
	// FlagEAV marks a property stored in the attribute-value table.
	FlagEAV
	// FlagForeignJoin marks the local column of a many-to-one join filter.
	FlagForeignJoin
	// FlagNoInsert marks a computed column that is never selected directly.
	FlagNoInsert
)

// PropertyKind is the storage class a property resolves to for one generator.
type PropertyKind uint8

const (
	KindCoreColumn PropertyKind = iota + 1
	KindAttribute
	KindJoinFilter
)

func (k PropertyKind) String() string {
	switch k {
	case KindCoreColumn:
		return "core"
	case KindAttribute:
		return "attribute"
	case KindJoinFilter:
		return "join"
	default:
		return "unknown"
	}
}

// Property is one named member of a schema.
type Property struct {
	Name      string       `json:"name"`
	Column    string       `json:"column,omitempty"` // defaults to Name
	Type      PropertyType `json:"type"`
	Flags     PropertyFlag `json:"flags"`
	MaxLength int          `json:"maxLength,omitempty"`
	Title     string       `json:"title,omitempty"`
}

// Has reports whether the property carries flag.
func (p *Property) Has(flag PropertyFlag) bool {
	return p.Flags&flag != 0
}

// ColumnName returns the physical column for core properties.
func (p *Property) ColumnName() string {
	if p.Column != "" {
		return p.Column
	}
	return p.Name
}

// Selectable reports whether the property may appear in a select list.
func (p *Property) Selectable() bool {
	return !p.Type.IsComposite() && !p.Has(FlagNoInsert)
}

// PropertySet exposes the named properties of an entity or joinable type.
type PropertySet interface {
	Table() string
	Property(name string) (*Property, bool)
	PropertiesByFlag(flag PropertyFlag) []*Property
	Properties() []*Property
	PrimaryKey() []*Property
	PrimaryKeyNames() []string
	IsMember(names ...string) bool
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s can be used as an unquoted SQL column name.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// Schema is the read-only PropertySet built once at startup.
type Schema struct {
	table      string
	properties map[string]*Property
	order      []string
}

// NewSchema validates and indexes properties for table.
func NewSchema(table string, props ...*Property) (*Schema, error) {
	if table == "" {
		return nil, NewSearchError(ErrorTypeInternal, ErrCodeSchemaInvalid, "schema table name cannot be empty")
	}
	s := &Schema{
		table:      table,
		properties: make(map[string]*Property, len(props)),
		order:      make([]string, 0, len(props)),
	}
	for _, p := range props {
		if p == nil {
			continue
		}
		if p.Name == "" {
			return nil, NewSearchError(ErrorTypeInternal, ErrCodeSchemaInvalid, "property name cannot be empty")
		}
		if _, dup := s.properties[p.Name]; dup {
			return nil, NewSearchError(ErrorTypeInternal, ErrCodeSchemaInvalid, fmt.Sprintf("duplicate property %q", p.Name))
		}
		if !p.Has(FlagEAV) && !ValidIdentifier(p.ColumnName()) {
			return nil, NewSearchError(ErrorTypeInternal, ErrCodeSchemaInvalid,
				fmt.Sprintf("property %q maps to invalid column %q", p.Name, p.ColumnName()))
		}
		if p.Type == "" {
			p.Type = PropertyTypeString
		}
		s.properties[p.Name] = p
		s.order = append(s.order, p.Name)
	}
	return s, nil
}

// MustSchema is NewSchema that panics; meant for tests and static wiring.
func MustSchema(table string, props ...*Property) *Schema {
	s, err := NewSchema(table, props...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Table() string { return s.table }

func (s *Schema) Property(name string) (*Property, bool) {
	p, ok := s.properties[name]
	return p, ok
}

// Properties returns all properties in declaration order.
func (s *Schema) Properties() []*Property {
	out := make([]*Property, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.properties[name])
	}
	return out
}

func (s *Schema) PropertiesByFlag(flag PropertyFlag) []*Property {
	var out []*Property
	for _, name := range s.order {
		if p := s.properties[name]; p.Has(flag) {
			out = append(out, p)
		}
	}
	return out
}

func (s *Schema) PrimaryKey() []*Property {
	return s.PropertiesByFlag(FlagPrimary)
}

func (s *Schema) PrimaryKeyNames() []string {
	pk := s.PrimaryKey()
	names := make([]string, len(pk))
	for i, p := range pk {
		names[i] = p.Name
	}
	return names
}

// IsMember reports whether every name is a property of the schema.
func (s *Schema) IsMember(names ...string) bool {
	for _, name := range names {
		if _, ok := s.properties[name]; !ok {
			return false
		}
	}
	return true
}

// SortedNames returns property names in lexical order.
func (s *Schema) SortedNames() []string {
	names := append([]string(nil), s.order...)
	sort.Strings(names)
	return names
}
