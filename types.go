package eavsearch

import (
	"time"
)

// Attribute is a row of the attribute definition table.
type Attribute struct {
	ID      int64  `json:"id"`
	Code    string `json:"code"`
	Caption string `json:"caption"`
}

// AttributeValue is a row of the sparse attribute-value table. Absence of a
// row means the attribute is unset for the entity.
type AttributeValue struct {
	EntityID    int64   `json:"entityId"`
	AttributeID int64   `json:"attributeId"`
	Value       string  `json:"value"`
	TextValue   *string `json:"textValue,omitempty"` // values longer than the overflow bound
}

// SortOrder defines sort direction
type SortOrder string

const (
	SortOrderAsc  SortOrder = "asc"
	SortOrderDesc SortOrder = "desc"
)

// OrderBy orders results by an entity column.
type OrderBy struct {
	Property  string    `json:"property"`
	SortOrder SortOrder `json:"sort_order,omitempty"`
}

// Desc reports whether the order is descending.
func (o OrderBy) Desc() bool {
	return o.SortOrder == SortOrderDesc
}

// Binding is one positional parameter of a compiled statement.
type Binding struct {
	Placeholder string `json:"placeholder"`
	Value       any    `json:"value"`
}

// QueryBuilderOutput is the result of compiling a search. It is produced once
// per compile call and handed to the executor unchanged.
type QueryBuilderOutput struct {
	SQL            string    `json:"sql"`
	Bindings       []Binding `json:"bindings"`
	UniqueIDColumn string    `json:"unique_id_column"`
}

// Args returns the binding values in placeholder order.
func (o *QueryBuilderOutput) Args() []any {
	args := make([]any, len(o.Bindings))
	for i, b := range o.Bindings {
		args[i] = b.Value
	}
	return args
}

// BoundValues returns the bindings keyed by placeholder.
func (o *QueryBuilderOutput) BoundValues() map[string]any {
	values := make(map[string]any, len(o.Bindings))
	for _, b := range o.Bindings {
		values[b.Placeholder] = b.Value
	}
	return values
}

// Row is one result row keyed by column name.
type Row map[string]any

// EntityRecord is one logical entity folded out of result rows.
type EntityRecord struct {
	ID         any            `json:"id"`
	Attributes map[string]any `json:"attributes"`
}

// EntityGroup holds the entities sharing the same group key values.
type EntityGroup struct {
	Key      map[string]any  `json:"key"`
	Entities []*EntityRecord `json:"entities"`
}

// SearchResult represents one page of search results.
type SearchResult struct {
	SearchID      string          `json:"search_id"`
	Data          []*EntityRecord `json:"data"`
	TotalRecords  int64           `json:"total_records"`
	TotalPages    int             `json:"total_pages"`
	CurrentPage   int             `json:"current_page"`
	ItemsPerPage  int             `json:"items_per_page"`
	HasNext       bool            `json:"has_next"`
	HasPrevious   bool            `json:"has_previous"`
	ExecutionTime time.Duration   `json:"execution_time"`
}
