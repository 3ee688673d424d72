package eavsearch

import (
	"encoding/json"
	"strings"
)

// SearchQuery is what the generator compiles. SearchRequest is the stock
// implementation; callers with their own request builders implement it directly.
type SearchQuery interface {
	Conditions() *ConditionTree
	Attributes() []string
	IsWild() bool
	Page() int
	ResultSize() int
	Ordering() []OrderBy
	AddAttribute(names ...string)
	Validate(schema PropertySet) error
}

// SearchRequest is a search supplied by a caller; it is never persisted.
type SearchRequest struct {
	Where      *ConditionTree `json:"conditions"`
	Requested  []string       `json:"attributes,omitempty"`
	Wildcard   bool           `json:"wildcard,omitempty"`
	PageNumber int            `json:"page"`
	PageSize   int            `json:"page_size"`
	OrderBy    []OrderBy      `json:"order_by,omitempty"`
}

var _ SearchQuery = (*SearchRequest)(nil)

// NewSearchRequest creates a request for the first page.
func NewSearchRequest(conditions *ConditionTree, pageSize int) *SearchRequest {
	return &SearchRequest{Where: conditions, PageNumber: 1, PageSize: pageSize}
}

func (r *SearchRequest) Conditions() *ConditionTree { return r.Where }
func (r *SearchRequest) Attributes() []string       { return r.Requested }
func (r *SearchRequest) IsWild() bool               { return r.Wildcard }
func (r *SearchRequest) Page() int                  { return r.PageNumber }
func (r *SearchRequest) ResultSize() int            { return r.PageSize }
func (r *SearchRequest) Ordering() []OrderBy        { return r.OrderBy }

// AddAttribute appends names to the projection, skipping duplicates. A "*"
// switches the request to wildcard mode.
func (r *SearchRequest) AddAttribute(names ...string) {
	seen := make(map[string]struct{}, len(r.Requested))
	for _, name := range r.Requested {
		seen[name] = struct{}{}
	}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if name == "*" {
			r.Wildcard = true
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		r.Requested = append(r.Requested, name)
	}
}

// Validate checks the request shape against the entity schema. Dotted names
// are left to the join filter registry; out-of-range pages are clamped later.
func (r *SearchRequest) Validate(schema PropertySet) error {
	for _, code := range r.Where.Codes() {
		if _, _, err := SplitPropertyPath(code); err != nil {
			return err
		}
	}
	for _, name := range r.Requested {
		base, sub, err := SplitPropertyPath(name)
		if err != nil {
			return err
		}
		if sub == "" && schema != nil && !schema.IsMember(base) {
			return NewUnknownPropertyError(name)
		}
	}
	for _, ob := range r.OrderBy {
		if schema != nil && !schema.IsMember(ob.Property) {
			return NewUnknownPropertyError(ob.Property)
		}
		switch ob.SortOrder {
		case "", SortOrderAsc, SortOrderDesc:
		default:
			return NewSearchError(ErrorTypeValidation, ErrCodeInvalidRequest, "sort_order must be 'asc' or 'desc'").WithField(ob.Property)
		}
	}
	return nil
}

// UnmarshalJSON accepts "attributes": ["*"] as the wildcard. Fields absent
// from data keep their current values.
func (r *SearchRequest) UnmarshalJSON(data []byte) error {
	type requestAlias SearchRequest
	alias := requestAlias(*r)
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*r = SearchRequest(alias)
	requested := r.Requested
	r.Requested = nil
	r.AddAttribute(requested...)
	return nil
}
