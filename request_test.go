package eavsearch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() *Schema {
	return MustSchema("products",
		&Property{Name: "id", Type: PropertyTypeInteger, Flags: FlagPrimary},
		&Property{Name: "sku"},
		&Property{Name: "price", Type: PropertyTypeNumber},
		&Property{Name: "color", Flags: FlagEAV},
	)
}

func TestSearchRequestUnmarshal(t *testing.T) {
	doc := `{
		"conditions": {"and": {"=": {"color": "red"}}},
		"attributes": ["sku", "color", "sku", " ", "*"],
		"page": 2,
		"page_size": 15,
		"order_by": [{"property": "price", "sort_order": "desc"}]
	}`
	var req SearchRequest
	require.NoError(t, json.Unmarshal([]byte(doc), &req))

	assert.Equal(t, []string{"sku", "color"}, req.Attributes())
	assert.True(t, req.IsWild())
	assert.Equal(t, 2, req.Page())
	assert.Equal(t, 15, req.ResultSize())
	assert.Equal(t, []OrderBy{{Property: "price", SortOrder: SortOrderDesc}}, req.Ordering())
	assert.True(t, req.Ordering()[0].Desc())
	assert.Equal(t, 1, req.Conditions().Len())
}

func TestSearchRequestUnmarshalKeepsPresets(t *testing.T) {
	req := &SearchRequest{PageNumber: 1, PageSize: 20}
	require.NoError(t, json.Unmarshal([]byte(`{"conditions": {"and": {"=": {"sku": "A"}}}}`), req))
	assert.Equal(t, 1, req.PageNumber)
	assert.Equal(t, 20, req.PageSize)
}

func TestSearchRequestValidate(t *testing.T) {
	schema := testSchema()
	tree := NewConditionTree().Add(LogicAnd, OpEquals, "color", "red")

	req := NewSearchRequest(tree, 10)
	req.AddAttribute("sku", "brand.name")
	assert.NoError(t, req.Validate(schema))

	req = NewSearchRequest(tree, 10)
	req.AddAttribute("nope")
	assert.True(t, IsSearchError(req.Validate(schema), ErrCodeUnknownProperty))

	req = NewSearchRequest(tree, 10)
	req.AddAttribute("a.b.c")
	assert.True(t, IsSearchError(req.Validate(schema), ErrCodeNestingTooDeep))

	req = NewSearchRequest(NewConditionTree().Add(LogicAnd, OpEquals, "x.y.z", 1), 10)
	assert.True(t, IsSearchError(req.Validate(schema), ErrCodeNestingTooDeep))

	req = NewSearchRequest(tree, 10)
	req.OrderBy = []OrderBy{{Property: "weight"}}
	assert.True(t, IsSearchError(req.Validate(schema), ErrCodeUnknownProperty))

	req.OrderBy = []OrderBy{{Property: "price", SortOrder: "up"}}
	err := req.Validate(schema)
	assert.True(t, IsSearchError(err, ErrCodeInvalidRequest))
	assert.True(t, IsValidationError(err))
}

func TestNewSearchRequest(t *testing.T) {
	req := NewSearchRequest(nil, 25)
	assert.Equal(t, 1, req.Page())
	assert.Equal(t, 25, req.ResultSize())
	assert.False(t, req.IsWild())
	assert.Nil(t, req.Conditions())
}
