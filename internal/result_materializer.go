package internal

import (
	"fmt"
	"strings"

	"github.com/lychee-technology/eavsearch"
)

const (
	pivotCodeColumn    = "code"
	pivotValueColumn   = "value"
	pivotCaptionColumn = "caption"
	countColumn        = "count"
)

// ResultMaterializer folds result rows into entities. Rows are grouped by the
// group key columns, then by the entity id; pivot rows contribute one
// attribute each.
type ResultMaterializer struct {
	idColumn  string
	groupKeys []string
}

// NewResultMaterializer creates a materializer keyed on idColumn.
func NewResultMaterializer(idColumn string, groupKeys ...string) *ResultMaterializer {
	return &ResultMaterializer{idColumn: idColumn, groupKeys: groupKeys}
}

// Materialize groups rows, keeping first-seen order of groups and entities.
func (m *ResultMaterializer) Materialize(rows []eavsearch.Row) []*eavsearch.EntityGroup {
	var groups []*eavsearch.EntityGroup
	groupIndex := make(map[string]int)
	entityIndex := make(map[string]map[string]*eavsearch.EntityRecord)

	for _, row := range rows {
		gk := m.groupKey(row)
		gi, ok := groupIndex[gk]
		if !ok {
			key := make(map[string]any, len(m.groupKeys))
			for _, col := range m.groupKeys {
				key[col] = normalizeValue(row[col])
			}
			gi = len(groups)
			groupIndex[gk] = gi
			groups = append(groups, &eavsearch.EntityGroup{Key: key})
			entityIndex[gk] = make(map[string]*eavsearch.EntityRecord)
		}
		group := groups[gi]

		id := normalizeValue(row[m.idColumn])
		ik := fmt.Sprint(id)
		record, ok := entityIndex[gk][ik]
		if !ok {
			record = &eavsearch.EntityRecord{ID: id, Attributes: make(map[string]any)}
			entityIndex[gk][ik] = record
			group.Entities = append(group.Entities, record)
		}
		m.apply(record, row)
	}
	return groups
}

// Records materializes rows ignoring group keys.
func (m *ResultMaterializer) Records(rows []eavsearch.Row) []*eavsearch.EntityRecord {
	flat := &ResultMaterializer{idColumn: m.idColumn}
	groups := flat.Materialize(rows)
	if len(groups) == 0 {
		return []*eavsearch.EntityRecord{}
	}
	return groups[0].Entities
}

func (m *ResultMaterializer) apply(record *eavsearch.EntityRecord, row eavsearch.Row) {
	_, hasCode := row[pivotCodeColumn]
	_, hasValue := row[pivotValueColumn]
	pivot := hasCode && hasValue

	for col, val := range row {
		if pivot && (col == pivotCodeColumn || col == pivotValueColumn || col == pivotCaptionColumn) {
			continue
		}
		record.Attributes[col] = normalizeValue(val)
	}
	if !pivot {
		return
	}
	code, ok := normalizeValue(row[pivotCodeColumn]).(string)
	if !ok || code == "" {
		return
	}
	record.Attributes[code] = normalizeValue(row[pivotValueColumn])
}

func (m *ResultMaterializer) groupKey(row eavsearch.Row) string {
	if len(m.groupKeys) == 0 {
		return ""
	}
	parts := make([]string, len(m.groupKeys))
	for i, col := range m.groupKeys {
		parts[i] = fmt.Sprint(normalizeValue(row[col]))
	}
	return strings.Join(parts, "\x00")
}

// CountFromRows reads the single count column of a count query result.
func CountFromRows(rows []eavsearch.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	v, ok := rows[0][countColumn]
	if !ok {
		return 0, eavsearch.NewSearchError(eavsearch.ErrorTypeExecution, eavsearch.ErrCodeResultScan,
			"count query returned no count column")
	}
	if v == nil {
		return 0, nil
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, eavsearch.NewSearchError(eavsearch.ErrorTypeExecution, eavsearch.ErrCodeResultScan,
			"count column is not an integer").WithCause(err)
	}
	return n, nil
}

func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
