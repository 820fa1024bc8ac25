package query

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rubiojr/scout/pkg/core"
	"github.com/rubiojr/scout/pkg/schema"
)

// Pseudo fields accepted as sort keys.
const (
	ScoreField = "_score"
	IDField    = "_id"
)

// SortKey orders results by one field.
type SortKey struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc"`
}

func (k SortKey) String() string {
	if k.Desc {
		return k.Field + ":desc"
	}
	return k.Field + ":asc"
}

// ParseSortString parses "f:desc,g" and "-f,g" lists.
func ParseSortString(s string) ([]SortKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, core.InvalidQuery("sort", "malformed sort JSON: %v", err)
		}
		return ParseSort(v)
	}
	var keys []SortKey
	for _, part := range strings.Split(s, ",") {
		k, err := parseSortItem(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// ParseSort accepts a decoded JSON sort value: a string list, a list
// of {"field": "desc"} or {"field": {"order": "desc"}} objects, or one such
// object.
func ParseSort(v any) ([]SortKey, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case string:
		return ParseSortString(v)
	case map[string]any:
		return parseSortObject(v)
	case []any:
		var keys []SortKey
		for _, item := range v {
			switch item := item.(type) {
			case string:
				k, err := parseSortItem(strings.TrimSpace(item))
				if err != nil {
					return nil, err
				}
				keys = append(keys, k)
			case map[string]any:
				ks, err := parseSortObject(item)
				if err != nil {
					return nil, err
				}
				keys = append(keys, ks...)
			default:
				return nil, core.InvalidQuery("sort", "unsupported sort entry %v", item)
			}
		}
		return keys, nil
	}
	return nil, core.InvalidQuery("sort", "unsupported sort value %v", v)
}

func parseSortItem(s string) (SortKey, error) {
	if s == "" {
		return SortKey{}, core.InvalidQuery("sort", "empty sort key")
	}
	if field, ok := strings.CutPrefix(s, "-"); ok {
		return SortKey{Field: field, Desc: true}, nil
	}
	field, order, found := strings.Cut(s, ":")
	if !found {
		return SortKey{Field: s}, nil
	}
	desc, err := parseOrder(order)
	if err != nil {
		return SortKey{}, err
	}
	return SortKey{Field: field, Desc: desc}, nil
}

func parseSortObject(m map[string]any) ([]SortKey, error) {
	if len(m) != 1 {
		return nil, core.InvalidQuery("sort", "sort objects take exactly one field, got %d", len(m))
	}
	for field, spec := range m {
		var order string
		switch spec := spec.(type) {
		case string:
			order = spec
		case map[string]any:
			o, _ := spec["order"].(string)
			order = o
		default:
			return nil, core.InvalidQuery("sort", "unsupported order %v for %q", spec, field)
		}
		desc, err := parseOrder(order)
		if err != nil {
			return nil, err
		}
		return []SortKey{{Field: field, Desc: desc}}, nil
	}
	return nil, nil
}

func parseOrder(order string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(order)) {
	case "", "asc":
		return false, nil
	case "desc":
		return true, nil
	}
	return false, core.InvalidQuery("sort", "invalid sort order %q (use asc or desc)", order)
}

// IDExpression returns the SQL expression identifying a row of table: its
// single-column primary key, its rowid, or the composite key joined by "/".
func IDExpression(table schema.TableDescriptor) string {
	if len(table.PrimaryKey) == 1 {
		return Column(table.PrimaryKey[0])
	}
	if table.HasRowID {
		return Alias + ".rowid"
	}
	parts := make([]string, len(table.PrimaryKey))
	for i, c := range table.PrimaryKey {
		parts[i] = "COALESCE(CAST(" + Column(c) + " AS TEXT), '')"
	}
	return strings.Join(parts, " || '/' || ")
}

// tieBreak is the stable final ordering: rowid, or the primary key columns.
func tieBreak(table schema.TableDescriptor) []string {
	if table.HasRowID {
		return []string{Alias + ".rowid ASC"}
	}
	var cols []string
	for _, c := range table.PrimaryKey {
		cols = append(cols, Column(c)+" ASC")
	}
	return cols
}

// OrderBy renders the ORDER BY list for keys. score is the SQL expression of
// the relevance score. With no keys results are ordered by score, highest
// first. The row identity always closes the list so paging is stable.
func OrderBy(keys []SortKey, table schema.TableDescriptor, score string) (string, error) {
	if len(keys) == 0 {
		keys = []SortKey{{Field: ScoreField, Desc: true}}
	}
	var parts []string
	for _, k := range keys {
		dir := "ASC"
		if k.Desc {
			dir = "DESC"
		}
		switch k.Field {
		case ScoreField:
			parts = append(parts, score+" "+dir)
			continue
		case IDField:
			parts = append(parts, IDExpression(table)+" "+dir)
			continue
		}
		f, ok := table.Field(k.Field)
		if !ok {
			return "", core.InvalidQuery("sort", "unknown sort field %q in table %q", k.Field, table.Name)
		}
		if f.Role == schema.RoleFreeText || !f.Sortable {
			return "", core.InvalidQuery("sort", "field %q cannot be sorted", f.Name)
		}
		parts = append(parts, fmt.Sprintf("%s %s", Column(f.Name), dir))
	}
	parts = append(parts, tieBreak(table)...)
	return strings.Join(parts, ", "), nil
}
