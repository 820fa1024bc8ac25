package query

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/rubiojr/scout/pkg/core"
	"github.com/rubiojr/scout/pkg/schema"
)

var rangeOps = map[string]string{"gt": ">", "gte": ">=", "lt": "<", "lte": "<="}

// CompileFilters translates structured filters decoded from JSON:
//
//	{"field": "v"}                 equality
//	{"field": ["a", "b"]}          membership
//	{"field": {"gte": 1, "lt": 9}} range
//	{"field": null}                IS NULL
//
// All filters are ANDed. Fields are applied in name order so the generated
// SQL is stable.
func CompileFilters(filters map[string]any, table schema.TableDescriptor) (*Clause, error) {
	if len(filters) == 0 {
		return &Clause{}, nil
	}
	t := &translator{table: table}

	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	slices.Sort(names)

	var parts []string
	for _, name := range names {
		f, err := t.field(name)
		if err != nil {
			return nil, err
		}
		s, err := t.filter(f, filters[name])
		if err != nil {
			return nil, err
		}
		parts = append(parts, s)
	}
	return &Clause{Where: strings.Join(parts, " AND "), Args: t.args}, nil
}

func (t *translator) filter(f schema.FieldDescriptor, v any) (string, error) {
	col := Column(f.Name)
	switch v := v.(type) {
	case nil:
		return col + " IS NULL", nil
	case []any:
		if len(v) == 0 {
			return "0", nil
		}
		marks := make([]string, len(v))
		for i, item := range v {
			val, err := t.filterValue(f, item)
			if err != nil {
				return "", err
			}
			marks[i] = t.bind(val)
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(marks, ", ")), nil
	case map[string]any:
		if len(v) == 0 {
			return "", core.InvalidQuery("filter", "empty range for field %q", f.Name)
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		var parts []string
		for _, k := range keys {
			op, ok := rangeOps[strings.ToLower(k)]
			if !ok {
				return "", core.InvalidQuery("filter", "unsupported operator %q for field %q (use gt, gte, lt or lte)", k, f.Name)
			}
			s, err := t.bound(f, op, scalarString(v[k]))
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return "(" + strings.Join(parts, " AND ") + ")", nil
	}

	val, err := t.filterValue(f, v)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s = %s", col, t.bind(val)), nil
}

// filterValue converts a decoded JSON scalar into a bind value matching the
// storage of f.
func (t *translator) filterValue(f schema.FieldDescriptor, v any) (any, error) {
	switch v := v.(type) {
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	case float64:
		if isNumeric(f) {
			return v, nil
		}
		return scalarString(v), nil
	case json.Number:
		if isNumeric(f) {
			return t.number(f, v.String())
		}
		return v.String(), nil
	case string:
		if isNumeric(f) {
			return t.number(f, v)
		}
		return v, nil
	case nil:
		return nil, core.InvalidQuery("filter", "null is not allowed inside a list for field %q", f.Name)
	}
	return nil, core.InvalidQuery("filter", "unsupported value %v for field %q", v, f.Name)
}

func scalarString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "1"
		}
		return "0"
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
