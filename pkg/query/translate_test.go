package query

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/rubiojr/scout/pkg/core"
	"github.com/rubiojr/scout/pkg/schema"
)

func reportsTable() schema.TableDescriptor {
	text := schema.AffinityText
	return schema.TableDescriptor{
		Name:       "reports",
		HasRowID:   true,
		PrimaryKey: []string{"id"},
		Fields: []schema.FieldDescriptor{
			{Name: "id", Affinity: text, Role: schema.RoleIdentifier, Searchable: true, Sortable: true, Filterable: true},
			{Name: "full_text", Affinity: text, Role: schema.RoleFreeText, Searchable: true, Filterable: true},
			{Name: "highest_classification", Affinity: text, Role: schema.RoleClassification, Searchable: true, Sortable: true, Filterable: true},
			{Name: "processed_time", Affinity: text, Role: schema.RoleDate, Sortable: true, Filterable: true},
			{Name: "page_count", Affinity: schema.AffinityInteger, Role: schema.RoleNumeric, Sortable: true, Filterable: true},
		},
		SearchableFields: []string{"id", "full_text", "highest_classification"},
	}
}

func translate(t *testing.T, input string, table schema.TableDescriptor, opts Options) (*Clause, error) {
	t.Helper()
	n, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse(%q): %v", input, err)
	}
	return Translate(n, table, opts)
}

func TestTranslate(t *testing.T) {
	like := `LIKE ? ESCAPE '\'`
	tests := []struct {
		input string
		where string
		args  []any
	}{
		{"*", "", nil},
		{"highest_classification:secret", `src."highest_classification" = ? COLLATE NOCASE`, []any{"secret"}},
		{"HIGHEST_CLASSIFICATION:secret", `src."highest_classification" = ? COLLATE NOCASE`, []any{"secret"}},
		{"page_count:7", `src."page_count" = ?`, []any{7.0}},
		{"processed_time:2024-01-03", `src."processed_time" ` + like, []any{"2024-01-03%"}},
		{"processed_time:<=2024-01-03", `src."processed_time" < ?`, []any{"2024-01-04"}},
		{"processed_time:>2024-01-03", `src."processed_time" >= ?`, []any{"2024-01-04"}},
		{"processed_time:[2024-01-02 TO 2024-01-03]", `(src."processed_time" >= ? AND src."processed_time" < ?)`, []any{"2024-01-02", "2024-01-04"}},
		{"page_count:[5 TO 20}", `(src."page_count" >= ? AND src."page_count" < ?)`, []any{5.0, 20.0}},
		{"page_count:[* TO *]", `src."page_count" IS NOT NULL`, nil},
		{"full_text:bor_der", `src."full_text" ` + like, []any{`%bor\_der%`}},
		{"id:r*", `src."id" ` + like, []any{"r%"}},
		{"id:*", `(src."id" IS NOT NULL AND src."id" != '')`, nil},
		{"id:50\\%", `src."id" = ? COLLATE NOCASE`, []any{"50%"}},
		{
			"-border",
			`NOT COALESCE((src."id" ` + like + ` OR src."full_text" ` + like + ` OR src."highest_classification" ` + like + `), 0)`,
			[]any{"%border%", "%border%", "%border%"},
		},
		{
			"page_count:1 OR page_count:3",
			`(src."page_count" = ? OR src."page_count" = ?)`,
			[]any{1.0, 3.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			c, err := translate(t, tt.input, reportsTable(), Options{})
			if err != nil {
				t.Fatalf("Translate: %v", err)
			}
			if c.Where != tt.where {
				t.Errorf("where:\nexpected %s\ngot      %s", tt.where, c.Where)
			}
			if !reflect.DeepEqual(c.Args, tt.args) {
				t.Errorf("args: expected %v, got %v", tt.args, c.Args)
			}
			if c.Match != "" {
				t.Errorf("unindexed table produced match %q", c.Match)
			}
		})
	}
}

func TestTranslateErrors(t *testing.T) {
	inputs := []string{
		"nope:x",
		"page_count:abc",
		"page_count:[1 TO x]",
		"page_count:>ten",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := translate(t, in, reportsTable(), Options{})
			if !errors.Is(err, core.ErrInvalidQuery) {
				t.Errorf("expected invalid query, got %v", err)
			}
		})
	}

	_, err := translate(t, "x", reportsTable(), Options{Fields: []string{"missing"}})
	if !errors.Is(err, core.ErrInvalidQuery) {
		t.Errorf("unknown restricted field: expected invalid query, got %v", err)
	}
}

func TestTranslateRestrictedFields(t *testing.T) {
	c, err := translate(t, "secret", reportsTable(), Options{Fields: []string{"highest_classification"}})
	if err != nil {
		t.Fatal(err)
	}
	if c.Where != `(src."highest_classification" LIKE ? ESCAPE '\')` {
		t.Errorf("unexpected where %s", c.Where)
	}
}

func TestTranslateIndexed(t *testing.T) {
	table := reportsTable()
	table.Indexed = true
	table.IndexFields = []string{"full_text"}

	c, err := translate(t, "intel", table, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(c.Where, `src.rowid IN (SELECT rowid FROM "reports_fts" WHERE "reports_fts" MATCH ?)`) {
		t.Errorf("expected index lookup, got %s", c.Where)
	}
	if c.Match != `("intel" *)` {
		t.Errorf("unexpected match %q", c.Match)
	}
	if last := c.Args[len(c.Args)-1]; last != `"intel" *` {
		t.Errorf("expected the FTS expression as last arg, got %v", last)
	}

	c, err = translate(t, `full_text:"border crossings" -smuggling`, table, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if c.Match != `("full_text" : ("border crossings"))` {
		t.Errorf("negated terms must not score: %q", c.Match)
	}

	c, err = translate(t, "secret", table, Options{Fields: []string{"highest_classification"}})
	if err != nil {
		t.Fatal(err)
	}
	if c.Match != "" || strings.Contains(c.Where, "MATCH") {
		t.Errorf("restriction to unindexed field must not use the index: %s", c.Where)
	}
}

func TestCompileFilters(t *testing.T) {
	table := reportsTable()
	c, err := CompileFilters(map[string]any{
		"page_count":             map[string]any{"lt": 20.0, "gte": "5"},
		"highest_classification": "SECRET",
		"id":                     []any{"r1", "r2"},
		"processed_time":         nil,
	}, table)
	if err != nil {
		t.Fatalf("CompileFilters: %v", err)
	}
	want := `src."highest_classification" = ? AND src."id" IN (?, ?) AND (src."page_count" >= ? AND src."page_count" < ?) AND src."processed_time" IS NULL`
	if c.Where != want {
		t.Errorf("where:\nexpected %s\ngot      %s", want, c.Where)
	}
	wantArgs := []any{"SECRET", "r1", "r2", 5.0, 20.0}
	if !reflect.DeepEqual(c.Args, wantArgs) {
		t.Errorf("args: expected %v, got %v", wantArgs, c.Args)
	}

	bad := []map[string]any{
		{"nope": 1.0},
		{"page_count": map[string]any{"between": 1.0}},
		{"page_count": "many"},
		{"id": []any{nil}},
	}
	for _, f := range bad {
		if _, err := CompileFilters(f, table); !errors.Is(err, core.ErrInvalidQuery) {
			t.Errorf("CompileFilters(%v): expected invalid query, got %v", f, err)
		}
	}
}

func TestSort(t *testing.T) {
	keys, err := ParseSortString("page_count:desc, -processed_time,id")
	if err != nil {
		t.Fatal(err)
	}
	want := []SortKey{{"page_count", true}, {"processed_time", true}, {"id", false}}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("ParseSortString: expected %v, got %v", want, keys)
	}

	keys, err = ParseSortString(`[{"page_count": "desc"}, {"id": {"order": "asc"}}, "_score"]`)
	if err != nil {
		t.Fatal(err)
	}
	want = []SortKey{{"page_count", true}, {"id", false}, {"_score", false}}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("ParseSortString JSON: expected %v, got %v", want, keys)
	}

	if _, err := ParseSortString("id:sideways"); !errors.Is(err, core.ErrInvalidQuery) {
		t.Errorf("expected invalid order error, got %v", err)
	}

	table := reportsTable()
	order, err := OrderBy(nil, table, "score")
	if err != nil || order != "score DESC, src.rowid ASC" {
		t.Errorf("default order: %q %v", order, err)
	}
	order, err = OrderBy(keys, table, "score")
	if err != nil {
		t.Fatal(err)
	}
	if order != `src."page_count" DESC, src."id" ASC, score ASC, src.rowid ASC` {
		t.Errorf("unexpected order %s", order)
	}
	if _, err := OrderBy([]SortKey{{Field: "full_text"}}, table, "score"); !errors.Is(err, core.ErrInvalidQuery) {
		t.Errorf("sorting free text: expected invalid query, got %v", err)
	}
}

func TestIDExpression(t *testing.T) {
	composite := schema.TableDescriptor{Name: "pairs", PrimaryKey: []string{"a", "b"}}
	want := `COALESCE(CAST(src."a" AS TEXT), '') || '/' || COALESCE(CAST(src."b" AS TEXT), '')`
	if got := IDExpression(composite); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
	if got := IDExpression(schema.TableDescriptor{HasRowID: true}); got != "src.rowid" {
		t.Errorf("rowid table: got %s", got)
	}
	if got := tieBreak(composite); len(got) != 2 || got[1] != `src."b" ASC` {
		t.Errorf("composite tie break: %v", got)
	}
}
