package query

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rubiojr/scout/pkg/core"
	"github.com/rubiojr/scout/pkg/index"
	"github.com/rubiojr/scout/pkg/log"
	"github.com/rubiojr/scout/pkg/schema"
)

var logger = log.ForService("query")

// Alias is the name the searched table is bound to in generated SQL.
const Alias = "src"

// Options tune translation.
type Options struct {
	// Fields restricts bare terms to these columns instead of every
	// searchable one.
	Fields []string
}

// Clause is a translated predicate.
type Clause struct {
	// Where is a boolean SQL expression over Alias; "" matches every row.
	Where string
	Args  []any
	// Match is the FTS5 expression scoring positive text clauses, "" when
	// the table is not indexed or nothing is scoreable.
	Match string
}

// Column returns the qualified, quoted reference to a column of the
// searched table.
func Column(name string) string {
	return Alias + "." + schema.Quote(name)
}

type translator struct {
	table    schema.TableDescriptor
	fields   []schema.FieldDescriptor
	indexed  map[string]bool
	ftsTable string
	args     []any
	matches  []string
}

// Translate turns n into SQL against table. Field names are resolved
// against the table and quoted; every value becomes a bound parameter.
func Translate(n Node, table schema.TableDescriptor, opts Options) (*Clause, error) {
	t := &translator{table: table, indexed: map[string]bool{}}

	if len(opts.Fields) > 0 {
		for _, name := range opts.Fields {
			f, err := t.field(name)
			if err != nil {
				return nil, err
			}
			if !containsField(t.fields, f.Name) {
				t.fields = append(t.fields, f)
			}
		}
	} else {
		for _, name := range table.SearchableFields {
			if f, ok := table.Field(name); ok {
				t.fields = append(t.fields, f)
			}
		}
	}

	if table.Indexed && table.HasRowID {
		t.ftsTable = index.Name(table.Name)
		for _, c := range table.IndexFields {
			t.indexed[c] = true
		}
	}

	where, err := t.node(n, false)
	if err != nil {
		return nil, err
	}
	if where == "1" {
		where = ""
	}

	c := &Clause{Where: where, Args: t.args}
	if len(t.matches) > 0 {
		parts := make([]string, len(t.matches))
		for i, m := range t.matches {
			parts[i] = "(" + m + ")"
		}
		c.Match = strings.Join(parts, " OR ")
	}
	logger.Debugf("translated %s -> %s %v", n, c.Where, c.Args)
	return c, nil
}

func containsField(fields []schema.FieldDescriptor, name string) bool {
	return slices.ContainsFunc(fields, func(f schema.FieldDescriptor) bool { return f.Name == name })
}

func (t *translator) field(name string) (schema.FieldDescriptor, error) {
	f, ok := t.table.Field(name)
	if !ok {
		return f, core.InvalidQuery("translate", "unknown field %q in table %q", name, t.table.Name)
	}
	return f, nil
}

func (t *translator) bind(v any) string {
	t.args = append(t.args, v)
	return "?"
}

func (t *translator) node(n Node, negated bool) (string, error) {
	switch n := n.(type) {
	case MatchAll:
		return "1", nil
	case Term:
		if n.Field == "" {
			return t.text(n.Text, index.Terms(n.Text), negated), nil
		}
		return t.fieldValue(n.Field, n.Text, false, negated)
	case Phrase:
		if n.Field == "" {
			if strings.TrimSpace(n.Text) == "" {
				return "1", nil
			}
			return t.text(n.Text, index.Phrase(n.Text), negated), nil
		}
		return t.fieldValue(n.Field, n.Text, true, negated)
	case Wildcard:
		return t.wildcard(n, negated)
	case Exists:
		f, err := t.field(n.Field)
		if err != nil {
			return "", err
		}
		col := Column(f.Name)
		return fmt.Sprintf("(%s IS NOT NULL AND %s != '')", col, col), nil
	case Compare:
		return t.compare(n)
	case Range:
		return t.rangeClause(n)
	case And:
		return t.join(n.Children, " AND ", negated)
	case Or:
		return t.join(n.Children, " OR ", negated)
	case Not:
		inner, err := t.node(n.Child, !negated)
		if err != nil {
			return "", err
		}
		// A NULL column makes the inner expression NULL; NOT must still
		// select such rows.
		return "NOT COALESCE(" + inner + ", 0)", nil
	}
	return "", core.InvalidQuery("translate", "unsupported query node %T", n)
}

func (t *translator) join(children []Node, op string, negated bool) (string, error) {
	parts := make([]string, 0, len(children))
	for _, c := range children {
		s, err := t.node(c, negated)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return "(" + strings.Join(parts, op) + ")", nil
}

// text matches free text over the bare-term fields by substring, and through
// the full-text index when one covers any of them.
func (t *translator) text(text, fts string, negated bool) string {
	if len(t.fields) == 0 {
		return "0"
	}
	pattern := "%" + escapeLikePattern(text) + "%"
	var ors []string
	var ftsCols []string
	for _, f := range t.fields {
		ors = append(ors, fmt.Sprintf("%s LIKE %s ESCAPE '\\'", Column(f.Name), t.bind(pattern)))
		if t.indexed[f.Name] {
			ftsCols = append(ftsCols, f.Name)
		}
	}
	if !hasWordChar(text) {
		fts = ""
	}
	if expr := t.scope(ftsCols, fts); expr != "" {
		ors = append(ors, t.ftsMatch(expr))
		if !negated {
			t.matches = append(t.matches, expr)
		}
	}
	return "(" + strings.Join(ors, " OR ") + ")"
}

// scope restricts an FTS expression to cols when they are a strict subset
// of the indexed columns.
func (t *translator) scope(cols []string, expr string) string {
	if expr == "" || len(cols) == 0 || t.ftsTable == "" {
		return ""
	}
	if len(cols) == len(t.indexed) {
		return expr
	}
	if len(cols) == 1 {
		return index.Column(cols[0], "("+expr+")")
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = index.QuoteToken(c)
	}
	return "{" + strings.Join(quoted, " ") + "} : (" + expr + ")"
}

func (t *translator) ftsMatch(expr string) string {
	q := schema.Quote(t.ftsTable)
	return fmt.Sprintf("%s.rowid IN (SELECT rowid FROM %s WHERE %s MATCH %s)", Alias, q, q, t.bind(expr))
}

func isNumeric(f schema.FieldDescriptor) bool {
	if f.Role == schema.RoleDate || f.Affinity == schema.AffinityBlob {
		return false
	}
	return f.Role == schema.RoleNumeric || f.Affinity.Numeric()
}

// numericDate reports whether f is a date stored as a number (epoch
// seconds) and v is a number.
func numericDate(f schema.FieldDescriptor, v string) (float64, bool) {
	if f.Role != schema.RoleDate || (f.Affinity != schema.AffinityInteger && f.Affinity != schema.AffinityReal) {
		return 0, false
	}
	n, err := strconv.ParseFloat(v, 64)
	return n, err == nil
}

func (t *translator) number(f schema.FieldDescriptor, v string) (float64, error) {
	n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, core.InvalidQuery("translate", "field %q is numeric, %q is not a number", f.Name, v)
	}
	return n, nil
}

func (t *translator) fieldValue(name, value string, phrase, negated bool) (string, error) {
	f, err := t.field(name)
	if err != nil {
		return "", err
	}
	col := Column(f.Name)

	if n, ok := numericDate(f, value); ok {
		return fmt.Sprintf("%s = %s", col, t.bind(n)), nil
	}

	switch {
	case f.Role == schema.RoleFreeText:
		cond := fmt.Sprintf("%s LIKE %s ESCAPE '\\'", col, t.bind("%"+escapeLikePattern(value)+"%"))
		fts := index.Terms(value)
		if phrase {
			fts = index.Phrase(value)
		}
		if t.indexed[f.Name] && hasWordChar(value) {
			expr := index.QuoteToken(f.Name) + " : (" + fts + ")"
			cond = "(" + cond + " OR " + t.ftsMatch(expr) + ")"
			if !negated {
				t.matches = append(t.matches, expr)
			}
		}
		return cond, nil
	case f.Role == schema.RoleDate:
		return fmt.Sprintf("%s LIKE %s ESCAPE '\\'", col, t.bind(escapeLikePattern(value)+"%")), nil
	case isNumeric(f):
		n, err := t.number(f, value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %s", col, t.bind(n)), nil
	}
	return fmt.Sprintf("%s = %s COLLATE NOCASE", col, t.bind(value)), nil
}

func (t *translator) wildcard(n Wildcard, negated bool) (string, error) {
	pattern := wildcardToLike(n.Pattern)
	if n.Field == "" {
		if len(t.fields) == 0 {
			return "0", nil
		}
		var ors []string
		for _, f := range t.fields {
			ors = append(ors, fmt.Sprintf("%s LIKE %s ESCAPE '\\'", Column(f.Name), t.bind("%"+pattern+"%")))
		}
		if stem, ok := prefixStem(n.Pattern); ok {
			var cols []string
			for _, f := range t.fields {
				if t.indexed[f.Name] {
					cols = append(cols, f.Name)
				}
			}
			if expr := t.scope(cols, index.Prefix(stem)); expr != "" {
				ors = append(ors, t.ftsMatch(expr))
				if !negated {
					t.matches = append(t.matches, expr)
				}
			}
		}
		return "(" + strings.Join(ors, " OR ") + ")", nil
	}

	f, err := t.field(n.Field)
	if err != nil {
		return "", err
	}
	if f.Role == schema.RoleFreeText {
		pattern = "%" + pattern + "%"
	}
	return fmt.Sprintf("%s LIKE %s ESCAPE '\\'", Column(f.Name), t.bind(pattern)), nil
}

// hasWordChar reports whether s holds anything the FTS tokenizer indexes.
func hasWordChar(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) >= 0
}

// prefixStem returns the literal stem of patterns like "bord*".
func prefixStem(pattern string) (string, bool) {
	stem, ok := strings.CutSuffix(pattern, "*")
	if !ok || !hasWordChar(stem) || strings.ContainsAny(stem, `*?\`) {
		return "", false
	}
	return stem, true
}

var dateOnly = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// nextDay returns the day after a YYYY-MM-DD value.
func nextDay(v string) (string, bool) {
	if !dateOnly.MatchString(v) {
		return "", false
	}
	d, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return "", false
	}
	return d.AddDate(0, 0, 1).Format(time.DateOnly), true
}

func (t *translator) compare(n Compare) (string, error) {
	f, err := t.field(n.Field)
	if err != nil {
		return "", err
	}
	return t.bound(f, n.Op, n.Value)
}

// bound renders "column op value" with the comparison semantics of f.
func (t *translator) bound(f schema.FieldDescriptor, op, value string) (string, error) {
	col := Column(f.Name)

	if num, ok := numericDate(f, value); ok {
		return fmt.Sprintf("%s %s %s", col, op, t.bind(num)), nil
	}

	switch {
	case f.Role == schema.RoleDate:
		// A whole day: > and <= move to the start of the next day.
		if next, ok := nextDay(value); ok {
			switch op {
			case ">":
				op, value = ">=", next
			case "<=":
				op, value = "<", next
			}
		}
		return fmt.Sprintf("%s %s %s", col, op, t.bind(value)), nil
	case isNumeric(f):
		num, err := t.number(f, value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", col, op, t.bind(num)), nil
	}
	return fmt.Sprintf("%s %s %s", col, op, t.bind(value)), nil
}

func (t *translator) rangeClause(r Range) (string, error) {
	f, err := t.field(r.Field)
	if err != nil {
		return "", err
	}
	var parts []string
	if r.Min != "" {
		op := ">"
		if r.MinInclusive {
			op = ">="
		}
		s, err := t.bound(f, op, r.Min)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	if r.Max != "" {
		op := "<"
		if r.MaxInclusive {
			op = "<="
		}
		s, err := t.bound(f, op, r.Max)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		return Column(f.Name) + " IS NOT NULL", nil
	}
	return "(" + strings.Join(parts, " AND ") + ")", nil
}

// escapeLikePattern escapes special characters for LIKE pattern matching.
func escapeLikePattern(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

// wildcardToLike converts a query wildcard pattern to a LIKE pattern.
// Backslash-escaped * and ? stay literal.
func wildcardToLike(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		switch ch {
		case '\\':
			if i+1 < len(pattern) {
				i++
				b.WriteString(escapeLikePattern(string(pattern[i])))
				continue
			}
			b.WriteString(`\\`)
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_':
			b.WriteByte('\\')
			b.WriteByte(ch)
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}
