// Package query parses the scout query language into a predicate tree and
// translates that tree into parameterized SQL for one table.
//
// The language is a small Lucene-like DSL:
//
//	border intelligence                  both terms, any searchable field
//	"port security"                      phrase
//	highest_classification:SECRET        field value
//	keywords:bord*                       wildcard (* and ?)
//	MGRS:*                               field present and non-empty
//	page_count:[5 TO 20]                 inclusive range, {} for exclusive
//	processed_time:>=2024-01-03          comparison
//	border AND (ports OR customs) -draft boolean operators and negation
package query

import (
	"fmt"
	"strings"
)

// Node is one predicate of a parsed query.
type Node interface {
	node()
	String() string
}

// MatchAll matches every row.
type MatchAll struct{}

// Term matches one word. An empty Field means every searchable field.
type Term struct {
	Field string
	Text  string
}

// Phrase matches contiguous text.
type Phrase struct {
	Field string
	Text  string
}

// Wildcard matches a pattern where * is any run of characters and ? one
// character. Pattern keeps backslash escapes.
type Wildcard struct {
	Field   string
	Pattern string
}

// Exists matches rows where Field is set and non-empty.
type Exists struct {
	Field string
}

// Compare matches rows where Field compares to Value with Op (>, >=, <, <=).
type Compare struct {
	Field string
	Op    string
	Value string
}

// Range matches rows where Field lies between Min and Max. An empty bound is
// open.
type Range struct {
	Field        string
	Min          string
	Max          string
	MinInclusive bool
	MaxInclusive bool
}

type And struct {
	Children []Node
}

type Or struct {
	Children []Node
}

type Not struct {
	Child Node
}

func (MatchAll) node() {}
func (Term) node()     {}
func (Phrase) node()   {}
func (Wildcard) node() {}
func (Exists) node()   {}
func (Compare) node()  {}
func (Range) node()    {}
func (And) node()      {}
func (Or) node()       {}
func (Not) node()      {}

func (MatchAll) String() string { return "*" }

func (n Term) String() string { return scoped(n.Field, n.Text) }

func (n Phrase) String() string { return scoped(n.Field, fmt.Sprintf("%q", n.Text)) }

func (n Wildcard) String() string { return scoped(n.Field, n.Pattern) }

func (n Exists) String() string { return scoped(n.Field, "*") }

func (n Compare) String() string { return scoped(n.Field, n.Op+n.Value) }

func (n Range) String() string {
	lo, hi := "{", "}"
	if n.MinInclusive {
		lo = "["
	}
	if n.MaxInclusive {
		hi = "]"
	}
	return scoped(n.Field, fmt.Sprintf("%s%s TO %s%s", lo, bound(n.Min), bound(n.Max), hi))
}

func (n And) String() string { return group("AND", n.Children) }

func (n Or) String() string { return group("OR", n.Children) }

func (n Not) String() string { return "(NOT " + n.Child.String() + ")" }

func scoped(field, value string) string {
	if field == "" {
		return value
	}
	return field + ":" + value
}

func bound(s string) string {
	if s == "" {
		return "*"
	}
	return s
}

func group(op string, children []Node) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = c.String()
	}
	return "(" + op + " " + strings.Join(parts, " ") + ")"
}

// Literal builds a query that matches every word of text as plain terms,
// ignoring any query syntax.
func Literal(text string) Node {
	words := strings.Fields(text)
	switch len(words) {
	case 0:
		return MatchAll{}
	case 1:
		return Term{Text: words[0]}
	}
	and := And{}
	for _, w := range words {
		and.Children = append(and.Children, Term{Text: w})
	}
	return and
}
