package query

import (
	"errors"
	"testing"

	"github.com/rubiojr/scout/pkg/core"
)

func TestLexer(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		tokens []Token
	}{
		{
			name:  "field with colons in value",
			input: "time:10:30:00",
			tokens: []Token{
				{Type: TokenWord, Value: "time"},
				{Type: TokenColon, Value: ":"},
				{Type: TokenWord, Value: "10:30:00"},
				{Type: TokenEOF},
			},
		},
		{
			name:  "comparison",
			input: "t:>=2024-01-01T10:00",
			tokens: []Token{
				{Type: TokenWord, Value: "t"},
				{Type: TokenColon, Value: ":"},
				{Type: TokenCompare, Value: ">="},
				{Type: TokenWord, Value: "2024-01-01T10:00"},
				{Type: TokenEOF},
			},
		},
		{
			name:  "negation and hyphenated word",
			input: "-draft top-secret",
			tokens: []Token{
				{Type: TokenMinus, Value: "-"},
				{Type: TokenWord, Value: "draft"},
				{Type: TokenWord, Value: "top-secret"},
				{Type: TokenEOF},
			},
		},
		{
			name:  "escaped quotes in phrase",
			input: `"say \"hi\""`,
			tokens: []Token{
				{Type: TokenPhrase, Value: `say "hi"`},
				{Type: TokenEOF},
			},
		},
		{
			name:  "range",
			input: "[1 TO *}",
			tokens: []Token{
				{Type: TokenLBracket, Value: "["},
				{Type: TokenWord, Value: "1"},
				{Type: TokenWord, Value: "TO"},
				{Type: TokenWord, Value: "*", Wild: true},
				{Type: TokenRBrace, Value: "}"},
				{Type: TokenEOF},
			},
		},
		{
			name:  "escaped colon",
			input: `a\:b`,
			tokens: []Token{
				{Type: TokenWord, Value: "a:b"},
				{Type: TokenEOF},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLexer(tt.input)
			for i, want := range tt.tokens {
				got := l.NextToken()
				if got.Type != want.Type || got.Value != want.Value || got.Wild != want.Wild {
					t.Fatalf("token %d: expected %v %q (wild=%t), got %v %q (wild=%t)",
						i, want.Type, want.Value, want.Wild, got.Type, got.Value, got.Wild)
				}
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", "*"},
		{"  *  ", "*"},
		{"border", "border"},
		{"border intelligence", "(AND border intelligence)"},
		{"border AND intelligence", "(AND border intelligence)"},
		{"a OR b c", "(OR a (AND b c))"},
		{"maritime or signals", "(OR maritime signals)"},
		{"intelligence not border", "(AND intelligence (NOT border))"},
		{"border and Intelligence", "(AND border Intelligence)"},
		{"page_count:[5 to 20]", "page_count:[5 TO 20]"},
		{`"port security"`, `"port security"`},
		{"highest_classification:SECRET", "highest_classification:SECRET"},
		{"keywords:bord*", "keywords:bord*"},
		{"MGRS:*", "MGRS:*"},
		{"page_count:[5 TO 20]", "page_count:[5 TO 20]"},
		{"page_count:{5 TO *]", "page_count:{5 TO *]"},
		{"processed_time:>=2024-01-03T10:00:00", "processed_time:>=2024-01-03T10:00:00"},
		{"-draft border", "(AND (NOT draft) border)"},
		{"NOT NOT a", "(NOT (NOT a))"},
		{"border AND (ports OR customs)", "(AND border (OR ports customs))"},
		{"keywords:(border customs)", "(AND keywords:border keywords:customs)"},
		{`full_text:"border crossings"`, `full_text:"border crossings"`},
		{`"odd name":x`, `odd name:x`},
		{"top-secret", "top-secret"},
		{"page_count:>5 border", "(AND page_count:>5 border)"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			n, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.input, err)
			}
			if got := n.String(); got != tt.want {
				t.Errorf("Parse(%q): expected %s, got %s", tt.input, tt.want, got)
			}
		})
	}
}

func TestParseEscapedColon(t *testing.T) {
	n, err := Parse(`a\:b`)
	if err != nil {
		t.Fatal(err)
	}
	term, ok := n.(Term)
	if !ok || term.Field != "" || term.Text != "a:b" {
		t.Errorf("expected bare term a:b, got %#v", n)
	}
}

func TestParseErrors(t *testing.T) {
	inputs := []string{
		`"unterminated`,
		"(a b",
		"a)",
		"a OR",
		"OR a",
		"AND a",
		"a AND OR b",
		"NOT",
		"()",
		"f:[1 2]",
		"f:[1 TO 2",
		"f:",
		">5",
		"f:>",
		"bo*d:x",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			if !errors.Is(err, core.ErrInvalidQuery) {
				t.Errorf("Parse(%q): expected invalid query, got %v", in, err)
			}
		})
	}
}

func TestLiteral(t *testing.T) {
	if got := Literal(`title:"x" OR (y`).String(); got != `(AND title:"x" OR (y)` {
		t.Errorf("Literal: got %s", got)
	}
	if _, ok := Literal("   ").(MatchAll); !ok {
		t.Errorf("blank literal should match all")
	}
}
