package index

import "strings"

// QuoteToken returns tok as an FTS5 string, doubling embedded quotes. Quoted
// strings carry no query syntax, so any user text is safe inside them.
func QuoteToken(tok string) string {
	return `"` + strings.ReplaceAll(tok, `"`, `""`) + `"`
}

// Prefix matches any token starting with tok.
func Prefix(tok string) string {
	return QuoteToken(tok) + " *"
}

// Phrase matches the words of text in order.
func Phrase(text string) string {
	return QuoteToken(text)
}

// Column restricts expr to one indexed column.
func Column(col, expr string) string {
	return QuoteToken(col) + " : " + expr
}

// Terms ANDs a prefix query for every whitespace separated word of text. It
// returns "" when text holds no words.
func Terms(text string) string {
	words := strings.Fields(text)
	parts := make([]string, 0, len(words))
	for _, w := range words {
		parts = append(parts, Prefix(w))
	}
	return strings.Join(parts, " AND ")
}
