package query

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenType represents the type of a lexer token.
type TokenType int

const (
	TokenEOF      TokenType = iota
	TokenWord               // bare word, keyword or wildcard pattern
	TokenPhrase             // "quoted text"
	TokenColon              // :
	TokenLParen             // (
	TokenRParen             // )
	TokenLBracket           // [
	TokenRBracket           // ]
	TokenLBrace             // {
	TokenRBrace             // }
	TokenCompare            // > >= < <=
	TokenMinus              // leading -
	TokenError              // error token
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "end of query"
	case TokenWord:
		return "word"
	case TokenPhrase:
		return "phrase"
	case TokenColon:
		return "':'"
	case TokenLParen:
		return "'('"
	case TokenRParen:
		return "')'"
	case TokenLBracket:
		return "'['"
	case TokenRBracket:
		return "']'"
	case TokenLBrace:
		return "'{'"
	case TokenRBrace:
		return "'}'"
	case TokenCompare:
		return "comparison"
	case TokenMinus:
		return "'-'"
	default:
		return "error"
	}
}

// Token represents a lexer token.
type Token struct {
	Type  TokenType
	Value string
	Pos   int
	// Wild is set on words holding an unescaped * or ?. Their Value keeps
	// backslash escapes so the pattern can still tell them apart.
	Wild bool
}

// Lexer tokenizes a query string.
type Lexer struct {
	input string
	pos   int

	// colons are part of words right after a field separator and inside
	// ranges, so timestamps need no quoting.
	afterColon bool
	inRange    bool
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()
	valueMode := l.afterColon || l.inRange
	l.afterColon = false

	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.pos}
	}

	start := l.pos
	ch := l.input[l.pos]

	switch ch {
	case ':':
		l.pos++
		l.afterColon = true
		return Token{Type: TokenColon, Value: ":", Pos: start}
	case '(':
		l.pos++
		return Token{Type: TokenLParen, Value: "(", Pos: start}
	case ')':
		l.pos++
		return Token{Type: TokenRParen, Value: ")", Pos: start}
	case '[':
		l.pos++
		l.inRange = true
		return Token{Type: TokenLBracket, Value: "[", Pos: start}
	case ']':
		l.pos++
		l.inRange = false
		return Token{Type: TokenRBracket, Value: "]", Pos: start}
	case '{':
		l.pos++
		l.inRange = true
		return Token{Type: TokenLBrace, Value: "{", Pos: start}
	case '}':
		l.pos++
		l.inRange = false
		return Token{Type: TokenRBrace, Value: "}", Pos: start}
	case '"':
		return l.scanPhrase()
	case '>', '<':
		l.pos++
		if l.pos < len(l.input) && l.input[l.pos] == '=' {
			l.pos++
		}
		// The bound follows directly, as in page_count:>=10.
		l.afterColon = true
		return Token{Type: TokenCompare, Value: l.input[start:l.pos], Pos: start}
	case '-':
		if !valueMode && l.pos+1 < len(l.input) && !isSpace(l.input[l.pos+1]) {
			l.pos++
			return Token{Type: TokenMinus, Value: "-", Pos: start}
		}
	}
	return l.scanWord(valueMode)
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		l.pos += size
	}
}

func (l *Lexer) scanPhrase() Token {
	start := l.pos
	l.pos++ // opening quote
	var b strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case ch == '\\' && l.pos+1 < len(l.input):
			b.WriteByte(l.input[l.pos+1])
			l.pos += 2
		case ch == '"':
			l.pos++
			return Token{Type: TokenPhrase, Value: b.String(), Pos: start}
		default:
			b.WriteByte(ch)
			l.pos++
		}
	}
	return Token{Type: TokenError, Value: "unterminated quoted phrase", Pos: start}
}

func (l *Lexer) scanWord(valueMode bool) Token {
	start := l.pos
	var b strings.Builder
	raw := false
	wild := false
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '\\' && l.pos+1 < len(l.input) {
			b.WriteByte(ch)
			b.WriteByte(l.input[l.pos+1])
			raw = true
			l.pos += 2
			continue
		}
		if isSpace(ch) || isDelimiter(ch) {
			break
		}
		if ch == ':' && !valueMode {
			break
		}
		if ch == '*' || ch == '?' {
			wild = true
		}
		b.WriteByte(ch)
		l.pos++
	}
	value := b.String()
	if raw && !wild {
		value = unescape(value)
	}
	return Token{Type: TokenWord, Value: value, Pos: start, Wild: wild}
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isDelimiter(ch byte) bool {
	switch ch {
	case '(', ')', '[', ']', '{', '}', '"':
		return true
	}
	return false
}

func unescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
