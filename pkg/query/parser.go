package query

import (
	"strings"

	"github.com/rubiojr/scout/pkg/core"
)

// Parser parses query strings into predicate trees.
type Parser struct {
	lexer *Lexer
	curr  Token
	peek  Token

	// field applies to unscoped clauses inside field:( ... ) groups.
	field string
}

// Parse parses input. Empty input and a lone * match everything.
func Parse(input string) (Node, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" || trimmed == "*" {
		return MatchAll{}, nil
	}

	p := &Parser{lexer: NewLexer(trimmed)}
	p.advance()
	p.advance()

	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.curr.Type != TokenEOF {
		return nil, p.errorf("unexpected %s at position %d", describe(p.curr), p.curr.Pos)
	}
	return n, nil
}

func (p *Parser) advance() {
	p.curr = p.peek
	p.peek = p.lexer.NextToken()
}

func (p *Parser) errorf(format string, args ...any) error {
	return core.InvalidQuery("parse", format, args...)
}

// isKeyword matches AND, OR, NOT and TO in any case.
func (p *Parser) isKeyword(kw string) bool {
	return p.curr.Type == TokenWord && !p.curr.Wild && strings.EqualFold(p.curr.Value, kw)
}

// parseOr parses OR expressions (lowest precedence).
func (p *Parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []Node{left}
	for p.isKeyword("OR") {
		pos := p.curr.Pos
		p.advance()
		if p.atClauseEnd() {
			return nil, p.errorf("expected a term after OR at position %d", pos)
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return left, nil
	}
	return Or{Children: children}, nil
}

// parseAnd parses explicit and implicit AND expressions.
func (p *Parser) parseAnd() (Node, error) {
	var children []Node
	for !p.atClauseEnd() && !p.isKeyword("OR") {
		if p.isKeyword("AND") {
			if len(children) == 0 {
				return nil, p.errorf("AND without a left operand at position %d", p.curr.Pos)
			}
			pos := p.curr.Pos
			p.advance()
			if p.atClauseEnd() || p.isKeyword("OR") || p.isKeyword("AND") {
				return nil, p.errorf("expected a term after AND at position %d", pos)
			}
			continue
		}
		n, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		children = append(children, n)
	}
	switch len(children) {
	case 0:
		if p.isKeyword("OR") {
			return nil, p.errorf("OR without a left operand at position %d", p.curr.Pos)
		}
		if p.curr.Type == TokenRParen {
			return nil, p.errorf("empty group at position %d", p.curr.Pos)
		}
		return nil, p.errorf("expected a term, got %s", describe(p.curr))
	case 1:
		return children[0], nil
	}
	return And{Children: children}, nil
}

func (p *Parser) atClauseEnd() bool {
	return p.curr.Type == TokenEOF || p.curr.Type == TokenRParen
}

func (p *Parser) parseUnary() (Node, error) {
	if p.isKeyword("NOT") || p.curr.Type == TokenMinus {
		op := p.curr
		p.advance()
		if p.atClauseEnd() || p.isKeyword("OR") || p.isKeyword("AND") {
			return nil, p.errorf("expected a term after %s at position %d", op.Value, op.Pos)
		}
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Not{Child: child}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Node, error) {
	switch p.curr.Type {
	case TokenLParen:
		return p.parseGroup()
	case TokenWord, TokenPhrase:
		if p.peek.Type == TokenColon {
			field := p.curr.Value
			if p.curr.Type == TokenWord && (p.curr.Wild || field == "") {
				return nil, p.errorf("invalid field name %q at position %d", field, p.curr.Pos)
			}
			p.advance() // field
			p.advance() // colon
			return p.parseValue(field)
		}
		return p.parseValue(p.field)
	case TokenError:
		return nil, p.errorf("%s at position %d", p.curr.Value, p.curr.Pos)
	default:
		return nil, p.errorf("unexpected %s at position %d", describe(p.curr), p.curr.Pos)
	}
}

func (p *Parser) parseGroup() (Node, error) {
	open := p.curr.Pos
	p.advance()
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.curr.Type != TokenRParen {
		return nil, p.errorf("unbalanced parenthesis opened at position %d", open)
	}
	p.advance()
	return n, nil
}

// parseValue parses the value of a clause scoped to field ("" for none).
func (p *Parser) parseValue(field string) (Node, error) {
	tok := p.curr
	switch tok.Type {
	case TokenWord:
		p.advance()
		switch {
		case tok.Value == "*":
			if field == "" {
				return MatchAll{}, nil
			}
			return Exists{Field: field}, nil
		case tok.Wild:
			return Wildcard{Field: field, Pattern: tok.Value}, nil
		}
		return Term{Field: field, Text: tok.Value}, nil
	case TokenPhrase:
		p.advance()
		return Phrase{Field: field, Text: tok.Value}, nil
	case TokenLBracket, TokenLBrace:
		if field == "" {
			return nil, p.errorf("range at position %d needs a field", tok.Pos)
		}
		return p.parseRange(field)
	case TokenCompare:
		if field == "" {
			return nil, p.errorf("comparison at position %d needs a field", tok.Pos)
		}
		p.advance()
		value, ok := p.bound()
		if !ok || value == "" {
			return nil, p.errorf("expected a value after %s at position %d", tok.Value, tok.Pos)
		}
		return Compare{Field: field, Op: tok.Value, Value: value}, nil
	case TokenLParen:
		if field == "" {
			return p.parseGroup()
		}
		outer := p.field
		p.field = field
		n, err := p.parseGroup()
		p.field = outer
		return n, err
	case TokenError:
		return nil, p.errorf("%s at position %d", tok.Value, tok.Pos)
	default:
		return nil, p.errorf("expected a value for field %q, got %s", field, describe(tok))
	}
}

func (p *Parser) parseRange(field string) (Node, error) {
	open := p.curr
	p.advance()

	r := Range{Field: field, MinInclusive: open.Type == TokenLBracket}
	var ok bool
	if r.Min, ok = p.bound(); !ok {
		return nil, p.errorf("malformed range at position %d: expected lower bound", open.Pos)
	}
	if !p.isKeyword("TO") {
		return nil, p.errorf("malformed range at position %d: expected TO", open.Pos)
	}
	p.advance()
	if r.Max, ok = p.bound(); !ok {
		return nil, p.errorf("malformed range at position %d: expected upper bound", open.Pos)
	}

	switch p.curr.Type {
	case TokenRBracket:
		r.MaxInclusive = true
	case TokenRBrace:
		r.MaxInclusive = false
	default:
		return nil, p.errorf("malformed range at position %d: expected ] or }", open.Pos)
	}
	p.advance()
	return r, nil
}

// bound consumes one range or comparison bound. * yields "" (open).
func (p *Parser) bound() (string, bool) {
	switch p.curr.Type {
	case TokenWord:
		tok := p.curr
		p.advance()
		switch {
		case tok.Value == "*":
			return "", true
		case tok.Wild:
			return unescape(tok.Value), true
		}
		return tok.Value, true
	case TokenPhrase:
		v := p.curr.Value
		p.advance()
		return v, true
	}
	return "", false
}

func describe(t Token) string {
	switch t.Type {
	case TokenWord, TokenPhrase:
		return t.Type.String() + " " + quote(t.Value)
	case TokenError:
		return t.Value
	}
	return t.Type.String()
}

func quote(s string) string {
	return `"` + s + `"`
}
