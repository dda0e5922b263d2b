package classify

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Expressions for operator-defined rules, e.g.
//
//	type == "payout" AND amount < 0
//	source == "stripe" AND NOT (category contains "fee")
//	payload.metadata.kind matches "^stock_"

// Expr is a parsed rule condition.
type Expr interface {
	eval(f Facts) bool
}

type binaryExpr struct {
	and         bool
	left, right Expr
}

func (e *binaryExpr) eval(f Facts) bool {
	if e.and {
		return e.left.eval(f) && e.right.eval(f)
	}
	return e.left.eval(f) || e.right.eval(f)
}

type notExpr struct{ inner Expr }

func (e *notExpr) eval(f Facts) bool { return !e.inner.eval(f) }

type comparison struct {
	field string
	op    string
	lit   interface{} // string, bool or decimal.Decimal
	re    *regexp.Regexp
}

// eval treats a missing field or a type mismatch as a non-match.
func (c *comparison) eval(f Facts) bool {
	v, ok := f.Resolve(c.field)
	if !ok {
		return false
	}
	switch c.op {
	case "contains":
		s, ok := v.(string)
		return ok && strings.Contains(strings.ToLower(s), strings.ToLower(fmt.Sprint(c.lit)))
	case "matches":
		s, ok := v.(string)
		return ok && c.re.MatchString(s)
	}
	if want, ok := c.lit.(decimal.Decimal); ok {
		got, ok := asDecimal(v)
		if !ok {
			return false
		}
		cmp := got.Cmp(want)
		switch c.op {
		case "==":
			return cmp == 0
		case "!=":
			return cmp != 0
		case ">":
			return cmp > 0
		case ">=":
			return cmp >= 0
		case "<":
			return cmp < 0
		case "<=":
			return cmp <= 0
		}
		return false
	}
	eq := strings.EqualFold(fmt.Sprint(v), fmt.Sprint(c.lit))
	switch c.op {
	case "==":
		return eq
	case "!=":
		return !eq
	}
	return false
}

func asDecimal(v interface{}) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case string:
		d, err := decimal.NewFromString(n)
		return d, err == nil
	}
	return decimal.Decimal{}, false
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokOp
	tokString
	tokNumber
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	val  string
	pos  int
}

func tokenize(src string) ([]token, error) {
	var out []token
	for i := 0; i < len(src); {
		ch := src[i]
		switch {
		case unicode.IsSpace(rune(ch)):
			i++
		case ch == '(':
			out = append(out, token{tokLParen, "(", i})
			i++
		case ch == ')':
			out = append(out, token{tokRParen, ")", i})
			i++
		case ch == '=' || ch == '!' || ch == '<' || ch == '>':
			if i+1 < len(src) && src[i+1] == '=' {
				out = append(out, token{tokOp, src[i : i+2], i})
				i += 2
				continue
			}
			if ch == '=' || ch == '!' {
				return nil, fmt.Errorf("unexpected %q at position %d", ch, i)
			}
			out = append(out, token{tokOp, string(ch), i})
			i++
		case ch == '"' || ch == '\'':
			j := i + 1
			var sb strings.Builder
			for j < len(src) && src[j] != ch {
				if src[j] == '\\' && j+1 < len(src) {
					j++
				}
				sb.WriteByte(src[j])
				j++
			}
			if j >= len(src) {
				return nil, fmt.Errorf("unterminated string at position %d", i)
			}
			out = append(out, token{tokString, sb.String(), i})
			i = j + 1
		case unicode.IsDigit(rune(ch)) || (ch == '-' && i+1 < len(src) && unicode.IsDigit(rune(src[i+1]))):
			j := i + 1
			for j < len(src) && (unicode.IsDigit(rune(src[j])) || src[j] == '.') {
				j++
			}
			out = append(out, token{tokNumber, src[i:j], i})
			i = j
		case unicode.IsLetter(rune(ch)) || ch == '_':
			j := i
			for j < len(src) && (unicode.IsLetter(rune(src[j])) || unicode.IsDigit(rune(src[j])) || src[j] == '_' || src[j] == '.') {
				j++
			}
			out = append(out, token{tokWord, src[i:j], i})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", ch, i)
		}
	}
	return append(out, token{tokEOF, "", len(src)}), nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) keyword(kw string) bool {
	t := p.peek()
	return t.kind == tokWord && strings.EqualFold(t.val, kw)
}

// ParseExpr compiles a rule condition.
//
//	or   = and { "OR" and }
//	and  = not { "AND" not }
//	not  = "NOT" not | "(" or ")" | cmp
//	cmp  = field op literal
func ParseExpr(src string) (Expr, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at position %d", t.val, t.pos)
	}
	return e, nil
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.keyword("OR") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.keyword("AND") {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{and: true, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.keyword("NOT") {
		p.next()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &notExpr{inner: inner}, nil
	}
	if p.peek().kind == tokLParen {
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if t := p.next(); t.kind != tokRParen {
			return nil, fmt.Errorf("expected ) at position %d", t.pos)
		}
		return inner, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	field := p.next()
	if field.kind != tokWord {
		return nil, fmt.Errorf("expected field name at position %d, got %q", field.pos, field.val)
	}
	c := &comparison{field: field.val}

	op := p.next()
	switch {
	case op.kind == tokOp:
		c.op = op.val
	case op.kind == tokWord && (strings.EqualFold(op.val, "contains") || strings.EqualFold(op.val, "matches")):
		c.op = strings.ToLower(op.val)
	default:
		return nil, fmt.Errorf("expected operator after %q, got %q", field.val, op.val)
	}

	lit := p.next()
	switch lit.kind {
	case tokString:
		c.lit = lit.val
	case tokNumber:
		d, err := decimal.NewFromString(lit.val)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", lit.val)
		}
		c.lit = d
	case tokWord:
		switch strings.ToLower(lit.val) {
		case "true", "false":
			c.lit = strings.ToLower(lit.val)
		default:
			return nil, fmt.Errorf("expected literal at position %d, got %q", lit.pos, lit.val)
		}
	default:
		return nil, fmt.Errorf("expected literal at position %d", lit.pos)
	}

	switch c.op {
	case "matches":
		s, ok := c.lit.(string)
		if !ok {
			return nil, fmt.Errorf("matches needs a string pattern")
		}
		re, err := regexp.Compile(s)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", s, err)
		}
		c.re = re
	case ">", ">=", "<", "<=":
		if _, ok := c.lit.(decimal.Decimal); !ok {
			return nil, fmt.Errorf("%s needs a numeric literal", c.op)
		}
	}
	return c, nil
}
