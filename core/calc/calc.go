// Package calc evaluates basic arithmetic expressions with exact decimals.
package calc

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidExpression covers characters outside digits, operators and parentheses.
	ErrInvalidExpression = errors.New("calc: invalid expression")
	// ErrDivisionByZero is returned for x/0.
	ErrDivisionByZero = errors.New("calc: division by zero")

	allowed = regexp.MustCompile(`^[0-9+\-*/(). ]+$`)
)

const maxDepth = 64

// Eval evaluates expr using +, -, *, /, unary sign and parentheses.
func Eval(expr string) (decimal.Decimal, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" || !allowed.MatchString(expr) {
		return decimal.Decimal{}, ErrInvalidExpression
	}
	p := &parser{src: expr}
	v, err := p.expr(0)
	if err != nil {
		return decimal.Decimal{}, err
	}
	p.skipSpaces()
	if p.pos != len(p.src) {
		return decimal.Decimal{}, fmt.Errorf("%w: unexpected %q at %d", ErrInvalidExpression, p.src[p.pos], p.pos)
	}
	return v, nil
}

// Format renders a result without trailing zeros.
func Format(v decimal.Decimal) string {
	return v.String()
}

type parser struct {
	src string
	pos int
}

func (p *parser) skipSpaces() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *parser) peek() byte {
	p.skipSpaces()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) expr(depth int) (decimal.Decimal, error) {
	left, err := p.term(depth)
	if err != nil {
		return left, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.term(depth)
			if err != nil {
				return left, err
			}
			left = left.Add(right)
		case '-':
			p.pos++
			right, err := p.term(depth)
			if err != nil {
				return left, err
			}
			left = left.Sub(right)
		default:
			return left, nil
		}
	}
}

func (p *parser) term(depth int) (decimal.Decimal, error) {
	left, err := p.factor(depth)
	if err != nil {
		return left, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.factor(depth)
			if err != nil {
				return left, err
			}
			left = left.Mul(right)
		case '/':
			p.pos++
			right, err := p.factor(depth)
			if err != nil {
				return left, err
			}
			if right.IsZero() {
				return left, ErrDivisionByZero
			}
			left = left.Div(right)
		default:
			return left, nil
		}
	}
}

func (p *parser) factor(depth int) (decimal.Decimal, error) {
	if depth > maxDepth {
		return decimal.Decimal{}, fmt.Errorf("%w: nested too deeply", ErrInvalidExpression)
	}
	switch c := p.peek(); {
	case c == '+':
		p.pos++
		return p.factor(depth + 1)
	case c == '-':
		p.pos++
		v, err := p.factor(depth + 1)
		return v.Neg(), err
	case c == '(':
		p.pos++
		v, err := p.expr(depth + 1)
		if err != nil {
			return v, err
		}
		if p.peek() != ')' {
			return v, fmt.Errorf("%w: missing ')'", ErrInvalidExpression)
		}
		p.pos++
		return v, nil
	case c >= '0' && c <= '9' || c == '.':
		return p.number()
	case c == 0:
		return decimal.Decimal{}, fmt.Errorf("%w: unexpected end", ErrInvalidExpression)
	default:
		return decimal.Decimal{}, fmt.Errorf("%w: unexpected %q at %d", ErrInvalidExpression, c, p.pos)
	}
}

func (p *parser) number() (decimal.Decimal, error) {
	start := p.pos
	for p.pos < len(p.src) && (p.src[p.pos] >= '0' && p.src[p.pos] <= '9' || p.src[p.pos] == '.') {
		p.pos++
	}
	v, err := decimal.NewFromString(p.src[start:p.pos])
	if err != nil {
		return v, fmt.Errorf("%w: bad number %q", ErrInvalidExpression, p.src[start:p.pos])
	}
	return v, nil
}
