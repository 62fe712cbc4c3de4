// Package calc evaluates plain arithmetic expressions without executing code.
//
// Supported: integer, decimal and exponent-notation numbers, the binary
// operators + - * / and ** (right-associative, binding tighter than unary
// minus so -2**2 is -4), unary + and -, and parentheses.
package calc

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	ErrInvalidExpression = errors.New("invalid expression")
	ErrDivisionByZero    = errors.New("division by zero")
)

// ExpressionError reports where an expression stopped making sense.
type ExpressionError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("invalid expression %q at position %d: %s", e.Expr, e.Pos, e.Msg)
}

func (e *ExpressionError) Unwrap() error { return ErrInvalidExpression }

// Expr is a parsed expression tree.
type Expr interface {
	Eval() (float64, error)
}

type number float64

func (n number) Eval() (float64, error) { return float64(n), nil }

type unary struct {
	op rune
	x  Expr
}

func (u unary) Eval() (float64, error) {
	v, err := u.x.Eval()
	if err != nil {
		return 0, err
	}
	if u.op == '-' {
		return -v, nil
	}
	return v, nil
}

type binary struct {
	op   string
	l, r Expr
}

func (b binary) Eval() (float64, error) {
	l, err := b.l.Eval()
	if err != nil {
		return 0, err
	}
	r, err := b.r.Eval()
	if err != nil {
		return 0, err
	}
	switch b.op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		if r == 0 {
			return 0, ErrDivisionByZero
		}
		return l / r, nil
	case "**":
		if l == 0 && r < 0 {
			return 0, ErrDivisionByZero
		}
		return math.Pow(l, r), nil
	}
	return 0, fmt.Errorf("%w: unknown operator %q", ErrInvalidExpression, b.op)
}

// Parse checks expr against the grammar without evaluating it.
func Parse(expr string) (Expr, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{src: expr, toks: toks}
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errAt(t, "unexpected "+t.describe())
	}
	return e, nil
}

// Evaluate parses and computes expr.
func Evaluate(expr string) (float64, error) {
	e, err := Parse(expr)
	if err != nil {
		return 0, err
	}
	v, err := e.Eval()
	if errors.Is(err, ErrDivisionByZero) {
		return 0, fmt.Errorf("%q: %w", expr, err)
	}
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ExpressionError{Expr: expr, Pos: 0, Msg: "result is not a finite number"}
	}
	return v, nil
}

// Format renders v without a fractional part when it is integral.
func Format(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e21 {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
