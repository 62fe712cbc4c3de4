package calc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{"4+4", 8},
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"7/2", 3.5},
		{"2**10", 1024},
		{"2**3**2", 512},
		{"-2**2", -4},
		{"(-2)**2", 4},
		{"2**-1", 0.5},
		{"--3", 3},
		{"+5 - -5", 10},
		{"1.5e3 / 3", 500},
		{".5 * 4", 2},
		{"10 - 4 - 3", 3},
		{"100 / 10 / 5", 2},
		{" ( ( 1 ) ) ", 1},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Evaluate(tt.expr)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestEvaluateRejectsNonArithmetic(t *testing.T) {
	for _, expr := range []string{
		"",
		"   ",
		"__import__('os').system('ls')",
		"2 +",
		"(1 + 2",
		"1 + 2)",
		"3 4",
		"2 ^ 3",
		"sqrt(4)",
		"1..2",
		"* 3",
		"x + 1",
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := Evaluate(expr)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidExpression)
			var exprErr *ExpressionError
			require.True(t, errors.As(err, &exprErr))
			assert.Equal(t, expr, exprErr.Expr)
		})
	}
}

func TestExpressionErrorPosition(t *testing.T) {
	_, err := Parse("1 + $")
	var exprErr *ExpressionError
	require.ErrorAs(t, err, &exprErr)
	assert.Equal(t, 4, exprErr.Pos)
	assert.Contains(t, err.Error(), `"1 + $"`)
}

func TestDivisionByZero(t *testing.T) {
	_, err := Evaluate("1/0")
	assert.ErrorIs(t, err, ErrDivisionByZero)
	assert.EqualError(t, err, `"1/0": division by zero`)
	_, err = Evaluate("0**-1")
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestNonFiniteResult(t *testing.T) {
	_, err := Evaluate("(-8)**0.5")
	assert.ErrorIs(t, err, ErrInvalidExpression)
	_, err = Evaluate("10**400")
	assert.ErrorIs(t, err, ErrInvalidExpression)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "8", Format(8))
	assert.Equal(t, "-4", Format(-4))
	assert.Equal(t, "3.5", Format(3.5))
	assert.Equal(t, "0.1", Format(0.1))
	assert.Equal(t, "1e+21", Format(1e21))
}
