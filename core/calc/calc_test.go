package calc

import (
	"errors"
	"testing"
)

func TestEval(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"2+2", "4"},
		{"2 + 3 * 4", "14"},
		{"(2 + 3) * 4", "20"},
		{"0.1 + 0.2", "0.3"},
		{"10 / 4", "2.5"},
		{"-3 + 5", "2"},
		{"-(2 - 5) * 2", "6"},
		{"2 - -2", "4"},
		{"8 / 2 / 2", "2"},
		{"1 - 2 - 3", "-4"},
		{" 42 ", "42"},
	}
	for _, tt := range tests {
		got, err := Eval(tt.expr)
		if err != nil {
			t.Fatalf("Eval(%q): %v", tt.expr, err)
		}
		if Format(got) != tt.want {
			t.Fatalf("Eval(%q) = %s, want %s", tt.expr, Format(got), tt.want)
		}
	}
}

func TestEvalRejects(t *testing.T) {
	for _, expr := range []string{"", "2 + x", "process.exit()", "2 +", "(1 + 2", "1 + 2)", "1..2", "2 ** 3", "()"} {
		if _, err := Eval(expr); !errors.Is(err, ErrInvalidExpression) {
			t.Fatalf("Eval(%q) err = %v, want ErrInvalidExpression", expr, err)
		}
	}
}

func TestEvalDivisionByZero(t *testing.T) {
	if _, err := Eval("1 / (2 - 2)"); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("err = %v", err)
	}
}
