package wlee_test

import (
	"errors"
	"testing"

	"github.com/ashmorer/wlee"
	"github.com/ashmorer/wlee/parser"
)

func TestEval(t *testing.T) {
	env := wlee.MapEnv{"x": x, "y": y, "c": wlee.NewConstantExpr(4)}

	for _, tt := range []struct {
		name string
		s    string
		exp  string
	}{
		{"Constant", `(1 + 2) - 2 * (6 / 3)`, "-1"},
		{"LeftAssociative", `x - y - 1`, "(+ -1 (- x y))"},
		{"FoldBinding", `c * 2 + 1`, "9"},
		{"GreaterThan", `x > y`, "(< y x)"},
		{"GreaterEqual", `x >= c`, "(<= 4 x)"},
		{"Equal", `x = y`, "(= x y)"},
		{"Not", `not (x < y)`, "(not (< x y))"},
		{"And", `x < y and y < c`, "(and (< x y) (< y 4))"},
		{"Or", `x < y or true`, "true"},
		{"ConstantRelation", `c <= 4`, "true"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := parser.ParseExpr(tt.s)
			if err != nil {
				t.Fatal(err)
			}
			v, err := wlee.Eval(expr, env)
			if err != nil {
				t.Fatal(err)
			} else if got := v.String(); got != tt.exp {
				t.Fatalf("got %s, expected %s", got, tt.exp)
			}
		})
	}

	t.Run("ErrUnboundVariable", func(t *testing.T) {
		expr, err := parser.ParseExpr(`x + z`)
		if err != nil {
			t.Fatal(err)
		}

		var e *wlee.UnboundVariableError
		if _, err := wlee.Eval(expr, env); !errors.As(err, &e) {
			t.Fatalf("unexpected error: %#v", err)
		} else if e.Name != "z" {
			t.Fatalf("unexpected name: %s", e.Name)
		} else if got, exp := err.Error(), "1:5: unbound variable: z"; got != exp {
			t.Fatalf("error=%q, expected %q", got, exp)
		} else if !errors.Is(err, wlee.ErrUnboundVariable) {
			t.Fatal("expected ErrUnboundVariable")
		}
	})

	t.Run("ErrSortMismatch", func(t *testing.T) {
		expr, err := parser.ParseExpr(`x + 1 < p`)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := wlee.Eval(expr, wlee.MapEnv{"x": x, "p": p}); !errors.Is(err, wlee.ErrSortMismatch) {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
