package z3_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/ashmorer/wlee"
	"github.com/ashmorer/wlee/z3"
)

func TestSolverContext_Check(t *testing.T) {
	t.Run("Constant", func(t *testing.T) {
		t.Run("True", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			sc := MustNewContext(s)
			if err := sc.Assert(wlee.NewBoolConstantExpr(true)); err != nil {
				t.Fatal(err)
			} else if satisfiable, err := sc.Check(); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
		t.Run("False", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			sc := MustNewContext(s)
			if err := sc.Assert(wlee.NewBoolConstantExpr(false)); err != nil {
				t.Fatal(err)
			} else if satisfiable, err := sc.Check(); err != nil {
				t.Fatal(err)
			} else if satisfiable {
				t.Fatal("expected unsatisfiable")
			}
		})
	})

	t.Run("Arithmetic", func(t *testing.T) {
		s := z3.NewSolver()
		defer MustCloseSolver(s)
		sc := MustNewContext(s)

		x, y := wlee.NewVarExpr("x", wlee.SortInt), wlee.NewVarExpr("y", wlee.SortInt)
		if err := sc.Assert(
			&wlee.BinaryExpr{Op: wlee.EQ, LHS: &wlee.BinaryExpr{Op: wlee.ADD, LHS: x, RHS: y}, RHS: wlee.NewConstantExpr(10)},
			&wlee.BinaryExpr{Op: wlee.EQ, LHS: &wlee.BinaryExpr{Op: wlee.SUB, LHS: x, RHS: y}, RHS: wlee.NewConstantExpr(4)},
		); err != nil {
			t.Fatal(err)
		} else if satisfiable, err := sc.Check(); err != nil {
			t.Fatal(err)
		} else if !satisfiable {
			t.Fatal("expected satisfiable")
		}

		model, err := sc.Model()
		if err != nil {
			t.Fatal(err)
		}
		if v, err := model.Eval(x); err != nil {
			t.Fatal(err)
		} else if got, exp := v.Value, int64(7); got != exp {
			t.Fatalf("x=%d, expected %d", got, exp)
		}
		if v, err := model.Eval(y); err != nil {
			t.Fatal(err)
		} else if got, exp := v.Value, int64(3); got != exp {
			t.Fatalf("y=%d, expected %d", got, exp)
		}
	})

	// Integer division rounds so that the remainder is never negative.
	t.Run("Div", func(t *testing.T) {
		s := z3.NewSolver()
		defer MustCloseSolver(s)
		sc := MustNewContext(s)

		x := wlee.NewVarExpr("x", wlee.SortInt)
		if err := sc.Assert(
			&wlee.BinaryExpr{Op: wlee.EQ, LHS: x, RHS: &wlee.BinaryExpr{Op: wlee.DIV, LHS: wlee.NewConstantExpr(-7), RHS: wlee.NewConstantExpr(2)}},
		); err != nil {
			t.Fatal(err)
		} else if satisfiable, err := sc.Check(); err != nil {
			t.Fatal(err)
		} else if !satisfiable {
			t.Fatal("expected satisfiable")
		}

		exp, err := wlee.NewConstantExpr(-7).Div(wlee.NewConstantExpr(2))
		if err != nil {
			t.Fatal(err)
		}
		if v, err := MustModel(sc).Eval(x); err != nil {
			t.Fatal(err)
		} else if v.Value != exp.Value {
			t.Fatalf("x=%d, expected %d", v.Value, exp.Value)
		}
	})

	t.Run("Compare", func(t *testing.T) {
		s := z3.NewSolver()
		defer MustCloseSolver(s)
		sc := MustNewContext(s)

		x := wlee.NewVarExpr("x", wlee.SortInt)
		if err := sc.Assert(
			&wlee.BinaryExpr{Op: wlee.LT, LHS: wlee.NewConstantExpr(5), RHS: x},
			&wlee.BinaryExpr{Op: wlee.LE, LHS: x, RHS: wlee.NewConstantExpr(5)},
		); err != nil {
			t.Fatal(err)
		} else if satisfiable, err := sc.Check(); err != nil {
			t.Fatal(err)
		} else if satisfiable {
			t.Fatal("expected unsatisfiable")
		}
	})

	t.Run("Bool", func(t *testing.T) {
		s := z3.NewSolver()
		defer MustCloseSolver(s)
		sc := MustNewContext(s)

		p, q := wlee.NewVarExpr("p", wlee.SortBool), wlee.NewVarExpr("q", wlee.SortBool)
		if err := sc.Assert(
			&wlee.BinaryExpr{Op: wlee.OR, LHS: p, RHS: q},
			&wlee.NotExpr{Expr: p},
		); err != nil {
			t.Fatal(err)
		} else if satisfiable, err := sc.Check(); err != nil {
			t.Fatal(err)
		} else if !satisfiable {
			t.Fatal("expected satisfiable")
		}

		if v, err := MustModel(sc).Eval(q); err != nil {
			t.Fatal(err)
		} else if !v.IsTrue() {
			t.Fatalf("q=%s, expected true", v)
		}
	})
}

func TestSolverContext_PushPop(t *testing.T) {
	s := z3.NewSolver()
	defer MustCloseSolver(s)
	sc := MustNewContext(s)

	x := wlee.NewVarExpr("x", wlee.SortInt)
	if err := sc.Assert(&wlee.BinaryExpr{Op: wlee.LT, LHS: x, RHS: wlee.NewConstantExpr(0)}); err != nil {
		t.Fatal(err)
	}

	if err := sc.Push(); err != nil {
		t.Fatal(err)
	} else if err := sc.Assert(&wlee.BinaryExpr{Op: wlee.LT, LHS: wlee.NewConstantExpr(0), RHS: x}); err != nil {
		t.Fatal(err)
	} else if satisfiable, err := sc.Check(); err != nil {
		t.Fatal(err)
	} else if satisfiable {
		t.Fatal("expected unsatisfiable inside scope")
	}

	if err := sc.Pop(); err != nil {
		t.Fatal(err)
	} else if satisfiable, err := sc.Check(); err != nil {
		t.Fatal(err)
	} else if !satisfiable {
		t.Fatal("expected satisfiable after pop")
	}

	if got, exp := s.Stats().SolveN, 2; got != exp {
		t.Fatalf("SolveN=%d, expected %d", got, exp)
	}
}

func TestSolverContext_SMTLIB2(t *testing.T) {
	s := z3.NewSolver()
	defer MustCloseSolver(s)

	src := MustNewContext(s)
	x := wlee.NewVarExpr("x!1", wlee.SortInt)
	if err := src.Assert(
		&wlee.BinaryExpr{Op: wlee.LT, LHS: wlee.NewConstantExpr(3), RHS: x},
		&wlee.BinaryExpr{Op: wlee.LT, LHS: x, RHS: wlee.NewConstantExpr(5)},
	); err != nil {
		t.Fatal(err)
	}

	// A checked context carries solver state that must not leak into the script.
	if satisfiable, err := src.Check(); err != nil {
		t.Fatal(err)
	} else if !satisfiable {
		t.Fatal("expected satisfiable")
	}

	text, err := src.SMTLIB2()
	if err != nil {
		t.Fatal(err)
	} else if !strings.Contains(text, "(declare-fun ") || !strings.Contains(text, "x!1") {
		t.Fatalf("missing declaration:\n%s", text)
	} else if got, exp := strings.Count(text, "(assert"), 2; got != exp {
		t.Fatalf("asserts=%d, expected %d:\n%s", got, exp, text)
	} else if !strings.Contains(text, "(check-sat)") {
		t.Fatalf("missing check-sat:\n%s", text)
	} else if strings.Contains(text, "model-") {
		t.Fatalf("unexpected solver commands:\n%s", text)
	}

	// Re-asserting the script in an empty context yields the same solutions.
	dst := MustNewContext(s)
	if err := dst.AssertSMTLIB2(text); err != nil {
		t.Fatal(err)
	} else if satisfiable, err := dst.Check(); err != nil {
		t.Fatal(err)
	} else if !satisfiable {
		t.Fatal("expected satisfiable")
	} else if v, err := MustModel(dst).Eval(x); err != nil {
		t.Fatal(err)
	} else if got, exp := v.Value, int64(4); got != exp {
		t.Fatalf("x=%d, expected %d", got, exp)
	}
}

func TestSolverContext_AssertSMTLIB2_Error(t *testing.T) {
	s := z3.NewSolver()
	defer MustCloseSolver(s)

	var e *z3.Error
	if err := MustNewContext(s).AssertSMTLIB2(`(assert (< x`); !errors.As(err, &e) {
		t.Fatalf("unexpected error: %#v", err)
	} else if e.Code != z3.ErrorCodeParserError {
		t.Fatalf("unexpected code: %d", e.Code)
	}
}

func TestSolverContext_SMTLIB2_Empty(t *testing.T) {
	s := z3.NewSolver()
	defer MustCloseSolver(s)

	text, err := MustNewContext(s).SMTLIB2()
	if err != nil {
		t.Fatal(err)
	}

	dst := MustNewContext(s)
	if err := dst.AssertSMTLIB2(text); err != nil {
		t.Fatal(err)
	} else if satisfiable, err := dst.Check(); err != nil {
		t.Fatal(err)
	} else if !satisfiable {
		t.Fatalf("expected satisfiable:\n%s", text)
	}
}

func TestModel_Close(t *testing.T) {
	s := z3.NewSolver()
	defer MustCloseSolver(s)
	sc := MustNewContext(s)

	if _, err := sc.Check(); err != nil {
		t.Fatal(err)
	}
	m := MustModel(sc)
	if err := m.Close(); err != nil {
		t.Fatal(err)
	} else if err := m.Close(); err != nil {
		t.Fatal(err)
	} else if _, err := m.Eval(wlee.NewConstantExpr(1)); !errors.Is(err, z3.ErrModelClosed) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestModel_Eval_Unconstrained(t *testing.T) {
	s := z3.NewSolver()
	defer MustCloseSolver(s)
	sc := MustNewContext(s)

	if satisfiable, err := sc.Check(); err != nil {
		t.Fatal(err)
	} else if !satisfiable {
		t.Fatal("expected satisfiable")
	}

	// Model completion assigns a default.
	if v, err := MustModel(sc).Eval(wlee.NewVarExpr("unused", wlee.SortInt)); err != nil {
		t.Fatal(err)
	} else if got, exp := v.Value, int64(0); got != exp {
		t.Fatalf("value=%d, expected %d", got, exp)
	}
}

func MustCloseSolver(s *z3.Solver) {
	if err := s.Close(); err != nil {
		panic(err)
	}
}

func MustNewContext(s *z3.Solver) wlee.SolverContext {
	sc, err := s.NewContext()
	if err != nil {
		panic(err)
	}
	return sc
}

func MustModel(sc wlee.SolverContext) wlee.Model {
	m, err := sc.Model()
	if err != nil {
		panic(err)
	}
	return m
}
