package wlee_test

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/ashmorer/wlee"
	"github.com/ashmorer/wlee/ast"
	"github.com/ashmorer/wlee/parser"
	"github.com/ashmorer/wlee/z3"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/tools/txtar"
)

func TestMain(m *testing.M) {
	flag.Parse()
	if !testing.Verbose() {
		log.SetOutput(io.Discard)
	}
	os.Exit(m.Run())
}

// NewExecutor returns a new instance of Executor with a Z3 solver.
func NewExecutor() *Executor {
	e := &Executor{
		Solver: z3.NewSolver(),
	}
	e.Executor = wlee.NewExecutor(e.Solver)
	return e
}

// Executor is a test wrapper for wlee.Executor.
type Executor struct {
	*wlee.Executor
	Solver *z3.Solver
}

func (e *Executor) Close() error {
	return e.Solver.Close()
}

// Run parses & executes a program from a fresh root state.
func (e *Executor) Run(tb testing.TB, s string) ([]*wlee.ExecutionState, error) {
	tb.Helper()
	state, err := e.NewState()
	if err != nil {
		tb.Fatal(err)
	}
	return e.Executor.Run(parser.MustParseString(s), state)
}

// MustRun executes a program. Fatal on error.
func (e *Executor) MustRun(tb testing.TB, s string) []*wlee.ExecutionState {
	tb.Helper()
	states, err := e.Run(tb, s)
	if err != nil {
		tb.Fatal(err)
	}
	return states
}

// Summarize returns the number of states & the number of states per status.
func Summarize(states []*wlee.ExecutionState) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "states: %d\n", len(states))
	for _, status := range []wlee.ExecutionStatus{
		wlee.ExecutionStatusRunning,
		wlee.ExecutionStatusInfeasible,
		wlee.ExecutionStatusBounded,
		wlee.ExecutionStatusFailed,
	} {
		var n int
		for _, state := range states {
			if state.Status() == status {
				n++
			}
		}
		if n > 0 {
			fmt.Fprintf(&buf, "%s: %d\n", status, n)
		}
	}
	return buf.String()
}

// TestExecutor_Run_Testdata executes every archive under testdata/exec. An
// archive holds an input.wl program with optional options, output, error &
// stdout sections.
func TestExecutor_Run_Testdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/exec/*.txtar")
	if err != nil {
		t.Fatal(err)
	} else if len(paths) == 0 {
		t.Fatal("no archives")
	}

	for _, path := range paths {
		path := path
		t.Run(strings.TrimSuffix(filepath.Base(path), ".txtar"), func(t *testing.T) {
			ar, err := txtar.ParseFile(path)
			if err != nil {
				t.Fatal(err)
			}
			files := make(map[string]string)
			for _, f := range ar.Files {
				files[f.Name] = string(f.Data)
			}

			e := NewExecutor()
			defer e.Close()

			var stdout bytes.Buffer
			e.Stdout = &stdout
			for _, opt := range strings.Fields(files["options"]) {
				switch name, value, _ := strings.Cut(opt, "="); name {
				case "keep-going":
					e.KeepGoing = true
				case "strict":
					e.Strict = true
				case "check-div":
					e.CheckDivision = true
				case "max-unroll":
					if e.MaxLoopUnroll, err = strconv.Atoi(value); err != nil {
						t.Fatal(err)
					}
				default:
					t.Fatalf("unknown option: %q", opt)
				}
			}

			prog, err := parser.ParseString(files["input.wl"])
			if err != nil {
				t.Fatal(err)
			}
			state, err := e.NewState()
			if err != nil {
				t.Fatal(err)
			}

			states, err := e.Executor.Run(prog, state)
			if exp, ok := files["error"]; ok {
				if err == nil {
					t.Fatal("expected error")
				} else if got, exp := err.Error(), strings.TrimSpace(exp); got != exp {
					t.Fatalf("error=%q, expected %q", got, exp)
				}
			} else if err != nil {
				t.Fatal(err)
			}

			if exp, ok := files["output"]; ok {
				if diff := cmp.Diff(Summarize(states), exp); diff != "" {
					t.Fatalf("unexpected output:\n%s", diff)
				}
			}
			if exp, ok := files["stdout"]; ok {
				if diff := cmp.Diff(stdout.String(), exp); diff != "" {
					t.Fatalf("unexpected stdout:\n%s", diff)
				}
			}
		})
	}
}

func TestExecutor_Run(t *testing.T) {
	t.Run("Assign", func(t *testing.T) {
		e := NewExecutor()
		defer e.Close()

		states := e.MustRun(t, `havoc x; y := x + 1; x := 5`)
		if len(states) != 1 {
			t.Fatalf("unexpected state count: %d", len(states))
		}

		x, _ := states[0].Lookup("x")
		if diff := cmp.Diff(x, wlee.Expr(wlee.NewConstantExpr(5))); diff != "" {
			t.Fatal(diff)
		}
		y, _ := states[0].Lookup("y")
		if got, exp := y.String(), "(+ 1 x!1)"; got != exp {
			t.Fatalf("y=%s, expected %s", got, exp)
		}
	})

	// Every introduction of a variable gets a distinct symbolic name, even
	// on unrelated branches.
	t.Run("FreshNames", func(t *testing.T) {
		e := NewExecutor()
		defer e.Close()

		states := e.MustRun(t, `if a > 0 then havoc x else havoc x; havoc x`)
		var names []string
		for _, state := range states {
			if state.IsError() {
				continue
			}
			x, _ := state.Lookup("x")
			names = append(names, x.String())
		}
		if diff := cmp.Diff(names, []string{"x!4", "x!5"}); diff != "" {
			t.Fatal(diff)
		}
	})

	// Independent executors never share the name counter.
	t.Run("FreshNamesPerExecutor", func(t *testing.T) {
		e0, e1 := NewExecutor(), NewExecutor()
		defer e0.Close()
		defer e1.Close()

		s0, s1 := e0.MustRun(t, `havoc x`), e1.MustRun(t, `havoc x`)
		x0, _ := s0[0].Lookup("x")
		x1, _ := s1[0].Lookup("x")
		if x0.String() != "x!1" || x1.String() != "x!1" {
			t.Fatalf("unexpected names: %s, %s", x0, x1)
		}
	})

	t.Run("PathCondition", func(t *testing.T) {
		e := NewExecutor()
		defer e.Close()

		states := e.MustRun(t, `havoc x; if x > 3 and x < 7 then y := 1 else y := 2`)
		if got, exp := len(states), 2; got != exp {
			t.Fatalf("len=%d, expected %d", got, exp)
		}

		var pc []string
		for _, expr := range states[0].Constraints() {
			pc = append(pc, expr.String())
		}
		if diff := cmp.Diff(pc, []string{"(< 3 x!1)", "(< x!1 7)"}); diff != "" {
			t.Fatal(diff)
		}
	})

	// A constant-true condition adds nothing to the then path.
	t.Run("ConstantCondition", func(t *testing.T) {
		e := NewExecutor()
		defer e.Close()

		states := e.MustRun(t, `havoc x; if true then skip`)
		if got, exp := len(states), 2; got != exp {
			t.Fatalf("len=%d, expected %d", got, exp)
		} else if got := states[0].Constraints(); len(got) != 0 {
			t.Fatalf("unexpected constraints: %v", got)
		} else if got, exp := states[1].Status(), wlee.ExecutionStatusInfeasible; got != exp {
			t.Fatalf("status=%s, expected %s", got, exp)
		}
	})

	t.Run("AssertionError", func(t *testing.T) {
		e := NewExecutor()
		defer e.Close()

		states, err := e.Run(t, `havoc x, y; assume x > y; assert x > y + 1`)
		var ae *wlee.AssertionError
		if !errors.As(err, &ae) {
			t.Fatalf("unexpected error: %#v", err)
		} else if got, exp := ae.Kind, wlee.ViolationAssertion; got != exp {
			t.Fatalf("kind=%s, expected %s", got, exp)
		} else if len(states) != 1 || states[0] != ae.State {
			t.Fatalf("expected only the violating state")
		} else if states[0].Violation() != ae {
			t.Fatal("expected violation on state")
		} else if got, exp := states[0].Status(), wlee.ExecutionStatusFailed; got != exp {
			t.Fatalf("status=%s, expected %s", got, exp)
		}

		// The only counterexamples have x = y + 1.
		cs := ae.Counterexample
		if cs == nil {
			t.Fatal("expected counterexample")
		} else if x, y := cs.Env["x"].Value, cs.Env["y"].Value; x != y+1 {
			t.Fatalf("unexpected counterexample: x=%d, y=%d", x, y)
		} else if diff := cmp.Diff(cs.InputNames(), []string{"x!1", "y!2"}); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("UnboundVariable", func(t *testing.T) {
		e := NewExecutor()
		defer e.Close()
		e.Strict = true

		if _, err := e.Run(t, `havoc x; assume x > 0; if y > x then skip`); !errors.Is(err, wlee.ErrUnboundVariable) {
			t.Fatalf("unexpected error: %v", err)
		}

		// Assigned & havocked variables are bound.
		if states := e.MustRun(t, `havoc x; y := x; assert x = y`); len(states) != 1 {
			t.Fatalf("unexpected state count: %d", len(states))
		}
	})

	t.Run("BoundedReason", func(t *testing.T) {
		e := NewExecutor()
		defer e.Close()
		e.MaxLoopUnroll = 1

		states := e.MustRun(t, `while true do skip`)
		if got, exp := len(states), 2; got != exp {
			t.Fatalf("len=%d, expected %d", got, exp)
		} else if got, exp := states[0].Status(), wlee.ExecutionStatusBounded; got != exp {
			t.Fatalf("status=%s, expected %s", got, exp)
		} else if got, exp := states[0].Reason(), "loop at 1:1 unrolled 1 times"; got != exp {
			t.Fatalf("reason=%q, expected %q", got, exp)
		} else if got, exp := states[1].Status(), wlee.ExecutionStatusInfeasible; got != exp {
			t.Fatalf("status=%s, expected %s", got, exp)
		}
	})

	t.Run("DefaultMaxLoopUnroll", func(t *testing.T) {
		e := NewExecutor()
		defer e.Close()
		e.MaxLoopUnroll = 0

		states := e.MustRun(t, `while true do skip`)
		if got, exp := e.MaxLoopUnroll, 0; got != exp {
			t.Fatalf("MaxLoopUnroll=%d, expected %d", got, exp)
		} else if got, exp := states[0].Reason(), "loop at 1:1 unrolled 10 times"; got != exp {
			t.Fatalf("reason=%q, expected %q", got, exp)
		}
	})

	// Closing the violating state releases the counterexample model.
	t.Run("ViolationModelClosed", func(t *testing.T) {
		e := NewExecutor()
		defer e.Close()

		states, err := e.Run(t, `havoc x; assert x > 0`)
		var ae *wlee.AssertionError
		if !errors.As(err, &ae) {
			t.Fatalf("unexpected error: %v", err)
		} else if _, err := ae.Model.Eval(wlee.NewVarExpr("x!1", wlee.SortInt)); err != nil {
			t.Fatal(err)
		}

		if err := states[0].Close(); err != nil {
			t.Fatal(err)
		} else if _, err := ae.Model.Eval(wlee.NewVarExpr("x!1", wlee.SortInt)); !errors.Is(err, z3.ErrModelClosed) {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	// Counters are per loop & per path. Leaving a loop resets its counter so
	// a later visit to the same loop starts from zero.
	t.Run("LoopCounter", func(t *testing.T) {
		e := NewExecutor()
		defer e.Close()
		e.MaxLoopUnroll = 3

		prog := parser.MustParseString(`havoc n; assume n >= 0 and n < 2; while n > 0 do n := n - 1`)
		loop := prog.List[2].(*ast.WhileStmt)

		state, err := e.NewState()
		if err != nil {
			t.Fatal(err)
		}
		states, err := e.Executor.Run(prog, state)
		if err != nil {
			t.Fatal(err)
		}
		for _, state := range states {
			if state.IsError() {
				continue
			} else if n := state.LoopCount(loop); n != 0 {
				t.Fatalf("unexpected loop count on exit: %d", n)
			}
		}
		if diff := cmp.Diff(Summarize(states), "states: 3\nrunning: 2\ninfeasible: 1\n"); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("PrintState", func(t *testing.T) {
		e := NewExecutor()
		defer e.Close()

		var buf bytes.Buffer
		e.Stdout = &buf
		e.MustRun(t, `havoc x; assume x >= 2; y := x * 2; print_state`)
		if diff := cmp.Diff(buf.String(), "x: x!1\ny: (* 2 x!1)\npc: [(<= 2 x!1)]\n"); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("SortMismatch", func(t *testing.T) {
		e := NewExecutor()
		defer e.Close()

		prog := &ast.AssertStmt{Cond: &ast.IntLit{Value: 1}}
		state, err := e.NewState()
		if err != nil {
			t.Fatal(err)
		}
		if _, err := e.Executor.Run(prog, state); !errors.Is(err, wlee.ErrSortMismatch) {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestExecutor_NewState(t *testing.T) {
	t.Run("ErrSolverRequired", func(t *testing.T) {
		if _, err := (&wlee.Executor{}).NewState(); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("IDs", func(t *testing.T) {
		e := NewExecutor()
		defer e.Close()

		states := e.MustRun(t, `havoc x; if x > 0 then skip else skip`)
		if len(states) != 2 {
			t.Fatalf("unexpected state count: %d", len(states))
		} else if states[0].ID() == states[1].ID() {
			t.Fatal("expected distinct ids")
		} else if states[0].Parent() == nil || states[0].Parent() != states[1].Parent() {
			t.Fatal("expected shared parent")
		}
	})
}
