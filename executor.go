package wlee

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/ashmorer/wlee/ast"
)

// DefaultMaxLoopUnroll is the default number of times a loop is unrolled on a path.
const DefaultMaxLoopUnroll = 10

// Executor symbolically executes WLang programs. Each call to Run explores
// every path of the program depth-first and returns the terminal states.
type Executor struct {
	stateIDSeq int // autoincrementing state ID
	varIDSeq   int // autoincrementing symbolic variable suffix

	// Used for creating the solver context of root states.
	Solver Solver

	// Number of times a loop may be unrolled on a single path before the
	// path is terminated as bounded. Defaults to DefaultMaxLoopUnroll.
	MaxLoopUnroll int

	// If set, assertion violations terminate only the violating path and
	// exploration continues. Violations are reported on the states.
	KeepGoing bool

	// If set, reading a variable that was never assigned or havocked is an
	// error instead of introducing a fresh symbolic variable.
	Strict bool

	// If set, every division by a value that may be zero is reported as a violation.
	CheckDivision bool

	// If set, print_state writes the state here.
	Stdout io.Writer
}

// NewExecutor returns a new instance of Executor.
func NewExecutor(solver Solver) *Executor {
	return &Executor{
		Solver:        solver,
		MaxLoopUnroll: DefaultMaxLoopUnroll,
	}
}

// NewState returns a new root state using the executor's solver.
func (e *Executor) NewState() (*ExecutionState, error) {
	if e.Solver == nil {
		return nil, errors.New("wlee: executor solver required")
	}
	state, err := NewExecutionState(e.Solver)
	if err != nil {
		return nil, err
	}
	state.id = e.nextStateID()
	return state, nil
}

// nextStateID returns the next autoincrementing state ID.
func (e *Executor) nextStateID() int {
	e.stateIDSeq++
	return e.stateIDSeq
}

// maxLoopUnroll returns the unrolling bound, falling back to the default
// when MaxLoopUnroll is not positive.
func (e *Executor) maxLoopUnroll() int {
	if e.MaxLoopUnroll <= 0 {
		return DefaultMaxLoopUnroll
	}
	return e.MaxLoopUnroll
}

// freshVar returns a new symbolic variable for a program variable.
// Names are never reused by the same executor.
func (e *Executor) freshVar(name string) *VarExpr {
	e.varIDSeq++
	return NewVarExpr(fmt.Sprintf("%s!%d", name, e.varIDSeq), SortInt)
}

// Run executes prog from state and returns every terminal state.
//
// If an assertion may fail, the violating state is returned alone together
// with an *AssertionError, unless KeepGoing is set. Solver failures and
// unbound variables in strict mode halt the run with an error.
func (e *Executor) Run(prog ast.Stmt, state *ExecutionState) ([]*ExecutionState, error) {
	if state.id == 0 {
		state.id = e.nextStateID()
	}

	log.Printf("[state] begin: #%d", state.id)
	states, err := e.execute(prog, state)

	var ae *AssertionError
	if errors.As(err, &ae) {
		return []*ExecutionState{ae.State}, err
	} else if err != nil {
		return nil, err
	}

	log.Printf("[state] end: %d states", len(states))
	return states, nil
}

// execute runs a single statement against state. Error states are carried
// through without evaluation.
func (e *Executor) execute(stmt ast.Stmt, state *ExecutionState) ([]*ExecutionState, error) {
	if state.IsError() {
		return e.carry(stmt, state)
	}

	switch stmt := stmt.(type) {
	case *ast.AssignStmt:
		return e.executeAssignStmt(state, stmt)
	case *ast.HavocStmt:
		return e.executeHavocStmt(state, stmt)
	case *ast.AssumeStmt:
		return e.executeAssumeStmt(state, stmt)
	case *ast.AssertStmt:
		return e.executeAssertStmt(state, stmt)
	case *ast.SkipStmt:
		return []*ExecutionState{state}, nil
	case *ast.PrintStateStmt:
		return e.executePrintStateStmt(state, stmt)
	case *ast.IfStmt:
		return e.executeIfStmt(state, stmt)
	case *ast.WhileStmt:
		return e.executeWhileStmt(state, stmt)
	case *ast.BlockStmt:
		return e.executeStmtList(state, stmt.Body)
	case *ast.StmtList:
		return e.executeStmtList(state, stmt)
	default:
		return nil, fmt.Errorf("wlee.Executor: unexpected statement type: %T", stmt)
	}
}

// executeStmtList runs each statement once per state produced by the previous one.
func (e *Executor) executeStmtList(state *ExecutionState, list *ast.StmtList) ([]*ExecutionState, error) {
	states := []*ExecutionState{state}
	if list == nil {
		return states, nil
	}

	for _, stmt := range list.List {
		var next []*ExecutionState
		for _, state := range states {
			other, err := e.execute(stmt, state)
			if err != nil {
				return nil, err
			}
			next = append(next, other...)
		}
		states = next
	}
	return states, nil
}

// carry passes an error state through stmt without evaluating it. Branching
// statements yield two terminal copies so the result keeps the shape of the
// program's branches.
func (e *Executor) carry(stmt ast.Stmt, state *ExecutionState) ([]*ExecutionState, error) {
	switch stmt := stmt.(type) {
	case *ast.IfStmt, *ast.WhileStmt:
		a, b, err := e.fork(state)
		if err != nil {
			return nil, err
		}
		return []*ExecutionState{a, b}, nil
	case *ast.BlockStmt:
		return e.executeStmtList(state, stmt.Body)
	case *ast.StmtList:
		return e.executeStmtList(state, stmt)
	default:
		return []*ExecutionState{state}, nil
	}
}

func (e *Executor) executeAssignStmt(state *ExecutionState, stmt *ast.AssignStmt) ([]*ExecutionState, error) {
	value, err := e.eval(state, stmt.Rhs, SortInt)
	if err != nil {
		return e.fail(state, err)
	}
	state.Bind(stmt.Lhs.Name, value)
	return []*ExecutionState{state}, nil
}

func (e *Executor) executeHavocStmt(state *ExecutionState, stmt *ast.HavocStmt) ([]*ExecutionState, error) {
	for _, ident := range stmt.Vars {
		v := e.freshVar(ident.Name)
		log.Printf("[havoc] %s: %s = %s", stmt.Pos(), ident.Name, v)
		state.Bind(ident.Name, v)
	}
	return []*ExecutionState{state}, nil
}

// executeAssumeStmt adds the condition to the path. Feasibility is left to
// the next branch or assertion.
func (e *Executor) executeAssumeStmt(state *ExecutionState, stmt *ast.AssumeStmt) ([]*ExecutionState, error) {
	cond, err := e.eval(state, stmt.Cond, SortBool)
	if err != nil {
		return e.fail(state, err)
	} else if err := state.AddConstraint(cond); err != nil {
		return nil, err
	}
	return []*ExecutionState{state}, nil
}

// executeAssertStmt checks whether the negated condition is satisfiable
// under the path condition. The solver is restored before returning.
func (e *Executor) executeAssertStmt(state *ExecutionState, stmt *ast.AssertStmt) ([]*ExecutionState, error) {
	cond, err := e.eval(state, stmt.Cond, SortBool)
	if err != nil {
		return e.fail(state, err)
	}

	satisfiable, model, err := state.checkScoped(NewNotExpr(cond))
	if err != nil {
		return nil, err
	} else if !satisfiable {
		log.Printf("[assert] %s: holds: %s", stmt.Pos(), stmt.Cond)
		return []*ExecutionState{state}, nil
	}

	log.Printf("[assert] %s: may fail: %s", stmt.Pos(), stmt.Cond)
	return e.fail(state, e.violation(state, ViolationAssertion, stmt.Cond, stmt.Pos(), model))
}

func (e *Executor) executePrintStateStmt(state *ExecutionState, stmt *ast.PrintStateStmt) ([]*ExecutionState, error) {
	log.Printf("[state] %s: #%d", stmt.Pos(), state.id)
	if e.Stdout != nil {
		if _, err := io.WriteString(e.Stdout, state.String()); err != nil {
			return nil, err
		}
	}
	return []*ExecutionState{state}, nil
}

// executeIfStmt forks the state on the condition. An infeasible side is kept
// as a single terminal state; a feasible side executes its branch.
func (e *Executor) executeIfStmt(state *ExecutionState, stmt *ast.IfStmt) ([]*ExecutionState, error) {
	cond, err := e.eval(state, stmt.Cond, SortBool)
	if err != nil {
		return e.fail(state, err)
	}

	log.Printf("[fork] %s: if %s", stmt.Pos(), stmt.Cond)
	thenState, elseState, err := e.fork(state)
	if err != nil {
		return nil, err
	}

	var states []*ExecutionState

	// Add the true branch if it is satisfiable.
	if ok, err := e.branch(thenState, cond, stmt.Pos(), "then"); err != nil {
		return nil, err
	} else if !ok {
		states = append(states, thenState)
	} else {
		other, err := e.execute(stmt.Then, thenState)
		if err != nil {
			return nil, err
		}
		states = append(states, other...)
	}

	// Add the false branch if it is satisfiable.
	if ok, err := e.branch(elseState, NewNotExpr(cond), stmt.Pos(), "else"); err != nil {
		return nil, err
	} else if !ok || !stmt.HasElse() {
		states = append(states, elseState)
	} else {
		other, err := e.execute(stmt.Else, elseState)
		if err != nil {
			return nil, err
		}
		states = append(states, other...)
	}

	return states, nil
}

// executeWhileStmt unrolls the loop once per call. The state is forked into
// a continuing & an exiting state; the body runs on the continuing state and
// the loop is re-applied to every resulting state.
func (e *Executor) executeWhileStmt(state *ExecutionState, stmt *ast.WhileStmt) ([]*ExecutionState, error) {
	cond, err := e.eval(state, stmt.Cond, SortBool)
	if err != nil {
		return e.fail(state, err)
	}

	log.Printf("[fork] %s: while %s (iteration %d)", stmt.Pos(), stmt.Cond, state.LoopCount(stmt))
	contState, exitState, err := e.fork(state)
	if err != nil {
		return nil, err
	}

	contOK, err := e.branch(contState, cond, stmt.Pos(), "loop")
	if err != nil {
		return nil, err
	}

	// Stop unrolling once the bound is reached. The exiting state is not explored.
	if n := e.maxLoopUnroll(); contOK && contState.LoopCount(stmt) >= n {
		log.Printf("[loop] %s: bound reached after %d iterations", stmt.Pos(), n)
		contState.MarkError(ExecutionStatusBounded, fmt.Sprintf("loop at %s unrolled %d times", stmt.Pos(), n))
		exitState.Close()
		return []*ExecutionState{contState}, nil
	}

	exitOK, err := e.branch(exitState, NewNotExpr(cond), stmt.Pos(), "exit")
	if err != nil {
		return nil, err
	} else if exitOK {
		delete(exitState.loops, stmt)
	}

	if !contOK {
		return []*ExecutionState{contState, exitState}, nil
	}

	contState.loops[stmt]++
	body, err := e.execute(stmt.Body, contState)
	if err != nil {
		return nil, err
	}

	var states []*ExecutionState
	for _, s := range body {
		other, err := e.execute(stmt, s)
		if err != nil {
			return nil, err
		}
		states = append(states, other...)
	}
	return append(states, exitState), nil
}

// branch adds cond to the state and checks feasibility. Infeasible states
// are marked and false is returned.
func (e *Executor) branch(state *ExecutionState, cond Expr, pos ast.Pos, name string) (bool, error) {
	if err := state.AddConstraint(cond); err != nil {
		return false, err
	}
	infeasible, err := state.IsInfeasible()
	if err != nil {
		return false, err
	} else if infeasible {
		log.Printf("[branch] %s: %s infeasible", pos, name)
		state.MarkError(ExecutionStatusInfeasible, fmt.Sprintf("%s branch at %s is infeasible", name, pos))
		return false, nil
	}
	log.Printf("[branch] %s: %s feasible", pos, name)
	return true, nil
}

// fork returns two copies of state with new IDs. Intermediate states are
// released. The root state belongs to the caller and violating states stay
// open for their reports.
func (e *Executor) fork(state *ExecutionState) (*ExecutionState, *ExecutionState, error) {
	a, b, err := state.Fork()
	if err != nil {
		return nil, nil, err
	}
	a.id, b.id = e.nextStateID(), e.nextStateID()

	if state.parent != nil && state.violation == nil {
		if err := state.Close(); err != nil {
			return nil, nil, err
		}
	}
	return a, b, nil
}

// eval evaluates expr under the state's environment and checks its sort.
// Unbound variables are introduced as fresh symbolic variables unless the
// executor is strict. When division checking is enabled each divisor is
// checked against zero.
func (e *Executor) eval(state *ExecutionState, expr ast.Expr, sort Sort) (Expr, error) {
	for _, ident := range ast.Idents(expr) {
		if _, ok := state.Lookup(ident.Name); ok {
			continue
		} else if e.Strict {
			return nil, &UnboundVariableError{Name: ident.Name, Pos: ident.Pos()}
		}
		v := e.freshVar(ident.Name)
		log.Printf("[havoc] %s: %s = %s (first use)", ident.Pos(), ident.Name, v)
		state.Bind(ident.Name, v)
	}

	if e.CheckDivision {
		if err := e.checkDivisors(state, expr); err != nil {
			return nil, err
		}
	}
	return evalSort(expr, state, sort)
}

// checkDivisors reports the first divisor in expr that may be zero.
func (e *Executor) checkDivisors(state *ExecutionState, expr ast.Expr) (err error) {
	ast.Inspect(expr, func(node ast.Node) bool {
		if err != nil {
			return false
		}
		arith, ok := node.(*ast.ArithExpr)
		if !ok || arith.Op != ast.QUO || len(arith.Args) < 2 {
			return true
		}

		for _, arg := range arith.Args[1:] {
			divisor, e2 := Eval(arg, state)
			if e2 != nil {
				err = e2
				return false
			} else if c, ok := divisor.(*ConstantExpr); ok && c.Value != 0 {
				continue
			}

			satisfiable, model, e2 := state.checkScoped(NewBinaryExpr(EQ, divisor, NewConstantExpr(0)))
			if e2 != nil {
				err = e2
				return false
			} else if satisfiable {
				log.Printf("[assert] %s: divisor may be zero: %s", arg.Pos(), arg)
				err = e.violation(state, ViolationDivisionByZero, arg, arg.Pos(), model)
				return false
			}
		}
		return true
	})
	return err
}

// violation marks state as failed and returns the violation.
func (e *Executor) violation(state *ExecutionState, kind ViolationKind, cond ast.Expr, pos ast.Pos, model Model) *AssertionError {
	ae := &AssertionError{Kind: kind, Cond: cond, Pos: pos, Model: model, State: state}
	if cs, err := newConcreteState(model, state.Env(), state.constraints); err == nil {
		ae.Counterexample = cs
	} else {
		log.Printf("[assert] cannot build counterexample: %s", err)
	}

	state.MarkError(ExecutionStatusFailed, ae.Error())
	state.violation = ae
	return ae
}

// fail ends execution of state with err. Violations keep exploring other
// paths when KeepGoing is set; every other error halts the run.
func (e *Executor) fail(state *ExecutionState, err error) ([]*ExecutionState, error) {
	var ae *AssertionError
	if e.KeepGoing && errors.As(err, &ae) {
		return []*ExecutionState{state}, nil
	}
	return nil, err
}

// ViolationKind represents the type of check that failed.
type ViolationKind int

const (
	ViolationAssertion ViolationKind = iota
	ViolationDivisionByZero
)

// String returns the string representation of the kind.
func (k ViolationKind) String() string {
	switch k {
	case ViolationAssertion:
		return "assertion"
	case ViolationDivisionByZero:
		return "division-by-zero"
	default:
		return fmt.Sprintf("ViolationKind<%d>", int(k))
	}
}

// AssertionError is returned when a check may fail on a feasible path.
// Model satisfies the path condition and falsifies the check. It is
// released when State is closed.
type AssertionError struct {
	Kind  ViolationKind
	Cond  ast.Expr // asserted condition or divisor
	Pos   ast.Pos
	Model Model
	State *ExecutionState

	// Values of the inputs & program variables under Model. May be nil.
	Counterexample *ConcreteState
}

// Error returns the error as a string.
func (e *AssertionError) Error() string {
	switch e.Kind {
	case ViolationDivisionByZero:
		return fmt.Sprintf("%s: divisor may be zero: %s", e.Pos, e.Cond)
	default:
		return fmt.Sprintf("%s: assertion might fail: %s", e.Pos, e.Cond)
	}
}

// Solver represents a factory for logical constraint solver contexts.
type Solver interface {
	// Returns a new, empty solver context. The caller must close it.
	NewContext() (SolverContext, error)
}

// SolverContext represents an incremental solver holding a set of constraints.
type SolverContext interface {
	// Adds constraints to the current scope.
	Assert(exprs ...Expr) error

	// Opens a new scope. Pop discards every constraint added since the matching Push.
	Push() error
	Pop() error

	// Returns the satisfiability of the constraints. An undecided result is
	// returned as an error such as ErrSolverTimeout or ErrSolverUnknown.
	Check() (satisfiable bool, err error)

	// Returns a model after a satisfiable Check.
	Model() (Model, error)

	// Exports the constraints as an SMT-LIB2 script & adds the assertions of a script.
	SMTLIB2() (string, error)
	AssertSMTLIB2(s string) error

	Close() error
}

// Model represents a satisfying assignment produced by a solver.
type Model interface {
	// Returns the value of expr. Unconstrained variables evaluate to a default value.
	Eval(expr Expr) (*ConstantExpr, error)
	String() string

	// Releases the model. Eval fails afterwards.
	Close() error
}
