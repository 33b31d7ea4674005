package wlee

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ashmorer/wlee/ast"
	"github.com/benbjohnson/immutable"
)

var (
	// ErrStateInfeasible is returned when a concrete assignment is requested
	// for a state whose path condition is unsatisfiable.
	ErrStateInfeasible = errors.New("state is infeasible")

	// ErrStateClosed is returned when a released state is queried.
	ErrStateClosed = errors.New("state closed")
)

// ExecutionState represents a path under exploration.
type ExecutionState struct {
	id int

	// Execution hierarchy.
	parent *ExecutionState

	// Shows whether state is running or terminated by an error.
	status    ExecutionStatus
	reason    string
	violation *AssertionError

	// Program variables. Persistent so forks share structure.
	env *immutable.SortedMap

	// Constraints collected so far during execution.
	constraints []Expr

	// Solver context holding exactly the constraints above, outside of
	// scoped checks. Owned by this state.
	solver Solver
	ctx    SolverContext

	// Number of times each loop has been unrolled on this path.
	loops map[*ast.WhileStmt]int
}

// NewExecutionState returns a new root state with an empty environment and
// a fresh context from solver.
func NewExecutionState(solver Solver) (*ExecutionState, error) {
	ctx, err := solver.NewContext()
	if err != nil {
		return nil, err
	}
	return &ExecutionState{
		status: ExecutionStatusRunning,
		env:    immutable.NewSortedMap(&stringComparer{}),
		solver: solver,
		ctx:    ctx,
		loops:  make(map[*ast.WhileStmt]int),
	}, nil
}

// ID returns an autoincrementing ID assigned by the executor.
func (s *ExecutionState) ID() int { return s.id }

// Parent returns the state this state was forked from.
func (s *ExecutionState) Parent() *ExecutionState { return s.parent }

// Close releases the solver context. A state that raised a violation also
// releases the violation's model.
func (s *ExecutionState) Close() error {
	if s.ctx == nil {
		return nil
	}
	err := s.ctx.Close()
	s.ctx = nil

	if v := s.violation; v != nil && v.State == s && v.Model != nil {
		if e := v.Model.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// Status returns the current status of the state.
// See Reason() for additional information if status is in an error state.
func (s *ExecutionState) Status() ExecutionStatus {
	return s.status
}

// Reason returns additional information about the status of the state.
func (s *ExecutionState) Reason() string {
	return s.reason
}

// IsError returns true if the state was terminated. Error states are never
// evaluated against further statements.
func (s *ExecutionState) IsError() bool {
	return s.status != ExecutionStatusRunning
}

// MarkError terminates the state. Only the first status & reason are kept.
func (s *ExecutionState) MarkError(status ExecutionStatus, reason string) {
	assert(status != ExecutionStatusRunning, "cannot mark state as running")
	if s.IsError() {
		return
	}
	s.status, s.reason = status, reason
}

// Violation returns the assertion violation that terminated the state, if any.
func (s *ExecutionState) Violation() *AssertionError {
	return s.violation
}

// Lookup returns the symbolic value bound to a program variable.
func (s *ExecutionState) Lookup(name string) (Expr, bool) {
	v, ok := s.env.Get(name)
	if !ok {
		return nil, false
	}
	return v.(Expr), true
}

// Bind sets the symbolic value of a program variable.
func (s *ExecutionState) Bind(name string, value Expr) {
	assert(value != nil, "nil binding: %s", name)
	s.env = s.env.Set(name, value)
}

// Binding represents a program variable and its symbolic value.
type Binding struct {
	Name string
	Expr Expr
}

// Env returns all bound variables, sorted by name.
func (s *ExecutionState) Env() []Binding {
	a := make([]Binding, 0, s.env.Len())
	itr := s.env.Iterator()
	for {
		k, v := itr.Next()
		if k == nil {
			return a
		}
		a = append(a, Binding{Name: k.(string), Expr: v.(Expr)})
	}
}

// Constraints returns the path condition as a list of conjuncts.
func (s *ExecutionState) Constraints() []Expr {
	return s.constraints
}

// AddConstraint adds constraints to the path condition and to the solver.
// Conjunctions are split into independent constraints. Feasibility is not checked.
func (s *ExecutionState) AddConstraint(exprs ...Expr) error {
	var a []Expr
	for _, expr := range exprs {
		assert(ExprSort(expr) == SortBool, "non-boolean constraint: %s", expr)
		a = AddConstraint(a, expr)
	}
	if len(a) == 0 {
		return nil
	} else if s.ctx == nil {
		return ErrStateClosed
	} else if err := s.ctx.Assert(a...); err != nil {
		return err
	}
	s.constraints = append(s.constraints, a...)
	return nil
}

// AddConstraint adds expr to constraints and returns the new constraint list.
// If expr is a binary AND expression then its LHS & RHS are split into
// independent constraints. Constant true adds nothing.
func AddConstraint(a []Expr, expr Expr) []Expr {
	if b, ok := expr.(*BinaryExpr); ok && b.Op == AND {
		a = AddConstraint(a, b.LHS)
		a = AddConstraint(a, b.RHS)
		return a
	} else if IsConstantTrue(expr) {
		return a
	}
	return append(a, expr)
}

// IsInfeasible returns true if the path condition is unsatisfiable.
func (s *ExecutionState) IsInfeasible() (bool, error) {
	if s.ctx == nil {
		return false, ErrStateClosed
	}
	satisfiable, err := s.ctx.Check()
	if err != nil {
		return false, err
	}
	return !satisfiable, nil
}

// checkScoped returns whether the path condition together with cond is
// satisfiable. The solver is restored afterwards. A model is returned if satisfiable.
func (s *ExecutionState) checkScoped(cond Expr) (_ bool, _ Model, err error) {
	if s.ctx == nil {
		return false, nil, ErrStateClosed
	} else if err := s.ctx.Push(); err != nil {
		return false, nil, err
	}
	defer func() {
		if e := s.ctx.Pop(); e != nil && err == nil {
			err = e
		}
	}()

	if err := s.ctx.Assert(cond); err != nil {
		return false, nil, err
	}
	satisfiable, err := s.ctx.Check()
	if err != nil || !satisfiable {
		return false, nil, err
	}
	model, err := s.ctx.Model()
	if err != nil {
		return true, nil, err
	}
	return true, model, nil
}

// LoopCount returns the number of times loop has been unrolled on this path.
func (s *ExecutionState) LoopCount(loop *ast.WhileStmt) int {
	return s.loops[loop]
}

// Fork returns two independent copies of the state. Each copy has its own
// solver context rebuilt from the path condition.
func (s *ExecutionState) Fork() (*ExecutionState, *ExecutionState, error) {
	a, err := s.clone()
	if err != nil {
		return nil, nil, err
	}
	b, err := s.clone()
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, b, nil
}

// clone returns a copy of the state, including copies of the constraints
// and loop counters. The environment is persistent and is shared.
func (s *ExecutionState) clone() (*ExecutionState, error) {
	if s.ctx == nil {
		return nil, ErrStateClosed
	}
	ctx, err := s.solver.NewContext()
	if err != nil {
		return nil, err
	} else if len(s.constraints) > 0 {
		if err := ctx.Assert(s.constraints...); err != nil {
			ctx.Close()
			return nil, err
		}
	}

	constraints := make([]Expr, len(s.constraints))
	copy(constraints, s.constraints)

	loops := make(map[*ast.WhileStmt]int, len(s.loops))
	for k, v := range s.loops {
		loops[k] = v
	}

	return &ExecutionState{
		parent:      s,
		status:      s.status,
		reason:      s.reason,
		violation:   s.violation,
		env:         s.env,
		constraints: constraints,
		solver:      s.solver,
		ctx:         ctx,
		loops:       loops,
	}, nil
}

// Concrete returns one assignment of values to every program variable that
// follows this path. Returns ErrStateInfeasible if no such assignment exists.
func (s *ExecutionState) Concrete() (*ConcreteState, error) {
	if s.ctx == nil {
		return nil, ErrStateClosed
	}
	satisfiable, err := s.ctx.Check()
	if err != nil {
		return nil, err
	} else if !satisfiable {
		return nil, ErrStateInfeasible
	}

	model, err := s.ctx.Model()
	if err != nil {
		return nil, err
	}
	defer model.Close()

	return newConcreteState(model, s.Env(), s.constraints)
}

// SMTLIB2 returns the path condition as an SMT-LIB2 script.
func (s *ExecutionState) SMTLIB2() (string, error) {
	if s.ctx == nil {
		return "", ErrStateClosed
	}
	return s.ctx.SMTLIB2()
}

// String returns the environment, path condition & error marker of the state.
func (s *ExecutionState) String() string {
	var buf bytes.Buffer
	for _, b := range s.Env() {
		fmt.Fprintf(&buf, "%s: %s\n", b.Name, b.Expr)
	}

	pc := make([]string, len(s.constraints))
	for i, expr := range s.constraints {
		pc[i] = expr.String()
	}
	fmt.Fprintf(&buf, "pc: [%s]\n", strings.Join(pc, ", "))

	if s.IsError() {
		fmt.Fprintf(&buf, "error: %s: %s\n", s.status, s.reason)
	}
	return buf.String()
}

// Dump returns the full contents of the state as a string.
func (s *ExecutionState) Dump() string {
	var buf bytes.Buffer

	fmt.Fprintln(&buf, "EXECUTION STATE")
	fmt.Fprintln(&buf, "===============")
	fmt.Fprintf(&buf, "id=%d\n", s.id)
	fmt.Fprintf(&buf, "status=%s\n", s.status)
	fmt.Fprintf(&buf, "reason=%s\n", s.reason)
	fmt.Fprintln(&buf, "")

	fmt.Fprintln(&buf, "== ENV")
	for _, b := range s.Env() {
		fmt.Fprintf(&buf, "%s = %s\n", b.Name, b.Expr)
	}
	fmt.Fprintln(&buf, "")

	fmt.Fprintln(&buf, "== LOOPS")
	loops := make([]*ast.WhileStmt, 0, len(s.loops))
	for loop := range s.loops {
		loops = append(loops, loop)
	}
	sort.Slice(loops, func(i, j int) bool { return comparePos(loops[i].Pos(), loops[j].Pos()) < 0 })
	for _, loop := range loops {
		fmt.Fprintf(&buf, "%s %d\n", loop.Pos(), s.loops[loop])
	}
	fmt.Fprintln(&buf, "")

	fmt.Fprintln(&buf, "== CONSTRAINTS")
	for i, expr := range s.constraints {
		fmt.Fprintf(&buf, "%d. %s\n", i, expr.String())
	}
	return buf.String()
}

// ExecutionStatus represents the current status of the execution state.
// The state will also include a reason if the status is not running.
type ExecutionStatus string

const (
	ExecutionStatusRunning    = ExecutionStatus("running")    // may execute further statements
	ExecutionStatusInfeasible = ExecutionStatus("infeasible") // path condition unsatisfiable
	ExecutionStatusBounded    = ExecutionStatus("bounded")    // loop unrolling limit reached
	ExecutionStatusFailed     = ExecutionStatus("failed")     // assertion violated
)

// ConcreteState represents a concrete assignment for a symbolic state.
type ConcreteState struct {
	// Values of the symbolic variables introduced on the path.
	Inputs map[string]*ConstantExpr

	// Values of the program variables.
	Env map[string]*ConstantExpr
}

// newConcreteState evaluates every variable of env & exprs under model.
func newConcreteState(model Model, env []Binding, exprs []Expr) (*ConcreteState, error) {
	all := append([]Expr(nil), exprs...)
	for _, b := range env {
		all = append(all, b.Expr)
	}

	cs := &ConcreteState{
		Inputs: make(map[string]*ConstantExpr),
		Env:    make(map[string]*ConstantExpr),
	}
	for _, v := range FindVars(all...) {
		value, err := model.Eval(v)
		if err != nil {
			return nil, fmt.Errorf("eval %s: %w", v.Name, err)
		}
		cs.Inputs[v.Name] = value
	}

	// Program variables are computed from the inputs. Divisions by zero are
	// left to the solver's interpretation.
	ee := NewExprEvaluator(cs.Inputs)
	for _, b := range env {
		value, err := ee.Evaluate(b.Expr)
		if err != nil {
			if value, err = model.Eval(b.Expr); err != nil {
				return nil, fmt.Errorf("eval %s: %w", b.Name, err)
			}
		}
		cs.Env[b.Name] = value
	}
	return cs, nil
}

// Names returns the program variable names, sorted.
func (cs *ConcreteState) Names() []string {
	return sortedKeys(cs.Env)
}

// InputNames returns the symbolic variable names, sorted.
func (cs *ConcreteState) InputNames() []string {
	return sortedKeys(cs.Inputs)
}

// String returns one "name: value" line per program variable.
func (cs *ConcreteState) String() string {
	var buf bytes.Buffer
	for _, name := range cs.Names() {
		fmt.Fprintf(&buf, "%s: %s\n", name, cs.Env[name])
	}
	return buf.String()
}

func sortedKeys(m map[string]*ConstantExpr) []string {
	a := make([]string, 0, len(m))
	for k := range m {
		a = append(a, k)
	}
	sort.Strings(a)
	return a
}

func comparePos(a, b ast.Pos) int {
	if a.Line != b.Line {
		return a.Line - b.Line
	}
	return a.Column - b.Column
}

// stringComparer compares two strings. Implements immutable.Comparer.
type stringComparer struct{}

// Compare returns -1 if a is less than b, returns 1 if a is greater than b, and
// returns 0 if a is equal to b. Panic if a or b is not a string.
func (c *stringComparer) Compare(a, b interface{}) int {
	return strings.Compare(a.(string), b.(string))
}
