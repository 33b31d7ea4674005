package z3

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unsafe"

	"github.com/ashmorer/wlee"
)

/*
#cgo LDFLAGS: -lz3
#include <z3.h>
#include <stdlib.h>
#include <stdio.h>
*/
import "C"

// ErrModelClosed is returned when a released model is evaluated.
var ErrModelClosed = errors.New("z3: model closed")

// Ensure types implement interfaces.
var (
	_ wlee.Solver        = (*Solver)(nil)
	_ wlee.SolverContext = (*SolverContext)(nil)
	_ wlee.Model         = (*Model)(nil)
)

// Solver represents a solver that uses an embedded Z3 solver. All solver
// contexts created by a Solver share a single Z3 context and must be used
// from one goroutine.
type Solver struct {
	ctx   *Context
	stats Stats

	// Per-check time limit. Zero means no limit.
	Timeout time.Duration
}

// NewSolver returns a new instance of Solver.
func NewSolver() *Solver {
	return &Solver{
		ctx: NewContext(),
	}
}

// Close deletes the underlying Z3 context. Models and solver contexts
// created by s are invalid afterwards.
func (s *Solver) Close() error {
	return s.ctx.Close()
}

// Stats returns statistics for the solver.
func (s *Solver) Stats() Stats {
	return s.stats
}

// NewContext returns a new incremental solver context with no assertions.
func (s *Solver) NewContext() (wlee.SolverContext, error) {
	raw := C.Z3_mk_solver(s.ctx.raw)
	if err := s.ctx.err("Z3_mk_solver"); err != nil {
		return nil, err
	}
	C.Z3_solver_inc_ref(s.ctx.raw, raw)

	if s.Timeout > 0 {
		if err := s.ctx.setTimeout(raw, s.Timeout); err != nil {
			C.Z3_solver_dec_ref(s.ctx.raw, raw)
			return nil, err
		}
	}
	s.stats.ContextN++

	return &SolverContext{solver: s, raw: raw}, nil
}

// SolverContext wraps a reference-counted Z3 solver object.
type SolverContext struct {
	solver *Solver
	raw    C.Z3_solver
}

func (sc *SolverContext) ctx() *Context { return sc.solver.ctx }

// Assert adds constraints to the current scope.
func (sc *SolverContext) Assert(exprs ...wlee.Expr) error {
	for _, expr := range exprs {
		ast, err := sc.ctx().toAST(expr)
		if err != nil {
			return err
		}
		C.Z3_solver_assert(sc.ctx().raw, sc.raw, ast)
		if err := sc.ctx().err("Z3_solver_assert"); err != nil {
			return err
		}
	}
	return nil
}

// Push opens a new assertion scope.
func (sc *SolverContext) Push() error {
	C.Z3_solver_push(sc.ctx().raw, sc.raw)
	return sc.ctx().err("Z3_solver_push")
}

// Pop removes the assertions added since the last Push.
func (sc *SolverContext) Pop() error {
	C.Z3_solver_pop(sc.ctx().raw, sc.raw, 1)
	return sc.ctx().err("Z3_solver_pop")
}

// Check returns true if the current assertions are satisfiable.
func (sc *SolverContext) Check() (satisfiable bool, err error) {
	t := time.Now()
	defer func() {
		sc.solver.stats.SolveN++
		sc.solver.stats.SolveTime += time.Since(t)
	}()

	// Exit immediately if unsatisfiable or the solver encountered an error.
	ret := C.Z3_solver_check(sc.ctx().raw, sc.raw)
	if err := sc.ctx().err("Z3_solver_check"); err != nil {
		return false, err
	} else if ret == C.Z3_L_FALSE {
		return false, nil
	} else if ret == C.Z3_L_UNDEF {
		reason := C.GoString(C.Z3_solver_get_reason_unknown(sc.ctx().raw, sc.raw))
		switch {
		case strings.Contains(reason, "timeout"):
			return false, wlee.ErrSolverTimeout
		case strings.Contains(reason, "canceled"):
			return false, wlee.ErrSolverCanceled
		case strings.Contains(reason, "(resource limits reached)"):
			return false, wlee.ErrSolverResourceLimit
		case strings.Contains(reason, "unknown"):
			return false, wlee.ErrSolverUnknown
		default:
			return false, fmt.Errorf("z3: %s", reason)
		}
	}
	return true, nil
}

// Model returns the model of the last satisfiable Check.
func (sc *SolverContext) Model() (wlee.Model, error) {
	raw := C.Z3_solver_get_model(sc.ctx().raw, sc.raw)
	if err := sc.ctx().err("Z3_solver_get_model"); err != nil {
		return nil, err
	}

	C.Z3_model_inc_ref(sc.ctx().raw, raw)
	return &Model{ctx: sc.ctx(), raw: raw}, nil
}

// SMTLIB2 returns the current assertions as an SMT-LIB2 benchmark: constant
// declarations, one assert per constraint and a trailing check-sat. Solver
// internals such as model converters are not included.
func (sc *SolverContext) SMTLIB2() (string, error) {
	ctx := sc.ctx()
	vec := C.Z3_solver_get_assertions(ctx.raw, sc.raw)
	if err := ctx.err("Z3_solver_get_assertions"); err != nil {
		return "", err
	}
	C.Z3_ast_vector_inc_ref(ctx.raw, vec)
	defer C.Z3_ast_vector_dec_ref(ctx.raw, vec)

	// The last assertion is the benchmark formula, the others are assumptions.
	var assumptions []C.Z3_ast
	formula := C.Z3_mk_true(ctx.raw)
	if n := C.Z3_ast_vector_size(ctx.raw, vec); n > 0 {
		for i := C.uint(0); i < n-1; i++ {
			assumptions = append(assumptions, C.Z3_ast_vector_get(ctx.raw, vec, i))
		}
		formula = C.Z3_ast_vector_get(ctx.raw, vec, n-1)
	}
	var ptr *C.Z3_ast
	if len(assumptions) > 0 {
		ptr = &assumptions[0]
	}

	name, logic, status, attrs := C.CString("benchmark generated by wlee"), C.CString(""), C.CString("unknown"), C.CString("")
	defer C.free(unsafe.Pointer(name))
	defer C.free(unsafe.Pointer(logic))
	defer C.free(unsafe.Pointer(status))
	defer C.free(unsafe.Pointer(attrs))

	s := C.GoString(C.Z3_benchmark_to_smtlib_string(ctx.raw, name, logic, status, attrs, C.uint(len(assumptions)), ptr, formula))
	return s, ctx.err("Z3_benchmark_to_smtlib_string")
}

// AssertSMTLIB2 parses SMT-LIB2 text and asserts each parsed formula.
// Constants are declared by the text itself.
func (sc *SolverContext) AssertSMTLIB2(s string) error {
	cs := C.CString(s)
	defer C.free(unsafe.Pointer(cs))

	vec := C.Z3_parse_smtlib2_string(sc.ctx().raw, cs, 0, nil, nil, 0, nil, nil)
	if err := sc.ctx().err("Z3_parse_smtlib2_string"); err != nil {
		return err
	}
	C.Z3_ast_vector_inc_ref(sc.ctx().raw, vec)
	defer C.Z3_ast_vector_dec_ref(sc.ctx().raw, vec)

	n := C.Z3_ast_vector_size(sc.ctx().raw, vec)
	for i := C.uint(0); i < n; i++ {
		C.Z3_solver_assert(sc.ctx().raw, sc.raw, C.Z3_ast_vector_get(sc.ctx().raw, vec, i))
		if err := sc.ctx().err("Z3_solver_assert"); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the Z3 solver object.
func (sc *SolverContext) Close() error {
	if sc.raw == nil {
		return nil
	}
	C.Z3_solver_dec_ref(sc.ctx().raw, sc.raw)
	sc.raw = nil
	return sc.ctx().err("Z3_solver_dec_ref")
}

// Model represents a satisfying assignment returned by Z3.
type Model struct {
	ctx *Context
	raw C.Z3_model
}

// Eval returns the value of expr under the model. Variables that are not
// constrained by the model are given a default value.
func (m *Model) Eval(expr wlee.Expr) (*wlee.ConstantExpr, error) {
	if m.raw == nil {
		return nil, ErrModelClosed
	}

	ast, err := m.ctx.toAST(expr)
	if err != nil {
		return nil, err
	}

	var result C.Z3_ast
	if !C.Z3_model_eval(m.ctx.raw, m.raw, ast, C.bool(true), &result) {
		return nil, fmt.Errorf("z3.Model.Eval: cannot evaluate: %s", expr)
	} else if err := m.ctx.err("Z3_model_eval"); err != nil {
		return nil, err
	}

	switch wlee.ExprSort(expr) {
	case wlee.SortBool:
		switch C.Z3_get_bool_value(m.ctx.raw, result) {
		case C.Z3_L_TRUE:
			return wlee.NewBoolConstantExpr(true), nil
		case C.Z3_L_FALSE:
			return wlee.NewBoolConstantExpr(false), nil
		default:
			return nil, fmt.Errorf("z3.Model.Eval: non-constant result: %s", m.ctx.astToString(result))
		}
	default:
		var value C.int64_t
		if !C.Z3_get_numeral_int64(m.ctx.raw, result, &value) {
			return nil, fmt.Errorf("z3.Model.Eval: not a 64-bit integer: %s", m.ctx.astToString(result))
		}
		return wlee.NewConstantExpr(int64(value)), nil
	}
}

// String returns the model as Z3 prints it.
func (m *Model) String() string {
	if m.raw == nil {
		return ""
	}
	return C.GoString(C.Z3_model_to_string(m.ctx.raw, m.raw))
}

// Close releases the Z3 model object. Closing twice is a no-op.
func (m *Model) Close() error {
	if m.raw == nil {
		return nil
	}
	C.Z3_model_dec_ref(m.ctx.raw, m.raw)
	m.raw = nil
	return m.ctx.err("Z3_model_dec_ref")
}

// Context represents a Z3 context object that is used for constructing expressions.
type Context struct {
	raw C.Z3_context
}

// NewContext returns a new instance of Context.
func NewContext() *Context {
	config := C.Z3_mk_config()
	defer C.Z3_del_config(config)

	raw := C.Z3_mk_context(config)
	C.Z3_set_error_handler(raw, nil)
	C.Z3_set_ast_print_mode(raw, C.Z3_PRINT_SMTLIB2_COMPLIANT)
	return &Context{raw: raw}
}

// Close deletes the underlying Z3 context.
func (ctx *Context) Close() error {
	C.Z3_del_context(ctx.raw)
	return nil
}

// err returns the error for the last API call. Returns nil if last call was successful.
func (ctx *Context) err(op string) error {
	if code := C.Z3_get_error_code(ctx.raw); code != C.Z3_OK {
		return &Error{Code: int(code), Op: op, Message: C.GoString(C.Z3_get_error_msg(ctx.raw, code))}
	}
	return nil
}

// setTimeout limits each check on solver to d.
func (ctx *Context) setTimeout(solver C.Z3_solver, d time.Duration) error {
	params := C.Z3_mk_params(ctx.raw)
	if err := ctx.err("Z3_mk_params"); err != nil {
		return err
	}
	C.Z3_params_inc_ref(ctx.raw, params)
	defer C.Z3_params_dec_ref(ctx.raw, params)

	name := C.CString("timeout")
	defer C.free(unsafe.Pointer(name))

	ms := d.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	C.Z3_params_set_uint(ctx.raw, params, C.Z3_mk_string_symbol(ctx.raw, name), C.uint(ms))
	if err := ctx.err("Z3_params_set_uint"); err != nil {
		return err
	}
	C.Z3_solver_set_params(ctx.raw, solver, params)
	return ctx.err("Z3_solver_set_params")
}

// toAST returns a new instance of Z3_ast from an expression.
func (ctx *Context) toAST(expr wlee.Expr) (C.Z3_ast, error) {
	switch expr := expr.(type) {
	case *wlee.ConstantExpr:
		return ctx.toConstantAST(expr)
	case *wlee.VarExpr:
		return ctx.toVarAST(expr)
	case *wlee.NotExpr:
		return ctx.toNotAST(expr)
	case *wlee.BinaryExpr:
		return ctx.toBinaryAST(expr)
	default:
		return nil, fmt.Errorf("z3.Context.toAST: invalid expression type: %T", expr)
	}
}

func (ctx *Context) toConstantAST(expr *wlee.ConstantExpr) (C.Z3_ast, error) {
	switch expr.Sort {
	case wlee.SortBool:
		if expr.IsTrue() {
			return C.Z3_mk_true(ctx.raw), ctx.err("Z3_mk_true")
		}
		return C.Z3_mk_false(ctx.raw), ctx.err("Z3_mk_false")
	case wlee.SortInt:
		sort, err := ctx.intSort()
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_int64(ctx.raw, C.int64_t(expr.Value), sort), ctx.err("Z3_mk_int64")
	default:
		return nil, fmt.Errorf("z3.Context.toConstantAST: invalid sort: %s", expr.Sort)
	}
}

func (ctx *Context) toVarAST(expr *wlee.VarExpr) (C.Z3_ast, error) {
	var sort C.Z3_sort
	var err error
	switch expr.Sort {
	case wlee.SortBool:
		sort, err = C.Z3_mk_bool_sort(ctx.raw), ctx.err("Z3_mk_bool_sort")
	case wlee.SortInt:
		sort, err = ctx.intSort()
	default:
		return nil, fmt.Errorf("z3.Context.toVarAST: invalid sort: %s", expr.Sort)
	}
	if err != nil {
		return nil, err
	}

	cname := C.CString(expr.Name)
	defer C.free(unsafe.Pointer(cname))
	nameSymbol := C.Z3_mk_string_symbol(ctx.raw, cname)
	return C.Z3_mk_const(ctx.raw, nameSymbol, sort), ctx.err("Z3_mk_const")
}

func (ctx *Context) toNotAST(expr *wlee.NotExpr) (C.Z3_ast, error) {
	src, err := ctx.toAST(expr.Expr)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_not(ctx.raw, src), ctx.err("Z3_mk_not")
}

func (ctx *Context) toBinaryAST(expr *wlee.BinaryExpr) (C.Z3_ast, error) {
	lhs, err := ctx.toAST(expr.LHS)
	if err != nil {
		return nil, err
	}
	rhs, err := ctx.toAST(expr.RHS)
	if err != nil {
		return nil, err
	}

	// Arguments for the variadic constructors. Holds only C pointers.
	args := [2]C.Z3_ast{lhs, rhs}

	switch expr.Op {
	case wlee.ADD:
		return C.Z3_mk_add(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_add")
	case wlee.SUB:
		return C.Z3_mk_sub(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_sub")
	case wlee.MUL:
		return C.Z3_mk_mul(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_mul")
	case wlee.AND:
		return C.Z3_mk_and(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_and")
	case wlee.OR:
		return C.Z3_mk_or(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_or")
	case wlee.DIV:
		return C.Z3_mk_div(ctx.raw, lhs, rhs), ctx.err("Z3_mk_div")
	case wlee.EQ:
		return C.Z3_mk_eq(ctx.raw, lhs, rhs), ctx.err("Z3_mk_eq")
	case wlee.LT:
		return C.Z3_mk_lt(ctx.raw, lhs, rhs), ctx.err("Z3_mk_lt")
	case wlee.LE:
		return C.Z3_mk_le(ctx.raw, lhs, rhs), ctx.err("Z3_mk_le")
	default:
		return nil, fmt.Errorf("z3.Context.toBinaryAST: unexpected operation: %s", expr.Op)
	}
}

func (ctx *Context) intSort() (C.Z3_sort, error) {
	return C.Z3_mk_int_sort(ctx.raw), ctx.err("Z3_mk_int_sort")
}

func (ctx *Context) astToString(ast C.Z3_ast) string {
	return C.GoString(C.Z3_ast_to_string(ctx.raw, ast))
}

// Error represents an error from the Z3 API.
type Error struct {
	Code    int
	Op      string
	Message string
}

// Error returns the error as a string.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Op, e.Message, e.Code)
}

// Possible error codes.
const (
	ErrorCodeOK = iota
	ErrorCodeSortError
	ErrorCodeIOB
	ErrorCodeInvalidArg
	ErrorCodeParserError
	ErrorCodeNoParser
	ErrorCodeInvalidPattern
	ErrorCodeMemoutFail
	ErrorCodeFileAccessError
	ErrorCodeInternalFatal
	ErrorCodeInvalidUsage
	ErrorCodeDecRefError
	ErrorCodeException
)

// Stats holds counters for a solver.
type Stats struct {
	ContextN  int
	SolveN    int
	SolveTime time.Duration
}
