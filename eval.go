package wlee

import (
	"fmt"

	"github.com/ashmorer/wlee/ast"
)

// Env represents a read-only mapping of program variables to symbolic values.
type Env interface {
	Lookup(name string) (Expr, bool)
}

// UnboundVariableError is returned when an expression refers to a variable
// that has no value in the environment.
type UnboundVariableError struct {
	Name string
	Pos  ast.Pos
}

// Error returns the error as a string.
func (e *UnboundVariableError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Pos, ErrUnboundVariable, e.Name)
}

// Unwrap returns ErrUnboundVariable.
func (e *UnboundVariableError) Unwrap() error { return ErrUnboundVariable }

// Eval returns the symbolic value of expr under env. It has no side effects:
// variables missing from env are reported as *UnboundVariableError.
func Eval(expr ast.Expr, env Env) (Expr, error) {
	switch expr := expr.(type) {
	case *ast.IntLit:
		return NewConstantExpr(expr.Value), nil
	case *ast.BoolLit:
		return NewBoolConstantExpr(expr.Value), nil
	case *ast.Ident:
		value, ok := env.Lookup(expr.Name)
		if !ok {
			return nil, &UnboundVariableError{Name: expr.Name, Pos: expr.NamePos}
		}
		return value, nil
	case *ast.ArithExpr:
		return evalArithExpr(expr, env)
	case *ast.RelExpr:
		return evalRelExpr(expr, env)
	case *ast.BoolExpr:
		return evalBoolExpr(expr, env)
	default:
		return nil, fmt.Errorf("wlee.Eval: unexpected expression type: %T", expr)
	}
}

func evalArithExpr(expr *ast.ArithExpr, env Env) (Expr, error) {
	if len(expr.Args) == 0 {
		return nil, fmt.Errorf("%s: operator %s without operands", expr.Pos(), expr.Op)
	}

	var op BinaryOp
	switch expr.Op {
	case ast.ADD:
		op = ADD
	case ast.SUB:
		op = SUB
	case ast.MUL:
		op = MUL
	case ast.QUO:
		op = DIV
	default:
		return nil, fmt.Errorf("%s: unexpected arithmetic operator: %s", expr.Pos(), expr.Op)
	}

	// Operands are combined left to right: a - b - c == (a - b) - c.
	var result Expr
	for _, arg := range expr.Args {
		x, err := evalSort(arg, env, SortInt)
		if err != nil {
			return nil, err
		} else if result == nil {
			result = x
			continue
		}
		result = NewBinaryExpr(op, result, x)
	}
	return result, nil
}

func evalRelExpr(expr *ast.RelExpr, env Env) (Expr, error) {
	var op BinaryOp
	switch expr.Op {
	case ast.LEQ:
		op = LE
	case ast.LSS:
		op = LT
	case ast.EQL:
		op = EQ
	case ast.GEQ:
		op = GE
	case ast.GTR:
		op = GT
	default:
		return nil, fmt.Errorf("%s: unexpected relational operator: %s", expr.Pos(), expr.Op)
	}

	x, err := evalSort(expr.X, env, SortInt)
	if err != nil {
		return nil, err
	}
	y, err := evalSort(expr.Y, env, SortInt)
	if err != nil {
		return nil, err
	}
	return NewBinaryExpr(op, x, y), nil
}

func evalBoolExpr(expr *ast.BoolExpr, env Env) (Expr, error) {
	if expr.Op == ast.NOT {
		if len(expr.Args) != 1 {
			return nil, fmt.Errorf("%s: not takes one operand, got %d", expr.Pos(), len(expr.Args))
		}
		x, err := evalSort(expr.Args[0], env, SortBool)
		if err != nil {
			return nil, err
		}
		return NewNotExpr(x), nil
	}

	var op BinaryOp
	switch expr.Op {
	case ast.AND:
		op = AND
	case ast.OR:
		op = OR
	default:
		return nil, fmt.Errorf("%s: unexpected boolean operator: %s", expr.Pos(), expr.Op)
	}
	if len(expr.Args) == 0 {
		return nil, fmt.Errorf("%s: operator %s without operands", expr.Pos(), expr.Op)
	}

	var result Expr
	for _, arg := range expr.Args {
		x, err := evalSort(arg, env, SortBool)
		if err != nil {
			return nil, err
		} else if result == nil {
			result = x
			continue
		}
		result = NewBinaryExpr(op, result, x)
	}
	return result, nil
}

// evalSort evaluates expr and ensures the result has the given sort.
func evalSort(expr ast.Expr, env Env, sort Sort) (Expr, error) {
	x, err := Eval(expr, env)
	if err != nil {
		return nil, err
	} else if got := ExprSort(x); got != sort {
		return nil, fmt.Errorf("%s: %w: expected %s, got %s: %s", expr.Pos(), ErrSortMismatch, sort, got, expr)
	}
	return x, nil
}

// MapEnv is an Env backed by a Go map.
type MapEnv map[string]Expr

// Lookup returns the value bound to name.
func (m MapEnv) Lookup(name string) (Expr, bool) {
	expr, ok := m[name]
	return expr, ok
}
