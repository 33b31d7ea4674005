// Package wlee implements a symbolic execution engine for WLang programs.
package wlee

import (
	"errors"
	"fmt"
)

// Sort represents the type of a symbolic expression.
type Sort int

// Expression sorts.
const (
	SortInt Sort = iota + 1
	SortBool
)

// String returns the SMT-LIB name of the sort.
func (s Sort) String() string {
	switch s {
	case SortInt:
		return "Int"
	case SortBool:
		return "Bool"
	default:
		return fmt.Sprintf("Sort<%d>", int(s))
	}
}

var (
	ErrSolverTimeout       = errors.New("Solver timeout")
	ErrSolverCanceled      = errors.New("Solver canceled")
	ErrSolverResourceLimit = errors.New("Solver resource limit")
	ErrSolverUnknown       = errors.New("Solver unknown error")

	ErrUnboundVariable = errors.New("unbound variable")
	ErrSortMismatch    = errors.New("sort mismatch")
)

// assert panics if condition is false.
func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assert: "+format, args...))
	}
}
