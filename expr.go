package wlee

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// ErrDivisionByZero is returned when a concrete evaluation divides by zero.
var ErrDivisionByZero = errors.New("division by zero")

// Expr represents a symbolic expression.
type Expr interface {
	String() string
	expr()
}

func (*BinaryExpr) expr()   {}
func (*ConstantExpr) expr() {}
func (*NotExpr) expr()      {}
func (*VarExpr) expr()      {}

// ExprSort returns the sort of the expression.
func ExprSort(expr Expr) Sort {
	switch expr := expr.(type) {
	case *ConstantExpr:
		return expr.Sort
	case *VarExpr:
		return expr.Sort
	case *NotExpr:
		return SortBool
	case *BinaryExpr:
		if expr.Op.IsArithmetic() {
			return SortInt
		}
		return SortBool
	default:
		panic("unreachable")
	}
}

// BinaryOp represents a binary expression operation.
type BinaryOp int

// BinaryExpr operations.
const (
	arithmetic_op_begin = BinaryOp(iota)
	ADD
	SUB
	MUL
	DIV
	arithmetic_op_end

	logical_op_begin
	AND
	OR
	logical_op_end

	compare_op_begin
	EQ
	NE
	LT
	LE
	GT
	GE
	compare_op_end
)

var binaryOps = [...]string{
	ADD: "+",
	SUB: "-",
	MUL: "*",
	DIV: "div",
	AND: "and",
	OR:  "or",
	EQ:  "=",
	NE:  "distinct",
	LT:  "<",
	LE:  "<=",
	GT:  ">",
	GE:  ">=",
}

// String returns the SMT-LIB name of the operation.
func (op BinaryOp) String() string {
	if op >= 0 && op < BinaryOp(len(binaryOps)) && binaryOps[op] != "" {
		return binaryOps[op]
	}
	return fmt.Sprintf("BinaryOp<%d>", op)
}

// IsArithmetic returns true if op is an integer operator.
func (op BinaryOp) IsArithmetic() bool {
	return op > arithmetic_op_begin && op < arithmetic_op_end
}

// IsLogical returns true if op is a boolean connective.
func (op BinaryOp) IsLogical() bool {
	return op > logical_op_begin && op < logical_op_end
}

// IsCompare returns true if op is a comparison operator.
func (op BinaryOp) IsCompare() bool {
	return op > compare_op_begin && op < compare_op_end
}

// BinaryExpr represents an operation on two expressions.
//
// NE, GT & GE are never stored. They are rewritten by NewBinaryExpr into
// negated or reversed forms of EQ, LT & LE.
type BinaryExpr struct {
	Op  BinaryOp
	LHS Expr
	RHS Expr
}

// NewBinaryExpr returns a new expression for op applied to lhs & rhs.
// Constant operands are folded where the result is representable.
func NewBinaryExpr(op BinaryOp, lhs, rhs Expr) Expr {
	switch {
	case op.IsArithmetic():
		assert(ExprSort(lhs) == SortInt && ExprSort(rhs) == SortInt, "arithmetic on non-integer: %s %s %s", lhs, op, rhs)
	case op.IsLogical():
		assert(ExprSort(lhs) == SortBool && ExprSort(rhs) == SortBool, "connective on non-boolean: %s %s %s", lhs, op, rhs)
	case op == EQ || op == NE:
		assert(ExprSort(lhs) == ExprSort(rhs), "equality sort mismatch: %s %s %s", lhs, op, rhs)
	default:
		assert(ExprSort(lhs) == SortInt && ExprSort(rhs) == SortInt, "comparison on non-integer: %s %s %s", lhs, op, rhs)
	}

	switch op {
	// Arithmetic operators
	case ADD:
		return newAddExpr(lhs, rhs)
	case SUB:
		return newSubExpr(lhs, rhs)
	case MUL:
		return newMulExpr(lhs, rhs)
	case DIV:
		return newDivExpr(lhs, rhs)

	// Logical operators
	case AND:
		return newAndExpr(lhs, rhs)
	case OR:
		return newOrExpr(lhs, rhs)

	// Comparison operators
	case EQ:
		return newEqExpr(lhs, rhs)
	case NE:
		return NewNotExpr(newEqExpr(lhs, rhs))
	case LT:
		return newLtExpr(lhs, rhs)
	case GT:
		return newLtExpr(rhs, lhs) // reverse
	case LE:
		return newLeExpr(lhs, rhs)
	case GE:
		return newLeExpr(rhs, lhs) // reverse

	default:
		panic("unreachable")
	}
}

// String returns the SMT-LIB representation of the expression.
func (e *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Op, e.LHS, e.RHS)
}

// newAddExpr returns the expression representing the sum of lhs & rhs.
func newAddExpr(lhs, rhs Expr) Expr {
	// Move constant expression to left hand side.
	if !IsConstantExpr(lhs) && IsConstantExpr(rhs) {
		lhs, rhs = rhs, lhs
	}

	if lhs, ok := lhs.(*ConstantExpr); ok {
		if lhs.Value == 0 {
			return rhs
		} else if rhs, ok := rhs.(*ConstantExpr); ok {
			if sum, ok := lhs.Add(rhs); ok {
				return sum
			}
			return &BinaryExpr{Op: ADD, LHS: lhs, RHS: rhs}
		}

		// Merge constant LHS with constant in RHS binary expression.
		if rhs, ok := rhs.(*BinaryExpr); ok && rhs.Op == ADD {
			if y, ok := rhs.LHS.(*ConstantExpr); ok {
				if sum, ok := lhs.Add(y); ok { // X + (Y+z) == (X+Y) + z
					return newAddExpr(sum, rhs.RHS)
				}
			}
		}
	}

	return &BinaryExpr{Op: ADD, LHS: lhs, RHS: rhs}
}

// newSubExpr returns an expression representing the difference of lhs & rhs.
func newSubExpr(lhs, rhs Expr) Expr {
	// Subtracting a value from itself is zero.
	if CompareExpr(lhs, rhs) == 0 {
		return NewConstantExpr(0)
	}

	if rhs, ok := rhs.(*ConstantExpr); ok {
		if rhs.Value == 0 {
			return lhs
		} else if lhs, ok := lhs.(*ConstantExpr); ok {
			if diff, ok := lhs.Sub(rhs); ok {
				return diff
			}
			return &BinaryExpr{Op: SUB, LHS: lhs, RHS: rhs}
		}

		// Refactor to addition with the negated constant on the left.
		if neg, ok := NewConstantExpr(0).Sub(rhs); ok {
			return newAddExpr(neg, lhs)
		}
	}

	return &BinaryExpr{Op: SUB, LHS: lhs, RHS: rhs}
}

// newMulExpr returns an expression that represents the product of lhs & rhs.
func newMulExpr(lhs, rhs Expr) Expr {
	// If constant is on right side, swap to left side.
	if IsConstantExpr(rhs) && !IsConstantExpr(lhs) {
		lhs, rhs = rhs, lhs
	}

	if lhs, ok := lhs.(*ConstantExpr); ok {
		switch lhs.Value {
		case 0:
			return lhs
		case 1:
			return rhs
		}
		if rhs, ok := rhs.(*ConstantExpr); ok {
			if product, ok := lhs.Mul(rhs); ok {
				return product
			}
		}
	}

	return &BinaryExpr{Op: MUL, LHS: lhs, RHS: rhs}
}

// newDivExpr returns an expression representing integer division of lhs by rhs.
// Division by a constant zero is never folded.
func newDivExpr(lhs, rhs Expr) Expr {
	if rhs, ok := rhs.(*ConstantExpr); ok {
		if rhs.Value == 1 {
			return lhs
		} else if lhs, ok := lhs.(*ConstantExpr); ok {
			if quo, err := lhs.Div(rhs); err == nil {
				return quo
			}
		}
	}
	return &BinaryExpr{Op: DIV, LHS: lhs, RHS: rhs}
}

// newAndExpr returns the conjunction of lhs & rhs.
func newAndExpr(lhs, rhs Expr) Expr {
	if !IsConstantExpr(lhs) && IsConstantExpr(rhs) {
		lhs, rhs = rhs, lhs
	}

	if c, ok := lhs.(*ConstantExpr); ok {
		if c.IsFalse() {
			return c
		}
		return rhs
	} else if CompareExpr(lhs, rhs) == 0 {
		return lhs
	}
	return &BinaryExpr{Op: AND, LHS: lhs, RHS: rhs}
}

// newOrExpr returns the disjunction of lhs & rhs.
func newOrExpr(lhs, rhs Expr) Expr {
	if !IsConstantExpr(lhs) && IsConstantExpr(rhs) {
		lhs, rhs = rhs, lhs
	}

	if c, ok := lhs.(*ConstantExpr); ok {
		if c.IsTrue() {
			return c
		}
		return rhs
	} else if CompareExpr(lhs, rhs) == 0 {
		return lhs
	}
	return &BinaryExpr{Op: OR, LHS: lhs, RHS: rhs}
}

// newEqExpr returns an expression that is true when lhs & rhs are equal.
func newEqExpr(lhs, rhs Expr) Expr {
	if CompareExpr(lhs, rhs) == 0 {
		return NewBoolConstantExpr(true)
	}

	if !IsConstantExpr(lhs) && IsConstantExpr(rhs) {
		lhs, rhs = rhs, lhs
	}

	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok {
			return NewBoolConstantExpr(lhs.Value == rhs.Value)
		}

		// Comparisons against boolean constants reduce to the operand.
		if lhs.Sort == SortBool {
			if lhs.IsTrue() {
				return rhs
			}
			return NewNotExpr(rhs)
		}
	}

	return &BinaryExpr{Op: EQ, LHS: lhs, RHS: rhs}
}

func newLtExpr(lhs, rhs Expr) Expr {
	if CompareExpr(lhs, rhs) == 0 {
		return NewBoolConstantExpr(false)
	}
	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok {
			return NewBoolConstantExpr(lhs.Value < rhs.Value)
		}
	}
	return &BinaryExpr{Op: LT, LHS: lhs, RHS: rhs}
}

func newLeExpr(lhs, rhs Expr) Expr {
	if CompareExpr(lhs, rhs) == 0 {
		return NewBoolConstantExpr(true)
	}
	if lhs, ok := lhs.(*ConstantExpr); ok {
		if rhs, ok := rhs.(*ConstantExpr); ok {
			return NewBoolConstantExpr(lhs.Value <= rhs.Value)
		}
	}
	return &BinaryExpr{Op: LE, LHS: lhs, RHS: rhs}
}

// NotExpr represents a boolean negation.
type NotExpr struct {
	Expr Expr
}

// NewNotExpr returns the negation of expr. Constants and double negations are folded.
func NewNotExpr(expr Expr) Expr {
	assert(ExprSort(expr) == SortBool, "negation of non-boolean: %s", expr)

	switch expr := expr.(type) {
	case *ConstantExpr:
		return NewBoolConstantExpr(expr.IsFalse())
	case *NotExpr:
		return expr.Expr
	}
	return &NotExpr{Expr: expr}
}

// String returns the SMT-LIB representation of the expression.
func (e *NotExpr) String() string {
	return fmt.Sprintf("(not %s)", e.Expr)
}

// VarExpr represents a free symbolic variable.
type VarExpr struct {
	Name string
	Sort Sort
}

// NewVarExpr returns a new symbolic variable.
func NewVarExpr(name string, sort Sort) *VarExpr {
	return &VarExpr{Name: name, Sort: sort}
}

// String returns the variable name.
func (e *VarExpr) String() string { return e.Name }

// ConstantExpr represents an integer or boolean constant.
// Booleans are stored as 1 & 0.
type ConstantExpr struct {
	Value int64
	Sort  Sort
}

// NewConstantExpr returns a new integer constant.
func NewConstantExpr(value int64) *ConstantExpr {
	return &ConstantExpr{Value: value, Sort: SortInt}
}

// NewBoolConstantExpr returns a new boolean constant.
func NewBoolConstantExpr(value bool) *ConstantExpr {
	if value {
		return &ConstantExpr{Value: 1, Sort: SortBool}
	}
	return &ConstantExpr{Value: 0, Sort: SortBool}
}

// String returns the string representation of the constant.
func (e *ConstantExpr) String() string {
	if e.Sort == SortBool {
		return strconv.FormatBool(e.IsTrue())
	}
	return strconv.FormatInt(e.Value, 10)
}

// IsTrue returns true if the expression is a boolean true.
func (e *ConstantExpr) IsTrue() bool {
	return e.Sort == SortBool && e.Value != 0
}

// IsFalse returns true if the expression is a boolean false.
func (e *ConstantExpr) IsFalse() bool {
	return e.Sort == SortBool && e.Value == 0
}

// Add returns the sum of e & other. Returns false on overflow.
func (e *ConstantExpr) Add(other *ConstantExpr) (*ConstantExpr, bool) {
	a, b := e.Value, other.Value
	sum := a + b
	if (a > 0 && b > 0 && sum < 0) || (a < 0 && b < 0 && sum >= 0) {
		return nil, false
	}
	return NewConstantExpr(sum), true
}

// Sub returns the difference of e & other. Returns false on overflow.
func (e *ConstantExpr) Sub(other *ConstantExpr) (*ConstantExpr, bool) {
	a, b := e.Value, other.Value
	diff := a - b
	if (a >= 0 && b < 0 && diff < 0) || (a < 0 && b > 0 && diff >= 0) {
		return nil, false
	}
	return NewConstantExpr(diff), true
}

// Mul returns the product of e & other. Returns false on overflow.
func (e *ConstantExpr) Mul(other *ConstantExpr) (*ConstantExpr, bool) {
	a, b := e.Value, other.Value
	if a == 0 || b == 0 {
		return NewConstantExpr(0), true
	} else if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return nil, false
	}
	product := a * b
	if product/b != a {
		return nil, false
	}
	return NewConstantExpr(product), true
}

// Div returns the Euclidean quotient of e & other: the remainder is never
// negative, matching SMT-LIB integer division.
func (e *ConstantExpr) Div(other *ConstantExpr) (*ConstantExpr, error) {
	a, b := e.Value, other.Value
	if b == 0 {
		return nil, ErrDivisionByZero
	} else if a == math.MinInt64 && b == -1 {
		return nil, fmt.Errorf("integer overflow: %d div %d", a, b)
	}

	q, r := a/b, a%b
	if r < 0 {
		if b > 0 {
			q--
		} else {
			q++
		}
	}
	return NewConstantExpr(q), nil
}

// IsConstantExpr returns true if expr is an instance of ConstantExpr.
func IsConstantExpr(expr Expr) bool {
	_, ok := expr.(*ConstantExpr)
	return ok
}

// IsConstantTrue returns true if expr is an instance of ConstantExpr and is true.
func IsConstantTrue(expr Expr) bool {
	tmp, ok := expr.(*ConstantExpr)
	return ok && tmp.IsTrue()
}

// IsConstantFalse returns true if expr is an instance of ConstantExpr and is false.
func IsConstantFalse(expr Expr) bool {
	tmp, ok := expr.(*ConstantExpr)
	return ok && tmp.IsFalse()
}

// CompareExpr returns an integer comparing two expressions.
// The result will be 0 if a==b, -1 if a < b, and +1 if a > b.
func CompareExpr(a, b Expr) int {
	if a == nil && b != nil {
		return -1
	} else if a != nil && b == nil {
		return 1
	} else if a == nil && b == nil {
		return 0
	}

	if ak, bk := exprKind(a), exprKind(b); ak < bk {
		return -1
	} else if ak > bk {
		return 1
	}

	switch a := a.(type) {
	case *ConstantExpr:
		return compareConstantExpr(a, b.(*ConstantExpr))
	case *VarExpr:
		return compareVarExpr(a, b.(*VarExpr))
	case *NotExpr:
		return CompareExpr(a.Expr, b.(*NotExpr).Expr)
	case *BinaryExpr:
		return compareBinaryExpr(a, b.(*BinaryExpr))
	default:
		panic("unreachable")
	}
}

func compareConstantExpr(a, b *ConstantExpr) int {
	if a.Sort < b.Sort {
		return -1
	} else if a.Sort > b.Sort {
		return 1
	}

	if a.Value < b.Value {
		return -1
	} else if a.Value > b.Value {
		return 1
	}
	return 0
}

func compareVarExpr(a, b *VarExpr) int {
	if a.Name < b.Name {
		return -1
	} else if a.Name > b.Name {
		return 1
	}
	return int(a.Sort) - int(b.Sort)
}

func compareBinaryExpr(a, b *BinaryExpr) int {
	if a.Op < b.Op {
		return -1
	} else if a.Op > b.Op {
		return 1
	}
	if cmp := CompareExpr(a.LHS, b.LHS); cmp != 0 {
		return cmp
	}
	return CompareExpr(a.RHS, b.RHS)
}

// exprKind returns a numeric value for the type of expression.
// Only used internally for equality checks and sorting.
func exprKind(expr Expr) int {
	switch expr.(type) {
	case *ConstantExpr:
		return 1
	case *VarExpr:
		return 2
	case *NotExpr:
		return 3
	case *BinaryExpr:
		return 4
	default:
		panic("unreachable")
	}
}

// ExprVisitor represents a visitor that can be passed to WalkExpr().
type ExprVisitor interface {
	// Executed for every visited node. Children are skipped if nil is returned.
	Visit(expr Expr) ExprVisitor
}

// WalkExpr traverses expr in depth-first order. Expressions are shared
// between states so the tree is never modified.
func WalkExpr(v ExprVisitor, expr Expr) {
	if v = v.Visit(expr); v == nil {
		return
	}

	switch expr := expr.(type) {
	case *BinaryExpr:
		WalkExpr(v, expr.LHS)
		WalkExpr(v, expr.RHS)
	case *NotExpr:
		WalkExpr(v, expr.Expr)
	case *ConstantExpr, *VarExpr:
		// nop
	default:
		panic("unreachable")
	}
}

// FindVars returns all symbolic variables in the expressions, sorted by name.
func FindVars(exprs ...Expr) []*VarExpr {
	v := &varExprVisitor{m: make(map[string]*VarExpr)}
	for _, expr := range exprs {
		WalkExpr(v, expr)
	}

	a := make([]*VarExpr, 0, len(v.m))
	for _, expr := range v.m {
		a = append(a, expr)
	}
	sort.Slice(a, func(i, j int) bool { return compareVarExpr(a[i], a[j]) == -1 })

	return a
}

type varExprVisitor struct {
	m map[string]*VarExpr
}

func (v *varExprVisitor) Visit(expr Expr) ExprVisitor {
	if expr, ok := expr.(*VarExpr); ok {
		if _, ok := v.m[expr.Name]; !ok {
			v.m[expr.Name] = expr
		}
	}
	return v
}

// ExprEvaluator evaluates expressions using known variable values.
type ExprEvaluator struct {
	m map[string]*ConstantExpr // mapping of variable name to value
}

// NewExprEvaluator returns a new instance of ExprEvaluator with the given variable values.
func NewExprEvaluator(values map[string]*ConstantExpr) *ExprEvaluator {
	return &ExprEvaluator{m: values}
}

// Evaluate evaluates expr to a constant expression. Returns an error if an
// unknown variable is encountered or a divisor evaluates to zero.
func (ee *ExprEvaluator) Evaluate(expr Expr) (*ConstantExpr, error) {
	switch expr := expr.(type) {
	case *ConstantExpr:
		return expr, nil
	case *VarExpr:
		value, ok := ee.m[expr.Name]
		if !ok {
			return nil, fmt.Errorf("variable not bound: %s", expr.Name)
		}
		return value, nil
	case *NotExpr:
		x, err := ee.Evaluate(expr.Expr)
		if err != nil {
			return nil, err
		}
		return NewNotExpr(x).(*ConstantExpr), nil
	case *BinaryExpr:
		lhs, err := ee.Evaluate(expr.LHS)
		if err != nil {
			return nil, err
		}
		rhs, err := ee.Evaluate(expr.RHS)
		if err != nil {
			return nil, err
		}

		if expr.Op == DIV {
			return lhs.Div(rhs)
		}
		result, ok := NewBinaryExpr(expr.Op, lhs, rhs).(*ConstantExpr)
		if !ok {
			return nil, fmt.Errorf("integer overflow: %s", expr)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("invalid expression type: %T", expr)
	}
}
