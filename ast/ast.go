// Package ast declares the types used to represent syntax trees for WLang programs.
package ast

import (
	"fmt"
)

// Pos represents a line/column position in the source text. Lines and
// columns are 1-based. The zero value is an invalid position.
type Pos struct {
	Line   int
	Column int
}

// IsValid returns true if the position is set.
func (p Pos) IsValid() bool { return p.Line > 0 }

// String returns the position formatted as "line:column".
func (p Pos) String() string {
	if !p.IsValid() {
		return "-"
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Op represents an operator in an expression.
type Op int

// Expression operators.
const (
	ILLEGAL Op = iota

	arith_op_begin
	ADD // +
	SUB // -
	MUL // *
	QUO // /
	arith_op_end

	rel_op_begin
	LEQ // <=
	LSS // <
	EQL // =
	GEQ // >=
	GTR // >
	rel_op_end

	bool_op_begin
	AND // and
	OR  // or
	NOT // not
	bool_op_end
)

var ops = [...]string{
	ILLEGAL: "ILLEGAL",
	ADD:     "+",
	SUB:     "-",
	MUL:     "*",
	QUO:     "/",
	LEQ:     "<=",
	LSS:     "<",
	EQL:     "=",
	GEQ:     ">=",
	GTR:     ">",
	AND:     "and",
	OR:      "or",
	NOT:     "not",
}

// String returns the source representation of the operator.
func (op Op) String() string {
	if op >= 0 && int(op) < len(ops) && ops[op] != "" {
		return ops[op]
	}
	return fmt.Sprintf("Op<%d>", int(op))
}

// IsArithmetic returns true if op is an arithmetic operator.
func (op Op) IsArithmetic() bool { return op > arith_op_begin && op < arith_op_end }

// IsRelational returns true if op is a relational operator.
func (op Op) IsRelational() bool { return op > rel_op_begin && op < rel_op_end }

// IsBoolean returns true if op is a boolean connective.
func (op Op) IsBoolean() bool { return op > bool_op_begin && op < bool_op_end }

// Node represents any node in the syntax tree.
type Node interface {
	Pos() Pos
	String() string
}

// Expr represents an arithmetic or boolean expression node.
type Expr interface {
	Node
	exprNode()
}

// Stmt represents a statement node.
type Stmt interface {
	Node
	stmtNode()
}

func (*IntLit) exprNode()    {}
func (*BoolLit) exprNode()   {}
func (*Ident) exprNode()     {}
func (*ArithExpr) exprNode() {}
func (*RelExpr) exprNode()   {}
func (*BoolExpr) exprNode()  {}

func (*AssignStmt) stmtNode()     {}
func (*HavocStmt) stmtNode()      {}
func (*AssumeStmt) stmtNode()     {}
func (*AssertStmt) stmtNode()     {}
func (*SkipStmt) stmtNode()       {}
func (*PrintStateStmt) stmtNode() {}
func (*IfStmt) stmtNode()         {}
func (*WhileStmt) stmtNode()      {}
func (*StmtList) stmtNode()       {}
func (*BlockStmt) stmtNode()      {}

// IntLit represents an integer constant.
type IntLit struct {
	ValuePos Pos
	Value    int64
}

// BoolLit represents the constants "true" and "false".
type BoolLit struct {
	ValuePos Pos
	Value    bool
}

// Ident represents a reference to a program variable.
type Ident struct {
	NamePos Pos
	Name    string
}

// ArithExpr represents an arithmetic operation over two or more operands.
// Operands are combined left to right.
type ArithExpr struct {
	OpPos Pos
	Op    Op
	Args  []Expr
}

// RelExpr represents a comparison between two arithmetic expressions.
type RelExpr struct {
	OpPos Pos
	Op    Op
	X     Expr
	Y     Expr
}

// BoolExpr represents a boolean connective. AND & OR take two or more
// operands, NOT takes exactly one.
type BoolExpr struct {
	OpPos Pos
	Op    Op
	Args  []Expr
}

// IsUnary returns true if the expression is a negation.
func (e *BoolExpr) IsUnary() bool { return e.Op == NOT }

// AssignStmt represents "x := e".
type AssignStmt struct {
	Lhs *Ident
	Rhs Expr
}

// HavocStmt represents "havoc x, y, ...".
type HavocStmt struct {
	Havoc Pos
	Vars  []*Ident
}

// AssumeStmt represents "assume c".
type AssumeStmt struct {
	Assume Pos
	Cond   Expr
}

// AssertStmt represents "assert c".
type AssertStmt struct {
	Assert Pos
	Cond   Expr
}

// SkipStmt represents "skip".
type SkipStmt struct {
	Skip Pos
}

// PrintStateStmt represents "print_state".
type PrintStateStmt struct {
	Print Pos
}

// IfStmt represents "if c then s1 [else s2]". Else is nil when absent.
type IfStmt struct {
	If   Pos
	Cond Expr
	Then Stmt
	Else Stmt
}

// HasElse returns true if the statement has an else branch.
func (s *IfStmt) HasElse() bool { return s.Else != nil }

// WhileStmt represents "while c do s".
type WhileStmt struct {
	While Pos
	Cond  Expr
	Body  Stmt
}

// StmtList represents a sequence of statements separated by semicolons.
type StmtList struct {
	List []Stmt
}

// BlockStmt represents a braced statement list.
type BlockStmt struct {
	Lbrace Pos
	Body   *StmtList
	Rbrace Pos
}

func (e *IntLit) Pos() Pos    { return e.ValuePos }
func (e *BoolLit) Pos() Pos   { return e.ValuePos }
func (e *Ident) Pos() Pos     { return e.NamePos }
func (e *ArithExpr) Pos() Pos { return posOf(e.Args, e.OpPos) }
func (e *RelExpr) Pos() Pos   { return e.X.Pos() }
func (e *BoolExpr) Pos() Pos {
	if e.IsUnary() {
		return e.OpPos
	}
	return posOf(e.Args, e.OpPos)
}

func (s *AssignStmt) Pos() Pos     { return s.Lhs.Pos() }
func (s *HavocStmt) Pos() Pos      { return s.Havoc }
func (s *AssumeStmt) Pos() Pos     { return s.Assume }
func (s *AssertStmt) Pos() Pos     { return s.Assert }
func (s *SkipStmt) Pos() Pos       { return s.Skip }
func (s *PrintStateStmt) Pos() Pos { return s.Print }
func (s *IfStmt) Pos() Pos         { return s.If }
func (s *WhileStmt) Pos() Pos      { return s.While }
func (s *BlockStmt) Pos() Pos      { return s.Lbrace }
func (s *StmtList) Pos() Pos {
	if len(s.List) == 0 {
		return Pos{}
	}
	return s.List[0].Pos()
}

func posOf(args []Expr, def Pos) Pos {
	if len(args) > 0 {
		return args[0].Pos()
	}
	return def
}

func (e *IntLit) String() string    { return Format(e) }
func (e *BoolLit) String() string   { return Format(e) }
func (e *Ident) String() string     { return Format(e) }
func (e *ArithExpr) String() string { return Format(e) }
func (e *RelExpr) String() string   { return Format(e) }
func (e *BoolExpr) String() string  { return Format(e) }

func (s *AssignStmt) String() string     { return Format(s) }
func (s *HavocStmt) String() string      { return Format(s) }
func (s *AssumeStmt) String() string     { return Format(s) }
func (s *AssertStmt) String() string     { return Format(s) }
func (s *SkipStmt) String() string       { return Format(s) }
func (s *PrintStateStmt) String() string { return Format(s) }
func (s *IfStmt) String() string         { return Format(s) }
func (s *WhileStmt) String() string      { return Format(s) }
func (s *StmtList) String() string       { return Format(s) }
func (s *BlockStmt) String() string      { return Format(s) }
