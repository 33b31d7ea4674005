package ast

import (
	"bytes"
	"strconv"
	"strings"
)

// Format returns the source representation of node. The output can be parsed
// back into an equivalent tree.
func Format(node Node) string {
	var p printer
	p.node(node)
	return p.buf.String()
}

type printer struct {
	buf    bytes.Buffer
	indent int
}

func (p *printer) node(node Node) {
	switch node := node.(type) {
	case Expr:
		p.expr(node, false)
	case Stmt:
		p.stmt(node)
	}
}

func (p *printer) expr(expr Expr, nested bool) {
	switch expr := expr.(type) {
	case *IntLit:
		p.buf.WriteString(strconv.FormatInt(expr.Value, 10))
	case *BoolLit:
		p.buf.WriteString(strconv.FormatBool(expr.Value))
	case *Ident:
		p.buf.WriteString(expr.Name)
	case *ArithExpr:
		p.list(expr.Op, expr.Args, nested)
	case *RelExpr:
		p.list(expr.Op, []Expr{expr.X, expr.Y}, nested)
	case *BoolExpr:
		if expr.IsUnary() {
			p.buf.WriteString("not ")
			p.expr(expr.Args[0], true)
			return
		}
		p.list(expr.Op, expr.Args, nested)
	default:
		p.buf.WriteString("<nil>")
	}
}

// list writes operands joined by op. Compound operands are parenthesized.
func (p *printer) list(op Op, args []Expr, nested bool) {
	if nested {
		p.buf.WriteByte('(')
	}
	for i, arg := range args {
		if i > 0 {
			p.buf.WriteByte(' ')
			p.buf.WriteString(op.String())
			p.buf.WriteByte(' ')
		}
		p.expr(arg, true)
	}
	if nested {
		p.buf.WriteByte(')')
	}
}

func (p *printer) stmt(stmt Stmt) {
	switch stmt := stmt.(type) {
	case *AssignStmt:
		p.buf.WriteString(stmt.Lhs.Name)
		p.buf.WriteString(" := ")
		p.expr(stmt.Rhs, false)
	case *HavocStmt:
		names := make([]string, len(stmt.Vars))
		for i, v := range stmt.Vars {
			names[i] = v.Name
		}
		p.buf.WriteString("havoc ")
		p.buf.WriteString(strings.Join(names, ", "))
	case *AssumeStmt:
		p.buf.WriteString("assume ")
		p.expr(stmt.Cond, false)
	case *AssertStmt:
		p.buf.WriteString("assert ")
		p.expr(stmt.Cond, false)
	case *SkipStmt:
		p.buf.WriteString("skip")
	case *PrintStateStmt:
		p.buf.WriteString("print_state")
	case *IfStmt:
		p.buf.WriteString("if ")
		p.expr(stmt.Cond, false)
		p.buf.WriteString(" then ")

		// Brace a nested else-less if so the else binds to this statement.
		if inner, ok := stmt.Then.(*IfStmt); ok && stmt.HasElse() && !inner.HasElse() {
			p.block(&StmtList{List: []Stmt{inner}})
		} else {
			p.body(stmt.Then)
		}

		if stmt.HasElse() {
			p.buf.WriteString(" else ")
			p.body(stmt.Else)
		}
	case *WhileStmt:
		p.buf.WriteString("while ")
		p.expr(stmt.Cond, false)
		p.buf.WriteString(" do ")
		p.body(stmt.Body)
	case *BlockStmt:
		p.block(stmt.Body)
	case *StmtList:
		for i, s := range stmt.List {
			if i > 0 {
				p.buf.WriteString(";")
				p.newline()
			}
			p.stmt(s)
		}
	default:
		p.buf.WriteString("<nil>")
	}
}

// body writes a branch or loop body, bracing it if it holds several statements.
func (p *printer) body(stmt Stmt) {
	if list, ok := stmt.(*StmtList); ok && len(list.List) != 1 {
		p.block(list)
		return
	} else if ok {
		stmt = list.List[0]
	}
	p.stmt(stmt)
}

func (p *printer) block(list *StmtList) {
	p.buf.WriteByte('{')
	p.indent++
	p.newline()
	if list != nil {
		p.stmt(list)
	}
	p.indent--
	p.newline()
	p.buf.WriteByte('}')
}

func (p *printer) newline() {
	p.buf.WriteByte('\n')
	for i := 0; i < p.indent; i++ {
		p.buf.WriteString("  ")
	}
}
