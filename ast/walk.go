package ast

// Visitor represents an object that can be passed to Walk(). Visit is invoked
// for every node; if it returns a non-nil visitor then the children of node
// are walked with it.
type Visitor interface {
	Visit(node Node) Visitor
}

// Walk traverses the tree rooted at node in depth-first order.
func Walk(v Visitor, node Node) {
	if v = v.Visit(node); v == nil {
		return
	}

	switch node := node.(type) {
	case *IntLit, *BoolLit, *Ident, *SkipStmt, *PrintStateStmt:
		// nop
	case *ArithExpr:
		walkExprs(v, node.Args)
	case *RelExpr:
		Walk(v, node.X)
		Walk(v, node.Y)
	case *BoolExpr:
		walkExprs(v, node.Args)
	case *AssignStmt:
		Walk(v, node.Lhs)
		Walk(v, node.Rhs)
	case *HavocStmt:
		for _, ident := range node.Vars {
			Walk(v, ident)
		}
	case *AssumeStmt:
		Walk(v, node.Cond)
	case *AssertStmt:
		Walk(v, node.Cond)
	case *IfStmt:
		Walk(v, node.Cond)
		Walk(v, node.Then)
		if node.Else != nil {
			Walk(v, node.Else)
		}
	case *WhileStmt:
		Walk(v, node.Cond)
		Walk(v, node.Body)
	case *BlockStmt:
		if node.Body != nil {
			Walk(v, node.Body)
		}
	case *StmtList:
		for _, stmt := range node.List {
			Walk(v, stmt)
		}
	default:
		panic("ast.Walk: unexpected node type")
	}
}

func walkExprs(v Visitor, exprs []Expr) {
	for _, expr := range exprs {
		Walk(v, expr)
	}
}

type inspector func(Node) bool

func (f inspector) Visit(node Node) Visitor {
	if f(node) {
		return f
	}
	return nil
}

// Inspect traverses the tree rooted at node, calling fn for each node.
// Children are skipped if fn returns false.
func Inspect(node Node, fn func(Node) bool) {
	Walk(inspector(fn), node)
}

// Idents returns the variables referenced by expr in order of first
// occurrence. Duplicates are removed.
func Idents(expr Expr) []*Ident {
	var a []*Ident
	seen := make(map[string]struct{})
	Inspect(expr, func(node Node) bool {
		if ident, ok := node.(*Ident); ok {
			if _, ok := seen[ident.Name]; !ok {
				seen[ident.Name] = struct{}{}
				a = append(a, ident)
			}
		}
		return true
	})
	return a
}
