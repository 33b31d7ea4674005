// Package parser implements a parser for WLang source text.
package parser

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ashmorer/wlee/ast"
)

// Error represents a syntax error at a position in the source.
type Error struct {
	Pos ast.Pos
	Msg string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
	}
	return e.Msg
}

// ParseFile reads and parses the WLang program at path.
func ParseFile(path string) (*ast.StmtList, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	prog, err := Parse(buf)
	if e, ok := err.(*Error); ok {
		return nil, fmt.Errorf("%s:%w", path, e)
	}
	return prog, err
}

// ParseString parses a WLang program from a string.
func ParseString(s string) (*ast.StmtList, error) {
	return Parse([]byte(s))
}

// MustParseString parses s and panics on error.
func MustParseString(s string) *ast.StmtList {
	prog, err := ParseString(s)
	if err != nil {
		panic(err)
	}
	return prog
}

// Parse parses a complete program. A program is a non-empty statement list.
func Parse(src []byte) (*ast.StmtList, error) {
	p := newParser(src)
	prog, err := p.parseStmtList()
	if err != nil {
		return nil, err
	} else if p.tok() != EOF {
		return nil, p.unexpected("';' or end of input")
	}
	return prog, nil
}

// ParseExpr parses a single arithmetic or boolean expression.
func ParseExpr(s string) (ast.Expr, error) {
	p := newParser([]byte(s))

	// Prefer a boolean reading; fall back to arithmetic for bare terms.
	expr, err := p.parseBExpr()
	if err == nil && p.tok() == EOF {
		return expr, nil
	}
	p.i = 0
	if aexpr, aerr := p.parseAExpr(); aerr == nil && p.tok() == EOF {
		return aexpr, nil
	}
	if err == nil {
		err = p.unexpected("end of input")
	}
	return nil, err
}

type item struct {
	pos ast.Pos
	tok Token
	lit string
}

// parser is a recursive descent parser over a pre-scanned token slice so
// that parenthesized conditions can be re-read as arithmetic.
type parser struct {
	items []item
	i     int
}

func newParser(src []byte) *parser {
	var p parser
	s := NewScanner(src)
	for {
		pos, tok, lit := s.Scan()
		p.items = append(p.items, item{pos: pos, tok: tok, lit: lit})
		if tok == EOF || tok == ILLEGAL {
			break
		}
	}
	return &p
}

func (p *parser) tok() Token   { return p.items[p.i].tok }
func (p *parser) pos() ast.Pos { return p.items[p.i].pos }
func (p *parser) lit() string  { return p.items[p.i].lit }

func (p *parser) next() {
	if p.i < len(p.items)-1 {
		p.i++
	}
}

func (p *parser) expect(tok Token) (ast.Pos, error) {
	pos := p.pos()
	if p.tok() != tok {
		return pos, p.unexpected(fmt.Sprintf("%q", tok.String()))
	}
	p.next()
	return pos, nil
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return &Error{Pos: p.pos(), Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) unexpected(exp string) error {
	switch p.tok() {
	case EOF:
		return p.errorf("unexpected end of input, expected %s", exp)
	case ILLEGAL:
		return p.errorf("illegal character %q", p.lit())
	default:
		return p.errorf("unexpected %q, expected %s", p.lit(), exp)
	}
}

func (p *parser) parseStmtList() (*ast.StmtList, error) {
	var list ast.StmtList
	for {
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		list.List = append(list.List, stmt)

		if p.tok() != SEMICOLON {
			return &list, nil
		}
		p.next()
	}
}

func (p *parser) parseStmt() (ast.Stmt, error) {
	pos := p.pos()
	switch p.tok() {
	case LBRACE:
		return p.parseBlockStmt()
	case SKIP:
		p.next()
		return &ast.SkipStmt{Skip: pos}, nil
	case PRINT_STATE:
		p.next()
		return &ast.PrintStateStmt{Print: pos}, nil
	case IDENT:
		return p.parseAssignStmt()
	case IF:
		return p.parseIfStmt()
	case WHILE:
		return p.parseWhileStmt()
	case ASSERT:
		p.next()
		cond, err := p.parseBExpr()
		if err != nil {
			return nil, err
		}
		return &ast.AssertStmt{Assert: pos, Cond: cond}, nil
	case ASSUME:
		p.next()
		cond, err := p.parseBExpr()
		if err != nil {
			return nil, err
		}
		return &ast.AssumeStmt{Assume: pos, Cond: cond}, nil
	case HAVOC:
		return p.parseHavocStmt()
	default:
		return nil, p.unexpected("statement")
	}
}

func (p *parser) parseBlockStmt() (*ast.BlockStmt, error) {
	lbrace, err := p.expect(LBRACE)
	if err != nil {
		return nil, err
	}
	body, err := p.parseStmtList()
	if err != nil {
		return nil, err
	}
	rbrace, err := p.expect(RBRACE)
	if err != nil {
		return nil, err
	}
	return &ast.BlockStmt{Lbrace: lbrace, Body: body, Rbrace: rbrace}, nil
}

func (p *parser) parseIdent() (*ast.Ident, error) {
	if p.tok() != IDENT {
		return nil, p.unexpected("variable name")
	}
	ident := &ast.Ident{NamePos: p.pos(), Name: p.lit()}
	p.next()
	return ident, nil
}

func (p *parser) parseAssignStmt() (*ast.AssignStmt, error) {
	lhs, err := p.parseIdent()
	if err != nil {
		return nil, err
	} else if _, err := p.expect(ASSIGN); err != nil {
		return nil, err
	}
	rhs, err := p.parseAExpr()
	if err != nil {
		return nil, err
	}
	return &ast.AssignStmt{Lhs: lhs, Rhs: rhs}, nil
}

func (p *parser) parseHavocStmt() (*ast.HavocStmt, error) {
	stmt := &ast.HavocStmt{Havoc: p.pos()}
	p.next()
	for {
		ident, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		stmt.Vars = append(stmt.Vars, ident)

		if p.tok() != COMMA {
			return stmt, nil
		}
		p.next()
	}
}

func (p *parser) parseIfStmt() (*ast.IfStmt, error) {
	stmt := &ast.IfStmt{If: p.pos()}
	p.next()

	var err error
	if stmt.Cond, err = p.parseBExpr(); err != nil {
		return nil, err
	} else if _, err = p.expect(THEN); err != nil {
		return nil, err
	} else if stmt.Then, err = p.parseStmt(); err != nil {
		return nil, err
	}

	// A dangling else binds to the nearest if.
	if p.tok() == ELSE {
		p.next()
		if stmt.Else, err = p.parseStmt(); err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

func (p *parser) parseWhileStmt() (*ast.WhileStmt, error) {
	stmt := &ast.WhileStmt{While: p.pos()}
	p.next()

	var err error
	if stmt.Cond, err = p.parseBExpr(); err != nil {
		return nil, err
	} else if _, err = p.expect(DO); err != nil {
		return nil, err
	} else if stmt.Body, err = p.parseStmt(); err != nil {
		return nil, err
	}
	return stmt, nil
}

// parseBExpr parses a disjunction of conjunctions.
func (p *parser) parseBExpr() (ast.Expr, error) {
	return p.parseBoolChain(OR, ast.OR, p.parseBTerm)
}

func (p *parser) parseBTerm() (ast.Expr, error) {
	return p.parseBoolChain(AND, ast.AND, p.parseBFactor)
}

func (p *parser) parseBoolChain(tok Token, op ast.Op, operand func() (ast.Expr, error)) (ast.Expr, error) {
	x, err := operand()
	if err != nil {
		return nil, err
	} else if p.tok() != tok {
		return x, nil
	}

	expr := &ast.BoolExpr{OpPos: p.pos(), Op: op, Args: []ast.Expr{x}}
	for p.tok() == tok {
		p.next()
		y, err := operand()
		if err != nil {
			return nil, err
		}
		expr.Args = append(expr.Args, y)
	}
	return expr, nil
}

func (p *parser) parseBFactor() (ast.Expr, error) {
	if p.tok() == NOT {
		pos := p.pos()
		p.next()
		x, err := p.parseBAtom()
		if err != nil {
			return nil, err
		}
		return &ast.BoolExpr{OpPos: pos, Op: ast.NOT, Args: []ast.Expr{x}}, nil
	}
	return p.parseBAtom()
}

func (p *parser) parseBAtom() (ast.Expr, error) {
	switch p.tok() {
	case TRUE, FALSE:
		lit := &ast.BoolLit{ValuePos: p.pos(), Value: p.tok() == TRUE}
		p.next()
		return lit, nil
	case LPAREN:
		// "(" may open a nested condition or the left operand of a relation.
		start := p.i
		p.next()
		expr, berr := p.parseBExpr()
		if berr == nil && p.tok() != RPAREN {
			berr = p.unexpected(`")"`)
		} else if berr == nil {
			p.next()
			if !isRelOrArith(p.tok()) {
				return expr, nil
			}
		}
		p.i = start

		// Report whichever reading got further into the input.
		expr, err := p.parseRelExpr()
		if err != nil && berr != nil && comparePos(errPos(berr), errPos(err)) > 0 {
			return nil, berr
		}
		return expr, err
	}
	return p.parseRelExpr()
}

func errPos(err error) ast.Pos {
	if e, ok := err.(*Error); ok {
		return e.Pos
	}
	return ast.Pos{}
}

func comparePos(a, b ast.Pos) int {
	if a.Line != b.Line {
		return a.Line - b.Line
	}
	return a.Column - b.Column
}

func (p *parser) parseRelExpr() (ast.Expr, error) {
	x, err := p.parseAExpr()
	if err != nil {
		return nil, err
	}

	pos, op := p.pos(), relOp(p.tok())
	if op == ast.ILLEGAL {
		return nil, p.unexpected("relational operator")
	}
	p.next()

	y, err := p.parseAExpr()
	if err != nil {
		return nil, err
	}
	return &ast.RelExpr{OpPos: pos, Op: op, X: x, Y: y}, nil
}

// parseAExpr parses additive chains. Runs of the same operator are collected
// into a single node; a change of operator wraps the expression so far.
func (p *parser) parseAExpr() (ast.Expr, error) {
	return p.parseArithChain(p.parseTerm, ADD, SUB)
}

func (p *parser) parseTerm() (ast.Expr, error) {
	return p.parseArithChain(p.parseFactor, MUL, QUO)
}

func (p *parser) parseArithChain(operand func() (ast.Expr, error), toks ...Token) (ast.Expr, error) {
	x, err := operand()
	if err != nil {
		return nil, err
	}

	var cur *ast.ArithExpr
	for p.tok() == toks[0] || p.tok() == toks[1] {
		pos, op := p.pos(), arithOp(p.tok())
		p.next()

		y, err := operand()
		if err != nil {
			return nil, err
		}

		if cur != nil && cur.Op == op {
			cur.Args = append(cur.Args, y)
			continue
		}
		cur = &ast.ArithExpr{OpPos: pos, Op: op, Args: []ast.Expr{x, y}}
		x = cur
	}
	return x, nil
}

func (p *parser) parseFactor() (ast.Expr, error) {
	pos := p.pos()
	switch p.tok() {
	case IDENT:
		return p.parseIdent()
	case INT:
		return p.parseIntLit(pos, false)
	case SUB:
		p.next()
		if p.tok() != INT {
			return nil, p.unexpected("integer")
		}
		return p.parseIntLit(pos, true)
	case LPAREN:
		p.next()
		expr, err := p.parseAExpr()
		if err != nil {
			return nil, err
		} else if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return expr, nil
	default:
		return nil, p.unexpected("arithmetic expression")
	}
}

func (p *parser) parseIntLit(pos ast.Pos, neg bool) (*ast.IntLit, error) {
	s := p.lit()
	if neg {
		s = "-" + s
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, p.errorf("integer literal out of range: %s", s)
	}
	p.next()
	return &ast.IntLit{ValuePos: pos, Value: v}, nil
}

func relOp(tok Token) ast.Op {
	switch tok {
	case LEQ:
		return ast.LEQ
	case LSS:
		return ast.LSS
	case EQL:
		return ast.EQL
	case GEQ:
		return ast.GEQ
	case GTR:
		return ast.GTR
	default:
		return ast.ILLEGAL
	}
}

func arithOp(tok Token) ast.Op {
	switch tok {
	case ADD:
		return ast.ADD
	case SUB:
		return ast.SUB
	case MUL:
		return ast.MUL
	case QUO:
		return ast.QUO
	default:
		return ast.ILLEGAL
	}
}

func isRelOrArith(tok Token) bool {
	return relOp(tok) != ast.ILLEGAL || arithOp(tok) != ast.ILLEGAL
}
