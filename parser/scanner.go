package parser

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/ashmorer/wlee/ast"
)

// Token is the set of lexical tokens of WLang.
type Token int

// The list of tokens.
const (
	ILLEGAL Token = iota
	EOF

	IDENT // x
	INT   // 123

	ASSIGN    // :=
	ADD       // +
	SUB       // -
	MUL       // *
	QUO       // /
	LEQ       // <=
	LSS       // <
	EQL       // =
	GEQ       // >=
	GTR       // >
	LPAREN    // (
	RPAREN    // )
	LBRACE    // {
	RBRACE    // }
	SEMICOLON // ;
	COMMA     // ,

	keyword_beg
	AND
	ASSERT
	ASSUME
	DO
	ELSE
	FALSE
	HAVOC
	IF
	NOT
	OR
	PRINT_STATE
	SKIP
	THEN
	TRUE
	WHILE
	keyword_end
)

var tokens = [...]string{
	ILLEGAL: "ILLEGAL",
	EOF:     "EOF",

	IDENT: "IDENT",
	INT:   "INT",

	ASSIGN:    ":=",
	ADD:       "+",
	SUB:       "-",
	MUL:       "*",
	QUO:       "/",
	LEQ:       "<=",
	LSS:       "<",
	EQL:       "=",
	GEQ:       ">=",
	GTR:       ">",
	LPAREN:    "(",
	RPAREN:    ")",
	LBRACE:    "{",
	RBRACE:    "}",
	SEMICOLON: ";",
	COMMA:     ",",

	AND:         "and",
	ASSERT:      "assert",
	ASSUME:      "assume",
	DO:          "do",
	ELSE:        "else",
	FALSE:       "false",
	HAVOC:       "havoc",
	IF:          "if",
	NOT:         "not",
	OR:          "or",
	PRINT_STATE: "print_state",
	SKIP:        "skip",
	THEN:        "then",
	TRUE:        "true",
	WHILE:       "while",
}

var keywords map[string]Token

func init() {
	keywords = make(map[string]Token)
	for tok := keyword_beg + 1; tok < keyword_end; tok++ {
		keywords[tokens[tok]] = tok
	}
}

// String returns the string representation of the token.
func (tok Token) String() string {
	if tok >= 0 && int(tok) < len(tokens) && tokens[tok] != "" {
		return tokens[tok]
	}
	return fmt.Sprintf("Token<%d>", int(tok))
}

// IsKeyword returns true if tok is a reserved word.
func (tok Token) IsKeyword() bool { return tok > keyword_beg && tok < keyword_end }

// Lookup maps an identifier to its keyword token or IDENT.
func Lookup(ident string) Token {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return IDENT
}

// Scanner tokenizes WLang source text. Line comments start with "#" or "//".
type Scanner struct {
	src  []byte
	off  int
	line int
	col  int
}

// NewScanner returns a new instance of Scanner reading from src.
func NewScanner(src []byte) *Scanner {
	return &Scanner{src: src, line: 1, col: 1}
}

// Scan returns the next token, its position and its literal text.
func (s *Scanner) Scan() (pos ast.Pos, tok Token, lit string) {
	s.skipWhitespace()

	pos = ast.Pos{Line: s.line, Column: s.col}
	ch := s.peek()
	switch {
	case ch == -1:
		return pos, EOF, ""
	case isLetter(ch):
		lit = s.scanWhile(func(r rune) bool { return isLetter(r) || isDigit(r) })
		return pos, Lookup(lit), lit
	case isDigit(ch):
		lit = s.scanWhile(isDigit)
		return pos, INT, lit
	}

	s.next()
	switch ch {
	case ':':
		if s.peek() == '=' {
			s.next()
			return pos, ASSIGN, ":="
		}
	case '+':
		return pos, ADD, "+"
	case '-':
		return pos, SUB, "-"
	case '*':
		return pos, MUL, "*"
	case '/':
		return pos, QUO, "/"
	case '<':
		if s.peek() == '=' {
			s.next()
			return pos, LEQ, "<="
		}
		return pos, LSS, "<"
	case '>':
		if s.peek() == '=' {
			s.next()
			return pos, GEQ, ">="
		}
		return pos, GTR, ">"
	case '=':
		return pos, EQL, "="
	case '(':
		return pos, LPAREN, "("
	case ')':
		return pos, RPAREN, ")"
	case '{':
		return pos, LBRACE, "{"
	case '}':
		return pos, RBRACE, "}"
	case ';':
		return pos, SEMICOLON, ";"
	case ',':
		return pos, COMMA, ","
	}
	return pos, ILLEGAL, string(ch)
}

func (s *Scanner) skipWhitespace() {
	for {
		switch ch := s.peek(); {
		case ch == '#' || (ch == '/' && s.peekAt(1) == '/'):
			s.scanWhile(func(r rune) bool { return r != '\n' })
		case ch != -1 && unicode.IsSpace(ch):
			s.next()
		default:
			return
		}
	}
}

func (s *Scanner) scanWhile(fn func(rune) bool) string {
	start := s.off
	for ch := s.peek(); ch != -1 && fn(ch); ch = s.peek() {
		s.next()
	}
	return string(s.src[start:s.off])
}

// peek returns the rune at the current offset or -1 at the end of input.
func (s *Scanner) peek() rune { return s.peekAt(0) }

// peekAt returns the rune n bytes past the current offset. Only used for ASCII lookahead.
func (s *Scanner) peekAt(n int) rune {
	if s.off+n >= len(s.src) {
		return -1
	}
	ch, _ := utf8.DecodeRune(s.src[s.off+n:])
	return ch
}

func (s *Scanner) next() {
	ch, w := utf8.DecodeRune(s.src[s.off:])
	s.off += w
	if ch == '\n' {
		s.line, s.col = s.line+1, 1
	} else {
		s.col++
	}
}

func isLetter(ch rune) bool { return ch == '_' || unicode.IsLetter(ch) }
func isDigit(ch rune) bool  { return '0' <= ch && ch <= '9' }
