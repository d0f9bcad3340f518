package grammar

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"csvs/internal/schema"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokInt    // 42
	tokNumber // -1, 3.5
	tokString // "..."
	tokChar   // '.'
	tokDirective
	tokDollar
	tokLParen
	tokRParen
	tokComma
	tokColon
	tokSlash
	tokStar
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "identifier"
	case tokInt:
		return "integer"
	case tokNumber:
		return "number"
	case tokString:
		return "string"
	case tokChar:
		return "character literal"
	case tokDirective:
		return "directive"
	case tokDollar:
		return "'$'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokComma:
		return "','"
	case tokColon:
		return "':'"
	case tokSlash:
		return "'/'"
	case tokStar:
		return "'*'"
	}
	return fmt.Sprintf("token(%d)", int(k))
}

// token is one lexeme. Text holds the decoded value for strings and chars,
// the name without '@' for directives, and the raw lexeme otherwise.
type token struct {
	kind tokenKind
	text string
	pos  Pos
}

type lexer struct {
	src  string
	off  int
	line int
	col  int
}

// lex splits comment-free schema text into tokens.
func lex(src string) ([]token, error) {
	l := &lexer{src: src, line: 1, col: 1}
	var toks []token
	for {
		t, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, t)
		if t.kind == tokEOF {
			return toks, nil
		}
	}
}

func (l *lexer) peekRune() rune {
	if l.off >= len(l.src) {
		return -1
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.off:])
	return r
}

func (l *lexer) advance() rune {
	r, w := utf8.DecodeRuneInString(l.src[l.off:])
	l.off += w
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *lexer) errorf(pos Pos, format string, args ...any) error {
	return schema.Errorf(pos.Line, pos.Col, format, args...)
}

func (l *lexer) next() (token, error) {
	for l.off < len(l.src) && isSpace(l.src[l.off]) {
		l.advance()
	}
	pos := Pos{Line: l.line, Col: l.col}
	if l.off >= len(l.src) {
		return token{kind: tokEOF, pos: pos}, nil
	}

	r := l.peekRune()
	switch r {
	case '(':
		l.advance()
		return token{kind: tokLParen, text: "(", pos: pos}, nil
	case ')':
		l.advance()
		return token{kind: tokRParen, text: ")", pos: pos}, nil
	case ',':
		l.advance()
		return token{kind: tokComma, text: ",", pos: pos}, nil
	case ':':
		l.advance()
		return token{kind: tokColon, text: ":", pos: pos}, nil
	case '/':
		l.advance()
		return token{kind: tokSlash, text: "/", pos: pos}, nil
	case '*':
		l.advance()
		return token{kind: tokStar, text: "*", pos: pos}, nil
	case '$':
		l.advance()
		return token{kind: tokDollar, text: "$", pos: pos}, nil
	case '"':
		s, err := l.quoted('"', pos)
		return token{kind: tokString, text: s, pos: pos}, err
	case '\'':
		s, err := l.quoted('\'', pos)
		if err != nil {
			return token{}, err
		}
		if utf8.RuneCountInString(s) != 1 {
			return token{}, l.errorf(pos, "character literal must hold exactly one character, got %q", s)
		}
		return token{kind: tokChar, text: s, pos: pos}, nil
	case '@':
		l.advance()
		name := l.word()
		if name == "" {
			return token{}, l.errorf(pos, "expected directive name after '@'")
		}
		return token{kind: tokDirective, text: name, pos: pos}, nil
	}

	if schema.IsIdentRune(r) || r == '+' {
		w := l.word()
		return token{kind: classify(w), text: w, pos: pos}, nil
	}
	return token{}, l.errorf(pos, "unexpected character %q", r)
}

// word consumes a maximal run of identifier runes.
func (l *lexer) word() string {
	start := l.off
	if l.peekRune() == '+' {
		l.advance()
	}
	for l.off < len(l.src) && schema.IsIdentRune(l.peekRune()) {
		l.advance()
	}
	return l.src[start:l.off]
}

// quoted consumes a literal delimited by q, decoding backslash escapes.
func (l *lexer) quoted(q rune, pos Pos) (string, error) {
	l.advance() // opening quote
	var b strings.Builder
	for {
		if l.off >= len(l.src) {
			return "", l.errorf(pos, "unterminated literal")
		}
		r := l.advance()
		switch r {
		case q:
			return b.String(), nil
		case '\n':
			return "", l.errorf(pos, "unterminated literal")
		case '\\':
			if l.off >= len(l.src) {
				return "", l.errorf(pos, "unterminated literal")
			}
			e := l.advance()
			switch e {
			case 't':
				b.WriteRune('\t')
			case 'n':
				b.WriteRune('\n')
			case 'r':
				b.WriteRune('\r')
			case '\\', '"', '\'':
				b.WriteRune(e)
			default:
				// Unknown escapes are kept verbatim so regex classes like \d survive.
				b.WriteRune('\\')
				b.WriteRune(e)
			}
		default:
			b.WriteRune(r)
		}
	}
}

// classify decides whether a word is an integer, a number or an identifier.
func classify(w string) tokenKind {
	if _, err := strconv.ParseUint(w, 10, 64); err == nil {
		return tokInt
	}
	if _, err := strconv.ParseFloat(w, 64); err == nil && strings.ContainsAny(w[:1], "+-.0123456789") {
		return tokNumber
	}
	return tokIdent
}
