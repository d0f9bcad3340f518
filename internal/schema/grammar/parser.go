// Package grammar turns CSVS schema text into a parse tree.
//
// Parsing is a hand-written recursive descent over a token slice. The only
// place that needs more than one token of lookahead is the end of a column
// definition, which is found by spotting the next `columnId ":"` pair.
package grammar

import (
	"fmt"
	"strings"

	"csvs/internal/schema"
)

// Parse strips comments, detects the version, tokenises and parses text.
// Every failure is a *schema.SchemaError carrying the line and column.
func Parse(text string) (*Schema, error) {
	clean := StripComments(text)
	version, _, err := DetectVersion(clean)
	if err != nil {
		return nil, err
	}
	toks, err := lex(clean)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, version: version}
	return p.parseSchema()
}

type parser struct {
	toks    []token
	pos     int
	version string
}

func (p *parser) peek() token { return p.peekN(0) }

func (p *parser) peekN(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1] // EOF
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() token {
	t := p.peek()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) errorf(pos Pos, format string, args ...any) error {
	return schema.Errorf(pos.Line, pos.Col, format, args...)
}

func (p *parser) expect(k tokenKind, context string) (token, error) {
	t := p.next()
	if t.kind != k {
		return t, p.errorf(t.pos, "%s: expected %s, found %s", context, k, describe(t))
	}
	return t, nil
}

func describe(t token) string {
	switch t.kind {
	case tokIdent, tokInt, tokNumber:
		return fmt.Sprintf("%s %q", t.kind, t.text)
	case tokString, tokChar:
		return t.kind.String() + " " + quote(t.text)
	case tokDirective:
		return "directive @" + t.text
	}
	return t.kind.String()
}

func quote(s string) string { return fmt.Sprintf("%q", s) }

// atColumnStart reports whether the next two tokens open a column
// definition.
func (p *parser) atColumnStart() bool {
	switch p.peek().kind {
	case tokIdent, tokInt, tokString:
		return p.peekN(1).kind == tokColon
	}
	return false
}

func (p *parser) atColumnEnd() bool {
	switch p.peek().kind {
	case tokEOF, tokDirective:
		return true
	}
	return p.atColumnStart()
}

func (p *parser) isOperator(op string) bool {
	t := p.peek()
	return t.kind == tokIdent && t.text == op && !p.atColumnStart()
}

func (p *parser) parseSchema() (*Schema, error) {
	kw := p.next()
	if kw.kind != tokIdent || kw.text != "version" {
		return nil, p.errorf(kw.pos, "expected version declaration, found %s", describe(kw))
	}
	v := p.next()
	if v.text != p.version {
		return nil, p.errorf(v.pos, "malformed version %s", describe(v))
	}

	s := &Schema{Version: p.version}
	for p.peek().kind == tokDirective {
		d, err := p.parseGlobalDirective()
		if err != nil {
			return nil, err
		}
		s.Directives = append(s.Directives, d)
	}
	for p.peek().kind != tokEOF {
		c, err := p.parseColumn()
		if err != nil {
			return nil, err
		}
		s.Columns = append(s.Columns, c)
	}
	return s, nil
}

func (p *parser) parseGlobalDirective() (Directive, error) {
	t := p.next()
	since, ok := globalDirectives[t.text]
	if !ok {
		if _, col := columnDirectives[t.text]; col {
			return Directive{}, p.errorf(t.pos, "column directive @%s outside a column definition", t.text)
		}
		return Directive{}, p.errorf(t.pos, "unknown directive @%s", t.text)
	}
	if !versionAtLeast(p.version, since) {
		return Directive{}, p.errorf(t.pos, "@%s requires version %s or later (schema declares %s)", t.text, since, p.version)
	}

	d := Directive{Pos: t.pos, Name: t.text}
	switch t.text {
	case "separator":
		v := p.next()
		switch {
		case v.kind == tokChar:
			d.Value = &Arg{Pos: v.pos, Kind: ArgChar, Text: v.text}
		case v.kind == tokIdent && strings.EqualFold(v.text, "TAB"):
			d.Value = &Arg{Pos: v.pos, Kind: ArgIdent, Text: "TAB"}
		default:
			return Directive{}, p.errorf(v.pos, "@separator expects a character literal or TAB, found %s", describe(v))
		}
	case "totalColumns":
		v := p.next()
		if v.kind != tokInt {
			return Directive{}, p.errorf(v.pos, "@totalColumns expects a positive integer, found %s", describe(v))
		}
		d.Value = &Arg{Pos: v.pos, Kind: ArgInt, Text: v.text}
	}
	return d, nil
}

func (p *parser) parseColumn() (Column, error) {
	id := p.next()
	switch id.kind {
	case tokIdent, tokInt, tokString:
	case tokDirective:
		if _, ok := globalDirectives[id.text]; ok {
			return Column{}, p.errorf(id.pos, "global directive @%s after column definitions", id.text)
		}
		return Column{}, p.errorf(id.pos, "unexpected directive @%s", id.text)
	default:
		return Column{}, p.errorf(id.pos, "expected column name, found %s", describe(id))
	}
	if _, err := p.expect(tokColon, "column "+quote(id.text)); err != nil {
		return Column{}, err
	}

	c := Column{Pos: id.pos, Name: id.text}
	for !p.atColumnEnd() {
		e, err := p.parseExpr()
		if err != nil {
			return Column{}, err
		}
		c.Exprs = append(c.Exprs, e)
	}
	for p.peek().kind == tokDirective {
		t := p.next()
		if _, ok := globalDirectives[t.text]; ok {
			return Column{}, p.errorf(t.pos, "global directive @%s after column definitions", t.text)
		}
		since, ok := columnDirectives[t.text]
		if !ok {
			return Column{}, p.errorf(t.pos, "unknown directive @%s", t.text)
		}
		if !versionAtLeast(p.version, since) {
			return Column{}, p.errorf(t.pos, "@%s requires version %s or later", t.text, since)
		}
		c.Directives = append(c.Directives, Directive{Pos: t.pos, Name: t.text})
	}
	return c, nil
}

func (p *parser) parseExpr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isOperator("or") {
		op := p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{Pos: op.pos, Op: "or", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOperator("and") {
		op := p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Pos: op.pos, Op: "and", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.peek().kind != tokDollar {
		return p.parsePrimary()
	}
	ref, err := p.parseColumnRef()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokSlash, "column reference $"+ref.Text); err != nil {
		return nil, err
	}
	inner, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return &Context{Pos: ref.Pos, Column: ref.Text, Inner: inner}, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.peek()
	switch {
	case t.kind == tokLParen:
		p.next()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "parenthesised expression"); err != nil {
			return nil, err
		}
		return e, nil
	case t.kind == tokIdent && t.text == "if" && p.peekN(1).kind == tokLParen:
		return p.parseIf()
	case t.kind == tokIdent:
		return p.parseLeaf()
	}
	return nil, p.errorf(t.pos, "expected expression, found %s", describe(t))
}

func (p *parser) parseIf() (Expr, error) {
	kw := p.next()
	p.next() // '('
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokComma, "if"); err != nil {
		return nil, err
	}
	n := &If{Pos: kw.pos, Cond: cond}
	if n.Then, err = p.parseExprList(); err != nil {
		return nil, err
	}
	if p.peek().kind == tokComma {
		p.next()
		if n.Else, err = p.parseExprList(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(tokRParen, "if"); err != nil {
		return nil, err
	}
	return n, nil
}

// parseExprList reads one or more whitespace-separated expressions, up to
// the next ',' or ')'.
func (p *parser) parseExprList() ([]Expr, error) {
	var out []Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		switch p.peek().kind {
		case tokComma, tokRParen, tokEOF:
			return out, nil
		}
	}
}

func (p *parser) parseLeaf() (Expr, error) {
	t := p.next()
	since, ok := keywords[t.text]
	if !ok {
		return nil, p.errorf(t.pos, "unknown expression %q", t.text)
	}
	if !versionAtLeast(p.version, since) {
		return nil, p.errorf(t.pos, "%s requires version %s or later (schema declares %s)", t.text, since, p.version)
	}

	leaf := &Leaf{Pos: t.pos, Name: t.text}
	var err error
	switch t.text {
	case "is", "not", "in", "starts", "ends":
		leaf.Args, err = p.parseArgs(leaf, 1, 1, p.parseProvider)
	case "any":
		leaf.Args, err = p.parseArgs(leaf, 1, 0, p.parseProvider)
	case "regex":
		leaf.Args, err = p.parseArgs(leaf, 1, 1, p.parseString)
	case "range":
		leaf.Args, err = p.parseArgs(leaf, 2, 2, p.parseRangeBound)
	case "length":
		leaf.Args, err = p.parseArgs(leaf, 1, 2, p.parseLengthBound)
	case "fileExists":
		if p.peek().kind == tokLParen && p.peekN(1).kind == tokString && p.peekN(2).kind == tokRParen {
			leaf.Args, err = p.parseArgs(leaf, 1, 1, p.parseString)
		}
	case "checksum":
		leaf.Args, err = p.parseChecksum(leaf)
	}
	if err != nil {
		return nil, err
	}
	return leaf, nil
}

// parseArgs reads `( arg {, arg} )` and checks the count; max 0 means
// unbounded.
func (p *parser) parseArgs(leaf *Leaf, min, max int, arg func() (Arg, error)) ([]Arg, error) {
	if _, err := p.expect(tokLParen, leaf.Name); err != nil {
		return nil, err
	}
	var args []Arg
	for {
		a, err := arg()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if p.peek().kind != tokComma {
			break
		}
		p.next()
	}
	if _, err := p.expect(tokRParen, leaf.Name); err != nil {
		return nil, err
	}
	if len(args) < min || (max > 0 && len(args) > max) {
		return nil, p.errorf(leaf.Pos, "%s: wrong number of arguments (%d)", leaf.Name, len(args))
	}
	return args, nil
}

func (p *parser) parseProvider() (Arg, error) {
	t := p.peek()
	switch t.kind {
	case tokString:
		p.next()
		return Arg{Pos: t.pos, Kind: ArgString, Text: t.text}, nil
	case tokDollar:
		return p.parseColumnRef()
	}
	return Arg{}, p.errorf(t.pos, "expected string or column reference, found %s", describe(t))
}

func (p *parser) parseColumnRef() (Arg, error) {
	d := p.next() // '$'
	t := p.next()
	switch t.kind {
	case tokIdent, tokInt, tokString:
		return Arg{Pos: d.pos, Kind: ArgColumnRef, Text: t.text}, nil
	}
	return Arg{}, p.errorf(t.pos, "expected column name after '$', found %s", describe(t))
}

func (p *parser) parseString() (Arg, error) {
	t, err := p.expect(tokString, "string argument")
	if err != nil {
		return Arg{}, err
	}
	return Arg{Pos: t.pos, Kind: ArgString, Text: t.text}, nil
}

func (p *parser) parseRangeBound() (Arg, error) {
	t := p.next()
	switch t.kind {
	case tokInt:
		return Arg{Pos: t.pos, Kind: ArgInt, Text: t.text}, nil
	case tokNumber:
		return Arg{Pos: t.pos, Kind: ArgNumber, Text: t.text}, nil
	case tokString:
		return Arg{Pos: t.pos, Kind: ArgString, Text: t.text}, nil
	}
	return Arg{}, p.errorf(t.pos, "range: expected number, found %s", describe(t))
}

func (p *parser) parseLengthBound() (Arg, error) {
	t := p.next()
	switch t.kind {
	case tokInt:
		return Arg{Pos: t.pos, Kind: ArgInt, Text: t.text}, nil
	case tokNumber:
		return Arg{Pos: t.pos, Kind: ArgNumber, Text: t.text}, nil
	case tokStar:
		return Arg{Pos: t.pos, Kind: ArgWildcard, Text: "*"}, nil
	}
	return Arg{}, p.errorf(t.pos, "length: expected integer or '*', found %s", describe(t))
}

// parseChecksum reads `(file([base,] path), algorithm)`.
func (p *parser) parseChecksum(leaf *Leaf) ([]Arg, error) {
	if _, err := p.expect(tokLParen, "checksum"); err != nil {
		return nil, err
	}
	kw := p.next()
	if kw.kind != tokIdent || kw.text != "file" {
		return nil, p.errorf(kw.pos, "checksum: expected file(...), found %s", describe(kw))
	}
	if _, err := p.expect(tokLParen, "file"); err != nil {
		return nil, err
	}
	fa := &FileArg{}
	if p.peek().kind == tokString && p.peekN(1).kind == tokComma {
		b := p.next()
		p.next()
		fa.Base = &Arg{Pos: b.pos, Kind: ArgString, Text: b.text}
	}
	path, err := p.parseProvider()
	if err != nil {
		return nil, err
	}
	fa.Path = path
	if _, err := p.expect(tokRParen, "file"); err != nil {
		return nil, err
	}
	if _, err := p.expect(tokComma, "checksum"); err != nil {
		return nil, err
	}
	alg, err := p.parseProvider()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRParen, "checksum"); err != nil {
		return nil, err
	}
	return []Arg{{Pos: kw.pos, Kind: ArgFile, File: fa}, alg}, nil
}
