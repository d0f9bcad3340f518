package schema

import (
	"context"
	"strconv"
	"strings"
)

// Env is everything a predicate may read besides the cell under test: the
// current row and the column-name → physical-position map produced by the
// binder for this document.
type Env struct {
	Row     []string
	Columns map[string]int
}

// Value returns the cell of the named column in the current row. ok is
// false when the column is not bound or the row is too short.
func (e Env) Value(name string) (string, bool) {
	i, ok := e.Columns[name]
	if !ok || i < 0 || i >= len(e.Row) {
		return "", false
	}
	return e.Row[i], true
}

// Predicate is a compiled boolean check. The set of implementations is
// closed: *Leaf, *And, *Or, *If and *Context.
//
// Eval must be a pure function of its arguments; ctx only bounds blocking
// leaves (filesystem, hashing).
type Predicate interface {
	Eval(ctx context.Context, cell string, env Env) bool
	String() string
	predicate()
}

// LeafKind names a primitive check.
type LeafKind string

const (
	KindIs              LeafKind = "is"
	KindNot             LeafKind = "not"
	KindIn              LeafKind = "in"
	KindStarts          LeafKind = "starts"
	KindEnds            LeafKind = "ends"
	KindRegex           LeafKind = "regex"
	KindRange           LeafKind = "range"
	KindLength          LeafKind = "length"
	KindEmpty           LeafKind = "empty"
	KindNotEmpty        LeafKind = "notEmpty"
	KindURI             LeafKind = "uri"
	KindUUID4           LeafKind = "uuid4"
	KindPositiveInteger LeafKind = "positiveInteger"
	KindFileExists      LeafKind = "fileExists"
	KindChecksum        LeafKind = "checksum"
	KindAny             LeafKind = "any"
	KindUpperCase       LeafKind = "upperCase"
	KindLowerCase       LeafKind = "lowerCase"
	KindXDate           LeafKind = "xDate"
	KindXDateTime       LeafKind = "xDateTime"
	KindXInteger        LeafKind = "xInteger"
	KindXDecimal        LeafKind = "xDecimal"
)

// CheckFunc is the compiled body of a leaf.
type CheckFunc func(ctx context.Context, cell string, env Env) bool

// Leaf is a primitive check with its static parameters already bound.
// Params is the canonical rendering of those parameters and only serves
// String.
type Leaf struct {
	Kind   LeafKind
	Params []string
	Fn     CheckFunc
}

func (l *Leaf) Eval(ctx context.Context, cell string, env Env) bool {
	return l.Fn(ctx, cell, env)
}

func (l *Leaf) String() string {
	if l.Params == nil {
		return string(l.Kind)
	}
	return string(l.Kind) + "(" + strings.Join(l.Params, ", ") + ")"
}

// And holds when both operands hold. Right is not evaluated when Left is
// false.
type And struct{ Left, Right Predicate }

func (a *And) Eval(ctx context.Context, cell string, env Env) bool {
	return a.Left.Eval(ctx, cell, env) && a.Right.Eval(ctx, cell, env)
}

func (a *And) String() string { return "(" + a.Left.String() + " and " + a.Right.String() + ")" }

// Or holds when either operand holds. Right is not evaluated when Left is
// true.
type Or struct{ Left, Right Predicate }

func (o *Or) Eval(ctx context.Context, cell string, env Env) bool {
	return o.Left.Eval(ctx, cell, env) || o.Right.Eval(ctx, cell, env)
}

func (o *Or) String() string { return "(" + o.Left.String() + " or " + o.Right.String() + ")" }

// If evaluates Cond against the current cell (or, when Cond is a *Context,
// against the referenced column). When Cond holds every Then predicate must
// hold, otherwise every Else predicate must hold. An absent else branch is
// vacuously true.
type If struct {
	Cond Predicate
	Then []Predicate
	Else []Predicate
}

func (p *If) Eval(ctx context.Context, cell string, env Env) bool {
	branch := p.Else
	if p.Cond.Eval(ctx, cell, env) {
		branch = p.Then
	}
	for _, q := range branch {
		if !q.Eval(ctx, cell, env) {
			return false
		}
	}
	return true
}

func (p *If) String() string {
	var b strings.Builder
	b.WriteString("if(")
	b.WriteString(p.Cond.String())
	b.WriteString(", ")
	b.WriteString(joinPredicates(p.Then))
	if len(p.Else) > 0 {
		b.WriteString(", ")
		b.WriteString(joinPredicates(p.Else))
	}
	b.WriteString(")")
	return b.String()
}

// Context switches the value under test to the referenced column of the
// current row before evaluating Inner. A reference to a column that is not
// bound in this document evaluates to false.
type Context struct {
	Column string
	Inner  Predicate
}

func (c *Context) Eval(ctx context.Context, _ string, env Env) bool {
	v, ok := env.Value(c.Column)
	if !ok {
		return false
	}
	return c.Inner.Eval(ctx, v, env)
}

func (c *Context) String() string {
	return "$" + QuoteName(c.Column) + "/" + c.Inner.String()
}

func (*Leaf) predicate()    {}
func (*And) predicate()     {}
func (*Or) predicate()      {}
func (*If) predicate()      {}
func (*Context) predicate() {}

func joinPredicates(ps []Predicate) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.String()
	}
	return strings.Join(parts, " ")
}

// ValueProvider yields a comparison value for a leaf. The set is closed:
// Literal and ColumnRef. Resolve reads the row it is given and nothing
// else; providers never remember a binding between calls.
type ValueProvider interface {
	Resolve(env Env) (string, bool)
	String() string
	provider()
}

// Literal is a constant string from the schema text.
type Literal string

func (l Literal) Resolve(Env) (string, bool) { return string(l), true }
func (l Literal) String() string             { return strconv.Quote(string(l)) }

// ColumnRef resolves to the named column's value in the current row.
type ColumnRef string

func (c ColumnRef) Resolve(env Env) (string, bool) { return env.Value(string(c)) }
func (c ColumnRef) String() string                 { return "$" + QuoteName(string(c)) }

func (Literal) provider()   {}
func (ColumnRef) provider() {}
