// Package compile turns a CSVS parse tree into an immutable schema.Schema.
//
// Every literal is checked here (numeric range bounds, regex syntax, length
// bounds, checksum algorithm names) so that a malformed schema fails before
// any row is read.
package compile

import (
	"strconv"

	"csvs/internal/external"
	"csvs/internal/schema"
	"csvs/internal/schema/grammar"
)

// Option configures a compilation.
type Option func(*compiler)

// WithAdapter sets the filesystem adapter used by fileExists and checksum.
// The default is an external.Local with default options.
func WithAdapter(a external.Adapter) Option {
	return func(c *compiler) { c.adapter = a }
}

type compiler struct {
	adapter external.Adapter
}

// CompileText parses and compiles schema text.
func CompileText(text string, opts ...Option) (*schema.Schema, error) {
	tree, err := grammar.Parse(text)
	if err != nil {
		return nil, err
	}
	return Compile(tree, opts...)
}

// Compile builds a Schema from a parse tree.
func Compile(tree *grammar.Schema, opts ...Option) (*schema.Schema, error) {
	c := &compiler{}
	for _, opt := range opts {
		opt(c)
	}
	if c.adapter == nil {
		c.adapter = external.NewLocal(external.Options{})
	}

	s := &schema.Schema{Version: tree.Version, Directives: schema.DefaultDirectives()}
	for _, d := range tree.Directives {
		if err := globalDirective(&s.Directives, d); err != nil {
			return nil, err
		}
	}

	seen := make(map[string]bool, len(tree.Columns))
	for i, col := range tree.Columns {
		if seen[col.Name] {
			return nil, schema.Errorf(col.Pos.Line, col.Pos.Col, "duplicate column %s", schema.QuoteName(col.Name))
		}
		seen[col.Name] = true

		rule := schema.ColumnRule{Ordinal: i, Name: col.Name}
		for _, d := range col.Directives {
			switch d.Name {
			case "optional":
				rule.Directives.Optional = true
			case "matchIsFalse":
				rule.Directives.MatchIsFalse = true
			case "ignoreCase":
				rule.Directives.IgnoreCase = true
			case "warning":
				rule.Directives.Warning = true
			default:
				return nil, schema.Errorf(d.Pos.Line, d.Pos.Col, "unknown column directive @%s", d.Name)
			}
		}
		for _, e := range col.Exprs {
			p, err := c.expr(e, rule.Directives.IgnoreCase)
			if err != nil {
				return nil, err
			}
			rule.Predicates = append(rule.Predicates, p)
		}
		s.Rules = append(s.Rules, rule)
	}
	return s, nil
}

func globalDirective(g *schema.GlobalDirectives, d grammar.Directive) error {
	switch d.Name {
	case "separator":
		if d.Value == nil {
			return schema.Errorf(d.Pos.Line, d.Pos.Col, "@separator needs a value")
		}
		r := '\t'
		if d.Value.Kind == grammar.ArgChar {
			r = []rune(d.Value.Text)[0]
		}
		if r == '"' || r == '\n' || r == '\r' {
			return schema.Errorf(d.Value.Pos.Line, d.Value.Pos.Col, "invalid separator %q", r)
		}
		g.Separator = r
	case "quoted":
		g.Quoted = true
	case "totalColumns":
		n, err := strconv.Atoi(d.Value.Text)
		if err != nil || n <= 0 {
			return schema.Errorf(d.Value.Pos.Line, d.Value.Pos.Col, "@totalColumns must be a positive integer, got %s", d.Value.Text)
		}
		g.TotalColumns = n
	case "noHeader":
		g.Header = false
	case "ignoreColumnNameCase":
		g.IgnoreColumnNameCase = true
	case "permitEmpty":
		g.PermitEmpty = true
	default:
		return schema.Errorf(d.Pos.Line, d.Pos.Col, "unknown directive @%s", d.Name)
	}
	return nil
}

func (c *compiler) expr(e grammar.Expr, fold bool) (schema.Predicate, error) {
	switch n := e.(type) {
	case *grammar.Binary:
		l, err := c.expr(n.Left, fold)
		if err != nil {
			return nil, err
		}
		r, err := c.expr(n.Right, fold)
		if err != nil {
			return nil, err
		}
		if n.Op == "and" {
			return &schema.And{Left: l, Right: r}, nil
		}
		return &schema.Or{Left: l, Right: r}, nil
	case *grammar.If:
		cond, err := c.expr(n.Cond, fold)
		if err != nil {
			return nil, err
		}
		then, err := c.exprs(n.Then, fold)
		if err != nil {
			return nil, err
		}
		els, err := c.exprs(n.Else, fold)
		if err != nil {
			return nil, err
		}
		return &schema.If{Cond: cond, Then: then, Else: els}, nil
	case *grammar.Context:
		inner, err := c.expr(n.Inner, fold)
		if err != nil {
			return nil, err
		}
		return &schema.Context{Column: n.Column, Inner: inner}, nil
	case *grammar.Leaf:
		return c.leaf(n, fold)
	}
	pos := e.Position()
	return nil, schema.Errorf(pos.Line, pos.Col, "unsupported expression %T", e)
}

func (c *compiler) exprs(es []grammar.Expr, fold bool) ([]schema.Predicate, error) {
	if len(es) == 0 {
		return nil, nil
	}
	out := make([]schema.Predicate, 0, len(es))
	for _, e := range es {
		p, err := c.expr(e, fold)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
