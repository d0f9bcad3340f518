// Package schema holds the compiled form of a CSVS schema: global
// directives, the ordered column rules and their predicate trees.
//
// A Schema is built once by the compiler (internal/schema/compile) and is
// immutable afterwards. Nothing in this package keeps per-row state, so one
// Schema can be shared by any number of concurrent validations; everything a
// predicate needs for a row is passed in explicitly through Env.
package schema

import (
	"context"
	"strconv"
	"strings"
	"unicode"
)

// SupportedVersions lists the CSVS language versions the compiler accepts.
var SupportedVersions = []string{"1.0", "1.1", "1.2"}

// IsSupportedVersion reports whether v is one of SupportedVersions.
func IsSupportedVersion(v string) bool {
	for _, s := range SupportedVersions {
		if s == v {
			return true
		}
	}
	return false
}

// GlobalDirectives are the document-wide settings declared after the
// version line (@separator, @quoted, @totalColumns, @noHeader, ...).
type GlobalDirectives struct {
	// Separator is the field delimiter. Defaults to ','.
	Separator rune

	// Quoted reports that fields are expected to be quoted.
	Quoted bool

	// Header is false when @noHeader is declared.
	Header bool

	// TotalColumns, when > 0, is the exact number of fields the header row
	// must carry.
	TotalColumns int

	// IgnoreColumnNameCase makes header matching case-insensitive.
	IgnoreColumnNameCase bool

	// PermitEmpty accepts a document with no rows at all.
	PermitEmpty bool
}

// DefaultDirectives returns the directives in effect when the schema
// declares none.
func DefaultDirectives() GlobalDirectives {
	return GlobalDirectives{Separator: ',', Header: true}
}

// ColumnDirectives are the @-modifiers that follow a column's expressions.
type ColumnDirectives struct {
	Optional     bool
	MatchIsFalse bool
	IgnoreCase   bool
	Warning      bool
}

// ColumnRule is one column definition. All Predicates must hold for a cell
// to be valid (implicit AND across the top-level expressions).
type ColumnRule struct {
	// Ordinal is the 0-based declaration index.
	Ordinal    int
	Name       string
	Directives ColumnDirectives
	Predicates []Predicate
}

// Check evaluates the rule's predicates in order against cell and returns
// the first one that fails. @matchIsFalse inverts the result of each
// top-level predicate, never the combinators inside it.
func (r *ColumnRule) Check(ctx context.Context, cell string, env Env) (bool, Predicate) {
	for _, p := range r.Predicates {
		ok := p.Eval(ctx, cell, env)
		if r.Directives.MatchIsFalse {
			ok = !ok
		}
		if !ok {
			return false, p
		}
	}
	return true, nil
}

// String renders the rule in canonical CSVS form.
func (r *ColumnRule) String() string {
	var b strings.Builder
	b.WriteString(QuoteName(r.Name))
	b.WriteString(":")
	for _, p := range r.Predicates {
		b.WriteByte(' ')
		b.WriteString(p.String())
	}
	d := r.Directives
	for _, f := range []struct {
		on   bool
		name string
	}{
		{d.Optional, "@optional"},
		{d.MatchIsFalse, "@matchIsFalse"},
		{d.IgnoreCase, "@ignoreCase"},
		{d.Warning, "@warning"},
	} {
		if f.on {
			b.WriteByte(' ')
			b.WriteString(f.name)
		}
	}
	return b.String()
}

// Schema is a compiled CSVS document.
type Schema struct {
	Version    string
	Directives GlobalDirectives
	Rules      []ColumnRule
}

// Rule returns the rule declared under name, or nil.
func (s *Schema) Rule(name string) *ColumnRule {
	for i := range s.Rules {
		if s.Rules[i].Name == name {
			return &s.Rules[i]
		}
	}
	return nil
}

// String renders the schema in canonical CSVS form. Two schemas compiled
// from the same text render identically.
func (s *Schema) String() string {
	var b strings.Builder
	b.WriteString("version ")
	b.WriteString(s.Version)
	b.WriteByte('\n')

	d := s.Directives
	if d.Separator == '\t' {
		b.WriteString("@separator TAB\n")
	} else if d.Separator != ',' {
		b.WriteString("@separator '" + string(d.Separator) + "'\n")
	}
	if d.Quoted {
		b.WriteString("@quoted\n")
	}
	if d.TotalColumns > 0 {
		b.WriteString("@totalColumns " + strconv.Itoa(d.TotalColumns) + "\n")
	}
	if !d.Header {
		b.WriteString("@noHeader\n")
	}
	if d.IgnoreColumnNameCase {
		b.WriteString("@ignoreColumnNameCase\n")
	}
	if d.PermitEmpty {
		b.WriteString("@permitEmpty\n")
	}
	for i := range s.Rules {
		b.WriteString(s.Rules[i].String())
		b.WriteByte('\n')
	}
	return b.String()
}

// IsIdentRune reports whether r may appear in a bare column identifier.
func IsIdentRune(r rune) bool {
	return r == '_' || r == '-' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// QuoteName returns name as a bare identifier when possible and as a
// double-quoted string otherwise.
func QuoteName(name string) string {
	if name == "" {
		return `""`
	}
	for _, r := range name {
		if !IsIdentRune(r) {
			return strconv.Quote(name)
		}
	}
	return name
}
