// Package binder maps a compiled schema onto the physical columns of one
// CSV document.
//
// Header matching is a single greedy pass with two cursors, one over the
// declared rules and one over the header fields. An optional rule whose
// name does not match the current header field is skipped; a required one
// fails the bind. There is no backtracking, so an optional column that is
// present but out of declared order is reported as unexpected.
package binder

import (
	"fmt"
	"strconv"

	"golang.org/x/text/cases"

	"csvs/internal/schema"
)

// BindingError is returned when a header cannot be reconciled with the
// schema. It is fatal and is reported before any data row is read.
type BindingError struct {
	Reason   string
	Column   string // offending header field or rule name, if any
	Position int    // 0-based header position, -1 when not applicable
	Found    string
	Expected string
}

func (e *BindingError) Error() string {
	msg := "binding: " + e.Reason
	if e.Position >= 0 {
		msg += " at position " + strconv.Itoa(e.Position)
	}
	if e.Found != "" || e.Expected != "" {
		msg += fmt.Sprintf(" (found %s, expected %s)", e.Found, e.Expected)
	}
	return msg
}

// Binding is the result of one bind: which rule governs each physical
// position, and where each declared column lives. It belongs to a single
// document and is read-only once built.
type Binding struct {
	Schema     *schema.Schema
	ByPosition map[int]*schema.ColumnRule
	Columns    map[string]int
	// Width is the number of fields every data row is expected to carry.
	Width int
	// Header is the header row as read, nil in headerless mode.
	Header []string
}

// Rule returns the rule bound to position pos, or nil.
func (b *Binding) Rule(pos int) *schema.ColumnRule { return b.ByPosition[pos] }

// Env returns the evaluation environment for one data row.
func (b *Binding) Env(row []string) schema.Env {
	return schema.Env{Row: row, Columns: b.Columns}
}

// ColumnName returns the display name of position pos.
func (b *Binding) ColumnName(pos int) string {
	if r := b.Rule(pos); r != nil {
		return r.Name
	}
	if pos >= 0 && pos < len(b.Header) {
		return b.Header[pos]
	}
	return ""
}

// Bind reconciles header with s. header is ignored when the schema
// declares @noHeader.
func Bind(s *schema.Schema, header []string) (*Binding, error) {
	if !s.Directives.Header {
		return bindOrdinal(s)
	}

	d := s.Directives
	if d.TotalColumns > 0 && len(header) != d.TotalColumns {
		return nil, &BindingError{
			Reason:   "wrong number of columns in the header",
			Position: -1,
			Found:    strconv.Itoa(len(header)),
			Expected: strconv.Itoa(d.TotalColumns),
		}
	}

	eq := func(a, b string) bool { return a == b }
	if d.IgnoreColumnNameCase {
		eq = func(a, b string) bool {
			fold := cases.Fold()
			return fold.String(a) == fold.String(b)
		}
	}

	b := &Binding{
		Schema:     s,
		ByPosition: make(map[int]*schema.ColumnRule, len(s.Rules)),
		Columns:    make(map[string]int, len(s.Rules)),
		Width:      len(header),
		Header:     header,
	}
	pos := 0
	for i := range s.Rules {
		r := &s.Rules[i]
		if pos < len(header) && eq(header[pos], r.Name) {
			b.ByPosition[pos] = r
			b.Columns[r.Name] = pos
			pos++
			continue
		}
		if r.Directives.Optional {
			continue
		}
		found := "end of header"
		if pos < len(header) {
			found = strconv.Quote(header[pos])
		}
		return nil, &BindingError{
			Reason:   "required column " + schema.QuoteName(r.Name) + " not found",
			Column:   r.Name,
			Position: pos,
			Found:    found,
			Expected: strconv.Quote(r.Name),
		}
	}
	if pos < len(header) {
		return nil, &BindingError{
			Reason:   "unexpected column " + strconv.Quote(header[pos]),
			Column:   header[pos],
			Position: pos,
			Found:    strconv.Quote(header[pos]),
			Expected: "end of header",
		}
	}
	return b, nil
}

// bindOrdinal binds rule i to position i. Optional flags do not shift
// positions in headerless mode.
func bindOrdinal(s *schema.Schema) (*Binding, error) {
	width := len(s.Rules)
	if tc := s.Directives.TotalColumns; tc > 0 {
		if tc < len(s.Rules) {
			return nil, &BindingError{
				Reason:   "schema declares more columns than @totalColumns",
				Position: -1,
				Found:    strconv.Itoa(len(s.Rules)),
				Expected: strconv.Itoa(tc),
			}
		}
		width = tc
	}
	b := &Binding{
		Schema:     s,
		ByPosition: make(map[int]*schema.ColumnRule, len(s.Rules)),
		Columns:    make(map[string]int, len(s.Rules)),
		Width:      width,
	}
	for i := range s.Rules {
		r := &s.Rules[i]
		b.ByPosition[i] = r
		b.Columns[r.Name] = i
	}
	return b, nil
}
