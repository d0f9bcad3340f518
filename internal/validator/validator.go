// Package validator evaluates bound column rules against data rows.
//
// Rows arrive on a channel (see ValidateStream), so the CSV reader and the
// evaluator run concurrently. The loop is drain-safe: after a fail-fast stop
// or a cancelled context it keeps receiving and discarding rows until the
// producer closes the channel, so an upstream reader never blocks on a send.
package validator

import (
	"context"
	"fmt"
	"strings"

	"csvs/internal/binder"
)

// Mode selects when validation stops.
type Mode int

const (
	// FailFast stops at the first invalid cell.
	FailFast Mode = iota
	// CollectAll scans every row and reports every violation.
	CollectAll
)

func (m Mode) String() string {
	if m == CollectAll {
		return "collect_all"
	}
	return "fail_fast"
}

// ParseMode accepts "fail_fast" or "collect_all" (hyphens and case are
// ignored). The empty string is FailFast.
func ParseMode(s string) (Mode, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "", "fail_fast", "failfast":
		return FailFast, nil
	case "collect_all", "collectall", "all":
		return CollectAll, nil
	}
	return FailFast, fmt.Errorf("validator: unknown mode %q", s)
}

// Violation codes.
const (
	CodePredicate = "predicate"
	CodeRowWidth  = "row_width"

	// CodeParse marks a line the CSV decoder rejected. Row is -1.
	CodeParse = "csv_parse"

	// CodeEmpty marks a document without data rows under a schema that
	// does not declare @permitEmpty. Row and Column are -1.
	CodeEmpty = "empty_document"
)

// Record is one data row. Index is 0-based over data rows (the header is
// not counted); Line is the 1-based physical line, 0 when unknown.
type Record struct {
	Index int
	Line  int
	Cells []string
}

// Violation locates one invalid cell. Column is -1 for whole-row problems.
type Violation struct {
	Row        int    `json:"row"`
	Line       int    `json:"line,omitempty"`
	Column     int    `json:"column"`
	ColumnName string `json:"column_name,omitempty"`
	Value      string `json:"value"`
	Code       string `json:"code"`
	Expr       string `json:"expr,omitempty"`
	Warning    bool   `json:"warning,omitempty"`
}

func (v Violation) String() string {
	return fmt.Sprintf("[%d, %d]: %q", v.Row, v.Column, v.Value)
}

func less(a, b Violation) bool {
	if a.Row != b.Row {
		return a.Row < b.Row
	}
	return a.Column < b.Column
}

// Result is the outcome of one validation.
type Result struct {
	Valid      bool        `json:"valid"`
	Mode       string      `json:"mode"`
	Rows       int         `json:"rows"`
	Violations []Violation `json:"violations"`
	Warnings   []Violation `json:"warnings,omitempty"`
}

// First returns the lowest-located violation.
func (r *Result) First() (Violation, bool) {
	if len(r.Violations) == 0 {
		return Violation{}, false
	}
	return r.Violations[0], true
}

// Options tunes a validation run.
type Options struct {
	Mode Mode
	// Workers > 1 evaluates rows on a worker pool.
	Workers int
	// OnViolation, when set, sees every violation and warning that ends up
	// in the Result. Calls are serialised. Under CollectAll with Workers > 1
	// they come as rows finish, not in order; under FailFast with workers
	// they come in order once the run is over.
	OnViolation func(Violation)
	// OnFailure, when set, is called under FailFast as soon as a row with a
	// hard violation is seen, possibly from several workers.
	OnFailure func()
}

// Validate checks in-memory rows. Row i gets Index i.
func Validate(ctx context.Context, b *binder.Binding, rows [][]string, opt Options) Result {
	in := make(chan Record, 64)
	go func() {
		defer close(in)
		for i, r := range rows {
			in <- Record{Index: i, Cells: r}
		}
	}()
	return ValidateStream(ctx, b, in, opt)
}

// ValidateStream checks every record received on in until in is closed.
func ValidateStream(ctx context.Context, b *binder.Binding, in <-chan Record, opt Options) Result {
	if opt.Workers > 1 {
		return validateParallel(ctx, b, in, opt)
	}

	res := Result{Mode: opt.Mode.String()}
	stopped := false
	emit := func(v Violation) {
		if v.Warning {
			res.Warnings = append(res.Warnings, v)
		} else {
			res.Violations = append(res.Violations, v)
		}
		if opt.OnViolation != nil {
			opt.OnViolation(v)
		}
	}
	for rec := range in {
		// Keep draining after a stop so the producer never blocks.
		if stopped || ctx.Err() != nil {
			continue
		}
		res.Rows++
		if failed := checkRow(ctx, b, rec, opt.Mode, emit); failed && opt.Mode == FailFast {
			stopped = true
			if opt.OnFailure != nil {
				opt.OnFailure()
			}
		}
	}
	res.Valid = len(res.Violations) == 0
	return res
}

// checkRow evaluates one record and reports whether it holds a hard
// (non-warning) violation. Under FailFast the row stops at its first hard
// violation, which is its lowest failing column.
//
// A row of the wrong width gets a row_width violation at column -1. Under
// CollectAll the cells it does have, up to the bound width, are still
// checked.
func checkRow(ctx context.Context, b *binder.Binding, rec Record, mode Mode, emit func(Violation)) bool {
	cells := rec.Cells
	hard := false
	if len(cells) != b.Width {
		emit(Violation{
			Row:    rec.Index,
			Line:   rec.Line,
			Column: -1,
			Value:  fmt.Sprintf("%d fields, expected %d", len(cells), b.Width),
			Code:   CodeRowWidth,
		})
		if mode == FailFast {
			return true
		}
		hard = true
		cells = cells[:min(len(cells), b.Width)]
	}

	env := b.Env(rec.Cells)
	for pos, cell := range cells {
		r := b.Rule(pos)
		if r == nil {
			continue
		}
		ok, failed := r.Check(ctx, cell, env)
		if ok {
			continue
		}
		emit(Violation{
			Row:        rec.Index,
			Line:       rec.Line,
			Column:     pos,
			ColumnName: r.Name,
			Value:      cell,
			Code:       CodePredicate,
			Expr:       failed.String(),
			Warning:    r.Directives.Warning,
		})
		if !r.Directives.Warning {
			hard = true
			if mode == FailFast {
				return true
			}
		}
	}
	return hard
}
