// Package csv reads the documents being validated. It streams records
// without whole-file buffering and hands them to the validator as
// validator.Record values with their data-row index and physical line.
//
// Field counts are not enforced here; a short or long row is passed through
// so the validator can report it against the bound width.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"csvs/internal/validator"
)

// ErrEmpty is returned by Header when the input holds no records at all.
var ErrEmpty = errors.New("csv: empty document")

// Options configures a Reader. The zero value reads comma-separated input
// with a header row disabled; use the schema's directives to fill it.
type Options struct {
	// Comma is the field delimiter. When zero, ',' is used.
	Comma rune

	// Quoted requires RFC 4180 quoting. When false the decoder runs with
	// LazyQuotes, so a bare quote inside an unquoted field is kept as data.
	Quoted bool

	// HasHeader makes the first record the header row.
	HasHeader bool

	// TrimSpace trims leading/trailing whitespace from every data cell.
	TrimSpace bool

	// Scrub lists literal byte rewrites applied before decoding.
	Scrub []Replacement

	// Verbose logs a heartbeat every logEveryN rows.
	Verbose bool
}

const logEveryN = 50_000

// Reader decodes one CSV document. It is not safe for concurrent use.
type Reader struct {
	cr        *csv.Reader
	opt       Options
	header    []string
	headerErr error
	started   bool
	index     int
}

// NewReader wraps r.
func NewReader(r io.Reader, opt Options) *Reader {
	cr := csv.NewReader(withReplacements(r, opt.Scrub))
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.LazyQuotes = !opt.Quoted
	cr.FieldsPerRecord = -1
	return &Reader{cr: cr, opt: opt}
}

// Header reads and returns the header row. It returns (nil, nil) when
// HasHeader is false and ErrEmpty when the input has no records. The BOM,
// if any, is stripped from the first cell.
func (r *Reader) Header() ([]string, error) {
	if r.started {
		return r.header, r.headerErr
	}
	r.started = true
	if !r.opt.HasHeader {
		return nil, nil
	}
	h, err := r.cr.Read()
	switch {
	case err == io.EOF:
		r.headerErr = ErrEmpty
	case err != nil:
		r.headerErr = fmt.Errorf("read csv header: %w", err)
	default:
		r.header = StripHeaderBOM(h)
	}
	return r.header, r.headerErr
}

// Next returns the next data record, or io.EOF. A decode error is returned
// with the record's line; the reader can continue past it.
func (r *Reader) Next() (validator.Record, error) {
	if !r.started {
		if _, err := r.Header(); err != nil {
			return validator.Record{}, err
		}
	}
	cells, err := r.cr.Read()
	if err == io.EOF {
		return validator.Record{}, io.EOF
	}
	if err != nil {
		var pe *csv.ParseError
		line := 0
		if errors.As(err, &pe) {
			line = pe.StartLine
		}
		return validator.Record{Line: line}, fmt.Errorf("csv read: %w", err)
	}
	if r.index == 0 && !r.opt.HasHeader {
		cells = StripHeaderBOM(cells)
	}
	if r.opt.TrimSpace {
		for i, v := range cells {
			cells[i] = strings.TrimSpace(v)
		}
	}
	line, _ := r.cr.FieldPos(0)
	rec := validator.Record{Index: r.index, Line: line, Cells: cells}
	r.index++
	return rec, nil
}

// Stream sends every data record to out until EOF. Decode errors are soft:
// they go to onErr and the stream continues. Stream returns nil at EOF, the
// header error if the header cannot be read, or ctx.Err() on cancellation.
// The caller closes out.
func (r *Reader) Stream(ctx context.Context, out chan<- validator.Record, onErr func(line int, err error)) error {
	if _, err := r.Header(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if onErr != nil {
				onErr(rec.Line, err)
			}
			continue
		}

		select {
		case out <- rec:
			if r.opt.Verbose && r.index%logEveryN == 0 {
				log.Printf("reader: line=%d emitted=%d", rec.Line, r.index)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ReadAll returns every remaining data record's cells.
func (r *Reader) ReadAll() ([][]string, error) {
	var rows [][]string
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, rec.Cells)
	}
}

// Rows reports how many data records have been returned so far.
func (r *Reader) Rows() int { return r.index }
