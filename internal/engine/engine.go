// Package engine runs one validation end to end: load the schema, compile
// it, open the document, bind the header, stream rows through the
// validator and hand violations to the report sink. Schema and binding
// errors are returned before any data row is read.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"csvs/internal/binder"
	"csvs/internal/datasource"
	"csvs/internal/datasource/httpds"
	"csvs/internal/external"
	"csvs/internal/metrics"
	csvparser "csvs/internal/parser/csv"
	"csvs/internal/report"
	"csvs/internal/schema"
	"csvs/internal/schema/compile"
	"csvs/internal/storage"
	"csvs/internal/validator"
)

// Outcome is what one Run produced.
type Outcome struct {
	Summary report.Summary
	Result  validator.Result
	Schema  *schema.Schema
	Binding *binder.Binding
}

// Engine runs jobs. The zero value is not usable; call New.
type Engine struct {
	// Test seams. In production these point at the real implementations.
	openSource    func(loc string, c *httpds.Client) datasource.Source
	newRepository func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
	newRunID      func() string
	now           func() time.Time
}

// New returns an Engine wired to the real datasources and storage backends
// registered with the storage factory.
func New() *Engine {
	return &Engine{
		openSource: func(loc string, c *httpds.Client) datasource.Source {
			return datasource.ForLocation(loc, c)
		},
		newRepository: storage.New,
		newRunID:      uuid.NewString,
		now:           time.Now,
	}
}

// timed runs fn as a named step, logging and recording its duration.
func (e *Engine) timed(job, step string, fn func() error) error {
	start := e.now()
	err := fn()
	d := e.now().Sub(start)
	metrics.RecordStep(job, step, err, d)
	if err != nil {
		log.Printf("%s: failed after %s: %v", step, d.Truncate(time.Millisecond), err)
	}
	return err
}

// CompileSchema loads and compiles the job's schema.
func (e *Engine) CompileSchema(ctx context.Context, job Job) (*schema.Schema, error) {
	text := job.SchemaText
	if text == "" {
		if job.Schema == "" {
			return nil, fmt.Errorf("no schema location")
		}
		var err error
		text, err = datasource.ReadString(ctx, e.openSource(job.Schema, httpds.NewClient(job.HTTP)))
		if err != nil {
			return nil, fmt.Errorf("load schema %s: %w", job.Schema, err)
		}
	}
	return compile.CompileText(text, compile.WithAdapter(external.NewLocal(job.External)))
}

// Run validates job.Data against job.Schema. A *schema.SchemaError or
// *binder.BindingError is returned before any row is scanned. Cell
// violations are data: they land in Outcome.Result, never in the error.
// A sink failure is returned alongside a complete Outcome.
func (e *Engine) Run(ctx context.Context, job Job) (Outcome, error) {
	var out Outcome
	start := e.now()
	if job.Name == "" {
		job.Name = "csvs"
	}
	name := job.Name

	log.Printf("engine: job=%s schema=%s data=%s mode=%s workers=%d",
		name, job.Schema, job.Data, job.Mode, job.Workers)

	if err := e.timed(name, "compile", func() error {
		var err error
		out.Schema, err = e.CompileSchema(ctx, job)
		return err
	}); err != nil {
		return out, err
	}
	d := out.Schema.Directives

	if job.Data == "" {
		return out, fmt.Errorf("no data location")
	}
	rc, err := e.openSource(job.Data, httpds.NewClient(job.HTTP)).Open(ctx)
	if err != nil {
		return out, fmt.Errorf("open %s: %w", job.Data, err)
	}
	defer rc.Close()

	ropt := job.Reader
	ropt.Comma = d.Separator
	ropt.Quoted = d.Quoted
	if job.QuotedOverride != nil {
		ropt.Quoted = *job.QuotedOverride
	}
	ropt.HasHeader = d.Header
	r := csvparser.NewReader(rc, ropt)

	header, err := r.Header()
	empty := errors.Is(err, csvparser.ErrEmpty)
	if err != nil && !empty {
		return out, err
	}

	if !empty {
		if err := e.timed(name, "bind", func() error {
			var err error
			out.Binding, err = binder.Bind(out.Schema, header)
			return err
		}); err != nil {
			return out, err
		}
	}

	runID := e.newRunID()
	var sink *report.Sink
	if job.Sink != nil {
		repo, err := e.openSink(ctx, job.Sink)
		if err != nil {
			return out, err
		}
		defer repo.Close()
		sink = report.NewSink(ctx, repo, report.SinkOptions{RunID: runID, Job: name, BatchSize: job.Sink.BatchSize})
	}

	var parseErrs []validator.Violation
	res := validator.Result{Valid: true, Mode: job.Mode.String()}
	if !empty {
		res, parseErrs, err = e.stream(ctx, job, r, out.Binding, sink)
		if err != nil {
			if sink != nil {
				_, _ = sink.Close()
			}
			return out, err
		}
	}

	if len(parseErrs) > 0 {
		res.Violations = append(res.Violations, parseErrs...)
		res.Valid = false
	}
	if res.Rows == 0 && len(parseErrs) == 0 && !d.PermitEmpty {
		v := validator.Violation{Row: -1, Column: -1, Code: validator.CodeEmpty}
		res.Violations = append(res.Violations, v)
		res.Valid = false
		if sink != nil {
			sink.Add(v)
		}
	}
	out.Result = res

	out.Summary = report.NewSummary(res, len(parseErrs), e.now().Sub(start))
	out.Summary.RunID = runID
	out.Summary.Job = name
	out.Summary.Schema = job.Schema
	out.Summary.Source = job.Data

	var sinkErr error
	if sink != nil {
		sinkErr = e.timed(name, "sink", func() error {
			var err error
			out.Summary.Sunk, err = sink.Close()
			return err
		})
	}

	cellViolations := int64(len(res.Violations) - len(parseErrs))
	metrics.RecordRows(name, metrics.KindScanned, int64(res.Rows))
	metrics.RecordRows(name, metrics.KindViolations, cellViolations)
	metrics.RecordRows(name, metrics.KindWarnings, int64(len(res.Warnings)))
	metrics.RecordRows(name, metrics.KindParseErrors, int64(len(parseErrs)))

	log.Printf("summary: valid=%t rows=%d violations=%d warnings=%d parse_errors=%d sunk=%d elapsed=%s",
		res.Valid, res.Rows, cellViolations, len(res.Warnings), len(parseErrs),
		out.Summary.Sunk, e.now().Sub(start).Truncate(time.Millisecond))

	if sinkErr != nil {
		return out, fmt.Errorf("sink: %w", sinkErr)
	}
	return out, nil
}

// stream runs the reader and the validator concurrently. Under FailFast
// the reader is stopped once a hard violation is seen; rows already queued
// are still evaluated, so the lowest failing location wins.
func (e *Engine) stream(
	ctx context.Context,
	job Job,
	r *csvparser.Reader,
	b *binder.Binding,
	sink *report.Sink,
) (validator.Result, []validator.Violation, error) {
	buf := job.ChannelBuffer
	if buf <= 0 {
		buf = 1024
	}

	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()

	in := make(chan validator.Record, buf)
	var parseErrs []validator.Violation
	readErr := make(chan error, 1)
	go func() {
		defer close(in)
		readErr <- r.Stream(readCtx, in, func(line int, err error) {
			parseErrs = append(parseErrs, validator.Violation{
				Row: -1, Line: line, Column: -1, Value: err.Error(), Code: validator.CodeParse,
			})
		})
	}()

	opt := validator.Options{
		Mode:    job.Mode,
		Workers: job.Workers,
		OnViolation: func(v validator.Violation) {
			if sink != nil {
				sink.Add(v)
			}
		},
		OnFailure: stopReading,
	}

	var res validator.Result
	err := e.timed(job.Name, "validate", func() error {
		res = validator.ValidateStream(ctx, b, in, opt)
		return ctx.Err()
	})
	if err != nil {
		<-readErr
		return res, nil, err
	}
	if rerr := <-readErr; rerr != nil && !(errors.Is(rerr, context.Canceled) && ctx.Err() == nil) {
		return res, nil, rerr
	}
	for _, v := range parseErrs {
		if sink != nil {
			sink.Add(v)
		}
	}
	return res, parseErrs, nil
}

// openSink opens the violations repository and, when asked, creates the
// table.
func (e *Engine) openSink(ctx context.Context, sc *SinkConfig) (storage.Repository, error) {
	table := sc.Table
	if table == "" {
		table = "csvs_violations"
	}
	log.Printf("sink: kind=%s table=%s", sc.Kind, table)
	repo, err := e.newRepository(ctx, storage.Config{Kind: sc.Kind, DSN: sc.DSN, Table: table})
	if err != nil {
		return nil, fmt.Errorf("init sink: %w", err)
	}
	if sc.AutoCreateTable {
		if err := storage.EnsureTable(ctx, sc.Kind, repo, table); err != nil {
			repo.Close()
			return nil, fmt.Errorf("apply DDL: %w", err)
		}
	}
	return repo, nil
}
