package report

import (
	"context"

	"csvs/internal/metrics"
	"csvs/internal/storage"
	"csvs/internal/validator"
)

// Row converts v into a violations-table row in storage.ViolationColumns
// order. A zero line is stored as NULL.
func Row(runID, job string, v validator.Violation) []any {
	var line any
	if v.Line > 0 {
		line = int64(v.Line)
	}
	return []any{
		runID,
		job,
		int64(v.Row),
		line,
		v.Column,
		v.ColumnName,
		v.Value,
		v.Code,
		v.Expr,
		v.Warning,
	}
}

// SinkOptions configures a Sink.
type SinkOptions struct {
	RunID     string
	Job       string
	BatchSize int
}

// Sink streams violations into a repository in batches while validation is
// still running. Add may be called from the validator's OnViolation hook.
type Sink struct {
	opt  SinkOptions
	ch   chan []any
	done chan struct{}
	n    int64
	err  error
}

// NewSink starts the loader goroutine. Close must be called to flush.
func NewSink(ctx context.Context, repo storage.Repository, opt SinkOptions) *Sink {
	if opt.BatchSize <= 0 {
		opt.BatchSize = 5000
	}
	s := &Sink{
		opt:  opt,
		ch:   make(chan []any, opt.BatchSize),
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		s.n, s.err = storage.LoadBatches(ctx, storage.ViolationColumnNames(), s.ch, opt.BatchSize,
			repo.CopyFrom,
			func(n int64) {
				metrics.RecordBatches(opt.Job, 1)
				metrics.RecordRows(opt.Job, metrics.KindSunk, n)
			},
		)
	}()
	return s
}

// Add queues one violation. It never blocks indefinitely: after a load
// failure the loader keeps draining.
func (s *Sink) Add(v validator.Violation) {
	s.ch <- Row(s.opt.RunID, s.opt.Job, v)
}

// Close flushes the last batch and returns rows written and the first error.
func (s *Sink) Close() (int64, error) {
	close(s.ch)
	<-s.done
	return s.n, s.err
}
