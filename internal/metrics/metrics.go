// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from validation runs.
//
// It exposes a narrow interface (Backend) for counters and timings, with a
// global pluggable backend that defaults to a no-op, so metrics are always
// safe to call even when no real backend is configured. Concrete systems
// live in subpackages (prompush, datadog).
package metrics

import "time"

// Metric names shared by every backend.
const (
	StepTotal        = "csvs_step_total"
	StepDuration     = "csvs_step_duration_seconds"
	RowsTotal        = "csvs_rows_total"
	SinkBatchesTotal = "csvs_sink_batches_total"
)

// Row kinds recorded under RowsTotal.
const (
	KindScanned     = "scanned"
	KindViolations  = "violations"
	KindWarnings    = "warnings"
	KindParseErrors = "parse_errors"
	KindSunk        = "sunk"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep measures latency and success/failure of one run step
// ("compile", "bind", "validate", "sink").
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status,
	}

	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRows increments a row-level counter for the given job and kind (see
// the Kind constants). Non-positive deltas are ignored.
func RecordRows(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RowsTotal, float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordBatches increments the sink batch counter for the given job.
func RecordBatches(job string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(SinkBatchesTotal, float64(delta), Labels{
		"job": job,
	})
}
