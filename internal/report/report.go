// Package report renders a validation result for people (text) and tools
// (JSON), and streams violations into a storage backend.
package report

import (
	"time"

	"csvs/internal/validator"
)

// Summary is the headline of one validation run.
type Summary struct {
	RunID       string `json:"run_id"`
	Job         string `json:"job"`
	Schema      string `json:"schema"`
	Source      string `json:"source"`
	Valid       bool   `json:"valid"`
	Mode        string `json:"mode"`
	Rows        int    `json:"rows"`
	Violations  int    `json:"violations"`
	Warnings    int    `json:"warnings"`
	ParseErrors int    `json:"parse_errors"`
	Sunk        int64  `json:"sunk,omitempty"`
	DurationMS  int64  `json:"duration_ms"`
}

// NewSummary fills the counts from res. The caller sets the identity
// fields and Sunk.
func NewSummary(res validator.Result, parseErrors int, took time.Duration) Summary {
	return Summary{
		Valid:       res.Valid,
		Mode:        res.Mode,
		Rows:        res.Rows,
		Violations:  len(res.Violations),
		Warnings:    len(res.Warnings),
		ParseErrors: parseErrors,
		DurationMS:  took.Milliseconds(),
	}
}

// shown returns at most max items; max <= 0 means all.
func shown(vs []validator.Violation, max int) []validator.Violation {
	if max <= 0 || len(vs) <= max {
		return vs
	}
	return vs[:max]
}
