package report

import (
	"io"

	"github.com/goccy/go-json"

	"csvs/internal/validator"
)

// Document is the JSON report.
type Document struct {
	Summary    Summary               `json:"summary"`
	Violations []validator.Violation `json:"violations"`
	Warnings   []validator.Violation `json:"warnings,omitempty"`
	// Truncated is set when maxShown cut either list.
	Truncated bool `json:"truncated,omitempty"`
}

// NewDocument builds the JSON report, keeping up to maxShown entries per
// list (maxShown <= 0 keeps all).
func NewDocument(sum Summary, res validator.Result, maxShown int) Document {
	d := Document{
		Summary:    sum,
		Violations: shown(res.Violations, maxShown),
		Warnings:   shown(res.Warnings, maxShown),
	}
	if d.Violations == nil {
		d.Violations = []validator.Violation{}
	}
	d.Truncated = len(d.Violations) < len(res.Violations) || len(d.Warnings) < len(res.Warnings)
	return d
}

// WriteJSON writes the indented JSON report followed by a newline.
func WriteJSON(w io.Writer, sum Summary, res validator.Result, maxShown int) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewDocument(sum, res, maxShown))
}
