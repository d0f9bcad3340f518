package config

import (
	"fmt"
	"net/url"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a finding that should be surfaced to users but
	// does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Run.
//
// Path is a dotted path into the config (e.g. "report.sink.dsn").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidateRun performs static validation of a Run after defaults are applied.
// It does not mutate r.
func ValidateRun(r Run) []Issue {
	var issues []Issue
	if strings.TrimSpace(r.Job) == "" {
		issues = append(issues, Issue{SeverityError, "job", "job must not be empty; it labels metrics and sink rows"})
	}
	issues = append(issues, validateSchema(r.Schema)...)
	issues = append(issues, validateSource(r.Source)...)
	issues = append(issues, validateRuntime(r.Runtime)...)
	issues = append(issues, validateReport(r.Report)...)
	issues = append(issues, validateMetrics(r.Metrics)...)
	return issues
}

func validateSchema(s Schema) []Issue {
	switch {
	case s.Path == "" && s.URL == "":
		return []Issue{{SeverityError, "schema", "one of schema.path or schema.url is required"}}
	case s.Path != "" && s.URL != "":
		return []Issue{{SeverityError, "schema", "schema.path and schema.url are mutually exclusive"}}
	case s.URL != "" && !isHTTPURL(s.URL):
		return []Issue{{SeverityError, "schema.url", fmt.Sprintf("%q is not an http(s) URL", s.URL)}}
	}
	return nil
}

func validateSource(s Source) []Issue {
	var issues []Issue
	switch s.Kind {
	case "file":
		if strings.TrimSpace(s.File.Path) == "" {
			issues = append(issues, Issue{SeverityError, "source.file.path", "file source requires a non-empty path"})
		}
	case "http":
		if !isHTTPURL(s.HTTP.URL) {
			issues = append(issues, Issue{SeverityError, "source.http.url", fmt.Sprintf("%q is not an http(s) URL", s.HTTP.URL)})
		}
		if s.HTTP.MaxRetries < 0 {
			issues = append(issues, Issue{SeverityError, "source.http.max_retries", "max_retries must not be negative"})
		}
		if s.HTTP.Timeout < 0 {
			issues = append(issues, Issue{SeverityError, "source.http.timeout", "timeout must not be negative"})
		}
	default:
		issues = append(issues, Issue{SeverityError, "source.kind", fmt.Sprintf("unknown source kind %q (want file or http)", s.Kind)})
	}
	return issues
}

func validateRuntime(r Runtime) []Issue {
	var issues []Issue
	switch strings.ReplaceAll(strings.ToLower(r.Mode), "-", "_") {
	case "fail_fast", "collect_all":
	default:
		issues = append(issues, Issue{SeverityError, "runtime.mode", fmt.Sprintf("unknown mode %q (want fail_fast or collect_all)", r.Mode)})
	}
	if r.Workers < 1 {
		issues = append(issues, Issue{SeverityError, "runtime.workers", "workers must be at least 1"})
	}
	if r.ChannelBuffer < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.channel_buffer", "channel_buffer must not be negative"})
	}
	if r.MaxInflightIO < 1 {
		issues = append(issues, Issue{SeverityError, "runtime.max_inflight_io", "max_inflight_io must be at least 1"})
	}
	if r.IOTimeout < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.io_timeout", "io_timeout must not be negative"})
	}
	return issues
}

func validateReport(r Report) []Issue {
	var issues []Issue
	switch r.Format {
	case "text", "json":
	default:
		issues = append(issues, Issue{SeverityError, "report.format", fmt.Sprintf("unknown format %q (want text or json)", r.Format)})
	}
	if r.MaxShown < 0 {
		issues = append(issues, Issue{SeverityWarning, "report.max_shown", "negative max_shown prints every violation"})
	}

	s := r.Sink
	if s.Kind == "" {
		if s.DSN != "" {
			issues = append(issues, Issue{SeverityWarning, "report.sink.kind", "sink dsn is set but kind is empty; the sink is disabled"})
		}
		return issues
	}
	known := map[string]struct{}{
		"postgres": {},
		"mysql":    {},
		"mssql":    {},
		"sqlite":   {},
	}
	if _, ok := known[s.Kind]; !ok {
		issues = append(issues, Issue{SeverityWarning, "report.sink.kind", fmt.Sprintf("unknown sink kind %q; ensure a matching backend is registered", s.Kind)})
	}
	if strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{SeverityError, "report.sink.dsn", "report.sink.dsn must not be empty"})
	}
	if strings.TrimSpace(s.Table) == "" {
		issues = append(issues, Issue{SeverityError, "report.sink.table", "report.sink.table must not be empty"})
	}
	if s.BatchSize <= 0 {
		issues = append(issues, Issue{SeverityWarning, "report.sink.batch_size", fmt.Sprintf("batch_size=%d; non-positive batch sizes flush every row", s.BatchSize)})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	switch m.Backend {
	case "none":
	case "pushgateway":
		if m.PushgatewayURL == "" {
			return []Issue{{SeverityError, "metrics.pushgateway_url", "pushgateway backend needs pushgateway_url or PUSHGATEWAY_URL"}}
		}
	case "datadog":
		if m.DatadogAddr == "" {
			return []Issue{{SeverityWarning, "metrics.datadog_addr", "datadog_addr empty; the client default agent address is used"}}
		}
	default:
		return []Issue{{SeverityError, "metrics.backend", fmt.Sprintf("unknown metrics backend %q", m.Backend)}}
	}
	return nil
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
