package engine

import (
	"fmt"
	"sort"

	"csvs/internal/config"
	"csvs/internal/datasource/httpds"
	"csvs/internal/external"
	csvparser "csvs/internal/parser/csv"
	"csvs/internal/validator"
)

// Job is one validation: a schema, a document and how to run.
type Job struct {
	Name string

	// Schema is a path or http(s) URL. SchemaText, when set, is used
	// instead.
	Schema     string
	SchemaText string

	// Data is a path, an http(s) URL or "-" for standard input.
	Data string

	Mode          validator.Mode
	Workers       int
	ChannelBuffer int

	// Reader carries the non-schema reader tweaks. Comma and HasHeader
	// always come from the schema; Quoted does too unless QuotedOverride
	// is set.
	Reader         csvparser.Options
	QuotedOverride *bool

	External external.Options
	HTTP     httpds.Config

	// Sink, when non-nil, receives every violation and warning.
	Sink *SinkConfig
}

// SinkConfig selects the violations table.
type SinkConfig struct {
	Kind            string
	DSN             string
	Table           string
	AutoCreateTable bool
	BatchSize       int
}

// FromConfig resolves a decoded run file into a Job.
func FromConfig(cfg config.Run) (Job, error) {
	mode, err := validator.ParseMode(cfg.Runtime.Mode)
	if err != nil {
		return Job{}, err
	}

	j := Job{
		Name:          cfg.Job,
		Schema:        cfg.Schema.Path,
		Mode:          mode,
		Workers:       cfg.Runtime.Workers,
		ChannelBuffer: cfg.Runtime.ChannelBuffer,
		External: external.Options{
			MaxInflight: cfg.Runtime.MaxInflightIO,
			Timeout:     cfg.Runtime.IOTimeout.Std(),
		},
		HTTP: httpds.Config{
			Timeout:    cfg.Source.HTTP.Timeout.Std(),
			MaxRetries: cfg.Source.HTTP.MaxRetries,
		},
	}
	if j.Schema == "" {
		j.Schema = cfg.Schema.URL
	}

	switch cfg.Source.Kind {
	case "", "file":
		j.Data = cfg.Source.File.Path
	case "http":
		j.Data = cfg.Source.HTTP.URL
	default:
		return Job{}, fmt.Errorf("unsupported source.kind=%s", cfg.Source.Kind)
	}

	opts := cfg.Reader.Options
	j.Reader.TrimSpace = opts.Bool("trim_space", false)
	if opts.Has("quoted") {
		q := opts.Bool("quoted", false)
		j.QuotedOverride = &q
	}
	if scrub := opts.StringMap("scrub"); len(scrub) > 0 {
		froms := make([]string, 0, len(scrub))
		for from := range scrub {
			froms = append(froms, from)
		}
		sort.Strings(froms)
		for _, from := range froms {
			j.Reader.Scrub = append(j.Reader.Scrub, csvparser.Replacement{From: from, To: scrub[from]})
		}
	}

	if s := cfg.Report.Sink; s.Kind != "" {
		j.Sink = &SinkConfig{
			Kind:            s.Kind,
			DSN:             s.DSN,
			Table:           s.Table,
			AutoCreateTable: s.AutoCreateTable,
			BatchSize:       s.BatchSize,
		}
	}
	return j, nil
}
