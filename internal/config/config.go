// Package config defines the run configuration for csvs. A Run can be
// decoded from JSON or YAML (chosen by file extension) and is then overlaid
// with environment variables, so the same file works across machines.
//
// Example (trimmed):
//
//	{
//	  "schema":  { "path": "schemas/people.csvs" },
//	  "source":  { "kind": "file", "file": { "path": "people.csv" } },
//	  "runtime": { "mode": "collect_all", "workers": 4 },
//	  "report":  { "format": "json", "sink": { "kind": "sqlite", "dsn": "file:v.db" } }
//	}
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Run is the top-level object decoded from a run file.
type Run struct {
	// Job names the run for metrics labeling and sink rows.
	Job string `json:"job" yaml:"job" env:"JOB"`

	Schema  Schema  `json:"schema" yaml:"schema"`
	Source  Source  `json:"source" yaml:"source"`
	Reader  Reader  `json:"reader" yaml:"reader"`
	Runtime Runtime `json:"runtime" yaml:"runtime"`
	Report  Report  `json:"report" yaml:"report"`
	Metrics Metrics `json:"metrics" yaml:"metrics"`
}

// Schema locates the CSVS schema text. Exactly one of Path or URL is set.
type Schema struct {
	Path string `json:"path" yaml:"path" env:"SCHEMA"`
	URL  string `json:"url" yaml:"url" env:"SCHEMA_URL"`
}

// Source identifies the CSV document.
type Source struct {
	// Kind selects the source implementation: "file" or "http".
	Kind string     `json:"kind" yaml:"kind" env:"SOURCE_KIND"`
	File SourceFile `json:"file" yaml:"file"`
	HTTP SourceHTTP `json:"http" yaml:"http"`
}

// SourceFile holds configuration for the "file" source kind.
type SourceFile struct {
	Path string `json:"path" yaml:"path" env:"CSV"`
}

// SourceHTTP holds configuration for the "http" source kind.
type SourceHTTP struct {
	URL        string   `json:"url" yaml:"url" env:"CSV_URL"`
	Timeout    Duration `json:"timeout" yaml:"timeout" env:"HTTP_TIMEOUT"`
	MaxRetries int      `json:"max_retries" yaml:"max_retries" env:"HTTP_MAX_RETRIES"`
}

// Reader carries free-form CSV reader tweaks. Recognised keys:
//
//	trim_space (bool), quoted (bool, overrides @quoted),
//	scrub (object of literal from → to rewrites)
type Reader struct {
	Options Options `json:"options" yaml:"options"`
}

// Runtime controls evaluation mode and concurrency.
type Runtime struct {
	Mode          string   `json:"mode" yaml:"mode" env:"MODE"`
	Workers       int      `json:"workers" yaml:"workers" env:"WORKERS"`
	ChannelBuffer int      `json:"channel_buffer" yaml:"channel_buffer" env:"CHANNEL_BUFFER"`
	MaxInflightIO int64    `json:"max_inflight_io" yaml:"max_inflight_io" env:"MAX_INFLIGHT_IO"`
	IOTimeout     Duration `json:"io_timeout" yaml:"io_timeout" env:"IO_TIMEOUT"`
}

// Report selects output format and an optional violation sink.
type Report struct {
	Format   string `json:"format" yaml:"format" env:"FORMAT"`
	MaxShown int    `json:"max_shown" yaml:"max_shown" env:"MAX_SHOWN"`
	Sink     Sink   `json:"sink" yaml:"sink"`
}

// Sink configures the database that receives violation rows.
type Sink struct {
	// Kind selects the storage implementation ("postgres", "sqlite",
	// "mssql", "mysql"). Empty disables the sink.
	Kind            string `json:"kind" yaml:"kind" env:"SINK_KIND"`
	DSN             string `json:"dsn" yaml:"dsn" env:"SINK_DSN"`
	Table           string `json:"table" yaml:"table" env:"SINK_TABLE"`
	AutoCreateTable bool   `json:"auto_create_table" yaml:"auto_create_table" env:"SINK_AUTO_CREATE"`
	BatchSize       int    `json:"batch_size" yaml:"batch_size" env:"SINK_BATCH_SIZE"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	// Backend is "none", "pushgateway" or "datadog".
	Backend        string `json:"backend" yaml:"backend" env:"METRICS_BACKEND"`
	PushgatewayURL string `json:"pushgateway_url" yaml:"pushgateway_url" env:"PUSHGATEWAY_URL"`
	DatadogAddr    string `json:"datadog_addr" yaml:"datadog_addr" env:"DD_AGENT_ADDR"`
}

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CSVS_"

// Defaults returns a Run with every default applied.
func Defaults() Run {
	var r Run
	r.applyDefaults()
	return r
}

func (r *Run) applyDefaults() {
	if r.Job == "" {
		r.Job = "csvs"
	}
	if r.Source.Kind == "" {
		r.Source.Kind = "file"
		if r.Source.HTTP.URL != "" {
			r.Source.Kind = "http"
		}
	}
	if r.Source.HTTP.MaxRetries == 0 {
		r.Source.HTTP.MaxRetries = 3
	}
	if r.Source.HTTP.Timeout == 0 {
		r.Source.HTTP.Timeout = Duration(30 * time.Second)
	}
	if r.Runtime.Mode == "" {
		r.Runtime.Mode = "fail_fast"
	}
	if r.Runtime.Workers == 0 {
		r.Runtime.Workers = 1
	}
	if r.Runtime.ChannelBuffer == 0 {
		r.Runtime.ChannelBuffer = 1024
	}
	if r.Runtime.MaxInflightIO == 0 {
		r.Runtime.MaxInflightIO = 16
	}
	if r.Report.Format == "" {
		r.Report.Format = "text"
	}
	if r.Report.MaxShown == 0 {
		r.Report.MaxShown = 20
	}
	if r.Report.Sink.Table == "" {
		r.Report.Sink.Table = "csvs_violations"
	}
	if r.Report.Sink.BatchSize == 0 {
		r.Report.Sink.BatchSize = 5000
	}
	if r.Metrics.Backend == "" {
		r.Metrics.Backend = "none"
	}
}

// Load reads a run file (".json", ".yaml" or ".yml"), overlays the
// environment and applies defaults. An empty path yields defaults plus
// environment. A ".env" file in the working directory is loaded first when
// present; variables already set in the process win.
func Load(path string) (Run, error) {
	var r Run
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return r, fmt.Errorf("read config: %w", err)
		}
		if r, err = Decode(b, filepath.Ext(path)); err != nil {
			return r, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	_ = godotenv.Load() // a missing .env is fine
	if err := ApplyEnv(&r); err != nil {
		return r, err
	}
	r.applyDefaults()
	return r, nil
}

// Decode parses b as JSON, or as YAML when ext is ".yaml"/".yml".
func Decode(b []byte, ext string) (Run, error) {
	var r Run
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &r); err != nil {
			return r, err
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&r); err != nil {
			return r, err
		}
	}
	return r, nil
}

// ApplyEnv overlays CSVS_* environment variables on r. Unset variables leave
// the decoded values alone. The bare PUSHGATEWAY_URL and DD_AGENT_ADDR used
// by the metrics tooling are honoured as a fallback.
func ApplyEnv(r *Run) error {
	if err := env.ParseWithOptions(r, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config env: %w", err)
	}
	if r.Metrics.PushgatewayURL == "" {
		r.Metrics.PushgatewayURL = os.Getenv("PUSHGATEWAY_URL")
	}
	if r.Metrics.DatadogAddr == "" {
		r.Metrics.DatadogAddr = os.Getenv("DD_AGENT_ADDR")
	}
	return nil
}

// Duration is a time.Duration that decodes from "30s" style strings in JSON
// and YAML, and from a bare number of seconds in JSON.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalText implements encoding.TextUnmarshaler; the env and yaml
// decoders both use it.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// UnmarshalJSON accepts a duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return d.UnmarshalText([]byte(s))
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("duration: %s", b)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// MarshalJSON renders d as a duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Options is a small helper to fetch typed values from free-form maps. It
// performs only minimal type coercion and returns the provided default when
// a key is absent or of an unexpected type.
type Options map[string]any

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers are decoded as
// float64 by encoding/json; YAML integers arrive as int.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// Has reports whether key is present.
func (o Options) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// StringMap returns a map[string]string for key when the value is an object
// whose values are strings. Non-string values are ignored. Returns an empty
// map when the key is missing or the value is not an object.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		if m, ok := v.(map[string]any); ok {
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		}
	}
	return res
}

// UnmarshalJSON makes a missing or null "options" object decode to a non-nil,
// empty Options map.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
