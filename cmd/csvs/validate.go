package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"csvs/internal/config"
	"csvs/internal/datasource"
	"csvs/internal/datasource/file"
	"csvs/internal/engine"
	"csvs/internal/report"
)

type validateFlags struct {
	configPath     string
	schema         string
	csvList        string
	mode           string
	workers        int
	format         string
	maxShown       int
	trimSpace      bool
	sinkKind       string
	sinkDSN        string
	sinkTable      string
	autoCreate     bool
	metricsBackend string
	pushgatewayURL string
	checkConfig    bool
	watch          bool
}

func newValidateCmd() *cobra.Command {
	var f validateFlags
	cmd := &cobra.Command{
		Use:   "validate [csv ...]",
		Short: "Validate one or more CSV documents",
		Long: `Validate CSV documents (paths, http(s) URLs or "-" for stdin) against a
CSVS schema. Settings come from --config, then CSVS_* environment
variables, then flags.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveRun(cmd, f)
			if err != nil {
				return &exitCodeError{code: exitError, err: err}
			}
			data, err := dataLocations(cfg, args, f.csvList)
			if err != nil {
				return &exitCodeError{code: exitError, err: err}
			}

			stderr := cmd.ErrOrStderr()
			issues := config.ValidateRun(withData(cfg, first(data)))
			for _, iss := range issues {
				fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
			}
			if config.HasErrors(issues) {
				return &exitCodeError{code: exitError, err: errors.New("configuration is invalid")}
			}
			if f.checkConfig {
				fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
				return nil
			}

			flush := setupMetrics(cfg)
			defer flush()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			e := engine.New()
			if f.watch {
				return watchAndValidate(ctx, watchPaths(cfg, data), defaultDebounce, func() {
					validateAll(ctx, e, cmd.OutOrStdout(), stderr, cfg, data)
				})
			}
			if code := validateAll(ctx, e, cmd.OutOrStdout(), stderr, cfg, data); code != exitValid {
				return &exitCodeError{code: code}
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "run config (JSON or YAML)")
	fl.StringVarP(&f.schema, "schema", "s", "", "CSVS schema path or URL")
	fl.StringVar(&f.csvList, "csv-list", "", "file listing CSV locations, one per line")
	fl.StringVar(&f.mode, "mode", "", "fail_fast or collect_all")
	fl.IntVar(&f.workers, "workers", 0, "row evaluation workers")
	fl.StringVar(&f.format, "format", "", "report format: text or json")
	fl.IntVar(&f.maxShown, "max-shown", 0, "violations printed per document (negative prints all)")
	fl.BoolVar(&f.trimSpace, "trim-space", false, "trim whitespace around every cell")
	fl.StringVar(&f.sinkKind, "sink-kind", "", "violations sink: postgres, mysql, mssql or sqlite")
	fl.StringVar(&f.sinkDSN, "sink-dsn", "", "violations sink DSN")
	fl.StringVar(&f.sinkTable, "sink-table", "", "violations sink table")
	fl.BoolVar(&f.autoCreate, "auto-create-table", false, "create the sink table if missing")
	fl.StringVar(&f.metricsBackend, "metrics-backend", "", "metrics backend: none, pushgateway or datadog")
	fl.StringVar(&f.pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	fl.BoolVar(&f.checkConfig, "check-config", false, "validate the configuration and exit")
	fl.BoolVar(&f.watch, "watch", false, "re-run whenever the schema or a local CSV changes")
	return cmd
}

// resolveRun loads the config file and environment, then applies the
// flags the user set explicitly.
func resolveRun(cmd *cobra.Command, f validateFlags) (config.Run, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}
	changed := cmd.Flags().Changed

	if changed("schema") {
		cfg.Schema = config.Schema{Path: f.schema}
		if datasource.IsURL(f.schema) {
			cfg.Schema = config.Schema{URL: f.schema}
		}
	}
	if changed("mode") {
		cfg.Runtime.Mode = f.mode
	}
	if changed("workers") {
		cfg.Runtime.Workers = f.workers
	}
	if changed("format") {
		cfg.Report.Format = f.format
	}
	if changed("max-shown") {
		cfg.Report.MaxShown = f.maxShown
	}
	if changed("trim-space") {
		if cfg.Reader.Options == nil {
			cfg.Reader.Options = config.Options{}
		}
		cfg.Reader.Options["trim_space"] = f.trimSpace
	}
	if changed("sink-kind") {
		cfg.Report.Sink.Kind = f.sinkKind
	}
	if changed("sink-dsn") {
		cfg.Report.Sink.DSN = f.sinkDSN
	}
	if changed("sink-table") {
		cfg.Report.Sink.Table = f.sinkTable
	}
	if changed("auto-create-table") {
		cfg.Report.Sink.AutoCreateTable = f.autoCreate
	}
	if changed("metrics-backend") {
		cfg.Metrics.Backend = f.metricsBackend
	}
	if changed("pushgateway-url") {
		cfg.Metrics.PushgatewayURL = f.pushgatewayURL
	}
	return cfg, nil
}

// dataLocations gathers CSV locations from args and the list file, falling
// back to the config's source.
func dataLocations(cfg config.Run, args []string, listPath string) ([]string, error) {
	locs := append([]string(nil), args...)
	if listPath != "" {
		more, err := file.ReadList(listPath)
		if err != nil {
			return nil, err
		}
		locs = append(locs, more...)
	}
	if len(locs) > 0 {
		return locs, nil
	}
	if cfg.Source.Kind == "http" {
		return []string{cfg.Source.HTTP.URL}, nil
	}
	return []string{cfg.Source.File.Path}, nil
}

// withData points cfg's source at loc.
func withData(cfg config.Run, loc string) config.Run {
	if datasource.IsURL(loc) {
		cfg.Source.Kind = "http"
		cfg.Source.HTTP.URL = loc
		cfg.Source.File.Path = ""
		return cfg
	}
	cfg.Source.Kind = "file"
	cfg.Source.File.Path = loc
	return cfg
}

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// validateAll runs every document and returns the worst exit status.
func validateAll(ctx context.Context, e *engine.Engine, stdout, stderr io.Writer, cfg config.Run, data []string) int {
	code := exitValid
	for _, loc := range data {
		c := validateOne(ctx, e, stdout, stderr, withData(cfg, loc))
		if c > code {
			code = c
		}
		if ctx.Err() != nil {
			break
		}
	}
	return code
}

func validateOne(ctx context.Context, e *engine.Engine, stdout, stderr io.Writer, cfg config.Run) int {
	job, err := engine.FromConfig(cfg)
	if err != nil {
		fmt.Fprintln(stderr, "csvs:", err)
		return exitError
	}

	out, err := e.Run(ctx, job)
	completed := out.Summary.RunID != ""
	if err != nil {
		fmt.Fprintf(stderr, "csvs: %s: %v\n", job.Data, err)
		if !completed {
			return exitError
		}
	}

	var werr error
	if cfg.Report.Format == "json" {
		werr = report.WriteJSON(stdout, out.Summary, out.Result, cfg.Report.MaxShown)
	} else {
		werr = report.WriteText(stdout, out.Summary, out.Result, cfg.Report.MaxShown)
	}
	if werr != nil {
		fmt.Fprintln(stderr, "csvs: write report:", werr)
		return exitError
	}

	switch {
	case err != nil:
		return exitError
	case !out.Result.Valid:
		return exitInvalid
	}
	return exitValid
}
