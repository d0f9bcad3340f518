package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csvs/internal/binder"
	"csvs/internal/config"
	"csvs/internal/metrics"
	"csvs/internal/schema"
	"csvs/internal/storage"
	"csvs/internal/storage/sqlite"
	"csvs/internal/validator"
)

const nameAge = `version 1.0
name: notEmpty
age: positiveInteger
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func newTestEngine() *Engine {
	e := New()
	e.newRunID = func() string { return "run-1" }
	return e
}

func TestRun_Valid(t *testing.T) {
	job := Job{
		Name:       "people",
		SchemaText: nameAge,
		Data:       writeFile(t, "p.csv", "name,age\nJo,3\nAnn,42\n"),
	}
	out, err := newTestEngine().Run(context.Background(), job)
	require.NoError(t, err)

	assert.True(t, out.Result.Valid)
	assert.Equal(t, 2, out.Result.Rows)
	assert.Empty(t, out.Result.Violations)
	assert.Equal(t, "run-1", out.Summary.RunID)
	assert.Equal(t, "people", out.Summary.Job)
	assert.Equal(t, job.Data, out.Summary.Source)
	require.NotNil(t, out.Binding)
	assert.Equal(t, map[string]int{"name": 0, "age": 1}, out.Binding.Columns)
}

func TestRun_CollectAll(t *testing.T) {
	job := Job{
		SchemaText: nameAge,
		Data:       writeFile(t, "p.csv", "name,age\nJo,x\n,5\nAl,7\n"),
		Mode:       validator.CollectAll,
	}
	out, err := newTestEngine().Run(context.Background(), job)
	require.NoError(t, err)

	assert.False(t, out.Result.Valid)
	assert.Equal(t, 3, out.Result.Rows)
	require.Len(t, out.Result.Violations, 2)
	assert.Equal(t, [2]int{0, 1}, [2]int{out.Result.Violations[0].Row, out.Result.Violations[0].Column})
	assert.Equal(t, "x", out.Result.Violations[0].Value)
	assert.Equal(t, 3, out.Result.Violations[0].Line)
	assert.Equal(t, [2]int{1, 0}, [2]int{out.Result.Violations[1].Row, out.Result.Violations[1].Column})
	assert.Equal(t, 2, out.Summary.Violations)
}

// Fail-fast reports the lowest failing location whatever the worker count.
func TestRun_FailFast(t *testing.T) {
	var b strings.Builder
	b.WriteString("name,age\n")
	for i := 0; i < 500; i++ {
		switch i {
		case 120:
			b.WriteString("Jo,bad\n")
		case 300:
			b.WriteString(",1\n")
		default:
			b.WriteString("Jo,1\n")
		}
	}
	data := writeFile(t, "p.csv", b.String())

	for _, workers := range []int{1, 4} {
		out, err := newTestEngine().Run(context.Background(), Job{
			SchemaText: nameAge,
			Data:       data,
			Mode:       validator.FailFast,
			Workers:    workers,
		})
		require.NoError(t, err)
		first, ok := out.Result.First()
		require.True(t, ok, "workers=%d", workers)
		assert.Equal(t, 120, first.Row, "workers=%d", workers)
		assert.Equal(t, 1, first.Column, "workers=%d", workers)
	}
}

func TestRun_BindingErrorBeforeRows(t *testing.T) {
	_, err := newTestEngine().Run(context.Background(), Job{
		SchemaText: nameAge,
		Data:       writeFile(t, "p.csv", "age,name\n3,Jo\n"),
	})
	var be *binder.BindingError
	require.True(t, errors.As(err, &be), "got %v", err)
	assert.Equal(t, 0, be.Position)
}

func TestRun_SchemaError(t *testing.T) {
	_, err := newTestEngine().Run(context.Background(), Job{
		SchemaText: "version 1.0\nage: range(1, x)\n",
		Data:       "never-opened.csv",
	})
	var se *schema.SchemaError
	require.True(t, errors.As(err, &se), "got %v", err)
}

func TestRun_SchemaFromFile(t *testing.T) {
	out, err := newTestEngine().Run(context.Background(), Job{
		Schema: writeFile(t, "p.csvs", nameAge),
		Data:   writeFile(t, "p.csv", "name,age\nJo,3\n"),
	})
	require.NoError(t, err)
	assert.True(t, out.Result.Valid)

	_, err = newTestEngine().Run(context.Background(), Job{
		Schema: filepath.Join(t.TempDir(), "missing.csvs"),
		Data:   "x.csv",
	})
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestRun_Empty(t *testing.T) {
	for _, tc := range []struct {
		name, schema, data string
		valid              bool
	}{
		{"no bytes", nameAge, "", false},
		{"header only", nameAge, "name,age\n", false},
		{"permitted", "version 1.0\n@permitEmpty\nname: notEmpty\nage: positiveInteger\n", "", true},
		{"permitted header only", "version 1.0\n@permitEmpty\nname: notEmpty\nage: positiveInteger\n", "name,age\n", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			out, err := newTestEngine().Run(context.Background(), Job{
				SchemaText: tc.schema,
				Data:       writeFile(t, "e.csv", tc.data),
			})
			require.NoError(t, err)
			assert.Equal(t, tc.valid, out.Result.Valid)
			if !tc.valid {
				require.Len(t, out.Result.Violations, 1)
				assert.Equal(t, validator.CodeEmpty, out.Result.Violations[0].Code)
			}
		})
	}
}

// Undecodable lines become csv_parse violations; the rest is still checked.
func TestRun_ParseErrors(t *testing.T) {
	out, err := newTestEngine().Run(context.Background(), Job{
		SchemaText: "version 1.0\n@quoted\nname: notEmpty\nage: positiveInteger\n",
		Data:       writeFile(t, "q.csv", "name,age\nJo,3\nAl,\"4\"x\nBo,5\n"),
		Mode:       validator.CollectAll,
	})
	require.NoError(t, err)

	assert.False(t, out.Result.Valid)
	assert.Equal(t, 2, out.Result.Rows)
	assert.Equal(t, 1, out.Summary.ParseErrors)
	require.Len(t, out.Result.Violations, 1)
	v := out.Result.Violations[0]
	assert.Equal(t, validator.CodeParse, v.Code)
	assert.Equal(t, 3, v.Line)
	assert.Equal(t, -1, v.Row)
}

func TestRun_HeaderlessSeparator(t *testing.T) {
	out, err := newTestEngine().Run(context.Background(), Job{
		SchemaText: "version 1.0\n@separator ';'\n@noHeader\nname: notEmpty\nage: positiveInteger\n",
		Data:       writeFile(t, "h.csv", "Jo;3\n;4\n"),
		Mode:       validator.CollectAll,
	})
	require.NoError(t, err)
	require.Len(t, out.Result.Violations, 1)
	assert.Equal(t, 1, out.Result.Violations[0].Row)
	assert.Equal(t, 0, out.Result.Violations[0].Column)
}

func TestRun_HTTPData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("name,age\nJo,3\n"))
	}))
	defer srv.Close()

	out, err := newTestEngine().Run(context.Background(), Job{SchemaText: nameAge, Data: srv.URL + "/p.csv"})
	require.NoError(t, err)
	assert.True(t, out.Result.Valid)
	assert.Equal(t, 1, out.Result.Rows)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestEngine().Run(ctx, Job{SchemaText: nameAge, Data: writeFile(t, "p.csv", "name,age\nJo,3\n")})
	require.ErrorIs(t, err, context.Canceled)
}

// keepOpen lets the test count rows after Run closes the repository.
type keepOpen struct{ *sqlite.Repository }

func (keepOpen) Close() {}

func TestRun_Sink(t *testing.T) {
	ctx := context.Background()
	repo, err := sqlite.NewRepository(ctx, ":memory:", "v")
	require.NoError(t, err)
	defer repo.Close()

	e := newTestEngine()
	var got storage.Config
	e.newRepository = func(_ context.Context, cfg storage.Config) (storage.Repository, error) {
		got = cfg
		return keepOpen{repo}, nil
	}

	out, err := e.Run(ctx, Job{
		SchemaText: "version 1.0\nname: notEmpty\nage: positiveInteger @warning\n",
		Data:       writeFile(t, "p.csv", "name,age\n,x\nAl,3\n,4\n"),
		Mode:       validator.CollectAll,
		Sink:       &SinkConfig{Kind: "sqlite", Table: "v", AutoCreateTable: true, BatchSize: 2},
	})
	require.NoError(t, err)

	assert.Equal(t, "v", got.Table)
	assert.Len(t, out.Result.Violations, 2)
	assert.Len(t, out.Result.Warnings, 1)
	assert.Equal(t, int64(3), out.Summary.Sunk)
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestRun_ParallelFailFastSinksOnlyReportedViolation(t *testing.T) {
	ctx := context.Background()
	repo, err := sqlite.NewRepository(ctx, ":memory:", "v")
	require.NoError(t, err)
	defer repo.Close()

	var b strings.Builder
	b.WriteString("name,age\n")
	for i := 0; i < 3000; i++ {
		if i >= 1000 {
			b.WriteString("Al,x\n")
		} else {
			b.WriteString("Al,7\n")
		}
	}

	e := newTestEngine()
	e.newRepository = func(context.Context, storage.Config) (storage.Repository, error) {
		return keepOpen{repo}, nil
	}
	out, err := e.Run(ctx, Job{
		SchemaText: nameAge,
		Data:       writeFile(t, "p.csv", b.String()),
		Mode:       validator.FailFast,
		Workers:    8,
		Sink:       &SinkConfig{Kind: "sqlite", Table: "v", AutoCreateTable: true},
	})
	require.NoError(t, err)

	require.Len(t, out.Result.Violations, 1)
	assert.Equal(t, 1000, out.Result.Violations[0].Row)
	assert.Equal(t, int64(1), out.Summary.Sunk)
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

// runMetrics collects what one Run reports to the metrics backend.
type runMetrics struct {
	mu    sync.Mutex
	steps map[string]string
	rows  map[string]float64
}

func (m *runMetrics) IncCounter(name string, delta float64, l metrics.Labels) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch name {
	case metrics.StepTotal:
		m.steps[l["step"]] = l["status"]
	case metrics.RowsTotal:
		m.rows[l["kind"]] += delta
	}
}
func (*runMetrics) ObserveHistogram(string, float64, metrics.Labels) {}
func (*runMetrics) Flush() error                                     { return nil }

type noMetrics struct{}

func (noMetrics) IncCounter(string, float64, metrics.Labels)       {}
func (noMetrics) ObserveHistogram(string, float64, metrics.Labels) {}
func (noMetrics) Flush() error                                     { return nil }

func TestRun_RecordsMetrics(t *testing.T) {
	m := &runMetrics{steps: map[string]string{}, rows: map[string]float64{}}
	metrics.SetBackend(m)
	t.Cleanup(func() { metrics.SetBackend(noMetrics{}) })

	_, err := newTestEngine().Run(context.Background(), Job{
		Name:       "people",
		SchemaText: "version 1.0\n@quoted\nname: notEmpty\nage: positiveInteger\nnote: length(0, 2) @warning\n",
		Data:       writeFile(t, "p.csv", "name,age,note\nJo,x,ok\n,4,long\nAl,\"4\"x,ok\n"),
		Mode:       validator.CollectAll,
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"compile": "success", "bind": "success", "validate": "success"}, m.steps)
	assert.Equal(t, 2.0, m.rows[metrics.KindScanned])
	assert.Equal(t, 2.0, m.rows[metrics.KindViolations])
	assert.Equal(t, 1.0, m.rows[metrics.KindWarnings])
	assert.Equal(t, 1.0, m.rows[metrics.KindParseErrors])
}

func TestRun_SinkInitError(t *testing.T) {
	e := newTestEngine()
	e.newRepository = func(context.Context, storage.Config) (storage.Repository, error) {
		return nil, errors.New("no db")
	}
	_, err := e.Run(context.Background(), Job{
		SchemaText: nameAge,
		Data:       writeFile(t, "p.csv", "name,age\nJo,3\n"),
		Sink:       &SinkConfig{Kind: "postgres"},
	})
	require.ErrorContains(t, err, "init sink")
}

func TestFromConfig(t *testing.T) {
	raw := []byte(`{
	  "job": "nightly",
	  "schema": {"url": "https://example.com/p.csvs"},
	  "source": {"kind": "http", "http": {"url": "https://example.com/p.csv", "timeout": "5s", "max_retries": 2}},
	  "reader": {"options": {"trim_space": true, "quoted": true, "scrub": {"b": "B", "a": "A"}}},
	  "runtime": {"mode": "collect_all", "workers": 4, "max_inflight_io": 8, "io_timeout": "2s"},
	  "report": {"sink": {"kind": "sqlite", "dsn": ":memory:", "batch_size": 10}}
	}`)
	cfg, err := config.Decode(raw, ".json")
	require.NoError(t, err)

	j, err := FromConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, "nightly", j.Name)
	assert.Equal(t, "https://example.com/p.csvs", j.Schema)
	assert.Equal(t, "https://example.com/p.csv", j.Data)
	assert.Equal(t, validator.CollectAll, j.Mode)
	assert.Equal(t, 4, j.Workers)
	assert.Equal(t, int64(8), j.External.MaxInflight)
	assert.Equal(t, 2, j.HTTP.MaxRetries)
	assert.True(t, j.Reader.TrimSpace)
	require.NotNil(t, j.QuotedOverride)
	assert.True(t, *j.QuotedOverride)
	require.Len(t, j.Reader.Scrub, 2)
	assert.Equal(t, "a", j.Reader.Scrub[0].From)
	require.NotNil(t, j.Sink)
	assert.Equal(t, 10, j.Sink.BatchSize)

	cfg.Runtime.Mode = "sometimes"
	_, err = FromConfig(cfg)
	require.Error(t, err)
}
