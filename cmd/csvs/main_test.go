package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csvs/internal/config"
	"csvs/internal/report"
	"csvs/internal/storage/sqlite"
)

const nameAge = `version 1.0
name: notEmpty
age: positiveInteger
`

func write(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func runCLI(args ...string) (int, string, string) {
	var out, errb bytes.Buffer
	code := run(args, &out, &errb)
	return code, out.String(), errb.String()
}

func TestValidate_Valid(t *testing.T) {
	dir := t.TempDir()
	s := write(t, dir, "p.csvs", nameAge)
	d := write(t, dir, "p.csv", "name,age\nJo,3\n")

	code, out, stderr := runCLI("validate", "-s", s, d)
	require.Equal(t, exitValid, code, stderr)
	assert.True(t, strings.HasPrefix(out, "VALID "+d+": 1 rows"), out)
}

func TestValidate_InvalidCollectAll(t *testing.T) {
	dir := t.TempDir()
	s := write(t, dir, "p.csvs", nameAge)
	d := write(t, dir, "p.csv", "name,age\nJo,x\n,4\n")

	code, out, _ := runCLI("validate", "-s", s, "--mode", "collect_all", d)
	require.Equal(t, exitInvalid, code)
	assert.Contains(t, out, `[0, 1]: "x" age: positiveInteger`)
	assert.Contains(t, out, `[1, 0]: "" name: notEmpty`)
}

func TestValidate_BindingErrorExit2(t *testing.T) {
	dir := t.TempDir()
	s := write(t, dir, "p.csvs", nameAge)
	d := write(t, dir, "p.csv", "age,name\n3,Jo\n")

	code, out, stderr := runCLI("validate", "-s", s, d)
	require.Equal(t, exitError, code)
	assert.Empty(t, out)
	assert.Contains(t, stderr, "binding")
}

func TestValidate_JSON(t *testing.T) {
	dir := t.TempDir()
	s := write(t, dir, "p.csvs", nameAge)
	d := write(t, dir, "p.csv", "name,age\nJo,x\n")

	code, out, _ := runCLI("validate", "-s", s, "--format", "json", d)
	require.Equal(t, exitInvalid, code)

	var doc report.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc), out)
	assert.False(t, doc.Summary.Valid)
	require.Len(t, doc.Violations, 1)
	assert.Equal(t, 1, doc.Violations[0].Column)
}

// The worst status across documents wins.
func TestValidate_CSVList(t *testing.T) {
	dir := t.TempDir()
	s := write(t, dir, "p.csvs", nameAge)
	good := write(t, dir, "good.csv", "name,age\nJo,3\n")
	bad := write(t, dir, "bad.csv", "name,age\nJo,-3\n")
	list := write(t, dir, "list.txt", "# nightly\n"+good+"\n\n"+bad+"\n")

	code, out, _ := runCLI("validate", "-s", s, "--csv-list", list)
	require.Equal(t, exitInvalid, code)
	assert.Contains(t, out, "VALID "+good)
	assert.Contains(t, out, "INVALID "+bad)
}

func TestValidate_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	s := write(t, dir, "p.csvs", nameAge)
	d := write(t, dir, "p.csv", "name,age\n Jo , 3 \n")
	cfg := write(t, dir, "run.yaml", `job: people
schema:
  path: `+s+`
source:
  kind: file
  file:
    path: `+d+`
reader:
  options:
    trim_space: true
runtime:
  mode: collect_all
`)
	code, out, stderr := runCLI("validate", "-c", cfg)
	require.Equal(t, exitValid, code, stderr)
	assert.Contains(t, out, "VALID")

	code, out, _ = runCLI("validate", "-c", cfg, "--check-config")
	require.Equal(t, exitValid, code)
	assert.Equal(t, "configuration is valid\n", out)
}

func TestValidate_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	s := write(t, dir, "p.csvs", nameAge)

	code, _, stderr := runCLI("validate", "-s", s, "--mode", "sometimes", "x.csv")
	require.Equal(t, exitError, code)
	assert.Contains(t, stderr, "runtime.mode")

	code, _, stderr = runCLI("validate", "x.csv")
	require.Equal(t, exitError, code)
	assert.Contains(t, stderr, "schema")
}

func TestValidate_SQLiteSink(t *testing.T) {
	dir := t.TempDir()
	s := write(t, dir, "p.csvs", nameAge)
	d := write(t, dir, "p.csv", "name,age\n,x\nJo,3\n")
	dsn := "file:" + filepath.Join(dir, "v.db")

	code, out, stderr := runCLI("validate", "-s", s, "--mode", "collect_all",
		"--sink-kind", "sqlite", "--sink-dsn", dsn, "--auto-create-table", d)
	require.Equal(t, exitInvalid, code, stderr)
	assert.Contains(t, out, "2 rows written to the violations table")

	ctx := context.Background()
	repo, err := sqlite.NewRepository(ctx, dsn, "csvs_violations")
	require.NoError(t, err)
	defer repo.Close()
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSchemaCmd(t *testing.T) {
	dir := t.TempDir()
	s := write(t, dir, "p.csvs", "version 1.0\n@separator ';'\nname:   notEmpty\n")

	code, out, _ := runCLI("schema", s)
	require.Equal(t, exitValid, code)
	assert.Equal(t, "version 1.0\n@separator ';'\nname: notEmpty\n", out)

	code, out, _ = runCLI("schema", "--check", s)
	require.Equal(t, exitValid, code)
	assert.Contains(t, out, "ok (1 columns)")

	bad := write(t, dir, "bad.csvs", "version 9.9\nname: notEmpty\n")
	code, _, stderr := runCLI("schema", bad)
	require.Equal(t, exitError, code)
	assert.Contains(t, stderr, "schema")
}

func TestWatchPaths(t *testing.T) {
	var cfg config.Run
	cfg.Schema.Path = "s.csvs"
	got := watchPaths(cfg, []string{"a.csv", "-", "https://x/b.csv"})
	assert.Equal(t, []string{"s.csvs", "a.csv"}, got)
}

func TestWatchAndValidate_RerunsOnChange(t *testing.T) {
	dir := t.TempDir()
	d := write(t, dir, "p.csv", "name,age\nJo,3\n")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var runs atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- watchAndValidate(ctx, []string{d}, 20*time.Millisecond, func() {
			if runs.Add(1) >= 2 {
				cancel()
			}
		})
	}()

	// Keep touching the file until the second run is observed.
	for i := 0; runs.Load() < 2 && ctx.Err() == nil; i++ {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(d, []byte("name,age\nJo,"+strings.Repeat("1", i+1)+"\n"), 0o644)
	}
	require.NoError(t, <-done)
	assert.GreaterOrEqual(t, runs.Load(), int32(2))
}

func TestWatchAndValidate_NoPaths(t *testing.T) {
	require.Error(t, watchAndValidate(context.Background(), nil, time.Millisecond, func() {}))
}
