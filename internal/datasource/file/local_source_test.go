package file

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeCSV(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "people.csv")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return p
}

func TestLocalOpen_ReadsDocument(t *testing.T) {
	t.Parallel()

	p := writeCSV(t, "name,age\nJo,3\n")
	src := NewLocal(p)
	if src.Path() != p {
		t.Fatalf("Path()=%q; want %q", src.Path(), p)
	}

	rc, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "name,age\nJo,3\n" {
		t.Fatalf("got=%q; want the file body", got)
	}
}

func TestLocalOpen_Errors(t *testing.T) {
	t.Parallel()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	cases := []struct {
		name     string
		path     string
		ctx      context.Context
		wantIs   error
		contains string
	}{
		{
			name:     "missing",
			path:     filepath.Join(t.TempDir(), "missing.csv"),
			ctx:      context.Background(),
			wantIs:   os.ErrNotExist,
			contains: "open ",
		},
		{
			name:   "cancelled_before_open",
			path:   writeCSV(t, "a\n1\n"),
			ctx:    cancelled,
			wantIs: context.Canceled,
		},
		{
			name:   "cancelled_stdin",
			path:   "-",
			ctx:    cancelled,
			wantIs: context.Canceled,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rc, err := NewLocal(c.path).Open(c.ctx)
			if rc != nil {
				_ = rc.Close()
				t.Fatalf("got non-nil ReadCloser on error")
			}
			if !errors.Is(err, c.wantIs) {
				t.Fatalf("err=%v; want errors.Is %v", err, c.wantIs)
			}
			if c.contains != "" && !strings.Contains(err.Error(), c.contains) {
				t.Fatalf("err=%q; want substring %q", err, c.contains)
			}
		})
	}
}

func TestLocalOpen_StdinIsNotClosed(t *testing.T) {
	rc, err := NewLocal("-").Open(context.Background())
	if err != nil {
		t.Fatalf("Open(-): %v", err)
	}
	if err := rc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stdin.Stat(); err != nil {
		t.Fatalf("stdin closed by Close: %v", err)
	}
}
