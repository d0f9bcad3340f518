// Package file opens schema and CSV documents from the local filesystem.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Local is a filesystem data source that opens files from the local disk.
type Local struct{ path string }

// Path returns the bound path.
func (l *Local) Path() string { return l.path }

// NewLocal returns a Local bound to path. "-" reads standard input.
func NewLocal(path string) *Local { return &Local{path: path} }

// Open returns the file. A done ctx short-circuits before touching the
// filesystem; errors wrap the path and keep errors.Is(err, os.ErrNotExist).
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if l.path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	return f, nil
}
