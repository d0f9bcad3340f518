// Package external holds the blocking primitives behind the fileExists
// and checksum leaves, plus the pure syntax checks used by uri and uuid4.
//
// Adapter failures never abort a validation. The compiled leaf turns an
// error into a false result for that cell.
package external

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrUnsupportedAlgorithm is returned for an unknown checksum name.
	ErrUnsupportedAlgorithm = errors.New("external: unsupported checksum algorithm")
	// ErrNotFound is returned when the file to hash does not exist.
	ErrNotFound = errors.New("external: file not found")
)

// Adapter is the filesystem surface the compiled leaves call.
type Adapter interface {
	Exists(ctx context.Context, path string) bool
	Checksum(ctx context.Context, path, algorithm string) (string, error)
}

// Options tunes Local.
type Options struct {
	// MaxInflight caps simultaneous Exists/Checksum calls. <= 0 means 16.
	MaxInflight int64
	// Timeout bounds one call. 0 disables it.
	Timeout time.Duration
}

const chunkSize = 64 << 10

// Local reads the local filesystem.
type Local struct {
	sem     *semaphore.Weighted
	timeout time.Duration
}

// NewLocal returns a Local adapter.
func NewLocal(opt Options) *Local {
	n := opt.MaxInflight
	if n <= 0 {
		n = 16
	}
	return &Local{sem: semaphore.NewWeighted(n), timeout: opt.Timeout}
}

// existsFn is swapped by tests to simulate a hung filesystem.
var existsFn = exists

// acquire waits for an I/O slot and derives the per-call deadline. The
// caller releases the slot and then calls cancel.
func (l *Local) acquire(ctx context.Context) (context.Context, context.CancelFunc, error) {
	cancel := context.CancelFunc(func() {})
	if l.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		cancel()
		return nil, nil, err
	}
	return ctx, cancel, nil
}

// Exists reports whether path names an existing file or directory. A
// timeout or cancelled ctx yields false. The slot stays taken until the
// underlying call returns, even when the caller has already given up.
func (l *Local) Exists(ctx context.Context, path string) bool {
	if path == "" {
		return false
	}
	ctx, cancel, err := l.acquire(ctx)
	if err != nil {
		return false
	}
	defer cancel()

	done := make(chan bool, 1)
	go func() {
		defer l.sem.Release(1)
		done <- existsFn(path)
	}()
	select {
	case ok := <-done:
		return ok
	case <-ctx.Done():
		return false
	}
}

// Checksum returns the lower-case hex digest of the file at path.
func (l *Local) Checksum(ctx context.Context, path, algorithm string) (string, error) {
	h, err := NewHash(algorithm)
	if err != nil {
		return "", err
	}
	ctx, cancel, err := l.acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("checksum %s: %w", path, err)
	}
	defer cancel()
	defer l.sem.Release(1)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("checksum %s: %w", path, ErrNotFound)
		}
		return "", fmt.Errorf("checksum %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("checksum %s: %w", path, err)
		}
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("checksum %s: %w", path, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
