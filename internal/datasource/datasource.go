// Package datasource opens schema and CSV documents from a location that is
// either a local path or an http(s) URL.
package datasource

import (
	"context"
	"fmt"
	"io"
	"strings"

	"csvs/internal/datasource/file"
	"csvs/internal/datasource/httpds"
)

// Source yields one document.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// IsURL reports whether loc is fetched over HTTP.
func IsURL(loc string) bool {
	l := strings.ToLower(loc)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// ForLocation picks the Source for loc. client is used for URLs and may be
// nil, in which case a default client is built.
func ForLocation(loc string, client *httpds.Client) Source {
	if IsURL(loc) {
		if client == nil {
			client = httpds.NewClient(httpds.Config{})
		}
		return httpds.NewSource(client, loc)
	}
	return file.NewLocal(loc)
}

// ReadString reads the whole document, for schema text.
func ReadString(ctx context.Context, src Source) (string, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	return string(b), nil
}
