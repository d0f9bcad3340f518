package external

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ResolvePath turns the URI-encoded path written in a cell (or schema
// literal) into a filesystem path: raw is parsed as a URI, its path
// component is percent-decoded, and base, when given, is prefixed.
//
//	ResolvePath("", "file:///data/a%20b.txt") == "/data/a b.txt"
//	ResolvePath("/srv", "docs/x.pdf")         == "/srv/docs/x.pdf"
func ResolvePath(base, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("resolve path: empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", raw, err)
	}
	p := u.Path
	if p == "" {
		// Opaque forms such as "file:x.txt".
		if p, err = url.PathUnescape(u.Opaque); err != nil {
			return "", fmt.Errorf("resolve path %q: %w", raw, err)
		}
	}
	if p == "" {
		return "", fmt.Errorf("resolve path %q: no path component", raw)
	}
	p = filepath.FromSlash(p)
	if base != "" {
		p = filepath.Join(base, p)
	}
	return p, nil
}
