package external

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"strings"

	"github.com/zeebo/xxh3"
)

var algorithms = map[string]func() hash.Hash{
	"md5":        md5.New,
	"sha1":       sha1.New,
	"sha224":     sha256.New224,
	"sha256":     sha256.New,
	"sha384":     sha512.New384,
	"sha512":     sha512.New,
	"sha512-224": sha512.New512_224,
	"sha512-256": sha512.New512_256,
	"xxh3":       func() hash.Hash { return xxh3.New() },
}

// CanonicalAlgorithm maps a user-supplied algorithm name onto its
// canonical spelling. Matching is case-insensitive and the hyphen between
// family and size is optional: "SHA-256", "sha256" and "Sha-256" are the
// same algorithm.
func CanonicalAlgorithm(name string) (string, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "_", "-")
	if strings.HasPrefix(n, "sha-") {
		n = "sha" + n[len("sha-"):]
	}
	switch n {
	case "sha512224":
		n = "sha512-224"
	case "sha512256":
		n = "sha512-256"
	case "sha512/224":
		n = "sha512-224"
	case "sha512/256":
		n = "sha512-256"
	}
	if _, ok := algorithms[n]; !ok {
		return "", false
	}
	return n, true
}

// NewHash returns a fresh hash for the named algorithm.
func NewHash(name string) (hash.Hash, error) {
	n, ok := CanonicalAlgorithm(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
	}
	return algorithms[n](), nil
}

// Algorithms lists the canonical algorithm names.
func Algorithms() []string {
	return []string{"md5", "sha1", "sha224", "sha256", "sha384", "sha512", "sha512-224", "sha512-256", "xxh3"}
}
