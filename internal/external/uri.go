package external

import (
	"strings"

	"github.com/google/uuid"
)

// ValidURI reports whether s is a syntactically valid absolute URI per
// RFC 3986 (scheme ":" hier-part [ "?" query ] [ "#" fragment ]).
// Percent-escapes are checked for shape only and never decoded.
func ValidURI(s string) bool {
	scheme, rest, ok := strings.Cut(s, ":")
	if !ok || !validScheme(scheme) {
		return false
	}
	rest, frag, hasFrag := strings.Cut(rest, "#")
	if hasFrag && !validChars(frag, "/?") {
		return false
	}
	hier, query, hasQuery := strings.Cut(rest, "?")
	if hasQuery && !validChars(query, "/?") {
		return false
	}
	if strings.HasPrefix(hier, "//") {
		auth, path, _ := strings.Cut(hier[2:], "/")
		return validAuthority(auth) && validChars(path, "/")
	}
	return validChars(hier, "/")
}

func validScheme(s string) bool {
	if s == "" || !isAlpha(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !isAlpha(c) && !isDigit(c) && c != '+' && c != '-' && c != '.' {
			return false
		}
	}
	return true
}

func validAuthority(a string) bool {
	userinfo, hostport, ok := strings.Cut(a, "@")
	if !ok {
		hostport, userinfo = userinfo, ""
	}
	if userinfo != "" && !validChars(userinfo, "") {
		return false
	}
	if strings.HasPrefix(hostport, "[") {
		end := strings.IndexByte(hostport, ']')
		if end < 0 {
			return false
		}
		for _, c := range []byte(hostport[1:end]) {
			if !isHex(c) && c != ':' && c != '.' && c != 'v' && c != 'V' {
				return false
			}
		}
		hostport = hostport[end+1:]
		if hostport == "" {
			return true
		}
		if hostport[0] != ':' {
			return false
		}
		return allDigits(hostport[1:])
	}
	host, port, hasPort := strings.Cut(hostport, ":")
	if hasPort && !allDigits(port) {
		return false
	}
	return validChars(host, "") && !strings.Contains(host, ":")
}

// validChars checks pchar* plus the extra allowed bytes. pchar is
// unreserved / pct-encoded / sub-delims / ":" / "@".
func validChars(s, extra string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case isAlpha(c), isDigit(c):
		case strings.IndexByte("-._~", c) >= 0: // unreserved
		case strings.IndexByte("!$&'()*+,;=", c) >= 0: // sub-delims
		case c == ':' || c == '@':
		case strings.IndexByte(extra, c) >= 0:
		case c == '%':
			if i+2 >= len(s) || !isHex(s[i+1]) || !isHex(s[i+2]) {
				return false
			}
			i += 2
		default:
			return false
		}
	}
	return true
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

func isAlpha(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isHex(c byte) bool   { return isDigit(c) || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F' }

// ValidUUID4 reports whether s is a canonical 8-4-4-4-12 UUID with
// version 4 and the RFC 4122 variant. Hex digits may be any case.
func ValidUUID4(s string) bool {
	if len(s) != 36 {
		return false // rejects the braced and urn: forms uuid.Parse accepts
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return u.Version() == 4 && u.Variant() == uuid.RFC4122
}
