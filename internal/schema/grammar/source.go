package grammar

import (
	"strings"

	"csvs/internal/schema"
)

// StripComments removes `//` line comments and `/* */` block comments.
// Comment markers inside double- or single-quoted literals are kept, and
// newlines are preserved (including those inside block comments) so that
// line numbers in later errors still point at the original text.
func StripComments(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	const (
		normal = iota
		inString
		inChar
		inLine
		inBlock
	)
	state := normal
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch state {
		case normal:
			switch {
			case c == '"':
				state = inString
			case c == '\'':
				state = inChar
			case c == '/' && i+1 < len(text) && text[i+1] == '/':
				state = inLine
				i++
				continue
			case c == '/' && i+1 < len(text) && text[i+1] == '*':
				state = inBlock
				i++
				continue
			}
			b.WriteByte(c)
		case inString, inChar:
			b.WriteByte(c)
			quote := byte('"')
			if state == inChar {
				quote = '\''
			}
			switch {
			case c == '\\' && i+1 < len(text):
				i++
				b.WriteByte(text[i])
			case c == quote || c == '\n':
				state = normal
			}
		case inLine:
			if c == '\n' {
				b.WriteByte(c)
				state = normal
			}
		case inBlock:
			if c == '*' && i+1 < len(text) && text[i+1] == '/' {
				state = normal
				i++
				continue
			}
			if c == '\n' {
				b.WriteByte(c)
			}
		}
	}
	return b.String()
}

// Normalize collapses every run of three or more whitespace characters
// that contains a line break, outside string literals, into a single
// newline. It is used to render
// schema text for logs; the lexer itself does not need it.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inQuote := byte(0)
	for i := 0; i < len(text); {
		c := text[i]
		if inQuote != 0 {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(text) {
				b.WriteByte(text[i+1])
				i += 2
				continue
			}
			if c == inQuote || c == '\n' {
				inQuote = 0
			}
			i++
			continue
		}
		if c == '"' || c == '\'' {
			inQuote = c
			b.WriteByte(c)
			i++
			continue
		}
		if isSpace(c) {
			j := i
			for j < len(text) && isSpace(text[j]) {
				j++
			}
			if j-i >= 3 && strings.ContainsRune(text[i:j], '\n') {
				b.WriteByte('\n')
			} else {
				b.WriteString(text[i:j])
			}
			i = j
			continue
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

// DetectVersion reads the version declaration, which must be the first
// non-blank line of comment-free text and consist of exactly two
// space-separated fields: `version <v>`. It returns the version and the
// 1-based line it was found on.
func DetectVersion(text string) (string, int, error) {
	for n, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" {
			continue
		}
		fields := strings.Split(line, " ")
		if len(fields) != 2 || fields[0] != "version" {
			return "", n + 1, schema.Errorf(n+1, 1, "invalid version declaration %q", line)
		}
		if !schema.IsSupportedVersion(fields[1]) {
			return "", n + 1, schema.Errorf(n+1, 9, "unsupported version %q (supported: %s)",
				fields[1], strings.Join(schema.SupportedVersions, ", "))
		}
		return fields[1], n + 1, nil
	}
	return "", 0, schema.Errorf(0, 0, "missing version declaration")
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}
