package compile

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"csvs/internal/external"
	"csvs/internal/schema"
)

// stubAdapter answers from in-memory maps and records the calls it sees.
type stubAdapter struct {
	files map[string]string // path -> md5
	calls []string
}

func (s *stubAdapter) Exists(_ context.Context, path string) bool {
	s.calls = append(s.calls, "exists "+path)
	_, ok := s.files[path]
	return ok
}

func (s *stubAdapter) Checksum(_ context.Context, path, alg string) (string, error) {
	s.calls = append(s.calls, "checksum "+path+" "+alg)
	if _, ok := external.CanonicalAlgorithm(alg); !ok {
		return "", external.ErrUnsupportedAlgorithm
	}
	sum, ok := s.files[path]
	if !ok {
		return "", external.ErrNotFound
	}
	return sum, nil
}

func mustCompile(t *testing.T, text string, opts ...Option) *schema.Schema {
	t.Helper()
	s, err := CompileText(text, opts...)
	if err != nil {
		t.Fatalf("CompileText: %v", err)
	}
	return s
}

// check runs the rule of column name against cell with the given row.
func check(t *testing.T, s *schema.Schema, name, cell string, row map[string]string) bool {
	t.Helper()
	r := s.Rule(name)
	if r == nil {
		t.Fatalf("no rule %q", name)
	}
	env := schema.Env{Columns: map[string]int{}}
	for k, v := range row {
		env.Columns[k] = len(env.Row)
		env.Row = append(env.Row, v)
	}
	ok, _ := r.Check(context.Background(), cell, env)
	return ok
}

func TestCompile_Directives(t *testing.T) {
	s := mustCompile(t, "version 1.1\n@separator ';'\n@quoted\n@totalColumns 4\n@noHeader\n@ignoreColumnNameCase\n@permitEmpty\na:\n")
	d := s.Directives
	if d.Separator != ';' || !d.Quoted || d.TotalColumns != 4 || d.Header || !d.IgnoreColumnNameCase || !d.PermitEmpty {
		t.Fatalf("directives=%+v", d)
	}

	s = mustCompile(t, "version 1.0\n@separator tab\na:\n")
	if s.Directives.Separator != '\t' {
		t.Fatalf("separator=%q; want tab", s.Directives.Separator)
	}
	s = mustCompile(t, "version 1.0\n@separator '\\t'\na:\n")
	if s.Directives.Separator != '\t' {
		t.Fatalf("escaped separator=%q; want tab", s.Directives.Separator)
	}

	s = mustCompile(t, "version 1.0\na:\n")
	if s.Directives != schema.DefaultDirectives() {
		t.Fatalf("defaults=%+v", s.Directives)
	}
}

func TestCompile_RangeIsOrderIndependent(t *testing.T) {
	a := mustCompile(t, "version 1.0\nc: range(1, 7)\n")
	b := mustCompile(t, "version 1.0\nc: range(7, 1)\n")
	for _, v := range []string{"1", "4", "7", "7.0", " 3 ", "0.99", "7.01", "x", ""} {
		ga, gb := check(t, a, "c", v, nil), check(t, b, "c", v, nil)
		if ga != gb {
			t.Fatalf("range(1,7)(%q)=%v but range(7,1)=%v", v, ga, gb)
		}
	}
	if !check(t, a, "c", "4", nil) || check(t, a, "c", "8", nil) || check(t, a, "c", "abc", nil) {
		t.Fatalf("range membership wrong")
	}
	if a.Rules[0].String() != b.Rules[0].String() {
		t.Fatalf("renderings differ: %s vs %s", a.Rules[0].String(), b.Rules[0].String())
	}
}

func TestCompile_LengthForms(t *testing.T) {
	s := mustCompile(t, "version 1.0\nexact: length(3)\natMost: length(*, 3)\natLeast: length(3, *)\nbetween: length(2, 4)\n")
	cases := []struct {
		col  string
		cell string
		want bool
	}{
		{"exact", "abc", true},
		{"exact", "ab", false},
		{"exact", "héé", true}, // runes, not bytes
		{"atMost", "", true},
		{"atMost", "abcd", false},
		{"atLeast", "ab", false},
		{"atLeast", "abcdef", true},
		{"between", "a", false},
		{"between", "abcd", true},
		{"between", "abcde", false},
	}
	for _, tc := range cases {
		if got := check(t, s, tc.col, tc.cell, nil); got != tc.want {
			t.Fatalf("%s(%q)=%v; want %v", tc.col, tc.cell, got, tc.want)
		}
	}
}

func TestCompile_StringLeaves(t *testing.T) {
	s := mustCompile(t, `version 1.1
is: is("abc")
not: not("abc")
in: in("hello world")
starts: starts("ab")
ends: ends("yz")
re: regex("[a-z]+")
anyOf: any("x", "y")
folded: is("ABC") starts("a") @ignoreCase
`)
	cases := []struct {
		col  string
		cell string
		want bool
	}{
		{"is", "abc", true},
		{"is", "ABC", false},
		{"not", "abd", true},
		{"not", "abc", false},
		{"in", "lo wo", true},
		{"in", "planet", false},
		{"starts", "abc", true},
		{"starts", "cab", false},
		{"ends", "xyz  ", true},
		{"ends", "yzx", false},
		{"re", "abc", true},
		{"re", "abc1", false}, // anchored
		{"re", "1abc", false},
		{"anyOf", "y", true},
		{"anyOf", "z", false},
		{"folded", "abc", true},
		{"folded", "AbC", true},
		{"folded", "abd", false},
	}
	for _, tc := range cases {
		if got := check(t, s, tc.col, tc.cell, nil); got != tc.want {
			t.Fatalf("%s(%q)=%v; want %v", tc.col, tc.cell, got, tc.want)
		}
	}
}

func TestCompile_ColumnReferenceProviders(t *testing.T) {
	s := mustCompile(t, `version 1.0
a: notEmpty
b: is($a)
c: in($a)
d: is($missing)
`)
	row := map[string]string{"a": "foobar"}
	if !check(t, s, "b", "foobar", row) || check(t, s, "b", "foo", row) {
		t.Fatalf("is($a) wrong")
	}
	if !check(t, s, "c", "oba", row) {
		t.Fatalf("in($a) should accept a substring of a")
	}
	if check(t, s, "d", "", row) {
		t.Fatalf("is($missing) must be false for an unbound column")
	}
}

func TestCompile_IfUsesCurrentCellUnlessContext(t *testing.T) {
	s := mustCompile(t, `version 1.0
country: notEmpty
code: if($country/is("uk"), is("GB"), not("GB"))
self: if(is("a"), length(1), starts("b"))
`)
	uk := map[string]string{"country": "uk"}
	fr := map[string]string{"country": "fr"}
	if !check(t, s, "code", "GB", uk) || check(t, s, "code", "FR", uk) {
		t.Fatalf("then branch wrong")
	}
	if !check(t, s, "code", "FR", fr) || check(t, s, "code", "GB", fr) {
		t.Fatalf("else branch wrong")
	}

	// No context: the condition tests the cell itself.
	for cell, want := range map[string]bool{"a": true, "bx": true, "cx": false} {
		if got := check(t, s, "self", cell, nil); got != want {
			t.Fatalf("self(%q)=%v; want %v", cell, got, want)
		}
	}
}

func TestCompile_MatchIsFalse(t *testing.T) {
	s := mustCompile(t, "version 1.0\nc: is(\"x\") @matchIsFalse\n")
	if check(t, s, "c", "x", nil) {
		t.Fatalf("matchIsFalse accepted x")
	}
	for _, v := range []string{"y", "", "X"} {
		if !check(t, s, "c", v, nil) {
			t.Fatalf("matchIsFalse rejected %q", v)
		}
	}
}

func TestCompile_FixedFormatLeaves(t *testing.T) {
	s := mustCompile(t, `version 1.2
u: uuid4
p: positiveInteger
uri: uri
up: upperCase
low: lowerCase
d: xDate
dt: xDateTime
i: xInteger
dec: xDecimal
e: empty
ne: notEmpty
`)
	cases := []struct {
		col  string
		cell string
		want bool
	}{
		{"u", "123e4567-e89b-42d3-a456-426614174000", true},
		{"u", "123E4567-E89B-42D3-9456-426614174000", true},
		{"u", "123e4567-e89b-12d3-a456-426614174000", false},
		{"u", "123e4567-e89b-42d3-7456-426614174000", false},
		{"u", "not-a-uuid", false},
		{"p", "5", true},
		{"p", "5.0", true},
		{"p", "5.5", false},
		{"p", "0", false},
		{"p", "-3", false},
		{"p", "abc", false},
		{"uri", "http://example.com/a?b#c", true},
		{"uri", "no scheme", false},
		{"up", "ABC 1", true},
		{"up", "AbC", false},
		{"low", "abc-1", true},
		{"low", "abC", false},
		{"d", "2024-02-29", true},
		{"d", "2023-02-29", false},
		{"d", "2024-01-01Z", true},
		{"dt", "2024-01-01T10:00:00", true},
		{"dt", "2024-01-01T10:00:00.123+02:00", true},
		{"dt", "2024-01-01", false},
		{"i", "-42", true},
		{"i", "4.2", false},
		{"dec", "4.2", true},
		{"dec", ".5", true},
		{"dec", "1e3", false},
		{"e", "", true},
		{"e", " ", false},
		{"ne", "x", true},
		{"ne", "", false},
	}
	for _, tc := range cases {
		if got := check(t, s, tc.col, tc.cell, nil); got != tc.want {
			t.Fatalf("%s(%q)=%v; want %v", tc.col, tc.cell, got, tc.want)
		}
	}
}

func TestCompile_FileLeavesUseAdapter(t *testing.T) {
	stub := &stubAdapter{files: map[string]string{
		"/data/a b.txt": "0cc175b9c0f1b6a831c399e269772661",
	}}
	s := mustCompile(t, `version 1.0
path: fileExists("/data")
sum: checksum(file("/data", $path), "MD5")
dyn: checksum(file($path), $alg)
`, WithAdapter(stub))

	if !check(t, s, "path", "a%20b.txt", nil) {
		t.Fatalf("fileExists should percent-decode and prefix base; calls=%v", stub.calls)
	}
	if check(t, s, "path", "missing.txt", nil) {
		t.Fatalf("fileExists(missing)=true")
	}

	row := map[string]string{"path": "a%20b.txt"}
	if !check(t, s, "sum", "0CC175B9C0F1B6A831C399E269772661", row) {
		t.Fatalf("checksum should match case-insensitively; calls=%v", stub.calls)
	}
	if check(t, s, "sum", "deadbeef", row) {
		t.Fatalf("checksum accepted a wrong digest")
	}

	row = map[string]string{"path": "file:///data/a%20b.txt", "alg": "crc99"}
	if check(t, s, "dyn", "0cc175b9c0f1b6a831c399e269772661", row) {
		t.Fatalf("unknown runtime algorithm must be false, not an error")
	}
	row["alg"] = "md5"
	if !check(t, s, "dyn", "0cc175b9c0f1b6a831c399e269772661", row) {
		t.Fatalf("runtime algorithm md5 should match; calls=%v", stub.calls)
	}
}

// hungAdapter behaves like a filesystem that never answers: every call
// waits out its own deadline.
type hungAdapter struct{ timeout time.Duration }

func (h hungAdapter) wait(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	<-ctx.Done()
	return ctx.Err()
}

func (h hungAdapter) Exists(ctx context.Context, _ string) bool {
	_ = h.wait(ctx)
	return false
}

func (h hungAdapter) Checksum(ctx context.Context, _, _ string) (string, error) {
	return "", h.wait(ctx)
}

func TestCompile_FileLeafTimeoutFailsOnlyThatCell(t *testing.T) {
	s := mustCompile(t, `version 1.0
name: notEmpty
path: fileExists("/data")
sum: checksum(file("/data", $path), "sha256")
size: range(1, 10)
`, WithAdapter(hungAdapter{timeout: 10 * time.Millisecond}))

	row := []string{"report", "a.txt", "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", "4"}
	env := schema.Env{Row: row, Columns: map[string]int{"name": 0, "path": 1, "sum": 2, "size": 3}}
	want := map[string]bool{"name": true, "path": false, "sum": false, "size": true}

	start := time.Now()
	for name, pos := range env.Columns {
		ok, _ := s.Rule(name).Check(context.Background(), row[pos], env)
		if ok != want[name] {
			t.Fatalf("%s=%v; want %v", name, ok, want[name])
		}
	}
	if took := time.Since(start); took > time.Second {
		t.Fatalf("row took %s; timeouts should bound each call", took)
	}
}

func TestCompile_Errors(t *testing.T) {
	cases := []struct {
		name string
		text string
		msg  string
	}{
		{"range bound", "version 1.0\na: range(\"x\", 3)\n", "not a number"},
		{"regex", "version 1.0\na: regex(\"[a-\")\n", "invalid regex"},
		{"length negative", "version 1.0\na: length(-1)\n", "non-negative"},
		{"length order", "version 1.0\na: length(5, 2)\n", "exceeds"},
		{"checksum algorithm", "version 1.0\na: checksum(file($b), \"crc99\")\n", "unsupported algorithm"},
		{"totalColumns zero", "version 1.0\n@totalColumns 0\na:\n", "positive"},
		{"duplicate column", "version 1.0\na:\na:\n", "duplicate"},
		{"quote separator", "version 1.0\n@separator '\"'\na:\n", "separator"},
	}
	for _, tc := range cases {
		_, err := CompileText(tc.text)
		var se *schema.SchemaError
		if !errors.As(err, &se) {
			t.Fatalf("%s: err=%v; want SchemaError", tc.name, err)
		}
		if se.Line == 0 || !strings.Contains(err.Error(), tc.msg) {
			t.Fatalf("%s: err=%v; want positioned error containing %q", tc.name, err, tc.msg)
		}
	}
}

func TestCompile_IsDeterministic(t *testing.T) {
	text := `version 1.1
@totalColumns 3
name: notEmpty and length(1, *) @ignoreCase
age: range(0, 120) or empty @optional
ref: if($name/starts("A"), any("x", $age), regex("\d+")) checksum(file("/b", $name), "sha-256")
`
	a, b := mustCompile(t, text), mustCompile(t, text)
	if a.String() != b.String() {
		t.Fatalf("renderings differ:\n%s\n---\n%s", a.String(), b.String())
	}
	for i := range a.Rules {
		if a.Rules[i].Ordinal != i {
			t.Fatalf("rule %d ordinal=%d", i, a.Rules[i].Ordinal)
		}
	}
	if !strings.Contains(a.String(), `checksum(file("/b", $name), "sha256")`) {
		t.Fatalf("checksum algorithm not canonicalised:\n%s", a.String())
	}
}
