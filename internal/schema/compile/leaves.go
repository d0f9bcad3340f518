package compile

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"csvs/internal/external"
	"csvs/internal/schema"
	"csvs/internal/schema/grammar"
)

var (
	xIntegerRE = regexp.MustCompile(`^[+-]?[0-9]+$`)
	xDecimalRE = regexp.MustCompile(`^[+-]?([0-9]+(\.[0-9]*)?|\.[0-9]+)$`)

	xDateLayouts     = []string{"2006-01-02", "2006-01-02Z07:00"}
	xDateTimeLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04:05Z07:00"}
)

// normalizer maps a value before comparison. Casers are not safe for
// concurrent use, so a fresh one is made per call.
type normalizer func(string) string

func identity(s string) string { return s }
func foldCase(s string) string { return cases.Fold().String(s) }

func errAt(a grammar.Arg, format string, args ...any) error {
	return schema.Errorf(a.Pos.Line, a.Pos.Col, format, args...)
}

func provider(a grammar.Arg) schema.ValueProvider {
	if a.Kind == grammar.ArgColumnRef {
		return schema.ColumnRef(a.Text)
	}
	return schema.Literal(a.Text)
}

func (c *compiler) leaf(n *grammar.Leaf, fold bool) (schema.Predicate, error) {
	norm := normalizer(identity)
	if fold {
		norm = foldCase
	}
	kind := schema.LeafKind(n.Name)

	switch kind {
	case schema.KindIs, schema.KindNot, schema.KindIn, schema.KindStarts, schema.KindEnds:
		p := provider(n.Args[0])
		return &schema.Leaf{Kind: kind, Params: []string{p.String()}, Fn: compare(kind, p, norm)}, nil

	case schema.KindAny:
		ps := make([]schema.ValueProvider, len(n.Args))
		params := make([]string, len(n.Args))
		for i, a := range n.Args {
			ps[i] = provider(a)
			params[i] = ps[i].String()
		}
		return &schema.Leaf{Kind: kind, Params: params, Fn: func(_ context.Context, cell string, env schema.Env) bool {
			want := norm(cell)
			for _, p := range ps {
				if v, ok := p.Resolve(env); ok && norm(v) == want {
					return true
				}
			}
			return false
		}}, nil

	case schema.KindRegex:
		lit := n.Args[0].Text
		re, err := regexp.Compile("^(?:" + lit + ")$")
		if err != nil {
			return nil, errAt(n.Args[0], "invalid regex %q: %v", lit, err)
		}
		return &schema.Leaf{Kind: kind, Params: []string{strconv.Quote(lit)}, Fn: func(_ context.Context, cell string, _ schema.Env) bool {
			return re.MatchString(cell)
		}}, nil

	case schema.KindRange:
		return rangeLeaf(n)

	case schema.KindLength:
		return lengthLeaf(n)

	case schema.KindEmpty:
		return simple(kind, func(cell string) bool { return cell == "" }), nil
	case schema.KindNotEmpty:
		return simple(kind, func(cell string) bool { return cell != "" }), nil
	case schema.KindURI:
		return simple(kind, external.ValidURI), nil
	case schema.KindUUID4:
		return simple(kind, external.ValidUUID4), nil
	case schema.KindPositiveInteger:
		return simple(kind, positiveInteger), nil
	case schema.KindUpperCase:
		return simple(kind, func(cell string) bool { return cases.Upper(language.Und).String(cell) == cell }), nil
	case schema.KindLowerCase:
		return simple(kind, func(cell string) bool { return cases.Lower(language.Und).String(cell) == cell }), nil
	case schema.KindXDate:
		return simple(kind, func(cell string) bool { return parsesAs(cell, xDateLayouts) }), nil
	case schema.KindXDateTime:
		return simple(kind, func(cell string) bool { return parsesAs(cell, xDateTimeLayouts) }), nil
	case schema.KindXInteger:
		return simple(kind, xIntegerRE.MatchString), nil
	case schema.KindXDecimal:
		return simple(kind, xDecimalRE.MatchString), nil

	case schema.KindFileExists:
		return c.fileExistsLeaf(n), nil
	case schema.KindChecksum:
		return c.checksumLeaf(n)
	}
	return nil, schema.Errorf(n.Pos.Line, n.Pos.Col, "unknown expression %q", n.Name)
}

func simple(kind schema.LeafKind, f func(string) bool) *schema.Leaf {
	return &schema.Leaf{Kind: kind, Fn: func(_ context.Context, cell string, _ schema.Env) bool { return f(cell) }}
}

// compare builds the body of the single-provider string leaves. An
// unresolvable provider (unbound column) makes every one of them false.
func compare(kind schema.LeafKind, p schema.ValueProvider, norm normalizer) schema.CheckFunc {
	var op func(cell, v string) bool
	switch kind {
	case schema.KindIs:
		op = func(cell, v string) bool { return cell == v }
	case schema.KindNot:
		op = func(cell, v string) bool { return cell != v }
	case schema.KindIn:
		op = func(cell, v string) bool { return strings.Contains(v, cell) }
	case schema.KindStarts:
		op = strings.HasPrefix
	case schema.KindEnds:
		op = func(cell, v string) bool { return strings.HasSuffix(strings.TrimSpace(cell), v) }
	}
	return func(_ context.Context, cell string, env schema.Env) bool {
		v, ok := p.Resolve(env)
		if !ok {
			return false
		}
		return op(norm(cell), norm(v))
	}
}

func rangeLeaf(n *grammar.Leaf) (schema.Predicate, error) {
	var bounds [2]float64
	for i, a := range n.Args {
		f, err := strconv.ParseFloat(strings.TrimSpace(a.Text), 64)
		if err != nil || math.IsNaN(f) {
			return nil, errAt(a, "range: bound %q is not a number", a.Text)
		}
		bounds[i] = f
	}
	lo, hi := math.Min(bounds[0], bounds[1]), math.Max(bounds[0], bounds[1])
	params := []string{formatFloat(lo), formatFloat(hi)}
	return &schema.Leaf{Kind: schema.KindRange, Params: params, Fn: func(_ context.Context, cell string, _ schema.Env) bool {
		v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil {
			return false
		}
		return v >= lo && v <= hi
	}}, nil
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

// lengthLeaf handles length(n) (exact) and length(min, max) where either
// bound may be '*'. Length counts runes.
func lengthLeaf(n *grammar.Leaf) (schema.Predicate, error) {
	bound := func(a grammar.Arg) (int, bool, error) {
		if a.Kind == grammar.ArgWildcard {
			return 0, true, nil
		}
		v, err := strconv.Atoi(a.Text)
		if err != nil || v < 0 {
			return 0, false, errAt(a, "length: bound %q must be a non-negative integer or *", a.Text)
		}
		return v, false, nil
	}

	lo, loAny, err := bound(n.Args[0])
	if err != nil {
		return nil, err
	}
	hi, hiAny := lo, loAny
	if len(n.Args) == 2 {
		if hi, hiAny, err = bound(n.Args[1]); err != nil {
			return nil, err
		}
		if !loAny && !hiAny && lo > hi {
			return nil, errAt(n.Args[0], "length: min %d exceeds max %d", lo, hi)
		}
	}

	params := make([]string, len(n.Args))
	for i, a := range n.Args {
		params[i] = a.Text
	}
	return &schema.Leaf{Kind: schema.KindLength, Params: params, Fn: func(_ context.Context, cell string, _ schema.Env) bool {
		l := utf8.RuneCountInString(cell)
		return (loAny || l >= lo) && (hiAny || l <= hi)
	}}, nil
}

func positiveInteger(cell string) bool {
	f, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return false
	}
	return f > 0 && f == math.Trunc(f)
}

func parsesAs(cell string, layouts []string) bool {
	for _, l := range layouts {
		if _, err := time.Parse(l, cell); err == nil {
			return true
		}
	}
	return false
}

func (c *compiler) fileExistsLeaf(n *grammar.Leaf) schema.Predicate {
	var base string
	var params []string
	if len(n.Args) == 1 {
		base = n.Args[0].Text
		params = []string{strconv.Quote(base)}
	}
	adapter := c.adapter
	return &schema.Leaf{Kind: schema.KindFileExists, Params: params, Fn: func(ctx context.Context, cell string, _ schema.Env) bool {
		p, err := external.ResolvePath(base, cell)
		if err != nil {
			return false
		}
		return adapter.Exists(ctx, p)
	}}
}

// checksumLeaf compares the cell against the digest of a file. A literal
// algorithm is validated now; a column-reference algorithm is validated
// per cell and an unknown name there is just false.
func (c *compiler) checksumLeaf(n *grammar.Leaf) (schema.Predicate, error) {
	fa := n.Args[0].File
	var base string
	fileParams := ""
	if fa.Base != nil {
		base = fa.Base.Text
		fileParams = strconv.Quote(base) + ", "
	}
	path := provider(fa.Path)
	alg := provider(n.Args[1])
	if n.Args[1].Kind == grammar.ArgString {
		canon, ok := external.CanonicalAlgorithm(n.Args[1].Text)
		if !ok {
			return nil, errAt(n.Args[1], "checksum: unsupported algorithm %q (supported: %s)",
				n.Args[1].Text, strings.Join(external.Algorithms(), ", "))
		}
		alg = schema.Literal(canon)
	}

	params := []string{"file(" + fileParams + path.String() + ")", alg.String()}
	adapter := c.adapter
	return &schema.Leaf{Kind: schema.KindChecksum, Params: params, Fn: func(ctx context.Context, cell string, env schema.Env) bool {
		raw, ok := path.Resolve(env)
		if !ok {
			return false
		}
		name, ok := alg.Resolve(env)
		if !ok {
			return false
		}
		p, err := external.ResolvePath(base, raw)
		if err != nil {
			return false
		}
		sum, err := adapter.Checksum(ctx, p, name)
		if err != nil {
			return false
		}
		return strings.EqualFold(sum, strings.TrimSpace(cell))
	}}, nil
}
