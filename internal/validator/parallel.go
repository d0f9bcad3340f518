package validator

import (
	"context"
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"csvs/internal/binder"
)

// validateParallel fans rows out to opt.Workers goroutines. Results are
// sorted by (row, column) afterwards, so the output matches a sequential
// run.
//
// Under FailFast, workers share the lowest failing row index seen so far;
// rows beyond it are drained without evaluation. Rows below it may still
// be in flight, which is why the final answer is the minimum over all
// recorded failures rather than the first one reported. OnViolation is
// held back until that reduction, so it only sees what the Result keeps.
func validateParallel(ctx context.Context, b *binder.Binding, in <-chan Record, opt Options) Result {
	var (
		mu     sync.Mutex
		res    = Result{Mode: opt.Mode.String()}
		lowest atomic.Int64
	)
	lowest.Store(math.MaxInt64)

	g, gctx := errgroup.WithContext(ctx)
	for range opt.Workers {
		g.Go(func() error {
			var local []Violation
			collect := func(v Violation) { local = append(local, v) }
			for rec := range in {
				if gctx.Err() != nil {
					continue
				}
				if opt.Mode == FailFast && int64(rec.Index) > lowest.Load() {
					continue
				}
				local = local[:0]
				failed := checkRow(gctx, b, rec, opt.Mode, collect)

				mu.Lock()
				res.Rows++
				for _, v := range local {
					if v.Warning {
						res.Warnings = append(res.Warnings, v)
					} else {
						res.Violations = append(res.Violations, v)
					}
					if opt.OnViolation != nil && opt.Mode != FailFast {
						opt.OnViolation(v)
					}
				}
				mu.Unlock()

				if failed && opt.Mode == FailFast {
					lowerTo(&lowest, int64(rec.Index))
					if opt.OnFailure != nil {
						opt.OnFailure()
					}
				}
			}
			return nil
		})
	}
	_ = g.Wait() // workers never fail

	cmp := func(a, b Violation) int {
		switch {
		case less(a, b):
			return -1
		case less(b, a):
			return 1
		}
		return 0
	}
	slices.SortFunc(res.Violations, cmp)
	slices.SortFunc(res.Warnings, cmp)

	if opt.Mode == FailFast && len(res.Violations) > 0 {
		first := res.Violations[0]
		res.Violations = res.Violations[:1]
		// Keep only what a sequential run would have seen before stopping.
		res.Warnings = slices.DeleteFunc(res.Warnings, func(w Violation) bool { return !less(w, first) })
		res.Rows = first.Row + 1
	}
	if opt.Mode == FailFast && opt.OnViolation != nil {
		for _, v := range mergeSorted(res.Warnings, res.Violations) {
			opt.OnViolation(v)
		}
	}
	res.Valid = len(res.Violations) == 0
	return res
}

// lowerTo atomically sets *p to v when v is smaller.
func lowerTo(p *atomic.Int64, v int64) {
	for {
		cur := p.Load()
		if v >= cur || p.CompareAndSwap(cur, v) {
			return
		}
	}
}

// mergeSorted merges two (row, column) ordered lists.
func mergeSorted(a, b []Violation) []Violation {
	out := make([]Violation, 0, len(a)+len(b))
	for len(a) > 0 && len(b) > 0 {
		if less(b[0], a[0]) {
			out = append(out, b[0])
			b = b[1:]
		} else {
			out = append(out, a[0])
			a = a[1:]
		}
	}
	out = append(out, a...)
	return append(out, b...)
}
