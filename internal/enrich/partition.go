package enrich

import "github.com/rotisserie/eris"

// ErrInvalidWorkers is returned when the worker count is less than one.
var ErrInvalidWorkers = eris.New("enrich: worker count must be at least 1")

// Range is a half-open index range [Start, End) of the cell sequence.
type Range struct {
	Start int
	End   int
}

// Len returns the number of indices in the range.
func (r Range) Len() int { return r.End - r.Start }

// Empty reports whether the range covers no indices.
func (r Range) Empty() bool { return r.End <= r.Start }

// Partition splits [0, n) into k contiguous, disjoint, order-preserving
// ranges. The first k-1 ranges hold n/k indices each and the last range
// absorbs the remainder. When k > n the leading ranges are empty.
func Partition(n, k int) ([]Range, error) {
	if k < 1 {
		return nil, eris.Wrapf(ErrInvalidWorkers, "got %d", k)
	}
	if n < 0 {
		return nil, eris.Errorf("enrich: negative cell count %d", n)
	}

	base := n / k
	ranges := make([]Range, k)
	for i := range k - 1 {
		ranges[i] = Range{Start: i * base, End: (i + 1) * base}
	}
	ranges[k-1] = Range{Start: (k - 1) * base, End: n}
	return ranges, nil
}
