package enrich

import (
	"fmt"
	"time"

	"github.com/sells-group/soil-explorer/internal/grid"
)

// FetchError records a failed lookup for a single cell. The cell's
// attribute is left unset.
type FetchError struct {
	Index int
	BBox  grid.BBox
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("cell %d (%s): %v", e.Index, e.BBox, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Report summarizes a pool run.
type Report struct {
	Total     int
	Populated int
	Workers   int
	Failures  []*FetchError // ordered by cell index
	Elapsed   time.Duration
}

// Failed returns the number of cells whose lookup failed.
func (r *Report) Failed() int { return len(r.Failures) }

// Complete reports whether every cell received an attribute.
func (r *Report) Complete() bool { return r.Failed() == 0 && r.Populated == r.Total }
