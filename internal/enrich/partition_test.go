package enrich

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartition_Complete(t *testing.T) {
	for _, n := range []int{0, 1, 2, 7, 25, 100, 101} {
		for k := 1; k <= n+5; k++ {
			ranges, err := Partition(n, k)
			require.NoError(t, err)
			require.Len(t, ranges, k)

			seen := make([]int, n)
			next := 0
			for _, r := range ranges {
				if r.Empty() {
					continue
				}
				assert.Equal(t, next, r.Start, "n=%d k=%d ranges are contiguous and ordered", n, k)
				for i := r.Start; i < r.End; i++ {
					seen[i]++
				}
				next = r.End
			}
			assert.Equal(t, n, next, "n=%d k=%d last range ends at n", n, k)
			for i, c := range seen {
				assert.Equal(t, 1, c, "n=%d k=%d index %d assigned once", n, k, i)
			}
		}
	}
}

func TestPartition_LastAbsorbsRemainder(t *testing.T) {
	ranges, err := Partition(10, 3)
	require.NoError(t, err)
	assert.Equal(t, []Range{{0, 3}, {3, 6}, {6, 10}}, ranges)
}

func TestPartition_Even(t *testing.T) {
	ranges, err := Partition(9, 3)
	require.NoError(t, err)
	for _, r := range ranges {
		assert.Equal(t, 3, r.Len())
	}
}

func TestPartition_MoreWorkersThanCells(t *testing.T) {
	ranges, err := Partition(2, 5)
	require.NoError(t, err)
	empty := 0
	for _, r := range ranges {
		if r.Empty() {
			empty++
		}
	}
	assert.Equal(t, 4, empty)
	assert.Equal(t, Range{0, 2}, ranges[4])
}

func TestPartition_InvalidWorkers(t *testing.T) {
	_, err := Partition(10, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidWorkers))

	_, err = Partition(-1, 2)
	assert.Error(t, err)
}
