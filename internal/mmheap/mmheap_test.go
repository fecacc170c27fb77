package mmheap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type distPair struct {
	a, b uint64
	dist float64
}

func (p distPair) Less(other *distPair) bool {
	return p.dist < other.dist
}

func TestHeapOrdersByDistance(t *testing.T) {
	h := New[distPair]()

	h.Insert(&distPair{0, 1, 0.9})
	h.Insert(&distPair{2, 3, 0.1})

	peek, ok := h.Peek()
	require.True(t, ok)
	require.InDelta(t, 0.1, peek.dist, 1e-9)

	h.Insert(&distPair{4, 5, 0.5})
	h.Insert(&distPair{6, 7, 0.05})
	require.Equal(t, 4, h.Len())

	expected := []float64{0.05, 0.1, 0.5, 0.9}
	for _, want := range expected {
		item, ok := h.Extract()
		require.True(t, ok)
		require.InDelta(t, want, item.dist, 1e-9)
	}

	_, ok = h.Extract()
	require.False(t, ok)
}
