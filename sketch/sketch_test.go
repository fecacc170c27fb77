package sketch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHyperLogLogValidatesPrecision(t *testing.T) {
	_, err := New(4)
	require.Error(t, err)
	_, err = New(33)
	require.Error(t, err)
	_, err = New(10)
	require.NoError(t, err)
}

func TestHyperLogLogEstimateRoughlyTracksCardinality(t *testing.T) {
	h, err := New(12)
	require.NoError(t, err)
	const n = 20000
	for i := uint64(0); i < n; i++ {
		h.Add(i)
	}
	est := h.Estimate()
	require.InEpsilon(t, float64(n), est, 0.1)
}

func TestHyperLogLogMergeIsUnion(t *testing.T) {
	a, err := New(12)
	require.NoError(t, err)
	b, err := New(12)
	require.NoError(t, err)

	for i := uint64(0); i < 5000; i++ {
		a.Add(i)
	}
	for i := uint64(3000); i < 8000; i++ {
		b.Add(i)
	}

	union, err := a.MergeAndEstimate(b)
	require.NoError(t, err)
	require.InEpsilon(t, 8000.0, union, 0.12)
}

func TestHyperLogLogSerializeRoundTrip(t *testing.T) {
	h, err := New(10)
	require.NoError(t, err)
	for i := uint64(0); i < 1000; i++ {
		h.Add(i)
	}
	data, err := h.MarshalBinary()
	require.NoError(t, err)

	var out HyperLogLog
	require.NoError(t, out.UnmarshalBinary(data))
	require.Equal(t, h.Estimate(), out.Estimate())
}

func TestHyperLogLogResetClearsRegisters(t *testing.T) {
	h, err := New(8)
	require.NoError(t, err)
	for i := uint64(0); i < 500; i++ {
		h.Add(i)
	}
	h.Reset()
	require.Equal(t, 0.0, h.Estimate())
}

func TestSortByCardinalityDescending(t *testing.T) {
	cards := []uint64{10, 50, 5, 30}
	positions := []int{0, 1, 2, 3}
	SortByCardinalityDescending(positions, cards)
	require.Equal(t, []int{1, 3, 0, 2}, positions)
}

func TestUnionEstimatesMonotoneNonDecreasingTowardsPrefixStart(t *testing.T) {
	sketches := make([]*HyperLogLog, 4)
	for i := range sketches {
		h, err := New(10)
		require.NoError(t, err)
		for v := uint64(0); v < uint64(1000*(i+1)); v++ {
			h.Add(v)
		}
		sketches[i] = h
	}
	positions := []int{0, 1, 2, 3}
	result, err := UnionEstimates(sketches, positions, 3)
	require.NoError(t, err)
	require.Len(t, result, 4)
	for i := 1; i < len(result); i++ {
		require.GreaterOrEqual(t, result[i-1], result[i]*0.9)
	}
}

func TestRearrangeProducesPermutation(t *testing.T) {
	sketches := make([]*HyperLogLog, 6)
	for i := range sketches {
		h, err := New(10)
		require.NoError(t, err)
		base := uint64(i * 10000)
		for v := base; v < base+2000; v++ {
			h.Add(v)
		}
		sketches[i] = h
	}
	positions := []int{0, 1, 2, 3, 4, 5}
	err := Rearrange(sketches, positions, 0, 6, 42)
	require.NoError(t, err)

	seen := map[int]bool{}
	for _, p := range positions {
		require.False(t, seen[p])
		seen[p] = true
	}
	require.Len(t, seen, 6)
}

func TestRearrangeSmallIntervalNoOp(t *testing.T) {
	sketches := make([]*HyperLogLog, 2)
	for i := range sketches {
		h, err := New(10)
		require.NoError(t, err)
		sketches[i] = h
	}
	positions := []int{0, 1}
	require.NoError(t, Rearrange(sketches, positions, 0, 2, 1))
	require.Equal(t, []int{0, 1}, positions)
}
