package layout

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seqlab/hibf/sketch"
)

func buildSketches(t *testing.T, cardinalities []uint64) []*sketch.HyperLogLog {
	t.Helper()
	out := make([]*sketch.HyperLogLog, len(cardinalities))
	base := uint64(0)
	for i, c := range cardinalities {
		h, err := sketch.New(10)
		require.NoError(t, err)
		for v := base; v < base+c; v++ {
			h.Add(v)
		}
		base += c
		out[i] = h
	}
	return out
}

func TestComputeSmallFlatLayoutCoversEveryUserBin(t *testing.T) {
	cardinalities := []uint64{1000, 500, 250, 100}
	sketches := buildSketches(t, cardinalities)

	lay, err := Compute(cardinalities, sketches, WithTmax(8), WithAlpha(1.0))
	require.NoError(t, err)

	seen := map[int]bool{}
	var collect func(l *Layout)
	collect = func(l *Layout) {
		for _, ub := range l.UserBins {
			seen[ub.UserBinID] = true
		}
		for _, child := range l.Children {
			collect(child)
		}
	}
	collect(lay)
	require.Len(t, seen, len(cardinalities))
	for i := range cardinalities {
		require.True(t, seen[i], "user bin %d missing from layout", i)
	}
}

func TestComputeRejectsEmptyInput(t *testing.T) {
	_, err := Compute(nil, nil)
	require.Error(t, err)
}

func TestComputeHandlesSingleUserBin(t *testing.T) {
	lay, err := Compute([]uint64{42}, nil, WithTmax(4))
	require.NoError(t, err)
	require.Len(t, lay.UserBins, 1)
	require.Equal(t, 0, lay.UserBins[0].UserBinID)
}

func TestComputeWithManyBinsRecursesIntoMergedChildren(t *testing.T) {
	cardinalities := make([]uint64, 20)
	for i := range cardinalities {
		cardinalities[i] = uint64(100 - i)
	}
	sketches := buildSketches(t, cardinalities)

	lay, err := Compute(cardinalities, sketches, WithTmax(4), WithAlpha(0.5))
	require.NoError(t, err)

	seen := map[int]bool{}
	var collect func(l *Layout)
	collect = func(l *Layout) {
		for _, ub := range l.UserBins {
			seen[ub.UserBinID] = true
		}
		for _, child := range l.Children {
			collect(child)
		}
	}
	collect(lay)
	require.Len(t, seen, len(cardinalities))
}

func TestComputeWithDisabledRearrangementAndUnion(t *testing.T) {
	cardinalities := []uint64{300, 290, 280, 10}
	lay, err := Compute(cardinalities, nil, WithDisableRearrangement(), WithDisableEstimateUnion(), WithTmax(4))
	require.NoError(t, err)
	require.NotEmpty(t, lay.UserBins)
}

func TestComputeWithEmptyBinFractionStillCoversAllBins(t *testing.T) {
	cardinalities := []uint64{10, 20, 30}
	lay, err := Compute(cardinalities, nil, WithTmax(8), WithEmptyBinFraction(0.25))
	require.NoError(t, err)
	seen := map[int]bool{}
	for _, ub := range lay.UserBins {
		seen[ub.UserBinID] = true
	}
	require.Len(t, seen, 3)
}
