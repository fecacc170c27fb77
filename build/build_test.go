package build

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func valuesInputFn(bins [][]uint64) InputFn {
	return func(userBinID uint64, sink InsertSink) error {
		for _, v := range bins[userBinID] {
			sink.Insert(v)
		}
		return nil
	}
}

func TestRunBuildsDirectHashesWithNoOverlap(t *testing.T) {
	bins := [][]uint64{
		{1, 2, 3, 4, 5},
		{100, 101, 102},
		{9000, 9001},
	}
	tree, err := Run(Params{
		InputFn:               valuesInputFn(bins),
		NumberOfUserBins:      uint64(len(bins)),
		NumberOfHashFunctions: 2,
		MaximumFPR:            0.05,
		RelaxedFPR:            0.3,
		SketchBits:            10,
		Threads:               2,
	})
	require.NoError(t, err)
	require.NotEmpty(t, tree.IBFs)
	require.Nil(t, tree.ParentOf[0])
}

func TestRunRejectsEmptyUserBin(t *testing.T) {
	bins := [][]uint64{{1, 2, 3}, {}}
	_, err := Run(Params{
		InputFn:               valuesInputFn(bins),
		NumberOfUserBins:      uint64(len(bins)),
		NumberOfHashFunctions: 2,
		MaximumFPR:            0.05,
		RelaxedFPR:            0.3,
		SketchBits:            10,
	})
	require.Error(t, err)
}

func TestRunHandlesHighOverlapBins(t *testing.T) {
	shared := make([]uint64, 200)
	for i := range shared {
		shared[i] = uint64(i)
	}
	bins := [][]uint64{shared, shared, shared}
	tree, err := Run(Params{
		InputFn:               valuesInputFn(bins),
		NumberOfUserBins:      uint64(len(bins)),
		NumberOfHashFunctions: 2,
		MaximumFPR:            0.05,
		RelaxedFPR:            0.3,
		SketchBits:            10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, tree.IBFs)
}

func TestRunWithManyUserBinsProducesNestedTree(t *testing.T) {
	bins := make([][]uint64, 200)
	for i := range bins {
		bins[i] = []uint64{uint64(i*1000 + 1), uint64(i*1000 + 2)}
	}
	tree, err := Run(Params{
		InputFn:               valuesInputFn(bins),
		NumberOfUserBins:      uint64(len(bins)),
		NumberOfHashFunctions: 2,
		MaximumFPR:            0.05,
		RelaxedFPR:            0.3,
		SketchBits:            10,
		Threads:               4,
	})
	require.NoError(t, err)
	require.Greater(t, len(tree.IBFs), 1)
}
