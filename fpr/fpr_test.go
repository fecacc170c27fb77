package fpr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCorrectionTableBaseCaseAndMonotone(t *testing.T) {
	table, err := CorrectionTable(0.05, 2, 16)
	require.NoError(t, err)
	require.InDelta(t, 1.0, table[1], 1e-9)
	for s := uint64(1); s <= 16; s++ {
		require.GreaterOrEqual(t, table[s], 1.0-1e-9, "fpr_correction[%d] must be >= 1", s)
	}
}

func TestCorrectionTableValidation(t *testing.T) {
	_, err := CorrectionTable(0, 2, 16)
	require.Error(t, err)
	_, err = CorrectionTable(0.05, 0, 16)
	require.Error(t, err)
	_, err = CorrectionTable(0.05, 2, 0)
	require.Error(t, err)
}

func TestRelaxedCorrectionBoundedAboveByOne(t *testing.T) {
	f, err := RelaxedCorrection(0.05, 0.3, 2)
	require.NoError(t, err)
	require.LessOrEqual(t, f, 1.0)
	require.Greater(t, f, 0.0)
}

func TestRelaxedCorrectionRejectsInverted(t *testing.T) {
	_, err := RelaxedCorrection(0.3, 0.05, 2)
	require.Error(t, err)
}

func TestBinSizeInBitsGrowsWithElements(t *testing.T) {
	small := BinSizeInBits(10, 2, 0.05)
	large := BinSizeInBits(10000, 2, 0.05)
	require.Less(t, small, large)
}
