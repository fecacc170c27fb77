package layout

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTextRoundTripsFlatLayout(t *testing.T) {
	cardinalities := []uint64{100, 90, 80, 70, 60}
	lay, err := Compute(cardinalities, nil, WithDisableRearrangement(), WithTmax(64))
	require.NoError(t, err)

	cfg := defaultConfig()
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, lay, &cfg))

	var gotCfg Config
	got, err := ReadText(&buf, &gotCfg)
	require.NoError(t, err)

	require.Equal(t, cfg.Tmax, gotCfg.Tmax)
	require.Equal(t, len(lay.UserBins), len(got.UserBins))
	require.Equal(t, lay.FullestBin, got.FullestBin)

	gotByID := map[int]UserBinRecord{}
	for _, ub := range got.UserBins {
		gotByID[ub.UserBinID] = ub
	}
	for _, ub := range lay.UserBins {
		g, ok := gotByID[ub.UserBinID]
		require.True(t, ok)
		require.Equal(t, ub.StartTechnicalBin, g.StartTechnicalBin)
		require.Equal(t, ub.SplitCount, g.SplitCount)
	}
}

func TestTextRoundTripsNestedLayout(t *testing.T) {
	cardinalities := make([]uint64, 40)
	for i := range cardinalities {
		cardinalities[i] = uint64(100 - i)
	}
	lay, err := Compute(cardinalities, nil, WithDisableRearrangement(), WithTmax(64))
	require.NoError(t, err)
	require.NotEmpty(t, lay.MaxBins)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, lay, nil))

	got, err := ReadText(&buf, nil)
	require.NoError(t, err)
	require.Equal(t, len(lay.MaxBins), len(got.MaxBins))
	require.Equal(t, len(lay.Children), len(got.Children))
}
