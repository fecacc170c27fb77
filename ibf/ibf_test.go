package ibf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	_, err := New(0, 100, 2, 0, false)
	require.Error(t, err)
	_, err = New(10, 0, 2, 0, false)
	require.Error(t, err)
	_, err = New(10, 100, 0, 0, false)
	require.Error(t, err)
	_, err = New(10, 100, 6, 0, false)
	require.Error(t, err)
	f, err := New(10, 100, 2, 0, false)
	require.NoError(t, err)
	require.Equal(t, uint64(10), f.BinCount())
}

func TestEmplaceAndContains(t *testing.T) {
	f, err := New(4, 2000, 3, 0, true)
	require.NoError(t, err)

	f.Emplace(42, 0)
	f.Emplace(42, 2)

	agent := f.ContainmentAgent()
	res := agent.BulkContains(42)
	require.True(t, res.Get(0))
	require.False(t, res.Get(1))
	require.True(t, res.Get(2))
	require.False(t, res.Get(3))

	res2 := agent.BulkContains(999999)
	// A hit here would be a false positive, which the filter allows (only
	// false negatives are errors), so this result is not asserted.
	_ = res2
}

func TestOccupancyTracksUniqueInsertions(t *testing.T) {
	f, err := New(2, 2000, 2, 0, true)
	require.NoError(t, err)

	f.Emplace(1, 0)
	require.Equal(t, uint64(1), f.Occupancy(0))
	f.Emplace(1, 0) // same value again: no new bits set
	require.Equal(t, uint64(1), f.Occupancy(0))
	f.Emplace(2, 0) // different value: likely sets at least one new bit
	require.GreaterOrEqual(t, f.Occupancy(0), uint64(1))
}

func TestEmplaceExists(t *testing.T) {
	f, err := New(1, 5000, 2, 0, false)
	require.NoError(t, err)
	require.False(t, f.EmplaceExists(7, 0))
	require.True(t, f.EmplaceExists(7, 0))
}

func TestClearAndClearRange(t *testing.T) {
	f, err := New(8, 1000, 2, 0, false)
	require.NoError(t, err)
	for b := uint64(0); b < 8; b++ {
		f.Emplace(uint64(b+1)*101, b)
	}
	f.Clear(3)
	agent := f.ContainmentAgent()
	require.False(t, agent.BulkContains(4*101).Get(3))

	f.ClearRange(4, 6)
	require.False(t, agent.BulkContains(5*101).Get(4))
	require.False(t, agent.BulkContains(6*101).Get(5))
}

func TestTryIncreaseBinNumberWithReserve(t *testing.T) {
	f, err := New(64, 1000, 2, 0.5, false)
	require.NoError(t, err)
	f.Emplace(123, 10)

	ok := f.TryIncreaseBinNumberTo(100)
	require.True(t, ok)
	require.Equal(t, uint64(100), f.BinCount())

	// Previously set bits remain visible at the same (bin, value) coordinate.
	agent := f.ContainmentAgent()
	require.True(t, agent.BulkContains(123).Get(10))

	// Beyond the reserved capacity must fail.
	ok = f.TryIncreaseBinNumberTo(100000)
	require.False(t, ok)
}

func TestIncreaseBinNumberToGrowsAndPreservesBits(t *testing.T) {
	f, err := New(40, 800, 2, 0, false)
	require.NoError(t, err)

	values := []uint64{11, 22, 33, 44}
	for i, v := range values {
		f.Emplace(v, uint64(i*5))
	}

	require.NoError(t, f.IncreaseBinNumberTo(200))
	require.Equal(t, uint64(200), f.BinCount())

	agent := f.ContainmentAgent()
	for i, v := range values {
		require.True(t, agent.BulkContains(v).Get(uint64(i*5)), "value %d bin %d", v, i*5)
	}
}

func TestBitsBeyondBinsNeverSet(t *testing.T) {
	f, err := New(5, 500, 2, 0, false)
	require.NoError(t, err)
	for i := uint64(0); i < 200; i++ {
		f.Emplace(i*7+1, i%5)
	}
	tb := f.TechnicalBinCount()
	for r := uint64(0); r < f.BinSizeBits(); r++ {
		for b := f.BinCount(); b < tb; b++ {
			require.False(t, f.bits.Get(r*tb+b), "row %d bin %d should be zero", r, b)
		}
	}
}

func TestNoFalseNegatives(t *testing.T) {
	f, err := New(3, 3000, 3, 0, false)
	require.NoError(t, err)
	u0 := rangeVals(1, 10)
	u1 := rangeVals(1, 5)
	u2 := []uint64{3, 9, 11}

	for _, v := range u0 {
		f.Emplace(v, 0)
	}
	for _, v := range u1 {
		f.Emplace(v, 1)
	}
	for _, v := range u2 {
		f.Emplace(v, 2)
	}

	agent := f.MembershipAgent()
	for _, v := range u0 {
		bins := agent.MembershipFor([]uint64{v}, 1)
		require.Contains(t, bins, uint64(0))
	}
}

func TestMembershipScenarioDirectHashes(t *testing.T) {
	f, err := New(3, 4000, 2, 0, false)
	require.NoError(t, err)
	for _, v := range rangeVals(1, 10) {
		f.Emplace(v, 0)
	}
	for _, v := range rangeVals(1, 5) {
		f.Emplace(v, 1)
	}
	for _, v := range []uint64{3, 9, 11} {
		f.Emplace(v, 2)
	}

	agent := f.MembershipAgent()
	bins := agent.MembershipFor([]uint64{3, 9, 12, 14}, 2)
	agent.SortResults()
	require.Equal(t, []uint64{0, 2}, bins)

	bins = agent.MembershipFor(rangeVals(0, 14), 5)
	agent.SortResults()
	require.Equal(t, []uint64{0, 1}, bins)
}

func rangeVals(lo, hi uint64) []uint64 {
	out := make([]uint64, 0, hi-lo+1)
	for v := lo; v <= hi; v++ {
		out = append(out, v)
	}
	return out
}

func TestSerializeRoundTrip(t *testing.T) {
	f, err := New(10, 1000, 2, 0, true)
	require.NoError(t, err)
	for i := uint64(0); i < 10; i++ {
		f.Emplace(i*13+1, i)
	}

	data, err := f.MarshalBinary()
	require.NoError(t, err)

	var out Filter
	require.NoError(t, out.UnmarshalBinary(data))
	require.True(t, f.Equal(&out))
}

func TestClearIdempotent(t *testing.T) {
	f, err := New(4, 500, 2, 0, false)
	require.NoError(t, err)
	f.Emplace(5, 1)
	f.Clear(1)
	f.Clear(1)
	agent := f.ContainmentAgent()
	require.False(t, agent.BulkContains(5).Get(1))
}
