package hibf

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

func TestBuildAndMembershipQueryFindsExactBin(t *testing.T) {
	bins := [][]uint64{
		{1, 2, 3, 4, 5},
		{100, 101, 102, 103},
		{9000, 9001, 9002},
	}
	cfg := Config{
		InputFn:          valuesInputFn(bins),
		NumberOfUserBins: uint64(len(bins)),
	}
	idx, err := Build(&cfg)
	require.NoError(t, err)

	agent := idx.MembershipAgent()
	hits := agent.MembershipFor([]uint64{100, 101, 102, 103}, 3)
	require.Contains(t, hits, uint64(1))
}

func TestBuildAndCountingAgentAttributesCounts(t *testing.T) {
	bins := [][]uint64{
		{1, 2, 3},
		{4, 5, 6},
	}
	cfg := Config{
		InputFn:          valuesInputFn(bins),
		NumberOfUserBins: uint64(len(bins)),
	}
	idx, err := Build(&cfg)
	require.NoError(t, err)

	agent := idx.CountingAgent()
	counts := agent.BulkCount([]uint64{1, 2, 4})
	require.Equal(t, uint64(2), counts[0])
	require.Equal(t, uint64(1), counts[1])
}

func TestBuildRejectsEmptyUserBin(t *testing.T) {
	bins := [][]uint64{{1, 2}, {}}
	cfg := Config{
		InputFn:          valuesInputFn(bins),
		NumberOfUserBins: uint64(len(bins)),
	}
	_, err := Build(&cfg)
	require.Error(t, err)
}

func TestBuildWithManyUserBinsRecursesAndStillQueries(t *testing.T) {
	bins := make([][]uint64, 150)
	for i := range bins {
		bins[i] = []uint64{uint64(i*1000 + 1), uint64(i*1000 + 2), uint64(i*1000 + 3)}
	}
	cfg := Config{
		InputFn:          valuesInputFn(bins),
		NumberOfUserBins: uint64(len(bins)),
		Threads:          4,
	}
	idx, err := Build(&cfg)
	require.NoError(t, err)
	require.Greater(t, idx.IBFCount(), 1)

	agent := idx.MembershipAgent()
	target := 42
	hits := agent.MembershipFor(bins[target], 3)
	require.Contains(t, hits, uint64(target))
}

func TestBuildSerializationRoundTrips(t *testing.T) {
	bins := [][]uint64{
		{1, 2, 3},
		{4, 5, 6},
		{7, 8, 9},
	}
	cfg := Config{
		InputFn:          valuesInputFn(bins),
		NumberOfUserBins: uint64(len(bins)),
	}
	idx, err := Build(&cfg)
	require.NoError(t, err)

	data, err := idx.MarshalBinary()
	require.NoError(t, err)

	var got Index
	require.NoError(t, got.UnmarshalBinary(data))
	require.Equal(t, idx.NumberOfUserBins, got.NumberOfUserBins)
	require.Equal(t, idx.IBFCount(), got.IBFCount())

	agent := got.MembershipAgent()
	hits := agent.MembershipFor([]uint64{4, 5, 6}, 3)
	require.Contains(t, hits, uint64(1))
}

func TestValidateRejectsMissingInputFn(t *testing.T) {
	cfg := Config{NumberOfUserBins: 3}
	require.Error(t, cfg.Validate())
}

func TestValidateRoundsTmaxAndWarns(t *testing.T) {
	cfg := Config{
		InputFn:          valuesInputFn([][]uint64{{1}}),
		NumberOfUserBins: 1,
		Tmax:             10,
	}
	require.NoError(t, cfg.Validate())
	require.Equal(t, uint64(64), cfg.Tmax)
	require.NotEmpty(t, cfg.Warnings)
}
