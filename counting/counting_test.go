package counting

import (
	"testing"

	"github.com/seqlab/hibf/bitvector"
	"github.com/stretchr/testify/require"
)

func TestAddSubBitVector(t *testing.T) {
	bv := bitvector.New(10)
	bv.Set(0, true)
	bv.Set(5, true)
	bv.Set(9, true)

	v := New[uint32](10)
	v.AddBitVector(bv)
	require.Equal(t, uint32(1), v.Get(0))
	require.Equal(t, uint32(0), v.Get(1))
	require.Equal(t, uint32(1), v.Get(5))
	require.Equal(t, uint32(1), v.Get(9))

	v.AddBitVector(bv)
	require.Equal(t, uint32(2), v.Get(5))

	v.SubBitVector(bv)
	require.Equal(t, uint32(1), v.Get(5))
}

func TestAddSubVector(t *testing.T) {
	a := New[int64](4)
	b := New[int64](4)
	a.Set(0, 3)
	b.Set(0, 4)
	b.Set(1, 2)
	a.Add(b)
	require.Equal(t, int64(7), a.Get(0))
	require.Equal(t, int64(2), a.Get(1))
	a.Sub(b)
	require.Equal(t, int64(3), a.Get(0))
	require.Equal(t, int64(0), a.Get(1))
}

func TestMonotonicAccumulation(t *testing.T) {
	n := uint64(128)
	xs := bitvector.New(n)
	ys := bitvector.New(n)
	for i := uint64(0); i < n; i++ {
		xs.Set(i, i%3 == 0)
		ys.Set(i, i%5 == 0)
	}

	combined := New[uint16](n)
	combined.AddBitVector(xs)
	combined.AddBitVector(ys)

	separate := New[uint16](n)
	separate.AddBitVector(xs)
	other := New[uint16](n)
	other.AddBitVector(ys)
	separate.Add(other)

	for i := uint64(0); i < n; i++ {
		require.Equal(t, combined.Get(i), separate.Get(i), "index %d", i)
	}
}
