// Package counting implements the counting vector used to accumulate
// per-bin containment counts from an interleaved Bloom filter row. It
// mirrors the 4-bit counting rows in the teacher's sketch.go (cmRow),
// generalised to a full-width, generic-typed slice with bit-vector-driven
// += / -=.
package counting

import (
	"math/bits"

	"github.com/seqlab/hibf/bitvector"
)

// Int is the set of integer widths a counting vector may be parameterised
// over (spec Design Notes: "a small, fixed set of widths is enough in
// practice").
type Int interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

const wordBits = 64

// Vector is a counting vector of element type T. It may be longer than the
// bit-vectors added into it; excess entries are left untouched.
type Vector[T Int] struct {
	data []T
}

// New returns a zero-initialised counting vector of n elements.
func New[T Int](n uint64) *Vector[T] {
	return &Vector[T]{data: make([]T, n)}
}

// Len reports the number of counting slots.
func (v *Vector[T]) Len() uint64 { return uint64(len(v.data)) }

// Get returns the value at index i.
func (v *Vector[T]) Get(i uint64) T { return v.data[i] }

// Set assigns the value at index i.
func (v *Vector[T]) Set(i uint64, val T) { v.data[i] = val }

// Slice exposes the backing slice directly (read-only use expected).
func (v *Vector[T]) Slice() []T { return v.data }

// Reset zeroes every counter.
func (v *Vector[T]) Reset() {
	for i := range v.data {
		v.data[i] = 0
	}
}

// AddBitVector adds bv element-wise into v: v[i] += 1 for every bit i set
// in bv. len(bv) must be <= v.Len().
func (v *Vector[T]) AddBitVector(bv *bitvector.Vector) {
	v.applyBitVector(bv, 1)
}

// SubBitVector subtracts bv element-wise from v: v[i] -= 1 for every bit i
// set in bv. len(bv) must be <= v.Len().
func (v *Vector[T]) SubBitVector(bv *bitvector.Vector) {
	v.applyBitVector(bv, -1)
}

func (v *Vector[T]) applyBitVector(bv *bitvector.Vector, delta T) {
	if bv.Len() > v.Len() {
		panic("counting: bit-vector longer than counting vector")
	}
	v.scalarApply(bv, delta)
}

// scalarApply walks the bit-vector's words, skipping runs of zero bits via
// count-trailing-zeros, and increments/decrements the counter at each set
// bit's absolute position.
func (v *Vector[T]) scalarApply(bv *bitvector.Vector, delta T) {
	words := bv.Words()
	for wi, w := range words {
		for w != 0 {
			tz := bits.TrailingZeros64(w)
			pos := wi*wordBits + tz
			if uint64(pos) < uint64(len(v.data)) {
				v.data[pos] += delta
			}
			w &= w - 1 // clear lowest set bit
		}
	}
}

// Add adds rhs into v element-wise; rhs.Len() <= v.Len() is required.
func (v *Vector[T]) Add(rhs *Vector[T]) {
	if rhs.Len() > v.Len() {
		panic("counting: rhs longer than v")
	}
	for i := range rhs.data {
		v.data[i] += rhs.data[i]
	}
}

// Sub subtracts rhs from v element-wise; rhs.Len() <= v.Len() is required.
func (v *Vector[T]) Sub(rhs *Vector[T]) {
	if rhs.Len() > v.Len() {
		panic("counting: rhs longer than v")
	}
	for i := range rhs.data {
		v.data[i] -= rhs.data[i]
	}
}

// Clone returns a deep copy of v.
func (v *Vector[T]) Clone() *Vector[T] {
	out := &Vector[T]{data: make([]T, len(v.data))}
	copy(out.data, v.data)
	return out
}
