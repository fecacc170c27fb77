// Package xhash implements the fixed 64-bit multiplicative hash family
// the interleaved Bloom filter uses for row addressing. It deliberately
// mirrors the flavour of hashing the teacher package uses for its own
// Bloom/count-min sketches (a small set of fixed multipliers mixed with
// xor-shifts) rather than reaching for a general-purpose hash package,
// because the row index a given (value, seed) pair produces must stay
// stable across the lifetime of an on-disk index.
package xhash

import "math/bits"

// Seeds are the five fixed 64-bit irrationals used to derive independent
// row hashes for a single value. Order matters: hash function i always
// uses Seeds[i].
var Seeds = [5]uint64{
	13572355802537770549,
	13043817825332782213,
	10650232656628343401,
	16499269484942379435,
	4893150838803335377,
}

// goldenRatio64 is the fixed-point golden ratio constant used to spread
// bits after the xor-shift mixing step.
const goldenRatio64 = 0x9E3779B97F4A7C15

// Row computes the fastrange row position (within [0, binSizeBits)) for
// value v under seed s, given the precomputed hashShift = clz(binSizeBits).
// The same (v, s, hashShift, binSizeBits) tuple always yields the same row
// index, which is the property the on-disk format depends on. Callers
// multiply the result by technicalBins to get the row's starting bit.
func Row(v, s, hashShift, binSizeBits uint64) uint64 {
	h := v * s
	h ^= h >> hashShift
	h *= goldenRatio64
	hi, _ := bits.Mul64(h, binSizeBits)
	return hi
}

// HashShift returns clz(binSizeBits), the shift used to mix high bits into
// low bits before the golden-ratio multiply.
func HashShift(binSizeBits uint64) uint64 {
	return uint64(bits.LeadingZeros64(binSizeBits))
}
