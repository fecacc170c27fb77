// Package fpr precomputes the split-bin and merged-bin false-positive-rate
// correction multipliers described in spec §4.4. It mirrors the teacher's
// preference for small precomputed lookup tables over per-query math (the
// lfuSample/window-size constants in policy.go, or the bound tables in
// z/histogram.go) rather than recomputing the correction on every layout
// DP cell.
package fpr

import (
	"math"

	"github.com/pkg/errors"
)

// CorrectionTable returns fpr_correction[1..=tmax] such that splitting a
// user bin across s technical bins keeps the union FPR at p, given k hash
// functions. Index 0 of the returned slice is unused (kept 0) so callers
// can index directly by split count s (1-based), matching the spec's
// 1-based fpr_correction[s] notation.
func CorrectionTable(p float64, k uint64, tmax uint64) ([]float64, error) {
	if p <= 0 || p >= 1 {
		return nil, errors.New("fpr: p must be in (0,1)")
	}
	if k == 0 {
		return nil, errors.New("fpr: hash count must be > 0")
	}
	if tmax == 0 {
		return nil, errors.New("fpr: tmax must be > 0")
	}

	table := make([]float64, tmax+1)
	table[1] = 1
	denom := math.Log(1 - math.Exp(math.Log(p)/float64(k)))
	for s := uint64(2); s <= tmax; s++ {
		tmp := 1 - math.Pow(1-p, float64(s))
		table[s] = math.Log(1-math.Exp(math.Log(tmp)/float64(k))) / denom
	}
	return table, nil
}

// RelaxedCorrection returns a single scaling factor <= 1 comparing the
// strict FPR p against the looser merged-bin FPR pRelaxed, used to reduce
// the bit budget merged bins contribute to the layout DP's cost estimate.
func RelaxedCorrection(p, pRelaxed float64, k uint64) (float64, error) {
	if p <= 0 || p >= 1 || pRelaxed <= 0 || pRelaxed >= 1 {
		return 0, errors.New("fpr: p and pRelaxed must be in (0,1)")
	}
	if pRelaxed < p {
		return 0, errors.New("fpr: pRelaxed must be >= p")
	}
	if k == 0 {
		return 0, errors.New("fpr: hash count must be > 0")
	}
	numer := math.Log(1 - math.Exp(math.Log(p)/float64(k)))
	denom := math.Log(1 - math.Exp(math.Log(pRelaxed)/float64(k)))
	return numer / denom, nil
}

// BinSizeInBits returns the number of bits a single conceptual per-bin
// Bloom filter needs to hold elements items at false-positive rate fpr
// with hashCount hash functions: m = ceil(-n*k / ln(1 - fpr^(1/k))).
func BinSizeInBits(elements, hashCount uint64, falsePositiveRate float64) uint64 {
	if elements == 0 {
		return 64
	}
	k := float64(hashCount)
	n := float64(elements)
	denom := math.Log(1 - math.Exp(math.Log(falsePositiveRate)/k))
	m := -n * k / denom
	bits := uint64(math.Ceil(m))
	if bits < 64 {
		bits = 64
	}
	return bits
}
