// Package sketch implements the cardinality sketch and similarity toolbox
// treated by the specification as an opaque "external collaborator": a
// HyperLogLog estimator with add/estimate/merge/reset, and the union-
// cardinality and clustering helpers the layout DP and rearrangement
// steps use it for. The register hash is farmhash (github.com/dgryski/
// go-farm), the same alternate 64-bit hash family the teacher benchmarks
// alongside FNV in z/rtutil_test.go, chosen here because a HyperLogLog
// register assignment needs one fixed, good-quality 64-bit hash and
// farmhash is already in the pack's dependency surface for exactly that
// role.
package sketch

import (
	"encoding/binary"
	"math"
	"math/bits"

	"github.com/pkg/errors"

	farm "github.com/dgryski/go-farm"
)

// minPrecision/maxPrecision bound sketch_bits (spec §6.1: in [5,32]).
const (
	minPrecision = 5
	maxPrecision = 32
)

// HyperLogLog is a dense-register HyperLogLog cardinality estimator.
type HyperLogLog struct {
	precision uint
	m         uint32 // number of registers = 1 << precision
	registers []uint8
	alphaMM   float64
}

// New returns a HyperLogLog sketch with 2^precision registers. precision
// must be in [5, 32].
func New(precision uint) (*HyperLogLog, error) {
	if precision < minPrecision || precision > maxPrecision {
		return nil, errors.Errorf("sketch: precision must be in [%d,%d]", minPrecision, maxPrecision)
	}
	m := uint32(1) << precision
	h := &HyperLogLog{
		precision: precision,
		m:         m,
		registers: make([]uint8, m),
	}
	h.alphaMM = alpha(m) * float64(m) * float64(m)
	return h, nil
}

func alpha(m uint32) float64 {
	switch m {
	case 16:
		return 0.673
	case 32:
		return 0.697
	case 64:
		return 0.709
	default:
		return 0.7213 / (1 + 1.079/float64(m))
	}
}

// Add hashes value via farmhash and folds it into the sketch.
func (h *HyperLogLog) Add(value uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	h.AddHash(farm.Fingerprint64(buf[:]))
}

// AddHash folds an already-computed 64-bit hash into the sketch. The
// lowest `precision` bits select the register; the remaining bits'
// leading-zero-run (+1) is the candidate register value.
func (h *HyperLogLog) AddHash(hv uint64) {
	idx := hv & uint64(h.m-1)
	rest := hv >> h.precision
	rank := uint8(bits.LeadingZeros64(rest<<h.precision)+1)
	if rest == 0 {
		rank = uint8(64 - h.precision + 1)
	}
	if h.registers[idx] < rank {
		h.registers[idx] = rank
	}
}

// Estimate returns the current cardinality estimate, using the standard
// HyperLogLog bias-corrected formula with small/large range correction.
func (h *HyperLogLog) Estimate() float64 {
	sum := 0.0
	zeros := 0
	for _, r := range h.registers {
		sum += 1.0 / float64(uint64(1)<<r)
		if r == 0 {
			zeros++
		}
	}
	estimate := h.alphaMM / sum
	m := float64(h.m)

	switch {
	case estimate <= 2.5*m && zeros != 0:
		return m * math.Log(m/float64(zeros))
	case estimate <= (1.0/30.0)*4294967296.0, m <= 65536 && estimate > (1.0/30.0)*4294967296.0:
		return estimate
	default:
		return -4294967296.0 * math.Log(1-estimate/4294967296.0)
	}
}

// Merge folds other's registers into h in place (register-wise max), the
// standard HyperLogLog union operation. h and other must share precision.
func (h *HyperLogLog) Merge(other *HyperLogLog) error {
	if h.precision != other.precision {
		return errors.Errorf("sketch: precision mismatch %d vs %d", h.precision, other.precision)
	}
	for i, r := range other.registers {
		if r > h.registers[i] {
			h.registers[i] = r
		}
	}
	return nil
}

// MergeAndEstimate returns the cardinality estimate of the union of h and
// other without mutating either (it clones h, merges into the clone).
func (h *HyperLogLog) MergeAndEstimate(other *HyperLogLog) (float64, error) {
	clone := h.Clone()
	if err := clone.Merge(other); err != nil {
		return 0, err
	}
	return clone.Estimate(), nil
}

// Reset zeroes every register.
func (h *HyperLogLog) Reset() {
	for i := range h.registers {
		h.registers[i] = 0
	}
}

// Clone returns a deep copy.
func (h *HyperLogLog) Clone() *HyperLogLog {
	out := &HyperLogLog{precision: h.precision, m: h.m, alphaMM: h.alphaMM}
	out.registers = make([]uint8, len(h.registers))
	copy(out.registers, h.registers)
	return out
}

// Precision reports the configured precision (sketch_bits).
func (h *HyperLogLog) Precision() uint { return h.precision }

// MarshalBinary serialises precision followed by the raw register bytes.
func (h *HyperLogLog) MarshalBinary() ([]byte, error) {
	out := make([]byte, 8+len(h.registers))
	binary.LittleEndian.PutUint64(out[0:8], uint64(h.precision))
	copy(out[8:], h.registers)
	return out, nil
}

// UnmarshalBinary reads the format written by MarshalBinary.
func (h *HyperLogLog) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return errors.New("sketch: short buffer")
	}
	precision := uint(binary.LittleEndian.Uint64(data[0:8]))
	m := uint32(1) << precision
	if uint64(len(data)-8) != uint64(m) {
		return errors.New("sketch: register count mismatch")
	}
	h.precision = precision
	h.m = m
	h.alphaMM = alpha(m) * float64(m) * float64(m)
	h.registers = make([]uint8, m)
	copy(h.registers, data[8:])
	return nil
}
