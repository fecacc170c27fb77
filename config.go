package hibf

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// InsertSink is the capability an InputFn uses to forward a user bin's
// hashes to the builder. Build calls InputFn once per user bin; the sink
// keeps every hash for the later IBF insertion and also folds it into
// that bin's HyperLogLog sketch. It mirrors the teacher's ring.Consumer Push shape, narrowed to
// a single value per call since input_fn yields one hash at a time.
type InsertSink interface {
	Insert(hash uint64)
}

// InputFn supplies the hashes belonging to userBinID by calling
// sink.Insert for each one. It must insert at least one hash; an
// input_fn that yields an empty set for any bin is a construction
// invariant violation.
type InputFn func(userBinID uint64, sink InsertSink) error

// Config holds every build-time parameter. NumberOfUserBins and InputFn
// are required; everything else has a default applied by Validate.
type Config struct {
	InputFn          InputFn
	NumberOfUserBins uint64

	NumberOfHashFunctions  uint64
	MaximumFPR             float64
	RelaxedFPR             float64
	Threads                int
	SketchBits             uint
	Tmax                   uint64
	EmptyBinFraction       float64
	Alpha                  float64
	MaxRearrangementRatio  float64
	DisableEstimateUnion   bool
	DisableRearrangement   bool
	RearrangementSeed      uint64

	// Warnings accumulates non-fatal notices recorded during Validate
	// (currently: tmax auto-rounding), mirroring the teacher's
	// preference for returning diagnostics on the value rather than
	// reaching for a logger (see §3 Ambient stack, Logging).
	Warnings []string
}

const (
	defaultNumberOfHashFunctions = 2
	defaultMaximumFPR            = 0.05
	defaultRelaxedFPR            = 0.3
	defaultThreads               = 1
	defaultSketchBits            = 12
	defaultAlpha                 = 1.2
	defaultMaxRearrangementRatio = 0.5
)

// Validate fills in unset fields with their documented defaults and
// rejects the configuration if any constraint is violated. It mutates
// the receiver, matching NewCache's validate-and-default style.
func (c *Config) Validate() error {
	switch {
	case c.InputFn == nil:
		return errors.New("hibf: InputFn is required")
	case c.NumberOfUserBins == 0:
		return errors.New("hibf: NumberOfUserBins must be > 0")
	case c.NumberOfUserBins > math.MaxUint64-3:
		return errors.New("hibf: NumberOfUserBins too large")
	}

	if c.NumberOfHashFunctions == 0 {
		c.NumberOfHashFunctions = defaultNumberOfHashFunctions
	}
	if c.NumberOfHashFunctions > 5 {
		return errors.New("hibf: NumberOfHashFunctions must be in [1,5]")
	}

	if c.MaximumFPR == 0 {
		c.MaximumFPR = defaultMaximumFPR
	}
	if c.MaximumFPR <= 0 || c.MaximumFPR >= 1 {
		return errors.New("hibf: MaximumFPR must be in (0,1)")
	}

	if c.RelaxedFPR == 0 {
		c.RelaxedFPR = defaultRelaxedFPR
	}
	if c.RelaxedFPR <= 0 || c.RelaxedFPR >= 1 {
		return errors.New("hibf: RelaxedFPR must be in (0,1)")
	}
	if c.RelaxedFPR < c.MaximumFPR {
		return errors.New("hibf: RelaxedFPR must be >= MaximumFPR")
	}

	if c.Threads == 0 {
		c.Threads = defaultThreads
	}
	if c.Threads < 0 {
		return errors.New("hibf: Threads must be > 0")
	}

	if c.SketchBits == 0 {
		c.SketchBits = defaultSketchBits
	}
	if c.SketchBits < 5 || c.SketchBits > 32 {
		return errors.New("hibf: SketchBits must be in [5,32]")
	}

	if c.Tmax == 0 {
		c.Tmax = roundUp64(uint64(math.Ceil(math.Sqrt(float64(c.NumberOfUserBins)))))
	} else {
		rounded := roundUp64(c.Tmax)
		if rounded != c.Tmax {
			c.Warnings = append(c.Warnings, fmt.Sprintf("tmax rounded up from %d to %d (must be a multiple of 64)", c.Tmax, rounded))
			c.Tmax = rounded
		}
	}
	if c.Tmax > math.MaxUint64-64 {
		return errors.New("hibf: Tmax too large")
	}

	if c.EmptyBinFraction < 0 || c.EmptyBinFraction >= 1 {
		return errors.New("hibf: EmptyBinFraction must be in [0,1)")
	}

	if c.Alpha == 0 {
		c.Alpha = defaultAlpha
	}
	if c.Alpha < 0 {
		return errors.New("hibf: Alpha must be >= 0")
	}

	if c.MaxRearrangementRatio == 0 && !c.DisableRearrangement {
		c.MaxRearrangementRatio = defaultMaxRearrangementRatio
	}
	if c.MaxRearrangementRatio < 0 || c.MaxRearrangementRatio > 1 {
		return errors.New("hibf: MaxRearrangementRatio must be in [0,1]")
	}

	if c.DisableEstimateUnion || c.MaxRearrangementRatio == 0 {
		c.DisableRearrangement = true
	}

	if c.RearrangementSeed == 0 {
		c.RearrangementSeed = 0x5bd1e995
	}

	return nil
}

func roundUp64(n uint64) uint64 {
	if n%64 == 0 {
		return n
	}
	return ((n / 64) + 1) * 64
}
