// Package layout implements the hierarchical binning dynamic program
// (component C5): given per-user-bin cardinalities and optional
// HyperLogLog sketches, it decides how to distribute user bins across a
// bounded number of technical bins, recursing into merged sub-problems,
// and returns a flat two-table Layout ready for build.Run to realise as
// a tree of IBFs.
package layout

import (
	"math"

	"github.com/pkg/errors"

	"github.com/seqlab/hibf/fpr"
	"github.com/seqlab/hibf/sketch"
)

// Config holds the resolved DP tuning parameters. Use Option functions
// with Compute to override individual fields; unset fields take the
// defaults below.
type Config struct {
	// FalsePositiveRate is the strict per-IBF target FPR for split bins.
	FalsePositiveRate float64
	// RelaxedFalsePositiveRate is the looser FPR merged bins may use.
	RelaxedFalsePositiveRate float64
	// HashCount is the number of IBF hash functions, in [1,5].
	HashCount uint64
	// Tmax bounds the technical-bin fanout of any single IBF level.
	Tmax uint64
	// Alpha weights the contribution of lower-level IBF cost in the DP
	// objective; higher values penalise deep merge trees more.
	Alpha float64
	// MaxRearrangementRatio bounds the geometric cardinality ratio
	// within which bins are eligible for similarity rearrangement. Zero
	// disables rearrangement.
	MaxRearrangementRatio float64
	// DisableEstimateUnion forces the merge-weight estimator to use the
	// cardinality sum instead of a HyperLogLog union estimate.
	DisableEstimateUnion bool
	// DisableRearrangement skips the C6 clustering step entirely.
	DisableRearrangement bool
	// EmptyBinFraction reserves a fraction of Tmax as unused technical
	// bins, in [0,1).
	EmptyBinFraction float64
	// RearrangementSeed makes the clustering tie-breaking traversal
	// reproducible across builds of the same input.
	RearrangementSeed uint64
}

func defaultConfig() Config {
	return Config{
		FalsePositiveRate:        0.05,
		RelaxedFalsePositiveRate: 0.3,
		HashCount:                2,
		Tmax:                     64,
		Alpha:                    1.2,
		MaxRearrangementRatio:    0.5,
		DisableEstimateUnion:     false,
		DisableRearrangement:     false,
		EmptyBinFraction:         0,
		RearrangementSeed:        0x5bd1e995,
	}
}

// Option configures a Config passed to Compute.
type Option func(*Config)

// WithFalsePositiveRate overrides the strict target FPR (default 0.05).
func WithFalsePositiveRate(p float64) Option {
	return func(c *Config) { c.FalsePositiveRate = p }
}

// WithRelaxedFalsePositiveRate overrides the merged-bin FPR (default 0.3).
func WithRelaxedFalsePositiveRate(p float64) Option {
	return func(c *Config) { c.RelaxedFalsePositiveRate = p }
}

// WithHashCount overrides the hash function count (default 2).
func WithHashCount(k uint64) Option {
	return func(c *Config) { c.HashCount = k }
}

// WithTmax overrides the per-level technical-bin fanout (default 64).
func WithTmax(t uint64) Option {
	return func(c *Config) { c.Tmax = t }
}

// WithAlpha overrides the merge-cost weight (default 1.2).
func WithAlpha(a float64) Option {
	return func(c *Config) { c.Alpha = a }
}

// WithMaxRearrangementRatio overrides the rearrangement interval ratio
// bound (default 0.5); 0 disables rearrangement.
func WithMaxRearrangementRatio(r float64) Option {
	return func(c *Config) { c.MaxRearrangementRatio = r }
}

// WithDisableEstimateUnion forces merge-weight estimation to use the
// plain cardinality sum rather than a HyperLogLog union estimate.
func WithDisableEstimateUnion() Option {
	return func(c *Config) { c.DisableEstimateUnion = true }
}

// WithDisableRearrangement skips the C6 clustering step.
func WithDisableRearrangement() Option {
	return func(c *Config) { c.DisableRearrangement = true }
}

// WithEmptyBinFraction reserves a fraction of Tmax as unused bins.
func WithEmptyBinFraction(f float64) Option {
	return func(c *Config) { c.EmptyBinFraction = f }
}

// WithRearrangementSeed fixes the PRNG seed used to break ties during
// agglomerative clustering traversal.
func WithRearrangementSeed(seed uint64) Option {
	return func(c *Config) { c.RearrangementSeed = seed }
}

// Kind distinguishes the two record types of the flat layout tables.
type Kind int

const (
	// KindUserBin is a leaf assignment of one source user bin (possibly
	// split across several consecutive technical bins).
	KindUserBin Kind = iota
	// KindMaxBin records a lower-level IBF and the technical bin it
	// occupies in its parent, plus the child's own fullest bin.
	KindMaxBin
)

// UserBinRecord places one source user bin into a run of consecutive
// technical bins of the IBF identified by ParentPath.
type UserBinRecord struct {
	ParentPath        []uint64
	StartTechnicalBin uint64
	SplitCount        uint64
	UserBinID         int
	// Weight is the FPR-corrected per-bin element estimate the DP used
	// when placing this split, i.e. ceil(cardinality*fpr_correction[s]/s).
	// The maximum-bin tracker compares it against merged-bin weight.
	Weight float64
}

// MaxBinRecord records, for a lower-level IBF, the parent path leading
// to it, which technical bin of the parent holds it, and which of its
// own technical bins is the fullest.
type MaxBinRecord struct {
	ParentPath   []uint64
	TechnicalBin uint64
	FullestBin   uint64
	// Weight is the relaxed-FPR-scaled element estimate (cardinality sum
	// or union estimate) the DP used when choosing this merge.
	Weight float64
}

// Layout is the DP's output: a flat pair of tables describing the tree
// of technical-bin allocations, per spec §3.
type Layout struct {
	UserBins []UserBinRecord
	MaxBins  []MaxBinRecord
	// Children maps a technical bin of this level to the nested Layout
	// materialised for the merge placed there.
	Children map[uint64]*Layout
	// FullestBin is the technical bin the maximum-bin tracker chose as
	// this level's own fullest bin.
	FullestBin uint64
}

// Compute runs the hierarchical binning DP over cardinalities (and,
// optionally, parallel HyperLogLog sketches for union-estimate merge
// weights and similarity rearrangement) and returns the resulting
// Layout. User bins start in input order; Compute sorts that ordering by
// cardinality descending and applies rearrangement to it, leaving
// cardinalities and sketches themselves untouched.
func Compute(cardinalities []uint64, sketches []*sketch.HyperLogLog, opts ...Option) (*Layout, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cardinalities) == 0 {
		return nil, errors.New("layout: cardinalities must be non-empty")
	}
	positions := make([]int, len(cardinalities))
	for i := range positions {
		positions[i] = i
	}
	return computeLevel(cfg, cardinalities, sketches, positions, nil)
}

func computeLevel(cfg Config, cardinalities []uint64, sketches []*sketch.HyperLogLog, positions []int, parentPath []uint64) (*Layout, error) {
	n := len(positions)

	sketch.SortByCardinalityDescending(positions, cardinalities)
	if !cfg.DisableRearrangement && cfg.MaxRearrangementRatio > 0 && sketches != nil {
		applyRearrangement(cfg, cardinalities, sketches, positions)
	}

	visibleTmax := cfg.Tmax
	if cfg.EmptyBinFraction > 0 {
		reserved := uint64(math.Floor(float64(cfg.Tmax) * cfg.EmptyBinFraction))
		if reserved < cfg.Tmax {
			visibleTmax -= reserved
		}
	}
	m := visibleTmax
	if parentPath != nil && uint64(n) < m {
		m = uint64(divCeil(uint64(n), 64)) * 64
		if m > cfg.Tmax {
			m = cfg.Tmax
		}
		if m == 0 {
			m = 1
		}
	}

	correction, err := fpr.CorrectionTable(cfg.FalsePositiveRate, cfg.HashCount, m)
	if err != nil {
		return nil, err
	}
	relaxed, err := fpr.RelaxedCorrection(cfg.FalsePositiveRate, cfg.RelaxedFalsePositiveRate, cfg.HashCount)
	if err != nil {
		return nil, err
	}

	dp := newTables(int(m), n)

	ordered := make([]uint64, n)
	for j, p := range positions {
		ordered[j] = cardinalities[p]
	}

	maxMergeLevels := func(count int) float64 {
		if count <= 1 || m <= 1 {
			return 1
		}
		return math.Max(1, math.Ceil(math.Log(float64(count))/math.Log(float64(m))))
	}

	// rawWeight is the plain, unscaled sum of cardinalities over [jp,j];
	// it feeds the L-table's lower-level cost estimate (spec §4.5's
	// ll_kmers), which must not be inflated by the relaxed-FPR multiplier
	// used to size the current level's own technical bins.
	rawWeight := func(jp, j int) float64 {
		sum := uint64(0)
		for x := jp; x <= j; x++ {
			sum += ordered[x]
		}
		return float64(sum)
	}

	// mergeWeight is the relaxed-FPR-scaled element estimate (union
	// estimate or cardinality sum) used to size the merged technical bin
	// itself (the M-table).
	mergeWeight := func(jp, j int) float64 {
		if !cfg.DisableEstimateUnion && sketches != nil {
			est, err := sketch.UnionEstimates(sketches, positions, j)
			if err == nil && jp >= 0 && jp < len(est) {
				return est[jp] * relaxed
			}
		}
		return rawWeight(jp, j) * relaxed
	}

	// j = 0 column: pure split of the single first user bin.
	for i := 0; i < int(m); i++ {
		s := uint64(i + 1)
		score := math.Ceil(float64(ordered[0]) * correction[s] / float64(s))
		dp.M[i][0] = score
		dp.L[i][0] = 0
		dp.T[i][0] = backpointer{kind: KindUserBin, ip: -1, jp: -1}
	}

	// i = 0 row: pure merge of prefixes [0..j] into one technical bin.
	for j := 1; j < n; j++ {
		w := mergeWeight(0, j)
		dp.M[0][j] = w
		dp.L[0][j] = maxMergeLevels(j+1) * rawWeight(0, j)
		dp.T[0][j] = backpointer{kind: KindMaxBin, ip: -1, jp: -1}
	}

	for i := 1; i < int(m); i++ {
		for j := 1; j < n; j++ {
			bestFull := math.Inf(1)
			var bestBP backpointer
			var bestScore, bestLL float64

			// Split transition.
			for ip := 0; ip < i; ip++ {
				s := uint64(i - ip)
				score := math.Ceil(float64(ordered[j]) * correction[s] / float64(s))
				if dp.M[ip][j-1] > score {
					score = dp.M[ip][j-1]
				}
				full := score*float64(i+1) + cfg.Alpha*dp.L[ip][j-1]
				if full < bestFull {
					bestFull = full
					bestScore = score
					bestLL = dp.L[ip][j-1]
					bestBP = backpointer{kind: KindUserBin, ip: ip, jp: j - 1}
				}
			}

			// Merge transition: user bins [j'..j] into technical bin i.
			for jp := j; jp >= 0; jp-- {
				w := mergeWeight(jp, j)
				raw := rawWeight(jp, j)
				var prevM, prevL float64
				if jp == 0 {
					prevM, prevL = 0, 0
				} else {
					prevM, prevL = dp.M[i-1][jp-1], dp.L[i-1][jp-1]
				}
				score := w
				if prevM > score {
					score = prevM
				}
				ll := prevL + maxMergeLevels(j-jp+1)*raw
				full := score*float64(i+1) + cfg.Alpha*ll
				if full < bestFull {
					bestFull = full
					bestScore = score
					bestLL = ll
					bestBP = backpointer{kind: KindMaxBin, ip: i - 1, jp: jp - 1}
				}
				if jp > 0 && dp.T[i][jp-1].kind == KindUserBin {
					break
				}
			}

			dp.M[i][j] = bestScore
			dp.L[i][j] = bestLL
			dp.T[i][j] = bestBP
		}
	}

	lay := &Layout{Children: map[uint64]*Layout{}}
	if err := backtrack(cfg, cardinalities, sketches, positions, parentPath, dp, int(m)-1, n-1, lay, ordered, correction, relaxed); err != nil {
		return nil, err
	}
	lay.FullestBin = fullestBin(cfg, lay)
	return lay, nil
}

type backpointer struct {
	kind   Kind
	ip, jp int
}

type tables struct {
	M [][]float64
	L [][]float64
	T [][]backpointer
}

func newTables(rows, cols int) *tables {
	t := &tables{
		M: make([][]float64, rows),
		L: make([][]float64, rows),
		T: make([][]backpointer, rows),
	}
	for i := 0; i < rows; i++ {
		t.M[i] = make([]float64, cols)
		t.L[i] = make([]float64, cols)
		t.T[i] = make([]backpointer, cols)
	}
	return t
}

func backtrack(cfg Config, cardinalities []uint64, sketches []*sketch.HyperLogLog, positions []int, parentPath []uint64, dp *tables, i, j int, lay *Layout, ordered []uint64, correction []float64, relaxed float64) error {
	for j >= 0 {
		bp := dp.T[i][j]
		switch bp.kind {
		case KindUserBin:
			split := uint64(i - bp.ip)
			weight := math.Ceil(float64(ordered[j]) * correction[split] / float64(split))
			lay.UserBins = append(lay.UserBins, UserBinRecord{
				ParentPath:        parentPath,
				StartTechnicalBin: uint64(bp.ip + 1),
				SplitCount:        split,
				UserBinID:         positions[j],
				Weight:            weight,
			})
			i, j = bp.ip, bp.jp
		case KindMaxBin:
			lo, hi := bp.jp+1, j
			weight := mergeWeightAt(cfg, ordered, sketches, positions, lo, hi, relaxed)
			subPositions := make([]int, hi-lo+1)
			subCard := make([]uint64, hi-lo+1)
			var subSketches []*sketch.HyperLogLog
			if sketches != nil {
				subSketches = make([]*sketch.HyperLogLog, hi-lo+1)
			}
			for k := lo; k <= hi; k++ {
				subPositions[k-lo] = k - lo
				subCard[k-lo] = cardinalities[positions[k]]
				if sketches != nil {
					subSketches[k-lo] = sketches[positions[k]]
				}
			}
			childPath := append(append([]uint64{}, parentPath...), uint64(i))

			var child *Layout
			var err error
			if len(subPositions) > int(cfg.Tmax) {
				child, err = computeLevel(cfg, subCard, subSketches, subPositions, childPath)
			} else {
				child = trivialLayout(cfg, subCard, childPath)
			}
			if err != nil {
				return err
			}
			// Remap user-bin IDs throughout the child's subtree from local
			// indices back to the caller's original positions.
			var remap func(l *Layout)
			remap = func(l *Layout) {
				for idx := range l.UserBins {
					local := l.UserBins[idx].UserBinID
					l.UserBins[idx].UserBinID = positions[lo+local]
				}
				for _, c := range l.Children {
					remap(c)
				}
			}
			remap(child)
			fullest := fullestBin(cfg, child)
			lay.MaxBins = append(lay.MaxBins, MaxBinRecord{ParentPath: parentPath, TechnicalBin: uint64(i), FullestBin: fullest, Weight: weight})
			lay.Children[uint64(i)] = child

			i, j = bp.ip, bp.jp
		default:
			return errors.Errorf("layout: invalid backpointer at (%d,%d)", i, j)
		}
	}
	return nil
}

// mergeWeightAt is the standalone form of computeLevel's mergeWeight
// closure, usable from backtrack once the DP tables are gone: the
// relaxed-FPR-scaled element estimate for merging ordered[jp..j].
func mergeWeightAt(cfg Config, ordered []uint64, sketches []*sketch.HyperLogLog, positions []int, jp, j int, relaxed float64) float64 {
	if !cfg.DisableEstimateUnion && sketches != nil {
		est, err := sketch.UnionEstimates(sketches, positions, j)
		if err == nil && jp >= 0 && jp < len(est) {
			return est[jp] * relaxed
		}
	}
	sum := uint64(0)
	for x := jp; x <= j; x++ {
		sum += ordered[x]
	}
	return float64(sum) * relaxed
}

// trivialLayout implements the "simpler single-level binner": one
// technical bin per user bin, used when a merged sub-problem's user-bin
// count already fits within Tmax and a full recursive DP is wasted
// effort.
func trivialLayout(cfg Config, cardinalities []uint64, path []uint64) *Layout {
	lay := &Layout{Children: map[uint64]*Layout{}}
	for i, c := range cardinalities {
		lay.UserBins = append(lay.UserBins, UserBinRecord{
			ParentPath:        path,
			StartTechnicalBin: uint64(i),
			SplitCount:        1,
			UserBinID:         i,
			Weight:            float64(c),
		})
	}
	lay.FullestBin = fullestBin(cfg, lay)
	return lay
}

// fullestBin implements the maximum-bin tracker (spec §4.5, grounded on
// the original's hierarchical_binning.hpp maximum_bin_tracker): the
// overall largest bin wins, breaking ties toward merged bins, unless the
// overall winner is a merged bin whose relaxed-FPR bit size would push
// the largest split bin below its own minimum required bit size under
// the strict FPR -- in which case the largest split bin is reported
// instead.
func fullestBin(cfg Config, lay *Layout) uint64 {
	var (
		haveAny        bool
		overallIsSplit bool
		overallBin     uint64
		overallWeight  float64
		haveSplit      bool
		splitBin       uint64
		splitWeight    float64
	)
	for _, ub := range lay.UserBins {
		if !haveSplit || ub.Weight > splitWeight {
			haveSplit = true
			splitBin = ub.StartTechnicalBin
			splitWeight = ub.Weight
		}
		if !haveAny || ub.Weight > overallWeight {
			haveAny = true
			overallIsSplit = true
			overallBin = ub.StartTechnicalBin
			overallWeight = ub.Weight
		}
	}
	for _, mb := range lay.MaxBins {
		if !haveAny || mb.Weight >= overallWeight {
			haveAny = true
			overallIsSplit = false
			overallBin = mb.TechnicalBin
			overallWeight = mb.Weight
		}
	}
	if !haveAny {
		return 0
	}
	if overallIsSplit || !haveSplit {
		return overallBin
	}
	minimumBits := fpr.BinSizeInBits(uint64(splitWeight), cfg.HashCount, cfg.FalsePositiveRate)
	mergedBits := fpr.BinSizeInBits(uint64(overallWeight), cfg.HashCount, cfg.RelaxedFalsePositiveRate)
	if minimumBits > mergedBits {
		return splitBin
	}
	return overallBin
}

func applyRearrangement(cfg Config, cardinalities []uint64, sketches []*sketch.HyperLogLog, positions []int) {
	n := len(positions)
	lo := 0
	for lo < n {
		hi := lo + 1
		base := cardinalities[positions[lo]]
		for hi < n {
			c := cardinalities[positions[hi]]
			if base == 0 || ratio(c, base) < cfg.MaxRearrangementRatio {
				break
			}
			hi++
		}
		_ = sketch.Rearrange(sketches, positions, lo, hi, cfg.RearrangementSeed)
		lo = hi
	}
}

func ratio(a, b uint64) float64 {
	if a == 0 || b == 0 {
		return 0
	}
	fa, fb := float64(a), float64(b)
	if fa > fb {
		fa, fb = fb, fa
	}
	return fa / fb
}

func divCeil(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}
