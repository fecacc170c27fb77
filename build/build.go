// Package build implements the HIBF tree materialisation procedure of
// component C7: it pulls hashes and cardinality sketches out of a
// caller-supplied InputFn, runs the layout DP (C5), then walks the
// resulting layout depth-first, allocating one ibf.Filter per node and
// splicing merged children's hash sets into their parent's bin, per
// spec §4.7. It is internal plumbing for hibf.Build; the root hibf
// package wraps Tree into the public Index type.
package build

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/seqlab/hibf/fpr"
	"github.com/seqlab/hibf/ibf"
	"github.com/seqlab/hibf/internal/xtimer"
	"github.com/seqlab/hibf/layout"
	"github.com/seqlab/hibf/sketch"
)

// InsertSink is the capability InputFn uses to forward one user bin's
// hashes into the sketching pass.
type InsertSink interface {
	Insert(hash uint64)
}

// InputFn supplies the hashes belonging to userBinID.
type InputFn func(userBinID uint64, sink InsertSink) error

// ParentRef locates the bin in a parent IBF that a non-root IBF was
// built under.
type ParentRef struct {
	IBF uint32
	Bin uint64
}

// Tree is the flat tree-of-IBFs materialised by Run; hibf.Build wraps
// it into the public Index type.
type Tree struct {
	IBFs      []*ibf.Filter
	ChildOf   [][]uint32
	ParentOf  []*ParentRef
	BinToUser [][]int64 // -1 == MERGED
}

// Params configures one Run call. All fields are required except
// Threads (defaults to 1) and LayoutOptions (defaults to the layout
// package's own defaults).
type Params struct {
	InputFn               InputFn
	NumberOfUserBins      uint64
	NumberOfHashFunctions uint64
	MaximumFPR            float64
	RelaxedFPR            float64
	SketchBits            uint
	Threads               int
	LayoutOptions         []layout.Option

	// Timers, if non-nil, receives per-phase wall-clock histograms.
	Timers *xtimer.Recorder
}

// ErrEmptyUserBin is returned when InputFn yields no hashes for some
// user bin, a construction-invariant violation per spec §7.
var ErrEmptyUserBin = errors.New("build: input_fn produced no hashes for a user bin")

type hashCollector struct {
	hll    *sketch.HyperLogLog
	values []uint64
}

func (c *hashCollector) Insert(h uint64) {
	c.values = append(c.values, h)
	c.hll.AddHash(h)
}

// Run executes the full build procedure and returns the materialised
// tree, or an error if InputFn violates a construction invariant.
func Run(p Params) (*Tree, error) {
	if p.Threads <= 0 {
		p.Threads = 1
	}

	hashes := make([][]uint64, p.NumberOfUserBins)
	sketches := make([]*sketch.HyperLogLog, p.NumberOfUserBins)
	cardinalities := make([]uint64, p.NumberOfUserBins)

	for i := uint64(0); i < p.NumberOfUserBins; i++ {
		var done func()
		if p.Timers != nil {
			done = p.Timers.Track(xtimer.PhaseSketch)
		}
		h, err := sketch.New(p.SketchBits)
		if err != nil {
			return nil, err
		}
		collector := &hashCollector{hll: h}
		if err := p.InputFn(i, collector); err != nil {
			return nil, errors.Wrapf(err, "build: input_fn failed for user bin %d", i)
		}
		if len(collector.values) == 0 {
			return nil, errors.Wrapf(ErrEmptyUserBin, "user bin %d", i)
		}
		hashes[i] = collector.values
		sketches[i] = h
		cardinalities[i] = uint64(len(collector.values))
		if done != nil {
			done()
		}
	}

	var layoutDone func()
	if p.Timers != nil {
		layoutDone = p.Timers.Track(xtimer.PhaseLayout)
	}
	lay, err := layout.Compute(cardinalities, sketches, p.LayoutOptions...)
	if layoutDone != nil {
		layoutDone()
	}
	if err != nil {
		return nil, err
	}

	b := &builder{
		params:  p,
		hashes:  hashes,
		tree:    &Tree{},
		sem:     make(chan struct{}, p.Threads),
		stripes: make(map[uint32][]sync.Mutex),
	}

	if _, _, err := b.materialize(lay); err != nil {
		return nil, err
	}
	return b.tree, nil
}

type builder struct {
	params Params
	hashes [][]uint64

	tree   *Tree
	treeMu sync.Mutex

	stripesMu sync.Mutex
	stripes   map[uint32][]sync.Mutex

	sem chan struct{}
}

// numBins returns the technical-bin count this layout level occupies:
// one past the highest bin touched by any record.
func numBins(lay *layout.Layout) uint64 {
	var max uint64
	for _, ub := range lay.UserBins {
		end := ub.StartTechnicalBin + ub.SplitCount
		if end > max {
			max = end
		}
	}
	for _, mb := range lay.MaxBins {
		if mb.TechnicalBin+1 > max {
			max = mb.TechnicalBin + 1
		}
	}
	if max == 0 {
		max = 1
	}
	return max
}

// materialize allocates and populates the IBF for one layout level,
// recursing into merged children first (they must exist before their
// hashes can be inserted into this level's merged bin). It returns the
// new IBF's index and the full set of hashes that ended up stored
// anywhere in this subtree -- the "parent_kmers" a caller one level up
// splices into its own merged bin.
func (b *builder) materialize(lay *layout.Layout) (uint32, []uint64, error) {
	bins := numBins(lay)

	elementsAtFullest, relaxedAtFullest := b.fullestBinWeight(lay)
	p := b.params.MaximumFPR
	if relaxedAtFullest {
		p = b.params.RelaxedFPR
	}
	binSizeBits := fpr.BinSizeInBits(elementsAtFullest, b.params.NumberOfHashFunctions, p)

	maxSplit := uint64(1)
	for _, ub := range lay.UserBins {
		if ub.SplitCount > maxSplit {
			maxSplit = ub.SplitCount
		}
	}
	if maxSplit > 1 {
		correction, err := fpr.CorrectionTable(b.params.MaximumFPR, b.params.NumberOfHashFunctions, maxSplit)
		if err != nil {
			return 0, nil, err
		}
		binSizeBits = uint64(float64(binSizeBits) * correction[maxSplit])
	}

	filter, err := ibf.New(bins, binSizeBits, b.params.NumberOfHashFunctions, 0, true)
	if err != nil {
		return 0, nil, err
	}

	childOf := make([]uint32, bins)
	binToUser := make([]int64, bins)
	for i := range binToUser {
		binToUser[i] = -1
	}

	idx := b.allocSlot()
	for i := range childOf {
		childOf[i] = idx
	}

	type childResult struct {
		bin  uint64
		idx  uint32
		hash []uint64
		err  error
	}
	results := make(chan childResult, len(lay.MaxBins))
	var wg sync.WaitGroup
	for _, mb := range lay.MaxBins {
		mb := mb
		child := lay.Children[mb.TechnicalBin]
		wg.Add(1)

		// Acquire a worker slot without blocking: a recursive subtree
		// materialization can itself want a slot from this same pool,
		// and a blocking acquire here would deadlock once recursion
		// depth exceeds Threads (every slot held by an ancestor
		// waiting on a descendant that can never get one). Falling
		// back to synchronous, in-goroutine execution when the pool is
		// saturated keeps the pool bounded while guaranteeing forward
		// progress.
		select {
		case b.sem <- struct{}{}:
			go func() {
				defer wg.Done()
				defer func() { <-b.sem }()
				childIdx, childHashes, err := b.materialize(child)
				results <- childResult{bin: mb.TechnicalBin, idx: childIdx, hash: childHashes, err: err}
			}()
		default:
			childIdx, childHashes, err := b.materialize(child)
			results <- childResult{bin: mb.TechnicalBin, idx: childIdx, hash: childHashes, err: err}
			wg.Done()
		}
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var allHashes []uint64
	var firstErr error
	for r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		stripe := b.stripeFor(idx, r.bin, int(bins))
		stripe.Lock()
		childOf[r.bin] = r.idx
		binToUser[r.bin] = -1
		b.insertChunk(filter, r.hash, r.bin)
		stripe.Unlock()

		b.treeMu.Lock()
		b.tree.ParentOf[r.idx] = &ParentRef{IBF: idx, Bin: r.bin}
		b.treeMu.Unlock()

		allHashes = append(allHashes, r.hash...)
	}
	if firstErr != nil {
		return 0, nil, firstErr
	}

	var insertDone func()
	if b.params.Timers != nil {
		insertDone = b.params.Timers.Track(xtimer.PhaseInsert)
	}
	for _, ub := range lay.UserBins {
		for i := uint64(0); i < ub.SplitCount; i++ {
			childOf[ub.StartTechnicalBin+i] = idx
		}
		values := b.hashes[ub.UserBinID]
		b.insertSplit(filter, values, ub.StartTechnicalBin, ub.SplitCount, ub.UserBinID, binToUser)
		allHashes = append(allHashes, values...)
	}
	if insertDone != nil {
		insertDone()
	}

	b.treeMu.Lock()
	b.tree.IBFs[idx] = filter
	b.tree.ChildOf[idx] = childOf
	b.tree.BinToUser[idx] = binToUser
	b.treeMu.Unlock()

	return idx, allHashes, nil
}

// fullestBinWeight returns the element count and whether the relaxed
// (merged) FPR applies for this level's fullest bin, per spec §4.7
// "its bin_size_bits derives from ... ceil(|kmers| / number_of_bins)".
func (b *builder) fullestBinWeight(lay *layout.Layout) (uint64, bool) {
	if child, ok := lay.Children[lay.FullestBin]; ok {
		return uint64(countHashes(child, b.hashes)), true
	}
	for _, ub := range lay.UserBins {
		if ub.StartTechnicalBin == lay.FullestBin {
			n := uint64(len(b.hashes[ub.UserBinID]))
			return divCeil(n, ub.SplitCount), false
		}
	}
	return 1, false
}

func countHashes(lay *layout.Layout, hashes [][]uint64) int {
	if lay == nil {
		return 0
	}
	n := 0
	for _, ub := range lay.UserBins {
		n += len(hashes[ub.UserBinID])
	}
	for _, child := range lay.Children {
		n += countHashes(child, hashes)
	}
	return n
}

func divCeil(a, b uint64) uint64 {
	if b == 0 {
		return a
	}
	return (a + b - 1) / b
}

// insertChunk inserts every value of values into bin of filter.
func (b *builder) insertChunk(filter *ibf.Filter, values []uint64, bin uint64) {
	for _, v := range values {
		filter.Emplace(v, bin)
	}
}

// insertSplit distributes values round-robin across the splitCount
// consecutive technical bins starting at start, per spec §4.7
// "chunked across its technical bins if split".
func (b *builder) insertSplit(filter *ibf.Filter, values []uint64, start, splitCount uint64, userBinID int, binToUser []int64) {
	for i := uint64(0); i < splitCount; i++ {
		binToUser[start+i] = int64(userBinID)
	}
	if splitCount == 1 {
		for _, v := range values {
			filter.Emplace(v, start)
		}
		return
	}
	for i, v := range values {
		bin := start + uint64(i)%splitCount
		filter.Emplace(v, bin)
	}
}

func (b *builder) allocSlot() uint32 {
	b.treeMu.Lock()
	defer b.treeMu.Unlock()
	idx := uint32(len(b.tree.IBFs))
	b.tree.IBFs = append(b.tree.IBFs, nil)
	b.tree.ChildOf = append(b.tree.ChildOf, nil)
	b.tree.BinToUser = append(b.tree.BinToUser, nil)
	b.tree.ParentOf = append(b.tree.ParentOf, nil)
	return idx
}

// stripeFor returns the mutex guarding writes to bin's 64-bin stripe of
// parentIdx's IBF, matching spec §5 "one mutex per 64 parent bins" and
// the concurrent-emplace safety condition of spec §4.3 (disjoint
// 64-bin blocks may be written concurrently without synchronisation,
// so the stripe grain here matches that boundary exactly).
func (b *builder) stripeFor(parentIdx uint32, bin uint64, bins int) *sync.Mutex {
	b.stripesMu.Lock()
	defer b.stripesMu.Unlock()
	s, ok := b.stripes[parentIdx]
	if !ok {
		s = make([]sync.Mutex, (bins+63)/64)
		b.stripes[parentIdx] = s
	}
	return &s[bin/64]
}
