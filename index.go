package hibf

import (
	"github.com/dustin/go-humanize"

	"github.com/seqlab/hibf/ibf"
)

// Merged is the bin_to_user sentinel marking a bin that holds a merged
// child IBF rather than a (possibly split) user bin.
const Merged int64 = -1

// ParentRef locates the bin in a parent IBF that a non-root IBF was
// built under.
type ParentRef struct {
	IBF uint32
	Bin uint64
}

// Index is the umbrella type returned by Build: a tree of IBFs plus the
// flat arrays describing how bins map to user bins or child IBFs, per
// spec §3's "HIBF index" data model. It is read-only and safe to share
// across goroutines once built; obtain a per-thread Agent via
// MembershipAgent/CountingAgent.
type Index struct {
	NumberOfUserBins uint64

	ibfs      []*ibf.Filter
	childOf   [][]uint32 // childOf[i][b] == i when bin b is a leaf
	parentOf  []*ParentRef
	binToUser [][]int64 // Merged sentinel when the bin holds a child IBF
}

// IBFCount reports how many IBF levels the tree contains.
func (idx *Index) IBFCount() int { return len(idx.ibfs) }

// IBF returns the IBF at position i (root is 0).
func (idx *Index) IBF(i int) *ibf.Filter { return idx.ibfs[i] }

// ChildOf returns the IBF reached from bin b of IBF i, or i itself if
// bin b is a leaf.
func (idx *Index) ChildOf(i int, b uint64) uint32 { return idx.childOf[i][b] }

// BinToUser returns the user-bin id stored in bin b of IBF i, or Merged.
func (idx *Index) BinToUser(i int, b uint64) int64 { return idx.binToUser[i][b] }

// ParentOf returns the parent IBF/bin of IBF i, or nil for the root.
func (idx *Index) ParentOf(i int) *ParentRef { return idx.parentOf[i] }

// Stats summarises the index's footprint, formatted the way the
// teacher's cache metrics format byte counts.
type Stats struct {
	IBFCount   int
	TotalBits  uint64
	TotalBytes uint64
}

// Describe returns a human-readable one-line summary of the index's
// size, using the same byte-size formatting the teacher reaches for in
// its own stats surface.
func (idx *Index) Describe() string {
	s := idx.StatsSummary()
	return humanize.Bytes(s.TotalBytes) + " across " + humanize.Comma(int64(s.IBFCount)) + " IBFs"
}

// StatsSummary computes aggregate size statistics over every IBF level.
func (idx *Index) StatsSummary() Stats {
	s := Stats{IBFCount: len(idx.ibfs)}
	for _, f := range idx.ibfs {
		bits := f.TechnicalBinCount() * f.BinSizeBits()
		s.TotalBits += bits
	}
	s.TotalBytes = (s.TotalBits + 7) / 8
	return s
}
