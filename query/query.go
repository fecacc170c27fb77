// Package query implements the recursive threshold-pruned membership
// and counting agents of component C8, operating over a built
// *hibf.Index. Both agents share the same traversal shape described in
// spec §4.8: walk an IBF's bins left to right, accumulate counts across
// consecutive bins belonging to the same user bin (a split bin), and
// either emit a result or recurse into a merged child, pruning whenever
// the accumulated count cannot reach the threshold.
package query

import "sort"

// Index is the subset of *hibf.Index this package needs. Declaring it
// here (rather than importing the hibf package) keeps query free of a
// dependency cycle with the root package, which embeds
// query.MembershipAgent and query.CountingAgent.
type Index interface {
	IBFCount() int
	BulkCount(ibfIdx int, values []uint64) []uint64
	BinCount(ibfIdx int) uint64
	BinToUser(ibfIdx int, bin uint64) int64
	ChildOf(ibfIdx int, bin uint64) uint32
}

// MembershipAgent is a thread-owned handle answering "which user bins
// contain at least `threshold` of these values". Create one per thread
// via hibf.Index.MembershipAgent(); the underlying Index is read-only
// and may be shared freely.
type MembershipAgent struct {
	index   Index
	results []uint64
}

// NewMembershipAgent returns an agent over idx.
func NewMembershipAgent(idx Index) *MembershipAgent {
	return &MembershipAgent{index: idx}
}

// MembershipFor returns the user-bin ids whose intersection with values
// has cardinality at least threshold. The returned slice is reused
// across calls; copy it if you need it to outlive the next call.
func (a *MembershipAgent) MembershipFor(values []uint64, threshold uint64) []uint64 {
	a.results = a.results[:0]
	a.search(values, 0, threshold)
	return a.results
}

// SortResults sorts the last MembershipFor result ascending, for API
// parity with ibf.MembershipAgent.SortResults.
func (a *MembershipAgent) SortResults() {
	sort.Slice(a.results, func(i, j int) bool { return a.results[i] < a.results[j] })
}

func (a *MembershipAgent) search(values []uint64, ibfIdx int, threshold uint64) {
	counts := a.index.BulkCount(ibfIdx, values)
	bins := a.index.BinCount(ibfIdx)

	var sum uint64
	for b := uint64(0); b < bins; b++ {
		sum += counts[b]
		u := a.index.BinToUser(ibfIdx, b)
		splitEnds := b+1 == bins || a.index.BinToUser(ibfIdx, b+1) != u
		if u < 0 {
			if sum >= threshold {
				a.search(values, int(a.index.ChildOf(ibfIdx, b)), threshold)
			}
			sum = 0
			continue
		}
		if splitEnds {
			if sum >= threshold {
				a.results = append(a.results, uint64(u))
			}
			sum = 0
		}
	}
}

// CountingAgent is a thread-owned handle returning, for every user bin,
// the count attributed to it by the query values.
type CountingAgent struct {
	index   Index
	numUser uint64
	counts  []uint64
}

// NewCountingAgent returns an agent over idx with numberOfUserBins
// output slots.
func NewCountingAgent(idx Index, numberOfUserBins uint64) *CountingAgent {
	return &CountingAgent{index: idx, numUser: numberOfUserBins}
}

// BulkCount returns a slice of length numberOfUserBins giving the count
// attributed to each user bin by values.
func (a *CountingAgent) BulkCount(values []uint64) []uint64 {
	if uint64(len(a.counts)) != a.numUser {
		a.counts = make([]uint64, a.numUser)
	} else {
		for i := range a.counts {
			a.counts[i] = 0
		}
	}
	a.accumulate(values, 0)
	return a.counts
}

func (a *CountingAgent) accumulate(values []uint64, ibfIdx int) {
	counts := a.index.BulkCount(ibfIdx, values)
	bins := a.index.BinCount(ibfIdx)

	var sum uint64
	for b := uint64(0); b < bins; b++ {
		sum += counts[b]
		u := a.index.BinToUser(ibfIdx, b)
		splitEnds := b+1 == bins || a.index.BinToUser(ibfIdx, b+1) != u
		if u < 0 {
			// Merged subtrees always recurse for counting (no
			// threshold to prune against); the sum resets per merged
			// run just as in the membership recursion.
			a.accumulate(values, int(a.index.ChildOf(ibfIdx, b)))
			sum = 0
			continue
		}
		if splitEnds {
			a.counts[u] += sum
			sum = 0
		}
	}
}
