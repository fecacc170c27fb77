package hibf

import (
	"github.com/seqlab/hibf/ibf"
	"github.com/seqlab/hibf/query"
)

// indexView adapts an *Index into query.Index, owning the per-IBF
// counting agents a single query thread needs. It is not safe for
// concurrent use; MembershipAgent/CountingAgent each build a fresh one.
type indexView struct {
	idx     *Index
	agents  []*ibf.CountingAgent[uint32]
	buffers [][]uint64
}

func newIndexView(idx *Index) *indexView {
	agents := make([]*ibf.CountingAgent[uint32], len(idx.ibfs))
	buffers := make([][]uint64, len(idx.ibfs))
	for i, f := range idx.ibfs {
		agents[i] = ibf.CountingAgentFor[uint32](f)
		buffers[i] = make([]uint64, f.BinCount())
	}
	return &indexView{idx: idx, agents: agents, buffers: buffers}
}

func (v *indexView) IBFCount() int { return len(v.idx.ibfs) }

func (v *indexView) BinCount(i int) uint64 { return v.idx.ibfs[i].BinCount() }

func (v *indexView) BinToUser(i int, b uint64) int64 { return v.idx.binToUser[i][b] }

func (v *indexView) ChildOf(i int, b uint64) uint32 { return v.idx.childOf[i][b] }

func (v *indexView) BulkCount(i int, values []uint64) []uint64 {
	counts := v.agents[i].BulkCount(values)
	out := v.buffers[i]
	for b := range out {
		out[b] = uint64(counts.Get(uint64(b)))
	}
	return out
}

// Agent is a thread-owned handle answering HIBF membership queries.
// Obtain one via Index.MembershipAgent; never share one across threads.
type Agent struct {
	*query.MembershipAgent
}

// MembershipAgent returns a fresh membership-query agent over idx.
func (idx *Index) MembershipAgent() *Agent {
	return &Agent{query.NewMembershipAgent(newIndexView(idx))}
}

// CountingAgent is a thread-owned handle returning per-user-bin counts.
type CountingAgent struct {
	*query.CountingAgent
}

// CountingAgent returns a fresh counting-query agent over idx.
func (idx *Index) CountingAgent() *CountingAgent {
	return &CountingAgent{query.NewCountingAgent(newIndexView(idx), idx.NumberOfUserBins)}
}
