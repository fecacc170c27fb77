package sketch

import (
	"math/rand/v2"
	"sort"

	"github.com/seqlab/hibf/internal/mmheap"
)

// SortByCardinalityDescending reorders positions (a permutation of
// [0,len(cardinalities))) so cardinalities[positions[i]] is
// non-increasing. Sketches and the cardinality slice themselves are
// left untouched; only the permutation moves.
func SortByCardinalityDescending(positions []int, cardinalities []uint64) {
	sort.SliceStable(positions, func(i, j int) bool {
		return cardinalities[positions[i]] > cardinalities[positions[j]]
	})
}

// UnionEstimates computes, for a fixed prefix end j (inclusive, indexing
// into positions), estimate[j'] = |sketch(positions[j']) ∪ ... ∪
// sketch(positions[j])| for every j' in [0,j]. The result is indexed the
// same way: result[j'] holds the union estimate of the suffix starting
// at j' and ending at j.
func UnionEstimates(sketches []*HyperLogLog, positions []int, j int) ([]float64, error) {
	result := make([]float64, j+1)
	acc := sketches[positions[j]].Clone()
	result[j] = acc.Estimate()
	for jp := j - 1; jp >= 0; jp-- {
		if err := acc.Merge(sketches[positions[jp]]); err != nil {
			return nil, err
		}
		result[jp] = acc.Estimate()
	}
	return result, nil
}

// cluster is one node of the agglomerative-clustering forest: either a
// leaf (a single original bin) or the result of merging two clusters.
// leaves, in left-to-right order, gives the final permutation once
// clustering has converged to a single root per rearrangement interval.
type cluster struct {
	id     int
	sketch *HyperLogLog
	leaves []int
}

type pairDistance struct {
	a, b int // cluster ids
	dist float64
}

func (p pairDistance) Less(other *pairDistance) bool {
	return p.dist < other.dist
}

func jaccardDistance(a, b *HyperLogLog) (float64, error) {
	union, err := a.MergeAndEstimate(b)
	if err != nil {
		return 0, err
	}
	if union <= 0 {
		return 0, nil
	}
	ea := a.Estimate()
	eb := b.Estimate()
	intersection := ea + eb - union
	if intersection < 0 {
		intersection = 0
	}
	similarity := intersection / union
	if similarity > 1 {
		similarity = 1
	}
	return 1 - similarity, nil
}

// Rearrange performs the agglomerative-clustering reordering described
// for similarity-based layout: positions[lo:hi] (a half-open interval of
// geometrically similar cardinality, chosen by the caller) is replaced
// in place by a permutation that groups content-similar bins together.
// rngSeed makes the tie-breaking traversal order reproducible across
// builds of the same input.
func Rearrange(sketches []*HyperLogLog, positions []int, lo, hi int, rngSeed uint64) error {
	n := hi - lo
	if n <= 2 {
		return nil
	}

	clusters := make(map[int]*cluster, n)
	nextID := 0
	for i := lo; i < hi; i++ {
		c := &cluster{id: nextID, sketch: sketches[positions[i]].Clone(), leaves: []int{positions[i]}}
		clusters[c.id] = c
		nextID++
	}

	pq := mmheap.New[pairDistance]()
	// byCluster indexes the live heap entries touching a given cluster id,
	// so a merge can evict every entry the merged clusters made stale via
	// RemoveAt instead of leaving them to be discovered lazily on pop.
	byCluster := make(map[int][]*pairDistance, n)
	insertPair := func(a, b int, dist float64) {
		e := &pairDistance{a: a, b: b, dist: dist}
		pq.Insert(e)
		byCluster[a] = append(byCluster[a], e)
		byCluster[b] = append(byCluster[b], e)
	}

	ids := make([]int, 0, n)
	for id := range clusters {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			d, err := jaccardDistance(clusters[ids[i]].sketch, clusters[ids[j]].sketch)
			if err != nil {
				return err
			}
			insertPair(ids[i], ids[j], d)
		}
	}

	rng := rand.New(rand.NewPCG(rngSeed, rngSeed^0x9e3779b97f4a7c15))

	for len(clusters) > 1 {
		entry, ok := pq.Extract()
		if !ok {
			break
		}
		ca := clusters[entry.a]
		cb := clusters[entry.b]

		for _, e := range byCluster[ca.id] {
			if e != entry {
				pq.RemoveAt(e)
			}
		}
		delete(byCluster, ca.id)
		for _, e := range byCluster[cb.id] {
			if e != entry {
				pq.RemoveAt(e)
			}
		}
		delete(byCluster, cb.id)

		merged := &cluster{id: nextID, sketch: ca.sketch.Clone()}
		if err := merged.sketch.Merge(cb.sketch); err != nil {
			return err
		}
		if rng.Uint64()%2 == 0 {
			merged.leaves = append(append([]int{}, ca.leaves...), cb.leaves...)
		} else {
			merged.leaves = append(append([]int{}, cb.leaves...), ca.leaves...)
		}
		nextID++

		delete(clusters, ca.id)
		delete(clusters, cb.id)
		for id, other := range clusters {
			d, err := jaccardDistance(merged.sketch, other.sketch)
			if err != nil {
				return err
			}
			insertPair(merged.id, id, d)
		}
		clusters[merged.id] = merged
	}

	var root *cluster
	for _, c := range clusters {
		root = c
	}
	if root == nil || len(root.leaves) != n {
		return nil
	}
	copy(positions[lo:hi], root.leaves)
	return nil
}
