package retrieve

import (
	"github.com/coder/hnsw"
)

// annIndex is the optional approximate semantic index. The HNSW graph trades
// exhaustive recall for sub-linear search on large projects.
type annIndex struct {
	graph *hnsw.Graph[uint64]
	keys  []uint64 // graph key -> chunk index, identity mapping
}

// newANNIndex inserts every embedded chunk into a cosine-distance graph,
// keyed by chunk index.
func newANNIndex(vectors [][]float32) *annIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance

	idx := &annIndex{graph: graph}
	for i, vec := range vectors {
		if vec == nil {
			continue
		}
		graph.Add(hnsw.MakeNode(uint64(i), vec))
		idx.keys = append(idx.keys, uint64(i))
	}
	return idx
}

// search returns up to limit allowed candidates. The graph is oversampled
// so post-filtering does not starve the result; scores are re-derived with
// the exact cosine so approximate and exact modes report the same scale.
func (a *annIndex) search(e *Engine, queryVec []float32, allowed func(int) bool, limit int) []scored {
	if len(a.keys) == 0 || limit <= 0 {
		return nil
	}

	oversample := limit * 4
	if oversample > len(a.keys) {
		oversample = len(a.keys)
	}

	nodes := a.graph.Search(queryVec, oversample)
	var list []scored
	for _, node := range nodes {
		i := int(node.Key)
		if !allowed(i) {
			continue
		}
		list = append(list, scored{idx: i, score: cosine(queryVec, e.vectors[i])})
	}
	e.rankScored(list)
	if len(list) > limit {
		list = list[:limit]
	}
	return list
}
