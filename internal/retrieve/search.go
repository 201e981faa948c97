package retrieve

import (
	"context"
	"time"

	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
)

// Search runs one query against the snapshot.
func (e *Engine) Search(ctx context.Context, q Query) (*Result, error) {
	if q.TopK == 0 {
		q.TopK = 10
	}
	if q.TopK < MinTopK || q.TopK > MaxTopK {
		return nil, ferrors.Newf(ferrors.CodeInvalidInput,
			"top_k must be in [%d,%d], got %d", MinTopK, MaxTopK, q.TopK)
	}
	if q.Mode == "" {
		q.Mode = ModeHybrid
	}
	if q.Alpha == 0 {
		q.Alpha = DefaultAlpha
	}
	if q.Alpha < 0 || q.Alpha > 1 {
		return nil, ferrors.Newf(ferrors.CodeInvalidInput, "alpha must be in [0,1], got %g", q.Alpha)
	}
	if q.Fusion == "" {
		q.Fusion = FusionRRF
	}

	allowed, err := e.filterPredicate(q.Filters)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := e.search(ctx, &q, allowed)
	if err != nil {
		return nil, err
	}

	if q.Expand != nil {
		result.Hits = e.expand(result.Hits, *q.Expand)
	}

	e.logger.Debug("search",
		"mode", string(result.Mode),
		"top_k", q.TopK,
		"hits", len(result.Hits),
		"duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

func (e *Engine) search(ctx context.Context, q *Query, allowed func(int) bool) (*Result, error) {
	switch q.Mode {
	case ModeKeyword:
		list := e.keyword.candidates(e, q.Text, allowed, q.TopK)
		return &Result{Mode: ModeKeyword, Hits: e.toHits(list)}, nil

	case ModeSemantic:
		vec, ok, err := e.queryVector(ctx, q)
		if err != nil {
			return nil, err
		}
		if !ok {
			list := e.keyword.candidates(e, q.Text, allowed, q.TopK)
			return &Result{Mode: ModeKeywordFallback, Hits: e.toHits(list)}, nil
		}
		list := e.semanticCandidates(vec, allowed, q.TopK)
		return &Result{Mode: ModeSemantic, Hits: e.toHits(list)}, nil

	case ModeHybrid:
		vec, ok, err := e.queryVector(ctx, q)
		if err != nil {
			return nil, err
		}
		if !ok {
			list := e.keyword.candidates(e, q.Text, allowed, q.TopK)
			return &Result{Mode: ModeKeywordFallback, Hits: e.toHits(list)}, nil
		}

		depth := CandidateFactor * q.TopK
		sem := e.semanticCandidates(vec, allowed, depth)
		kw := e.keyword.candidates(e, q.Text, allowed, depth)

		var fused []scored
		if q.Fusion == FusionWeighted {
			fused = fuseWeighted(sem, kw, q.Alpha)
		} else {
			fused = fuseRRF(sem, kw, q.Alpha)
		}
		e.rankScored(fused)
		if len(fused) > q.TopK {
			fused = fused[:q.TopK]
		}
		return &Result{Mode: ModeHybrid, Hits: e.toHits(fused)}, nil

	default:
		return nil, ferrors.Newf(ferrors.CodeInvalidInput, "unknown search mode %q", q.Mode)
	}
}

// fuseRRF combines two ranked lists by reciprocal rank:
// alpha/(K+rank_sem) + (1-alpha)/(K+rank_kw), ranks 1-based, K=60.
// A candidate absent from a list contributes nothing from that term.
func fuseRRF(sem, kw []scored, alpha float64) []scored {
	scores := make(map[int]float64)
	for rank, s := range sem {
		scores[s.idx] += alpha / float64(RRFConstant+rank+1)
	}
	for rank, s := range kw {
		scores[s.idx] += (1 - alpha) / float64(RRFConstant+rank+1)
	}

	fused := make([]scored, 0, len(scores))
	for idx, score := range scores {
		fused = append(fused, scored{idx: idx, score: score})
	}
	return fused
}

// fuseWeighted combines raw scores: alpha*sem + (1-alpha)*kw. The two
// distributions are deliberately not normalised; see FusionWeighted.
func fuseWeighted(sem, kw []scored, alpha float64) []scored {
	scores := make(map[int]float64)
	for _, s := range sem {
		scores[s.idx] += alpha * s.score
	}
	for _, s := range kw {
		scores[s.idx] += (1 - alpha) * s.score
	}

	fused := make([]scored, 0, len(scores))
	for idx, score := range scores {
		fused = append(fused, scored{idx: idx, score: score})
	}
	return fused
}

func (e *Engine) toHits(list []scored) []Hit {
	hits := make([]Hit, len(list))
	for i, s := range list {
		hits[i] = Hit{Chunk: &e.chunks[s.idx], Score: s.score}
	}
	return hits
}

// expand appends context neighbours after each originating hit, capped at
// MaxTotalChunks chunks overall.
func (e *Engine) expand(hits []Hit, opts ExpandOptions) []Hit {
	maxTotal := opts.MaxTotalChunks
	if maxTotal <= 0 {
		maxTotal = len(hits) * (1 + opts.AdjacentBefore + opts.AdjacentAfter + 1)
	}

	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		seen[h.Chunk.ID] = true
	}

	var out []Hit
	for _, h := range hits {
		if len(out) >= maxTotal {
			break
		}
		out = append(out, h)

		for _, idx := range e.neighbours(h, opts) {
			if len(out) >= maxTotal {
				break
			}
			c := &e.chunks[idx]
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, Hit{Chunk: c, Expanded: true, Origin: h.Chunk.ID})
		}
	}
	return out
}

// neighbours collects the expansion set for one hit, adjacent first, then
// the parent.
func (e *Engine) neighbours(h Hit, opts ExpandOptions) []int {
	var idxs []int

	if opts.Mode == ExpandAdjacent || opts.Mode == ExpandBoth {
		center := h.Chunk.ChunkIndex
		for _, idx := range e.byDoc[h.Chunk.DocID] {
			ci := e.chunks[idx].ChunkIndex
			if ci == center {
				continue
			}
			if ci >= center-opts.AdjacentBefore && ci <= center+opts.AdjacentAfter {
				idxs = append(idxs, idx)
			}
		}
	}

	if opts.Mode == ExpandParent || opts.Mode == ExpandBoth {
		if pid := h.Chunk.Hierarchy.ParentID; pid != "" {
			if idx, ok := e.byID[pid]; ok {
				idxs = append(idxs, idx)
			}
		}
	}
	return idxs
}
