// Package retrieve answers queries over a project's chunk and vector logs:
// brute-force cosine for semantic search, length-normalised term counting
// for keyword search, and reciprocal-rank fusion for hybrid. Engines are
// read-only snapshots; a build in progress never leaks partial chunks into
// results.
package retrieve

import (
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/chunk"
)

// Fusion and ranking constants.
const (
	// RRFConstant is the K in reciprocal-rank fusion. Fixed at 60.
	RRFConstant = 60

	// DefaultAlpha weights the semantic list in hybrid fusion.
	DefaultAlpha = 0.7

	// CandidateFactor scales top_k into the per-list candidate depth for
	// hybrid fusion.
	CandidateFactor = 3

	// MinTopK and MaxTopK bound top_k.
	MinTopK = 1
	MaxTopK = 100

	// MinKeywordTokenLen drops short query tokens.
	MinKeywordTokenLen = 3
)

// Mode selects the retrieval strategy.
type Mode string

const (
	ModeSemantic Mode = "semantic"
	ModeKeyword  Mode = "keyword"
	ModeHybrid   Mode = "hybrid"

	// ModeKeywordFallback is reported when a semantic or hybrid query had
	// no vector and no embedder to produce one.
	ModeKeywordFallback Mode = "keyword_fallback"
)

// FusionKind selects how hybrid scores are combined.
type FusionKind string

const (
	// FusionRRF is reciprocal-rank fusion, the default.
	FusionRRF FusionKind = "rrf"

	// FusionWeighted is a weighted sum of the raw scores. The two score
	// distributions are not normalised against each other; results skew
	// toward whichever list produces larger magnitudes.
	FusionWeighted FusionKind = "weighted"
)

// ExpandMode selects which neighbours join each hit.
type ExpandMode string

const (
	ExpandAdjacent ExpandMode = "adjacent"
	ExpandParent   ExpandMode = "parent"
	ExpandBoth     ExpandMode = "both"
)

// ExpandOptions control context expansion of the result set.
type ExpandOptions struct {
	Mode           ExpandMode `json:"mode"`
	AdjacentBefore int        `json:"adjacent_before"`
	AdjacentAfter  int        `json:"adjacent_after"`
	MaxTotalChunks int        `json:"max_total_chunks"`
}

// Query is one retrieval request.
type Query struct {
	Text    string          `json:"text"`
	Vector  []float32       `json:"vector,omitempty"`
	Mode    Mode            `json:"mode"`
	TopK    int             `json:"top_k"`
	Alpha   float64         `json:"alpha,omitempty"`
	Fusion  FusionKind      `json:"fusion,omitempty"`
	Filters []Filter        `json:"filters,omitempty"`
	Expand  *ExpandOptions  `json:"expand,omitempty"`
}

// Hit is one scored chunk. Expansion neighbours carry the id of the hit
// that pulled them in and a zero score.
type Hit struct {
	Chunk    *chunk.Chunk `json:"chunk"`
	Score    float64      `json:"score"`
	Expanded bool         `json:"expanded,omitempty"`
	Origin   string       `json:"origin,omitempty"`
}

// Result is the response to one query.
type Result struct {
	Mode Mode  `json:"mode"`
	Hits []Hit `json:"hits"`
}
