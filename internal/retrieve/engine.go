package retrieve

import (
	"context"
	"log/slog"
	"sort"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/chunk"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/embed"
	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/workspace"
)

// EngineOptions configure how an engine loads and searches.
type EngineOptions struct {
	// Embedder turns query text into a vector when the caller did not
	// supply one. Nil enables the keyword fallback.
	Embedder embed.Embedder

	// Profile declares which metadata fields and operators queries may
	// filter on. Zero value uses DefaultFilterProfile.
	Profile FilterProfile

	// Approximate switches semantic search to the HNSW graph instead of
	// the exact scan. Recall is no longer exhaustive.
	Approximate bool

	// KeywordBackend selects "native" (default, exact scoring contract)
	// or "bleve" (BM25; scores differ from the native formula).
	KeywordBackend string

	Logger *slog.Logger
}

// Engine is an immutable snapshot of a project's logs plus the scoring
// machinery. Safe for concurrent use; the scoring loops hold no locks.
type Engine struct {
	logger   *slog.Logger
	chunks   []chunk.Chunk
	byID     map[string]int
	byDoc    map[string][]int // chunk indices per doc, sorted by ChunkIndex
	vectors  [][]float32      // aligned with chunks; nil when not embedded
	embedder embed.Embedder
	profile  FilterProfile
	ann      *annIndex
	keyword  keywordBackend
}

// NewEngine snapshots the log lengths, loads both logs up to them, and
// builds the lookup structures. Appends from a concurrent build stay
// invisible to this engine.
func NewEngine(store *workspace.Store, projectID string, opts EngineOptions) (*Engine, error) {
	snap := store.LogSnapshot(projectID)
	chunks, err := store.ReadChunks(projectID, snap)
	if err != nil {
		return nil, err
	}
	records, err := store.ReadVectors(projectID, snap)
	if err != nil {
		return nil, err
	}
	return newEngine(chunks, records, opts)
}

func newEngine(chunks []chunk.Chunk, records []embed.EmbeddingRecord, opts EngineOptions) (*Engine, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Profile.isZero() {
		opts.Profile = DefaultFilterProfile()
	}

	e := &Engine{
		logger:   opts.Logger,
		chunks:   chunks,
		byID:     make(map[string]int, len(chunks)),
		byDoc:    make(map[string][]int),
		vectors:  make([][]float32, len(chunks)),
		embedder: opts.Embedder,
		profile:  opts.Profile,
	}

	for i := range chunks {
		e.byID[chunks[i].ID] = i
		e.byDoc[chunks[i].DocID] = append(e.byDoc[chunks[i].DocID], i)
	}
	for doc := range e.byDoc {
		idxs := e.byDoc[doc]
		sort.Slice(idxs, func(a, b int) bool {
			return chunks[idxs[a]].ChunkIndex < chunks[idxs[b]].ChunkIndex
		})
	}
	for _, rec := range records {
		if i, ok := e.byID[rec.ChunkID]; ok {
			e.vectors[i] = rec.Vector
		}
	}

	if opts.Approximate {
		e.ann = newANNIndex(e.vectors)
	}
	switch opts.KeywordBackend {
	case "", "native":
		e.keyword = nativeKeyword{}
	case "bleve":
		kb, err := newBleveBackend(chunks)
		if err != nil {
			return nil, err
		}
		e.keyword = kb
	default:
		return nil, ferrors.Newf(ferrors.CodeInvalidInput,
			"unknown keyword backend %q", opts.KeywordBackend)
	}

	opts.Logger.Info("retrieval engine loaded",
		"chunks", len(chunks),
		"vectors", len(records),
		"approximate", opts.Approximate)
	return e, nil
}

// Len returns the number of chunks in the snapshot.
func (e *Engine) Len() int { return len(e.chunks) }

// VectorCount returns the number of chunks with an embedding.
func (e *Engine) VectorCount() int {
	n := 0
	for _, v := range e.vectors {
		if v != nil {
			n++
		}
	}
	return n
}

// Chunk returns a chunk by id.
func (e *Engine) Chunk(id string) (*chunk.Chunk, bool) {
	i, ok := e.byID[id]
	if !ok {
		return nil, false
	}
	return &e.chunks[i], true
}

// Document returns all chunks of a doc sorted by chunk index.
func (e *Engine) Document(docID string) []*chunk.Chunk {
	idxs := e.byDoc[docID]
	out := make([]*chunk.Chunk, len(idxs))
	for i, idx := range idxs {
		out[i] = &e.chunks[idx]
	}
	return out
}

// queryVector resolves the vector for a semantic or hybrid query: the
// caller's vector wins, otherwise the configured embedder runs. ok=false
// means neither is available and the caller must fall back to keyword.
func (e *Engine) queryVector(ctx context.Context, q *Query) ([]float32, bool, error) {
	if len(q.Vector) > 0 {
		return q.Vector, true, nil
	}
	if e.embedder == nil {
		return nil, false, nil
	}
	vec, err := e.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}
