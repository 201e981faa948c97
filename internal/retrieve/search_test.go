package retrieve

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/chunk"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/embed"
	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
)

// fixture builds an engine over hand-made chunks and vectors.
func fixture(t *testing.T, chunks []chunk.Chunk, vectors map[string][]float32, opts EngineOptions) *Engine {
	t.Helper()
	var records []embed.EmbeddingRecord
	for id, vec := range vectors {
		records = append(records, embed.EmbeddingRecord{ChunkID: id, Vector: vec})
	}
	e, err := newEngine(chunks, records, opts)
	require.NoError(t, err)
	return e
}

func docChunks(docID string, texts ...string) []chunk.Chunk {
	out := make([]chunk.Chunk, len(texts))
	for i, text := range texts {
		out[i] = chunk.Chunk{
			ID:         fmt.Sprintf("%s-%02d", docID, i),
			DocID:      docID,
			SourceID:   "src-" + docID,
			ChunkIndex: i,
			Text:       text,
		}
	}
	return out
}

func TestKeywordTokens(t *testing.T) {
	assert.Equal(t, []string{"vector", "index"}, keywordTokens("Vector an index of"))
	// All-short queries keep their terms instead of emptying the query.
	assert.Equal(t, []string{"a", "an", "of"}, keywordTokens("a an of"))
	assert.Nil(t, keywordTokens(""))
}

func TestKeywordScore_Formula(t *testing.T) {
	text := "the cache holds cache entries"
	tokens := []string{"cache"}
	// Two matches over sqrt(29).
	want := 2.0 / math.Sqrt(float64(len(text)))
	assert.InDelta(t, want, keywordScore(tokens, text), 1e-12)

	// Case-insensitive counting.
	assert.InDelta(t, want, keywordScore(tokens, "The Cache holds CACHE entries!!"[:len(text)]), 1e-9)
	assert.Zero(t, keywordScore([]string{"missing"}, text))
}

func TestSearch_KeywordRanking(t *testing.T) {
	chunks := docChunks("d1",
		"indexing and indexing again: indexing everywhere", // highest term density
		"one mention of indexing in a long piece of text that dilutes the score considerably overall",
		"nothing relevant here at all",
	)
	e := fixture(t, chunks, nil, EngineOptions{})

	res, err := e.Search(context.Background(), Query{Text: "indexing", Mode: ModeKeyword, TopK: 10})
	require.NoError(t, err)
	assert.Equal(t, ModeKeyword, res.Mode)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "d1-00", res.Hits[0].Chunk.ID)
	assert.Equal(t, "d1-01", res.Hits[1].Chunk.ID)
	assert.Greater(t, res.Hits[0].Score, res.Hits[1].Score)
}

func TestSearch_KeywordShortQuery(t *testing.T) {
	chunks := docChunks("d1", "aaaa", "bb cc", "dddd")
	e := fixture(t, chunks, nil, EngineOptions{})

	res, err := e.Search(context.Background(), Query{Text: "bb", Mode: ModeKeyword, TopK: 10})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "d1-01", res.Hits[0].Chunk.ID)
	assert.Greater(t, res.Hits[0].Score, 0.0)
}

func TestSearch_SemanticRanking(t *testing.T) {
	chunks := docChunks("d1", "alpha", "beta", "gamma")
	e := fixture(t, chunks, map[string][]float32{
		"d1-00": {1, 0},
		"d1-01": {0.6, 0.8},
		"d1-02": {0, 1},
	}, EngineOptions{})

	res, err := e.Search(context.Background(), Query{
		Vector: []float32{1, 0}, Mode: ModeSemantic, TopK: 2,
	})
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "d1-00", res.Hits[0].Chunk.ID)
	assert.InDelta(t, 1.0, res.Hits[0].Score, 1e-6)
	assert.Equal(t, "d1-01", res.Hits[1].Chunk.ID)
	assert.InDelta(t, 0.6, res.Hits[1].Score, 1e-6)
}

func TestSearch_SemanticTieBreakByChunkID(t *testing.T) {
	chunks := docChunks("d1", "a", "b")
	e := fixture(t, chunks, map[string][]float32{
		"d1-01": {1, 0},
		"d1-00": {1, 0},
	}, EngineOptions{})

	res, err := e.Search(context.Background(), Query{Vector: []float32{1, 0}, Mode: ModeSemantic, TopK: 2})
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "d1-00", res.Hits[0].Chunk.ID)
	assert.Equal(t, "d1-01", res.Hits[1].Chunk.ID)
}

func TestSearch_HybridRRFMath(t *testing.T) {
	// Chunk 0 is semantic rank 1 and keyword rank 2; chunk 1 the reverse;
	// chunk 2 only appears in the keyword list.
	chunks := docChunks("d1",
		"term",
		"term term term term term term",
		"term term "+pad(400),
	)
	e := fixture(t, chunks, map[string][]float32{
		"d1-00": {1, 0},
		"d1-01": {0.5, 0.5},
	}, EngineOptions{})

	res, err := e.Search(context.Background(), Query{
		Text: "term", Vector: []float32{1, 0}, Mode: ModeHybrid, TopK: 3, Alpha: 0.7,
	})
	require.NoError(t, err)
	assert.Equal(t, ModeHybrid, res.Mode)
	require.Len(t, res.Hits, 3)

	byID := map[string]float64{}
	for _, h := range res.Hits {
		byID[h.Chunk.ID] = h.Score
	}

	// Keyword ranking: d1-01 (6 matches, short), d1-00 (1 match, shortest),
	// then d1-02 (2 matches, long). Semantic: d1-00 then d1-01.
	alpha := 0.7
	assert.InDelta(t, alpha/(60+1)+(1-alpha)/(60+2), byID["d1-00"], 1e-12)
	assert.InDelta(t, alpha/(60+2)+(1-alpha)/(60+1), byID["d1-01"], 1e-12)
	assert.InDelta(t, (1-alpha)/(60+3), byID["d1-02"], 1e-12)

	// With alpha 0.7 the semantic-first chunk wins.
	assert.Equal(t, "d1-00", res.Hits[0].Chunk.ID)
}

func TestSearch_WeightedFusion(t *testing.T) {
	chunks := docChunks("d1", "term", "other")
	e := fixture(t, chunks, map[string][]float32{
		"d1-00": {0, 1},
		"d1-01": {1, 0},
	}, EngineOptions{})

	res, err := e.Search(context.Background(), Query{
		Text: "term", Vector: []float32{1, 0}, Mode: ModeHybrid,
		Fusion: FusionWeighted, TopK: 2, Alpha: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)

	kwScore := keywordScore([]string{"term"}, "term")
	byID := map[string]float64{}
	for _, h := range res.Hits {
		byID[h.Chunk.ID] = h.Score
	}
	assert.InDelta(t, 0.5*kwScore, byID["d1-00"], 1e-12) // sem 0 + kw
	assert.InDelta(t, 0.5*1.0, byID["d1-01"], 1e-12)     // sem 1 + no kw
}

func TestSearch_KeywordFallback(t *testing.T) {
	chunks := docChunks("d1", "fallback text here")
	e := fixture(t, chunks, nil, EngineOptions{})

	for _, mode := range []Mode{ModeSemantic, ModeHybrid} {
		res, err := e.Search(context.Background(), Query{Text: "fallback", Mode: mode, TopK: 5})
		require.NoError(t, err)
		assert.Equal(t, ModeKeywordFallback, res.Mode, mode)
		require.Len(t, res.Hits, 1)
	}
}

func TestSearch_EmbedderResolvesQueryVector(t *testing.T) {
	chunks := docChunks("d1", "first", "second")
	emb := embed.NewStaticEmbedder()
	defer emb.Close()

	vec1, err := emb.Embed(context.Background(), "first")
	require.NoError(t, err)
	vec2, err := emb.Embed(context.Background(), "second")
	require.NoError(t, err)

	e := fixture(t, chunks, map[string][]float32{
		"d1-00": vec1,
		"d1-01": vec2,
	}, EngineOptions{Embedder: emb})

	res, err := e.Search(context.Background(), Query{Text: "first", Mode: ModeSemantic, TopK: 1})
	require.NoError(t, err)
	assert.Equal(t, ModeSemantic, res.Mode)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "d1-00", res.Hits[0].Chunk.ID)
}

func TestSearch_TopKValidation(t *testing.T) {
	e := fixture(t, docChunks("d1", "x"), nil, EngineOptions{})
	_, err := e.Search(context.Background(), Query{Text: "x", Mode: ModeKeyword, TopK: 101})
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeInvalidInput))
}

func pad(n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = 'x'
	}
	return string(out)
}
