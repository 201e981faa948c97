package mcp

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/chunk"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/embed"
	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/workspace"
)

// seedMCP builds a store with one project, one source, and three indexed
// chunks, and returns a tool server over it.
func seedMCP(t *testing.T) *Server {
	t.Helper()
	store, err := workspace.NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	model := embed.ModelDescriptor{Provider: embed.ProviderStatic, Model: "static"}
	_, err = store.CreateProject("docs", "", model, chunk.DefaultConfig())
	require.NoError(t, err)
	src, err := store.AppendSource("docs", workspace.SourceRecord{
		Type: workspace.SourceURL, URI: "https://example.com/guide",
		Tags: []string{"guide"},
	})
	require.NoError(t, err)

	texts := []string{
		"installing the service step by step",
		"configuration reference for the service",
		"troubleshooting common failures",
	}
	var chunks []*chunk.Chunk
	var records []embed.EmbeddingRecord
	emb := embed.NewStaticEmbedder()
	defer emb.Close()
	for i, text := range texts {
		c := &chunk.Chunk{
			ID:         fmt.Sprintf("chunk-%02d", i),
			DocID:      "doc-1",
			SourceID:   src.ID,
			ChunkIndex: i,
			Text:       text,
		}
		chunks = append(chunks, c)
		vec, err := emb.Embed(context.Background(), text)
		require.NoError(t, err)
		records = append(records, embed.EmbeddingRecord{ChunkID: c.ID, Vector: vec})
	}
	require.NoError(t, store.AppendChunks("docs", chunks))
	require.NoError(t, store.AppendVectors("docs", records))

	srv, err := NewServer(store, "docs", Options{Embedder: embed.NewStaticEmbedder()})
	require.NoError(t, err)
	return srv
}

func TestSearchHandler_Keyword(t *testing.T) {
	srv := seedMCP(t)
	_, out, err := srv.searchHandler(context.Background(), nil, SearchInput{
		Text: "troubleshooting failures",
		Mode: "keyword",
		TopK: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "keyword", out.Mode)
	require.NotEmpty(t, out.Hits)
	assert.Equal(t, "chunk-02", out.Hits[0].ChunkID)
	assert.Equal(t, "doc-1", out.Hits[0].DocID)
	assert.Greater(t, out.Hits[0].Score, 0.0)
}

func TestSearchHandler_FilterBySource(t *testing.T) {
	srv := seedMCP(t)
	_, out, err := srv.searchHandler(context.Background(), nil, SearchInput{
		Text: "service",
		Mode: "keyword",
		Filter: []FilterInput{
			{Field: "chunk_index", Op: "lt", Value: 1},
		},
	})
	require.NoError(t, err)
	require.Len(t, out.Hits, 1)
	assert.Equal(t, "chunk-00", out.Hits[0].ChunkID)
}

func TestSearchHandler_Validation(t *testing.T) {
	srv := seedMCP(t)

	_, _, err := srv.searchHandler(context.Background(), nil, SearchInput{})
	require.Error(t, err)
	assert.Equal(t, ferrors.CodeInvalidInput, ferrors.GetCode(err))

	_, _, err = srv.searchHandler(context.Background(), nil, SearchInput{
		Text: "x", TopK: 500,
	})
	require.Error(t, err)
	assert.Equal(t, ferrors.CodeInvalidInput, ferrors.GetCode(err))
}

func TestGetChunkHandler(t *testing.T) {
	srv := seedMCP(t)

	_, out, err := srv.getChunkHandler(context.Background(), nil, GetChunkInput{ChunkID: "chunk-01"})
	require.NoError(t, err)
	require.NotNil(t, out.Chunk)
	assert.Equal(t, "chunk-01", out.Chunk.ID)

	_, _, err = srv.getChunkHandler(context.Background(), nil, GetChunkInput{ChunkID: "nope"})
	require.Error(t, err)
	assert.Equal(t, ferrors.CodeInvalidInput, ferrors.GetCode(err))
}

func TestGetDocumentHandler(t *testing.T) {
	srv := seedMCP(t)

	_, out, err := srv.getDocumentHandler(context.Background(), nil, GetDocumentInput{DocID: "doc-1"})
	require.NoError(t, err)
	require.Len(t, out.Chunks, 3)
	for i, c := range out.Chunks {
		assert.Equal(t, i, c.ChunkIndex)
	}

	_, _, err = srv.getDocumentHandler(context.Background(), nil, GetDocumentInput{DocID: "missing"})
	require.Error(t, err)
}

func TestListSourcesHandler(t *testing.T) {
	srv := seedMCP(t)
	_, out, err := srv.listSourcesHandler(context.Background(), nil, ListSourcesInput{})
	require.NoError(t, err)
	require.Len(t, out.Sources, 1)
	assert.Equal(t, "url", out.Sources[0].Type)
	assert.Equal(t, "https://example.com/guide", out.Sources[0].URI)
	assert.Equal(t, []string{"guide"}, out.Sources[0].Tags)
}

func TestIndexStatusHandler(t *testing.T) {
	srv := seedMCP(t)
	res, out, err := srv.indexStatusHandler(context.Background(), nil, IndexStatusInput{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, out.Ready)
	assert.Equal(t, 3, out.Chunks)
	assert.Equal(t, 3, out.Vectors)
	assert.Equal(t, "docs", out.ProjectID)
	assert.Equal(t, embed.ProviderStatic, out.Provider)
}

func TestNewServer_UnknownProject(t *testing.T) {
	store, err := workspace.NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	_, err = NewServer(store, "ghost", Options{})
	require.Error(t, err)
	assert.Equal(t, ferrors.CodeProjectNotFound, ferrors.GetCode(err))
}
