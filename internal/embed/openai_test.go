package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
)

func newOpenAITest(t *testing.T, handler http.HandlerFunc) *OpenAIEmbedder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	t.Setenv("TEST_EMBED_KEY", "sk-test")
	e, err := NewOpenAIEmbedder(OpenAIConfig{
		Model:   ModelDescriptor{Provider: ProviderOpenAI, Model: "text-embedding-3-small", APIKeyEnv: "TEST_EMBED_KEY"},
		BaseURL: srv.URL,
	})
	require.NoError(t, err)
	return e
}

func TestOpenAIEmbedder_MissingKeyEnv(t *testing.T) {
	t.Setenv("TEST_EMBED_KEY", "")
	_, err := NewOpenAIEmbedder(OpenAIConfig{
		Model: ModelDescriptor{Provider: ProviderOpenAI, Model: "m", APIKeyEnv: "TEST_EMBED_KEY"},
	})
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeMissingApiKey))
	assert.True(t, ferrors.IsFatal(err))
}

func TestOpenAIEmbedder_SortsByProviderIndex(t *testing.T) {
	e := newOpenAITest(t, func(w http.ResponseWriter, r *http.Request) {
		var req embeddingsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input, 2)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		// Return items out of order; the client must reorder by index.
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{0, 1}},
				{"index": 0, "embedding": []float32{1, 0}},
			},
		})
	})

	vecs, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1, 0}, vecs[0])
	assert.Equal(t, []float32{0, 1}, vecs[1])
}

func TestOpenAIEmbedder_ServerErrorIsRecoverable(t *testing.T) {
	e := newOpenAITest(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	})

	_, err := e.EmbedBatch(context.Background(), []string{"text"})
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeEmbedProviderError))
	assert.True(t, ferrors.IsRecoverable(err))
}

func TestOpenAIEmbedder_ClientErrorIsNotRecoverable(t *testing.T) {
	e := newOpenAITest(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad model"}}`, http.StatusBadRequest)
	})

	_, err := e.EmbedBatch(context.Background(), []string{"text"})
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeEmbedProviderError))
	assert.False(t, ferrors.IsRecoverable(err))
}

func TestOpenAIEmbedder_DimensionLearnedThenEnforced(t *testing.T) {
	dims := 3
	e := newOpenAITest(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 0, "embedding": make([]float32, dims)},
			},
		})
	})

	_, err := e.EmbedBatch(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 3, e.Dimensions())

	dims = 5
	_, err = e.EmbedBatch(context.Background(), []string{"b"})
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeDimensionMismatch))
}
