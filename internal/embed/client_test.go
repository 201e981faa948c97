package embed

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
)

// scriptedEmbedder returns canned vectors and records call shapes.
type scriptedEmbedder struct {
	dims    int
	batches [][]string
	fail    int // number of leading calls that fail recoverably
	vector  func(i int) []float32
}

func (s *scriptedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (s *scriptedEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if s.fail > 0 {
		s.fail--
		return nil, ferrors.New(ferrors.CodeEmbedProviderError, "transient")
	}
	s.batches = append(s.batches, texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		if s.vector != nil {
			out[i] = s.vector(i)
			continue
		}
		vec := make([]float32, s.dims)
		vec[0] = 1
		out[i] = vec
	}
	return out, nil
}

func (s *scriptedEmbedder) Dimensions() int                { return s.dims }
func (s *scriptedEmbedder) ModelName() string              { return "scripted" }
func (s *scriptedEmbedder) Available(context.Context) bool { return true }
func (s *scriptedEmbedder) Close() error                   { return nil }

func testInputs(n int) []Input {
	inputs := make([]Input, n)
	for i := range inputs {
		inputs[i] = Input{ChunkID: fmt.Sprintf("chunk-%03d", i), Text: fmt.Sprintf("text %d padded out", i)}
	}
	return inputs
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 2, InitialDelay: 1, MaxDelay: 1, Multiplier: 1}
}

func TestClient_BatchesPreserveOrder(t *testing.T) {
	emb := &scriptedEmbedder{dims: 4}
	client, err := NewClient(emb, ModelDescriptor{Provider: "static", Model: "static"}, ClientConfig{BatchSize: 10, Retry: fastRetry()})
	require.NoError(t, err)

	var got []EmbeddingRecord
	usage, err := client.Run(context.Background(), testInputs(25), nil, func(records []EmbeddingRecord) error {
		got = append(got, records...)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 25, usage.Embedded)
	require.Len(t, got, 25)
	for i, rec := range got {
		assert.Equal(t, fmt.Sprintf("chunk-%03d", i), rec.ChunkID)
	}
	// 25 inputs at batch size 10 = 3 provider calls.
	assert.Len(t, emb.batches, 3)
	assert.Len(t, emb.batches[2], 5)
}

func TestClient_SkipsExistingUnlessForced(t *testing.T) {
	emb := &scriptedEmbedder{dims: 4}
	client, err := NewClient(emb, ModelDescriptor{Model: "static"}, ClientConfig{BatchSize: 10, Retry: fastRetry()})
	require.NoError(t, err)

	existing := map[string]bool{"chunk-000": true, "chunk-001": true}
	var got []EmbeddingRecord
	usage, err := client.Run(context.Background(), testInputs(5), existing, func(records []EmbeddingRecord) error {
		got = append(got, records...)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, usage.Skipped)
	assert.Equal(t, 3, usage.Embedded)
	require.Len(t, got, 3)
	assert.Equal(t, "chunk-002", got[0].ChunkID)

	// With force, nothing is skipped.
	emb2 := &scriptedEmbedder{dims: 4}
	client, err = NewClient(emb2, ModelDescriptor{Model: "static"}, ClientConfig{BatchSize: 10, Retry: fastRetry(), Force: true})
	require.NoError(t, err)
	usage, err = client.Run(context.Background(), testInputs(5), existing, func([]EmbeddingRecord) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 0, usage.Skipped)
	assert.Equal(t, 5, usage.Embedded)
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	emb := &scriptedEmbedder{dims: 4, fail: 2}
	client, err := NewClient(emb, ModelDescriptor{Model: "static"}, ClientConfig{BatchSize: 10, Retry: fastRetry()})
	require.NoError(t, err)

	usage, err := client.Run(context.Background(), testInputs(5), nil, func([]EmbeddingRecord) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 5, usage.Embedded)
}

func TestClient_DimensionMismatchIsFatal(t *testing.T) {
	calls := 0
	emb := &scriptedEmbedder{dims: 4, vector: func(int) []float32 {
		calls++
		if calls > 10 {
			return make([]float32, 8)
		}
		return make([]float32, 4)
	}}
	client, err := NewClient(emb, ModelDescriptor{Model: "static"}, ClientConfig{BatchSize: 10, Retry: fastRetry()})
	require.NoError(t, err)

	_, err = client.Run(context.Background(), testInputs(20), nil, func([]EmbeddingRecord) error { return nil })
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeDimensionMismatch))
	assert.True(t, ferrors.IsFatal(err))
}

func TestClient_TokenAccounting(t *testing.T) {
	emb := &scriptedEmbedder{dims: 4}
	client, err := NewClient(emb, ModelDescriptor{Model: "text-embedding-3-small"}, ClientConfig{BatchSize: 10, Retry: fastRetry()})
	require.NoError(t, err)

	inputs := []Input{{ChunkID: "a", Text: "12345678"}, {ChunkID: "b", Text: "1234"}}
	usage, err := client.Run(context.Background(), inputs, nil, func([]EmbeddingRecord) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 3, usage.Tokens) // 8/4 + 4/4
	assert.InDelta(t, EstimateCostUSD("text-embedding-3-small", 3), usage.EstimatedCostUSD, 1e-12)
}

func TestClient_RejectsBadBatchSize(t *testing.T) {
	_, err := NewClient(&scriptedEmbedder{dims: 4}, ModelDescriptor{}, ClientConfig{BatchSize: 5})
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeInvalidInput))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 2, EstimateTokens("12345678"))
}
