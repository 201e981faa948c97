// Package embed turns chunk text into vectors through an embedding provider,
// batching requests and keeping output order aligned with input order.
package embed

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Batching and timing defaults.
const (
	// MinBatchSize is the smallest allowed embedding batch.
	MinBatchSize = 10

	// MaxBatchSize is the largest allowed embedding batch.
	MaxBatchSize = 100

	// DefaultBatchSize is the default embedding batch size.
	DefaultBatchSize = 50

	// DefaultTimeout bounds a single provider call.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the number of retry attempts for transient
	// provider failures.
	DefaultMaxRetries = 3

	// TokensPerChar mirrors the chunker's estimate: 4 chars = 1 token.
	TokensPerChar = 4
)

// Static embedder constants.
const (
	// StaticDimensions is the embedding dimension of the static embedder.
	StaticDimensions = 256
)

// ModelDescriptor pins the embedding model a project was created with.
// Dimension may be zero, in which case it is learned from the first
// successful batch and enforced afterwards.
type ModelDescriptor struct {
	Provider  string `json:"provider" yaml:"provider"`
	Model     string `json:"model" yaml:"model"`
	Dimension int    `json:"dimension,omitempty" yaml:"dimension,omitempty"`
	APIKeyEnv string `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
}

// String renders the descriptor as provider/model for logs and manifests.
func (m ModelDescriptor) String() string {
	return fmt.Sprintf("%s/%s", m.Provider, m.Model)
}

// EmbeddingRecord is one line of the vector log.
type EmbeddingRecord struct {
	ChunkID   string          `json:"chunk_id"`
	Vector    []float32       `json:"vector"`
	Model     ModelDescriptor `json:"model"`
	CreatedAt time.Time       `json:"created_at"`
}

// Input is one unit of work for the client: a chunk id and its text.
type Input struct {
	ChunkID string
	Text    string
}

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, one vector per
	// input in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension, or 0 if not yet known.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// EstimateTokens approximates the provider's token count as chars/4,
// minimum 1 for non-empty text.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := len(text) / TokensPerChar
	if n == 0 {
		n = 1
	}
	return n
}

// normalizeVector scales a vector to unit length. Zero vectors are returned
// unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
