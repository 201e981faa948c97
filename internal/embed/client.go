package embed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
)

// ClientConfig configures the batching driver.
type ClientConfig struct {
	BatchSize int
	Retry     RetryConfig
	Force     bool // re-embed chunks that already have a vector
	Logger    *slog.Logger
}

// Usage accumulates cost accounting across a run.
type Usage struct {
	Embedded         int
	Skipped          int
	Tokens           int
	EstimatedCostUSD float64
}

// Client drives an Embedder over a chunk stream: groups inputs into batches,
// retries transient failures, and emits records in input order. One batch is
// outstanding at a time so the vector log order stays deterministic.
type Client struct {
	embedder Embedder
	model    ModelDescriptor
	cfg      ClientConfig

	dims int
}

// NewClient validates the batch size and returns a driver.
func NewClient(embedder Embedder, model ModelDescriptor, cfg ClientConfig) (*Client, error) {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize < MinBatchSize || cfg.BatchSize > MaxBatchSize {
		return nil, ferrors.Newf(ferrors.CodeInvalidInput,
			"embedding_batch_size must be in [%d,%d], got %d",
			MinBatchSize, MaxBatchSize, cfg.BatchSize)
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		embedder: embedder,
		model:    model,
		cfg:      cfg,
		dims:     model.Dimension,
	}, nil
}

// Run embeds inputs in order. Inputs whose chunk id is present in existing
// are skipped unless Force is set. emit is called once per completed batch
// with records in input order; a non-nil emit error aborts the run.
func (c *Client) Run(ctx context.Context, inputs []Input, existing map[string]bool, emit func([]EmbeddingRecord) error) (Usage, error) {
	var usage Usage

	pending := make([]Input, 0, len(inputs))
	for _, in := range inputs {
		if !c.cfg.Force && existing[in.ChunkID] {
			usage.Skipped++
			continue
		}
		pending = append(pending, in)
	}

	for start := 0; start < len(pending); start += c.cfg.BatchSize {
		select {
		case <-ctx.Done():
			return usage, ctx.Err()
		default:
		}

		end := start + c.cfg.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		records, tokens, err := c.embedBatch(ctx, batch)
		if err != nil {
			return usage, err
		}
		if err := emit(records); err != nil {
			return usage, err
		}

		usage.Embedded += len(records)
		usage.Tokens += tokens
		c.cfg.Logger.Debug("embedded batch",
			"batch_size", len(batch),
			"tokens", tokens,
			"model", c.model.String())
	}

	usage.EstimatedCostUSD = EstimateCostUSD(c.model.Model, usage.Tokens)
	return usage, nil
}

// embedBatch calls the provider once (with retry) and pairs vectors back
// with their chunk ids.
func (c *Client) embedBatch(ctx context.Context, batch []Input) ([]EmbeddingRecord, int, error) {
	texts := make([]string, len(batch))
	tokens := 0
	for i, in := range batch {
		texts[i] = in.Text
		tokens += EstimateTokens(in.Text)
	}

	var vecs [][]float32
	err := withRetry(ctx, c.cfg.Retry, func() error {
		var callErr error
		vecs, callErr = c.embedder.EmbedBatch(ctx, texts)
		return callErr
	})
	if err != nil {
		return nil, 0, err
	}
	if len(vecs) != len(batch) {
		return nil, 0, ferrors.Newf(ferrors.CodeEmbedProviderError,
			"got %d vectors for %d inputs", len(vecs), len(batch)).
			WithRecoverable(false)
	}

	now := time.Now().UTC()
	records := make([]EmbeddingRecord, len(batch))
	for i, vec := range vecs {
		if err := c.checkDimension(len(vec)); err != nil {
			return nil, 0, err
		}
		records[i] = EmbeddingRecord{
			ChunkID:   batch[i].ChunkID,
			Vector:    vec,
			Model:     c.model,
			CreatedAt: now,
		}
	}
	return records, tokens, nil
}

// checkDimension enforces one dimension for the whole project, learning it
// from the first vector when the descriptor does not declare one. A mismatch
// between batches is fatal.
func (c *Client) checkDimension(got int) error {
	if c.dims == 0 {
		c.dims = got
		return nil
	}
	if got != c.dims {
		return ferrors.Newf(ferrors.CodeDimensionMismatch,
			"expected %d-dimensional vector, got %d", c.dims, got).
			WithDetail("expected", fmt.Sprintf("%d", c.dims)).
			WithDetail("got", fmt.Sprintf("%d", got)).
			WithSuggestion("the embedding model changed; rebuild the project with force=true")
	}
	return nil
}

// Dimensions returns the dimension observed so far, 0 if nothing embedded.
func (c *Client) Dimensions() int { return c.dims }
