package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
)

// DefaultOpenAIBaseURL is the default endpoint for OpenAI-compatible
// embedding providers. Override with OpenAIConfig.BaseURL for proxies or
// compatible servers.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// DefaultAPIKeyEnv is the environment variable consulted when the model
// descriptor does not name one.
const DefaultAPIKeyEnv = "OPENAI_API_KEY"

// OpenAIConfig configures the OpenAI-compatible embedder.
type OpenAIConfig struct {
	Model     ModelDescriptor
	BaseURL   string
	Timeout   time.Duration
	Client    *http.Client // optional; for tests
	Normalize bool         // L2-normalise returned vectors
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint. The API
// key is read from the environment variable named by the model descriptor at
// construction time, never stored in project files.
type OpenAIEmbedder struct {
	cfg    OpenAIConfig
	apiKey string
	client *http.Client

	mu   sync.Mutex
	dims int
}

// NewOpenAIEmbedder resolves the API key and returns a ready embedder.
// A missing or empty key environment variable fails with MissingApiKey.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	keyEnv := cfg.Model.APIKeyEnv
	if keyEnv == "" {
		keyEnv = DefaultAPIKeyEnv
	}
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, ferrors.Newf(ferrors.CodeMissingApiKey,
			"environment variable %s is not set", keyEnv).
			WithDetail("api_key_env", keyEnv).
			WithSuggestion(fmt.Sprintf("export %s=<key> before building", keyEnv))
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &OpenAIEmbedder{
		cfg:    cfg,
		apiKey: apiKey,
		client: client,
		dims:   cfg.Model.Dimension,
	}, nil
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch sends one provider call for the whole batch. Results are sorted
// by the provider's per-item index, so the returned order always matches the
// input order even when the payload arrives shuffled.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	body, err := json.Marshal(embeddingsRequest{Model: e.cfg.Model.Model, Input: texts})
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeEmbedProviderError, err).WithRecoverable(false)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeEmbedProviderError, err).WithRecoverable(false)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		// Transport failures are transient by assumption.
		return nil, ferrors.Wrap(ferrors.CodeEmbedProviderError, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeEmbedProviderError, err)
	}

	if resp.StatusCode != http.StatusOK {
		perr := ferrors.Newf(ferrors.CodeEmbedProviderError,
			"provider returned HTTP %d", resp.StatusCode).
			WithDetail("status", fmt.Sprintf("%d", resp.StatusCode)).
			WithRecoverable(resp.StatusCode >= 500 ||
				resp.StatusCode == http.StatusTooManyRequests ||
				resp.StatusCode == http.StatusRequestTimeout)
		var er embeddingsResponse
		if json.Unmarshal(payload, &er) == nil && er.Error != nil {
			perr = perr.WithDetail("provider_message", er.Error.Message)
		}
		return nil, perr
	}

	var parsed embeddingsResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, ferrors.Wrap(ferrors.CodeEmbedProviderError, err).WithRecoverable(false)
	}
	if len(parsed.Data) != len(texts) {
		return nil, ferrors.Newf(ferrors.CodeEmbedProviderError,
			"provider returned %d embeddings for %d inputs", len(parsed.Data), len(texts)).
			WithRecoverable(false)
	}

	sort.Slice(parsed.Data, func(i, j int) bool {
		return parsed.Data[i].Index < parsed.Data[j].Index
	})

	vecs := make([][]float32, len(texts))
	for i, item := range parsed.Data {
		vec := item.Embedding
		if err := e.checkDimension(len(vec)); err != nil {
			return nil, err
		}
		if e.cfg.Normalize {
			vec = normalizeVector(vec)
		}
		vecs[i] = vec
	}
	return vecs, nil
}

// checkDimension enforces a consistent dimension across batches, learning it
// from the first vector when the descriptor left it open.
func (e *OpenAIEmbedder) checkDimension(got int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dims == 0 {
		e.dims = got
		return nil
	}
	if got != e.dims {
		return ferrors.Newf(ferrors.CodeDimensionMismatch,
			"expected %d-dimensional vector, provider returned %d", e.dims, got).
			WithDetail("expected", fmt.Sprintf("%d", e.dims)).
			WithDetail("got", fmt.Sprintf("%d", got))
	}
	return nil
}

// Dimensions returns the embedding dimension, 0 until the first batch when
// the descriptor does not declare one.
func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dims
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.cfg.Model.Model
}

// Available reports whether the embedder is configured. No network probe:
// the first real call surfaces provider problems with full error context.
func (e *OpenAIEmbedder) Available(_ context.Context) bool {
	return e.apiKey != ""
}

// Close releases resources.
func (e *OpenAIEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
