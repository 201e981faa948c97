package embed

import (
	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
)

// Provider identifiers accepted in a model descriptor.
const (
	// ProviderOpenAI covers any OpenAI-compatible /embeddings endpoint.
	ProviderOpenAI = "openai"

	// ProviderStatic is the offline hash embedder.
	ProviderStatic = "static"
)

// New builds an embedder for the given descriptor.
func New(model ModelDescriptor, normalize bool) (Embedder, error) {
	switch model.Provider {
	case ProviderOpenAI:
		return NewOpenAIEmbedder(OpenAIConfig{Model: model, Normalize: normalize})
	case ProviderStatic, "":
		return NewStaticEmbedder(), nil
	default:
		return nil, ferrors.Newf(ferrors.CodeInvalidInput,
			"unknown embedding provider %q", model.Provider).
			WithDetail("provider", model.Provider).
			WithSuggestion(`use "openai" or "static"`)
	}
}
