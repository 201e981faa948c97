package build

import (
	"errors"

	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/workspace"
)

// SourceError is one recorded failure. An empty SourceID means the error is
// invocation-level (quota, provider, checkpoint).
type SourceError struct {
	SourceID    string `json:"source_id,omitempty"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
	Suggestion  string `json:"suggestion,omitempty"`
}

// Progress reports where the build left the project.
type Progress struct {
	TotalSources     int    `json:"total_sources"`
	ProcessedThisRun int    `json:"processed_this_run"`
	Remaining        int    `json:"remaining"`
	HasMore          bool   `json:"has_more"`
	CheckpointID     string `json:"checkpoint_id,omitempty"`
}

// Metrics are the per-invocation timings and cost accounting.
type Metrics struct {
	DurationMS            int64   `json:"duration_ms"`
	FetchTimeMS           int64   `json:"fetch_time_ms"`
	ChunkTimeMS           int64   `json:"chunk_time_ms"`
	EmbedTimeMS           int64   `json:"embed_time_ms"`
	TokensUsed            int     `json:"tokens_used"`
	EstimatedCostUSD      float64 `json:"estimated_cost_usd"`
	RecommendedMaxSources int     `json:"recommended_max_sources,omitempty"`
}

// Result is the outcome of one build invocation.
type Result struct {
	Success      bool                    `json:"success"`
	Status       workspace.ProjectStatus `json:"status"`
	DryRun       bool                    `json:"dry_run,omitempty"`
	ChunksAdded  int                     `json:"chunks_added"`
	VectorsAdded int                     `json:"vectors_added"`
	Errors       []SourceError           `json:"errors,omitempty"`
	Progress     Progress                `json:"progress"`
	Metrics      Metrics                 `json:"metrics"`
}

// sourceError converts a pipeline error into its recorded form.
func sourceError(sourceID string, err error) SourceError {
	se := SourceError{
		SourceID:    sourceID,
		Code:        ferrors.GetCode(err),
		Message:     err.Error(),
		Recoverable: ferrors.IsRecoverable(err),
	}
	var fe *ferrors.FoundryError
	if errors.As(err, &fe) {
		se.Suggestion = fe.Suggestion
	}
	return se
}
