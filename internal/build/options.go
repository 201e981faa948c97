package build

import (
	"time"

	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/fetch"
)

// Per-invocation work budget bounds.
const (
	MinSourcesPerBuild     = 1
	MaxSourcesPerBuild     = 50
	DefaultSourcesPerBuild = 10

	MinBuildTimeoutMS     = 60_000
	MaxBuildTimeoutMS     = 1_800_000
	DefaultBuildTimeoutMS = 300_000

	DefaultFetchConcurrency = 3

	// GraceWindow is how far past the deadline the checkpoint and split
	// strategies let the in-flight source run before it is abandoned.
	GraceWindow = 10 * time.Second
)

// TimeoutStrategy decides what happens when the build deadline expires.
type TimeoutStrategy string

const (
	// StrategySkip abandons the in-flight source immediately; it stays
	// pending for the next invocation.
	StrategySkip TimeoutStrategy = "skip"

	// StrategyCheckpoint finishes the in-flight source within the grace
	// window, persists a checkpoint, and returns has_more.
	StrategyCheckpoint TimeoutStrategy = "checkpoint"

	// StrategySplit behaves like checkpoint and additionally recommends a
	// smaller max_sources_per_build in the returned metrics.
	StrategySplit TimeoutStrategy = "split"
)

// Options bound one build invocation. Callers should unmarshal onto
// DefaultOptions so omitted fields inherit defaults.
type Options struct {
	MaxSourcesPerBuild  int             `json:"max_sources_per_build,omitempty"`
	FetchConcurrency    int             `json:"fetch_concurrency,omitempty"`
	EmbeddingBatchSize  int             `json:"embedding_batch_size,omitempty"`
	EnableCheckpointing bool            `json:"enable_checkpointing"`
	BuildTimeoutMS      int64           `json:"build_timeout_ms,omitempty"`
	TimeoutStrategy     TimeoutStrategy `json:"timeout_strategy,omitempty"`
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		MaxSourcesPerBuild:  DefaultSourcesPerBuild,
		FetchConcurrency:    DefaultFetchConcurrency,
		EnableCheckpointing: true,
		BuildTimeoutMS:      DefaultBuildTimeoutMS,
		TimeoutStrategy:     StrategyCheckpoint,
	}
}

// ApplyDefaults fills zero numeric fields. EnableCheckpointing is not
// touched; false is a deliberate opt-out.
func (o *Options) ApplyDefaults() {
	if o.MaxSourcesPerBuild == 0 {
		o.MaxSourcesPerBuild = DefaultSourcesPerBuild
	}
	if o.FetchConcurrency == 0 {
		o.FetchConcurrency = DefaultFetchConcurrency
	}
	if o.BuildTimeoutMS == 0 {
		o.BuildTimeoutMS = DefaultBuildTimeoutMS
	}
	if o.TimeoutStrategy == "" {
		o.TimeoutStrategy = StrategyCheckpoint
	}
	// EmbeddingBatchSize zero is resolved by the embed client.
}

// Validate checks every bound.
func (o *Options) Validate() error {
	if o.MaxSourcesPerBuild < MinSourcesPerBuild || o.MaxSourcesPerBuild > MaxSourcesPerBuild {
		return ferrors.Newf(ferrors.CodeInvalidInput,
			"max_sources_per_build must be in [%d,%d], got %d",
			MinSourcesPerBuild, MaxSourcesPerBuild, o.MaxSourcesPerBuild)
	}
	if o.FetchConcurrency < fetch.MinConcurrency || o.FetchConcurrency > fetch.MaxConcurrency {
		return ferrors.Newf(ferrors.CodeInvalidInput,
			"fetch_concurrency must be in [%d,%d], got %d",
			fetch.MinConcurrency, fetch.MaxConcurrency, o.FetchConcurrency)
	}
	if o.BuildTimeoutMS < MinBuildTimeoutMS || o.BuildTimeoutMS > MaxBuildTimeoutMS {
		return ferrors.Newf(ferrors.CodeInvalidInput,
			"build_timeout_ms must be in [%d,%d], got %d",
			MinBuildTimeoutMS, MaxBuildTimeoutMS, o.BuildTimeoutMS)
	}
	switch o.TimeoutStrategy {
	case StrategySkip, StrategyCheckpoint, StrategySplit:
	default:
		return ferrors.Newf(ferrors.CodeInvalidInput,
			"unknown timeout_strategy %q", o.TimeoutStrategy)
	}
	return nil
}

func (o *Options) timeout() time.Duration {
	return time.Duration(o.BuildTimeoutMS) * time.Millisecond
}

func (o *Options) grace() time.Duration {
	if o.TimeoutStrategy == StrategySkip {
		return 0
	}
	return GraceWindow
}
