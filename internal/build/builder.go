// Package build drives a project's pending sources through the
// fetch→chunk→embed→upsert sequence under a bounded work budget, with
// checkpoint-based resumption and per-source error isolation.
package build

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/blob"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/chunk"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/embed"
	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/extract"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/vector"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/workspace"
)

// Request is one build invocation.
type Request struct {
	ProjectID    string  `json:"project_id"`
	Force        bool    `json:"force,omitempty"`
	DryRun       bool    `json:"dry_run,omitempty"`
	Resume       bool    `json:"resume_from_checkpoint,omitempty"`
	CheckpointID string  `json:"checkpoint_id,omitempty"`
	Options      Options `json:"options"`
}

// BuilderOptions inject collaborators. Every field is optional.
type BuilderOptions struct {
	// Embedder overrides the provider derived from the project's model.
	Embedder embed.Embedder

	// PDF decodes paginated sources. Nil fails pdf sources with ParseError.
	PDF extract.PDFDecoder

	// HTTPClient serves url/sitemap/pdf fetches.
	HTTPClient *http.Client

	// HTML controls text extraction from HTML sources.
	HTML extract.HTMLOptions

	// Allow and block lists applied to every HTTP fetch.
	AllowDomains []string
	BlockDomains []string

	Logger *slog.Logger
}

// Builder runs builds against one workspace store.
type Builder struct {
	store  *workspace.Store
	opts   BuilderOptions
	logger *slog.Logger
}

// New returns a builder.
func New(store *workspace.Store, opts BuilderOptions) *Builder {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.HTML == (extract.HTMLOptions{}) {
		opts.HTML = extract.DefaultHTMLOptions()
	}
	return &Builder{store: store, opts: opts, logger: opts.Logger}
}

// runState accumulates progress across one invocation.
type runState struct {
	start    time.Time
	deadline time.Time

	completedIDs []string // across checkpoints, for resumption
	processed    int
	failed       int

	// This-run deltas; seeded values come from a resumed checkpoint and
	// are reported in the result but never re-added to project stats.
	chunksAdded  int
	vectorsAdded int
	seedChunks   int
	seedVectors  int
	seedTokens   int

	errors  []SourceError
	metrics Metrics

	checkpointID string
	hasMore      bool
	fatal        error
}

func (r *runState) record(sourceID string, err error) {
	r.errors = append(r.errors, sourceError(sourceID, err))
	if ferrors.IsFatal(err) {
		r.fatal = err
	}
}

// Run executes one build invocation.
func (b *Builder) Run(ctx context.Context, req Request) (*Result, error) {
	opts := req.Options
	if opts == (Options{}) {
		opts = DefaultOptions()
	}
	opts.ApplyDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	project, err := b.store.LoadProject(req.ProjectID)
	if err != nil {
		return nil, err
	}
	sources, err := b.store.ListSources(req.ProjectID)
	if err != nil {
		return nil, err
	}

	eligible := planSources(sources, req.Force)
	working := eligible
	if len(working) > opts.MaxSourcesPerBuild {
		working = working[:opts.MaxSourcesPerBuild]
	}

	if req.DryRun {
		return &Result{
			Success: true,
			Status:  project.Status,
			DryRun:  true,
			Progress: Progress{
				TotalSources:     len(eligible),
				ProcessedThisRun: 0,
				Remaining:        len(eligible),
				HasMore:          len(eligible) > 0,
			},
		}, nil
	}

	lease, err := b.store.AcquireBuildLease(req.ProjectID)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	run := &runState{start: time.Now()}
	run.deadline = run.start.Add(opts.timeout())

	if req.Force && len(working) > 0 {
		ids := make([]string, len(working))
		for i, src := range working {
			ids[i] = src.ID
		}
		if err := b.store.TruncateForSources(req.ProjectID, ids); err != nil {
			return nil, err
		}
	}

	if req.Resume {
		working = b.resume(req, project, working, run)
	}

	embClient, err := b.embedClient(project, opts, req.Force)
	if err != nil {
		// MissingApiKey and a bad batch size abort before any work.
		run.record("", err)
		return b.finalize(req, project, len(eligible), run), nil
	}

	runCtx, cancel := context.WithDeadline(ctx, run.deadline.Add(opts.grace()))
	defer cancel()

	b.logger.Info("build started",
		"project_id", req.ProjectID,
		"sources", len(working),
		"total_eligible", len(eligible),
		"force", req.Force)

	splitter, err := chunk.NewSplitter(project.Chunking)
	if err != nil {
		return nil, err
	}
	blobs, err := blob.NewStore(b.store.RawDir(req.ProjectID), 0)
	if err != nil {
		return nil, err
	}
	writer := vector.NewWriter(b.store, req.ProjectID)

	fetched := b.fetchWave(runCtx, req.ProjectID, working, opts, blobs, run)

	settled := make(map[string]bool, len(working))
	for _, src := range working {
		if run.fatal != nil {
			break
		}
		if time.Now().After(run.deadline) {
			b.applyTimeout(req.ProjectID, opts, run)
			break
		}

		done := b.processSource(runCtx, project, src, fetched[src.ID], splitter, embClient, writer, run)
		settled[src.ID] = true
		if !done {
			// Deadline expired mid-source; the source went back to pending.
			b.applyTimeout(req.ProjectID, opts, run)
			break
		}

		if opts.EnableCheckpointing {
			if err := b.checkpoint(project, run); err != nil {
				run.record("", err)
				break
			}
		}
	}

	// The fetch wave moved every working source to fetching; sources the
	// loop never reached settle back to pending so a later build picks
	// them up again.
	for _, src := range working {
		if !settled[src.ID] {
			b.setStatus(req.ProjectID, src.ID, workspace.StatusPending)
		}
	}

	return b.finalize(req, project, len(eligible), run), nil
}

// planSources filters the ledger down to the sources this invocation may
// touch, in ledger order.
func planSources(sources []workspace.SourceRecord, force bool) []workspace.SourceRecord {
	var out []workspace.SourceRecord
	for _, src := range sources {
		if force || src.Status == workspace.StatusPending || src.Status == workspace.StatusFailed {
			out = append(out, src)
		}
	}
	return out
}

// resume subtracts checkpoint-completed sources from the working set and
// seeds the aggregates. A checkpoint whose config hash no longer matches the
// project is ignored with a recorded warning.
func (b *Builder) resume(req Request, project *workspace.Project, working []workspace.SourceRecord, run *runState) []workspace.SourceRecord {
	var (
		ckpt *workspace.Checkpoint
		err  error
	)
	if req.CheckpointID != "" {
		ckpt, err = b.store.LoadCheckpoint(req.ProjectID, req.CheckpointID)
	} else {
		ckpt, err = b.store.LoadLatestCheckpoint(req.ProjectID)
	}
	if err != nil {
		run.errors = append(run.errors, sourceError("", err))
		return working
	}
	if ckpt == nil {
		return working
	}
	if ckpt.ConfigHash != "" && ckpt.ConfigHash != project.ConfigHash {
		run.errors = append(run.errors, SourceError{
			Code:        ferrors.CodeInvalidInput,
			Message:     "checkpoint was written under a different project configuration; ignoring it",
			Recoverable: true,
		})
		return working
	}

	completed := make(map[string]bool, len(ckpt.CompletedSourceIDs))
	for _, id := range ckpt.CompletedSourceIDs {
		completed[id] = true
	}
	run.completedIDs = append(run.completedIDs, ckpt.CompletedSourceIDs...)
	run.seedChunks = ckpt.Stats.ChunksAdded
	run.seedVectors = ckpt.Stats.VectorsAdded
	run.seedTokens = ckpt.Stats.TokensUsed

	var remaining []workspace.SourceRecord
	for _, src := range working {
		if !completed[src.ID] {
			remaining = append(remaining, src)
		}
	}
	b.logger.Info("resuming from checkpoint",
		"project_id", req.ProjectID,
		"checkpoint_id", ckpt.ID,
		"already_completed", len(ckpt.CompletedSourceIDs),
		"remaining", len(remaining))
	return remaining
}

func (b *Builder) embedClient(project *workspace.Project, opts Options, force bool) (*embed.Client, error) {
	embedder := b.opts.Embedder
	if embedder == nil {
		var err error
		embedder, err = embed.New(project.Model, true)
		if err != nil {
			return nil, err
		}
	}
	return embed.NewClient(embedder, project.Model, embed.ClientConfig{
		BatchSize: opts.EmbeddingBatchSize,
		Force:     force,
		Logger:    b.logger,
	})
}

// checkpoint persists the durable prefix after each source settles.
func (b *Builder) checkpoint(project *workspace.Project, run *runState) error {
	ckpt := &workspace.Checkpoint{
		ID:                 workspace.NewCheckpointID(),
		ProjectID:          project.ID,
		ConfigHash:         project.ConfigHash,
		CompletedSourceIDs: run.completedIDs,
		Stats: workspace.CheckpointStats{
			ChunksAdded:  run.seedChunks + run.chunksAdded,
			VectorsAdded: run.seedVectors + run.vectorsAdded,
			TokensUsed:   run.seedTokens + run.metrics.TokensUsed,
			DurationMS:   time.Since(run.start).Milliseconds(),
		},
	}
	if err := b.store.SaveCheckpoint(ckpt); err != nil {
		return err
	}
	run.checkpointID = ckpt.ID
	return nil
}

// applyTimeout records the budget expiry per the configured strategy.
func (b *Builder) applyTimeout(projectID string, opts Options, run *runState) {
	run.hasMore = true
	msg := ferrors.New(ferrors.CodeBuildTimeout, "build budget exhausted").
		WithSuggestion("re-run the build to continue from the checkpoint")
	if opts.TimeoutStrategy == StrategySplit {
		run.metrics.RecommendedMaxSources = opts.MaxSourcesPerBuild / 2
		if run.metrics.RecommendedMaxSources < MinSourcesPerBuild {
			run.metrics.RecommendedMaxSources = MinSourcesPerBuild
		}
		msg = msg.WithSuggestion("re-run with a smaller max_sources_per_build")
	}
	run.errors = append(run.errors, sourceError("", msg))
	b.logger.Warn("build timed out",
		"project_id", projectID,
		"strategy", string(opts.TimeoutStrategy),
		"processed", run.processed)
}

// finalize updates the project manifest and assembles the result.
func (b *Builder) finalize(req Request, project *workspace.Project, total int, run *runState) *Result {
	remaining := total - run.processed
	if remaining < 0 {
		remaining = 0
	}
	hasMore := run.hasMore || remaining > 0

	status := workspace.ProjectCompleted
	switch {
	case run.fatal != nil:
		status = workspace.ProjectFailed
	case run.processed == 0 && len(run.errors) > 0:
		status = workspace.ProjectFailed
	case run.failed > 0 || hasMore:
		status = workspace.ProjectPartial
	}

	duration := time.Since(run.start)
	run.metrics.DurationMS = duration.Milliseconds()

	// A fully settled project no longer needs its checkpoint.
	if !hasMore && run.fatal == nil {
		if err := b.store.ClearCheckpoint(req.ProjectID); err != nil {
			run.errors = append(run.errors, sourceError("", err))
		}
		run.checkpointID = ""
	}

	_, updateErr := b.store.UpdateProject(req.ProjectID, func(p *workspace.Project) error {
		p.Status = status
		if status == workspace.ProjectCompleted {
			now := time.Now().UTC()
			p.CompletedAt = &now
		}
		p.Stats.SourcesCompleted += run.processed - run.failed
		p.Stats.SourcesFailed += run.failed
		p.Stats.ChunksTotal += run.chunksAdded
		p.Stats.VectorsTotal += run.vectorsAdded
		p.Stats.TokensUsed += run.metrics.TokensUsed
		p.Stats.EstimatedCostUSD += run.metrics.EstimatedCostUSD
		p.Stats.ErrorsTotal += len(run.errors)
		p.Phases = append(p.Phases, workspace.PhaseManifest{
			Phase:       "build",
			StartedAt:   run.start.UTC(),
			EndedAt:     run.start.Add(duration).UTC(),
			InputCount:  run.processed,
			OutputCount: run.chunksAdded,
			DurationMS:  run.metrics.DurationMS,
		})
		return nil
	})
	if updateErr != nil {
		run.errors = append(run.errors, sourceError("", updateErr))
	}

	result := &Result{
		Success:      run.fatal == nil && run.failed == 0,
		Status:       status,
		ChunksAdded:  run.seedChunks + run.chunksAdded,
		VectorsAdded: run.seedVectors + run.vectorsAdded,
		Errors:       run.errors,
		Progress: Progress{
			TotalSources:     total,
			ProcessedThisRun: run.processed,
			Remaining:        remaining,
			HasMore:          hasMore,
			CheckpointID:     run.checkpointID,
		},
		Metrics: run.metrics,
	}
	result.Metrics.TokensUsed += run.seedTokens

	b.logger.Info("build finished",
		"project_id", req.ProjectID,
		"status", string(status),
		"chunks_added", run.chunksAdded,
		"vectors_added", run.vectorsAdded,
		"errors", len(run.errors),
		"duration_ms", run.metrics.DurationMS)
	return result
}
