package build

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/blob"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/chunk"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/embed"
	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/extract"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/fetch"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/vector"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/workspace"
)

// document is one fetched payload ready for extraction. Sitemap and folder
// sources expand into several documents under the same source id.
type document struct {
	URI         string
	Data        []byte
	ContentType string
}

// fetchResult is the fetch wave's output for one source. Partial errors
// (individual sitemap pages, unreadable folder files) land in warnings and
// do not fail the source as long as at least one document arrived.
type fetchResult struct {
	docs     []document
	warnings []error
	err      error
}

// fetchWave fetches the working set with bounded concurrency. Results are
// keyed by source id; statuses move to fetching as work starts.
func (b *Builder) fetchWave(ctx context.Context, projectID string, working []workspace.SourceRecord, opts Options, blobs *blob.Store, run *runState) map[string]*fetchResult {
	start := time.Now()
	results := make(map[string]*fetchResult, len(working))
	var mu sync.Mutex

	fetcher := fetch.New(blobs, b.opts.HTTPClient, b.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.FetchConcurrency)
	for _, src := range working {
		g.Go(func() error {
			if err := b.store.UpdateSourceStatus(projectID, src.ID, workspace.StatusFetching, "", -1); err != nil {
				b.logger.Warn("status update failed", "source_id", src.ID, "error", err.Error())
			}
			fr := b.fetchSource(gctx, fetcher, src)
			mu.Lock()
			results[src.ID] = fr
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	run.metrics.FetchTimeMS += time.Since(start).Milliseconds()
	return results
}

// fetchSource dispatches on the source type.
func (b *Builder) fetchSource(ctx context.Context, fetcher *fetch.Fetcher, src workspace.SourceRecord) *fetchResult {
	urlOpts := fetch.URLOptions{
		AllowDomains: b.opts.AllowDomains,
		BlockDomains: b.opts.BlockDomains,
	}
	if o := src.Options; o != nil && o.TimeoutMS > 0 {
		urlOpts.Timeout = time.Duration(o.TimeoutMS) * time.Millisecond
	}

	switch src.Type {
	case workspace.SourceURL:
		art, err := fetcher.FetchURL(ctx, src.URI, urlOpts)
		if err != nil {
			return &fetchResult{err: err}
		}
		return b.loadArtifacts(fetcher, art)

	case workspace.SourcePDF:
		art, err := fetcher.FetchPDF(ctx, src.URI, urlOpts)
		if err != nil {
			return &fetchResult{err: err}
		}
		return b.loadArtifacts(fetcher, art)

	case workspace.SourceSitemap:
		smOpts := fetch.SitemapOptions{URL: urlOpts}
		if o := src.Options; o != nil {
			smOpts.Include = o.Include
			smOpts.Exclude = o.Exclude
			smOpts.MaxPages = o.MaxPages
			smOpts.Concurrency = o.Concurrency
		}
		pages, err := fetcher.FetchSitemap(ctx, src.URI, smOpts)
		if err != nil {
			return &fetchResult{err: err}
		}
		fr := &fetchResult{}
		var arts []*blob.Artifact
		for _, page := range pages {
			if page.Err != nil {
				fr.warnings = append(fr.warnings, page.Err)
				continue
			}
			arts = append(arts, page.Artifact)
		}
		loaded := b.loadArtifacts(fetcher, arts...)
		fr.docs = loaded.docs
		fr.warnings = append(fr.warnings, loaded.warnings...)
		if len(fr.docs) == 0 {
			fr.err = ferrors.Newf(ferrors.CodeFetchFailed,
				"no sitemap page could be fetched from %s", src.URI).WithRecoverable(true)
		}
		return fr

	case workspace.SourceFolder:
		fOpts := fetch.FolderOptions{}
		if o := src.Options; o != nil {
			fOpts.Glob = o.Glob
			fOpts.Exclude = o.Exclude
		}
		files, err := fetcher.FetchFolder(src.URI, fOpts)
		if err != nil {
			return &fetchResult{err: err}
		}
		fr := &fetchResult{}
		var arts []*blob.Artifact
		for _, file := range files {
			if file.Err != nil {
				fr.warnings = append(fr.warnings, file.Err)
				continue
			}
			arts = append(arts, file.Artifact)
		}
		loaded := b.loadArtifacts(fetcher, arts...)
		fr.docs = loaded.docs
		fr.warnings = append(fr.warnings, loaded.warnings...)
		if len(fr.docs) == 0 {
			fr.err = ferrors.Newf(ferrors.CodeFetchFailed,
				"no file could be read under %s", src.URI)
		}
		return fr
	}
	return &fetchResult{err: ferrors.Newf(ferrors.CodeInvalidInput, "unknown source type %q", src.Type)}
}

// loadArtifacts reads blobs back into memory for extraction.
func (b *Builder) loadArtifacts(fetcher *fetch.Fetcher, arts ...*blob.Artifact) *fetchResult {
	fr := &fetchResult{}
	for _, art := range arts {
		data, err := fetcher.Blobs().Read(art.Path)
		if err != nil {
			fr.warnings = append(fr.warnings, err)
			continue
		}
		fr.docs = append(fr.docs, document{URI: art.URI, Data: data, ContentType: art.ContentType})
	}
	if len(fr.docs) == 0 && len(fr.warnings) > 0 {
		fr.err = fr.warnings[0]
		fr.warnings = nil
	}
	return fr
}

// processSource runs the chunk and embed waves for one fetched source.
// Returns false when the build deadline interrupted the source; the source
// is reset to pending in that case.
func (b *Builder) processSource(ctx context.Context, project *workspace.Project, src workspace.SourceRecord, fr *fetchResult, splitter *chunk.Splitter, client *embed.Client, writer *vector.Writer, run *runState) bool {
	projectID := project.ID

	if fr == nil {
		fr = &fetchResult{err: ferrors.Newf(ferrors.CodeFetchFailed, "source %s was not fetched", src.ID)}
	}
	for _, warn := range fr.warnings {
		run.errors = append(run.errors, sourceError(src.ID, warn))
	}
	if fr.err != nil {
		return b.settleSourceError(ctx, projectID, src.ID, fr.err, run, false)
	}

	// A re-processed source may still own records from an earlier run;
	// drop them so the append below is the only copy of each chunk id.
	if src.ChunkCount > 0 {
		if err := b.store.TruncateForSources(projectID, []string{src.ID}); err != nil {
			return b.settleSourceError(ctx, projectID, src.ID, err, run, false)
		}
	}

	// Chunk wave.
	chunkStart := time.Now()
	b.setStatus(projectID, src.ID, workspace.StatusChunking)

	var newChunks []*chunk.Chunk
	for _, doc := range fr.docs {
		extracted, err := extract.Extract(doc.Data, doc.ContentType, doc.URI, extract.Options{
			HTML: b.opts.HTML,
			PDF:  b.opts.PDF,
		})
		if err != nil {
			run.metrics.ChunkTimeMS += time.Since(chunkStart).Milliseconds()
			return b.settleSourceError(ctx, projectID, src.ID, err, run, false)
		}

		docID := chunk.DocID(doc.Data)
		chunks, err := splitter.Split(docID, extracted.Text, chunk.Metadata{
			ContentType: extracted.ContentType,
			Title:       extracted.Title,
			Tags:        src.Tags,
		})
		if err != nil {
			run.metrics.ChunkTimeMS += time.Since(chunkStart).Milliseconds()
			return b.settleSourceError(ctx, projectID, src.ID, ferrors.Wrap(ferrors.CodeChunkError, err), run, false)
		}
		for _, c := range chunks {
			c.SourceID = src.ID
		}
		newChunks = append(newChunks, chunks...)
	}

	if err := b.store.AppendChunks(projectID, newChunks); err != nil {
		run.metrics.ChunkTimeMS += time.Since(chunkStart).Milliseconds()
		return b.settleSourceError(ctx, projectID, src.ID, err, run, true)
	}
	run.metrics.ChunkTimeMS += time.Since(chunkStart).Milliseconds()

	// Embed wave: the batch client flushes at batch size and at source end,
	// and only ever has one batch outstanding.
	embedStart := time.Now()
	b.setStatus(projectID, src.ID, workspace.StatusEmbedding)

	existing, err := b.store.EmbeddedChunkIDs(projectID)
	if err != nil {
		return b.settleSourceError(ctx, projectID, src.ID, err, run, true)
	}
	inputs := make([]embed.Input, len(newChunks))
	for i, c := range newChunks {
		inputs[i] = embed.Input{ChunkID: c.ID, Text: c.Text}
	}

	usage, err := client.Run(ctx, inputs, existing, func(records []embed.EmbeddingRecord) error {
		return writer.Append(records)
	})
	run.metrics.EmbedTimeMS += time.Since(embedStart).Milliseconds()
	run.metrics.TokensUsed += usage.Tokens
	run.metrics.EstimatedCostUSD += usage.EstimatedCostUSD
	if err != nil {
		return b.settleSourceError(ctx, projectID, src.ID, err, run, true)
	}
	if usage.Embedded > 0 && project.Model.Provider == embed.ProviderOpenAI && !embed.PriceKnown(project.Model.Model) {
		run.errors = append(run.errors, SourceError{
			SourceID:    src.ID,
			Code:        ferrors.CodeInvalidInput,
			Message:     "no price pinned for model " + project.Model.Model + "; estimated_cost_usd is 0",
			Recoverable: true,
		})
	}

	if err := b.store.UpdateSourceStatus(projectID, src.ID, workspace.StatusCompleted, "", len(newChunks)); err != nil {
		return b.settleSourceError(ctx, projectID, src.ID, err, run, true)
	}

	run.processed++
	run.completedIDs = append(run.completedIDs, src.ID)
	run.chunksAdded += len(newChunks)
	run.vectorsAdded += usage.Embedded

	b.logger.Info("source completed",
		"project_id", projectID,
		"source_id", src.ID,
		"chunks", len(newChunks),
		"vectors", usage.Embedded,
		"skipped", usage.Skipped)
	return true
}

// settleSourceError decides between a deadline interruption (source back to
// pending, build stops) and a real failure (source failed, build continues).
// rollback drops the source's appended log records first, so an interrupted
// or failed source leaves no partial chunks behind for the retry to
// duplicate.
func (b *Builder) settleSourceError(ctx context.Context, projectID, sourceID string, err error, run *runState, rollback bool) bool {
	if rollback {
		if truncErr := b.store.TruncateForSources(projectID, []string{sourceID}); truncErr != nil {
			run.record(sourceID, truncErr)
		}
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && time.Now().After(run.deadline) {
		b.setStatus(projectID, sourceID, workspace.StatusPending)
		return false
	}

	run.record(sourceID, err)
	run.processed++
	run.failed++
	if statusErr := b.store.UpdateSourceStatus(projectID, sourceID, workspace.StatusFailed, err.Error(), -1); statusErr != nil {
		run.record(sourceID, statusErr)
	}
	b.logger.Warn("source failed",
		"project_id", projectID,
		"source_id", sourceID,
		"code", ferrors.GetCode(err),
		"error", err.Error())
	return true
}

func (b *Builder) setStatus(projectID, sourceID string, status workspace.SourceStatus) {
	if err := b.store.UpdateSourceStatus(projectID, sourceID, status, "", -1); err != nil {
		b.logger.Warn("status update failed", "source_id", sourceID, "error", err.Error())
	}
}
