package mcp

import (
	"context"
	"fmt"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/chunk"
	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/retrieve"
)

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Text   string              `json:"text" jsonschema:"the search query text"`
	Mode   string              `json:"mode,omitempty" jsonschema:"retrieval mode: semantic, keyword, or hybrid (default hybrid)"`
	TopK   int                 `json:"top_k,omitempty" jsonschema:"maximum number of results, 1-100, default 10"`
	Alpha  float64             `json:"alpha,omitempty" jsonschema:"semantic weight for hybrid fusion, 0-1, default 0.7"`
	Filter []FilterInput       `json:"filters,omitempty" jsonschema:"metadata filters, all must match"`
	Expand *ExpandOptionsInput `json:"expand,omitempty" jsonschema:"context expansion settings"`
}

// FilterInput is one metadata predicate.
type FilterInput struct {
	Field string `json:"field" jsonschema:"chunk field to filter on, e.g. source_id, tags, content_type, custom.team"`
	Op    string `json:"op" jsonschema:"operator: eq, neq, in, contains, gt, gte, lt, lte"`
	Value any    `json:"value" jsonschema:"comparison value; array for the in operator"`
}

// ExpandOptionsInput controls context expansion of the result set.
type ExpandOptionsInput struct {
	Mode           string `json:"mode" jsonschema:"expansion mode: adjacent, parent, or both"`
	AdjacentBefore int    `json:"adjacent_before,omitempty" jsonschema:"chunks to include before each hit, default 1"`
	AdjacentAfter  int    `json:"adjacent_after,omitempty" jsonschema:"chunks to include after each hit, default 1"`
	MaxTotalChunks int    `json:"max_total_chunks,omitempty" jsonschema:"cap on total returned chunks after expansion"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Mode string      `json:"mode" jsonschema:"effective retrieval mode; keyword_fallback when no vectors were available"`
	Hits []HitOutput `json:"hits" jsonschema:"scored chunks, best first"`
}

// HitOutput is one scored chunk in a search result.
type HitOutput struct {
	ChunkID    string  `json:"chunk_id" jsonschema:"stable content-derived chunk id"`
	DocID      string  `json:"doc_id" jsonschema:"document id, pass to get_document for full context"`
	SourceID   string  `json:"source_id,omitempty" jsonschema:"id of the source the chunk came from"`
	ChunkIndex int     `json:"chunk_index" jsonschema:"position of the chunk within its document"`
	Text       string  `json:"text" jsonschema:"chunk text"`
	Score      float64 `json:"score" jsonschema:"relevance score; zero for expansion neighbours"`
	Title      string  `json:"title,omitempty" jsonschema:"document title if known"`
	Heading    string  `json:"heading,omitempty" jsonschema:"nearest heading above the chunk"`
	Expanded   bool    `json:"expanded,omitempty" jsonschema:"true if the chunk was pulled in by context expansion"`
	Origin     string  `json:"origin,omitempty" jsonschema:"id of the hit that pulled this neighbour in"`
}

// GetChunkInput is the input schema for the get_chunk tool.
type GetChunkInput struct {
	ChunkID string `json:"chunk_id" jsonschema:"the chunk id to fetch"`
}

// GetChunkOutput wraps one chunk.
type GetChunkOutput struct {
	Chunk *chunk.Chunk `json:"chunk" jsonschema:"the chunk with position, hierarchy, and metadata"`
}

// GetDocumentInput is the input schema for the get_document tool.
type GetDocumentInput struct {
	DocID string `json:"doc_id" jsonschema:"the document id to fetch"`
}

// GetDocumentOutput is all chunks of one document in order.
type GetDocumentOutput struct {
	DocID  string         `json:"doc_id" jsonschema:"the requested document id"`
	Chunks []*chunk.Chunk `json:"chunks" jsonschema:"the document's chunks ordered by chunk index"`
}

// ListSourcesInput is the (empty) input schema for the list_sources tool.
type ListSourcesInput struct{}

// SourceOutput is one registered source.
type SourceOutput struct {
	SourceID   string   `json:"source_id" jsonschema:"source id"`
	Type       string   `json:"type" jsonschema:"source type: url, sitemap, folder, or pdf"`
	URI        string   `json:"uri" jsonschema:"source location"`
	Name       string   `json:"name,omitempty" jsonschema:"display name"`
	Tags       []string `json:"tags,omitempty" jsonschema:"tags applied to the source's chunks"`
	Status     string   `json:"status" jsonschema:"build status: pending, fetching, chunking, embedding, completed, or failed"`
	ChunkCount int      `json:"chunk_count,omitempty" jsonschema:"chunks produced by the last successful build"`
	LastError  string   `json:"last_error,omitempty" jsonschema:"failure message from the last build attempt"`
}

// ListSourcesOutput is the output schema for the list_sources tool.
type ListSourcesOutput struct {
	Sources []SourceOutput `json:"sources" jsonschema:"registered sources"`
}

// IndexStatusInput is the (empty) input schema for the index_status tool.
type IndexStatusInput struct{}

// IndexStatusOutput reports index readiness.
type IndexStatusOutput struct {
	ProjectID        string  `json:"project_id" jsonschema:"the served project"`
	Status           string  `json:"status" jsonschema:"project build status"`
	Ready            bool    `json:"ready" jsonschema:"true when the index has embedded chunks to search"`
	Chunks           int     `json:"chunks" jsonschema:"chunks in the served snapshot"`
	Vectors          int     `json:"vectors" jsonschema:"embedded chunks in the served snapshot"`
	SourcesTotal     int     `json:"sources_total" jsonschema:"registered sources"`
	SourcesCompleted int     `json:"sources_completed" jsonschema:"sources fully built"`
	SourcesFailed    int     `json:"sources_failed" jsonschema:"sources whose last build failed"`
	Provider         string  `json:"provider" jsonschema:"embedding provider"`
	Model            string  `json:"model" jsonschema:"embedding model"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd" jsonschema:"cumulative embedding spend"`
}

func (s *Server) searchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if input.Text == "" {
		return nil, SearchOutput{}, ferrors.New(ferrors.CodeInvalidInput, "text parameter is required")
	}

	q := retrieve.Query{
		Text:  input.Text,
		Mode:  retrieve.Mode(input.Mode),
		TopK:  input.TopK,
		Alpha: input.Alpha,
	}
	for _, f := range input.Filter {
		q.Filters = append(q.Filters, retrieve.Filter{
			Field: f.Field,
			Op:    retrieve.Op(f.Op),
			Value: f.Value,
		})
	}
	if input.Expand != nil {
		q.Expand = &retrieve.ExpandOptions{
			Mode:           retrieve.ExpandMode(input.Expand.Mode),
			AdjacentBefore: input.Expand.AdjacentBefore,
			AdjacentAfter:  input.Expand.AdjacentAfter,
			MaxTotalChunks: input.Expand.MaxTotalChunks,
		}
	}

	result, err := s.engine.Search(ctx, q)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Mode: string(result.Mode),
		Hits: make([]HitOutput, 0, len(result.Hits)),
	}
	for _, h := range result.Hits {
		if h.Chunk == nil {
			continue
		}
		output.Hits = append(output.Hits, HitOutput{
			ChunkID:    h.Chunk.ID,
			DocID:      h.Chunk.DocID,
			SourceID:   h.Chunk.SourceID,
			ChunkIndex: h.Chunk.ChunkIndex,
			Text:       h.Chunk.Text,
			Score:      h.Score,
			Title:      h.Chunk.Metadata.Title,
			Heading:    h.Chunk.Position.Heading,
			Expanded:   h.Expanded,
			Origin:     h.Origin,
		})
	}
	return nil, output, nil
}

func (s *Server) getChunkHandler(_ context.Context, _ *mcp.CallToolRequest, input GetChunkInput) (
	*mcp.CallToolResult,
	GetChunkOutput,
	error,
) {
	if input.ChunkID == "" {
		return nil, GetChunkOutput{}, ferrors.New(ferrors.CodeInvalidInput, "chunk_id parameter is required")
	}
	c, ok := s.engine.Chunk(input.ChunkID)
	if !ok {
		return nil, GetChunkOutput{}, ferrors.Newf(ferrors.CodeInvalidInput,
			"chunk %q not found", input.ChunkID).
			WithSuggestion("use search to discover valid chunk ids")
	}
	return nil, GetChunkOutput{Chunk: c}, nil
}

func (s *Server) getDocumentHandler(_ context.Context, _ *mcp.CallToolRequest, input GetDocumentInput) (
	*mcp.CallToolResult,
	GetDocumentOutput,
	error,
) {
	if input.DocID == "" {
		return nil, GetDocumentOutput{}, ferrors.New(ferrors.CodeInvalidInput, "doc_id parameter is required")
	}
	chunks := s.engine.Document(input.DocID)
	if len(chunks) == 0 {
		return nil, GetDocumentOutput{}, ferrors.Newf(ferrors.CodeInvalidInput,
			"document %q not found", input.DocID).
			WithSuggestion("doc_id comes from search hits")
	}
	return nil, GetDocumentOutput{DocID: input.DocID, Chunks: chunks}, nil
}

func (s *Server) listSourcesHandler(_ context.Context, _ *mcp.CallToolRequest, _ ListSourcesInput) (
	*mcp.CallToolResult,
	ListSourcesOutput,
	error,
) {
	sources, err := s.store.ListSources(s.projectID)
	if err != nil {
		return nil, ListSourcesOutput{}, err
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].AddedAt.Before(sources[j].AddedAt) })

	output := ListSourcesOutput{Sources: make([]SourceOutput, 0, len(sources))}
	for _, src := range sources {
		output.Sources = append(output.Sources, SourceOutput{
			SourceID:   src.ID,
			Type:       string(src.Type),
			URI:        src.URI,
			Name:       src.Name,
			Tags:       src.Tags,
			Status:     string(src.Status),
			ChunkCount: src.ChunkCount,
			LastError:  src.LastError,
		})
	}
	return nil, output, nil
}

func (s *Server) indexStatusHandler(_ context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	IndexStatusOutput,
	error,
) {
	project, err := s.store.LoadProject(s.projectID)
	if err != nil {
		return nil, IndexStatusOutput{}, err
	}

	out := IndexStatusOutput{
		ProjectID:        project.ID,
		Status:           string(project.Status),
		Ready:            s.engine.VectorCount() > 0,
		Chunks:           s.engine.Len(),
		Vectors:          s.engine.VectorCount(),
		SourcesTotal:     project.Stats.SourcesTotal,
		SourcesCompleted: project.Stats.SourcesCompleted,
		SourcesFailed:    project.Stats.SourcesFailed,
		Provider:         project.Model.Provider,
		Model:            project.Model.Model,
		EstimatedCostUSD: project.Stats.EstimatedCostUSD,
	}
	if !out.Ready && out.Chunks > 0 {
		// Keyword search still works without vectors.
		s.logger.Debug("index has chunks but no vectors",
			"project_id", s.projectID, "chunks", out.Chunks)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{
			Text: fmt.Sprintf("project %s: %d chunks, %d vectors, %d/%d sources built",
				out.ProjectID, out.Chunks, out.Vectors, out.SourcesCompleted, out.SourcesTotal),
		}},
	}, out, nil
}
