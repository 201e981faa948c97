// Package mcp exposes a project's retrieval engine as MCP tools over stdio,
// for editor and agent integrations. The tool surface mirrors the HTTP API:
// search, chunk and document lookup, source listing, and index status.
package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/embed"
	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/retrieve"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/workspace"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/pkg/version"
)

// Options configure the MCP server.
type Options struct {
	// Embedder resolves query vectors; nil degrades semantic and hybrid
	// queries to keyword fallback.
	Embedder embed.Embedder

	// Approximate and KeywordBackend are forwarded to the engine.
	Approximate    bool
	KeywordBackend string

	Logger *slog.Logger
}

// Server wires one project snapshot into an MCP tool server.
type Server struct {
	projectID string
	store     *workspace.Store
	engine    *retrieve.Engine
	logger    *slog.Logger
	mcp       *mcp.Server
}

// NewServer loads the project's engine snapshot and registers the tools.
func NewServer(store *workspace.Store, projectID string, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if _, err := store.LoadProject(projectID); err != nil {
		return nil, err
	}
	engine, err := retrieve.NewEngine(store, projectID, retrieve.EngineOptions{
		Embedder:       opts.Embedder,
		Approximate:    opts.Approximate,
		KeywordBackend: opts.KeywordBackend,
		Logger:         opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	s := &Server{
		projectID: projectID,
		store:     store,
		engine:    engine,
		logger:    opts.Logger,
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "index-foundry",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying SDK server, for custom transports.
func (s *Server) MCPServer() *mcp.Server { return s.mcp }

// Run serves tools over stdio until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server started",
		"project_id", s.projectID,
		"chunks", s.engine.Len(),
		"vectors", s.engine.VectorCount())
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		return ferrors.Wrap(ferrors.CodeServeFailed, err)
	}
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Search the project index. Modes: semantic (vector similarity), keyword (term matching), hybrid (rank fusion, default). Supports metadata filters and context expansion.",
	}, s.searchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_chunk",
		Description: "Fetch one chunk by its id, including position, hierarchy, and metadata.",
	}, s.getChunkHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_document",
		Description: "Fetch all chunks of a document by doc_id, ordered by chunk index. Use after search to read full context.",
	}, s.getDocumentHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_sources",
		Description: "List the project's registered sources with their build status.",
	}, s.listSourcesHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Report index size, embedded vector count, and source completion. Use before searching to verify the index is built.",
	}, s.indexStatusHandler)
	s.logger.Debug("mcp tools registered", "count", 5)
}
