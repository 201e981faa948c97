package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/embed"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp <project-id>",
		Short: "Serve a project's index as MCP tools over stdio",
		Long: `Expose search, get_chunk, get_document, list_sources, and
index_status as MCP tools for AI assistants. Communicates over
stdin/stdout; run it from an MCP client configuration, not a shell.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			project, err := store.LoadProject(args[0])
			if err != nil {
				return err
			}
			embedder, err := embed.New(project.Model, true)
			if err != nil {
				return err
			}

			srv, err := mcp.NewServer(store, args[0], mcp.Options{
				Embedder:       embed.NewCachedEmbedder(embedder, 0),
				Approximate:    cfg.Retrieval.Approximate,
				KeywordBackend: cfg.Retrieval.KeywordBackend,
			})
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return srv.Run(ctx)
		},
	}
}
