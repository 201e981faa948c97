package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/embed"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/server"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve <project-id>",
		Short: "Serve a project's index over HTTP",
		Long: `Serve search, chunk and document lookup, stats, and prometheus
metrics for one project. The listen address comes from --addr, then the
PORT environment variable, then :8080.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			projectID := args[0]
			project, err := store.LoadProject(projectID)
			if err != nil {
				return err
			}
			embedder, err := embed.New(project.Model, true)
			if err != nil {
				return err
			}

			var tstore *telemetry.Store
			if cfg.Telemetry.Enabled {
				tstore, err = telemetry.Open(filepath.Join(store.ProjectDir(projectID), "telemetry.db"))
				if err != nil {
					return err
				}
				defer tstore.Close()
			}

			if addr == "" && cfg.Server.Port != server.DefaultPort {
				addr = fmt.Sprintf(":%d", cfg.Server.Port)
			}
			registry := server.NewRegistry(nil)
			srv, err := registry.Start(store, projectID, server.Options{
				Addr:           addr,
				Embedder:       embed.NewCachedEmbedder(embedder, 0),
				Approximate:    cfg.Retrieval.Approximate,
				KeywordBackend: cfg.Retrieval.KeywordBackend,
				Telemetry:      tstore,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "serving %s on %s\n", projectID, srv.Addr())

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			<-ctx.Done()
			return registry.Stop(context.Background(), projectID)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address, e.g. :9000")
	return cmd
}
