package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/build"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/watch"
)

func newWatchCmd() *cobra.Command {
	var debounceMS int

	cmd := &cobra.Command{
		Use:   "watch <project-id>",
		Short: "Rebuild the index when folder sources change",
		Long: `Watch the project's folder sources and run an incremental build
after each burst of file changes. Content addressing keeps rebuilds cheap:
unchanged files produce the same chunk ids and are never re-embedded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}

			builder := build.New(store, build.BuilderOptions{})
			w, err := watch.New(store, args[0], watch.Options{
				Debounce: time.Duration(debounceMS) * time.Millisecond,
				Builder:  builder,
				BuildOptions: build.Options{
					MaxSourcesPerBuild:  cfg.Build.MaxSourcesPerBuild,
					FetchConcurrency:    cfg.Build.FetchConcurrency,
					EmbeddingBatchSize:  cfg.Build.EmbeddingBatchSize,
					EnableCheckpointing: true,
					BuildTimeoutMS:      int64(cfg.Build.BuildTimeoutMS),
					TimeoutStrategy:     build.TimeoutStrategy(cfg.Build.TimeoutStrategy),
				},
			})
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return w.Run(ctx)
		},
	}

	cmd.Flags().IntVar(&debounceMS, "debounce-ms", 0, "coalescing window for file events (default 500)")
	return cmd
}
