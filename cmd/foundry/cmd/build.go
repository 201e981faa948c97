package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/build"
)

func newBuildCmd() *cobra.Command {
	var (
		force        bool
		dryRun       bool
		resume       bool
		checkpointID string
		noCheckpoint bool
		maxSources   int
		concurrency  int
		batchSize    int
		timeoutMS    int64
		strategy     string
		allowDomains []string
		blockDomains []string
	)

	cmd := &cobra.Command{
		Use:   "build <project-id>",
		Short: "Fetch, chunk, and embed the project's pending sources",
		Long: `Run one build invocation: fetch pending sources, chunk and embed
their content, and append to the project's logs. Builds are incremental;
already embedded chunks are skipped. A build that hits its source cap or
timeout leaves a checkpoint and reports has_more.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}

			opts := build.Options{
				MaxSourcesPerBuild:  cfg.Build.MaxSourcesPerBuild,
				FetchConcurrency:    cfg.Build.FetchConcurrency,
				EmbeddingBatchSize:  cfg.Build.EmbeddingBatchSize,
				BuildTimeoutMS:      int64(cfg.Build.BuildTimeoutMS),
				TimeoutStrategy:     build.TimeoutStrategy(cfg.Build.TimeoutStrategy),
				EnableCheckpointing: !noCheckpoint,
			}
			if maxSources > 0 {
				opts.MaxSourcesPerBuild = maxSources
			}
			if concurrency > 0 {
				opts.FetchConcurrency = concurrency
			}
			if batchSize > 0 {
				opts.EmbeddingBatchSize = batchSize
			}
			if timeoutMS > 0 {
				opts.BuildTimeoutMS = timeoutMS
			}
			if strategy != "" {
				opts.TimeoutStrategy = build.TimeoutStrategy(strategy)
			}

			builder := build.New(store, build.BuilderOptions{
				AllowDomains: allowDomains,
				BlockDomains: blockDomains,
			})

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			result, err := builder.Run(ctx, build.Request{
				ProjectID:    args[0],
				Force:        force,
				DryRun:       dryRun,
				Resume:       resume,
				CheckpointID: checkpointID,
				Options:      opts,
			})
			if err != nil {
				return err
			}
			renderer(cmd).BuildResult(args[0], result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "rebuild completed sources too")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "preview what would be built without side effects")
	cmd.Flags().BoolVar(&resume, "resume", false, "resume from the latest checkpoint")
	cmd.Flags().StringVar(&checkpointID, "checkpoint", "", "resume from a specific checkpoint id")
	cmd.Flags().BoolVar(&noCheckpoint, "no-checkpointing", false, "disable checkpoint writes")
	cmd.Flags().IntVar(&maxSources, "max-sources", 0, "sources to process this invocation (1-50)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel fetches (1-10)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "embedding batch size (10-100)")
	cmd.Flags().Int64Var(&timeoutMS, "timeout-ms", 0, "build timeout in milliseconds")
	cmd.Flags().StringVar(&strategy, "timeout-strategy", "", "on timeout: skip, checkpoint, or split")
	cmd.Flags().StringSliceVar(&allowDomains, "allow-domain", nil, "restrict fetches to these domains (repeatable)")
	cmd.Flags().StringSliceVar(&blockDomains, "block-domain", nil, "refuse fetches to these domains (repeatable)")
	return cmd
}
