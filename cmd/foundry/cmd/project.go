package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/chunk"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/embed"
	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/workspace"
)

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage index projects",
	}
	cmd.AddCommand(newProjectCreateCmd())
	cmd.AddCommand(newProjectListCmd())
	cmd.AddCommand(newProjectDeleteCmd())
	return cmd
}

func newProjectCreateCmd() *cobra.Command {
	var (
		description string
		provider    string
		model       string
		dimension   int
		apiKeyEnv   string
		strategy    string
		maxChars    int
		minChars    int
		overlap     int
		parents     bool
	)

	cmd := &cobra.Command{
		Use:   "create <project-id>",
		Short: "Create a project with a frozen model and chunking config",
		Long: `Create a project workspace. The embedding model and chunking
configuration are frozen at creation; changing them later requires a
force rebuild.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}

			chunking := chunk.DefaultConfig()
			if strategy != "" {
				chunking.Strategy = chunk.Strategy(strategy)
			}
			if maxChars > 0 {
				chunking.MaxChars = maxChars
			}
			if minChars > 0 {
				chunking.MinChars = minChars
			}
			if cmd.Flags().Changed("overlap-chars") {
				chunking.OverlapChars = overlap
			}
			chunking.CreateParentChunks = parents
			if err := chunking.Validate(); err != nil {
				return ferrors.Wrap(ferrors.CodeInvalidInput, err)
			}

			desc := embed.ModelDescriptor{
				Provider:  provider,
				Model:     model,
				Dimension: dimension,
				APIKeyEnv: apiKeyEnv,
			}
			project, err := store.CreateProject(args[0], description, desc, chunking)
			if err != nil {
				return err
			}
			renderer(cmd).Projects([]*workspace.Project{project})
			return nil
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "project description")
	cmd.Flags().StringVar(&provider, "provider", embed.ProviderStatic, "embedding provider: openai or static")
	cmd.Flags().StringVar(&model, "model", "static", "embedding model name")
	cmd.Flags().IntVar(&dimension, "dimension", 0, "embedding dimension (0 learns it from the first batch)")
	cmd.Flags().StringVar(&apiKeyEnv, "api-key-env", "", "environment variable holding the provider API key")
	cmd.Flags().StringVar(&strategy, "strategy", "", "chunking strategy (default recursive)")
	cmd.Flags().IntVar(&maxChars, "max-chars", 0, "maximum chunk size in characters")
	cmd.Flags().IntVar(&minChars, "min-chars", 0, "minimum chunk size in characters")
	cmd.Flags().IntVar(&overlap, "overlap-chars", 0, "overlap between adjacent chunks")
	cmd.Flags().BoolVar(&parents, "parent-chunks", false, "create parent section chunks for hierarchical context")
	return cmd
}

func newProjectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			projects, err := store.ListProjects()
			if err != nil {
				return err
			}
			renderer(cmd).Projects(projects)
			return nil
		},
	}
}

func newProjectDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project and all of its data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			return store.DeleteProject(args[0], yes)
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the deletion")
	return cmd
}
