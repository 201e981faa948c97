// Package cmd provides the CLI commands for Index Foundry.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/config"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/logging"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/profiling"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/ui"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/workspace"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/pkg/version"
)

var (
	flagConfig      string
	flagProjectsDir string
	flagPlain       bool
	flagDebug       bool
	flagProfileCPU  string
	flagProfileMem  string

	cfg            *config.Config
	loggingCleanup func()
	cpuCleanup     func()
)

// NewRootCmd creates the root command for the foundry CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "foundry",
		Short: "Deterministic vector index factory",
		Long: `Index Foundry turns web pages, sitemaps, folders, and PDFs into
searchable vector indexes with deterministic, content-addressed chunking.

Create a project, add sources, build, then search or serve:

  foundry project create docs --provider openai --model text-embedding-3-small
  foundry source add docs url https://example.com/guide
  foundry build docs
  foundry search docs "how do I configure retries"`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("foundry version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&flagConfig, "config", "foundry.yaml", "config file path")
	cmd.PersistentFlags().StringVar(&flagProjectsDir, "projects-dir", "", "override the projects base directory")
	cmd.PersistentFlags().BoolVar(&flagPlain, "plain", false, "force plain output")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&flagProfileCPU, "profile-cpu", "", "write a CPU profile to file")
	cmd.PersistentFlags().StringVar(&flagProfileMem, "profile-mem", "", "write a heap profile to file on exit")

	cmd.PersistentPreRunE = setup
	cmd.PersistentPostRunE = teardown

	cmd.AddCommand(newProjectCmd())
	cmd.AddCommand(newSourceCmd())
	cmd.AddCommand(newBuildCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func setup(_ *cobra.Command, _ []string) error {
	// API keys commonly live in a local .env. Missing file is fine.
	_ = godotenv.Load()

	cleanup, err := logging.SetupDefault(flagDebug)
	if err != nil {
		return err
	}
	loggingCleanup = cleanup

	cfg, err = config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagProjectsDir != "" {
		cfg.Paths.ProjectsDir = flagProjectsDir
	}

	if flagProfileCPU != "" {
		cpuCleanup, err = profiling.StartCPU(flagProfileCPU)
		if err != nil {
			return err
		}
	}
	return nil
}

func teardown(*cobra.Command, []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}
	if flagProfileMem != "" {
		if err := profiling.WriteHeap(flagProfileMem); err != nil {
			return err
		}
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// openStore opens the workspace store at the configured base.
func openStore() (*workspace.Store, error) {
	return workspace.NewStore(cfg.Paths.ProjectsDir, nil)
}

// renderer builds the output renderer for a command.
func renderer(cmd *cobra.Command) *ui.Renderer {
	return ui.New(cmd.OutOrStdout(), flagPlain)
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Execute runs the CLI and prints any failure.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		ui.New(os.Stderr, flagPlain).Err(err)
	}
	return err
}
