package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/configs"
	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the workspace configuration file",
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented config file with default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := flagConfig
			if _, err := os.Stat(path); err == nil && !force {
				return ferrors.Newf(ferrors.CodeInvalidInput,
					"config file %s already exists", path).
					WithSuggestion("pass --force to overwrite it")
			}
			if err := os.WriteFile(path, []byte(configs.WorkspaceConfigTemplate), 0o644); err != nil {
				return ferrors.Wrap(ferrors.CodeDbError, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after file parsing and environment
overrides, as JSON. Useful for checking which values a build will use.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		},
	}
}
