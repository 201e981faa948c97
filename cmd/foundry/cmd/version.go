package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/pkg/version"
)

func newVersionCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			if verbose {
				fmt.Fprintln(cmd.OutOrStdout(), version.Info().String())
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "foundry version %s\n", version.Version)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "include build metadata")
	return cmd
}
