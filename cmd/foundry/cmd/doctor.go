package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment for common problems",
		Long: `Run preflight checks: workspace writability, disk space, file
descriptor limits, and embedding credentials for each project. Exits
non-zero if a required check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}

			critical := 0
			for _, r := range preflight.Run(cfg.Paths.ProjectsDir, store) {
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %-20s %s\n", r.Status, r.Name, r.Message)
				if r.Details != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "       %s\n", r.Details)
				}
				if r.IsCritical() {
					critical++
				}
			}
			if critical > 0 {
				return ferrors.Newf(ferrors.CodeInvalidInput,
					"%d required check(s) failed", critical)
			}
			return nil
		},
	}
}
