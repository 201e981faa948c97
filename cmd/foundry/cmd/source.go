package cmd

import (
	"github.com/spf13/cobra"

	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/workspace"
)

func newSourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage a project's sources",
	}
	cmd.AddCommand(newSourceAddCmd())
	cmd.AddCommand(newSourceListCmd())
	cmd.AddCommand(newSourceRemoveCmd())
	return cmd
}

func newSourceAddCmd() *cobra.Command {
	var (
		name        string
		tags        []string
		include     []string
		exclude     []string
		glob        string
		maxPages    int
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "add <project-id> <type> <uri>",
		Short: "Register a source (url, sitemap, folder, or pdf)",
		Long: `Register a source for the next build. Duplicate URIs within a
project are rejected. Sitemap sources honor --include/--exclude/--max-pages;
folder sources honor --glob and --exclude.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}

			srcType := workspace.SourceType(args[1])
			switch srcType {
			case workspace.SourceURL, workspace.SourceSitemap, workspace.SourceFolder, workspace.SourcePDF:
			default:
				return ferrors.Newf(ferrors.CodeInvalidInput,
					"unknown source type %q", args[1]).
					WithSuggestion("use url, sitemap, folder, or pdf")
			}

			rec := workspace.SourceRecord{
				Type: srcType,
				URI:  args[2],
				Name: name,
				Tags: tags,
			}
			if len(include) > 0 || len(exclude) > 0 || glob != "" || maxPages > 0 || concurrency > 0 {
				rec.Options = &workspace.SourceOptions{
					Include:     include,
					Exclude:     exclude,
					Glob:        glob,
					MaxPages:    maxPages,
					Concurrency: concurrency,
				}
			}

			src, err := store.AppendSource(args[0], rec)
			if err != nil {
				return err
			}
			renderer(cmd).Sources([]workspace.SourceRecord{*src})
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag applied to the source's chunks (repeatable)")
	cmd.Flags().StringSliceVar(&include, "include", nil, "sitemap URL pattern to include (repeatable)")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "pattern to exclude (repeatable)")
	cmd.Flags().StringVar(&glob, "glob", "", "folder file glob, e.g. **/*.md")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "sitemap page cap")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "per-source fetch concurrency")
	return cmd
}

func newSourceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <project-id>",
		Short: "List a project's sources and their build status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			sources, err := store.ListSources(args[0])
			if err != nil {
				return err
			}
			renderer(cmd).Sources(sources)
			return nil
		},
	}
}

func newSourceRemoveCmd() *cobra.Command {
	var cascade bool
	cmd := &cobra.Command{
		Use:   "remove <project-id> <source-id>",
		Short: "Remove a source",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			return store.RemoveSource(args[0], args[1], cascade)
		},
	}
	cmd.Flags().BoolVar(&cascade, "cascade", false, "also drop the source's chunks and vectors from the logs")
	return cmd
}
