package cmd

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/embed"
	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/retrieve"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/workspace"
)

func newSearchCmd() *cobra.Command {
	var (
		mode        string
		topK        int
		alpha       float64
		fusion      string
		filters     []string
		expandMode  string
		expandMax   int
		asJSON      bool
		approximate bool
	)

	cmd := &cobra.Command{
		Use:   "search <project-id> <query>",
		Short: "Search a built index",
		Long: `Query the project's index. Hybrid mode (the default) fuses
semantic and keyword rankings with reciprocal-rank fusion; --alpha shifts
weight toward the semantic list.

Filters take the form field:op:value, for example:

  foundry search docs "rate limits" --filter tags:contains:api --filter language:eq:en`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			projectID := args[0]
			queryText := strings.Join(args[1:], " ")

			engine, err := loadEngine(store, projectID, approximate)
			if err != nil {
				return err
			}

			q := retrieve.Query{
				Text:   queryText,
				Mode:   retrieve.Mode(mode),
				TopK:   topK,
				Alpha:  alpha,
				Fusion: retrieve.FusionKind(fusion),
			}
			for _, raw := range filters {
				f, err := parseFilter(raw)
				if err != nil {
					return err
				}
				q.Filters = append(q.Filters, f)
			}
			if expandMode != "" {
				q.Expand = &retrieve.ExpandOptions{
					Mode:           retrieve.ExpandMode(expandMode),
					MaxTotalChunks: expandMax,
				}
			}

			result, err := engine.Search(cmd.Context(), q)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			renderer(cmd).SearchResult(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(retrieve.ModeHybrid), "retrieval mode: semantic, keyword, or hybrid")
	cmd.Flags().IntVar(&topK, "top-k", 0, "maximum results (1-100, default 10)")
	cmd.Flags().Float64Var(&alpha, "alpha", 0, "semantic weight for hybrid fusion (default 0.7)")
	cmd.Flags().StringVar(&fusion, "fusion", "", "hybrid fusion: rrf or weighted")
	cmd.Flags().StringSliceVar(&filters, "filter", nil, "metadata filter field:op:value (repeatable)")
	cmd.Flags().StringVar(&expandMode, "expand", "", "context expansion: adjacent, parent, or both")
	cmd.Flags().IntVar(&expandMax, "expand-max", 0, "cap on total chunks after expansion")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the raw result as JSON")
	cmd.Flags().BoolVar(&approximate, "approximate", false, "use the HNSW index instead of exact scoring")
	return cmd
}

// loadEngine builds a retrieval engine for the project, using the project's
// own embedding model for query vectors.
func loadEngine(store *workspace.Store, projectID string, approximate bool) (*retrieve.Engine, error) {
	project, err := store.LoadProject(projectID)
	if err != nil {
		return nil, err
	}
	embedder, err := embed.New(project.Model, true)
	if err != nil {
		return nil, err
	}
	return retrieve.NewEngine(store, projectID, retrieve.EngineOptions{
		Embedder:       embed.NewCachedEmbedder(embedder, 0),
		Approximate:    approximate || cfg.Retrieval.Approximate,
		KeywordBackend: cfg.Retrieval.KeywordBackend,
	})
}

// parseFilter splits field:op:value. The value keeps any further colons.
func parseFilter(raw string) (retrieve.Filter, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return retrieve.Filter{}, ferrors.Newf(ferrors.CodeInvalidFilter,
			"malformed filter %q", raw).
			WithSuggestion("use field:op:value, e.g. tags:contains:api")
	}
	var value any = parts[2]
	if op := retrieve.Op(parts[1]); op == retrieve.OpIn {
		items := strings.Split(parts[2], ",")
		anyItems := make([]any, len(items))
		for i, it := range items {
			anyItems[i] = it
		}
		value = anyItems
	}
	return retrieve.Filter{Field: parts[0], Op: retrieve.Op(parts[1]), Value: value}, nil
}
