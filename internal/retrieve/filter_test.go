package retrieve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/chunk"
	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
)

func filteredFixture(t *testing.T) *Engine {
	t.Helper()
	chunks := docChunks("d1", "common word", "common word", "common word")
	chunks[0].Metadata = chunk.Metadata{
		Title:       "Install Guide",
		ContentType: "text/html",
		Language:    "en",
		Tags:        []string{"guide", "install"},
		Custom:      map[string]string{"team": "infra"},
	}
	chunks[1].Metadata = chunk.Metadata{
		Title:       "API Reference",
		ContentType: "text/markdown",
		Language:    "en",
		Tags:        []string{"reference"},
	}
	chunks[2].Metadata = chunk.Metadata{
		ContentType: "text/plain",
		Language:    "de",
	}
	chunks[2].Hierarchy.Level = 2
	return fixture(t, chunks, nil, EngineOptions{})
}

func searchIDs(t *testing.T, e *Engine, filters []Filter) []string {
	t.Helper()
	res, err := e.Search(context.Background(), Query{
		Text: "common", Mode: ModeKeyword, TopK: 10, Filters: filters,
	})
	require.NoError(t, err)
	var ids []string
	for _, h := range res.Hits {
		ids = append(ids, h.Chunk.ID)
	}
	return ids
}

func TestFilters_Predicates(t *testing.T) {
	e := filteredFixture(t)

	tests := []struct {
		name    string
		filters []Filter
		want    []string
	}{
		{"eq content_type", []Filter{{Field: "content_type", Op: OpEq, Value: "text/html"}}, []string{"d1-00"}},
		{"neq language", []Filter{{Field: "language", Op: OpNeq, Value: "en"}}, []string{"d1-02"}},
		{"in content_type", []Filter{{Field: "content_type", Op: OpIn, Value: []string{"text/html", "text/markdown"}}}, []string{"d1-00", "d1-01"}},
		{"title contains", []Filter{{Field: "title", Op: OpContains, Value: "guide"}}, []string{"d1-00"}},
		{"tags contains", []Filter{{Field: "tags", Op: OpContains, Value: "reference"}}, []string{"d1-01"}},
		{"tags in", []Filter{{Field: "tags", Op: OpIn, Value: []string{"install", "reference"}}}, []string{"d1-00", "d1-01"}},
		{"hierarchy_level gte", []Filter{{Field: "hierarchy_level", Op: OpGte, Value: 2}}, []string{"d1-02"}},
		{"chunk_index lt", []Filter{{Field: "chunk_index", Op: OpLt, Value: 1}}, []string{"d1-00"}},
		{"custom eq", []Filter{{Field: "custom.team", Op: OpEq, Value: "infra"}}, []string{"d1-00"}},
		{"conjunction", []Filter{
			{Field: "language", Op: OpEq, Value: "en"},
			{Field: "tags", Op: OpContains, Value: "guide"},
		}, []string{"d1-00"}},
		{"conjunction empty", []Filter{
			{Field: "language", Op: OpEq, Value: "de"},
			{Field: "tags", Op: OpContains, Value: "guide"},
		}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, searchIDs(t, e, tt.filters))
		})
	}
}

func TestFilters_ProfileViolations(t *testing.T) {
	e := filteredFixture(t)

	tests := []struct {
		name   string
		filter Filter
	}{
		{"unknown field", Filter{Field: "secret", Op: OpEq, Value: "x"}},
		{"disallowed op", Filter{Field: "source_id", Op: OpGt, Value: "x"}},
		{"contains on doc_id", Filter{Field: "doc_id", Op: OpContains, Value: "x"}},
		{"range on custom", Filter{Field: "custom.team", Op: OpLte, Value: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Search(context.Background(), Query{
				Text: "common", Mode: ModeKeyword, TopK: 10,
				Filters: []Filter{tt.filter},
			})
			require.Error(t, err)
			assert.True(t, ferrors.HasCode(err, ferrors.CodeInvalidFilter))
		})
	}
}

func TestFilters_CustomProfile(t *testing.T) {
	chunks := docChunks("d1", "common")
	e := fixture(t, chunks, nil, EngineOptions{
		Profile: FilterProfile{"source_id": {OpEq}},
	})

	_, err := e.Search(context.Background(), Query{
		Text: "common", Mode: ModeKeyword, TopK: 10,
		Filters: []Filter{{Field: "source_id", Op: OpEq, Value: "src-d1"}},
	})
	require.NoError(t, err)

	_, err = e.Search(context.Background(), Query{
		Text: "common", Mode: ModeKeyword, TopK: 10,
		Filters: []Filter{{Field: "title", Op: OpEq, Value: "x"}},
	})
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeInvalidFilter))
}
