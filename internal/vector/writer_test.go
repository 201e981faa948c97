package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/chunk"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/embed"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/workspace"
)

func newTestWriter(t *testing.T) (*workspace.Store, *Writer) {
	t.Helper()
	store, err := workspace.NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	_, err = store.CreateProject("p", "", embed.ModelDescriptor{Provider: "static", Model: "static"}, chunk.DefaultConfig())
	require.NoError(t, err)
	return store, NewWriter(store, "p")
}

func records(ids ...string) []embed.EmbeddingRecord {
	out := make([]embed.EmbeddingRecord, len(ids))
	for i, id := range ids {
		out[i] = embed.EmbeddingRecord{
			ChunkID: id,
			Vector:  []float32{1, 0, 0},
			Model:   embed.ModelDescriptor{Provider: "static", Model: "static"},
		}
	}
	return out
}

func TestWriter_AppendMaintainsManifest(t *testing.T) {
	store, w := newTestWriter(t)

	m, err := w.Manifest()
	require.NoError(t, err)
	assert.Nil(t, m)

	require.NoError(t, w.Append(records("c1", "c2")))
	require.NoError(t, w.Append(records("c3")))

	m, err = w.Manifest()
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "p", m.Collection)
	assert.Equal(t, "local", m.Backend)
	assert.Equal(t, 3, m.Count)
	assert.Equal(t, 3, m.Dimension)

	stored, err := store.ReadVectors("p", workspace.Snapshot{})
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestWriter_AppendEmptyIsNoop(t *testing.T) {
	_, w := newTestWriter(t)
	require.NoError(t, w.Append(nil))
	m, err := w.Manifest()
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestWriter_RecountAfterRewrite(t *testing.T) {
	store, w := newTestWriter(t)
	require.NoError(t, store.AppendChunks("p", []*chunk.Chunk{
		{ID: "c1", SourceID: "s1", Text: "a"},
		{ID: "c2", SourceID: "s2", Text: "b"},
	}))
	require.NoError(t, w.Append(records("c1", "c2")))

	require.NoError(t, store.TruncateForSources("p", []string{"s1"}))
	require.NoError(t, w.Recount())

	m, err := w.Manifest()
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 1, m.Count)
}
