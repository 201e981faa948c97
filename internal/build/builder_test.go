package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/chunk"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/embed"
	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/workspace"
)

func testStore(t *testing.T) *workspace.Store {
	t.Helper()
	s, err := workspace.NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func testProject(t *testing.T, s *workspace.Store, id string) *workspace.Project {
	t.Helper()
	model := embed.ModelDescriptor{Provider: embed.ProviderStatic, Model: "static"}
	p, err := s.CreateProject(id, "", model, chunk.DefaultConfig())
	require.NoError(t, err)
	return p
}

// writeDocs creates a folder of markdown files and returns its path.
func writeDocs(t *testing.T, docs map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range docs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func addFolderSource(t *testing.T, s *workspace.Store, projectID, dir string) *workspace.SourceRecord {
	t.Helper()
	rec, err := s.AppendSource(projectID, workspace.SourceRecord{
		Type: workspace.SourceFolder,
		URI:  dir,
	})
	require.NoError(t, err)
	return rec
}

func TestBuild_FolderSourceEndToEnd(t *testing.T) {
	store := testStore(t)
	testProject(t, store, "docs")
	dir := writeDocs(t, map[string]string{
		"a.md": "# Alpha\n\nFirst document body with enough words to chunk.\n",
		"b.md": "# Beta\n\nSecond document body, also chunkable.\n",
	})
	addFolderSource(t, store, "docs", dir)

	b := New(store, BuilderOptions{})
	res, err := b.Run(context.Background(), Request{ProjectID: "docs"})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, workspace.ProjectCompleted, res.Status)
	assert.Greater(t, res.ChunksAdded, 0)
	assert.Equal(t, res.ChunksAdded, res.VectorsAdded)
	assert.Equal(t, 1, res.Progress.ProcessedThisRun)
	assert.Zero(t, res.Progress.Remaining)
	assert.False(t, res.Progress.HasMore)

	// Logs agree with the result.
	snap := store.LogSnapshot("docs")
	chunks, err := store.ReadChunks("docs", snap)
	require.NoError(t, err)
	vectors, err := store.ReadVectors("docs", snap)
	require.NoError(t, err)
	assert.Len(t, chunks, res.ChunksAdded)
	assert.Len(t, vectors, res.VectorsAdded)

	sources, err := store.ListSources("docs")
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, workspace.StatusCompleted, sources[0].Status)
	assert.Equal(t, res.ChunksAdded, sources[0].ChunkCount)

	// A settled build leaves no checkpoint behind.
	ckpt, err := store.LoadLatestCheckpoint("docs")
	require.NoError(t, err)
	assert.Nil(t, ckpt)

	p, err := store.LoadProject("docs")
	require.NoError(t, err)
	assert.Equal(t, workspace.ProjectCompleted, p.Status)
	assert.Equal(t, res.ChunksAdded, p.Stats.ChunksTotal)
	assert.Equal(t, 1, p.Stats.SourcesCompleted)
	require.Len(t, p.Phases, 1)
	assert.Equal(t, "build", p.Phases[0].Phase)
}

func TestBuild_DryRunHasNoSideEffects(t *testing.T) {
	store := testStore(t)
	testProject(t, store, "docs")
	dir := writeDocs(t, map[string]string{"a.md": "body\n"})
	addFolderSource(t, store, "docs", dir)

	b := New(store, BuilderOptions{})
	res, err := b.Run(context.Background(), Request{ProjectID: "docs", DryRun: true})
	require.NoError(t, err)

	assert.True(t, res.DryRun)
	assert.Equal(t, 1, res.Progress.TotalSources)
	assert.Equal(t, 1, res.Progress.Remaining)
	assert.True(t, res.Progress.HasMore)
	assert.Zero(t, res.ChunksAdded)

	chunks, err := store.ReadChunks("docs", store.LogSnapshot("docs"))
	require.NoError(t, err)
	assert.Empty(t, chunks)

	sources, err := store.ListSources("docs")
	require.NoError(t, err)
	assert.Equal(t, workspace.StatusPending, sources[0].Status)
}

func TestBuild_FailedSourceDoesNotAbortBuild(t *testing.T) {
	store := testStore(t)
	testProject(t, store, "docs")
	dir := writeDocs(t, map[string]string{"a.md": "good body\n"})
	bad := addFolderSource(t, store, "docs", filepath.Join(t.TempDir(), "missing"))
	good := addFolderSource(t, store, "docs", dir)

	b := New(store, BuilderOptions{})
	res, err := b.Run(context.Background(), Request{ProjectID: "docs"})
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, workspace.ProjectPartial, res.Status)
	assert.Greater(t, res.ChunksAdded, 0)
	assert.Equal(t, 2, res.Progress.ProcessedThisRun)
	require.NotEmpty(t, res.Errors)
	assert.Equal(t, bad.ID, res.Errors[0].SourceID)

	badRec, err := store.GetSource("docs", bad.ID)
	require.NoError(t, err)
	assert.Equal(t, workspace.StatusFailed, badRec.Status)
	assert.NotEmpty(t, badRec.LastError)

	goodRec, err := store.GetSource("docs", good.ID)
	require.NoError(t, err)
	assert.Equal(t, workspace.StatusCompleted, goodRec.Status)
}

func TestBuild_SecondRunIsIdempotent(t *testing.T) {
	store := testStore(t)
	testProject(t, store, "docs")
	dir := writeDocs(t, map[string]string{"a.md": "stable body\n"})
	addFolderSource(t, store, "docs", dir)

	b := New(store, BuilderOptions{})
	first, err := b.Run(context.Background(), Request{ProjectID: "docs"})
	require.NoError(t, err)
	require.True(t, first.Success)

	// Nothing pending: the second invocation does no work.
	second, err := b.Run(context.Background(), Request{ProjectID: "docs"})
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Zero(t, second.ChunksAdded)
	assert.Zero(t, second.Progress.ProcessedThisRun)
}

func TestBuild_ForceRebuildsCompletedSources(t *testing.T) {
	store := testStore(t)
	testProject(t, store, "docs")
	dir := writeDocs(t, map[string]string{"a.md": "forced body\n"})
	addFolderSource(t, store, "docs", dir)

	b := New(store, BuilderOptions{})
	first, err := b.Run(context.Background(), Request{ProjectID: "docs"})
	require.NoError(t, err)

	second, err := b.Run(context.Background(), Request{ProjectID: "docs", Force: true})
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, first.ChunksAdded, second.ChunksAdded)

	// Force truncated before rebuilding, so the logs hold one copy.
	chunks, err := store.ReadChunks("docs", store.LogSnapshot("docs"))
	require.NoError(t, err)
	assert.Len(t, chunks, first.ChunksAdded)
	vectors, err := store.ReadVectors("docs", store.LogSnapshot("docs"))
	require.NoError(t, err)
	assert.Len(t, vectors, first.ChunksAdded)
}

func TestBuild_MaxSourcesCapAndHasMore(t *testing.T) {
	store := testStore(t)
	testProject(t, store, "docs")
	for _, name := range []string{"one", "two", "three"} {
		dir := writeDocs(t, map[string]string{name + ".md": name + " body\n"})
		addFolderSource(t, store, "docs", dir)
	}

	b := New(store, BuilderOptions{})
	opts := DefaultOptions()
	opts.MaxSourcesPerBuild = 2
	res, err := b.Run(context.Background(), Request{ProjectID: "docs", Options: opts})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Progress.TotalSources)
	assert.Equal(t, 2, res.Progress.ProcessedThisRun)
	assert.Equal(t, 1, res.Progress.Remaining)
	assert.True(t, res.Progress.HasMore)
	assert.Equal(t, workspace.ProjectPartial, res.Status)
	assert.NotEmpty(t, res.Progress.CheckpointID)

	// The follow-up invocation drains the rest.
	res2, err := b.Run(context.Background(), Request{ProjectID: "docs", Resume: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res2.Progress.ProcessedThisRun)
	assert.False(t, res2.Progress.HasMore)
}

func TestBuild_ResumeSkipsCheckpointedSources(t *testing.T) {
	store := testStore(t)
	p := testProject(t, store, "docs")
	dir := writeDocs(t, map[string]string{"a.md": "resumable body\n"})
	src := addFolderSource(t, store, "docs", dir)

	// A checkpoint claims the source is already done.
	require.NoError(t, store.SaveCheckpoint(&workspace.Checkpoint{
		ID:                 workspace.NewCheckpointID(),
		ProjectID:          "docs",
		ConfigHash:         p.ConfigHash,
		CompletedSourceIDs: []string{src.ID},
		Stats:              workspace.CheckpointStats{ChunksAdded: 7, VectorsAdded: 7, TokensUsed: 40},
	}))

	b := New(store, BuilderOptions{})
	res, err := b.Run(context.Background(), Request{ProjectID: "docs", Resume: true})
	require.NoError(t, err)

	// Aggregates are seeded from the checkpoint; no new work happened.
	assert.Equal(t, 7, res.ChunksAdded)
	assert.Equal(t, 7, res.VectorsAdded)
	assert.Equal(t, 40, res.Metrics.TokensUsed)
	assert.Zero(t, res.Progress.ProcessedThisRun)

	chunks, err := store.ReadChunks("docs", store.LogSnapshot("docs"))
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestBuild_StaleCheckpointIgnored(t *testing.T) {
	store := testStore(t)
	testProject(t, store, "docs")
	dir := writeDocs(t, map[string]string{"a.md": "drifted body\n"})
	src := addFolderSource(t, store, "docs", dir)

	require.NoError(t, store.SaveCheckpoint(&workspace.Checkpoint{
		ID:                 workspace.NewCheckpointID(),
		ProjectID:          "docs",
		ConfigHash:         "different-config",
		CompletedSourceIDs: []string{src.ID},
	}))

	b := New(store, BuilderOptions{})
	res, err := b.Run(context.Background(), Request{ProjectID: "docs", Resume: true})
	require.NoError(t, err)

	// The stale checkpoint was ignored and the source rebuilt.
	assert.Equal(t, 1, res.Progress.ProcessedThisRun)
	assert.Greater(t, res.ChunksAdded, 0)
	found := false
	for _, e := range res.Errors {
		if e.Code == ferrors.CodeInvalidInput {
			found = true
		}
	}
	assert.True(t, found, "expected a config-drift warning")
}

func TestBuild_OptionBounds(t *testing.T) {
	store := testStore(t)
	testProject(t, store, "docs")
	b := New(store, BuilderOptions{})

	tests := []Options{
		{MaxSourcesPerBuild: 51},
		{FetchConcurrency: 11},
		{BuildTimeoutMS: 1},
		{TimeoutStrategy: "abort"},
	}
	for _, opts := range tests {
		opts.ApplyDefaults()
		_, err := b.Run(context.Background(), Request{ProjectID: "docs", Options: opts})
		require.Error(t, err)
		assert.True(t, ferrors.HasCode(err, ferrors.CodeInvalidInput))
	}
}

func TestBuild_ConcurrentBuildRejected(t *testing.T) {
	store := testStore(t)
	testProject(t, store, "docs")

	lease, err := store.AcquireBuildLease("docs")
	require.NoError(t, err)
	defer lease.Release()

	b := New(store, BuilderOptions{})
	_, err = b.Run(context.Background(), Request{ProjectID: "docs"})
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeBuildFailed))
	var fe *ferrors.FoundryError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "locked", fe.Details["reason"])
}

func TestBuild_UnknownProject(t *testing.T) {
	b := New(testStore(t), BuilderOptions{})
	_, err := b.Run(context.Background(), Request{ProjectID: "nope"})
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeProjectNotFound))
}

// dimFlipEmbedder returns vectors whose dimension changes between calls,
// tripping the client's cross-batch dimension check.
type dimFlipEmbedder struct{ calls int }

func (e *dimFlipEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *dimFlipEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	dim := 4
	if e.calls > 1 {
		dim = 8
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, dim)
		out[i][0] = 1
	}
	return out, nil
}

func (e *dimFlipEmbedder) Dimensions() int                { return 0 }
func (e *dimFlipEmbedder) ModelName() string              { return "flip" }
func (e *dimFlipEmbedder) Available(context.Context) bool { return true }
func (e *dimFlipEmbedder) Close() error                   { return nil }

// failingEmbedder rejects every batch with a permanent provider error.
type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("provider down")
}

func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("provider down")
}

func (failingEmbedder) Dimensions() int                { return 0 }
func (failingEmbedder) ModelName() string              { return "down" }
func (failingEmbedder) Available(context.Context) bool { return false }
func (failingEmbedder) Close() error                   { return nil }

func TestBuild_FatalErrorSettlesSourceStatuses(t *testing.T) {
	store := testStore(t)
	testProject(t, store, "docs")
	for _, name := range []string{"a", "b", "c"} {
		dir := writeDocs(t, map[string]string{name + ".md": name + " body with enough text to chunk\n"})
		addFolderSource(t, store, "docs", dir)
	}

	b := New(store, BuilderOptions{Embedder: &dimFlipEmbedder{}})
	res, err := b.Run(context.Background(), Request{ProjectID: "docs"})
	require.NoError(t, err)
	assert.Equal(t, workspace.ProjectFailed, res.Status)

	// Every source settles; none is left in a transient fetch state.
	sources, err := store.ListSources("docs")
	require.NoError(t, err)
	require.Len(t, sources, 3)
	pending := 0
	for _, src := range sources {
		assert.Contains(t, []workspace.SourceStatus{
			workspace.StatusPending, workspace.StatusCompleted, workspace.StatusFailed,
		}, src.Status, src.ID)
		if src.Status == workspace.StatusPending {
			pending++
		}
	}
	// The sources behind the fatal one went back to pending for the next run.
	assert.Greater(t, pending, 0)
}

func TestBuild_FailedSourceRollsBackChunks(t *testing.T) {
	store := testStore(t)
	testProject(t, store, "docs")
	dir := writeDocs(t, map[string]string{"a.md": "rollback body with enough text to chunk\n"})
	addFolderSource(t, store, "docs", dir)

	bad := New(store, BuilderOptions{Embedder: failingEmbedder{}})
	res, err := bad.Run(context.Background(), Request{ProjectID: "docs"})
	require.NoError(t, err)
	assert.False(t, res.Success)

	// The failed source left no partial chunks behind.
	chunks, err := store.ReadChunks("docs", store.LogSnapshot("docs"))
	require.NoError(t, err)
	assert.Empty(t, chunks)

	// The retry appends one clean copy of everything.
	good := New(store, BuilderOptions{})
	res, err = good.Run(context.Background(), Request{ProjectID: "docs"})
	require.NoError(t, err)
	require.True(t, res.Success)

	chunks, err = store.ReadChunks("docs", store.LogSnapshot("docs"))
	require.NoError(t, err)
	assert.Len(t, chunks, res.ChunksAdded)
	seen := make(map[string]bool)
	for _, c := range chunks {
		assert.False(t, seen[c.ID], "duplicate chunk %s", c.ID)
		seen[c.ID] = true
	}
	vectors, err := store.ReadVectors("docs", store.LogSnapshot("docs"))
	require.NoError(t, err)
	assert.Len(t, vectors, res.ChunksAdded)
}
