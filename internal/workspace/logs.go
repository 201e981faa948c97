package workspace

import (
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/chunk"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/embed"
	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
)

// Snapshot freezes the log lengths a reader observed at load time. Appends
// by a concurrent build land beyond these offsets and stay invisible to the
// reader.
type Snapshot struct {
	ChunkBytes  int64 `json:"chunk_bytes"`
	VectorBytes int64 `json:"vector_bytes"`
}

// LogSnapshot captures the current byte lengths of both logs.
func (s *Store) LogSnapshot(projectID string) Snapshot {
	return Snapshot{
		ChunkBytes:  fileSize(s.ChunksFile(projectID)),
		VectorBytes: fileSize(s.VectorsFile(projectID)),
	}
}

// AppendChunks appends chunks to the chunk log in order.
func (s *Store) AppendChunks(projectID string, chunks []*chunk.Chunk) error {
	values := make([]chunk.Chunk, len(chunks))
	for i, c := range chunks {
		values[i] = *c
	}
	if err := appendJSONL(s.ChunksFile(projectID), values); err != nil {
		return ferrors.Wrap(ferrors.CodeDbError, err)
	}
	return nil
}

// ReadChunks loads the chunk log. A zero snapshot reads the whole log;
// otherwise reading stops at the snapshotted length.
func (s *Store) ReadChunks(projectID string, snap Snapshot) ([]chunk.Chunk, error) {
	chunks, err := readJSONL[chunk.Chunk](s.ChunksFile(projectID), snap.ChunkBytes)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}
	return chunks, nil
}

// AppendVectors appends embedding records to the vector log in order.
func (s *Store) AppendVectors(projectID string, records []embed.EmbeddingRecord) error {
	if err := appendJSONL(s.VectorsFile(projectID), records); err != nil {
		return ferrors.Wrap(ferrors.CodeDbError, err)
	}
	return nil
}

// ReadVectors loads the vector log, bounded by the snapshot when non-zero.
func (s *Store) ReadVectors(projectID string, snap Snapshot) ([]embed.EmbeddingRecord, error) {
	records, err := readJSONL[embed.EmbeddingRecord](s.VectorsFile(projectID), snap.VectorBytes)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}
	return records, nil
}

// EmbeddedChunkIDs returns the set of chunk ids that already have a vector.
// The embed client consults this to skip work on incremental builds.
func (s *Store) EmbeddedChunkIDs(projectID string) (map[string]bool, error) {
	records, err := s.ReadVectors(projectID, Snapshot{})
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(records))
	for _, r := range records {
		ids[r.ChunkID] = true
	}
	return ids, nil
}

// TruncateForSources rewrites both logs dropping records belonging to the
// given sources. Force rebuilds call this before re-appending.
func (s *Store) TruncateForSources(projectID string, sourceIDs []string) error {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	drop := make(map[string]bool, len(sourceIDs))
	for _, id := range sourceIDs {
		drop[id] = true
	}

	chunks, err := readJSONL[chunk.Chunk](s.ChunksFile(projectID), 0)
	if err != nil {
		return ferrors.Wrap(ferrors.CodeDbError, err)
	}
	droppedChunks := make(map[string]bool)
	keptChunks := make([]chunk.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if drop[c.SourceID] {
			droppedChunks[c.ID] = true
			continue
		}
		keptChunks = append(keptChunks, c)
	}
	if err := rewriteJSONL(s.ChunksFile(projectID), keptChunks); err != nil {
		return ferrors.Wrap(ferrors.CodeDbError, err)
	}

	vectors, err := readJSONL[embed.EmbeddingRecord](s.VectorsFile(projectID), 0)
	if err != nil {
		return ferrors.Wrap(ferrors.CodeDbError, err)
	}
	keptVecs := make([]embed.EmbeddingRecord, 0, len(vectors))
	for _, v := range vectors {
		if droppedChunks[v.ChunkID] {
			continue
		}
		keptVecs = append(keptVecs, v)
	}
	if err := rewriteJSONL(s.VectorsFile(projectID), keptVecs); err != nil {
		return ferrors.Wrap(ferrors.CodeDbError, err)
	}
	return nil
}
