package workspace

import (
	"time"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/chunk"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/embed"
	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
)

// AppendSource adds a source to the ledger with status pending. Duplicate
// URIs within a project fail with DuplicateSource.
func (s *Store) AppendSource(projectID string, rec SourceRecord) (*SourceRecord, error) {
	if !ValidSourceType(rec.Type) {
		return nil, ferrors.Newf(ferrors.CodeInvalidInput, "unknown source type %q", rec.Type)
	}
	if rec.URI == "" {
		return nil, ferrors.New(ferrors.CodeInvalidInput, "source uri is empty")
	}

	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.LoadProject(projectID); err != nil {
		return nil, err
	}

	existing, err := s.listSourcesLocked(projectID)
	if err != nil {
		return nil, err
	}
	for _, e := range existing {
		if e.URI == rec.URI {
			return nil, ferrors.Newf(ferrors.CodeDuplicateSource,
				"source %q already registered as %s", rec.URI, e.ID).
				WithDetail("source_id", e.ID)
		}
		if e.ID == rec.ID {
			return nil, ferrors.Newf(ferrors.CodeDuplicateSource, "source id %q already in use", rec.ID)
		}
	}

	now := time.Now().UTC()
	if rec.ID == "" {
		rec.ID = newSourceID()
	}
	rec.AddedAt = now
	rec.UpdatedAt = now
	rec.Status = StatusPending

	if err := appendJSONL(s.sourcesFile(projectID), []SourceRecord{rec}); err != nil {
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}
	s.logger.Info("source added", "project_id", projectID, "source_id", rec.ID, "type", rec.Type)
	return &rec, nil
}

// ListSources returns the compacted ledger: one record per source id, the
// last written one, in first-seen order.
func (s *Store) ListSources(projectID string) ([]SourceRecord, error) {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()
	return s.listSourcesLocked(projectID)
}

func (s *Store) listSourcesLocked(projectID string) ([]SourceRecord, error) {
	raw, err := readJSONL[SourceRecord](s.sourcesFile(projectID), 0)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}

	order := make([]string, 0, len(raw))
	latest := make(map[string]SourceRecord, len(raw))
	for _, rec := range raw {
		if _, seen := latest[rec.ID]; !seen {
			order = append(order, rec.ID)
		}
		latest[rec.ID] = rec
	}

	out := make([]SourceRecord, 0, len(order))
	for _, id := range order {
		out = append(out, latest[id])
	}
	return out, nil
}

// GetSource returns one source by id.
func (s *Store) GetSource(projectID, sourceID string) (*SourceRecord, error) {
	sources, err := s.ListSources(projectID)
	if err != nil {
		return nil, err
	}
	for i := range sources {
		if sources[i].ID == sourceID {
			return &sources[i], nil
		}
	}
	return nil, ferrors.Newf(ferrors.CodeNoSource, "source %q not found in project %q", sourceID, projectID)
}

// UpdateSourceStatus appends a full record with the new status. The ledger
// stays append-only; the compacted view reflects the latest write.
func (s *Store) UpdateSourceStatus(projectID, sourceID string, status SourceStatus, lastError string, chunkCount int) error {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	sources, err := s.listSourcesLocked(projectID)
	if err != nil {
		return err
	}
	for _, rec := range sources {
		if rec.ID != sourceID {
			continue
		}
		rec.Status = status
		rec.LastError = lastError
		if chunkCount >= 0 {
			rec.ChunkCount = chunkCount
		}
		rec.UpdatedAt = time.Now().UTC()
		if err := appendJSONL(s.sourcesFile(projectID), []SourceRecord{rec}); err != nil {
			return ferrors.Wrap(ferrors.CodeDbError, err)
		}
		return nil
	}
	return ferrors.Newf(ferrors.CodeNoSource, "source %q not found in project %q", sourceID, projectID)
}

// RemoveSource drops a source from the ledger. With cascade, the chunk and
// vector logs are rewritten omitting the source's records; without it the
// derived records are left behind (and reported as orphans by stats).
func (s *Store) RemoveSource(projectID, sourceID string, cascade bool) error {
	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	sources, err := s.listSourcesLocked(projectID)
	if err != nil {
		return err
	}
	kept := make([]SourceRecord, 0, len(sources))
	found := false
	for _, rec := range sources {
		if rec.ID == sourceID {
			found = true
			continue
		}
		kept = append(kept, rec)
	}
	if !found {
		return ferrors.Newf(ferrors.CodeNoSource, "source %q not found in project %q", sourceID, projectID)
	}

	if err := rewriteJSONL(s.sourcesFile(projectID), kept); err != nil {
		return ferrors.Wrap(ferrors.CodeDbError, err)
	}

	if cascade {
		if err := s.dropSourceRecordsLocked(projectID, sourceID); err != nil {
			return err
		}
	}
	s.logger.Info("source removed", "project_id", projectID, "source_id", sourceID, "cascade", cascade)
	return nil
}

// dropSourceRecordsLocked rewrites both logs without the source's chunks and
// their vectors.
func (s *Store) dropSourceRecordsLocked(projectID, sourceID string) error {
	chunks, err := readJSONL[chunk.Chunk](s.ChunksFile(projectID), 0)
	if err != nil {
		return ferrors.Wrap(ferrors.CodeDbError, err)
	}

	dropped := make(map[string]bool)
	kept := make([]chunk.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if c.SourceID == sourceID {
			dropped[c.ID] = true
			continue
		}
		kept = append(kept, c)
	}
	if err := rewriteJSONL(s.ChunksFile(projectID), kept); err != nil {
		return ferrors.Wrap(ferrors.CodeDbError, err)
	}

	vectors, err := readJSONL[embed.EmbeddingRecord](s.VectorsFile(projectID), 0)
	if err != nil {
		return ferrors.Wrap(ferrors.CodeDbError, err)
	}
	keptVecs := make([]embed.EmbeddingRecord, 0, len(vectors))
	for _, v := range vectors {
		if dropped[v.ChunkID] {
			continue
		}
		keptVecs = append(keptVecs, v)
	}
	if err := rewriteJSONL(s.VectorsFile(projectID), keptVecs); err != nil {
		return ferrors.Wrap(ferrors.CodeDbError, err)
	}
	return nil
}
