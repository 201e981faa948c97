package workspace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
)

// SaveCheckpoint writes latest.json atomically and archives a copy under the
// checkpoint's own id. Checkpoint ids are time-ordered, so the archive sorts
// by creation time. A failed write is fatal to the build.
func (s *Store) SaveCheckpoint(ckpt *Checkpoint) error {
	if ckpt.ID == "" {
		ckpt.ID = NewCheckpointID()
	}
	if ckpt.CreatedAt.IsZero() {
		ckpt.CreatedAt = time.Now().UTC()
	}

	dir := s.checkpointDir(ckpt.ProjectID)
	if err := writeJSONAtomic(filepath.Join(dir, "latest.json"), ckpt); err != nil {
		return ferrors.Wrap(ferrors.CodeCheckpointWriteFailed, err).
			WithDetail("project_id", ckpt.ProjectID)
	}
	if err := writeJSONAtomic(filepath.Join(dir, ckpt.ID+".json"), ckpt); err != nil {
		return ferrors.Wrap(ferrors.CodeCheckpointWriteFailed, err).
			WithDetail("project_id", ckpt.ProjectID).
			WithDetail("checkpoint_id", ckpt.ID)
	}
	s.logger.Debug("checkpoint saved",
		"project_id", ckpt.ProjectID,
		"checkpoint_id", ckpt.ID,
		"completed_sources", len(ckpt.CompletedSourceIDs))
	return nil
}

// LoadLatestCheckpoint returns the current checkpoint, or nil when the
// project is idle.
func (s *Store) LoadLatestCheckpoint(projectID string) (*Checkpoint, error) {
	data, err := os.ReadFile(filepath.Join(s.checkpointDir(projectID), "latest.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}
	var ckpt Checkpoint
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return nil, ferrors.Wrapf(ferrors.CodeDbError, err, "corrupt checkpoint for %q", projectID)
	}
	return &ckpt, nil
}

// LoadCheckpoint returns an archived checkpoint by id.
func (s *Store) LoadCheckpoint(projectID, checkpointID string) (*Checkpoint, error) {
	data, err := os.ReadFile(filepath.Join(s.checkpointDir(projectID), checkpointID+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.Newf(ferrors.CodeInvalidInput,
				"checkpoint %q not found for project %q", checkpointID, projectID)
		}
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}
	var ckpt Checkpoint
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return nil, ferrors.Wrapf(ferrors.CodeDbError, err, "corrupt checkpoint %q", checkpointID)
	}
	return &ckpt, nil
}

// ClearCheckpoint removes latest.json after a build finishes with nothing
// pending. The archive copies remain for audit.
func (s *Store) ClearCheckpoint(projectID string) error {
	err := os.Remove(filepath.Join(s.checkpointDir(projectID), "latest.json"))
	if err != nil && !os.IsNotExist(err) {
		return ferrors.Wrap(ferrors.CodeDbError, err)
	}
	return nil
}
