package workspace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
)

// runStageDirs are the fixed stage directories of a run workspace.
var runStageDirs = []string{"raw", "extracted", "normalized", "indexed", "served", "logs"}

// RunManifest is the manifest.json at a run workspace root.
type RunManifest struct {
	RunID       string          `json:"run_id"`
	ProjectID   string          `json:"project_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Status      ProjectStatus   `json:"status"`
	Phases      []PhaseManifest `json:"phases,omitempty"`
}

// RunManager owns the runs base directory, mirroring the project layout for
// the fine-grained pipeline workflow.
type RunManager struct {
	base string
}

// NewRunManager creates the runs base directory if needed.
func NewRunManager(base string) (*RunManager, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}
	return &RunManager{base: base}, nil
}

// Base returns the runs base directory.
func (m *RunManager) Base() string { return m.base }

// RunDir returns the directory for a run id.
func (m *RunManager) RunDir(runID string) string { return filepath.Join(m.base, runID) }

// StageDir returns one stage directory inside a run.
func (m *RunManager) StageDir(runID, stage string) string {
	return filepath.Join(m.base, runID, stage)
}

// CreateRun allocates a time-ordered run id, creates the stage directories,
// and writes the initial manifest and frozen config.
func (m *RunManager) CreateRun(projectID string, config any) (*RunManifest, error) {
	runID := NewRunID()
	dir := m.RunDir(runID)
	for _, stage := range runStageDirs {
		if err := os.MkdirAll(filepath.Join(dir, stage), 0o755); err != nil {
			return nil, ferrors.Wrap(ferrors.CodeDbError, err)
		}
	}

	manifest := &RunManifest{
		RunID:     runID,
		ProjectID: projectID,
		CreatedAt: time.Now().UTC(),
		Status:    ProjectRunning,
	}
	if err := writeJSONAtomic(filepath.Join(dir, "manifest.json"), manifest); err != nil {
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}
	if config != nil {
		if err := writeJSONAtomic(filepath.Join(dir, "config.json"), config); err != nil {
			return nil, ferrors.Wrap(ferrors.CodeDbError, err)
		}
	}
	return manifest, nil
}

// LoadRun reads a run manifest.
func (m *RunManager) LoadRun(runID string) (*RunManifest, error) {
	data, err := os.ReadFile(filepath.Join(m.RunDir(runID), "manifest.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.Newf(ferrors.CodeRunNotFound, "run %q not found", runID)
		}
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}
	var manifest RunManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, ferrors.Wrapf(ferrors.CodeDbError, err, "corrupt run manifest %q", runID)
	}
	return &manifest, nil
}

// UpdateRun applies mutate and persists the manifest atomically.
func (m *RunManager) UpdateRun(runID string, mutate func(*RunManifest) error) (*RunManifest, error) {
	manifest, err := m.LoadRun(runID)
	if err != nil {
		return nil, err
	}
	if err := mutate(manifest); err != nil {
		return nil, err
	}
	if err := writeJSONAtomic(filepath.Join(m.RunDir(runID), "manifest.json"), manifest); err != nil {
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}
	return manifest, nil
}

// ListRuns returns all run manifests, newest first. UUIDv7 ids sort by
// creation time, so the directory listing is the timeline.
func (m *RunManager) ListRuns() ([]*RunManifest, error) {
	entries, err := os.ReadDir(m.base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	var runs []*RunManifest
	for _, name := range names {
		manifest, err := m.LoadRun(name)
		if err != nil {
			continue
		}
		runs = append(runs, manifest)
	}
	return runs, nil
}
