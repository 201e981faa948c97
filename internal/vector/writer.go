// Package vector maintains the vector log and its sidecar manifest. The
// local backend is the vectors.jsonl file the retriever loads directly;
// remote backends are named in the manifest only and written by external
// tools.
package vector

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/embed"
	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/workspace"
)

// manifestName is the sidecar file next to vectors.jsonl.
const manifestName = "vector_manifest.json"

// Manifest describes the vector collection.
type Manifest struct {
	Collection     string                `json:"collection"`
	Namespace      string                `json:"namespace,omitempty"`
	Backend        string                `json:"backend"`
	Model          embed.ModelDescriptor `json:"model"`
	Dimension      int                   `json:"dimension"`
	MetadataSchema map[string]string     `json:"metadata_schema,omitempty"`
	Count          int                   `json:"count"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// Writer appends embedding records for one project and keeps the manifest
// count in step with the log.
type Writer struct {
	store     *workspace.Store
	projectID string
}

// NewWriter returns a writer for the project's vector log.
func NewWriter(store *workspace.Store, projectID string) *Writer {
	return &Writer{store: store, projectID: projectID}
}

func (w *Writer) manifestPath() string {
	return filepath.Join(w.store.ProjectDir(w.projectID), "data", manifestName)
}

// Append writes records to the log, then updates the sidecar manifest with
// the new count and the dimension observed on the first record.
func (w *Writer) Append(records []embed.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := w.store.AppendVectors(w.projectID, records); err != nil {
		return err
	}

	m, err := w.Manifest()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if m == nil {
		m = &Manifest{
			Collection: w.projectID,
			Backend:    "local",
			Model:      records[0].Model,
			CreatedAt:  now,
		}
	}
	if m.Dimension == 0 {
		m.Dimension = len(records[0].Vector)
	}
	m.Count += len(records)
	m.UpdatedAt = now

	return w.writeManifest(m)
}

// Recount rebuilds the manifest count from the log. RemoveSource cascades
// and force rebuilds call this after rewriting the log.
func (w *Writer) Recount() error {
	records, err := w.store.ReadVectors(w.projectID, workspace.Snapshot{})
	if err != nil {
		return err
	}
	m, err := w.Manifest()
	if err != nil {
		return err
	}
	if m == nil {
		if len(records) == 0 {
			return nil
		}
		m = &Manifest{
			Collection: w.projectID,
			Backend:    "local",
			Model:      records[0].Model,
			CreatedAt:  time.Now().UTC(),
		}
		if len(records[0].Vector) > 0 {
			m.Dimension = len(records[0].Vector)
		}
	}
	m.Count = len(records)
	m.UpdatedAt = time.Now().UTC()
	return w.writeManifest(m)
}

// Manifest loads the sidecar, nil when it does not exist yet.
func (w *Writer) Manifest() (*Manifest, error) {
	data, err := os.ReadFile(w.manifestPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, ferrors.Wrapf(ferrors.CodeDbError, err, "corrupt %s", manifestName)
	}
	return &m, nil
}

func (w *Writer) writeManifest(m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return ferrors.Wrap(ferrors.CodeDbError, err)
	}
	tmp := w.manifestPath() + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return ferrors.Wrap(ferrors.CodeDbError, err)
	}
	if err := os.Rename(tmp, w.manifestPath()); err != nil {
		os.Remove(tmp)
		return ferrors.Wrap(ferrors.CodeDbError, err)
	}
	return nil
}
