package workspace

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/chunk"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/embed"
	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
)

// Store manages all projects under a base directory. A process holds one
// Store; per-project mutations serialize on an in-process lock, and builds
// additionally take a cross-process file lease (see lease.go).
type Store struct {
	base   string
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates the base directory if needed and returns a store.
func NewStore(base string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}
	return &Store{base: base, logger: logger, locks: make(map[string]*sync.Mutex)}, nil
}

// Base returns the projects base directory.
func (s *Store) Base() string { return s.base }

// Path helpers. The layout is fixed for cross-tool compatibility.

func (s *Store) ProjectDir(id string) string { return filepath.Join(s.base, id) }

func (s *Store) projectFile(id string) string {
	return filepath.Join(s.ProjectDir(id), "project.json")
}

func (s *Store) sourcesFile(id string) string {
	return filepath.Join(s.ProjectDir(id), "sources.jsonl")
}

// ChunksFile returns the chunk log path for a project.
func (s *Store) ChunksFile(id string) string {
	return filepath.Join(s.ProjectDir(id), "data", "chunks.jsonl")
}

// VectorsFile returns the vector log path for a project.
func (s *Store) VectorsFile(id string) string {
	return filepath.Join(s.ProjectDir(id), "data", "vectors.jsonl")
}

func (s *Store) checkpointDir(id string) string {
	return filepath.Join(s.ProjectDir(id), "data", "checkpoints")
}

// RawDir returns the content-address blob directory for a project.
func (s *Store) RawDir(id string) string {
	return filepath.Join(s.ProjectDir(id), "raw")
}

// projectLock returns the in-process mutex for a project id.
func (s *Store) projectLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// CreateProject initialises a project directory and manifest. The slug must
// match [a-z0-9][a-z0-9-]* and be unused.
func (s *Store) CreateProject(id, description string, model embed.ModelDescriptor, chunking chunk.Config) (*Project, error) {
	if !ValidProjectID(id) {
		return nil, ferrors.Newf(ferrors.CodeInvalidInput,
			"invalid project id %q", id).
			WithSuggestion("use lowercase letters, digits, and hyphens; max 64 chars")
	}
	chunking.ApplyDefaults()
	if err := chunking.Validate(); err != nil {
		return nil, ferrors.Wrap(ferrors.CodeInvalidInput, err)
	}

	lock := s.projectLock(id)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(s.projectFile(id)); err == nil {
		return nil, ferrors.Newf(ferrors.CodeProjectExists, "project %q already exists", id)
	}

	now := time.Now().UTC()
	p := &Project{
		ID:          id,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
		Status:      ProjectIdle,
		Model:       model,
		Chunking:    chunking,
		ConfigHash:  ConfigHash(model, chunking),
	}

	for _, dir := range []string{
		filepath.Join(s.ProjectDir(id), "data"),
		s.checkpointDir(id),
		s.RawDir(id),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, ferrors.Wrap(ferrors.CodeDbError, err)
		}
	}
	if err := writeJSONAtomic(s.projectFile(id), p); err != nil {
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}

	s.logger.Info("project created", "project_id", id, "model", model.String())
	return p, nil
}

// LoadProject reads project.json.
func (s *Store) LoadProject(id string) (*Project, error) {
	data, err := os.ReadFile(s.projectFile(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.Newf(ferrors.CodeProjectNotFound, "project %q not found", id)
		}
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}
	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, ferrors.Wrapf(ferrors.CodeDbError, err, "corrupt project.json for %q", id)
	}
	return &p, nil
}

// UpdateProject applies mutate under the project lock and persists the
// result atomically. The mutator sees the freshly loaded manifest.
func (s *Store) UpdateProject(id string, mutate func(*Project) error) (*Project, error) {
	lock := s.projectLock(id)
	lock.Lock()
	defer lock.Unlock()

	p, err := s.LoadProject(id)
	if err != nil {
		return nil, err
	}
	if err := mutate(p); err != nil {
		return nil, err
	}
	p.UpdatedAt = time.Now().UTC()
	if err := writeJSONAtomic(s.projectFile(id), p); err != nil {
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}
	return p, nil
}

// DeleteProject removes a project and everything under it. Destructive:
// requires confirm=true or fails with NotConfirmed.
func (s *Store) DeleteProject(id string, confirm bool) error {
	if !confirm {
		return ferrors.Newf(ferrors.CodeNotConfirmed,
			"deleting project %q removes all chunks and vectors", id).
			WithSuggestion("pass confirm=true to proceed")
	}

	lock := s.projectLock(id)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(s.projectFile(id)); os.IsNotExist(err) {
		return ferrors.Newf(ferrors.CodeProjectNotFound, "project %q not found", id)
	}
	if err := os.RemoveAll(s.ProjectDir(id)); err != nil {
		return ferrors.Wrap(ferrors.CodeDbError, err)
	}
	s.logger.Info("project deleted", "project_id", id)
	return nil
}

// ListProjects returns all project manifests sorted by id. Directories
// without a readable project.json are skipped.
func (s *Store) ListProjects() ([]*Project, error) {
	entries, err := os.ReadDir(s.base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}

	var projects []*Project
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p, err := s.LoadProject(e.Name())
		if err != nil {
			continue
		}
		projects = append(projects, p)
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].ID < projects[j].ID })
	return projects, nil
}
