package workspace

import (
	"path/filepath"

	"github.com/gofrs/flock"

	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
)

// BuildLease is the advisory per-project file lock held for the duration of
// a build. At most one build runs per project across processes.
type BuildLease struct {
	projectID string
	lock      *flock.Flock
}

// AcquireBuildLease takes the project's build lock without blocking. A held
// lock fails with BuildFailed and details.reason="locked".
func (s *Store) AcquireBuildLease(projectID string) (*BuildLease, error) {
	if _, err := s.LoadProject(projectID); err != nil {
		return nil, err
	}

	lock := flock.New(filepath.Join(s.ProjectDir(projectID), ".build.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}
	if !ok {
		return nil, ferrors.Newf(ferrors.CodeBuildFailed,
			"a build is already running for project %q", projectID).
			WithDetail("reason", "locked").
			WithSuggestion("wait for the running build or check for a stale process")
	}
	return &BuildLease{projectID: projectID, lock: lock}, nil
}

// Release drops the lease. Safe to call once after a build returns.
func (l *BuildLease) Release() error {
	return l.lock.Unlock()
}
