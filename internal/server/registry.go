package server

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/workspace"
)

// DrainTimeout bounds how long Stop waits for in-flight requests.
const DrainTimeout = 15 * time.Second

// Registry tracks the running servers of this process, one per project.
type Registry struct {
	mu      sync.Mutex
	servers map[string]*Server
	logger  *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{servers: make(map[string]*Server), logger: logger}
}

// Start loads a project snapshot, binds its listener, and serves in the
// background. A second start for the same project fails with
// AlreadyRunning.
func (r *Registry) Start(store *workspace.Store, projectID string, opts Options) (*Server, error) {
	r.mu.Lock()
	if _, ok := r.servers[projectID]; ok {
		r.mu.Unlock()
		return nil, ferrors.Newf(ferrors.CodeAlreadyRunning,
			"project %q is already being served", projectID).
			WithSuggestion("stop the running server first")
	}
	// Reserve the slot while the snapshot loads.
	r.servers[projectID] = nil
	r.mu.Unlock()

	srv, err := New(store, projectID, opts)
	if err != nil {
		r.remove(projectID)
		return nil, err
	}
	ln, err := net.Listen("tcp", srv.Addr())
	if err != nil {
		r.remove(projectID)
		return nil, ferrors.Wrap(ferrors.CodeServeFailed, err)
	}

	r.mu.Lock()
	r.servers[projectID] = srv
	r.mu.Unlock()
	r.logger.Info("search server started",
		"project_id", projectID, "addr", ln.Addr().String())

	go func() {
		if err := srv.Serve(ln); err != nil {
			r.logger.Error("server exited", "project_id", projectID, "error", err.Error())
		}
		r.remove(projectID)
	}()
	return srv, nil
}

// Stop drains and closes a project's server. Unknown project fails with
// NotRunning.
func (r *Registry) Stop(ctx context.Context, projectID string) error {
	r.mu.Lock()
	srv, ok := r.servers[projectID]
	r.mu.Unlock()
	if !ok || srv == nil {
		return ferrors.Newf(ferrors.CodeNotRunning,
			"project %q is not being served", projectID)
	}

	drainCtx, cancel := context.WithTimeout(ctx, DrainTimeout)
	defer cancel()
	err := srv.Shutdown(drainCtx)
	r.remove(projectID)
	return err
}

// StopAll shuts every server down, for process exit.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.servers))
	for id := range r.servers {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		if err := r.Stop(ctx, id); err != nil {
			r.logger.Warn("shutdown failed", "project_id", id, "error", err.Error())
		}
	}
}

// Running lists the served project ids.
func (r *Registry) Running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.servers))
	for id, srv := range r.servers {
		if srv != nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *Registry) remove(projectID string) {
	r.mu.Lock()
	delete(r.servers, projectID)
	r.mu.Unlock()
}
