// Package watch keeps a project's index current while its folder sources
// change on disk. File events are debounced into batches; each batch
// triggers one incremental build, which content addressing keeps cheap:
// unchanged files produce the same chunk ids and re-embedding is skipped.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/build"
	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/workspace"
)

// DefaultDebounce is the coalescing window for file events.
const DefaultDebounce = 500 * time.Millisecond

// Options configure a watcher.
type Options struct {
	// Debounce overrides the coalescing window.
	Debounce time.Duration

	// Builder runs the rebuilds. Required unless OnBatch is set.
	Builder *build.Builder

	// BuildOptions are passed to every triggered build.
	BuildOptions build.Options

	// OnBatch overrides the rebuild action, for composition and tests.
	OnBatch func(ctx context.Context, events []Event) error

	Logger *slog.Logger
}

// Watcher rebuilds one project when its folder sources change.
type Watcher struct {
	projectID string
	store     *workspace.Store
	opts      Options
	fsw       *fsnotify.Watcher
	debounce  *Debouncer
	roots     map[string]string // watched root -> source id
	logger    *slog.Logger
}

// New resolves the project's folder sources and registers their directory
// trees. A project with no folder sources fails with NoSource.
func New(store *workspace.Store, projectID string, opts Options) (*Watcher, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.OnBatch == nil && opts.Builder == nil {
		return nil, ferrors.New(ferrors.CodeInvalidInput, "watch requires a builder")
	}

	sources, err := store.ListSources(projectID)
	if err != nil {
		return nil, err
	}
	roots := make(map[string]string)
	for _, src := range sources {
		if src.Type != workspace.SourceFolder {
			continue
		}
		abs, err := filepath.Abs(src.URI)
		if err != nil {
			continue
		}
		roots[abs] = src.ID
	}
	if len(roots) == 0 {
		return nil, ferrors.Newf(ferrors.CodeNoSource,
			"project %q has no folder sources to watch", projectID).
			WithSuggestion("add a folder source first")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeServeFailed, err)
	}

	w := &Watcher{
		projectID: projectID,
		store:     store,
		opts:      opts,
		fsw:       fsw,
		debounce:  NewDebouncer(opts.Debounce),
		roots:     roots,
		logger:    opts.Logger,
	}
	for root := range roots {
		if err := w.addTree(root); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// addTree registers a directory and every subdirectory below it.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return ferrors.Wrapf(ferrors.CodeFetchFailed, err, "cannot watch %s", path)
		}
		if !d.IsDir() {
			return nil
		}
		if hidden(d.Name()) && path != root {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "."
}

// Run blocks, translating file events into debounced rebuilds, until the
// context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	defer w.debounce.Stop()

	w.logger.Info("watching folder sources",
		"project_id", w.projectID,
		"roots", len(w.roots),
		"debounce", w.opts.Debounce.String())

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleFSEvent(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err.Error())

		case batch, ok := <-w.debounce.Batches():
			if !ok {
				return nil
			}
			if err := w.rebuild(ctx, batch); err != nil {
				if ferrors.IsFatal(err) {
					return err
				}
				w.logger.Warn("rebuild failed",
					"project_id", w.projectID, "error", err.Error())
			}
		}
	}
}

func (w *Watcher) handleFSEvent(ev fsnotify.Event) {
	sourceID, ok := w.sourceFor(ev.Name)
	if !ok || hidden(filepath.Base(ev.Name)) {
		return
	}

	// New directories join the watch set so files created inside them are
	// seen.
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("cannot watch new directory",
					"path", ev.Name, "error", err.Error())
			}
		}
	}

	op, relevant := mapOp(ev.Op)
	if !relevant {
		return
	}
	w.debounce.Add(Event{
		SourceID: sourceID,
		Path:     ev.Name,
		Op:       op,
		At:       time.Now(),
	})
}

// sourceFor maps an event path back to the folder source containing it.
func (w *Watcher) sourceFor(path string) (string, bool) {
	for root, id := range w.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return id, true
		}
	}
	return "", false
}

func mapOp(op fsnotify.Op) (Op, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Write):
		return OpModify, true
	case op.Has(fsnotify.Remove):
		return OpDelete, true
	case op.Has(fsnotify.Rename):
		return OpRename, true
	default:
		// Chmod alone never changes content.
		return 0, false
	}
}

// rebuild marks the touched sources pending and runs one build.
func (w *Watcher) rebuild(ctx context.Context, events []Event) error {
	touched := make(map[string]bool)
	for _, ev := range events {
		touched[ev.SourceID] = true
	}
	w.logger.Info("changes detected",
		"project_id", w.projectID,
		"events", len(events),
		"sources", len(touched))

	if w.opts.OnBatch != nil {
		return w.opts.OnBatch(ctx, events)
	}

	for id := range touched {
		if err := w.store.UpdateSourceStatus(w.projectID, id, workspace.StatusPending, "", 0); err != nil {
			return err
		}
	}
	result, err := w.opts.Builder.Run(ctx, build.Request{
		ProjectID: w.projectID,
		Options:   w.opts.BuildOptions,
	})
	if err != nil {
		return err
	}
	w.logger.Info("rebuild finished",
		"project_id", w.projectID,
		"chunks_added", result.ChunksAdded,
		"vectors_added", result.VectorsAdded,
		"errors", len(result.Errors))
	return nil
}
