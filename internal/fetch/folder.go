package fetch

import (
	"io/fs"
	"mime"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/blob"
	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
)

// FolderOptions control a filesystem walk.
type FolderOptions struct {
	Glob    string   // filename pattern, e.g. "*.md"; empty matches all
	Exclude []string // path substrings to skip
	MaxSize int64    // per-file byte cap; 0 means no extra cap
	Force   bool
}

// FolderResult pairs one file with its artifact or error, in sorted path
// order.
type FolderResult struct {
	Path     string
	Artifact *blob.Artifact
	Err      error
}

// FetchFolder walks root, collects matching files in lexicographic order,
// and stores each one. A .gitignore at the root is honored. Per-file
// failures land in the result slice.
func (f *Fetcher) FetchFolder(root string, opts FolderOptions) ([]FolderResult, error) {
	ignore := loadIgnoreFile(root)
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		if d.IsDir() {
			if ignore.Match(rel, true) || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if ignore.Match(rel, false) || d.Name() == ".gitignore" {
			return nil
		}
		if opts.Glob != "" {
			ok, matchErr := filepath.Match(opts.Glob, d.Name())
			if matchErr != nil {
				return ferrors.Wrapf(ferrors.CodeInvalidInput, matchErr, "invalid glob %q", opts.Glob)
			}
			if !ok {
				return nil
			}
		}
		// Excludes match the root-relative path, not the absolute one.
		for _, ex := range opts.Exclude {
			if ex != "" && strings.Contains(rel, ex) {
				return nil
			}
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		if _, ok := err.(*ferrors.FoundryError); ok {
			return nil, err
		}
		return nil, ferrors.Wrapf(ferrors.CodeFetchFailed, err, "walking %s", root).
			WithRecoverable(false)
	}
	sort.Strings(paths)

	results := make([]FolderResult, 0, len(paths))
	for _, path := range paths {
		results = append(results, f.fetchFile(path, opts))
	}
	f.logger.Info("folder scanned", "root", root, "files", len(results))
	return results, nil
}

func (f *Fetcher) fetchFile(path string, opts FolderOptions) FolderResult {
	data, err := f.readLocal(path)
	if err != nil {
		return FolderResult{Path: path, Err: err}
	}
	if opts.MaxSize > 0 && int64(len(data)) > opts.MaxSize {
		return FolderResult{Path: path, Err: ferrors.Newf(ferrors.CodeFileTooLarge,
			"%s is %d bytes, limit is %d", path, len(data), opts.MaxSize)}
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	art, err := f.blobs.Write(path, data, contentType, opts.Force)
	return FolderResult{Path: path, Artifact: art, Err: err}
}
