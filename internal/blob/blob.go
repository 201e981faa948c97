// Package blob is the content-address store for raw fetched bytes. Blobs
// live under raw/<sha256><ext>; every write is recorded in a fetch ledger at
// raw/raw_manifest.jsonl.
package blob

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
)

// DefaultMaxBytes caps a single blob at 100 MiB.
const DefaultMaxBytes = 100 << 20

// manifestName is the fetch ledger file inside the store directory.
const manifestName = "raw_manifest.jsonl"

// mimeExtensions maps content types to blob extensions. Unknown types fall
// back to the source's own extension, then .bin.
var mimeExtensions = map[string]string{
	"text/html":                ".html",
	"application/xhtml+xml":    ".html",
	"text/plain":               ".txt",
	"text/markdown":            ".md",
	"text/csv":                 ".csv",
	"application/json":         ".json",
	"application/xml":          ".xml",
	"text/xml":                 ".xml",
	"application/pdf":          ".pdf",
	"application/octet-stream": ".bin",
}

// ManifestEntry is one line of raw_manifest.jsonl.
type ManifestEntry struct {
	URI         string    `json:"uri"`
	Hash        string    `json:"hash"`
	Bytes       int       `json:"bytes"`
	ContentType string    `json:"content_type,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Artifact describes a stored blob.
type Artifact struct {
	Hash        string `json:"hash"`
	Path        string `json:"path"`
	Bytes       int    `json:"bytes"`
	ContentType string `json:"content_type,omitempty"`
	URI         string `json:"uri"`
	Skipped     bool   `json:"skipped"`
}

// Store writes blobs into one raw/ directory.
type Store struct {
	dir      string
	maxBytes int
}

// NewStore creates the directory if needed. maxBytes <= 0 uses the default
// cap.
func NewStore(dir string, maxBytes int) (*Store, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}
	return &Store{dir: dir, maxBytes: maxBytes}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// Hash returns the lowercase hex SHA-256 of data. It doubles as the doc_id
// of everything derived from the blob.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Extension picks the blob extension: content type first, then the source
// URI's own extension, then .bin.
func Extension(contentType, uri string) string {
	ct := contentType
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.TrimSpace(strings.ToLower(ct))
	if ext, ok := mimeExtensions[ct]; ok {
		return ext
	}
	if ext := strings.ToLower(filepath.Ext(uri)); ext != "" && len(ext) <= 8 {
		return ext
	}
	return ".bin"
}

// Write stores data under its content hash. Writing is idempotent: when the
// blob already exists and force is false, the existing artifact is returned
// with Skipped set and no manifest line is appended. Oversized blobs fail
// with FileTooLarge.
func (s *Store) Write(uri string, data []byte, contentType string, force bool) (*Artifact, error) {
	if len(data) > s.maxBytes {
		return nil, ferrors.Newf(ferrors.CodeFileTooLarge,
			"%s is %d bytes, limit is %d", uri, len(data), s.maxBytes).
			WithDetail("uri", uri).
			WithSuggestion("raise max_blob_bytes or exclude the source")
	}

	hash := Hash(data)
	path := filepath.Join(s.dir, hash+Extension(contentType, uri))

	if _, err := os.Stat(path); err == nil && !force {
		return &Artifact{
			Hash:        hash,
			Path:        path,
			Bytes:       len(data),
			ContentType: contentType,
			URI:         uri,
			Skipped:     true,
		}, nil
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}

	entry := ManifestEntry{
		URI:         uri,
		Hash:        hash,
		Bytes:       len(data),
		ContentType: contentType,
		FetchedAt:   time.Now().UTC(),
	}
	if err := s.appendManifest(entry); err != nil {
		return nil, err
	}

	return &Artifact{
		Hash:        hash,
		Path:        path,
		Bytes:       len(data),
		ContentType: contentType,
		URI:         uri,
	}, nil
}

// Read loads a blob by its manifest path.
func (s *Store) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}
	return data, nil
}

// Manifest reads the fetch ledger, tolerating a torn trailing line.
func (s *Store) Manifest() ([]ManifestEntry, error) {
	f, err := os.Open(filepath.Join(s.dir, manifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}
	defer f.Close()

	var entries []ManifestEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var e ManifestEntry
		if err := json.Unmarshal(line, &e); err != nil {
			break
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, ferrors.Wrap(ferrors.CodeDbError, err)
	}
	return entries, nil
}

func (s *Store) appendManifest(entry ManifestEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return ferrors.Wrap(ferrors.CodeDbError, err)
	}
	f, err := os.OpenFile(filepath.Join(s.dir, manifestName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return ferrors.Wrap(ferrors.CodeDbError, err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return ferrors.Wrap(ferrors.CodeDbError, err)
	}
	return f.Sync()
}
