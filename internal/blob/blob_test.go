package blob

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
)

func TestWrite_ContentAddressed(t *testing.T) {
	s, err := NewStore(t.TempDir(), 0)
	require.NoError(t, err)

	data := []byte("<html><body>hello</body></html>")
	art, err := s.Write("https://example.com/page", data, "text/html; charset=utf-8", false)
	require.NoError(t, err)

	assert.Equal(t, Hash(data), art.Hash)
	assert.False(t, art.Skipped)
	assert.True(t, strings.HasSuffix(art.Path, art.Hash+".html"))

	stored, err := os.ReadFile(art.Path)
	require.NoError(t, err)
	assert.Equal(t, data, stored)

	entries, err := s.Manifest()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "https://example.com/page", entries[0].URI)
	assert.Equal(t, art.Hash, entries[0].Hash)
}

func TestWrite_IdempotentSkip(t *testing.T) {
	s, err := NewStore(t.TempDir(), 0)
	require.NoError(t, err)

	data := []byte("same bytes")
	first, err := s.Write("https://example.com/a", data, "text/plain", false)
	require.NoError(t, err)
	second, err := s.Write("https://example.com/a", data, "text/plain", false)
	require.NoError(t, err)

	assert.False(t, first.Skipped)
	assert.True(t, second.Skipped)
	assert.Equal(t, first.Path, second.Path)

	// Skipped writes append no manifest line.
	entries, err := s.Manifest()
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// force re-records the fetch.
	forced, err := s.Write("https://example.com/a", data, "text/plain", true)
	require.NoError(t, err)
	assert.False(t, forced.Skipped)
	entries, err = s.Manifest()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestWrite_FileTooLarge(t *testing.T) {
	s, err := NewStore(t.TempDir(), 10)
	require.NoError(t, err)

	_, err = s.Write("https://example.com/big", []byte("0123456789abc"), "text/plain", false)
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeFileTooLarge))
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".html", Extension("text/html; charset=utf-8", "https://x/page"))
	assert.Equal(t, ".pdf", Extension("application/pdf", "file"))
	assert.Equal(t, ".md", Extension("", "/docs/readme.md"))
	assert.Equal(t, ".bin", Extension("application/x-mystery", "no-extension"))
}

func TestManifest_TolerateTornLine(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, 0)
	require.NoError(t, err)

	_, err = s.Write("https://example.com/a", []byte("aa"), "text/plain", false)
	require.NoError(t, err)

	f, err := os.OpenFile(filepath.Join(dir, manifestName), os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"uri":"https://example.com/torn`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, err := s.Manifest()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
