package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/blob"
	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
)

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()
	blobs, err := blob.NewStore(t.TempDir(), 0)
	require.NoError(t, err)
	return New(blobs, nil, nil)
}

func TestFetchURL_StoresBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html>ok</html>")
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	art, err := f.FetchURL(context.Background(), srv.URL+"/page", URLOptions{})
	require.NoError(t, err)
	assert.False(t, art.Skipped)

	data, err := f.blobs.Read(art.Path)
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", string(data))

	// Same bytes again: skipped, idempotent.
	again, err := f.FetchURL(context.Background(), srv.URL+"/page", URLOptions{})
	require.NoError(t, err)
	assert.True(t, again.Skipped)
}

func TestFetchURL_StatusErrors(t *testing.T) {
	status := http.StatusNotFound
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()
	f := newTestFetcher(t)

	_, err := f.FetchURL(context.Background(), srv.URL, URLOptions{})
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeFetchFailed))
	assert.False(t, ferrors.IsRecoverable(err))

	status = http.StatusServiceUnavailable
	_, err = f.FetchURL(context.Background(), srv.URL, URLOptions{})
	assert.True(t, ferrors.IsRecoverable(err))

	status = http.StatusTooManyRequests
	_, err = f.FetchURL(context.Background(), srv.URL, URLOptions{})
	assert.True(t, ferrors.IsRecoverable(err))
}

func TestFetchURL_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()
	f := newTestFetcher(t)

	_, err := f.FetchURL(context.Background(), srv.URL, URLOptions{Timeout: 30 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeFetchTimeout))
	assert.True(t, ferrors.IsRecoverable(err))
}

func TestFetchURL_DomainGating(t *testing.T) {
	f := newTestFetcher(t)

	// Allowlist requires exact hostname match.
	_, err := f.FetchURL(context.Background(), "https://evil.test/x", URLOptions{
		AllowDomains: []string{"docs.example.com"},
	})
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeDomainBlocked))

	// Blocklist pre-empts the allowlist.
	_, err = f.FetchURL(context.Background(), "https://docs.example.com/x", URLOptions{
		AllowDomains: []string{"docs.example.com"},
		BlockDomains: []string{"docs.example.com"},
	})
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeDomainBlocked))
}

func sitemapBody(host string, paths []string) string {
	body := `<?xml version="1.0" encoding="UTF-8"?><urlset>`
	for _, p := range paths {
		body += "<url><loc>http://" + host + p + "</loc></url>"
	}
	return body + "</urlset>"
}

func TestFetchSitemap_SortedFilteredCapped(t *testing.T) {
	var pageHits int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sitemap.xml" {
			u, _ := url.Parse(srv.URL)
			// Deliberately unsorted, with one URL the exclude filter drops.
			fmt.Fprint(w, sitemapBody(u.Host, []string{"/b", "/a", "/skip-me", "/c"}))
			return
		}
		atomic.AddInt32(&pageHits, 1)
		fmt.Fprint(w, "page: "+r.URL.Path)
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	results, err := f.FetchSitemap(context.Background(), srv.URL+"/sitemap.xml", SitemapOptions{
		Exclude:     []string{"skip-me"},
		MaxPages:    2,
		Concurrency: 3,
	})
	require.NoError(t, err)

	// Sorted (/a, /b, /c), excluded skip-me, capped at 2.
	require.Len(t, results, 2)
	assert.True(t, results[0].URL < results[1].URL)
	assert.Contains(t, results[0].URL, "/a")
	assert.Contains(t, results[1].URL, "/b")
	for _, r := range results {
		require.NoError(t, r.Err)
		require.NotNil(t, r.Artifact)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&pageHits))
}

func TestFetchSitemap_PageFailureDoesNotStopCrawl(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			u, _ := url.Parse(srv.URL)
			fmt.Fprint(w, sitemapBody(u.Host, []string{"/good", "/bad"}))
		case "/bad":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			fmt.Fprint(w, "ok")
		}
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	results, err := f.FetchSitemap(context.Background(), srv.URL+"/sitemap.xml", SitemapOptions{Concurrency: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)

	byPath := map[string]SitemapResult{}
	for _, r := range results {
		u, _ := url.Parse(r.URL)
		byPath[u.Path] = r
	}
	assert.Error(t, byPath["/bad"].Err)
	assert.NoError(t, byPath["/good"].Err)
}

func TestFetchFolder_SortedAndFiltered(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	for name, content := range map[string]string{
		"b.md":        "bee",
		"a.md":        "aye",
		"sub/c.md":    "sea",
		"notes.txt":   "not markdown",
		"sub/tmp.md":  "excluded",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}

	f := newTestFetcher(t)
	results, err := f.FetchFolder(root, FolderOptions{Glob: "*.md", Exclude: []string{"tmp"}})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Lexicographic path order.
	assert.Contains(t, results[0].Path, "a.md")
	assert.Contains(t, results[1].Path, "b.md")
	assert.Contains(t, results[2].Path, filepath.Join("sub", "c.md"))
	for _, r := range results {
		require.NoError(t, r.Err)
	}
}

func TestFetchFolder_MaxSize(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.md"), []byte("0123456789"), 0o644))

	f := newTestFetcher(t)
	results, err := f.FetchFolder(root, FolderOptions{MaxSize: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, ferrors.HasCode(results[0].Err, ferrors.CodeFileTooLarge))
}

func TestFetchPDF_ValidatesMagic(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.pdf")
	bad := filepath.Join(dir, "bad.pdf")
	require.NoError(t, os.WriteFile(good, []byte("%PDF-1.7 content"), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte("<html>not a pdf</html>"), 0o644))

	f := newTestFetcher(t)
	art, err := f.FetchPDF(context.Background(), good, URLOptions{})
	require.NoError(t, err)
	assert.NotNil(t, art)

	_, err = f.FetchPDF(context.Background(), bad, URLOptions{})
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeParseError))
}
