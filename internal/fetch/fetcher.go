// Package fetch retrieves raw source bytes over HTTP and from the local
// filesystem, writing everything through the content-address store. Sitemap
// crawls fan out over a bounded worker pool; all other fetches are single
// calls.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/blob"
	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
)

// Per-call deadlines.
const (
	DefaultURLTimeout = 30 * time.Second
	DefaultPDFTimeout = 60 * time.Second

	// MinConcurrency and MaxConcurrency bound sitemap fan-out.
	MinConcurrency = 1
	MaxConcurrency = 10
)

// URLOptions control a single HTTP fetch.
type URLOptions struct {
	AllowDomains []string          // non-empty list requires an exact hostname match
	BlockDomains []string          // always wins over the allowlist
	Timeout      time.Duration     // 0 uses DefaultURLTimeout
	Headers      map[string]string // extra request headers
	Force        bool              // rewrite the blob even if present
}

// Fetcher retrieves sources into a blob store.
type Fetcher struct {
	client *http.Client
	blobs  *blob.Store
	logger *slog.Logger
}

// New returns a fetcher writing into blobs. client may be nil for the
// default HTTP client.
func New(blobs *blob.Store, client *http.Client, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{client: client, blobs: blobs, logger: logger}
}

// Blobs exposes the backing store so callers can read fetched payloads.
func (f *Fetcher) Blobs() *blob.Store { return f.blobs }

// checkDomain enforces the block and allow lists against the URL hostname.
// The blocklist pre-empts the allowlist.
func checkDomain(rawURL string, allow, block []string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ferrors.Wrapf(ferrors.CodeInvalidInput, err, "invalid url %q", rawURL)
	}
	host := u.Hostname()
	if host == "" {
		return ferrors.Newf(ferrors.CodeInvalidInput, "url %q has no host", rawURL)
	}
	for _, b := range block {
		if host == b {
			return ferrors.Newf(ferrors.CodeDomainBlocked, "domain %q is blocked", host).
				WithDetail("host", host)
		}
	}
	if len(allow) > 0 {
		for _, a := range allow {
			if host == a {
				return nil
			}
		}
		return ferrors.Newf(ferrors.CodeDomainBlocked, "domain %q is not on the allowlist", host).
			WithDetail("host", host).
			WithSuggestion("add the domain to allow_domains")
	}
	return nil
}

// FetchURL retrieves one URL and stores the body. HTTP >=400 fails with
// FetchFailed, recoverable for 5xx, 408, and 429. Deadline expiry fails with
// FetchTimeout (recoverable).
func (f *Fetcher) FetchURL(ctx context.Context, rawURL string, opts URLOptions) (*blob.Artifact, error) {
	if err := checkDomain(rawURL, opts.AllowDomains, opts.BlockDomains); err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultURLTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeInvalidInput, err)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ferrors.Newf(ferrors.CodeFetchTimeout,
				"fetching %s exceeded %s", rawURL, timeout).
				WithDetail("url", rawURL)
		}
		// Transport failures are transient by assumption.
		return nil, ferrors.Wrap(ferrors.CodeFetchFailed, err).
			WithDetail("url", rawURL).
			WithRecoverable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		recoverable := resp.StatusCode >= 500 ||
			resp.StatusCode == http.StatusRequestTimeout ||
			resp.StatusCode == http.StatusTooManyRequests
		return nil, ferrors.Newf(ferrors.CodeFetchFailed,
			"%s returned HTTP %d", rawURL, resp.StatusCode).
			WithDetail("url", rawURL).
			WithDetail("status", fmt.Sprintf("%d", resp.StatusCode)).
			WithRecoverable(recoverable)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ferrors.Newf(ferrors.CodeFetchTimeout,
				"fetching %s exceeded %s", rawURL, timeout).
				WithDetail("url", rawURL)
		}
		return nil, ferrors.Wrap(ferrors.CodeFetchFailed, err).
			WithDetail("url", rawURL).
			WithRecoverable(true)
	}

	art, err := f.blobs.Write(rawURL, body, resp.Header.Get("Content-Type"), opts.Force)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("fetched url",
		"url", rawURL,
		"bytes", art.Bytes,
		"skipped", art.Skipped,
		"duration_ms", time.Since(start).Milliseconds())
	return art, nil
}

// readLocal loads a local file through the size cap of the blob store.
func (f *Fetcher) readLocal(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.Newf(ferrors.CodeFetchFailed, "file %q does not exist", path).
				WithRecoverable(false)
		}
		return nil, ferrors.Wrap(ferrors.CodeFetchFailed, err).WithRecoverable(false)
	}
	return data, nil
}
