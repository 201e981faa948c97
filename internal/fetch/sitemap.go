package fetch

import (
	"context"
	"encoding/xml"
	"regexp"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/blob"
	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
)

// SitemapOptions control a sitemap crawl.
type SitemapOptions struct {
	Include     []string // regexes; a URL must match at least one when non-empty
	Exclude     []string // regexes; applied after Include
	MaxPages    int      // 0 means no cap
	Concurrency int      // bounded to [1,10]
	URL         URLOptions
}

// SitemapResult pairs each crawled URL with its artifact or error.
// Results are in sorted URL order regardless of completion order.
type SitemapResult struct {
	URL      string
	Artifact *blob.Artifact
	Err      error
}

type sitemapXML struct {
	URLs     []sitemapLoc `xml:"url"`
	Sitemaps []sitemapLoc `xml:"sitemap"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

// FetchSitemap downloads a sitemap, filters and sorts its URLs, and fetches
// each page through a bounded worker pool. Child fetches share the sitemap's
// domain lists; one failing page does not stop the others.
func (f *Fetcher) FetchSitemap(ctx context.Context, sitemapURL string, opts SitemapOptions) ([]SitemapResult, error) {
	art, err := f.FetchURL(ctx, sitemapURL, opts.URL)
	if err != nil {
		return nil, err
	}
	data, err := f.blobs.Read(art.Path)
	if err != nil {
		return nil, err
	}

	urls, err := parseSitemap(data)
	if err != nil {
		return nil, ferrors.Wrapf(ferrors.CodeParseError, err, "parsing sitemap %s", sitemapURL)
	}

	urls, err = filterURLs(urls, opts.Include, opts.Exclude)
	if err != nil {
		return nil, err
	}
	sort.Strings(urls)
	if opts.MaxPages > 0 && len(urls) > opts.MaxPages {
		urls = urls[:opts.MaxPages]
	}

	width := opts.Concurrency
	if width < MinConcurrency {
		width = MinConcurrency
	}
	if width > MaxConcurrency {
		width = MaxConcurrency
	}

	results := make([]SitemapResult, len(urls))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(width)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			pageArt, pageErr := f.FetchURL(gctx, u, opts.URL)
			mu.Lock()
			results[i] = SitemapResult{URL: u, Artifact: pageArt, Err: pageErr}
			mu.Unlock()
			// Per-page failures are reported in the result, not as a
			// group error, so the crawl continues.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	f.logger.Info("sitemap crawled", "sitemap", sitemapURL, "pages", len(urls), "concurrency", width)
	return results, nil
}

// parseSitemap extracts <loc> entries from urlset and sitemapindex
// documents. Nested sitemap indexes contribute their child sitemap URLs
// directly; the caller decides whether to recurse.
func parseSitemap(data []byte) ([]string, error) {
	var parsed sitemapXML
	if err := xml.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}
	var urls []string
	for _, u := range parsed.URLs {
		if u.Loc != "" {
			urls = append(urls, u.Loc)
		}
	}
	for _, sm := range parsed.Sitemaps {
		if sm.Loc != "" {
			urls = append(urls, sm.Loc)
		}
	}
	return urls, nil
}

// filterURLs applies include regexes then exclude regexes, in that order.
func filterURLs(urls, include, exclude []string) ([]string, error) {
	inc, err := compileAll(include)
	if err != nil {
		return nil, err
	}
	exc, err := compileAll(exclude)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, u := range urls {
		if len(inc) > 0 && !matchesAny(inc, u) {
			continue
		}
		if matchesAny(exc, u) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, ferrors.Wrapf(ferrors.CodeInvalidInput, err, "invalid url pattern %q", p)
		}
		res = append(res, re)
	}
	return res, nil
}

func matchesAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
