package discovery

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/user/legalcode-service/internal/ratelimit"
	"github.com/user/legalcode-service/internal/repository"
)

const (
	defaultMaxSitemaps = 5
	maxSitemapBytes    = 10 << 20
)

// SitemapDiscoverer lists legal-document URLs from a domain's sitemaps.
type SitemapDiscoverer struct {
	fetcher     repository.Fetcher
	quotas      *ratelimit.Manager
	maxSitemaps int
	logger      *zap.Logger
}

// NewSitemapDiscoverer creates a discoverer that reads at most maxSitemaps
// sitemap files per domain.
func NewSitemapDiscoverer(fetcher repository.Fetcher, quotas *ratelimit.Manager, maxSitemaps int, logger *zap.Logger) *SitemapDiscoverer {
	if maxSitemaps <= 0 {
		maxSitemaps = defaultMaxSitemaps
	}
	return &SitemapDiscoverer{fetcher: fetcher, quotas: quotas, maxSitemaps: maxSitemaps, logger: logger}
}

// Discover reads robots.txt for Sitemap lines, falling back to /sitemap.xml,
// follows sitemap indexes one level deep and returns the legal URLs found.
// Unreachable files are skipped; only a cancelled context is an error.
func (d *SitemapDiscoverer) Discover(ctx context.Context, domain string) ([]string, error) {
	root := "https://" + strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(domain, "https://"), "http://"), "/")

	pending := d.robotsSitemaps(ctx, root)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	visited := make(map[string]bool)
	seen := make(map[string]bool)
	var out []string
	for len(pending) > 0 && len(visited) < d.maxSitemaps {
		sm := pending[0]
		pending = pending[1:]
		if visited[sm] {
			continue
		}
		visited[sm] = true

		body, err := d.get(ctx, sm)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			d.logger.Debug("Sitemap unavailable", zap.String("sitemap", sm), zap.Error(err))
			continue
		}
		pages, nested := ParseSitemap(body)
		pending = append(pending, nested...)
		for _, p := range pages {
			u, err := url.Parse(p)
			if err != nil || seen[p] || !IsLegalURL(u) {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, nil
}

func (d *SitemapDiscoverer) robotsSitemaps(ctx context.Context, root string) []string {
	fallback := []string{root + "/sitemap.xml"}
	body, err := d.get(ctx, root+"/robots.txt")
	if err != nil {
		return fallback
	}
	var sitemaps []string
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if len(line) > 8 && strings.EqualFold(line[:8], "sitemap:") {
			if sm := strings.TrimSpace(line[8:]); sm != "" {
				sitemaps = append(sitemaps, sm)
			}
		}
	}
	if len(sitemaps) == 0 {
		return fallback
	}
	return sitemaps
}

func (d *SitemapDiscoverer) get(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if err := d.quotas.Acquire(ctx, ratelimit.FetchKey(strings.ToLower(u.Hostname()))); err != nil {
		return nil, err
	}
	resp, err := d.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, maxSitemapBytes))
}

// ParseSitemap returns the page URLs of a urlset and the sitemap URLs of a
// sitemap index.
func ParseSitemap(body []byte) (pages, sitemaps []string) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil
	}
	doc.Find("url > loc").Each(func(_ int, s *goquery.Selection) {
		if loc := strings.TrimSpace(s.Text()); loc != "" {
			pages = append(pages, loc)
		}
	})
	doc.Find("sitemap > loc").Each(func(_ int, s *goquery.Selection) {
		if loc := strings.TrimSpace(s.Text()); loc != "" {
			sitemaps = append(sitemaps, loc)
		}
	})
	return pages, sitemaps
}
