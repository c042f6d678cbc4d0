// Package httpfetch retrieves documents over plain HTTP with rotating proxies
// and user agents.
package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/user/legalcode-service/internal/proxy"
	"github.com/user/legalcode-service/internal/repository"
	"github.com/user/legalcode-service/pkg/apperr"
)

const maxRedirects = 10

var _ repository.Fetcher = (*Fetcher)(nil)

// Fetcher is a repository.Fetcher backed by net/http.
type Fetcher struct {
	client  *http.Client
	proxies *proxy.Manager
	logger  *zap.Logger
}

// New builds a Fetcher. A nil proxies manager sends requests directly with
// the default user agents.
func New(proxies *proxy.Manager, timeout time.Duration, logger *zap.Logger) *Fetcher {
	if proxies == nil {
		proxies, _ = proxy.NewManager(nil, nil)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = proxies.ProxyFunc
	return &Fetcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		proxies: proxies,
		logger:  logger,
	}
}

// Fetch issues a GET. Non-2xx responses are closed and classified: 408, 429
// and 5xx are network errors, other statuses are validation errors.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*repository.FetchResponse, error) {
	const op = "httpfetch.fetch"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Validation(op, err)
	}
	req.Header.Set("User-Agent", f.proxies.UserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf,application/msword,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperr.Network(op, err)
	}

	if err := apperr.FromHTTPStatus(op, resp.StatusCode); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		f.logger.Debug("Fetch rejected", zap.String("url", url), zap.Int("status", resp.StatusCode))
		return nil, err
	}

	return &repository.FetchResponse{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        resp.Body,
	}, nil
}
