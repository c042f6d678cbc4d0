// Package googlesearch runs queries against the Google Custom Search JSON API.
package googlesearch

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/user/legalcode-service/internal/adapter/breaker"
	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/repository"
	"github.com/user/legalcode-service/pkg/apperr"
)

const (
	engineName = "google"
	// maxPageSize is the largest page the API returns.
	maxPageSize = 10
)

var _ repository.SearchEngine = (*Engine)(nil)

// Config holds the API credentials. Endpoint overrides the API base URL.
type Config struct {
	APIKey     string
	EngineID   string
	Endpoint   string
	MaxResults int
	// Acquire, when set, is called before every page after the first.
	// The caller gates the first page.
	Acquire func(ctx context.Context) error
}

// Engine is a repository.SearchEngine backed by Custom Search.
type Engine struct {
	svc        *customsearch.Service
	engineID   string
	maxResults int
	acquire    func(ctx context.Context) error
	breaker    *breaker.Breaker
	logger     *zap.Logger
}

// New creates the API client.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Engine, error) {
	if cfg.APIKey == "" || cfg.EngineID == "" {
		return nil, errors.New("google search requires an API key and engine id")
	}
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create custom search client: %w", err)
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = maxPageSize
	}
	if cfg.Acquire == nil {
		cfg.Acquire = func(context.Context) error { return nil }
	}
	return &Engine{
		svc:        svc,
		engineID:   cfg.EngineID,
		maxResults: cfg.MaxResults,
		acquire:    cfg.Acquire,
		breaker:    breaker.New(breaker.DefaultConfig("google-search"), logger),
		logger:     logger,
	}, nil
}

func (e *Engine) Name() string { return engineName }

// Search pages through results until maxResults hits are collected or the
// engine has no more.
func (e *Engine) Search(ctx context.Context, query string) ([]entity.SearchHit, error) {
	const op = "googlesearch.search"
	var hits []entity.SearchHit
	for start := int64(1); len(hits) < e.maxResults; {
		num := int64(min(maxPageSize, e.maxResults-len(hits)))
		if start > 1 {
			if err := e.acquire(ctx); err != nil {
				return nil, err
			}
		}
		var res *customsearch.Search
		err := e.breaker.Do(op, func() error {
			var err error
			res, err = e.svc.Cse.List().Q(query).Cx(e.engineID).Num(num).Start(start).Context(ctx).Do()
			return classify(op, err)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		for _, item := range res.Items {
			if item.Link == "" {
				continue
			}
			hits = append(hits, entity.SearchHit{URL: item.Link, Title: item.Title})
		}
		if len(res.Items) < int(num) || !hasNextPage(res) {
			break
		}
		start += int64(len(res.Items))
	}
	e.logger.Debug("Search finished", zap.String("query", query), zap.Int("hits", len(hits)))
	return hits, nil
}

func hasNextPage(res *customsearch.Search) bool {
	return res.Queries != nil && len(res.Queries.NextPage) > 0
}

// classify maps API failures onto the error taxonomy: quota and throttling
// are quota errors, server errors are transient, a rejected query is final.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return apperr.Network(op, err)
	}
	switch {
	case gerr.Code == http.StatusTooManyRequests:
		return apperr.Quota(op, err)
	case gerr.Code == http.StatusForbidden && quotaReason(gerr):
		return apperr.Quota(op, err)
	case gerr.Code >= 500:
		return apperr.Network(op, err)
	default:
		return apperr.Validation(op, err)
	}
}

func quotaReason(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "dailyLimitExceeded", "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded":
			return true
		}
	}
	return false
}
