package usecase

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/user/legalcode-service/internal/clock"
	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/ratelimit"
	"github.com/user/legalcode-service/internal/repository"
	"github.com/user/legalcode-service/internal/retry"
	"github.com/user/legalcode-service/pkg/apperr"
	"github.com/user/legalcode-service/pkg/fingerprint"
	"github.com/user/legalcode-service/pkg/metrics"
)

const (
	defaultQueryFreshness = 365 * 24 * time.Hour
	defaultQuotaBackoff   = time.Minute
)

// SearchOutcome is the result of running one query.
type SearchOutcome struct {
	Query    *entity.Query
	Results  []*entity.SearchResult
	CacheHit bool
}

// SearchOrchestrator runs queries against the search engine.
type SearchOrchestrator interface {
	// Run executes q unless a completed run is still fresh, in which case the
	// stored results are returned and the engine is not called.
	Run(ctx context.Context, q *entity.Query) (*SearchOutcome, error)
}

// SearchConfig tunes a SearchOrchestrator.
type SearchConfig struct {
	Freshness  time.Duration
	MaxResults int
	Retry      retry.Policy
}

type searchOrchestrator struct {
	engine  repository.SearchEngine
	queries repository.QueryRepository
	results repository.SearchResultRepository
	quotas  *ratelimit.Manager
	clock   clock.Clock
	cfg     SearchConfig
	logger  *zap.Logger
	group   singleflight.Group
}

// NewSearchOrchestrator creates a new SearchOrchestrator.
func NewSearchOrchestrator(
	engine repository.SearchEngine,
	queries repository.QueryRepository,
	results repository.SearchResultRepository,
	quotas *ratelimit.Manager,
	clk clock.Clock,
	cfg SearchConfig,
	logger *zap.Logger,
) SearchOrchestrator {
	if cfg.Freshness <= 0 {
		cfg.Freshness = defaultQueryFreshness
	}
	return &searchOrchestrator{
		engine:  engine,
		queries: queries,
		results: results,
		quotas:  quotas,
		clock:   clk,
		cfg:     cfg,
		logger:  logger,
	}
}

func (o *searchOrchestrator) Run(ctx context.Context, q *entity.Query) (*SearchOutcome, error) {
	v, err, _ := o.group.Do(q.Hash, func() (any, error) {
		return o.run(ctx, q.Hash)
	})
	out, _ := v.(*SearchOutcome)
	return out, err
}

func (o *searchOrchestrator) run(ctx context.Context, hash string) (_ *SearchOutcome, err error) {
	ctx, span := tracer.Start(ctx, "search.run", trace.WithAttributes(attribute.String("query.hash", hash)))
	defer func() { endSpan(span, err) }()

	q, err := o.queries.FindByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to load query %s: %w", hash, err)
	}

	now := o.clock.Now().UTC()
	if q.FreshAt(now, o.cfg.Freshness) {
		results, err := o.results.LatestForQuery(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("failed to load cached results for %s: %w", hash, err)
		}
		metrics.SearchCalls.WithLabelValues("cache_hit").Inc()
		o.logger.Debug("Search cache hit", zap.String("query_hash", hash), zap.Int("results", len(results)))
		return &SearchOutcome{Query: q, Results: results, CacheHit: true}, nil
	}

	q.Status = entity.QueryRunning
	if err := o.queries.SaveRunState(ctx, q); err != nil {
		return nil, fmt.Errorf("failed to mark query %s running: %w", hash, err)
	}

	key := ratelimit.SearchKey(o.engine.Name())
	var hits []entity.SearchHit
	res, searchErr := o.cfg.Retry.Do(ctx, o.clock, func(ctx context.Context) error {
		if err := o.quotas.Acquire(ctx, key); err != nil {
			return err
		}
		h, err := o.engine.Search(ctx, q.Text)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindQuota {
				o.quotas.Backoff(key, defaultQuotaBackoff)
			}
			return err
		}
		hits = h
		return nil
	})
	q.Attempts += res.Attempts

	if searchErr != nil {
		q.Status = entity.QueryFailed
		q.LastError = searchErr.Error()
		metrics.SearchCalls.WithLabelValues("failed").Inc()
		if err := o.queries.SaveRunState(ctx, q); err != nil {
			o.logger.Error("Failed to record query failure", zap.String("query_hash", hash), zap.Error(err))
		}
		o.logger.Warn("Search failed",
			zap.String("query_hash", hash),
			zap.Int("attempts", res.Attempts),
			zap.Bool("deferred", apperr.IsDeferred(searchErr)),
			zap.Error(searchErr))
		return &SearchOutcome{Query: q}, searchErr
	}

	finished := o.clock.Now().UTC()
	results := o.buildResults(hash, hits, finished)
	if err := o.results.SaveResults(ctx, results); err != nil {
		return nil, fmt.Errorf("failed to save results for %s: %w", hash, err)
	}

	q.Status = entity.QueryCompletedNoResults
	if len(results) > 0 {
		q.Status = entity.QueryCompletedWithResults
	}
	q.LastRunAt = &finished
	q.ResultCount = len(results)
	q.LastError = ""
	if err := o.queries.SaveRunState(ctx, q); err != nil {
		return nil, fmt.Errorf("failed to save run state for %s: %w", hash, err)
	}

	metrics.SearchCalls.WithLabelValues("ok").Inc()
	o.logger.Info("Search completed",
		zap.String("query_hash", hash),
		zap.String("status", string(q.Status)),
		zap.Int("results", len(results)),
		zap.Int("attempts", res.Attempts))
	return &SearchOutcome{Query: q, Results: results}, nil
}

// buildResults ranks hits from 1, dropping duplicate URLs and anything past MaxResults.
func (o *searchOrchestrator) buildResults(hash string, hits []entity.SearchHit, at time.Time) []*entity.SearchResult {
	seen := make(map[string]bool, len(hits))
	results := make([]*entity.SearchResult, 0, len(hits))
	for _, h := range hits {
		if o.cfg.MaxResults > 0 && len(results) >= o.cfg.MaxResults {
			break
		}
		urlHash := fingerprint.URLHash(h.URL)
		if h.URL == "" || seen[urlHash] {
			continue
		}
		seen[urlHash] = true
		results = append(results, &entity.SearchResult{
			QueryHash:    hash,
			URL:          h.URL,
			URLHash:      urlHash,
			Title:        h.Title,
			Rank:         len(results) + 1,
			DiscoveredAt: at,
		})
	}
	return results
}
