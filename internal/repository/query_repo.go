package repository

import (
	"context"

	"github.com/user/legalcode-service/internal/entity"
)

// QueryRepository stores generated search queries keyed by hash.
type QueryRepository interface {
	// Create inserts q if no query has its hash. It reports whether a row was written.
	Create(ctx context.Context, q *entity.Query) (bool, error)
	// FindByHash returns ErrNotFound when the hash is unknown.
	FindByHash(ctx context.Context, hash string) (*entity.Query, error)
	// SaveRunState writes the cursor fields (status, last run, counts, error).
	SaveRunState(ctx context.Context, q *entity.Query) error
}

// SearchResultRepository stores per-run search results.
type SearchResultRepository interface {
	// SaveResults stores the results of one run of a query.
	SaveResults(ctx context.Context, results []*entity.SearchResult) error
	// LatestForQuery returns the results of the most recent run, ordered by rank.
	LatestForQuery(ctx context.Context, queryHash string) ([]*entity.SearchResult, error)
}
