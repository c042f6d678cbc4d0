package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/repository"
)

var (
	_ repository.QueryRepository        = (*QueryRepoImpl)(nil)
	_ repository.SearchResultRepository = (*SearchResultRepoImpl)(nil)
)

// QueryRepoImpl provides a concrete implementation for the QueryRepository interface using PostgreSQL.
type QueryRepoImpl struct {
	db *pgxpool.Pool
}

// NewQueryRepo creates a new instance of QueryRepoImpl.
func NewQueryRepo(db *pgxpool.Pool) *QueryRepoImpl {
	return &QueryRepoImpl{db: db}
}

// Create inserts q unless its hash already exists. Existing queries are never rewritten.
func (r *QueryRepoImpl) Create(ctx context.Context, q *entity.Query) (bool, error) {
	query := `
		INSERT INTO queries (hash, location_id, datapoint_id, platform, text, status, last_run_at, result_count, attempts, last_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (hash) DO NOTHING;
	`
	tag, err := r.db.Exec(ctx, query,
		q.Hash, q.LocationID, q.DatapointID, string(q.Platform), q.Text, string(q.Status),
		q.LastRunAt, q.ResultCount, q.Attempts, q.LastError, q.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *QueryRepoImpl) FindByHash(ctx context.Context, hash string) (*entity.Query, error) {
	query := `
		SELECT hash, location_id, datapoint_id, platform, text, status, last_run_at, result_count, attempts, last_error, created_at
		FROM queries
		WHERE hash = $1;
	`
	var (
		q                entity.Query
		platform, status string
	)
	err := r.db.QueryRow(ctx, query, hash).Scan(
		&q.Hash, &q.LocationID, &q.DatapointID, &platform, &q.Text, &status,
		&q.LastRunAt, &q.ResultCount, &q.Attempts, &q.LastError, &q.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	q.Platform = entity.Platform(platform)
	q.Status = entity.QueryStatus(status)
	return &q, nil
}

// SaveRunState writes only the cursor columns owned by the search orchestrator.
func (r *QueryRepoImpl) SaveRunState(ctx context.Context, q *entity.Query) error {
	query := `
		UPDATE queries SET
			status = $2,
			last_run_at = $3,
			result_count = $4,
			attempts = $5,
			last_error = $6
		WHERE hash = $1;
	`
	tag, err := r.db.Exec(ctx, query, q.Hash, string(q.Status), q.LastRunAt, q.ResultCount, q.Attempts, q.LastError)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SearchResultRepoImpl provides a concrete implementation for the SearchResultRepository interface using PostgreSQL.
type SearchResultRepoImpl struct {
	db *pgxpool.Pool
}

// NewSearchResultRepo creates a new instance of SearchResultRepoImpl.
func NewSearchResultRepo(db *pgxpool.Pool) *SearchResultRepoImpl {
	return &SearchResultRepoImpl{db: db}
}

// SaveResults batch inserts the results of one run within a single transaction.
func (r *SearchResultRepoImpl) SaveResults(ctx context.Context, results []*entity.SearchResult) error {
	if len(results) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, res := range results {
			batch.Queue(`INSERT INTO search_results (query_hash, url, url_hash, title, rank, discovered_at)
			             VALUES ($1, $2, $3, $4, $5, $6)
			             ON CONFLICT (query_hash, discovered_at, url_hash) DO NOTHING`,
				res.QueryHash, res.URL, res.URLHash, res.Title, res.Rank, res.DiscoveredAt)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// LatestForQuery returns the rows of the most recent run only.
func (r *SearchResultRepoImpl) LatestForQuery(ctx context.Context, queryHash string) ([]*entity.SearchResult, error) {
	query := `
		SELECT query_hash, url, url_hash, title, rank, discovered_at
		FROM search_results
		WHERE query_hash = $1
		  AND discovered_at = (SELECT MAX(discovered_at) FROM search_results WHERE query_hash = $1)
		ORDER BY rank ASC;
	`
	rows, err := r.db.Query(ctx, query, queryHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*entity.SearchResult
	for rows.Next() {
		var res entity.SearchResult
		if err := rows.Scan(&res.QueryHash, &res.URL, &res.URLHash, &res.Title, &res.Rank, &res.DiscoveredAt); err != nil {
			return nil, err
		}
		results = append(results, &res)
	}
	return results, rows.Err()
}
