package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/repository"
)

var (
	_ repository.QueryRepository        = (*QueryRepo)(nil)
	_ repository.SearchResultRepository = (*SearchResultRepo)(nil)
)

// QueryRepo is an in-memory QueryRepository.
type QueryRepo struct {
	mu   sync.RWMutex
	rows map[string]entity.Query
}

func NewQueryRepo() *QueryRepo {
	return &QueryRepo{rows: make(map[string]entity.Query)}
}

func (r *QueryRepo) Create(_ context.Context, q *entity.Query) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[q.Hash]; ok {
		return false, nil
	}
	r.rows[q.Hash] = *q
	return true, nil
}

func (r *QueryRepo) FindByHash(_ context.Context, hash string) (*entity.Query, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.rows[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &q, nil
}

func (r *QueryRepo) SaveRunState(_ context.Context, q *entity.Query) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[q.Hash]
	if !ok {
		return repository.ErrNotFound
	}
	cur.Status = q.Status
	cur.LastRunAt = q.LastRunAt
	cur.ResultCount = q.ResultCount
	cur.Attempts = q.Attempts
	cur.LastError = q.LastError
	r.rows[q.Hash] = cur
	return nil
}

// Len returns the number of stored queries.
func (r *QueryRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}

// SearchResultRepo is an in-memory SearchResultRepository.
type SearchResultRepo struct {
	mu   sync.RWMutex
	rows map[string][]entity.SearchResult
}

func NewSearchResultRepo() *SearchResultRepo {
	return &SearchResultRepo{rows: make(map[string][]entity.SearchResult)}
}

func (r *SearchResultRepo) SaveResults(_ context.Context, results []*entity.SearchResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range results {
		r.rows[res.QueryHash] = append(r.rows[res.QueryHash], *res)
	}
	return nil
}

func (r *SearchResultRepo) LatestForQuery(_ context.Context, queryHash string) ([]*entity.SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.rows[queryHash]
	if len(all) == 0 {
		return nil, nil
	}
	latest := all[0].DiscoveredAt
	for _, res := range all {
		if res.DiscoveredAt.After(latest) {
			latest = res.DiscoveredAt
		}
	}
	var out []*entity.SearchResult
	for _, res := range all {
		if res.DiscoveredAt.Equal(latest) {
			res := res
			out = append(out, &res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

// Count returns every stored result row across runs.
func (r *SearchResultRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, rows := range r.rows {
		n += len(rows)
	}
	return n
}
