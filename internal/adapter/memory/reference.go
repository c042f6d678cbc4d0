// Package memory provides in-process implementations of the repository ports,
// used by tests and dry runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/repository"
)

var (
	_ repository.LocationRepository  = (*LocationRepo)(nil)
	_ repository.DatapointRepository = (*DatapointRepo)(nil)
)

// LocationRepo is an in-memory LocationRepository.
type LocationRepo struct {
	mu   sync.RWMutex
	rows map[string]entity.Location
}

func NewLocationRepo() *LocationRepo {
	return &LocationRepo{rows: make(map[string]entity.Location)}
}

func (r *LocationRepo) Upsert(_ context.Context, loc *entity.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *loc
	cp.Domains = append([]string(nil), loc.Domains...)
	cp.SeedURLs = append([]string(nil), loc.SeedURLs...)
	r.rows[loc.ID] = cp
	return nil
}

func (r *LocationRepo) FindByID(_ context.Context, id string) (*entity.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	loc, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &loc, nil
}

func (r *LocationRepo) List(_ context.Context) ([]*entity.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.Location, 0, len(r.rows))
	for _, loc := range r.rows {
		loc := loc
		out = append(out, &loc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DatapointRepo is an in-memory DatapointRepository.
type DatapointRepo struct {
	mu   sync.RWMutex
	rows map[string]entity.Datapoint
}

func NewDatapointRepo() *DatapointRepo {
	return &DatapointRepo{rows: make(map[string]entity.Datapoint)}
}

func (r *DatapointRepo) Upsert(_ context.Context, dp *entity.Datapoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *dp
	cp.Synonyms = append([]string(nil), dp.Synonyms...)
	r.rows[dp.ID] = cp
	return nil
}

func (r *DatapointRepo) FindByID(_ context.Context, id string) (*entity.Datapoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dp, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &dp, nil
}

func (r *DatapointRepo) List(_ context.Context) ([]*entity.Datapoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.Datapoint, 0, len(r.rows))
	for _, dp := range r.rows {
		dp := dp
		out = append(out, &dp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
