package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/repository"
)

var _ repository.VersionRepository = (*VersionRepo)(nil)

// VersionRepo is an in-memory VersionRepository.
type VersionRepo struct {
	mu       sync.RWMutex
	versions map[entity.UnitKey][]entity.DocumentVersion
	changes  map[entity.UnitKey][]entity.ChangeRecord
}

func NewVersionRepo() *VersionRepo {
	return &VersionRepo{
		versions: make(map[entity.UnitKey][]entity.DocumentVersion),
		changes:  make(map[entity.UnitKey][]entity.ChangeRecord),
	}
}

func unitOf(locationID, datapointID string) entity.UnitKey {
	return entity.UnitKey{LocationID: locationID, DatapointID: datapointID}
}

func (r *VersionRepo) Latest(_ context.Context, locationID, datapointID string) (*entity.DocumentVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vs := r.versions[unitOf(locationID, datapointID)]
	if len(vs) == 0 {
		return nil, repository.ErrNotFound
	}
	v := vs[len(vs)-1]
	return &v, nil
}

func (r *VersionRepo) Create(_ context.Context, v *entity.DocumentVersion, rec *entity.ChangeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := unitOf(v.LocationID, v.DatapointID)
	if want := len(r.versions[key]) + 1; v.Version != want {
		return fmt.Errorf("version %d for %s, expected %d: %w", v.Version, key, want, repository.ErrConflict)
	}
	cp := *v
	cp.Sections = append([]entity.Section(nil), v.Sections...)
	r.versions[key] = append(r.versions[key], cp)
	if rec != nil {
		r.changes[key] = append(r.changes[key], *rec)
	}
	return nil
}

func (r *VersionRepo) List(_ context.Context, locationID, datapointID string) ([]*entity.DocumentVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vs := r.versions[unitOf(locationID, datapointID)]
	out := make([]*entity.DocumentVersion, 0, len(vs))
	for _, v := range vs {
		v := v
		out = append(out, &v)
	}
	return out, nil
}

func (r *VersionRepo) Changes(_ context.Context, locationID, datapointID string) ([]*entity.ChangeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cs := r.changes[unitOf(locationID, datapointID)]
	out := make([]*entity.ChangeRecord, 0, len(cs))
	for _, c := range cs {
		c := c
		out = append(out, &c)
	}
	return out, nil
}
