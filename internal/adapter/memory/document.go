package memory

import (
	"context"
	"sync"

	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/repository"
)

var (
	_ repository.SnapshotRepository = (*SnapshotRepo)(nil)
	_ repository.DocumentRepository = (*DocumentRepo)(nil)
)

// SnapshotRepo is an in-memory SnapshotRepository.
type SnapshotRepo struct {
	mu   sync.RWMutex
	rows map[string][]entity.ArchivedSnapshot
}

func NewSnapshotRepo() *SnapshotRepo {
	return &SnapshotRepo{rows: make(map[string][]entity.ArchivedSnapshot)}
}

func (r *SnapshotRepo) Upsert(_ context.Context, s *entity.ArchivedSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cur := range r.rows[s.URLHash] {
		if cur.SnapshotID == s.SnapshotID {
			return nil
		}
	}
	r.rows[s.URLHash] = append(r.rows[s.URLHash], *s)
	return nil
}

func (r *SnapshotRepo) LatestByURLHash(_ context.Context, urlHash string) (*entity.ArchivedSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rows := r.rows[urlHash]
	if len(rows) == 0 {
		return nil, repository.ErrNotFound
	}
	latest := rows[0]
	for _, s := range rows[1:] {
		if s.ArchivedAt.After(latest.ArchivedAt) {
			latest = s
		}
	}
	return &latest, nil
}

// DocumentRepo is an in-memory DocumentRepository.
type DocumentRepo struct {
	mu    sync.RWMutex
	rows  map[string]entity.Document
	byURL map[string]string
}

func NewDocumentRepo() *DocumentRepo {
	return &DocumentRepo{
		rows:  make(map[string]entity.Document),
		byURL: make(map[string]string),
	}
}

func (r *DocumentRepo) Create(_ context.Context, d *entity.Document) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[d.ContentHash]; ok {
		r.byURL[d.URLHash] = d.ContentHash
		return false, nil
	}
	cp := *d
	cp.Inline = append([]byte(nil), d.Inline...)
	r.rows[d.ContentHash] = cp
	r.byURL[d.URLHash] = d.ContentHash
	return true, nil
}

func (r *DocumentRepo) FindByHash(_ context.Context, contentHash string) (*entity.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.rows[contentHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

func (r *DocumentRepo) LatestByURLHash(_ context.Context, urlHash string) (*entity.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hash, ok := r.byURL[urlHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	d := r.rows[hash]
	return &d, nil
}

func (r *DocumentRepo) UpdateStatus(_ context.Context, contentHash string, status entity.DocumentStatus, failureKind string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.rows[contentHash]
	if !ok {
		return repository.ErrNotFound
	}
	d.Status = status
	d.FailureKind = failureKind
	r.rows[contentHash] = d
	return nil
}

// Len returns the number of stored documents.
func (r *DocumentRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}
