package repository

import (
	"context"

	"github.com/user/legalcode-service/internal/entity"
)

// SnapshotRepository stores archive snapshots keyed by URL hash.
type SnapshotRepository interface {
	// Upsert stores a snapshot; the same (url hash, snapshot id) is written once.
	Upsert(ctx context.Context, s *entity.ArchivedSnapshot) error
	// LatestByURLHash returns the newest snapshot or ErrNotFound.
	LatestByURLHash(ctx context.Context, urlHash string) (*entity.ArchivedSnapshot, error)
}
