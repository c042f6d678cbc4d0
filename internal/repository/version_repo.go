package repository

import (
	"context"

	"github.com/user/legalcode-service/internal/entity"
)

// VersionRepository stores document versions and their change records.
type VersionRepository interface {
	// Latest returns the highest version for the pair or ErrNotFound.
	Latest(ctx context.Context, locationID, datapointID string) (*entity.DocumentVersion, error)
	// Create writes v and rec atomically. It returns ErrConflict when v.Version
	// already exists or does not directly follow the current latest version.
	Create(ctx context.Context, v *entity.DocumentVersion, rec *entity.ChangeRecord) error
	// List returns every version of the pair in ascending order.
	List(ctx context.Context, locationID, datapointID string) ([]*entity.DocumentVersion, error)
	// Changes returns every change record of the pair in ascending order.
	Changes(ctx context.Context, locationID, datapointID string) ([]*entity.ChangeRecord, error)
}
