package repository

import (
	"context"

	"github.com/user/legalcode-service/internal/entity"
)

// LocationRepository stores the jurisdiction reference data.
type LocationRepository interface {
	// Upsert inserts a location or refreshes its descriptive fields.
	Upsert(ctx context.Context, loc *entity.Location) error
	// FindByID returns ErrNotFound when no location has the id.
	FindByID(ctx context.Context, id string) (*entity.Location, error)
	// List returns every location ordered by id.
	List(ctx context.Context) ([]*entity.Location, error)
}

// DatapointRepository stores the datapoint catalog.
type DatapointRepository interface {
	Upsert(ctx context.Context, dp *entity.Datapoint) error
	FindByID(ctx context.Context, id string) (*entity.Datapoint, error)
	List(ctx context.Context) ([]*entity.Datapoint, error)
}
