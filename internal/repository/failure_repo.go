package repository

import (
	"context"

	"github.com/user/legalcode-service/internal/entity"
)

// FailureRepository records terminal stage failures.
type FailureRepository interface {
	// Record appends one failure event.
	Record(ctx context.Context, ev *entity.FailureEvent) error
	// ListRecent returns the newest events first.
	ListRecent(ctx context.Context, limit int) ([]*entity.FailureEvent, error)
}

// RunRepository stores run summaries.
type RunRepository interface {
	Save(ctx context.Context, s *entity.RunSummary) error
	FindByID(ctx context.Context, id string) (*entity.RunSummary, error)
	// Latest returns the most recently started run or ErrNotFound.
	Latest(ctx context.Context) (*entity.RunSummary, error)
}
