package repository

import (
	"context"

	"github.com/user/legalcode-service/internal/entity"
)

// DeferredQueue holds units deferred by quota or network exhaustion until the next run.
type DeferredQueue interface {
	// Push adds a unit to the end of the queue.
	Push(ctx context.Context, unit entity.UnitKey) error
	// Pop removes and returns the front unit, or ErrQueueEmpty.
	Pop(ctx context.Context) (entity.UnitKey, error)
	// Size returns the current number of queued units.
	Size(ctx context.Context) (int64, error)
}
