package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/repository"
)

const deferredQueueKey = "legalcode:deferred"

var _ repository.DeferredQueue = (*QueueRepoImpl)(nil)

// QueueRepoImpl provides a concrete implementation for the DeferredQueue interface using Redis Lists.
type QueueRepoImpl struct {
	client *redis.Client
	key    string
}

// NewQueueRepo creates a new instance of QueueRepoImpl.
func NewQueueRepo(client *redis.Client) *QueueRepoImpl {
	return &QueueRepoImpl{client: client, key: deferredQueueKey}
}

// Push adds a unit to the left side of the Redis list (acting as a queue).
func (r *QueueRepoImpl) Push(ctx context.Context, unit entity.UnitKey) error {
	payload, err := json.Marshal(unit)
	if err != nil {
		return fmt.Errorf("marshal unit: %w", err)
	}
	return r.client.LPush(ctx, r.key, payload).Err()
}

// Pop removes and returns a unit from the right side of the list, or
// repository.ErrQueueEmpty when there is none.
func (r *QueueRepoImpl) Pop(ctx context.Context) (entity.UnitKey, error) {
	var unit entity.UnitKey
	payload, err := r.client.RPop(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return unit, repository.ErrQueueEmpty
	}
	if err != nil {
		return unit, err
	}
	if err := json.Unmarshal(payload, &unit); err != nil {
		return unit, fmt.Errorf("unmarshal unit %q: %w", payload, err)
	}
	return unit, nil
}

// Size returns the current number of items in the queue.
func (r *QueueRepoImpl) Size(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, r.key).Result()
}
