package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/legalcode-service/internal/repository"
)

const (
	lockPrefix       = "lock:"
	defaultLockTTL   = 10 * time.Minute
	lockPollInterval = 50 * time.Millisecond
)

// unlockScript deletes the key only while it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var _ repository.KeyedLocker = (*LockerImpl)(nil)

// LockerImpl serializes work on a key across processes with SET NX PX.
type LockerImpl struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewLocker creates a LockerImpl. A non-positive ttl uses the default.
func NewLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) *LockerImpl {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &LockerImpl{client: client, ttl: ttl, logger: logger}
}

// Lock polls until the key is taken or ctx ends.
func (l *LockerImpl) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := lockPrefix + key
	token := uuid.NewString()
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func() {
				// Release even if the caller's context has ended.
				if err := unlockScript.Run(context.WithoutCancel(ctx), l.client, []string{redisKey}, token).Err(); err != nil {
					l.logger.Warn("Failed to release lock", zap.String("key", key), zap.Error(err))
				}
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", repository.ErrLockHeld, key, ctx.Err())
		case <-ticker.C:
		}
	}
}
