package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/legalcode-service/internal/repository"
)

const fetchedURLPrefix = "fetched:"

var _ repository.FreshnessCache = (*FreshnessRepoImpl)(nil)

// FreshnessRepoImpl provides a concrete implementation for the FreshnessCache interface using Redis.
type FreshnessRepoImpl struct {
	client *redis.Client
}

// NewFreshnessRepo creates a new instance of FreshnessRepoImpl.
func NewFreshnessRepo(client *redis.Client) *FreshnessRepoImpl {
	return &FreshnessRepoImpl{client: client}
}

func (r *FreshnessRepoImpl) generateKey(urlHash string) string {
	return fetchedURLPrefix + urlHash
}

// MarkFetched records the URL hash with an expiry; SETEX is atomic.
func (r *FreshnessRepoImpl) MarkFetched(ctx context.Context, urlHash string, expiry time.Duration) error {
	return r.client.SetEx(ctx, r.generateKey(urlHash), "1", expiry).Err()
}

func (r *FreshnessRepoImpl) IsFresh(ctx context.Context, urlHash string) (bool, error) {
	val, err := r.client.Exists(ctx, r.generateKey(urlHash)).Result()
	if err != nil {
		return false, err
	}
	return val == 1, nil
}

// Forget removes the mark so the next run fetches the URL again.
func (r *FreshnessRepoImpl) Forget(ctx context.Context, urlHash string) error {
	return r.client.Del(ctx, r.generateKey(urlHash)).Err()
}
