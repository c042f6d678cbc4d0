//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/repository"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	addr, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(addr)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedis_DeferredQueueIsFIFO(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	q := NewQueueRepo(client)

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, repository.ErrQueueEmpty)

	a := entity.UnitKey{LocationID: "a", DatapointID: "1"}
	b := entity.UnitKey{LocationID: "b", DatapointID: "1"}
	require.NoError(t, q.Push(ctx, a))
	require.NoError(t, q.Push(ctx, b))

	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)

	got, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, a, got)
	got, err = q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestRedis_FreshnessExpires(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	c := NewFreshnessRepo(client)

	require.NoError(t, c.MarkFetched(ctx, "h1", time.Second))
	fresh, err := c.IsFresh(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, fresh)

	require.NoError(t, c.Forget(ctx, "h1"))
	fresh, err = c.IsFresh(ctx, "h1")
	require.NoError(t, err)
	assert.False(t, fresh)

	require.NoError(t, c.MarkFetched(ctx, "h2", 100*time.Millisecond))
	assert.Eventually(t, func() bool {
		fresh, err := c.IsFresh(ctx, "h2")
		return err == nil && !fresh
	}, 3*time.Second, 50*time.Millisecond)
}

func TestRedis_LockExcludesSecondHolder(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	l := NewLocker(client, time.Minute, zap.NewNop())

	unlock, err := l.Lock(ctx, "unit")
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = l.Lock(short, "unit")
	assert.ErrorIs(t, err, repository.ErrLockHeld)

	unlock()
	unlock2, err := l.Lock(ctx, "unit")
	require.NoError(t, err)
	unlock2()
}
