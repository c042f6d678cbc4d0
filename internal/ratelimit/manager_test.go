package ratelimit

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/legalcode-service/internal/clock"
	"github.com/user/legalcode-service/pkg/apperr"
)

var epoch = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

func TestAcquireSpreadsConcurrentCallers(t *testing.T) {
	fake := clock.NewFake(epoch)
	m := NewManager(fake, map[Class]Policy{
		ClassFetch: {RatePerSecond: 1, Burst: 1, MaxWait: 5 * time.Minute},
	})
	key := FetchKey("library.municode.com")

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.Acquire(context.Background(), key)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// One caller is granted immediately; the rest sleep until their token.
	sleeps := fake.Sleeps()
	require.Len(t, sleeps, 99)
	waits := append([]time.Duration{0}, sleeps...)
	sort.Slice(waits, func(i, j int) bool { return waits[i] < waits[j] })

	span := waits[len(waits)-1] - waits[0]
	avgGap := span.Seconds() / float64(len(waits)-1)
	assert.GreaterOrEqual(t, avgGap, 0.99)
	for i := 1; i < len(waits); i++ {
		assert.InDelta(t, 1.0, (waits[i] - waits[i-1]).Seconds(), 0.01)
	}
}

func TestAcquireBurstGrantsImmediately(t *testing.T) {
	fake := clock.NewFake(epoch)
	m := NewManager(fake, map[Class]Policy{
		ClassSearch: {RatePerSecond: 1, Burst: 5, MaxWait: 5 * time.Minute},
	})
	key := SearchKey("google")

	for i := 0; i < 20; i++ {
		require.NoError(t, m.Acquire(context.Background(), key))
	}

	immediate := 20 - len(fake.Sleeps())
	assert.Equal(t, 5, immediate)
}

func TestAcquireRejectsWhenWaitExceedsMax(t *testing.T) {
	fake := clock.NewFake(epoch)
	m := NewManager(fake, map[Class]Policy{
		ClassArchive: {RatePerSecond: 1, Burst: 1, MaxWait: 2 * time.Second},
	})
	key := ArchiveKey()

	require.NoError(t, m.Acquire(context.Background(), key))
	require.NoError(t, m.Acquire(context.Background(), key))
	require.NoError(t, m.Acquire(context.Background(), key))

	err := m.Acquire(context.Background(), key)
	require.Error(t, err)
	assert.Equal(t, apperr.KindQuota, apperr.KindOf(err))
	assert.True(t, apperr.IsRetryable(err))

	// The rejected call must not have consumed a token.
	fake.Advance(3 * time.Second)
	require.NoError(t, m.Acquire(context.Background(), key))
}

func TestKeysAreIndependent(t *testing.T) {
	fake := clock.NewFake(epoch)
	m := NewManager(fake, nil)

	require.NoError(t, m.Acquire(context.Background(), FetchKey("a.gov")))
	require.NoError(t, m.Acquire(context.Background(), FetchKey("b.gov")))
	require.NoError(t, m.Acquire(context.Background(), SearchKey("google")))

	assert.Empty(t, fake.Sleeps())
}

func TestBackoffDelaysNextAcquire(t *testing.T) {
	fake := clock.NewFake(epoch)
	m := NewManager(fake, map[Class]Policy{
		ClassSearch: {RatePerSecond: 1, Burst: 1, MaxWait: time.Minute},
	})
	key := SearchKey("google")

	m.Backoff(key, 10*time.Second)
	require.NoError(t, m.Acquire(context.Background(), key))

	sleeps := fake.Sleeps()
	require.Len(t, sleeps, 1)
	assert.Equal(t, 10*time.Second, sleeps[0])
}

func TestAcquireCancelledContext(t *testing.T) {
	fake := clock.NewFake(epoch)
	m := NewManager(fake, nil)
	key := FetchKey("example.gov")
	require.NoError(t, m.Acquire(context.Background(), key))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Acquire(ctx, key)
	assert.ErrorIs(t, err, context.Canceled)
}
