package repository

import (
	"context"
	"time"
)

// FreshnessCache remembers which URLs were fetched recently.
type FreshnessCache interface {
	// MarkFetched records the URL hash with an expiry.
	MarkFetched(ctx context.Context, urlHash string, expiry time.Duration) error
	// IsFresh reports whether the URL hash was marked and has not expired.
	IsFresh(ctx context.Context, urlHash string) (bool, error)
	// Forget removes the mark, used for forced runs.
	Forget(ctx context.Context, urlHash string) error
}

// KeyedLocker serializes work on the same key across workers.
type KeyedLocker interface {
	// Lock blocks until key is held or ctx ends. The returned func releases it.
	Lock(ctx context.Context, key string) (func(), error)
}
