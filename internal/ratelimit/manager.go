// Package ratelimit implements the keyed quota manager shared by every stage
// that talks to an external service.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/user/legalcode-service/internal/clock"
	"github.com/user/legalcode-service/pkg/apperr"
	"github.com/user/legalcode-service/pkg/metrics"
)

// Class groups keys that share a policy.
type Class string

const (
	ClassSearch  Class = "search"
	ClassArchive Class = "archive"
	ClassFetch   Class = "fetch"
)

// Key identifies one token bucket.
type Key struct {
	Class Class
	Name  string
}

func (k Key) String() string { return string(k.Class) + ":" + k.Name }

// SearchKey is the bucket for a search engine.
func SearchKey(engine string) Key { return Key{Class: ClassSearch, Name: engine} }

// ArchiveKey is the single global archive-submission bucket.
func ArchiveKey() Key { return Key{Class: ClassArchive, Name: "global"} }

// FetchKey is the bucket for one target domain.
func FetchKey(host string) Key { return Key{Class: ClassFetch, Name: host} }

// Policy configures the buckets of a class.
type Policy struct {
	// RatePerSecond is the sustained refill rate.
	RatePerSecond float64
	// Burst is the bucket capacity.
	Burst int
	// MaxWait bounds how long Acquire blocks before giving up.
	MaxWait time.Duration
}

// DefaultPolicies allow one operation per second per key.
var DefaultPolicies = map[Class]Policy{
	ClassSearch:  {RatePerSecond: 1, Burst: 1, MaxWait: 30 * time.Second},
	ClassArchive: {RatePerSecond: 1, Burst: 1, MaxWait: 60 * time.Second},
	ClassFetch:   {RatePerSecond: 1, Burst: 1, MaxWait: 30 * time.Second},
}

var fallbackPolicy = Policy{RatePerSecond: 1, Burst: 1, MaxWait: 30 * time.Second}

type bucket struct {
	limiter *rate.Limiter
	retryAt time.Time
}

// Manager hands out tokens from per-key buckets.
type Manager struct {
	mu       sync.Mutex
	clock    clock.Clock
	policies map[Class]Policy
	buckets  map[Key]*bucket
}

// NewManager creates a manager. Classes missing from policies use DefaultPolicies.
func NewManager(clk clock.Clock, policies map[Class]Policy) *Manager {
	merged := make(map[Class]Policy, len(DefaultPolicies))
	for c, p := range DefaultPolicies {
		merged[c] = p
	}
	for c, p := range policies {
		if p.Burst < 1 {
			p.Burst = 1
		}
		merged[c] = p
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Manager{
		clock:    clk,
		policies: merged,
		buckets:  make(map[Key]*bucket),
	}
}

func (m *Manager) policy(c Class) Policy {
	if p, ok := m.policies[c]; ok {
		return p
	}
	return fallbackPolicy
}

func (m *Manager) bucketLocked(key Key) *bucket {
	b, ok := m.buckets[key]
	if !ok {
		p := m.policy(key.Class)
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(p.RatePerSecond), p.Burst)}
		m.buckets[key] = b
	}
	return b
}

// Acquire takes one token for key, waiting at most the class MaxWait.
// When the wait would be longer it returns a quota error without consuming a token.
func (m *Manager) Acquire(ctx context.Context, key Key) error {
	m.mu.Lock()
	b := m.bucketLocked(key)
	p := m.policy(key.Class)
	now := m.clock.Now()

	at := now
	if b.retryAt.After(now) {
		at = b.retryAt
	}
	r := b.limiter.ReserveN(at, 1)
	if !r.OK() {
		m.mu.Unlock()
		metrics.QuotaRejections.WithLabelValues(string(key.Class)).Inc()
		return apperr.Quota("ratelimit.acquire", fmt.Errorf("%s: burst too small", key))
	}
	delay := at.Sub(now) + r.DelayFrom(at)
	if delay > p.MaxWait {
		r.CancelAt(at)
		m.mu.Unlock()
		metrics.QuotaRejections.WithLabelValues(string(key.Class)).Inc()
		return apperr.Quota("ratelimit.acquire", fmt.Errorf("%s: wait %s exceeds %s", key, delay, p.MaxWait))
	}
	m.mu.Unlock()

	metrics.QuotaWait.WithLabelValues(string(key.Class)).Observe(delay.Seconds())
	if delay > 0 {
		if err := m.clock.Sleep(ctx, delay); err != nil {
			r.CancelAt(m.clock.Now())
			return err
		}
	}
	return nil
}

// Backoff blocks key until d from now, as when a service answers 429 with Retry-After.
func (m *Manager) Backoff(key Key, d time.Duration) {
	if d <= 0 {
		d = time.Minute
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.bucketLocked(key)
	until := m.clock.Now().Add(d)
	if until.After(b.retryAt) {
		b.retryAt = until
	}
}

// Tokens reports the tokens currently available for key, for diagnostics.
func (m *Manager) Tokens(key Key) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bucketLocked(key).limiter.TokensAt(m.clock.Now())
}
