package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/repository"
)

var (
	_ repository.FailureRepository = (*FailureRepo)(nil)
	_ repository.RunRepository     = (*RunRepo)(nil)
	_ repository.DeferredQueue     = (*Queue)(nil)
	_ repository.FreshnessCache    = (*FreshnessCache)(nil)
	_ repository.KeyedLocker       = (*Locker)(nil)
	_ repository.BlobStore         = (*BlobStore)(nil)
)

// FailureRepo is an in-memory FailureRepository.
type FailureRepo struct {
	mu     sync.Mutex
	nextID int64
	events []entity.FailureEvent
}

func NewFailureRepo() *FailureRepo { return &FailureRepo{} }

func (r *FailureRepo) Record(_ context.Context, ev *entity.FailureEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	cp := *ev
	cp.ID = r.nextID
	r.events = append(r.events, cp)
	return nil
}

func (r *FailureRepo) ListRecent(_ context.Context, limit int) ([]*entity.FailureEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entity.FailureEvent, 0, limit)
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		ev := r.events[i]
		out = append(out, &ev)
	}
	return out, nil
}

// RunRepo is an in-memory RunRepository.
type RunRepo struct {
	mu   sync.RWMutex
	runs map[string]entity.RunSummary
}

func NewRunRepo() *RunRepo { return &RunRepo{runs: make(map[string]entity.RunSummary)} }

func (r *RunRepo) Save(_ context.Context, s *entity.RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	cp.Stages = make(map[entity.Stage]*entity.StageCounts, len(s.Stages))
	for st, c := range s.Stages {
		c := *c
		cp.Stages[st] = &c
	}
	r.runs[s.ID] = cp
	return nil
}

func (r *RunRepo) FindByID(_ context.Context, id string) (*entity.RunSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.runs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (r *RunRepo) Latest(_ context.Context) (*entity.RunSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *entity.RunSummary
	for _, s := range r.runs {
		s := s
		if latest == nil || s.StartedAt.After(latest.StartedAt) {
			latest = &s
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	return latest, nil
}

// Queue is an in-memory FIFO DeferredQueue.
type Queue struct {
	mu    sync.Mutex
	items []entity.UnitKey
}

func NewQueue() *Queue { return &Queue{} }

func (q *Queue) Push(_ context.Context, unit entity.UnitKey) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, unit)
	return nil
}

func (q *Queue) Pop(_ context.Context) (entity.UnitKey, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return entity.UnitKey{}, repository.ErrQueueEmpty
	}
	u := q.items[0]
	q.items = q.items[1:]
	return u, nil
}

func (q *Queue) Size(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

// FreshnessCache is an in-memory FreshnessCache driven by an injectable clock function.
type FreshnessCache struct {
	mu      sync.Mutex
	now     func() time.Time
	expires map[string]time.Time
}

// NewFreshnessCache returns a cache; a nil now uses time.Now.
func NewFreshnessCache(now func() time.Time) *FreshnessCache {
	if now == nil {
		now = time.Now
	}
	return &FreshnessCache{now: now, expires: make(map[string]time.Time)}
}

func (c *FreshnessCache) MarkFetched(_ context.Context, urlHash string, expiry time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expires[urlHash] = c.now().Add(expiry)
	return nil
}

func (c *FreshnessCache) IsFresh(_ context.Context, urlHash string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp, ok := c.expires[urlHash]
	return ok && c.now().Before(exp), nil
}

func (c *FreshnessCache) Forget(_ context.Context, urlHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.expires, urlHash)
	return nil
}

// Locker is an in-process KeyedLocker. Entries are dropped once no worker holds or waits on them.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewLocker() *Locker { return &Locker{locks: make(map[string]*keyLock)} }

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl, false)
		return nil, fmt.Errorf("lock %s: %w", key, repository.ErrLockHeld)
	}

	var once sync.Once
	return func() { once.Do(func() { l.release(key, kl, true) }) }, nil
}

func (l *Locker) release(key string, kl *keyLock, held bool) {
	if held {
		<-kl.ch
	}
	l.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

// BlobStore keeps payloads in memory.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewBlobStore() *BlobStore { return &BlobStore{blobs: make(map[string][]byte)} }

func (s *BlobStore) Put(_ context.Context, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	ref := "mem://" + uuid.NewString()
	s.mu.Lock()
	s.blobs[ref] = b
	s.mu.Unlock()
	return ref, nil
}

func (s *BlobStore) Get(_ context.Context, ref string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[ref]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *BlobStore) Delete(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, ref)
	return nil
}

// Refs lists stored references in sorted order.
func (s *BlobStore) Refs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.blobs))
	for ref := range s.blobs {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}
