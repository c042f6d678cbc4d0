package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/user/legalcode-service/internal/adapter/memory"
	"github.com/user/legalcode-service/internal/clock"
	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/extraction"
	"github.com/user/legalcode-service/internal/ratelimit"
	"github.com/user/legalcode-service/internal/repository"
	"github.com/user/legalcode-service/internal/retry"
	"github.com/user/legalcode-service/pkg/apperr"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func testRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2}
}

func testQuotas(clk clock.Clock) *ratelimit.Manager {
	p := ratelimit.Policy{RatePerSecond: 1, Burst: 1, MaxWait: 24 * time.Hour}
	return ratelimit.NewManager(clk, map[ratelimit.Class]ratelimit.Policy{
		ratelimit.ClassSearch:  p,
		ratelimit.ClassArchive: p,
		ratelimit.ClassFetch:   p,
	})
}

func salesTax() *entity.Datapoint {
	return &entity.Datapoint{ID: "sales-tax", Name: "Sales Tax", Synonyms: []string{"Sales and Use Tax", "local sales tax"}}
}

func springfield() *entity.Location {
	return &entity.Location{
		ID:       "0423456",
		Name:     "Springfield",
		State:    "IL",
		Platform: entity.PlatformMunicode,
		Domains:  []string{"springfield.il.us"},
	}
}

// fakeEngine returns scripted hits or errors, one per call; the last entry repeats.
type fakeEngine struct {
	mu      sync.Mutex
	hits    [][]entity.SearchHit
	errs    []error
	queries []string
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Search(_ context.Context, q string) ([]entity.SearchHit, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := len(e.queries)
	e.queries = append(e.queries, q)
	if len(e.errs) > 0 {
		err := e.errs[min(i, len(e.errs)-1)]
		if err != nil {
			return nil, err
		}
	}
	if len(e.hits) == 0 {
		return nil, nil
	}
	return e.hits[min(i, len(e.hits)-1)], nil
}

func (e *fakeEngine) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queries)
}

// fakeArchive hands out sequential snapshot ids and fails for listed URLs.
type fakeArchive struct {
	mu        sync.Mutex
	submitted []string
	fail      map[string]error
}

func (a *fakeArchive) Submit(_ context.Context, rawURL string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.submitted = append(a.submitted, rawURL)
	if err, ok := a.fail[rawURL]; ok {
		return "", err
	}
	return "snap-" + rawURL, nil
}

func (a *fakeArchive) Resolve(_ context.Context, id string) (string, error) {
	return "https://archive.test/" + id, nil
}

func (a *fakeArchive) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.submitted)
}

type page struct {
	body        []byte
	contentType string
	err         error
}

// fakeFetcher serves pages by URL; unknown URLs fail with a non-retryable error.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]page
	calls []string
}

func newFakeFetcher() *fakeFetcher { return &fakeFetcher{pages: make(map[string]page)} }

func (f *fakeFetcher) set(rawURL, contentType string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[rawURL] = page{body: body, contentType: contentType}
}

func (f *fakeFetcher) fail(rawURL string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[rawURL] = page{err: err}
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (*repository.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rawURL)
	p, ok := f.pages[rawURL]
	if !ok {
		return nil, apperr.Validation("fetch", errors.New("404 not found"))
	}
	if p.err != nil {
		return nil, p.err
	}
	return &repository.FetchResponse{
		URL:         rawURL,
		StatusCode:  200,
		ContentType: p.contentType,
		Body:        io.NopCloser(bytes.NewReader(p.body)),
	}, nil
}

func (f *fakeFetcher) count(rawURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == rawURL {
			n++
		}
	}
	return n
}

type fakeRenderer struct {
	html  []byte
	calls int
}

func (r *fakeRenderer) Render(context.Context, string) ([]byte, error) {
	r.calls++
	return r.html, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []*entity.FailureEvent
}

func (n *recordingNotifier) Notify(_ context.Context, ev *entity.FailureEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

// env wires every stage over memory adapters and a fake clock.
type env struct {
	clock      *clock.Fake
	locations  *memory.LocationRepo
	datapoints *memory.DatapointRepo
	queries    *memory.QueryRepo
	results    *memory.SearchResultRepo
	snapshots  *memory.SnapshotRepo
	documents  *memory.DocumentRepo
	versions   *memory.VersionRepo
	failures   *memory.FailureRepo
	runs       *memory.RunRepo
	queue      *memory.Queue
	blobs      *memory.BlobStore
	cache      *memory.FreshnessCache

	engine   *fakeEngine
	archive  *fakeArchive
	fetcher  *fakeFetcher
	notifier *recordingNotifier

	search   SearchOrchestrator
	archival ArchivalOrchestrator
	content  ContentFetcher
	pipeline UnitProcessor
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clk := clock.NewFake(epoch)
	e := &env{
		clock:      clk,
		locations:  memory.NewLocationRepo(),
		datapoints: memory.NewDatapointRepo(),
		queries:    memory.NewQueryRepo(),
		results:    memory.NewSearchResultRepo(),
		snapshots:  memory.NewSnapshotRepo(),
		documents:  memory.NewDocumentRepo(),
		versions:   memory.NewVersionRepo(),
		failures:   memory.NewFailureRepo(),
		runs:       memory.NewRunRepo(),
		queue:      memory.NewQueue(),
		blobs:      memory.NewBlobStore(),
		cache:      memory.NewFreshnessCache(clk.Now),
		engine:     &fakeEngine{},
		archive:    &fakeArchive{fail: map[string]error{}},
		fetcher:    newFakeFetcher(),
		notifier:   &recordingNotifier{},
	}
	logger := zap.NewNop()
	quotas := testQuotas(clk)

	e.search = NewSearchOrchestrator(e.engine, e.queries, e.results, quotas, clk, SearchConfig{MaxResults: 10, Retry: testRetry()}, logger)
	e.archival = NewArchivalOrchestrator(e.archive, e.snapshots, quotas, clk, testRetry(), logger)
	e.content = NewContentFetcher(e.fetcher, nil, e.documents, e.blobs, e.cache, quotas, clk, FetcherConfig{Retry: testRetry()}, logger)

	registry := extraction.NewRegistry(extraction.NewHTMLExtractor())
	e.pipeline = NewPipeline(e.locations, e.datapoints, e.failures, e.notifier, Stages{
		Generator: NewQueryGenerator(e.queries, clk, logger),
		Search:    e.search,
		Archival:  e.archival,
		Fetcher:   e.content,
		Extractor: NewDocumentExtractor(registry, e.documents, logger),
		Detector:  NewVersionDetector(e.versions, memory.NewLocker(), clk, logger),
	}, clk, PipelineConfig{MaxCandidates: 3}, logger)
	return e
}

func (e *env) seed(t *testing.T, locs []*entity.Location, dps []*entity.Datapoint) {
	t.Helper()
	ctx := context.Background()
	for _, l := range locs {
		if err := e.locations.Upsert(ctx, l); err != nil {
			t.Fatal(err)
		}
	}
	for _, d := range dps {
		if err := e.datapoints.Upsert(ctx, d); err != nil {
			t.Fatal(err)
		}
	}
}

func codePage(sections ...string) []byte {
	var b bytes.Buffer
	b.WriteString("<html><head><title>Code of Ordinances</title></head><body>")
	for i := 0; i+1 < len(sections); i += 2 {
		b.WriteString("<h2>" + sections[i] + "</h2><p>" + sections[i+1] + "</p>")
	}
	b.WriteString("</body></html>")
	return b.Bytes()
}
