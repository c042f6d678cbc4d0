package usecase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/user/legalcode-service/internal/clock"
	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/extraction"
	"github.com/user/legalcode-service/internal/ratelimit"
	"github.com/user/legalcode-service/internal/repository"
	"github.com/user/legalcode-service/internal/retry"
	"github.com/user/legalcode-service/pkg/apperr"
	"github.com/user/legalcode-service/pkg/fingerprint"
	"github.com/user/legalcode-service/pkg/metrics"
	"github.com/user/legalcode-service/pkg/utils"
)

const (
	defaultBlobThreshold = 1 << 20
	defaultRecheck       = 30 * 24 * time.Hour
	sniffBytes           = 4096
)

// FetchTarget is one candidate URL and what the archival stage knows about it.
type FetchTarget struct {
	URL      string
	Snapshot *entity.ArchivedSnapshot
}

// FetchOutcome is the stored document for a target plus its raw bytes.
type FetchOutcome struct {
	Document *entity.Document
	Raw      []byte
	// CacheHit is set when the URL was fetched within the re-check interval
	// and nothing was downloaded.
	CacheHit bool
	// Reused is set when the downloaded bytes matched an existing document.
	Reused bool
}

// ContentFetcher downloads candidate URLs into content-addressed documents.
type ContentFetcher interface {
	Fetch(ctx context.Context, t FetchTarget) (*FetchOutcome, error)
	// Load returns the raw bytes of a stored document.
	Load(ctx context.Context, d *entity.Document) ([]byte, error)
}

// FetcherConfig tunes a ContentFetcher.
type FetcherConfig struct {
	BlobThreshold int64
	Recheck       time.Duration
	Retry         retry.Policy
}

type contentFetcher struct {
	fetcher  repository.Fetcher
	renderer repository.Renderer
	docs     repository.DocumentRepository
	blobs    repository.BlobStore
	cache    repository.FreshnessCache
	quotas   *ratelimit.Manager
	clock    clock.Clock
	cfg      FetcherConfig
	logger   *zap.Logger
	group    singleflight.Group
}

// NewContentFetcher creates a new ContentFetcher. renderer may be nil, in
// which case script-rendered pages are stored as fetched.
func NewContentFetcher(
	fetcher repository.Fetcher,
	renderer repository.Renderer,
	docs repository.DocumentRepository,
	blobs repository.BlobStore,
	cache repository.FreshnessCache,
	quotas *ratelimit.Manager,
	clk clock.Clock,
	cfg FetcherConfig,
	logger *zap.Logger,
) ContentFetcher {
	if cfg.BlobThreshold <= 0 {
		cfg.BlobThreshold = defaultBlobThreshold
	}
	if cfg.Recheck <= 0 {
		cfg.Recheck = defaultRecheck
	}
	return &contentFetcher{
		fetcher:  fetcher,
		renderer: renderer,
		docs:     docs,
		blobs:    blobs,
		cache:    cache,
		quotas:   quotas,
		clock:    clk,
		cfg:      cfg,
		logger:   logger,
	}
}

// payload is a downloaded body held inline or in the blob store.
type payload struct {
	source      string
	contentType string
	raw         []byte
	blobRef     string
	head        []byte
	size        int64
	hash        string
}

func (f *contentFetcher) Fetch(ctx context.Context, t FetchTarget) (*FetchOutcome, error) {
	urlHash := fingerprint.URLHash(t.URL)
	v, err, _ := f.group.Do(urlHash, func() (any, error) {
		return f.fetch(ctx, t, urlHash)
	})
	if err != nil {
		return nil, err
	}
	// Callers sharing a flight each get their own Document; extraction
	// updates its status in place. Raw is read-only.
	out := *v.(*FetchOutcome)
	doc := *out.Document
	out.Document = &doc
	return &out, nil
}

func (f *contentFetcher) fetch(ctx context.Context, t FetchTarget, urlHash string) (_ *FetchOutcome, err error) {
	ctx, span := tracer.Start(ctx, "fetch.url", trace.WithAttributes(attribute.String("url.hash", urlHash)))
	defer func() { endSpan(span, err) }()

	if out, ok := f.fromCache(ctx, urlHash); ok {
		return out, nil
	}

	sources := []string{t.URL}
	if t.Snapshot != nil && t.Snapshot.ArchiveURI != "" {
		sources = []string{t.Snapshot.ArchiveURI, t.URL}
	}

	var (
		p           *payload
		fromArchive bool
	)
	for i, src := range sources {
		p, err = f.download(ctx, src)
		if err == nil {
			fromArchive = len(sources) > 1 && i == 0
			break
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if i < len(sources)-1 {
			f.logger.Warn("Snapshot fetch failed, falling back to live URL",
				zap.String("snapshot", src), zap.String("url", t.URL), zap.Error(err))
		}
	}
	if err != nil {
		return nil, err
	}

	format := extraction.DetectFormat(p.head, p.blobRef == "", p.contentType, t.URL)
	if !extraction.Extractable(format) && format != entity.FormatUnsupported {
		f.logger.Debug("No extractor for format", zap.String("url", t.URL), zap.String("format", string(format)))
		format = entity.FormatUnsupported
	}
	if format == entity.FormatHTML && f.renderer != nil && p.blobRef == "" && extraction.NeedsRender(p.raw) {
		if rendered, rerr := f.render(ctx, t.URL); rerr == nil {
			p = &payload{
				source:      t.URL,
				contentType: "text/html; charset=utf-8",
				raw:         rendered,
				head:        rendered,
				size:        int64(len(rendered)),
				hash:        fingerprint.ContentHash(rendered),
			}
			fromArchive = false
		} else {
			f.logger.Warn("Headless render failed, keeping fetched shell", zap.String("url", t.URL), zap.Error(rerr))
		}
	}

	doc := &entity.Document{
		ContentHash:      p.hash,
		SourceURL:        t.URL,
		URLHash:          urlHash,
		Format:           format,
		ContentType:      p.contentType,
		Size:             p.size,
		Inline:           p.raw,
		BlobRef:          p.blobRef,
		Status:           entity.DocumentFetched,
		UnarchivedSource: !fromArchive,
		FetchedAt:        f.clock.Now().UTC(),
	}
	if fromArchive {
		doc.SnapshotID = t.Snapshot.SnapshotID
	}
	if format == entity.FormatUnsupported {
		doc.Status = entity.DocumentUnsupported
		doc.FailureKind = string(apperr.KindUnsupported)
	}

	created, err := f.docs.Create(ctx, doc)
	if err != nil {
		f.discardBlob(ctx, p.blobRef)
		return nil, fmt.Errorf("failed to store document for %s: %w", t.URL, err)
	}

	out := &FetchOutcome{Document: doc, Raw: p.raw}
	if !created {
		f.discardBlob(ctx, p.blobRef)
		stored, err := f.docs.FindByHash(ctx, p.hash)
		if err != nil {
			return nil, fmt.Errorf("failed to load existing document %s: %w", p.hash, err)
		}
		out.Document = stored
		out.Reused = true
	}
	if out.Raw == nil {
		if out.Raw, err = f.Load(ctx, out.Document); err != nil {
			return nil, err
		}
	}

	if err := f.cache.MarkFetched(ctx, urlHash, f.cfg.Recheck); err != nil {
		f.logger.Warn("Failed to mark URL fetched", zap.String("url", t.URL), zap.Error(err))
	}
	metrics.DocumentsFetched.WithLabelValues(string(out.Document.Format)).Inc()
	f.logger.Info("Fetched document",
		zap.String("url", t.URL),
		zap.String("source", p.source),
		zap.String("format", string(out.Document.Format)),
		zap.Int64("size", out.Document.Size),
		zap.Bool("reused", out.Reused))
	return out, nil
}

// fromCache returns the latest document for a URL fetched within the re-check interval.
func (f *contentFetcher) fromCache(ctx context.Context, urlHash string) (*FetchOutcome, bool) {
	fresh, err := f.cache.IsFresh(ctx, urlHash)
	if err != nil {
		f.logger.Warn("Freshness cache unavailable", zap.String("url_hash", urlHash), zap.Error(err))
		return nil, false
	}
	if !fresh {
		return nil, false
	}
	doc, err := f.docs.LatestByURLHash(ctx, urlHash)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			f.logger.Warn("Failed to load cached document", zap.String("url_hash", urlHash), zap.Error(err))
		}
		return nil, false
	}
	raw, err := f.Load(ctx, doc)
	if err != nil {
		f.logger.Warn("Cached document unreadable, refetching", zap.String("url_hash", urlHash), zap.Error(err))
		return nil, false
	}
	return &FetchOutcome{Document: doc, Raw: raw, CacheHit: true}, true
}

func (f *contentFetcher) download(ctx context.Context, src string) (*payload, error) {
	host := utils.Hostname(src)
	var p *payload
	_, err := f.cfg.Retry.Do(ctx, f.clock, func(ctx context.Context) error {
		if err := f.quotas.Acquire(ctx, ratelimit.FetchKey(host)); err != nil {
			return err
		}
		resp, err := f.fetcher.Fetch(ctx, src)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		p, err = f.readBody(ctx, resp)
		return err
	})
	return p, err
}

// readBody keeps bodies up to the blob threshold in memory and streams larger
// ones into the blob store while hashing them.
func (f *contentFetcher) readBody(ctx context.Context, resp *repository.FetchResponse) (*payload, error) {
	buf, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.BlobThreshold+1))
	if err != nil {
		return nil, apperr.Network("fetch.read", fmt.Errorf("%s: %w", resp.URL, err))
	}
	p := &payload{source: resp.URL, contentType: resp.ContentType}
	if int64(len(buf)) <= f.cfg.BlobThreshold {
		p.raw = buf
		p.head = buf
		p.size = int64(len(buf))
		p.hash = fingerprint.ContentHash(buf)
		return p, nil
	}

	h := sha256.New()
	cr := &countingReader{r: io.TeeReader(io.MultiReader(bytes.NewReader(buf), resp.Body), h)}
	ref, err := f.blobs.Put(ctx, cr)
	if err != nil {
		if cr.err != nil {
			return nil, apperr.Network("fetch.read", fmt.Errorf("%s: %w", resp.URL, cr.err))
		}
		return nil, fmt.Errorf("failed to store blob for %s: %w", resp.URL, err)
	}
	p.blobRef = ref
	p.head = buf[:min(len(buf), sniffBytes)]
	p.size = cr.n
	p.hash = hex.EncodeToString(h.Sum(nil))
	return p, nil
}

func (f *contentFetcher) render(ctx context.Context, rawURL string) ([]byte, error) {
	host := utils.Hostname(rawURL)
	var out []byte
	_, err := f.cfg.Retry.Do(ctx, f.clock, func(ctx context.Context) error {
		if err := f.quotas.Acquire(ctx, ratelimit.FetchKey(host)); err != nil {
			return err
		}
		b, err := f.renderer.Render(ctx, rawURL)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

func (f *contentFetcher) Load(ctx context.Context, d *entity.Document) ([]byte, error) {
	if d.BlobRef == "" {
		return d.Inline, nil
	}
	rc, err := f.blobs.Get(ctx, d.BlobRef)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob %s: %w", d.BlobRef, err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", d.BlobRef, err)
	}
	return raw, nil
}

func (f *contentFetcher) discardBlob(ctx context.Context, ref string) {
	if ref == "" {
		return
	}
	if err := f.blobs.Delete(ctx, ref); err != nil {
		f.logger.Warn("Failed to delete duplicate blob", zap.String("blob_ref", ref), zap.Error(err))
	}
}

// countingReader counts bytes read and remembers the first read error.
type countingReader struct {
	r   io.Reader
	n   int64
	err error
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if err != nil && err != io.EOF && c.err == nil {
		c.err = err
	}
	return n, err
}
