package repository

import (
	"context"
	"io"

	"github.com/user/legalcode-service/internal/entity"
)

// FetchResponse is a fetched payload. Callers must close Body.
type FetchResponse struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
}

// Fetcher retrieves raw bytes over HTTP.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResponse, error)
}

// Renderer loads a page in a headless browser and returns the rendered HTML.
type Renderer interface {
	Render(ctx context.Context, url string) ([]byte, error)
}

// SearchEngine runs a query against a web search service.
type SearchEngine interface {
	// Name identifies the engine for quota keys.
	Name() string
	// Search returns organic hits in rank order. Quota exhaustion, malformed
	// queries and transient failures come back as classified apperr errors.
	Search(ctx context.Context, query string) ([]entity.SearchHit, error)
}

// ArchiveProvider submits URLs to a public web archive.
type ArchiveProvider interface {
	// Submit asks the archive to capture url and returns a snapshot id.
	Submit(ctx context.Context, url string) (string, error)
	// Resolve returns the retrievable URI of a snapshot.
	Resolve(ctx context.Context, snapshotID string) (string, error)
}

// BlobStore holds payloads too large to store inline.
type BlobStore interface {
	// Put stores r under a new reference.
	Put(ctx context.Context, r io.Reader) (string, error)
	// Get opens a stored payload. Callers must close it.
	Get(ctx context.Context, ref string) (io.ReadCloser, error)
	// Delete removes a stored payload; unknown references are not an error.
	Delete(ctx context.Context, ref string) error
}

// Notifier delivers failure events to operators.
type Notifier interface {
	Notify(ctx context.Context, ev *entity.FailureEvent) error
}
