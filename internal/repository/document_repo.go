package repository

import (
	"context"

	"github.com/user/legalcode-service/internal/entity"
)

// DocumentRepository stores content-addressed raw documents.
type DocumentRepository interface {
	// Create inserts d unless a document with the same content hash exists.
	// It reports whether a row was written.
	Create(ctx context.Context, d *entity.Document) (bool, error)
	// FindByHash returns ErrNotFound when the hash is unknown.
	FindByHash(ctx context.Context, contentHash string) (*entity.Document, error)
	// LatestByURLHash returns the most recently fetched document for a URL.
	LatestByURLHash(ctx context.Context, urlHash string) (*entity.Document, error)
	// UpdateStatus records the extraction outcome for a document.
	UpdateStatus(ctx context.Context, contentHash string, status entity.DocumentStatus, failureKind string) error
}
