package usecase

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/extraction"
	"github.com/user/legalcode-service/internal/repository"
	"github.com/user/legalcode-service/pkg/apperr"
)

// DocumentExtractor runs extraction for a stored document and records the
// outcome on it.
type DocumentExtractor interface {
	Extract(ctx context.Context, doc *entity.Document, raw []byte) (*extraction.Result, error)
}

type documentExtractor struct {
	registry *extraction.Registry
	docs     repository.DocumentRepository
	logger   *zap.Logger
}

// NewDocumentExtractor creates a new DocumentExtractor.
func NewDocumentExtractor(registry *extraction.Registry, docs repository.DocumentRepository, logger *zap.Logger) DocumentExtractor {
	return &documentExtractor{registry: registry, docs: docs, logger: logger}
}

func (e *documentExtractor) Extract(ctx context.Context, doc *entity.Document, raw []byte) (_ *extraction.Result, err error) {
	ctx, span := tracer.Start(ctx, "extract.document", trace.WithAttributes(
		attribute.String("content.hash", doc.ContentHash),
		attribute.String("format", string(doc.Format)),
	))
	defer func() { endSpan(span, err) }()

	res, err := e.registry.Extract(ctx, doc.Format, extraction.Input{
		Raw:         raw,
		ContentType: doc.ContentType,
		URL:         doc.SourceURL,
	})
	if err != nil {
		kind := apperr.KindOf(err)
		status := entity.DocumentExtractionFailed
		if kind == apperr.KindUnsupported {
			status = entity.DocumentUnsupported
		}
		e.setStatus(ctx, doc, status, string(kind))
		return nil, err
	}
	e.setStatus(ctx, doc, entity.DocumentExtracted, "")
	return res, nil
}

func (e *documentExtractor) setStatus(ctx context.Context, doc *entity.Document, status entity.DocumentStatus, kind string) {
	if doc.Status == status && doc.FailureKind == kind {
		return
	}
	if err := e.docs.UpdateStatus(ctx, doc.ContentHash, status, kind); err != nil {
		e.logger.Warn("Failed to update document status",
			zap.String("content_hash", doc.ContentHash),
			zap.String("status", string(status)),
			zap.Error(err))
		return
	}
	doc.Status = status
	doc.FailureKind = kind
}
