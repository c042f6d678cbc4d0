package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/user/legalcode-service/internal/clock"
	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/extraction"
	"github.com/user/legalcode-service/internal/repository"
	"github.com/user/legalcode-service/internal/sectiondiff"
	"github.com/user/legalcode-service/pkg/fingerprint"
	"github.com/user/legalcode-service/pkg/metrics"
)

// unarchivedConfidence scales the confidence of versions built from bytes
// that did not come from an archived snapshot.
const unarchivedConfidence = 0.5

// VersionOutcome describes what the detector decided for one extraction.
type VersionOutcome struct {
	// Version is the new version when Created, otherwise the current latest.
	Version *entity.DocumentVersion
	Change  *entity.ChangeRecord
	Created bool
	// Reason explains why no version was created.
	Reason string
}

// VersionDetector decides whether an extraction is a new version of a unit's document.
type VersionDetector interface {
	Detect(ctx context.Context, unit entity.UnitKey, doc *entity.Document, res *extraction.Result) (*VersionOutcome, error)
}

type versionDetector struct {
	versions repository.VersionRepository
	locker   repository.KeyedLocker
	clock    clock.Clock
	logger   *zap.Logger
}

// NewVersionDetector creates a new VersionDetector.
func NewVersionDetector(versions repository.VersionRepository, locker repository.KeyedLocker, clk clock.Clock, logger *zap.Logger) VersionDetector {
	return &versionDetector{versions: versions, locker: locker, clock: clk, logger: logger}
}

func (d *versionDetector) Detect(ctx context.Context, unit entity.UnitKey, doc *entity.Document, res *extraction.Result) (_ *VersionOutcome, err error) {
	ctx, span := tracer.Start(ctx, "version.detect", trace.WithAttributes(attribute.String("unit", unit.String())))
	defer func() { endSpan(span, err) }()

	unlock, err := d.locker.Lock(ctx, fingerprint.UnitKey(unit.LocationID, unit.DatapointID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", unit, err)
	}
	defer unlock()

	latest, err := d.versions.Latest(ctx, unit.LocationID, unit.DatapointID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to load latest version of %s: %w", unit, err)
	}

	textHash := fingerprint.ContentHash([]byte(res.Text))
	now := d.clock.Now().UTC()

	if latest == nil {
		v := d.newVersion(unit, 1, doc, res, textHash, now)
		rec := &entity.ChangeRecord{
			LocationID:  unit.LocationID,
			DatapointID: unit.DatapointID,
			FromVersion: 0,
			ToVersion:   1,
			DetectedAt:  now,
		}
		return d.create(ctx, unit, v, rec)
	}

	switch {
	case latest.ContentHash == doc.ContentHash:
		return &VersionOutcome{Version: latest, Reason: "content unchanged"}, nil
	case latest.TextHash == textHash:
		return &VersionOutcome{Version: latest, Reason: "text unchanged"}, nil
	}

	next := latest.Version + 1
	diff, err := sectiondiff.Compare(latest.Sections, res.Sections, sectiondiff.Labels{
		From: "v" + strconv.Itoa(latest.Version),
		To:   "v" + strconv.Itoa(next),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to diff %s: %w", unit, err)
	}
	if diff.Empty() {
		return &VersionOutcome{Version: latest, Reason: "no section changes"}, nil
	}

	v := d.newVersion(unit, next, doc, res, textHash, now)
	rec := &entity.ChangeRecord{
		LocationID:  unit.LocationID,
		DatapointID: unit.DatapointID,
		FromVersion: latest.Version,
		ToVersion:   next,
		Added:       diff.Added,
		Removed:     diff.Removed,
		Modified:    diff.Modified,
		Patch:       diff.Patch,
		DetectedAt:  now,
	}
	return d.create(ctx, unit, v, rec)
}

func (d *versionDetector) newVersion(unit entity.UnitKey, n int, doc *entity.Document, res *extraction.Result, textHash string, now time.Time) *entity.DocumentVersion {
	return &entity.DocumentVersion{
		LocationID:  unit.LocationID,
		DatapointID: unit.DatapointID,
		Version:     n,
		ContentHash: doc.ContentHash,
		TextHash:    textHash,
		Text:        res.Text,
		Sections:    res.Sections,
		Title:       res.Title,
		Author:      res.Author,
		Citation:    res.Citation,
		Confidence:  versionConfidence(doc, res),
		CreatedAt:   now,
	}
}

func (d *versionDetector) create(ctx context.Context, unit entity.UnitKey, v *entity.DocumentVersion, rec *entity.ChangeRecord) (*VersionOutcome, error) {
	if err := d.versions.Create(ctx, v, rec); err != nil {
		return nil, fmt.Errorf("failed to create version %d of %s: %w", v.Version, unit, err)
	}
	metrics.VersionsCreated.Inc()
	d.logger.Info("Created document version",
		zap.String("unit", unit.String()),
		zap.Int("version", v.Version),
		zap.Int("added", len(rec.Added)),
		zap.Int("removed", len(rec.Removed)),
		zap.Int("modified", len(rec.Modified)))
	return &VersionOutcome{Version: v, Change: rec, Created: true}, nil
}

// versionConfidence is the extraction confidence, downgraded when the source
// was not archived. nil means full confidence.
func versionConfidence(doc *entity.Document, res *extraction.Result) *float64 {
	if !doc.UnarchivedSource {
		return res.Confidence
	}
	c := 1.0
	if res.Confidence != nil {
		c = *res.Confidence
	}
	c *= unarchivedConfidence
	return &c
}
