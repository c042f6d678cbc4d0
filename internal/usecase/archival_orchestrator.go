package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/user/legalcode-service/internal/clock"
	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/ratelimit"
	"github.com/user/legalcode-service/internal/repository"
	"github.com/user/legalcode-service/internal/retry"
	"github.com/user/legalcode-service/pkg/apperr"
	"github.com/user/legalcode-service/pkg/fingerprint"
)

// ArchiveOutcome reports what happened to each distinct URL of a batch.
type ArchiveOutcome struct {
	// Snapshots holds the snapshot used for each URL hash that has one.
	Snapshots map[string]*entity.ArchivedSnapshot
	// Unarchived holds the URL hashes for which no snapshot could be obtained.
	Unarchived map[string]error
	// Reused counts snapshots that were still fresh and not resubmitted.
	Reused int
}

// Deferred reports whether any URL failed only because retries ran out.
func (o *ArchiveOutcome) Deferred() bool {
	for _, err := range o.Unarchived {
		if apperr.IsDeferred(err) {
			return true
		}
	}
	return false
}

// ArchivalOrchestrator makes sure candidate URLs have a snapshot in a public archive.
type ArchivalOrchestrator interface {
	// Archive ensures a snapshot for every distinct URL. Per-URL failures are
	// reported in the outcome rather than returned; only a cancelled context
	// ends the batch early.
	Archive(ctx context.Context, urls []string) (*ArchiveOutcome, error)
}

type archivalOrchestrator struct {
	provider  repository.ArchiveProvider
	snapshots repository.SnapshotRepository
	quotas    *ratelimit.Manager
	clock     clock.Clock
	retry     retry.Policy
	logger    *zap.Logger
	group     singleflight.Group
}

// NewArchivalOrchestrator creates a new ArchivalOrchestrator.
func NewArchivalOrchestrator(
	provider repository.ArchiveProvider,
	snapshots repository.SnapshotRepository,
	quotas *ratelimit.Manager,
	clk clock.Clock,
	policy retry.Policy,
	logger *zap.Logger,
) ArchivalOrchestrator {
	return &archivalOrchestrator{
		provider:  provider,
		snapshots: snapshots,
		quotas:    quotas,
		clock:     clk,
		retry:     policy,
		logger:    logger,
	}
}

type archived struct {
	snapshot *entity.ArchivedSnapshot
	reused   bool
}

func (o *archivalOrchestrator) Archive(ctx context.Context, urls []string) (*ArchiveOutcome, error) {
	out := &ArchiveOutcome{
		Snapshots:  make(map[string]*entity.ArchivedSnapshot),
		Unarchived: make(map[string]error),
	}
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		hash := fingerprint.URLHash(u)
		if _, ok := out.Snapshots[hash]; ok {
			continue
		}
		if _, ok := out.Unarchived[hash]; ok {
			continue
		}

		v, err, _ := o.group.Do(hash, func() (any, error) {
			return o.archiveOne(ctx, u, hash)
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return out, err
			}
			out.Unarchived[hash] = err
			o.logger.Warn("Archival failed, continuing with live source",
				zap.String("url", u),
				zap.String("kind", string(apperr.KindOf(err))),
				zap.Error(err))
			continue
		}
		a := v.(*archived)
		out.Snapshots[hash] = a.snapshot
		if a.reused {
			out.Reused++
		}
	}
	return out, nil
}

func (o *archivalOrchestrator) archiveOne(ctx context.Context, rawURL, hash string) (_ *archived, err error) {
	ctx, span := tracer.Start(ctx, "archive.url", trace.WithAttributes(attribute.String("url.hash", hash)))
	defer func() { endSpan(span, err) }()

	latest, err := o.snapshots.LatestByURLHash(ctx, hash)
	switch {
	case err == nil && latest.FreshAt(o.clock.Now()):
		return &archived{snapshot: latest, reused: true}, nil
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("failed to load snapshot for %s: %w", rawURL, err)
	}

	var snapshotID string
	if _, err := o.retry.Do(ctx, o.clock, func(ctx context.Context) error {
		if err := o.quotas.Acquire(ctx, ratelimit.ArchiveKey()); err != nil {
			return err
		}
		id, err := o.provider.Submit(ctx, rawURL)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindQuota {
				o.quotas.Backoff(ratelimit.ArchiveKey(), defaultQuotaBackoff)
			}
			return err
		}
		snapshotID = id
		return nil
	}); err != nil {
		return nil, err
	}

	var uri string
	if _, err := o.retry.Do(ctx, o.clock, func(ctx context.Context) error {
		if err := o.quotas.Acquire(ctx, ratelimit.ArchiveKey()); err != nil {
			return err
		}
		u, err := o.provider.Resolve(ctx, snapshotID)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindQuota {
				o.quotas.Backoff(ratelimit.ArchiveKey(), defaultQuotaBackoff)
			}
			return err
		}
		uri = u
		return nil
	}); err != nil {
		return nil, err
	}

	snap := &entity.ArchivedSnapshot{
		URLHash:    hash,
		URL:        rawURL,
		SnapshotID: snapshotID,
		ArchiveURI: uri,
		ArchivedAt: o.clock.Now().UTC(),
	}
	if err := o.snapshots.Upsert(ctx, snap); err != nil {
		return nil, fmt.Errorf("failed to save snapshot for %s: %w", rawURL, err)
	}
	o.logger.Info("Archived URL", zap.String("url", rawURL), zap.String("snapshot_id", snapshotID))
	return &archived{snapshot: snap}, nil
}
