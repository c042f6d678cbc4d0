package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/user/legalcode-service/internal/clock"
	"github.com/user/legalcode-service/internal/discovery"
	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/extraction"
	"github.com/user/legalcode-service/internal/repository"
	"github.com/user/legalcode-service/pkg/apperr"
	"github.com/user/legalcode-service/pkg/fingerprint"
	"github.com/user/legalcode-service/pkg/metrics"
)

const (
	defaultMaxCandidates = 3
	// indexPageMaxChars is the text length below which an HTML page is treated
	// as an index whose links are worth following.
	indexPageMaxChars = 1500
	maxFollowedLinks  = 2
	minFollowPriority = 3
)

// SeedDiscoverer finds extra candidate URLs on a jurisdiction's own domain.
type SeedDiscoverer interface {
	Discover(ctx context.Context, domain string) ([]string, error)
}

// UnitProcessor runs every stage for one (Location, Datapoint) unit.
type UnitProcessor interface {
	// Process never returns an error: failures are contained in the outcome
	// and recorded as failure events.
	Process(ctx context.Context, runID string, unit entity.UnitKey) *entity.UnitOutcome
}

// PipelineConfig tunes a UnitProcessor.
type PipelineConfig struct {
	MaxCandidates int
}

// Stages groups the stage collaborators of a pipeline.
type Stages struct {
	Validator  *Validator
	Generator  QueryGenerator
	Search     SearchOrchestrator
	Archival   ArchivalOrchestrator
	Fetcher    ContentFetcher
	Extractor  DocumentExtractor
	Detector   VersionDetector
	Discoverer SeedDiscoverer
}

type pipelineUseCase struct {
	locations  repository.LocationRepository
	datapoints repository.DatapointRepository
	failures   repository.FailureRepository
	notifier   repository.Notifier
	stages     Stages
	clock      clock.Clock
	cfg        PipelineConfig
	logger     *zap.Logger
}

// NewPipeline creates a new UnitProcessor. Stages.Discoverer and notifier may be nil.
func NewPipeline(
	locations repository.LocationRepository,
	datapoints repository.DatapointRepository,
	failures repository.FailureRepository,
	notifier repository.Notifier,
	stages Stages,
	clk clock.Clock,
	cfg PipelineConfig,
	logger *zap.Logger,
) UnitProcessor {
	if cfg.MaxCandidates < 1 {
		cfg.MaxCandidates = defaultMaxCandidates
	}
	if stages.Validator == nil {
		stages.Validator = NewValidator()
	}
	return &pipelineUseCase{
		locations:  locations,
		datapoints: datapoints,
		failures:   failures,
		notifier:   notifier,
		stages:     stages,
		clock:      clk,
		cfg:        cfg,
		logger:     logger,
	}
}

// unitRun carries the state of one unit through its stages.
type unitRun struct {
	runID   string
	unit    entity.UnitKey
	hash    string
	outcome *entity.UnitOutcome
	loc     *entity.Location
	dp      *entity.Datapoint
}

func (p *pipelineUseCase) Process(ctx context.Context, runID string, unit entity.UnitKey) *entity.UnitOutcome {
	ctx, span := tracer.Start(ctx, "pipeline.unit", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("unit", unit.String()),
	))
	defer span.End()

	metrics.UnitsInFlight.Inc()
	defer metrics.UnitsInFlight.Dec()

	u := &unitRun{
		runID:   runID,
		unit:    unit,
		hash:    fingerprint.UnitKey(unit.LocationID, unit.DatapointID),
		outcome: entity.NewUnitOutcome(unit),
	}
	p.logger.Info("Processing unit", zap.String("run_id", runID), zap.String("unit", unit.String()))
	startTime := p.clock.Now()

	p.run(ctx, u)

	p.logger.Info("Unit finished",
		zap.String("run_id", runID),
		zap.String("unit", unit.String()),
		zap.Bool("version_created", u.outcome.VersionCreated),
		zap.Bool("deferred", u.outcome.Deferred),
		zap.Duration("duration", p.clock.Now().Sub(startTime)))
	return u.outcome
}

func (p *pipelineUseCase) run(ctx context.Context, u *unitRun) {
	// Validate
	started := p.clock.Now()
	err := p.loadUnit(ctx, u)
	if p.finish(ctx, u, entity.StageValidate, u.hash, started, err) != entity.StateCompleted {
		return
	}

	// Query
	var queries []*entity.Query
	started = p.clock.Now()
	for _, platform := range u.loc.Platforms() {
		q, qerr := p.stages.Generator.Generate(ctx, u.loc, u.dp, platform)
		if qerr != nil {
			err = qerr
			continue
		}
		queries = append(queries, q)
	}
	if len(queries) > 0 {
		err = nil
	}
	queryHash := u.hash
	if len(queries) > 0 {
		queryHash = queries[0].Hash
	}
	p.finish(ctx, u, entity.StageQuery, queryHash, started, err)

	// Search. A failed or deferred search still lets seed URLs through.
	var results []*entity.SearchResult
	if len(queries) > 0 {
		started = p.clock.Now()
		var searchErr error
		hits := 0
		for _, q := range queries {
			out, err := p.stages.Search.Run(ctx, q)
			if err != nil {
				searchErr = err
				continue
			}
			if out.CacheHit {
				hits++
			}
			results = append(results, out.Results...)
		}
		if searchErr == nil && hits == len(queries) {
			u.outcome.Hit(entity.StageSearch)
		}
		p.finish(ctx, u, entity.StageSearch, queryHash, started, searchErr)
	}
	if ctx.Err() != nil {
		u.outcome.Deferred = true
		return
	}

	candidates := p.candidates(ctx, u, results)
	if len(candidates) == 0 {
		p.logger.Info("No candidate URLs for unit", zap.String("unit", u.unit.String()))
		return
	}

	// Archive
	started = p.clock.Now()
	archived, err := p.stages.Archival.Archive(ctx, candidates)
	if err == nil && archived != nil {
		if len(archived.Snapshots) == 0 {
			err = firstError(archived.Unarchived)
		} else if archived.Reused == len(archived.Snapshots) && len(archived.Unarchived) == 0 {
			u.outcome.Hit(entity.StageArchive)
		}
	}
	p.finish(ctx, u, entity.StageArchive, u.hash, started, err)
	if ctx.Err() != nil {
		u.outcome.Deferred = true
		return
	}

	// Fetch and extract
	doc, res := p.acquire(ctx, u, candidates, archived)
	if doc == nil || res == nil {
		return
	}

	// Version
	started = p.clock.Now()
	vout, err := p.stages.Detector.Detect(ctx, u.unit, doc, res)
	if err == nil && vout.Created {
		u.outcome.VersionCreated = true
	}
	p.finish(ctx, u, entity.StageVersion, u.hash, started, err)
}

func (p *pipelineUseCase) loadUnit(ctx context.Context, u *unitRun) error {
	loc, err := p.locations.FindByID(ctx, u.unit.LocationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.Validation("validate.location", fmt.Errorf("location %s: %w", u.unit.LocationID, err))
		}
		return err
	}
	dp, err := p.datapoints.FindByID(ctx, u.unit.DatapointID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.Validation("validate.datapoint", fmt.Errorf("datapoint %s: %w", u.unit.DatapointID, err))
		}
		return err
	}
	if err := p.stages.Validator.Location(loc); err != nil {
		return err
	}
	if err := p.stages.Validator.Datapoint(dp); err != nil {
		return err
	}
	u.loc, u.dp = loc, dp
	return nil
}

// candidates orders search results by rank, then seed URLs, then sitemap
// entries from the location's domains when the first two leave room.
func (p *pipelineUseCase) candidates(ctx context.Context, u *unitRun, results []*entity.SearchResult) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(raw string) {
		h := fingerprint.URLHash(raw)
		if raw == "" || seen[h] {
			return
		}
		seen[h] = true
		out = append(out, raw)
	}
	for _, r := range results {
		add(r.URL)
	}
	for _, s := range u.loc.SeedURLs {
		add(s)
	}

	if len(out) >= p.cfg.MaxCandidates || p.stages.Discoverer == nil {
		return out
	}
	for _, domain := range u.loc.Domains {
		found, err := p.stages.Discoverer.Discover(ctx, domain)
		if err != nil {
			p.logger.Warn("Sitemap discovery failed", zap.String("domain", domain), zap.Error(err))
			continue
		}
		for _, f := range found {
			if len(out) >= p.cfg.MaxCandidates {
				return out
			}
			add(f)
		}
	}
	return out
}

// acquire fetches candidates in order until one extracts. Short HTML index
// pages have their legal links tried before falling back to the page itself.
func (p *pipelineUseCase) acquire(ctx context.Context, u *unitRun, candidates []string, archived *ArchiveOutcome) (*entity.Document, *extraction.Result) {
	queue := append([]string(nil), candidates...)
	limit := p.cfg.MaxCandidates
	tried := make(map[string]bool)

	fetchStarted := p.clock.Now()
	var extractElapsed time.Duration
	var fetchErr, extractErr error
	var fetchedAny, allCached = false, true

	var chosenDoc, fallbackDoc *entity.Document
	var chosenRes, fallbackRes *extraction.Result

	for attempts := 0; len(queue) > 0 && attempts < limit; attempts++ {
		rawURL := queue[0]
		queue = queue[1:]
		urlHash := fingerprint.URLHash(rawURL)
		if tried[urlHash] {
			attempts--
			continue
		}
		tried[urlHash] = true

		target := FetchTarget{URL: rawURL}
		if archived != nil {
			target.Snapshot = archived.Snapshots[urlHash]
		}
		fo, err := p.stages.Fetcher.Fetch(ctx, target)
		if err != nil {
			fetchErr = err
			if ctx.Err() != nil {
				break
			}
			p.logger.Warn("Fetch failed", zap.String("unit", u.unit.String()), zap.String("url", rawURL), zap.Error(err))
			continue
		}
		fetchedAny = true
		allCached = allCached && fo.CacheHit

		doc := fo.Document
		if doc.Format == entity.FormatUnsupported {
			extractErr = apperr.Unsupported("extraction.extract", fmt.Errorf("%s: unsupported payload", rawURL))
			continue
		}

		extractStarted := p.clock.Now()
		res, err := p.stages.Extractor.Extract(ctx, doc, fo.Raw)
		extractElapsed += p.clock.Now().Sub(extractStarted)
		if err != nil {
			extractErr = err
			p.logger.Warn("Extraction failed",
				zap.String("unit", u.unit.String()),
				zap.String("url", rawURL),
				zap.String("kind", string(apperr.KindOf(err))),
				zap.Error(err))
			continue
		}

		if doc.Format == entity.FormatHTML && len(res.Text) < indexPageMaxChars && fallbackDoc == nil {
			if follow := p.followLinks(u, rawURL, fo.Raw, tried); len(follow) > 0 {
				fallbackDoc, fallbackRes = doc, res
				queue = append(follow, queue...)
				limit += len(follow)
				continue
			}
		}
		chosenDoc, chosenRes = doc, res
		break
	}
	if chosenDoc == nil && fallbackDoc != nil {
		chosenDoc, chosenRes = fallbackDoc, fallbackRes
		extractErr = nil
	}

	if !fetchedAny {
		p.finish(ctx, u, entity.StageFetch, u.hash, fetchStarted, orDefault(fetchErr, "no candidate could be fetched"))
		return nil, nil
	}
	if allCached {
		u.outcome.Hit(entity.StageFetch)
	}
	p.finish(ctx, u, entity.StageFetch, u.hash, fetchStarted, nil)

	extractHash := u.hash
	if chosenDoc != nil {
		extractHash = chosenDoc.ContentHash
		extractErr = nil
	}
	p.finishTimed(ctx, u, entity.StageExtract, extractHash, extractElapsed, orDefault(extractErr, ""))
	return chosenDoc, chosenRes
}

func (p *pipelineUseCase) followLinks(u *unitRun, pageURL string, raw []byte, tried map[string]bool) []string {
	whitelist := append([]string(nil), u.loc.Domains...)
	whitelist = append(whitelist, platformHosts[u.loc.Platform]...)
	links, err := discovery.ExtractLinks(pageURL, raw, whitelist)
	if err != nil {
		return nil
	}
	var out []string
	for _, l := range links {
		if len(out) >= maxFollowedLinks {
			break
		}
		if l.Priority < minFollowPriority || tried[fingerprint.URLHash(l.URL)] {
			continue
		}
		out = append(out, l.URL)
	}
	return out
}

var platformHosts = map[entity.Platform][]string{
	entity.PlatformMunicode:      {"library.municode.com"},
	entity.PlatformAmericanLegal: {"codelibrary.amlegal.com"},
	entity.PlatformGeneralCode:   {"ecode360.com"},
}

// finish classifies err into a stage state, records it and returns it.
func (p *pipelineUseCase) finish(ctx context.Context, u *unitRun, stage entity.Stage, hash string, started time.Time, err error) entity.StageState {
	return p.finishTimed(ctx, u, stage, hash, p.clock.Now().Sub(started), err)
}

func (p *pipelineUseCase) finishTimed(ctx context.Context, u *unitRun, stage entity.Stage, hash string, elapsed time.Duration, err error) entity.StageState {
	state := entity.StateCompleted
	switch {
	case err == nil:
	case apperr.IsDeferred(err), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		state = entity.StateDeferred
	default:
		state = entity.StateFailed
	}

	u.outcome.Set(stage, state)
	metrics.StageOutcomes.WithLabelValues(string(stage), string(state)).Inc()
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())

	switch state {
	case entity.StateDeferred:
		p.logger.Warn("Stage deferred",
			zap.String("run_id", u.runID),
			zap.String("unit", u.unit.String()),
			zap.String("stage", string(stage)),
			zap.Error(err))
	case entity.StateFailed:
		p.logger.Error("Stage failed",
			zap.String("run_id", u.runID),
			zap.String("unit", u.unit.String()),
			zap.String("stage", string(stage)),
			zap.String("kind", string(apperr.KindOf(err))),
			zap.Error(err))
		p.recordFailure(ctx, u, stage, hash, err)
	}
	return state
}

func (p *pipelineUseCase) recordFailure(ctx context.Context, u *unitRun, stage entity.Stage, hash string, err error) {
	ev := &entity.FailureEvent{
		RunID:      u.runID,
		Stage:      stage,
		Hash:       hash,
		Kind:       string(apperr.KindOf(err)),
		Message:    err.Error(),
		OccurredAt: p.clock.Now().UTC(),
	}
	// Recorded even when the run context is cancelled.
	ctx = context.WithoutCancel(ctx)
	if err := p.failures.Record(ctx, ev); err != nil {
		p.logger.Error("Failed to record failure event", zap.String("stage", string(stage)), zap.Error(err))
	}
	if p.notifier == nil || ev.Kind == string(apperr.KindUnsupported) {
		return
	}
	if err := p.notifier.Notify(ctx, ev); err != nil {
		p.logger.Warn("Failed to send failure alert", zap.String("stage", string(stage)), zap.Error(err))
	}
}

func firstError(errs map[string]error) error {
	for _, err := range errs {
		return err
	}
	return nil
}

// orDefault returns err, or an unknown-kind error with msg when err is nil
// and msg is set.
func orDefault(err error, msg string) error {
	if err != nil || msg == "" {
		return err
	}
	return apperr.New(apperr.KindUnknown, "pipeline", errors.New(msg))
}
