package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/legalcode-service/internal/clock"
	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/repository"
	"github.com/user/legalcode-service/pkg/metrics"
)

const (
	defaultWorkers    = 8
	defaultRunTimeout = 14 * 24 * time.Hour
)

// SchedulerConfig tunes a Scheduler.
type SchedulerConfig struct {
	Workers    int
	RunTimeout time.Duration
}

// Scheduler runs a batch of units over a fixed worker pool.
type Scheduler struct {
	processor  UnitProcessor
	locations  repository.LocationRepository
	datapoints repository.DatapointRepository
	queue      repository.DeferredQueue
	runs       repository.RunRepository
	clock      clock.Clock
	cfg        SchedulerConfig
	logger     *zap.Logger
}

// NewScheduler creates a new Scheduler.
func NewScheduler(
	processor UnitProcessor,
	locations repository.LocationRepository,
	datapoints repository.DatapointRepository,
	queue repository.DeferredQueue,
	runs repository.RunRepository,
	clk clock.Clock,
	cfg SchedulerConfig,
	logger *zap.Logger,
) *Scheduler {
	if cfg.Workers < 1 {
		cfg.Workers = defaultWorkers
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}
	return &Scheduler{
		processor:  processor,
		locations:  locations,
		datapoints: datapoints,
		queue:      queue,
		runs:       runs,
		clock:      clk,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run processes every unit once: units deferred by earlier runs first, then
// every (Location, Datapoint) pair. Units still deferred at the end, and
// units not started before the run timeout, are queued for the next run.
// The summary is saved when the run starts and again when it ends.
func (s *Scheduler) Run(ctx context.Context, runID string) (*entity.RunSummary, error) {
	summary := entity.NewRunSummary(runID, s.clock.Now().UTC())
	summary.Status = entity.RunRunning
	if err := s.runs.Save(ctx, summary); err != nil {
		return nil, fmt.Errorf("failed to save run %s: %w", runID, err)
	}

	units, err := s.units(ctx)
	if err != nil {
		s.close(ctx, summary, entity.RunCancelled)
		return summary, err
	}
	s.logger.Info("Starting run", zap.String("run_id", runID), zap.Int("units", len(units)), zap.Int("workers", s.cfg.Workers))

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	taskQueue := make(chan entity.UnitKey, s.cfg.Workers*2)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		requeue []entity.UnitKey
	)
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for unit := range taskQueue {
				out := s.processor.Process(runCtx, runID, unit)
				mu.Lock()
				summary.Merge(out)
				if out.Deferred {
					requeue = append(requeue, unit)
				}
				mu.Unlock()
			}
		}()
	}

	var unstarted []entity.UnitKey
feed:
	for i, unit := range units {
		select {
		case taskQueue <- unit:
		case <-runCtx.Done():
			unstarted = units[i:]
			break feed
		}
	}
	close(taskQueue)
	wg.Wait()

	status := entity.RunCompleted
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		status = entity.RunCancelled
	case runCtx.Err() != nil:
		status = entity.RunTimedOut
	}

	// The queue outlives the run context.
	qctx := context.WithoutCancel(ctx)
	for _, unit := range append(requeue, unstarted...) {
		if err := s.queue.Push(qctx, unit); err != nil {
			s.logger.Error("Failed to queue deferred unit", zap.String("unit", unit.String()), zap.Error(err))
		}
	}
	if size, err := s.queue.Size(qctx); err == nil {
		metrics.DeferredQueueSize.Set(float64(size))
	}

	s.close(qctx, summary, status)
	s.logger.Info("Run finished",
		zap.String("run_id", runID),
		zap.String("status", string(status)),
		zap.Int("units", summary.Units),
		zap.Int("versions_created", summary.VersionsCreated),
		zap.Int("deferred_units", len(requeue)),
		zap.Int("unstarted_units", len(unstarted)))
	return summary, nil
}

func (s *Scheduler) close(ctx context.Context, summary *entity.RunSummary, status entity.RunStatus) {
	finished := s.clock.Now().UTC()
	summary.Status = status
	summary.FinishedAt = &finished
	if err := s.runs.Save(context.WithoutCancel(ctx), summary); err != nil {
		s.logger.Error("Failed to save run summary", zap.String("run_id", summary.ID), zap.Error(err))
	}
}

// units drains the deferred queue and appends every other reference pair.
// Reference data is listed first so a storage error leaves the queue intact;
// units drained before a failed Pop are pushed back.
func (s *Scheduler) units(ctx context.Context) ([]entity.UnitKey, error) {
	locs, err := s.locations.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	dps, err := s.datapoints.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list datapoints: %w", err)
	}

	seen := make(map[entity.UnitKey]bool)
	var units []entity.UnitKey
	for {
		unit, err := s.queue.Pop(ctx)
		if errors.Is(err, repository.ErrQueueEmpty) {
			break
		}
		if err != nil {
			s.restore(ctx, units)
			return nil, fmt.Errorf("failed to drain deferred queue: %w", err)
		}
		if !seen[unit] {
			seen[unit] = true
			units = append(units, unit)
		}
	}

	for _, loc := range locs {
		for _, dp := range dps {
			unit := entity.UnitKey{LocationID: loc.ID, DatapointID: dp.ID}
			if !seen[unit] {
				seen[unit] = true
				units = append(units, unit)
			}
		}
	}
	return units, nil
}

func (s *Scheduler) restore(ctx context.Context, units []entity.UnitKey) {
	qctx := context.WithoutCancel(ctx)
	for _, unit := range units {
		if err := s.queue.Push(qctx, unit); err != nil {
			s.logger.Error("Failed to restore deferred unit", zap.String("unit", unit.String()), zap.Error(err))
		}
	}
}
