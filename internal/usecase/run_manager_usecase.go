package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/repository"
)

var (
	ErrRunInProgress = errors.New("a pipeline run is already in progress")
)

// RunManager starts pipeline runs and reports on them.
type RunManager interface {
	// Start launches a run in the background and returns its id.
	Start(ctx context.Context) (string, error)
	// RunNow runs synchronously and returns the final summary.
	RunNow(ctx context.Context) (*entity.RunSummary, error)
	GetStatus(ctx context.Context, id string) (*entity.RunSummary, error)
	Latest(ctx context.Context) (*entity.RunSummary, error)
	Failures(ctx context.Context, limit int) ([]*entity.FailureEvent, error)
	// Wait blocks until the background run, if any, has finished.
	Wait()
}

// BatchRunner executes one run. *Scheduler implements it.
type BatchRunner interface {
	Run(ctx context.Context, runID string) (*entity.RunSummary, error)
}

type runManagerUseCase struct {
	runner   BatchRunner
	runs     repository.RunRepository
	failures repository.FailureRepository
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
	base    context.Context
}

// NewRunManager creates a new RunManager. Background runs are bound to base,
// so cancelling base cancels them.
func NewRunManager(base context.Context, runner BatchRunner, runs repository.RunRepository, failures repository.FailureRepository, logger *zap.Logger) RunManager {
	return &runManagerUseCase{
		runner:   runner,
		runs:     runs,
		failures: failures,
		logger:   logger,
		base:     base,
	}
}

func (uc *runManagerUseCase) acquire() bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.running {
		return false
	}
	uc.running = true
	return true
}

func (uc *runManagerUseCase) release() {
	uc.mu.Lock()
	uc.running = false
	uc.mu.Unlock()
}

func (uc *runManagerUseCase) Start(_ context.Context) (string, error) {
	if !uc.acquire() {
		return "", ErrRunInProgress
	}
	runID := uuid.NewString()
	uc.wg.Add(1)
	go func() {
		defer uc.wg.Done()
		defer uc.release()
		if _, err := uc.runner.Run(uc.base, runID); err != nil {
			uc.logger.Error("Pipeline run failed", zap.String("run_id", runID), zap.Error(err))
		}
	}()
	return runID, nil
}

func (uc *runManagerUseCase) RunNow(ctx context.Context) (*entity.RunSummary, error) {
	if !uc.acquire() {
		return nil, ErrRunInProgress
	}
	defer uc.release()
	return uc.runner.Run(ctx, uuid.NewString())
}

func (uc *runManagerUseCase) GetStatus(ctx context.Context, id string) (*entity.RunSummary, error) {
	return uc.runs.FindByID(ctx, id)
}

func (uc *runManagerUseCase) Latest(ctx context.Context) (*entity.RunSummary, error) {
	return uc.runs.Latest(ctx)
}

func (uc *runManagerUseCase) Failures(ctx context.Context, limit int) ([]*entity.FailureEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	return uc.failures.ListRecent(ctx, limit)
}

func (uc *runManagerUseCase) Wait() {
	uc.wg.Wait()
}
