package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/legalcode-service/internal/adapter/memory"
	"github.com/user/legalcode-service/internal/entity"
)

type mockBatchRunner struct {
	mock.Mock
	release chan struct{}
}

func (m *mockBatchRunner) Run(ctx context.Context, runID string) (*entity.RunSummary, error) {
	args := m.Called(runID)
	if m.release != nil {
		<-m.release
	}
	s, _ := args.Get(0).(*entity.RunSummary)
	return s, args.Error(1)
}

func TestRunManager_StartRejectsConcurrentRuns(t *testing.T) {
	runner := &mockBatchRunner{release: make(chan struct{})}
	runner.On("Run", mock.AnythingOfType("string")).Return(&entity.RunSummary{}, nil).Once()
	m := NewRunManager(context.Background(), runner, memory.NewRunRepo(), memory.NewFailureRepo(), zap.NewNop())

	id, err := m.Start(context.Background())
	require.NoError(t, err)
	assert.Len(t, id, 36)

	_, err = m.Start(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)
	_, err = m.RunNow(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(runner.release)
	m.Wait()
	runner.AssertExpectations(t)
	runner.AssertCalled(t, "Run", id)
}

func TestRunManager_RunNowAndQueries(t *testing.T) {
	ctx := context.Background()
	runs := memory.NewRunRepo()
	failures := memory.NewFailureRepo()
	summary := entity.NewRunSummary("r1", epoch)
	require.NoError(t, runs.Save(ctx, summary))
	require.NoError(t, failures.Record(ctx, &entity.FailureEvent{RunID: "r1", Stage: entity.StageFetch, Kind: "network"}))

	runner := &mockBatchRunner{}
	runner.On("Run", mock.AnythingOfType("string")).Return(summary, nil)
	m := NewRunManager(ctx, runner, runs, failures, zap.NewNop())

	got, err := m.RunNow(ctx)
	require.NoError(t, err)
	assert.Same(t, summary, got)

	latest, err := m.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r1", latest.ID)

	byID, err := m.GetStatus(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", byID.ID)

	events, err := m.Failures(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
