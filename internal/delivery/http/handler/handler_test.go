package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/repository"
	"github.com/user/legalcode-service/internal/usecase"
)

type mockRunManager struct {
	mock.Mock
}

func (m *mockRunManager) Start(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockRunManager) RunNow(ctx context.Context) (*entity.RunSummary, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(*entity.RunSummary)
	return s, args.Error(1)
}

func (m *mockRunManager) GetStatus(ctx context.Context, id string) (*entity.RunSummary, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*entity.RunSummary)
	return s, args.Error(1)
}

func (m *mockRunManager) Latest(ctx context.Context) (*entity.RunSummary, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(*entity.RunSummary)
	return s, args.Error(1)
}

func (m *mockRunManager) Failures(ctx context.Context, limit int) ([]*entity.FailureEvent, error) {
	args := m.Called(ctx, limit)
	evs, _ := args.Get(0).([]*entity.FailureEvent)
	return evs, args.Error(1)
}

func (m *mockRunManager) Wait() {}

func newTestHandler(runs usecase.RunManager, checks map[string]HealthCheck) *Handler {
	return NewHandler(runs, checks, zap.NewNop())
}

func TestHandleStartRun_Async(t *testing.T) {
	runs := new(mockRunManager)
	runs.On("Start", mock.Anything).Return("run-1", nil)
	h := newTestHandler(runs, nil)

	rec := httptest.NewRecorder()
	h.HandleStartRun(rec, httptest.NewRequest(http.MethodPost, "/api/runs", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "run-1", body["run_id"])
	runs.AssertExpectations(t)
}

func TestHandleStartRun_Wait(t *testing.T) {
	runs := new(mockRunManager)
	summary := entity.NewRunSummary("run-2", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	summary.Status = entity.RunCompleted
	summary.VersionsCreated = 3
	runs.On("RunNow", mock.Anything).Return(summary, nil)
	h := newTestHandler(runs, nil)

	rec := httptest.NewRecorder()
	h.HandleStartRun(rec, httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(`{"wait":true}`)))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "completed", body["status"])
	assert.EqualValues(t, 3, body["versions_created"])
	runs.AssertNotCalled(t, "Start", mock.Anything)
}

func TestHandleStartRun_Conflict(t *testing.T) {
	runs := new(mockRunManager)
	runs.On("Start", mock.Anything).Return("", usecase.ErrRunInProgress)
	h := newTestHandler(runs, nil)

	rec := httptest.NewRecorder()
	h.HandleStartRun(rec, httptest.NewRequest(http.MethodPost, "/api/runs", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleStartRun_BadBody(t *testing.T) {
	h := newTestHandler(new(mockRunManager), nil)

	rec := httptest.NewRecorder()
	h.HandleStartRun(rec, httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(`{"wait":`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetRun(t *testing.T) {
	runs := new(mockRunManager)
	runs.On("GetStatus", mock.Anything, "missing").Return(nil, repository.ErrNotFound)
	runs.On("GetStatus", mock.Anything, "run-3").Return(entity.NewRunSummary("run-3", time.Now()), nil)
	h := newTestHandler(runs, nil)

	get := func(id string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/runs/"+id, nil)
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", id)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
		rec := httptest.NewRecorder()
		h.HandleGetRun(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNotFound, get("missing").Code)

	rec := get("run-3")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"run-3"`)
}

func TestHandleLatestRun_Error(t *testing.T) {
	runs := new(mockRunManager)
	runs.On("Latest", mock.Anything).Return(nil, errors.New("db down"))
	h := newTestHandler(runs, nil)

	rec := httptest.NewRecorder()
	h.HandleLatestRun(rec, httptest.NewRequest(http.MethodGet, "/api/runs/latest", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestHandleListFailures(t *testing.T) {
	runs := new(mockRunManager)
	runs.On("Failures", mock.Anything, 50).Return([]*entity.FailureEvent{
		{RunID: "run-1", Stage: entity.StageSearch, Kind: "quota", Message: "daily limit"},
	}, nil)
	runs.On("Failures", mock.Anything, 5).Return([]*entity.FailureEvent{}, nil)
	h := newTestHandler(runs, nil)

	tests := []struct {
		name   string
		query  string
		status int
		count  int
	}{
		{"default limit", "", http.StatusOK, 1},
		{"explicit limit", "?limit=5", http.StatusOK, 0},
		{"not a number", "?limit=abc", http.StatusBadRequest, -1},
		{"too large", "?limit=501", http.StatusBadRequest, -1},
		{"zero", "?limit=0", http.StatusBadRequest, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.HandleListFailures(rec, httptest.NewRequest(http.MethodGet, "/api/failures"+tt.query, nil))
			assert.Equal(t, tt.status, rec.Code)
			if tt.count < 0 {
				return
			}
			var body struct {
				Failures []map[string]any `json:"failures"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Len(t, body.Failures, tt.count)
		})
	}
}

func TestHandleHealthCheck(t *testing.T) {
	healthy := func(context.Context) error { return nil }
	broken := func(context.Context) error { return errors.New("connection refused") }

	t.Run("all healthy", func(t *testing.T) {
		h := newTestHandler(new(mockRunManager), map[string]HealthCheck{"postgres": healthy, "redis": healthy})
		rec := httptest.NewRecorder()
		h.HandleHealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		var body map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "healthy", body["redis"])
	})

	t.Run("degraded", func(t *testing.T) {
		h := newTestHandler(new(mockRunManager), map[string]HealthCheck{"postgres": healthy, "redis": broken})
		rec := httptest.NewRecorder()
		h.HandleHealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var body map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, "unhealthy", body["redis"])
		assert.Equal(t, "healthy", body["postgres"])
	})
}
