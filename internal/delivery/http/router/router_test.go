package router

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/legalcode-service/internal/delivery/http/handler"
	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/internal/repository"
)

type stubRuns struct {
	latest *entity.RunSummary
}

func (s *stubRuns) Start(context.Context) (string, error) { return "run-1", nil }

func (s *stubRuns) RunNow(context.Context) (*entity.RunSummary, error) { return s.latest, nil }

func (s *stubRuns) GetStatus(_ context.Context, id string) (*entity.RunSummary, error) {
	if s.latest != nil && s.latest.ID == id {
		return s.latest, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubRuns) Latest(context.Context) (*entity.RunSummary, error) { return s.latest, nil }

func (s *stubRuns) Failures(context.Context, int) ([]*entity.FailureEvent, error) {
	return nil, nil
}

func (s *stubRuns) Wait() {}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	runs := &stubRuns{latest: entity.NewRunSummary("run-7", time.Now())}
	h := handler.NewHandler(runs, nil, zap.NewNop())
	srv := httptest.NewServer(New(h, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

func TestRouter_Routes(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		method string
		path   string
		status int
		body   string
	}{
		{http.MethodGet, "/api/health", http.StatusOK, `"status":"ok"`},
		{http.MethodPost, "/api/runs", http.StatusAccepted, `"run_id":"run-1"`},
		{http.MethodGet, "/api/runs/latest", http.StatusOK, `"id":"run-7"`},
		{http.MethodGet, "/api/runs/run-7", http.StatusOK, `"id":"run-7"`},
		{http.MethodGet, "/api/runs/unknown", http.StatusNotFound, `"error"`},
		{http.MethodGet, "/api/failures", http.StatusOK, `"failures":[]`},
		{http.MethodDelete, "/api/runs", http.StatusMethodNotAllowed, ""},
		{http.MethodGet, "/api/nothing", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, nil)
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.body != "" {
				b, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				assert.Contains(t, string(b), tt.body)
			}
		})
	}
}

func TestRouter_MetricsUseRoutePattern(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/runs/run-7")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(b), `path="/api/runs/{id}"`)
	assert.NotContains(t, string(b), `path="/api/runs/run-7"`)
}
