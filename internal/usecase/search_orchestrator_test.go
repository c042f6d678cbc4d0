package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/legalcode-service/internal/entity"
	"github.com/user/legalcode-service/pkg/apperr"
)

func generate(t *testing.T, e *env, loc *entity.Location, dp *entity.Datapoint, platform entity.Platform) *entity.Query {
	t.Helper()
	q, err := NewQueryGenerator(e.queries, e.clock, zap.NewNop()).Generate(context.Background(), loc, dp, platform)
	require.NoError(t, err)
	return q
}

func TestSearchOrchestrator_FreshnessWindow(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.engine.hits = [][]entity.SearchHit{{
		{URL: "https://library.municode.com/il/springfield/codes/code_of_ordinances?nodeId=CH38TA", Title: "Chapter 38 - Taxation"},
		{URL: "https://library.municode.com/il/springfield/codes/code_of_ordinances?nodeId=CH38TA", Title: "duplicate"},
		{URL: "https://library.municode.com/il/springfield/codes/code_of_ordinances?nodeId=APXA", Title: "Appendix A"},
	}}
	q := generate(t, e, springfield(), salesTax(), entity.PlatformMunicode)

	first, err := e.search.Run(ctx, q)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.Equal(t, entity.QueryCompletedWithResults, first.Query.Status)
	assert.Equal(t, 2, first.Query.ResultCount)
	require.Len(t, first.Results, 2)
	assert.Equal(t, 1, first.Results[0].Rank)
	assert.Equal(t, 2, first.Results[1].Rank)
	assert.Equal(t, 1, e.engine.calls())

	e.clock.Advance(200 * 24 * time.Hour)
	second, err := e.search.Run(ctx, q)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Len(t, second.Results, 2)
	assert.Equal(t, 1, e.engine.calls(), "a fresh query must not hit the engine")

	e.clock.Advance(200 * 24 * time.Hour)
	third, err := e.search.Run(ctx, q)
	require.NoError(t, err)
	assert.False(t, third.CacheHit)
	assert.Equal(t, 2, e.engine.calls())

	stored, err := e.queries.FindByHash(ctx, q.Hash)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Attempts)
	assert.Equal(t, e.clock.Now(), *stored.LastRunAt)
}

func TestSearchOrchestrator_NoResults(t *testing.T) {
	e := newEnv(t)
	q := generate(t, e, springfield(), salesTax(), entity.PlatformMunicode)

	out, err := e.search.Run(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, entity.QueryCompletedNoResults, out.Query.Status)
	assert.Empty(t, out.Results)

	again, err := e.search.Run(context.Background(), q)
	require.NoError(t, err)
	assert.True(t, again.CacheHit, "an empty result set is still a completed run")
}

func TestSearchOrchestrator_QuotaExhaustionDefers(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.engine.errs = []error{apperr.Quota("google.search", errors.New("429 rateLimitExceeded"))}
	q := generate(t, e, springfield(), salesTax(), entity.PlatformMunicode)

	out, err := e.search.Run(ctx, q)
	require.Error(t, err)
	assert.True(t, apperr.IsDeferred(err))
	assert.Equal(t, apperr.KindQuota, apperr.KindOf(err))
	assert.Equal(t, entity.QueryFailed, out.Query.Status)
	assert.Equal(t, 3, e.engine.calls())

	stored, err := e.queries.FindByHash(ctx, q.Hash)
	require.NoError(t, err)
	assert.Equal(t, entity.QueryFailed, stored.Status)
	assert.Equal(t, 3, stored.Attempts)
	assert.NotEmpty(t, stored.LastError)

	// The next run retries the failed query and succeeds.
	e.engine.errs = nil
	e.engine.hits = [][]entity.SearchHit{{{URL: "https://library.municode.com/il/springfield/codes/x"}}}
	out, err = e.search.Run(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, entity.QueryCompletedWithResults, out.Query.Status)
	assert.Equal(t, 4, out.Query.Attempts)
	assert.Empty(t, out.Query.LastError)
}

func TestSearchOrchestrator_MalformedQueryFailsWithoutRetry(t *testing.T) {
	e := newEnv(t)
	e.engine.errs = []error{apperr.Validation("google.search", errors.New("400 invalid query"))}
	q := generate(t, e, springfield(), salesTax(), entity.PlatformMunicode)

	out, err := e.search.Run(context.Background(), q)
	require.Error(t, err)
	assert.False(t, apperr.IsDeferred(err))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, entity.QueryFailed, out.Query.Status)
	assert.Equal(t, 1, e.engine.calls())
}

func TestSearchOrchestrator_MaxResults(t *testing.T) {
	e := newEnv(t)
	var hits []entity.SearchHit
	for _, p := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"} {
		hits = append(hits, entity.SearchHit{URL: "https://library.municode.com/il/springfield/" + p})
	}
	e.engine.hits = [][]entity.SearchHit{hits}
	q := generate(t, e, springfield(), salesTax(), entity.PlatformMunicode)

	out, err := e.search.Run(context.Background(), q)
	require.NoError(t, err)
	assert.Len(t, out.Results, 10)
	assert.Equal(t, 10, e.results.Count())
}
