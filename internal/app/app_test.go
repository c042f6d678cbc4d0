package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/legalcode-service/internal/adapter/notify"
	"github.com/user/legalcode-service/internal/ratelimit"
	"github.com/user/legalcode-service/pkg/apperr"
	"github.com/user/legalcode-service/pkg/config"
)

func TestPoliciesFromConfig(t *testing.T) {
	cfg := &config.Config{
		SearchRate: 0.5, SearchBurst: 2, SearchMaxWait: time.Second,
		ArchiveRate: 1, ArchiveBurst: 1, ArchiveMaxWait: time.Minute,
		FetchRate: 4, FetchBurst: 8, FetchMaxWait: 3 * time.Second,
	}
	p := Policies(cfg)

	assert.Equal(t, ratelimit.Policy{RatePerSecond: 0.5, Burst: 2, MaxWait: time.Second}, p[ratelimit.ClassSearch])
	assert.Equal(t, ratelimit.Policy{RatePerSecond: 4, Burst: 8, MaxWait: 3 * time.Second}, p[ratelimit.ClassFetch])
	assert.Len(t, p, 3)
}

func TestRetryPolicyFromConfig(t *testing.T) {
	cfg := &config.Config{RetryMaxAttempts: 3, RetryBaseDelay: time.Second, RetryMaxDelay: time.Minute, RetryMultiplier: 2, RetryJitter: 0.1}
	p := RetryPolicy(cfg)

	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.BaseDelay)
	assert.Equal(t, 0.1, p.Jitter)
}

func TestNewSearchEngine_DisabledWithoutCredentials(t *testing.T) {
	engine, err := newSearchEngine(context.Background(), &config.Config{}, nil, zap.NewNop())
	require.NoError(t, err)

	_, err = engine.Search(context.Background(), "q")
	assert.Equal(t, apperr.KindUnsupported, apperr.KindOf(err))
	assert.False(t, apperr.IsRetryable(err))
}

func TestNewNotifier_LogOnlyWithoutEventBus(t *testing.T) {
	n, err := newNotifier(context.Background(), &config.Config{}, zap.NewNop())
	require.NoError(t, err)

	multi, ok := n.(notify.Multi)
	require.True(t, ok)
	assert.Len(t, multi, 1)
}

func TestTracingConfigFromConfig(t *testing.T) {
	cfg := &config.Config{
		ServiceName: "legalcode-service", TracingExporter: "otlp",
		TracingEndpoint: "collector:4317", TracingInsecure: true, TracingSampleRate: 0.1,
	}
	tc := TracingConfig(cfg)

	assert.Equal(t, "legalcode-service", tc.ServiceName)
	assert.Equal(t, "otlp", tc.Exporter)
	assert.Equal(t, "collector:4317", tc.Endpoint)
	assert.True(t, tc.Insecure)
	assert.Equal(t, 0.1, tc.SampleRate)
	assert.Equal(t, "dev", tc.Version)
}
