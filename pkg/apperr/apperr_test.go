package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := errors.New("connection reset")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"network", Network("fetch", base), KindNetwork},
		{"wrapped quota", fmt.Errorf("search: %w", Quota("acquire", nil)), KindQuota},
		{"plain error", base, KindUnknown},
		{"nil", nil, KindUnknown},
		{"deferred keeps inner kind", fmt.Errorf("%w: %w", ErrDeferred, Network("fetch", base)), KindNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Network("op", nil)))
	assert.True(t, IsRetryable(Quota("op", nil)))
	assert.False(t, IsRetryable(Validation("op", nil)))
	assert.False(t, IsRetryable(Extraction("op", nil)))
	assert.False(t, IsRetryable(ArchivalUnavailable("op", nil)))
	assert.False(t, IsRetryable(errors.New("boom")))
}

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("stage: %w", Quota("ratelimit.acquire", errors.New("wait too long")))

	assert.True(t, errors.Is(err, Quota("", nil)))
	assert.True(t, errors.Is(err, Quota("ratelimit.acquire", nil)))
	assert.False(t, errors.Is(err, Quota("other", nil)))
	assert.False(t, errors.Is(err, Network("", nil)))
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "fetch: network: timeout", Network("fetch", errors.New("timeout")).Error())
	assert.Equal(t, "extract: unsupported", Unsupported("extract", nil).Error())
}

func TestIsDeferred(t *testing.T) {
	assert.True(t, IsDeferred(fmt.Errorf("%w: %w", ErrDeferred, Network("x", nil))))
	assert.False(t, IsDeferred(Network("x", nil)))
}

func TestFromHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{429, KindNetwork},
		{503, KindNetwork},
		{408, KindNetwork},
		{404, KindValidation},
		{403, KindValidation},
		{410, KindValidation},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(FromHTTPStatus("fetch", tt.status)), "status %d", tt.status)
	}
	assert.NoError(t, FromHTTPStatus("fetch", 200))
	assert.NoError(t, FromHTTPStatus("fetch", 204))
}
