package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/user/legalcode-service/pkg/apperr"
)

func TestBreakerTripsOnTransientFailures(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.Timeout = time.Hour
	b := New(cfg, zap.NewNop())
	boom := apperr.Network("call", errors.New("reset"))

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, b.Do("call", func() error { return boom }), boom)
	}
	assert.Equal(t, "open", b.State())

	called := false
	err := b.Do("call", func() error { called = true; return nil })
	assert.False(t, called)
	assert.ErrorIs(t, err, ErrOpen)
	assert.True(t, apperr.IsRetryable(err))
}

func TestBreakerIgnoresPermanentFailures(t *testing.T) {
	b := New(DefaultConfig("test"), zap.NewNop())
	bad := apperr.Validation("call", errors.New("bad query"))

	for i := 0; i < 10; i++ {
		assert.ErrorIs(t, b.Do("call", func() error { return bad }), bad)
	}
	assert.Equal(t, "closed", b.State())
}
