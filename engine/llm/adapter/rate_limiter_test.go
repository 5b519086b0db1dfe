package llmadapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/vachanamrut/engine/core"
	appconfig "github.com/compozy/vachanamrut/pkg/config"
)

func TestRateLimiterRegistry(t *testing.T) {
	t.Run("Should be a no-op when disabled", func(t *testing.T) {
		registry := NewRateLimiterRegistry(appconfig.LLMRateLimitConfig{Enabled: false, Concurrency: 1})
		require.NoError(t, registry.Acquire(t.Context(), core.ProviderGroq))
		require.NoError(t, registry.Acquire(t.Context(), core.ProviderGroq))
		_, ok := registry.Metrics(core.ProviderGroq)
		assert.False(t, ok)
	})

	t.Run("Should block until a slot is released", func(t *testing.T) {
		registry := NewRateLimiterRegistry(appconfig.LLMRateLimitConfig{Enabled: true, Concurrency: 1})
		require.NoError(t, registry.Acquire(t.Context(), core.ProviderGroq))

		errCh := make(chan error, 1)
		go func() {
			errCh <- registry.Acquire(t.Context(), core.ProviderGroq)
		}()
		select {
		case <-errCh:
			t.Fatal("second acquire should wait for release")
		case <-time.After(50 * time.Millisecond):
		}
		registry.Release(core.ProviderGroq)
		require.NoError(t, <-errCh)
		registry.Release(core.ProviderGroq)

		snapshot, ok := registry.Metrics(core.ProviderGroq)
		require.True(t, ok)
		assert.Equal(t, int64(2), snapshot.TotalRequests)
		assert.Equal(t, int32(0), snapshot.ActiveRequests)
	})

	t.Run("Should return a rate limit error when the wait is canceled", func(t *testing.T) {
		registry := NewRateLimiterRegistry(appconfig.LLMRateLimitConfig{Enabled: true, Concurrency: 1})
		require.NoError(t, registry.Acquire(t.Context(), core.ProviderGoogle))
		ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
		defer cancel()
		err := registry.Acquire(ctx, core.ProviderGoogle)
		llmErr, ok := IsLLMError(err)
		require.True(t, ok)
		assert.Equal(t, ErrCodeRateLimit, llmErr.Code)
		snapshot, _ := registry.Metrics(core.ProviderGoogle)
		assert.Equal(t, int64(1), snapshot.RejectedRequests)
	})

	t.Run("Should keep providers independent", func(t *testing.T) {
		registry := NewRateLimiterRegistry(appconfig.LLMRateLimitConfig{Enabled: true, Concurrency: 1})
		require.NoError(t, registry.Acquire(t.Context(), core.ProviderGroq))
		require.NoError(t, registry.Acquire(t.Context(), core.ProviderGoogle))
	})
}

func TestComputeBurst(t *testing.T) {
	t.Run("Should prefer configured burst", func(t *testing.T) {
		assert.Equal(t, 7, computeBurst(2, 7))
	})
	t.Run("Should round up the per-second rate", func(t *testing.T) {
		assert.Equal(t, 2, computeBurst(1.5, 0))
		assert.Equal(t, 1, computeBurst(0, 0))
	})
}
