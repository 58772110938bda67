package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastRetry keeps test sleeps negligible.
func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDoValFirstAttemptSucceeds(t *testing.T) {
	calls := 0
	got, err := DoVal(t.Context(), fastRetry(), func(ctx context.Context) ([]byte, error) {
		calls++
		return []byte(`{"type":"FeatureCollection"}`), nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, string(got), "FeatureCollection")
}

func TestDoValRetriesTransientThenSucceeds(t *testing.T) {
	var retries []int
	cfg := fastRetry()
	cfg.OnRetry = func(attempt int, err error) {
		retries = append(retries, attempt)
	}

	calls := 0
	got, err := DoVal(t.Context(), cfg, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(eris.Errorf("dataset endpoint returned status %d", 503), 503)
		}
		return "dataset", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "dataset", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDoValStopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := DoVal(t.Context(), fastRetry(), func(ctx context.Context) (string, error) {
		calls++
		return "", eris.New("layer: parse \"Waterways\"")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoValExhaustsAttempts(t *testing.T) {
	calls := 0
	got, err := DoVal(t.Context(), fastRetry(), func(ctx context.Context) (int, error) {
		calls++
		return 7, NewTransientError(eris.New("gateway timeout"), 504)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Zero(t, got)
}

func TestDoValHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())

	calls := 0
	_, err := DoVal(ctx, fastRetry(), func(ctx context.Context) (string, error) {
		calls++
		cancel()
		return "", NewTransientError(eris.New("too many requests"), 429)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoValCustomShouldRetry(t *testing.T) {
	cfg := fastRetry()
	cfg.ShouldRetry = func(err error) bool { return false }

	calls := 0
	_, err := DoVal(t.Context(), cfg, func(ctx context.Context) (string, error) {
		calls++
		return "", NewTransientError(eris.New("service unavailable"), 503)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "custom predicate overrides the transient default")
}

func TestWithDefaults(t *testing.T) {
	cfg := withDefaults(RetryConfig{})

	def := DefaultRetryConfig()
	assert.Equal(t, def.MaxAttempts, cfg.MaxAttempts)
	assert.Equal(t, def.InitialBackoff, cfg.InitialBackoff)
	assert.Equal(t, def.MaxBackoff, cfg.MaxBackoff)
	assert.Equal(t, def.Multiplier, cfg.Multiplier)

	cfg = withDefaults(RetryConfig{JitterFraction: -1})
	assert.Zero(t, cfg.JitterFraction)
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     300 * time.Millisecond,
		Multiplier:     2.0,
	}

	assert.Equal(t, 100*time.Millisecond, backoffDelay(1, cfg))
	assert.Equal(t, 200*time.Millisecond, backoffDelay(2, cfg))
	assert.Equal(t, 300*time.Millisecond, backoffDelay(3, cfg), "capped at MaxBackoff")
	assert.Equal(t, 300*time.Millisecond, backoffDelay(10, cfg))
}

func TestBackoffDelayJitterStaysInRange(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}

	for range 50 {
		d := backoffDelay(1, cfg)
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
}

func TestRetryLoggerDoesNotPanicWithoutLogger(t *testing.T) {
	log := RetryLogger("layers", "Caroni Swamp")
	require.NotNil(t, log)
	log(1, eris.New("bad gateway"))
}
