package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedPolicy(t *testing.T) {
	p := DefaultPolicy()

	for attempt := 1; attempt <= 5; attempt++ {
		d, ok := p.Next(attempt, CauseClosed)
		assert.True(t, ok)
		assert.Equal(t, 3*time.Second, d, "attempt %d after close", attempt)

		d, ok = p.Next(attempt, CauseDialFailed)
		assert.True(t, ok)
		assert.Equal(t, 5*time.Second, d, "attempt %d after dial failure", attempt)
	}
}

func TestExponentialPolicy(t *testing.T) {
	p := ExponentialPolicy{Base: 100 * time.Millisecond, Max: time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{20, time.Second},
	}
	for _, tt := range tests {
		d, ok := p.Next(tt.attempt, CauseClosed)
		assert.True(t, ok)
		assert.Equal(t, tt.want, d, "attempt %d", tt.attempt)
	}
}

func TestExponentialPolicy_MaxAttempts(t *testing.T) {
	p := ExponentialPolicy{Base: time.Second, MaxAttempts: 3}

	for attempt := 1; attempt <= 3; attempt++ {
		_, ok := p.Next(attempt, CauseDialFailed)
		assert.True(t, ok, "attempt %d refused", attempt)
	}
	_, ok := p.Next(4, CauseDialFailed)
	assert.False(t, ok, "attempt 4 allowed")
}

func TestExponentialPolicy_JitterStaysInRange(t *testing.T) {
	p := ExponentialPolicy{Base: time.Second, Multiplier: 3, Jitter: 0.5}

	for i := 0; i < 200; i++ {
		d, _ := p.Next(2, CauseClosed)
		require.GreaterOrEqual(t, d, 1500*time.Millisecond)
		require.LessOrEqual(t, d, 3*time.Second)
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "unknown", State(42).String())
}
