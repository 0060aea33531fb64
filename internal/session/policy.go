package session

import (
	"math"
	"math/rand"
	"time"
)

// Cause is why a reconnect is being scheduled.
type Cause int

const (
	// CauseClosed means an open connection ended abnormally.
	CauseClosed Cause = iota
	// CauseDialFailed means the connection could not be established.
	CauseDialFailed
)

// ReconnectPolicy decides how long to wait before the attempt-th consecutive
// reconnect. ok is false when no further attempt should be made.
type ReconnectPolicy interface {
	Next(attempt int, cause Cause) (delay time.Duration, ok bool)
}

// FixedPolicy waits a constant delay per cause and retries forever.
type FixedPolicy struct {
	AfterClose       time.Duration
	AfterDialFailure time.Duration
}

// DefaultPolicy returns the relay's stock schedule: 3s after an unexpected
// close, 5s after a failed dial.
func DefaultPolicy() FixedPolicy {
	return FixedPolicy{
		AfterClose:       3 * time.Second,
		AfterDialFailure: 5 * time.Second,
	}
}

// Next implements ReconnectPolicy.
func (p FixedPolicy) Next(_ int, cause Cause) (time.Duration, bool) {
	if cause == CauseDialFailed {
		return p.AfterDialFailure, true
	}
	return p.AfterClose, true
}

// ExponentialPolicy doubles the delay per attempt up to Max, with optional
// jitter and an attempt ceiling.
type ExponentialPolicy struct {
	Base        time.Duration
	Max         time.Duration
	Multiplier  float64 // 0 means 2
	Jitter      float64 // Fraction of the delay randomly subtracted, 0..1
	MaxAttempts int     // 0 = unlimited
}

// Next implements ReconnectPolicy.
func (p ExponentialPolicy) Next(attempt int, _ Cause) (time.Duration, bool) {
	if p.MaxAttempts > 0 && attempt > p.MaxAttempts {
		return 0, false
	}
	if attempt < 1 {
		attempt = 1
	}

	mult := p.Multiplier
	if mult <= 1 {
		mult = 2
	}

	d := float64(p.Base) * math.Pow(mult, float64(attempt-1))
	if p.Max > 0 && d > float64(p.Max) {
		d = float64(p.Max)
	}
	if p.Jitter > 0 {
		j := math.Min(p.Jitter, 1)
		d -= d * j * rand.Float64()
	}
	return time.Duration(d), true
}
