package db

import "time"

// Backoff computes reconnection delays and schedules delayed probes.
// It keeps no attempt counter; the Manager owns that in RetryState.
type Backoff struct {
	Base       time.Duration
	Max        time.Duration
	MaxRetries int

	// afterFunc is time.AfterFunc unless a test replaces it.
	afterFunc func(d time.Duration, f func()) func() bool
}

// NewBackoff returns a Backoff driven by real timers.
func NewBackoff(base, max time.Duration, maxRetries int) *Backoff {
	return &Backoff{Base: base, Max: max, MaxRetries: maxRetries}
}

// NextDelay returns min(Base * 2^(attempt-1), Max) for attempt >= 1.
// With Base=1s and Max=10s the sequence is 1s, 2s, 4s, 8s, 10s, 10s...
func (b *Backoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := b.Base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= b.Max || delay <= 0 {
			return b.Max
		}
	}
	if delay > b.Max {
		return b.Max
	}
	return delay
}

// Exhausted reports whether attempt consecutive failures use up the retry
// budget.
func (b *Backoff) Exhausted(attempt int) bool {
	return attempt >= b.MaxRetries
}

// Schedule runs action after NextDelay(attempt) on a separate goroutine and
// returns immediately. The returned function cancels a pending action.
func (b *Backoff) Schedule(attempt int, action func()) (stop func() bool) {
	delay := b.NextDelay(attempt)
	if b.afterFunc != nil {
		return b.afterFunc(delay, action)
	}
	return time.AfterFunc(delay, action).Stop
}
