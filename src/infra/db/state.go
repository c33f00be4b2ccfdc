package db

import "time"

// State is the connectivity state of a Manager.
type State int

const (
	// StateDisconnected is the initial state, and the state after a lost connection.
	StateDisconnected State = iota
	// StateProbing means a round-trip probe is in flight.
	StateProbing
	// StateConnected means the last probe or statement succeeded.
	StateConnected
	// StateFailed means the retry budget is exhausted. No automatic probe
	// runs from here; only an explicit Probe can leave it.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateProbing:
		return "probing"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RetryState tracks consecutive probe failures.
type RetryState struct {
	Attempt     int           // consecutive failures since the last success
	LastAttempt time.Time     // when the last probe finished
	NextDelay   time.Duration // delay before the scheduled probe, zero if none
}

// fail records one more failure and returns the new attempt number.
func (r *RetryState) fail(now time.Time) int {
	r.Attempt++
	r.LastAttempt = now
	return r.Attempt
}

// reset clears the counter after a successful connection.
func (r *RetryState) reset(now time.Time) {
	r.Attempt = 0
	r.LastAttempt = now
	r.NextDelay = 0
}

// MarshalText renders the state name in JSON health reports.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
