package db

import (
	"context"
	"fmt"
	"time"
)

const healthSQL = "SELECT 1 AS health_check"

// Health statuses.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// HealthReport is the result of one health check.
type HealthReport struct {
	Status     string    `json:"status"`
	LatencyMS  int64     `json:"latency_ms"`
	Pool       PoolStats `json:"pool"`
	SSL        SSLMode   `json:"ssl"`
	SSLEnabled bool      `json:"ssl_enabled"`
	Timestamp  time.Time `json:"timestamp"`
	Error      string    `json:"error,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Code       string    `json:"code,omitempty"`
	Hint       string    `json:"hint,omitempty"`

	Latency time.Duration `json:"-"`
}

// Healthy reports whether the check succeeded.
func (r HealthReport) Healthy() bool {
	return r.Status == StatusHealthy
}

// Monitor runs health checks through a Manager's pool.
type Monitor struct {
	m   *Manager
	now func() time.Time
}

// NewMonitor returns a Monitor for m.
func NewMonitor(m *Manager) *Monitor {
	return &Monitor{m: m, now: time.Now}
}

// Check runs a trivial statement through the pool. A manager in StateFailed
// gets one explicit Probe first, so a recovered database is picked up.
// Failures are reported in the returned report, never as an error.
func (mo *Monitor) Check(ctx context.Context) HealthReport {
	start := mo.now()
	if mo.m.State() == StateFailed {
		mo.m.Probe(ctx)
	}
	_, err := mo.m.Execute(ctx, healthSQL)
	latency := mo.now().Sub(start)

	r := HealthReport{
		Status:     StatusHealthy,
		Latency:    latency,
		LatencyMS:  latency.Milliseconds(),
		Pool:       mo.m.Stats(),
		SSL:        mo.m.SSLMode(),
		SSLEnabled: mo.m.SSLMode().Enabled(),
		Timestamp:  start.UTC(),
	}
	if err != nil {
		r.Status = StatusUnhealthy
		r.Error = err.Error()
		r.ErrorKind = KindOf(err).String()
		r.Code = SQLState(err)
		r.Hint = Hint(err)
	}
	return r
}

// Name identifies the database in dependency health listings.
func (mo *Monitor) Name() string {
	return "postgres"
}

// Health returns nil when the database answers, and the failure otherwise.
func (mo *Monitor) Health(ctx context.Context) error {
	r := mo.Check(ctx)
	if r.Healthy() {
		return nil
	}
	return fmt.Errorf("database %s: %s", r.Status, r.Error)
}
