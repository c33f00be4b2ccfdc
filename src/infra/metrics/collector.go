// Package metrics exposes Prometheus metrics for HTTP traffic and the
// database layer.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"productservice/src/infra/db"
)

// StatsSource provides pool snapshots for the gauges.
type StatsSource interface {
	Stats() db.PoolStats
}

// Collector records metrics on its own registry. It implements db.Observer.
type Collector struct {
	registry *prometheus.Registry

	// HTTP
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Database
	dbQueriesTotal      *prometheus.CounterVec
	dbQueryDuration     *prometheus.HistogramVec
	dbTransactionsTotal *prometheus.CounterVec
	dbStateTransitions  *prometheus.CounterVec
	dbRetryAttempt      prometheus.Gauge
}

var _ db.Observer = (*Collector)(nil)

// NewCollector creates a collector whose metric names are prefixed with namespace.
func NewCollector(namespace string, log *slog.Logger) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	c := &Collector{registry: reg}

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.dbQueriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_queries_total",
			Help:      "Total number of executed statements",
		},
		[]string{"status", "kind"},
	)

	c.dbQueryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Statement duration in seconds, connection wait included",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)

	c.dbTransactionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_transactions_total",
			Help:      "Total number of transactions by outcome",
		},
		[]string{"outcome"}, // committed, rolled_back, failed
	)

	c.dbStateTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_state_transitions_total",
			Help:      "Total number of connectivity state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	c.dbRetryAttempt = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_retry_attempt",
			Help:      "Consecutive failed connectivity probes",
		},
	)

	log.Info("metrics collector initialized", "namespace", namespace)
	return c
}

// RegisterPool exposes pool occupancy read from src at scrape time.
func (c *Collector) RegisterPool(namespace string, src StatsSource) {
	factory := promauto.With(c.registry)
	gauge := func(name, help string, value func(db.PoolStats) float64) {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return value(src.Stats()) })
	}

	gauge("db_connections_active", "Connections currently borrowed", func(s db.PoolStats) float64 { return float64(s.Active) })
	gauge("db_connections_idle", "Idle connections in the pool", func(s db.PoolStats) float64 { return float64(s.Idle) })
	gauge("db_connections_waiting", "Callers waiting for a connection", func(s db.PoolStats) float64 { return float64(s.Waiting) })
	gauge("db_connections_max", "Configured pool bound", func(s db.PoolStats) float64 { return float64(s.Max) })
	gauge("db_connected", "1 when the database is connected", func(s db.PoolStats) float64 {
		if s.State == db.StateConnected {
			return 1
		}
		return 0
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (c *Collector) QueryExecuted(_ context.Context, e db.QueryLogEntry) {
	status := "success"
	kind := ""
	if !e.Success {
		status = "error"
		kind = e.Kind.String()
	}
	c.dbQueriesTotal.WithLabelValues(status, kind).Inc()
	c.dbQueryDuration.WithLabelValues(status).Observe(e.Duration.Seconds())
}

func (c *Collector) TransactionFinished(_ context.Context, e db.TxLogEntry) {
	outcome := "failed"
	switch {
	case e.Committed:
		outcome = "committed"
	case e.RolledBack:
		outcome = "rolled_back"
	}
	c.dbTransactionsTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) StateChanged(e db.StateChange) {
	c.dbStateTransitions.WithLabelValues(e.From.String(), e.To.String()).Inc()
	c.dbRetryAttempt.Set(float64(e.Attempt))
}
