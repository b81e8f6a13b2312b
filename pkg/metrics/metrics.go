// Package metrics holds the Prometheus instrumentation shared by the RPC client
// and the query resolvers.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// DefaultNamespace prefixes every metric name
	DefaultNamespace = "chainquery"

	StatusSuccess = "success"
	StatusError   = "error"
)

// Metrics holds all Prometheus collectors of the query engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// RPC layer
	RPCRequestsTotal   *prometheus.CounterVec
	RPCRequestDuration *prometheus.HistogramVec

	// Query layer
	QueriesTotal  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryRows     *prometheus.CounterVec
}

// New creates all collectors and registers them on reg.
// A nil reg falls back to the default registerer.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Metrics{
		RPCRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "Total number of JSON-RPC requests by method and status",
		}, []string{"method", "status"}),
		RPCRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "JSON-RPC request latency",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"method", "status"}),

		QueriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of resolved queries by entity and status",
		}, []string{"entity", "status"}),
		QueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "End-to-end query resolution latency",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"entity"}),
		QueryRows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_rows_total",
			Help:      "Total number of result rows returned by entity",
		}, []string{"entity"}),
	}
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// ObserveRPC records one JSON-RPC call (or batch, under its method name)
func (m *Metrics) ObserveRPC(method string, err error, started time.Time) {
	if m == nil {
		return
	}
	s := status(err)
	m.RPCRequestsTotal.WithLabelValues(method, s).Inc()
	m.RPCRequestDuration.WithLabelValues(method, s).Observe(time.Since(started).Seconds())
}

// ObserveQuery records one resolved query and its row count
func (m *Metrics) ObserveQuery(entity string, rows int, err error, started time.Time) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(entity, status(err)).Inc()
	m.QueryDuration.WithLabelValues(entity).Observe(time.Since(started).Seconds())
	if err == nil {
		m.QueryRows.WithLabelValues(entity).Add(float64(rows))
	}
}
