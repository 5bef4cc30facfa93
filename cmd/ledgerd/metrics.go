// metrics.go - Prometheus metrics for the ledger daemon
package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's Prometheus collectors
type Metrics struct {
	registry *prometheus.Registry

	// OpsTotal counts ledger operations by name and transaction-level result.
	// The result label only distinguishes accepted from aborted calls; the
	// confidential outcome of an accepted call is never observable here.
	OpsTotal *prometheus.CounterVec

	// ProofFailures counts rejected external ciphertexts.
	ProofFailures prometheus.Counter

	// RequestDuration observes handler latency per operation.
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the daemon collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		OpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledgerd",
			Name:      "operations_total",
			Help:      "Ledger operations by name and transaction-level result.",
		}, []string{"op", "result"}),
		ProofFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledgerd",
			Name:      "proof_failures_total",
			Help:      "External ciphertexts rejected by proof verification.",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ledgerd",
			Name:      "request_duration_seconds",
			Help:      "Handler latency per operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	m.registry.MustRegister(
		m.OpsTotal,
		m.ProofFailures,
		m.RequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler returns the /metrics endpoint handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
