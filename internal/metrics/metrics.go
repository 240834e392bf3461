// Package metrics exposes the gateways' Prometheus counters and
// histograms, promoted from an indirect-only dependency in the teacher's
// stack to a directly wired one (spec.md §6 ambient observability).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every gateway-wide instrument. Both cmd/cloudgateway and
// cmd/hpcgateway construct one at startup and pass it into their handlers.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	TokensTotal      *prometheus.CounterVec
	LivenessFailures prometheus.Counter
}

// New registers every instrument against reg and returns the handle.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inference_gateway_requests_total",
			Help: "Total number of inference requests handled, by backend and status.",
		}, []string{"backend", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inference_gateway_request_duration_seconds",
			Help:    "End-to-end request duration from accept to stream finalization.",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend"}),
		TokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inference_gateway_tokens_total",
			Help: "Accounted tokens, by backend and direction (input/output).",
		}, []string{"backend", "direction"}),
		LivenessFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "inference_gateway_hpc_liveness_failures_total",
			Help: "Number of failed HPC keep-alive liveness checks.",
		}),
	}
}
