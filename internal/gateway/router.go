// Package gateway wires the HTTP surface shared by both binaries: a
// passthrough path family, a health probe, and a Prometheus /metrics
// endpoint (spec.md §4.1, §6).
package gateway

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router builds the chi router shared by both gateways. handler processes
// every POST/OPTIONS passthrough request; health-only GETs are answered
// here directly per spec.md §4.1 without ever reaching handler.
func Router(pathPrefix string, handler http.HandlerFunc, metricsRegisterer interface{ Handler() http.Handler }) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if metricsRegisterer != nil {
		r.Handle("/metrics", metricsRegisterer.Handler())
	}

	pattern := "/" + strings.Trim(pathPrefix, "/") + "/*"
	r.Get(pattern, healthOnlyGet)
	r.Post(pattern, handler)
	r.Options(pattern, handler)

	return r
}

func healthOnlyGet(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// MetricsHandler adapts promhttp.Handler to the minimal interface Router
// needs, keeping the gateway package decoupled from a concrete registry
// type in its own signature.
type MetricsHandler struct{}

// Handler returns the default Prometheus handler.
func (MetricsHandler) Handler() http.Handler { return promhttp.Handler() }
