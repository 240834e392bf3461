// Package hpcgateway wires the HPC gateway's HTTP surface: it translates
// an inbound request into a remote-shell command with
// internal/reqtranslate, execs it against internal/hpctransport's pool,
// parses the framed reply with internal/respframe, and streams the body
// back to the caller while finalizing one internal/audit record
// (spec.md §4.4-§4.8).
package hpcgateway

import (
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/inference-gateway/gateway/internal/audit"
	"github.com/inference-gateway/gateway/internal/gatewayerr"
	"github.com/inference-gateway/gateway/internal/hpctransport"
	"github.com/inference-gateway/gateway/internal/metrics"
	"github.com/inference-gateway/gateway/internal/reqmeta"
	"github.com/inference-gateway/gateway/internal/reqtranslate"
	"github.com/inference-gateway/gateway/internal/streaming"
	"github.com/inference-gateway/gateway/internal/tokencount"
)

const backendLabel = "hpc"

// Handler holds every dependency the HPC gateway's single endpoint
// needs. One Handler is built at startup and shared across requests.
type Handler struct {
	DefaultPortal     string
	HeaderReadTimeout time.Duration
	InlineDataLimit   int

	AccountingEnabled      bool
	InlineBodyEnabled      bool
	ServiceFromBodyEnabled bool

	Pool    *hpctransport.Pool
	Sink    audit.Sink
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Handle implements the HPC gateway's POST/OPTIONS passthrough path. GET
// health probes never reach here (internal/gateway answers them).
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "reading request body", http.StatusBadRequest)
		return
	}

	meta := reqmeta.Extract(r, h.DefaultPortal)

	hreq, err := reqtranslate.BuildHPCRequest(reqtranslate.HPCInput{
		InferenceID:            meta.ID,
		UID:                    meta.UID,
		Service:                r.Header.Get(reqmeta.HeaderInferenceService),
		Method:                 r.Method,
		Path:                   r.URL.Path,
		RawQuery:               r.URL.RawQuery,
		Header:                 r.Header,
		Body:                   body,
		AccountingEnabled:      h.AccountingEnabled,
		InlineBodyEnabled:      h.InlineBodyEnabled,
		ServiceFromBodyEnabled: h.ServiceFromBodyEnabled,
		InlineDataLimit:        h.InlineDataLimit,
	})
	if err != nil {
		h.fail(w, gatewayerr.MissingService())
		return
	}

	rec := audit.New(audit.Meta{
		ID: meta.ID, UID: meta.UID, Org: meta.Org, OrgUnit: meta.OrgUnit,
		Service: hreq.Service, Portal: meta.Portal,
	}, int64(len(body)))

	sess, err := h.Pool.Session(r.Context())
	if err != nil {
		rec.Finalize(false, 0, 0, 0)
		h.Sink.Emit(rec)
		h.recordMetrics("failed", 0, 0, start)
		h.fail(w, &gatewayerr.UpstreamFailure{Msg: err.Error()})
		return
	}

	handle, err := hpctransport.Exec(sess, hreq.Command, hreq.Stdin, hreq.CloseIn)
	if err != nil {
		_ = sess.Close()
		rec.Finalize(false, 0, 0, 0)
		h.Sink.Emit(rec)
		h.recordMetrics("failed", 0, 0, start)
		h.fail(w, &gatewayerr.UpstreamFailure{Msg: err.Error()})
		return
	}

	var inputTokens, outputTokens int
	account := func(respBody []byte) (int, int) {
		if !h.AccountingEnabled {
			return 0, 0
		}
		in, out := tokencount.ScanUsage(respBody)
		if in == 0 && out == 0 {
			h.Logger.Warn("hpc response carried no usage frame", zap.String("inference_id", meta.ID))
		}
		inputTokens, outputTokens = in, out
		return in, out
	}

	copyErr := streaming.CopyHPCResponse(r.Context(), w, handle, h.HeaderReadTimeout, rec, h.Sink, account)

	// The finalization block inside CopyHPCResponse already killed the
	// process on any unclean exit; Wait here either reaps that exit or,
	// on a clean EOF, the process that has already exited on its own.
	_ = handle.Wait()
	_ = sess.Close()

	status := "completed"
	if copyErr != nil {
		status = "failed"
		var timeoutErr *gatewayerr.UpstreamTimeout
		var protoErr *gatewayerr.UpstreamProtocol
		if errors.As(copyErr, &timeoutErr) || errors.As(copyErr, &protoErr) {
			// No response bytes were written yet; surface a status code.
			h.fail(w, copyErr)
		}
	}
	h.recordMetrics(status, inputTokens, outputTokens, start)
}

// recordMetrics observes every instrument spec.md's ambient-observability
// surface promises for this request, mirroring internal/cloudgateway's
// recordMetrics: the requests-total counter, the request-duration
// histogram, and the input/output token counters.
func (h *Handler) recordMetrics(status string, inputTokens, outputTokens int, start time.Time) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.RequestsTotal.WithLabelValues(backendLabel, status).Inc()
	h.Metrics.RequestDuration.WithLabelValues(backendLabel).Observe(time.Since(start).Seconds())
	h.Metrics.TokensTotal.WithLabelValues(backendLabel, "input").Add(float64(inputTokens))
	h.Metrics.TokensTotal.WithLabelValues(backendLabel, "output").Add(float64(outputTokens))
}

// fail writes an HTTP error status derived from the gatewayerr taxonomy.
// Only call this before any response bytes have been written.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), gatewayerr.StatusFor(err))
}
