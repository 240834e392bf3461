// Package cloudgateway wires the cloud gateway's HTTP surface: it decodes
// an inbound OpenAI-style chat request, translates it with
// internal/reqtranslate, dispatches it through internal/cloudbackend, and
// streams the response back to the caller while finalizing one
// internal/audit record (spec.md §4.2).
package cloudgateway

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/inference-gateway/gateway/internal/audit"
	"github.com/inference-gateway/gateway/internal/cloudbackend"
	"github.com/inference-gateway/gateway/internal/gatewayerr"
	"github.com/inference-gateway/gateway/internal/metrics"
	"github.com/inference-gateway/gateway/internal/reqmeta"
	"github.com/inference-gateway/gateway/internal/reqtranslate"
	"github.com/inference-gateway/gateway/internal/secretstore"
	"github.com/inference-gateway/gateway/internal/streaming"
	"github.com/inference-gateway/gateway/internal/tokencount"
)

const backendLabel = "cloud"

// Handler holds every dependency the cloud gateway's single endpoint
// needs. One Handler is built at startup and shared across requests; it
// carries no per-request state.
type Handler struct {
	DefaultPortal string
	SystemPrompt  string

	// ServiceEnabled is the administrative kill switch spec.md §7 names
	// ("service disabled by configuration → 403"), restored from the
	// original proxy's `use_openai` flag: when false, every request is
	// rejected before any other processing (spec.md §7, SPEC_FULL.md
	// SUPPLEMENTED FEATURES).
	ServiceEnabled bool

	Registry *secretstore.Cloud
	Client   *cloudbackend.Client
	Sink     audit.Sink
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// inboundMessage is the subset of an OpenAI-style chat message this
// gateway cares about. Content is kept as raw JSON because it may be
// either a plain string or an array of content parts (spec.md §4.3's
// image message shape); parseContent below tells the two apart.
type inboundMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Name    string          `json:"name,omitempty"`
}

type inboundBody struct {
	Model    string           `json:"model"`
	Messages []inboundMessage `json:"messages"`
}

type contentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

// Handle implements the cloud gateway's POST/OPTIONS passthrough path.
// GET health probes never reach here (internal/gateway answers them).
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if !h.ServiceEnabled {
		h.fail(w, gatewayerr.ServiceDisabled(r.Header.Get(reqmeta.HeaderInferenceService)))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "reading request body", http.StatusBadRequest)
		return
	}

	meta := reqmeta.Extract(r, h.DefaultPortal)
	service := r.Header.Get(reqmeta.HeaderInferenceService)
	if service == "" {
		h.fail(w, gatewayerr.MissingService())
		return
	}

	rec := audit.New(audit.Meta{
		ID: meta.ID, UID: meta.UID, Org: meta.Org, OrgUnit: meta.OrgUnit,
		Service: service, Portal: meta.Portal,
	}, int64(len(body)))

	var parsed inboundBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		rec.Finalize(false, 0, 0, 0)
		h.Sink.Emit(rec)
		h.fail(w, &gatewayerr.ClientError{Status: http.StatusBadRequest, Msg: "invalid JSON body: " + err.Error()})
		return
	}

	inputTokens, imageShortCircuit, textMessages, err := h.accountInput(service, parsed.Messages)
	if err != nil {
		h.Logger.Warn("cloud input token accounting failed", zap.Error(err))
	}

	call, err := reqtranslate.BuildCloudCall(h.Registry, service, h.SystemPrompt, textMessages)
	if err != nil {
		rec.Finalize(false, 0, 0, 0)
		h.Sink.Emit(rec)
		if _, ok := err.(reqtranslate.ErrUnknownService); ok {
			h.fail(w, gatewayerr.UnknownService(service))
			return
		}
		h.fail(w, &gatewayerr.UpstreamFailure{Msg: err.Error()})
		return
	}

	if call.Stream {
		h.handleStreaming(w, r, call, rec, service, inputTokens, start)
		return
	}
	h.handleReasoningFold(w, r, call, rec, service, inputTokens, imageShortCircuit, start)
}

// accountInput implements spec.md §4.3: image-bearing message lists
// short-circuit to the vision tiling cost and skip the BPE tokenizer
// entirely; otherwise every message's text content is tokenized.
func (h *Handler) accountInput(service string, messages []inboundMessage) (tokens int, imageShortCircuit bool, textMessages []reqtranslate.Message, err error) {
	textMessages = make([]reqtranslate.Message, 0, len(messages))

	for _, m := range messages {
		text, imageURL, isArray := parseContent(m.Content)
		textMessages = append(textMessages, reqtranslate.Message{Role: m.Role, Content: text, Name: m.Name})

		if isArray && imageURL != "" {
			n, imgErr := tokencount.ImageTokens(imageURL)
			if imgErr != nil {
				return 0, false, textMessages, imgErr
			}
			return n, true, textMessages, nil
		}
	}

	if reqtranslate.IsReasoningModel(service) {
		// Reasoning models report usage themselves; see handleReasoningFold.
		return 0, false, textMessages, nil
	}

	countable := make([]tokencount.Message, len(textMessages))
	for i, m := range textMessages {
		countable[i] = tokencount.Message{Role: m.Role, Content: m.Content, Name: m.Name}
	}
	n, err := tokencount.CountMessages(service, countable)
	return n, false, textMessages, err
}

// parseContent splits an OpenAI-style message content field into its
// plain text (concatenating any "text" parts) and, if present, the
// second content part's image_url.url per spec.md §4.3.
func parseContent(raw json.RawMessage) (text, imageURL string, isArray bool) {
	if len(raw) == 0 {
		return "", "", false
	}
	if raw[0] == '"' {
		_ = json.Unmarshal(raw, &text)
		return text, "", false
	}

	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", "", false
	}
	var b []byte
	for _, p := range parts {
		if p.Type == "text" {
			b = append(b, p.Text...)
		}
	}
	if len(parts) >= 2 && parts[1].Type == "image_url" && parts[1].ImageURL != nil {
		return string(b), parts[1].ImageURL.URL, true
	}
	return string(b), "", true
}

// handleStreaming forwards a live streaming chat-completion call
// (spec.md §4.2 step 5).
func (h *Handler) handleStreaming(w http.ResponseWriter, r *http.Request, call reqtranslate.CloudCall, rec *audit.Record, service string, inputTokens int, start time.Time) {
	stream := h.Client.Stream(r.Context(), call)
	defer stream.Close()

	sse, err := streaming.NewSSEWriter(w)
	if err != nil {
		rec.Finalize(false, 0, inputTokens, 0)
		h.Sink.Emit(rec)
		h.recordMetrics("error", inputTokens, 0, start)
		return
	}

	var outputText []byte
	outputSize := 0
	clean := true
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		outputText = append(outputText, delta...)
		if err := sse.WriteChunk(chunk); err != nil {
			clean = false
			break
		}
		outputSize += len(delta)
	}
	if err := stream.Err(); err != nil {
		clean = false
	}

	outputTokens := 0
	if clean {
		if n, err := tokencount.CountText(service, string(outputText)); err == nil {
			outputTokens = n
		}
	}

	rec.Finalize(clean, int64(outputSize), inputTokens, outputTokens)
	h.Sink.Emit(rec)
	h.recordMetrics(statusLabel(clean), inputTokens, outputTokens, start)
}

// handleReasoningFold issues the non-streaming call for reasoning-family
// models and synthesizes an SSE chunk sequence from the full response,
// matching the live-streaming envelope shape (spec.md §4.2 step 4, §9).
func (h *Handler) handleReasoningFold(w http.ResponseWriter, r *http.Request, call reqtranslate.CloudCall, rec *audit.Record, service string, inputTokens int, imageShortCircuit bool, start time.Time) {
	resp, err := h.Client.Complete(r.Context(), call)
	if err != nil {
		rec.Finalize(false, 0, inputTokens, 0)
		h.Sink.Emit(rec)
		h.fail(w, &gatewayerr.UpstreamFailure{Msg: err.Error()})
		return
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	counted := &countingWriter{ResponseWriter: w}
	sse, err := streaming.NewSSEWriter(counted)
	if err != nil {
		rec.Finalize(false, 0, inputTokens, 0)
		h.Sink.Emit(rec)
		return
	}

	clean := true
	if err := sse.SynthesizeFromText(content, func(delta string, final bool) any {
		chunk := map[string]any{
			"id":     resp.ID,
			"object": "chat.completion.chunk",
			"model":  resp.Model,
			"choices": []map[string]any{
				{"index": 0, "delta": map[string]string{"content": delta}},
			},
		}
		if final {
			chunk["choices"].([]map[string]any)[0]["finish_reason"] = "stop"
		}
		return chunk
	}); err != nil {
		clean = false
	}

	inTok, outTok := inputTokens, 0
	if !imageShortCircuit {
		inTok = int(resp.Usage.PromptTokens)
		outTok = int(resp.Usage.CompletionTokens)
	}

	rec.Finalize(clean, int64(counted.n), inTok, outTok)
	h.Sink.Emit(rec)
	h.recordMetrics(statusLabel(clean), inTok, outTok, start)
}

// recordMetrics observes every instrument spec.md's ambient-observability
// surface promises for this request: the requests-total counter, the
// request-duration histogram (measured from Handle's entry to this call),
// and the input/output token counters.
func (h *Handler) recordMetrics(status string, inputTokens, outputTokens int, start time.Time) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.RequestsTotal.WithLabelValues(backendLabel, status).Inc()
	h.Metrics.RequestDuration.WithLabelValues(backendLabel).Observe(time.Since(start).Seconds())
	h.Metrics.TokensTotal.WithLabelValues(backendLabel, "input").Add(float64(inputTokens))
	h.Metrics.TokensTotal.WithLabelValues(backendLabel, "output").Add(float64(outputTokens))
}

func statusLabel(clean bool) string {
	if clean {
		return "completed"
	}
	return "failed"
}

// fail writes an HTTP error status derived from the gatewayerr taxonomy.
// Only call this before any response bytes have been written.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), gatewayerr.StatusFor(err))
}

// countingWriter wraps an http.ResponseWriter to track the number of body
// bytes written, used to populate the audit record's output_size for the
// synthesized reasoning-model response (spec.md §3).
type countingWriter struct {
	http.ResponseWriter
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.ResponseWriter.Write(p)
	c.n += n
	return n, err
}

// Flush forwards to the underlying writer when it supports flushing, so
// wrapping it doesn't hide http.Flusher from streaming.NewSSEWriter.
func (c *countingWriter) Flush() {
	if f, ok := c.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
