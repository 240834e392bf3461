package cloudgateway

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/inference-gateway/gateway/internal/audit"
	"github.com/inference-gateway/gateway/internal/cloudbackend"
	"github.com/inference-gateway/gateway/internal/secretstore"
)

type captureSink struct{ rec *audit.Record }

func (c *captureSink) Emit(r *audit.Record) { c.rec = r }

func fakeRegistry() *secretstore.Cloud {
	return &secretstore.Cloud{
		APIKey:   "test-key",
		Endpoint: "http://unused",
		Deployments: map[string]string{
			"openai-gpt4o-mini": "deploy-gpt4o-mini",
			"openai-o1":         "deploy-o1",
		},
	}
}

func newTestHandler(t *testing.T, backendURL string) (*Handler, *captureSink) {
	sink := &captureSink{}
	client := cloudbackend.NewWithOptions(backendURL, "test-key", "2024-12-01-preview")
	return &Handler{
		DefaultPortal:  "web",
		SystemPrompt:   "be nice",
		ServiceEnabled: true,
		Registry:       fakeRegistry(),
		Client:         client,
		Sink:           sink,
		Logger:         zaptest.NewLogger(t),
	}, sink
}

func TestHandleStreamingWritesSSEAndFinalizesRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		fmt.Fprintf(w, "data: %s\n\n", `{"id":"c1","choices":[{"index":0,"delta":{"content":"hi"}}]}`)
		flusher.Flush()
		fmt.Fprintf(w, "data: %s\n\n", `{"id":"c1","choices":[{"index":0,"delta":{"content":" there"}}]}`)
		flusher.Flush()
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer srv.Close()

	h, sink := newTestHandler(t, srv.URL)

	body := strings.NewReader(`{"model":"openai-gpt4o-mini","messages":[{"role":"user","content":"hi"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", body)
	req.Header.Set("inference-service", "openai-gpt4o-mini")
	w := httptest.NewRecorder()

	h.Handle(w, req)

	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), `"content":"hi"`)
	assert.Contains(t, w.Body.String(), `"content":" there"`)
	require.NotNil(t, sink.rec)
	assert.Equal(t, audit.Completed, sink.rec.Status)
}

func TestHandleReasoningModelFoldsIntoSyntheticSSE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","model":"deploy-o1",`+
			`"choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}],`+
			`"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`)
	}))
	defer srv.Close()

	h, sink := newTestHandler(t, srv.URL)

	body := strings.NewReader(`{"model":"openai-o1","messages":[{"role":"user","content":"hi"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", body)
	req.Header.Set("inference-service", "openai-o1")
	w := httptest.NewRecorder()

	h.Handle(w, req)

	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), `"content":"o"`)
	require.NotNil(t, sink.rec)
	assert.Equal(t, audit.Completed, sink.rec.Status)
	assert.Equal(t, 3, sink.rec.InputTokens)
	assert.Equal(t, 2, sink.rec.OutputTokens)
}

func TestHandleMissingServiceHeaderReturns400(t *testing.T) {
	h, _ := newTestHandler(t, "http://unused")

	body := strings.NewReader(`{"model":"openai-gpt4o-mini","messages":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", body)
	w := httptest.NewRecorder()

	h.Handle(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleUnknownServiceReturns404(t *testing.T) {
	h, sink := newTestHandler(t, "http://unused")

	body := strings.NewReader(`{"model":"nope","messages":[{"role":"user","content":"hi"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", body)
	req.Header.Set("inference-service", "nope")
	w := httptest.NewRecorder()

	h.Handle(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, sink.rec)
	assert.Equal(t, audit.Failed, sink.rec.Status)
}

func TestHandleInvalidJSONBodyReturns400(t *testing.T) {
	h, sink := newTestHandler(t, "http://unused")

	body := strings.NewReader(`not json`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", body)
	req.Header.Set("inference-service", "openai-gpt4o-mini")
	w := httptest.NewRecorder()

	h.Handle(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, sink.rec)
	assert.Equal(t, audit.Failed, sink.rec.Status)
}

func TestHandleServiceDisabledReturns403(t *testing.T) {
	h, sink := newTestHandler(t, "http://unused")
	h.ServiceEnabled = false

	body := strings.NewReader(`{"model":"openai-gpt4o-mini","messages":[{"role":"user","content":"hi"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", body)
	req.Header.Set("inference-service", "openai-gpt4o-mini")
	w := httptest.NewRecorder()

	h.Handle(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Nil(t, sink.rec)
}

func TestParseContentHandlesPlainStringAndImageArray(t *testing.T) {
	text, imageURL, isArray := parseContent([]byte(`"plain text"`))
	assert.Equal(t, "plain text", text)
	assert.Empty(t, imageURL)
	assert.False(t, isArray)

	text, imageURL, isArray = parseContent([]byte(`[{"type":"text","text":"describe"},{"type":"image_url","image_url":{"url":"data:image/png;base64,abc"}}]`))
	assert.Equal(t, "describe", text)
	assert.Equal(t, "data:image/png;base64,abc", imageURL)
	assert.True(t, isArray)
}
