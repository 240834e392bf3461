package streaming

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SSEWriter writes "data: <json>\n" lines to an http.ResponseWriter,
// flushing after each one so the client sees tokens as they arrive
// (spec.md §4.2 step 5). Unlike the OpenAI SDK's own SSE framing, this
// gateway forwards a single trailing newline per event rather than a
// blank-line separator, matching the wire format spec.md's scenario S1/S2
// text calls for.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter prepares w for event-stream output. It returns an error if
// w doesn't support flushing, since buffered output would defeat
// real-time delivery.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming: response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteChunk marshals chunk and writes it as one SSE data line.
func (s *SSEWriter) WriteChunk(chunk any) error {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("streaming: marshaling chunk: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n", payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// SynthesizeFromText emits one delta chunk per rune of text via build,
// reproducing the live-streaming envelope shape for a non-streaming
// reasoning-model response (spec.md §4.2 step 4, §9 "reasoning-model
// adaptation"). build receives each successive rune as a string delta and
// must return the chunk envelope to serialize; the final call passes an
// empty delta so callers can attach finish_reason/usage on it.
func (s *SSEWriter) SynthesizeFromText(text string, build func(delta string, final bool) any) error {
	runes := []rune(text)
	for _, r := range runes {
		if err := s.WriteChunk(build(string(r), false)); err != nil {
			return err
		}
	}
	return s.WriteChunk(build("", true))
}
