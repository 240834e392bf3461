package streaming

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSSEWriterSetsHeaders(t *testing.T) {
	w := httptest.NewRecorder()

	sw, err := NewSSEWriter(w)
	require.NoError(t, err)
	require.NotNil(t, sw)

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, 200, w.Code)
}

func TestWriteChunkFormatsDataLine(t *testing.T) {
	w := httptest.NewRecorder()
	sw, err := NewSSEWriter(w)
	require.NoError(t, err)

	require.NoError(t, sw.WriteChunk(map[string]string{"a": "b"}))

	assert.Equal(t, "data: {\"a\":\"b\"}\n", w.Body.String())
}

func TestSynthesizeFromTextEmitsOneChunkPerRune(t *testing.T) {
	w := httptest.NewRecorder()
	sw, err := NewSSEWriter(w)
	require.NoError(t, err)

	require.NoError(t, sw.SynthesizeFromText("hi", func(delta string, final bool) any {
		return map[string]any{"delta": delta, "final": final}
	}))

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"delta":"h"`)
	assert.Contains(t, lines[1], `"delta":"i"`)
	assert.Contains(t, lines[2], `"final":true`)
}
