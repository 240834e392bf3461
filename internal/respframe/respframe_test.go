package respframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBasicResponse(t *testing.T) {
	buf := []byte("HTTP/1.1 200 OK\r\nContent-Type: application/json\r\n\r\n{\"ok\":true}")

	f, err := Parse(buf)
	require.NoError(t, err)

	assert.Equal(t, 200, f.StatusCode)
	assert.Equal(t, "OK", f.Reason)
	assert.Equal(t, "application/json", f.Header["Content-Type"])
	assert.Equal(t, []byte(`{"ok":true}`), f.Body)
}

func TestParseIncompleteReturnsErrIncomplete(t *testing.T) {
	_, err := Parse([]byte("HTTP/1.1 200 OK\r\nContent-Type: appl"))
	assert.ErrorAs(t, err, &ErrIncomplete{})
}

func TestParseDropsContentLength(t *testing.T) {
	buf := []byte("HTTP/1.1 200 OK\r\nContent-Length: 11\r\nX: 1\r\n\r\nbody")

	f, err := Parse(buf)
	require.NoError(t, err)

	_, hasContentLength := f.Header["Content-Length"]
	assert.False(t, hasContentLength)
	assert.Equal(t, "1", f.Header["X"])
}

func TestParseSkipsMalformedHeaderLines(t *testing.T) {
	buf := []byte("HTTP/1.1 200 OK\r\nnot-a-header-line\r\nX: 1\r\n\r\nbody")

	f, err := Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, "1", f.Header["X"])
	assert.Len(t, f.Header, 1)
}

func TestParseMalformedStatusLine(t *testing.T) {
	_, err := Parse([]byte("not a status line\r\n\r\nbody"))
	assert.ErrorAs(t, err, &ErrMalformedStatusLine{})
}

// TestParseHandles1xxContinuation is the literal scenario from spec §8
// invariant 6: a 100 Continue preamble must be discarded and parsing must
// recurse onto the real response that follows it.
func TestParseHandles1xxContinuation(t *testing.T) {
	buf := []byte("HTTP/1.1 100 Continue\r\n\r\nHTTP/1.1 200 OK\r\nX: 1\r\n\r\nBODY")

	f, err := Parse(buf)
	require.NoError(t, err)

	assert.Equal(t, 200, f.StatusCode)
	assert.Equal(t, "1", f.Header["X"])
	assert.Equal(t, []byte("BODY"), f.Body)
}
