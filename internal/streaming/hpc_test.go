package streaming

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/inference-gateway/gateway/internal/audit"
	"github.com/inference-gateway/gateway/internal/gatewayerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct{ emitted *audit.Record }

func (f *fakeSink) Emit(r *audit.Record) { f.emitted = r }

type fakeProcess struct {
	r       io.Reader
	killed  bool
	killErr error
}

func (f *fakeProcess) Read(p []byte) (int, error) { return f.r.Read(p) }
func (f *fakeProcess) Kill() error                { f.killed = true; return f.killErr }

func TestCopyHPCResponseByteFidelity(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\n\r\n" + strings.Repeat("a", 5000)
	proc := &fakeProcess{r: strings.NewReader(raw)}
	rec := audit.New(audit.Meta{ID: "r1"}, 0)
	sink := &fakeSink{}

	w := httptest.NewRecorder()
	err := CopyHPCResponse(context.Background(), w, proc, time.Second, rec, sink, nil)
	require.NoError(t, err)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, strings.Repeat("a", 5000), w.Body.String())
	assert.Equal(t, audit.Completed, sink.emitted.Status)
	assert.False(t, proc.killed)
}

func TestCopyHPCResponseHandles1xxContinuation(t *testing.T) {
	raw := "HTTP/1.1 100 Continue\r\n\r\nHTTP/1.1 200 OK\r\nX: 1\r\n\r\nBODY"
	proc := &fakeProcess{r: strings.NewReader(raw)}
	rec := audit.New(audit.Meta{ID: "r1"}, 0)
	sink := &fakeSink{}

	w := httptest.NewRecorder()
	err := CopyHPCResponse(context.Background(), w, proc, time.Second, rec, sink, nil)
	require.NoError(t, err)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "1", w.Header().Get("X"))
	assert.Equal(t, "BODY", w.Body.String())
}

func TestCopyHPCResponseTimeoutKillsProcess(t *testing.T) {
	proc := &fakeProcess{r: &blockingReader{}}
	rec := audit.New(audit.Meta{ID: "r1"}, 0)
	sink := &fakeSink{}

	w := httptest.NewRecorder()
	err := CopyHPCResponse(context.Background(), w, proc, time.Millisecond, rec, sink, nil)

	require.Error(t, err)
	assert.True(t, proc.killed)
	assert.Equal(t, audit.Failed, sink.emitted.Status)
}

// blockingReader never returns data nor an error, but does return every
// 5ms; readHeaders checks its wall-clock deadline between reads, so the
// timeout fires on the first return after the deadline has passed.
type blockingReader struct{}

func (*blockingReader) Read(p []byte) (int, error) {
	time.Sleep(5 * time.Millisecond)
	return 0, nil
}

func TestCopyHPCResponseEOFBeforeHeadersIsProtocolError(t *testing.T) {
	proc := &fakeProcess{r: strings.NewReader("HTTP/1.1 200 OK\r\nIncomplete")}
	rec := audit.New(audit.Meta{ID: "r1"}, 0)
	sink := &fakeSink{}

	w := httptest.NewRecorder()
	err := CopyHPCResponse(context.Background(), w, proc, time.Second, rec, sink, nil)

	require.Error(t, err)
	var protoErr *gatewayerr.UpstreamProtocol
	assert.ErrorAs(t, err, &protoErr)
}
