// Package streaming copies backend bytes to the client for both
// backends: fixed-size chunked reads from the HPC remote process
// (spec.md §4.7) and SSE-framed chat-completion deltas from the cloud
// backend (spec.md §4.2).
package streaming

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/inference-gateway/gateway/internal/audit"
	"github.com/inference-gateway/gateway/internal/gatewayerr"
	"github.com/inference-gateway/gateway/internal/respframe"
)

const chunkSize = 4096

// RemoteProcess is the subset of hpctransport.Handle the engine needs:
// a readable stdout and a way to kill the process on cancellation.
type RemoteProcess interface {
	Read(p []byte) (int, error)
	Kill() error
}

// AccountFunc computes input/output token counts once the full response
// body has been accumulated; it is invoked from the finalization block.
type AccountFunc func(body []byte) (inputTokens, outputTokens int)

// CopyHPCResponse reads the status line and headers off proc using
// respframe, writes them to w, then streams the remaining body in fixed
// 4 KiB chunks. It always finalizes rec exactly once via rec.Finalize,
// regardless of how the copy ends.
func CopyHPCResponse(ctx context.Context, w http.ResponseWriter, proc RemoteProcess, headerTimeout time.Duration, rec *audit.Record, sink audit.Sink, account AccountFunc) error {
	frame, body, err := readHeaders(ctx, proc, headerTimeout)
	if err != nil {
		rec.Finalize(false, 0, 0, 0)
		sink.Emit(rec)
		return err
	}

	for name, value := range frame.Header {
		w.Header().Set(name, value)
	}
	w.WriteHeader(frame.StatusCode)

	flusher, _ := w.(http.Flusher)

	var accumulated []byte
	accumulated = append(accumulated, body...)
	var writeErr error
	if len(body) > 0 {
		_, writeErr = w.Write(body)
		if flusher != nil {
			flusher.Flush()
		}
	}

	clean := true
	copyErr := writeErr
	if copyErr == nil {
		copyErr = copyLoop(ctx, w, proc, flusher, &accumulated)
	}
	if copyErr != nil {
		clean = errors.Is(copyErr, io.EOF)
	}

	if !clean {
		_ = proc.Kill()
	}

	inputTokens, outputTokens := 0, 0
	if account != nil {
		inputTokens, outputTokens = account(accumulated)
	}
	rec.Finalize(clean, int64(len(accumulated)), inputTokens, outputTokens)
	sink.Emit(rec)

	if clean {
		return nil
	}
	return copyErr
}

// readHeaders accumulates bytes from proc until respframe.Parse succeeds
// or a terminal condition (read timeout, EOF before terminator) occurs.
// The deadline and the context are checked between Read calls; a Read
// that blocks is not interrupted by either.
func readHeaders(ctx context.Context, proc RemoteProcess, timeout time.Duration) (respframe.Frame, []byte, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 0, 4096)
	readBuf := make([]byte, 4096)

	for {
		if time.Now().After(deadline) {
			_ = proc.Kill()
			return respframe.Frame{}, nil, &gatewayerr.UpstreamTimeout{Msg: "header parsing exceeded read timeout"}
		}
		select {
		case <-ctx.Done():
			_ = proc.Kill()
			return respframe.Frame{}, nil, ctx.Err()
		default:
		}

		n, err := proc.Read(readBuf)
		if n > 0 {
			buf = append(buf, readBuf[:n]...)
			frame, parseErr := respframe.Parse(buf)
			if parseErr == nil {
				return frame, frame.Body, nil
			}
			if !errors.As(parseErr, &respframe.ErrIncomplete{}) {
				return respframe.Frame{}, nil, &gatewayerr.UpstreamProtocol{Msg: parseErr.Error()}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return respframe.Frame{}, nil, &gatewayerr.UpstreamProtocol{Msg: "remote process ended before headers completed"}
			}
			return respframe.Frame{}, nil, &gatewayerr.UpstreamFailure{Msg: err.Error()}
		}
	}
}

func copyLoop(ctx context.Context, w http.ResponseWriter, proc RemoteProcess, flusher http.Flusher, accumulated *[]byte) error {
	buf := make([]byte, chunkSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := proc.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			*accumulated = append(*accumulated, chunk...)
			if _, writeErr := w.Write(chunk); writeErr != nil {
				return writeErr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
