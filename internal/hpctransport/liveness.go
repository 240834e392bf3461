package hpctransport

import (
	"context"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const keepAliveCommand = "keep-alive"

// Liveness runs the keep-alive loop described in spec.md §4.4: once every
// interval, it execs "keep-alive" on a pool slot and waits for it to
// finish, bounded by a timeout. It runs on its own goroutine so a slow or
// hung remote shell never stalls request handling.
type Liveness struct {
	pool     *Pool
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	failures prometheus.Counter

	stop chan struct{}
	done chan struct{}
}

// NewLiveness builds a Liveness loop against pool, checking in every
// interval with the given per-check timeout. failures, if non-nil, is
// incremented once per failed check (wired to
// inference_gateway_hpc_liveness_failures_total).
func NewLiveness(pool *Pool, interval, timeout time.Duration, logger *zap.Logger, failures prometheus.Counter) *Liveness {
	return &Liveness{
		pool:     pool,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		failures: failures,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background goroutine. Call Stop to shut it down.
func (l *Liveness) Start() {
	go l.run()
}

// Stop signals the loop to exit and blocks until it has.
func (l *Liveness) Stop() {
	close(l.stop)
	<-l.done
}

func (l *Liveness) run() {
	defer close(l.done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	backoff := l.interval
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			if err := l.checkOnce(); err != nil {
				l.logger.Error("hpc liveness check failed", zap.Error(err))
				if l.failures != nil {
					l.failures.Inc()
				}
				time.Sleep(backoff)
				continue
			}
			backoff = l.interval
		}
	}
}

func (l *Liveness) checkOnce() error {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	sess, err := l.pool.Session(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	done := make(chan error, 1)
	go func() {
		out, err := sess.Output(keepAliveCommand)
		if err != nil {
			done <- err
			return
		}
		_, _ = io.Discard.Write(out)
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = sess.Close()
		return ctx.Err()
	}
}
