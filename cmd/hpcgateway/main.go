// Command hpcgateway runs the HPC-backend inference gateway: a single
// OpenAI-compatible streaming endpoint fronting a remote compute cluster
// reachable only through a persistent multiplexed remote-shell transport
// (spec.md §1-§2, §4.4).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/inference-gateway/gateway/internal/audit"
	"github.com/inference-gateway/gateway/internal/config"
	"github.com/inference-gateway/gateway/internal/gateway"
	"github.com/inference-gateway/gateway/internal/hpcgateway"
	"github.com/inference-gateway/gateway/internal/hpctransport"
	"github.com/inference-gateway/gateway/internal/metrics"
	"github.com/inference-gateway/gateway/internal/secretstore"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "building logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("hpcgateway exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	hpcSecrets, err := secretstore.LoadHPC(cfg.Secrets.Dir, cfg.HPC.KeyName)
	if err != nil {
		return fmt.Errorf("loading HPC private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(hpcSecrets.PrivateKeyPEM)
	if err != nil {
		return fmt.Errorf("parsing HPC private key: %w", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	dial := func() (*ssh.Client, error) {
		return ssh.Dial("tcp", cfg.HPC.Host, &ssh.ClientConfig{
			User:            cfg.HPC.User,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         cfg.HPC.HeaderReadTimeout,
		})
	}

	pool := hpctransport.NewPool(cfg.HPC.MaxConnections, dial)
	defer pool.Close()

	liveness := hpctransport.NewLiveness(pool, cfg.HPC.RoutineInterval, cfg.HPC.LivenessTimeout, logger, m.LivenessFailures)
	liveness.Start()
	defer liveness.Stop()

	logger.Info("hpc transport pool warmed",
		zap.String("host", cfg.HPC.Host), zap.Int("max_connections", cfg.HPC.MaxConnections))

	handler := &hpcgateway.Handler{
		DefaultPortal:          cfg.Gateway.DefaultPortal,
		HeaderReadTimeout:      cfg.HPC.HeaderReadTimeout,
		InlineDataLimit:        cfg.HPC.InlineDataLimit,
		AccountingEnabled:      cfg.Features.AccountingEnabled,
		InlineBodyEnabled:      cfg.Features.InlineBodyEnabled,
		ServiceFromBodyEnabled: cfg.Features.ServiceFromBodyEnabled,
		Pool:                   pool,
		Sink:                   audit.NewZapSink(logger),
		Metrics:                m,
		Logger:                 logger,
	}

	router := gateway.Router(cfg.Gateway.PathPrefix, handler.Handle, gateway.MetricsHandler{})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("hpcgateway listening", zap.Int("port", cfg.Server.Port), zap.String("prefix", cfg.Gateway.PathPrefix))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-stop:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
