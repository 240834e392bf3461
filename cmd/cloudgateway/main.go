// Command cloudgateway runs the cloud-backend inference gateway: a single
// OpenAI-compatible streaming endpoint fronting a hosted chat-completion
// service (spec.md §1-§2).
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

	"github.com/inference-gateway/gateway/internal/audit"
	"github.com/inference-gateway/gateway/internal/cloudbackend"
	"github.com/inference-gateway/gateway/internal/cloudgateway"
	"github.com/inference-gateway/gateway/internal/config"
	"github.com/inference-gateway/gateway/internal/gateway"
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
		logger.Fatal("cloudgateway exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cloudSecrets, err := secretstore.LoadCloud(cfg.Secrets.Dir)
	if err != nil {
		return fmt.Errorf("loading cloud secrets: %w", err)
	}
	logger.Info("cloud secrets loaded", zap.Int("deployments", len(cloudSecrets.Deployments)))

	m := metrics.New(prometheus.DefaultRegisterer)

	handler := &cloudgateway.Handler{
		DefaultPortal:  cfg.Gateway.DefaultPortal,
		SystemPrompt:   cfg.Gateway.SystemPrompt,
		ServiceEnabled: cfg.Features.CloudServiceEnabled,
		Registry:       cloudSecrets,
		Client:         cloudbackend.New(cloudSecrets.Endpoint, cloudSecrets.APIKey, cfg.Gateway.CloudAPIVersion),
		Sink:           audit.NewZapSink(logger),
		Metrics:        m,
		Logger:         logger,
	}

	router := gateway.Router(cfg.Gateway.PathPrefix, handler.Handle, gateway.MetricsHandler{})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("cloudgateway listening", zap.Int("port", cfg.Server.Port), zap.String("prefix", cfg.Gateway.PathPrefix))

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
