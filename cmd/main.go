package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	grpcapi "dispatch-copilot-service/internal/api/grpc"
	"dispatch-copilot-service/internal/app"
	"dispatch-copilot-service/internal/config"
	httpapi "dispatch-copilot-service/internal/http"
	"dispatch-copilot-service/internal/observability"
	"dispatch-copilot-service/internal/observability/logging"
	"dispatch-copilot-service/internal/observability/metrics"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load()
	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})
	logger := logging.WithComponent("main")

	application, err := app.New(context.Background(), cfg, metrics.DefaultMetrics)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build application")
	}

	obs := observability.NewServer(cfg.Observability.MetricsAddr, application.Ready)
	obs.Start()

	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		logger.Fatal().Err(err).Str("port", cfg.Service.GRPCPort).Msg("Failed to listen")
	}
	grpcServer := grpcapi.New(metrics.DefaultMetrics)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatal().Err(err).Msg("gRPC serve failed")
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.Service.HTTPAddr,
		Handler:           httpapi.NewRouter(application),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.Service.HTTPAddr).Msg("Dispatch hub listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP serve failed")
		}
	}()

	if err := application.Start(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start application")
	}
	grpcServer.SetServing(true)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info().Msg("Shutting down dispatch hub")
	grpcServer.SetServing(false)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	if err := application.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("Application shutdown incomplete")
	}
	grpcServer.Stop()
	if err := obs.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("Observability shutdown incomplete")
	}
}
