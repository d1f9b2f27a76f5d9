package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nupi-ai/plugin-stt-whisper-host/internal/adapterinfo"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/config"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/engine"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/server"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/service"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/telemetry"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/transcript"
)

const shutdownTimeout = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Loader{}.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("starting adapter",
		"version", adapterinfo.Version(),
		"listen_addr", cfg.ListenAddr,
		"metrics_addr", cfg.MetricsAddr,
		"model_path", cfg.ModelPath,
		"language", cfg.Language,
		"result_mode", cfg.ResultMode,
	)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("adapter terminated with error", "error", err)
		os.Exit(1)
	}
	logger.Info("adapter stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	metrics, shutdownMetrics, err := telemetry.InitProvider(ctx, telemetry.ProviderConfig{
		ServiceName:    adapterinfo.Info.Slug,
		ServiceVersion: adapterinfo.Version(),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			logger.Warn("failed to shut down meter provider", "error", err)
		}
	}()
	recorder := telemetry.NewRecorder(logger, metrics)

	eng, engineErr := engine.New(cfg, logger)
	if engineErr != nil {
		logger.Warn("engine initialised with warnings", "error", engineErr)
	}

	mode, err := transcript.ParseMode(cfg.ResultMode)
	if err != nil {
		return err
	}
	opts := service.Options{
		Output:         os.Stdout,
		Mode:           mode,
		TimestampComma: cfg.TimestampComma,
		Recorder:       recorder,
	}
	if n := cfg.HardwareConcurrency; n > 0 {
		opts.HardwareConcurrency = func() int { return n }
	}
	svc := service.New(eng, logger, opts)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("failed to release contexts", "error", err)
		}
	}()

	if cfg.ModelPath != "" {
		if handle := svc.Init(cfg.ModelPath); handle == 0 {
			logger.Warn("model preload failed", "model_path", cfg.ModelPath)
		} else {
			logger.Info("model preloaded", "model_path", cfg.ModelPath, "handle", handle)
		}
	}

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}
	defer lis.Close()

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthgrpc.RegisterHealthServer(grpcServer, healthServer)

	healthServer.SetServingStatus("", healthgrpc.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(server.ServiceName, healthgrpc.HealthCheckResponse_NOT_SERVING)

	server.RegisterControlServer(grpcServer, server.New(cfg, logger, svc))

	healthServer.SetServingStatus("", healthgrpc.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(server.ServiceName, healthgrpc.HealthCheckResponse_SERVING)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving metrics", "addr", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown requested, stopping gRPC server")
		healthServer.SetServingStatus(server.ServiceName, healthgrpc.HealthCheckResponse_NOT_SERVING)
		healthServer.SetServingStatus("", healthgrpc.HealthCheckResponse_NOT_SERVING)

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()

		select {
		case <-stopped:
		case <-time.After(shutdownTimeout):
			logger.Warn("graceful stop timed out, forcing stop")
			grpcServer.Stop()
		}

		if metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown failed", "error", err)
			}
		}
		return nil
	})

	err = g.Wait()

	if snapshot := recorder.Snapshot(); snapshot.TotalJobs > 0 || snapshot.TotalContexts > 0 {
		logger.Info("telemetry totals",
			"total_jobs", snapshot.TotalJobs,
			"failed_jobs", snapshot.FailedJobs,
			"active_jobs", snapshot.ActiveJobs,
			"total_segments", snapshot.TotalSegments,
			"total_tokens", snapshot.TotalTokens,
			"total_samples", snapshot.TotalSamples,
			"total_contexts", snapshot.TotalContexts,
			"live_contexts", snapshot.LiveContexts,
			"context_failures", snapshot.ContextFailures,
		)
	}
	return err
}

// newLogger writes to stderr; stdout carries the result lines.
func newLogger(level string) *slog.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler)
}

func parseLevel(value string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
