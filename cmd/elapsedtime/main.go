package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sanspareilsmyn/elapsedtime/internal/config"
	"github.com/sanspareilsmyn/elapsedtime/internal/elapsed"
	"github.com/sanspareilsmyn/elapsedtime/internal/logging"
	"github.com/sanspareilsmyn/elapsedtime/internal/pipeline"
	"github.com/sanspareilsmyn/elapsedtime/internal/sink"
)

var (
	configFile = flag.String("config", "configs/config.dev.yaml", "Path to the configuration file")
	logger     *zap.Logger
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration from %s: %v\n", *configFile, err)
		os.Exit(1)
	}

	var logErr error
	logger, logErr = logging.NewLogger(cfg.Log)
	if logErr != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to initialize logger: %v\n", logErr)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync() // Flush buffered logs on exit
	}()

	sugar := logger.Sugar()
	sugar.Infow("Logger initialized",
		"level", cfg.Log.Level,
		"format", cfg.Log.Format,
	)
	sugar.Infow("Configuration loaded successfully", "path", *configFile)

	// Metrics endpoint
	metricsServer := &http.Server{Addr: cfg.Metrics.Addr, Handler: promhttp.Handler()}
	go func() {
		sugar.Infow("Serving metrics", "addr", cfg.Metrics.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Errorw("Metrics server stopped", zap.Error(err))
		}
	}()

	// Stores, emitter and the timed output
	stores, err := sink.NewAll(cfg.Elapsed.Stores, cfg.Kafka, logger.Named("store"))
	if err != nil {
		sugar.Fatalw("Failed to build stores", "error", err)
	}
	emitter := pipeline.NewSummaryEmitter(cfg.Kafka, logger.Named("summary"))
	defer func() {
		if err := emitter.Close(); err != nil {
			sugar.Warnw("Failed to close summary emitter", zap.Error(err))
		}
	}()

	output, err := elapsed.New(cfg.Elapsed, stores, emitter, logger.Named("elapsed"))
	if err != nil {
		sugar.Fatalw("Failed to initialize elapsed output", "error", err)
	}

	sugar.Info("Initializing pipeline...")
	pipe, err := pipeline.New(cfg, output, logger)
	if err != nil {
		sugar.Fatalw("Failed to initialize pipeline", "error", err)
	}

	if err := output.Start(); err != nil {
		sugar.Fatalw("Failed to start elapsed output", "error", err)
	}

	// Handle Graceful Shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		sugar.Infow("Received signal, initiating shutdown...", "signal", sig.String())
		cancel()
	}()

	sugar.Info("Starting pipeline...")
	runErr := pipe.Run(ctx)

	if err := output.Shutdown(); err != nil {
		sugar.Errorw("Elapsed output shutdown reported errors", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)

	finalLogLevel := zapcore.InfoLevel
	shutdownReason := "gracefully"
	var finalErrorField = zap.Skip()

	switch {
	case runErr == nil:
		sugar.Info("Pipeline execution completed without error.")
	case errors.Is(runErr, context.Canceled):
		sugar.Info("Pipeline execution cancelled (expected on shutdown).")
	default:
		shutdownReason = "due to error"
		finalLogLevel = zapcore.ErrorLevel
		finalErrorField = zap.Error(runErr)
		sugar.Errorw("Pipeline execution stopped unexpectedly", zap.Error(runErr))
	}

	logger.Log(finalLogLevel, fmt.Sprintf("Pipeline shutdown %s.", shutdownReason),
		zap.String("reason", shutdownReason),
		finalErrorField,
	)
	sugar.Info("elapsedtime finished.")
}
