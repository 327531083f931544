package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/crawlable/edge/internal/backend"
	"github.com/crawlable/edge/internal/browser"
	"github.com/crawlable/edge/internal/config"
	logutil "github.com/crawlable/edge/internal/logger"
	"github.com/crawlable/edge/internal/metrics"
	"github.com/crawlable/edge/internal/metricsserver"
	"github.com/crawlable/edge/internal/proxy"
	"github.com/crawlable/edge/internal/renderer"
	"github.com/crawlable/edge/internal/server"
	"github.com/crawlable/edge/internal/telemetry"
)

func main() {
	configPath := flag.String("c", "", "Path to an optional config file (environment variables take precedence)")
	flag.Parse()

	initialLogger, err := logutil.NewDefault()
	if err != nil {
		panic(err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		initialLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	dynamicLogger, err := logutil.New(cfg.Log)
	if err != nil {
		initialLogger.Fatal("Failed to create configured logger", zap.Error(err))
	}
	logger := dynamicLogger.Logger
	defer logger.Sync()

	logger.Info("Prerender edge starting",
		zap.String("listen", cfg.Server.Listen),
		zap.String("backend_url", cfg.Backend.URL),
		zap.String("chrome_exec_path", cfg.Chrome.ExecPath))

	browserConfig := &browser.Config{
		ExecPath:     cfg.Chrome.ExecPath,
		MaxTabs:      cfg.Chrome.MaxTabs,
		ProbeTimeout: 5 * time.Second,
	}
	browsers, err := browser.NewManager(browserConfig, logger)
	if err != nil {
		logger.Fatal("Failed to initialize browser manager", zap.Error(err))
	}

	backendClient := backend.NewClient(cfg.Backend, logger)
	pageRenderer := renderer.New(browsers, cfg.Render, logger)
	originProxy := proxy.New(cfg.Proxy, logger)

	metricsCollector := metrics.New(cfg.Metrics.Namespace, browsers.Relaunches, logger)
	metricsServer := metricsserver.Start(cfg.Metrics, metricsCollector, logger)

	emitter := buildEmitter(cfg, backendClient, metricsCollector, logger)

	srv := server.NewServer(cfg, logger, browsers, backendClient, pageRenderer, originProxy, metricsCollector, emitter)

	httpServer := &fasthttp.Server{
		Handler:      srv.HandleRequest,
		Name:         "Crawlable-Edge",
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  cfg.Server.Timeout,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("listen", cfg.Server.Listen))
		if err := httpServer.ListenAndServe(cfg.Server.Listen); err != nil {
			serverErrCh <- err
		}
	}()

	time.Sleep(100 * time.Millisecond)
	select {
	case err := <-serverErrCh:
		logger.Fatal("HTTP server failed to start", zap.Error(err))
	default:
	}

	logger.Info("Prerender edge ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serverErrCh:
		logger.Error("Server error", zap.Error(err))
	}

	dynamicLogger.EnsureInfoForShutdown()
	logger.Info("Shutting down...")

	// The browser goes first so no request can launch a new process while
	// the listener is draining.
	if err := browsers.Shutdown(); err != nil {
		logger.Error("Browser shutdown error", zap.Error(err))
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown error", zap.Error(err))
		}
		cancel()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := srv.Shutdown(); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	logger.Info("Prerender edge stopped")
}

// buildEmitter assembles the telemetry pipeline: always the backend
// reporter, plus the local JSONL crawl log when enabled.
func buildEmitter(cfg *config.Config, client *backend.Client, collector *metrics.Metrics, logger *zap.Logger) telemetry.Emitter {
	backendEmitter := telemetry.NewBackendEmitter(client, logger, collector.RecordTelemetryFailure)

	if !cfg.Telemetry.File.Enabled {
		return backendEmitter
	}

	fileEmitter, err := telemetry.NewFileEmitter(cfg.Telemetry.File, logger)
	if err != nil {
		logger.Warn("Local crawl log disabled", zap.Error(err))
		return backendEmitter
	}

	return telemetry.NewMultiEmitter(backendEmitter, fileEmitter)
}
