// Package metricsserver runs the Prometheus exposition endpoint on its own
// listener, kept off the public traffic port.
package metricsserver

import (
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/crawlable/edge/internal/config"
)

// Handler serves the metrics exposition format.
type Handler interface {
	ServeHTTP(ctx *fasthttp.RequestCtx)
}

// Start launches the metrics listener in the background. Returns nil when
// metrics are disabled; otherwise the server, for shutdown.
func Start(cfg config.MetricsConfig, handler Handler, logger *zap.Logger) *fasthttp.Server {
	if !cfg.Enabled {
		logger.Info("Metrics collection disabled")
		return nil
	}

	server := &fasthttp.Server{
		Handler:            route(cfg.Path, handler),
		Name:               "Crawlable-Metrics",
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       10 * time.Second,
		MaxRequestBodySize: 1 * 1024,
		Concurrency:        100,
	}

	go func() {
		logger.Info("Metrics server listening",
			zap.String("listen", cfg.Listen),
			zap.String("path", cfg.Path))

		if err := server.ListenAndServe(cfg.Listen); err != nil {
			logger.Error("Metrics server stopped",
				zap.String("listen", cfg.Listen),
				zap.Error(err))
		}
	}()

	return server
}

func route(path string, handler Handler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == path {
			handler.ServeHTTP(ctx)
			return
		}

		ctx.SetStatusCode(fasthttp.StatusNotFound)
		ctx.SetBodyString("Not Found")
	}
}
