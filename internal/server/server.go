// Package server is the public HTTP front of the prerender edge: it
// classifies each request as bot or human, routes bots through the headless
// renderer, and proxies everything else to the site's origin.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/crawlable/edge/internal/backend"
	"github.com/crawlable/edge/internal/bot"
	"github.com/crawlable/edge/internal/browser"
	"github.com/crawlable/edge/internal/config"
	"github.com/crawlable/edge/internal/metrics"
	"github.com/crawlable/edge/internal/proxy"
	"github.com/crawlable/edge/internal/renderer"
	"github.com/crawlable/edge/internal/requestid"
	"github.com/crawlable/edge/internal/telemetry"
	"github.com/crawlable/edge/internal/urlutil"
)

// siteResolver looks up routing records for inbound domains.
type siteResolver interface {
	Lookup(ctx context.Context, domain string) (*backend.Site, error)
}

// pageRenderer renders a URL to static HTML.
type pageRenderer interface {
	Render(ctx context.Context, targetURL, requestID string) (*renderer.Result, error)
}

// originProxy fetches a URL straight from the origin.
type originProxy interface {
	Fetch(targetURL, method string, clientHeaders map[string][]string, requestID string) *proxy.Response
}

// browserState reports the shared browser without launching it.
type browserState interface {
	State() browser.State
}

// Server dispatches edge traffic.
type Server struct {
	config   *config.Config
	logger   *zap.Logger
	browsers browserState
	resolver siteResolver
	renderer pageRenderer
	proxy    originProxy
	metrics  *metrics.Metrics
	emitter  telemetry.Emitter
}

func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	browsers browserState,
	resolver siteResolver,
	pageRenderer pageRenderer,
	originProxy originProxy,
	metricsCollector *metrics.Metrics,
	emitter telemetry.Emitter,
) *Server {
	return &Server{
		config:   cfg,
		logger:   logger,
		browsers: browsers,
		resolver: resolver,
		renderer: pageRenderer,
		proxy:    originProxy,
		metrics:  metricsCollector,
		emitter:  emitter,
	}
}

// HandleRequest is the fasthttp entry point for all edge traffic.
func (s *Server) HandleRequest(ctx *fasthttp.RequestCtx) {
	customRequestID := string(ctx.Request.Header.Peek("X-Request-ID"))
	requestID := requestid.New(customRequestID)
	ctx.Response.Header.Set("X-Request-ID", requestID)

	logger := s.logger.With(zap.String("request_id", requestID))

	switch string(ctx.Path()) {
	case "/health", "/_health":
		s.handleHealth(ctx)
		return
	}

	s.dispatch(ctx, requestID, logger)
}

// dispatch routes one page request: classify, resolve, then render or proxy.
func (s *Server) dispatch(ctx *fasthttp.RequestCtx, requestID string, logger *zap.Logger) {
	start := time.Now()

	s.metrics.IncActiveRequests()
	defer s.metrics.DecActiveRequests()

	host := string(ctx.Host())
	if host == "" {
		logger.Warn("Request without Host header")
		s.writeError(ctx, fasthttp.StatusBadRequest, "Missing Host header")
		s.metrics.RecordRequest("", metrics.OutcomeError, time.Since(start))
		return
	}

	domain := urlutil.Hostname(host)
	userAgent := string(ctx.UserAgent())
	isBot := bot.IsBot(userAgent)

	logger.Info("Handling request",
		zap.String("domain", domain),
		zap.String("path", string(ctx.RequestURI())),
		zap.String("user_agent", userAgent),
		zap.Bool("bot", isBot))

	site, err := s.resolveSite(domain, logger)
	if err != nil {
		s.writeJSONError(ctx, fasthttp.StatusNotFound, fmt.Sprintf("Site not configured: %s", domain))
		s.metrics.RecordRequest(domain, metrics.OutcomeError, time.Since(start))
		return
	}

	targetURL := urlutil.JoinOrigin(site.OriginURL, string(ctx.RequestURI()))

	if isBot {
		s.serveBot(ctx, site, domain, targetURL, userAgent, requestID, start, logger)
		return
	}

	s.serveHuman(ctx, domain, targetURL, requestID, start, logger)
}

// resolveSite queries the backend for the domain's routing record. Not
// found, lookup failure, and a record without an origin all terminate the
// request the same way; there is nothing to proxy to without an origin.
func (s *Server) resolveSite(domain string, logger *zap.Logger) (*backend.Site, error) {
	lookupCtx, cancel := context.WithTimeout(context.Background(), s.config.Backend.Timeout)
	defer cancel()

	site, err := s.resolver.Lookup(lookupCtx, domain)
	if err != nil {
		logger.Error("Site lookup failed", zap.String("domain", domain), zap.Error(err))
		return nil, err
	}
	if !site.Found {
		logger.Warn("Domain not registered", zap.String("domain", domain))
		return nil, fmt.Errorf("site not found: %s", domain)
	}
	if site.OriginURL == "" {
		logger.Warn("Site has no origin configured",
			zap.String("domain", domain),
			zap.String("site_id", site.SiteID))
		return nil, fmt.Errorf("no origin configured for %s", domain)
	}
	if err := urlutil.ValidateOrigin(site.OriginURL); err != nil {
		logger.Error("Site has invalid origin URL",
			zap.String("domain", domain),
			zap.String("origin_url", site.OriginURL),
			zap.Error(err))
		return nil, err
	}
	return site, nil
}

// serveBot prerenders the page for a crawler, falling back to a plain proxy
// fetch when the render fails. The bot always gets a response; a reachable
// origin means no 5xx.
func (s *Server) serveBot(ctx *fasthttp.RequestCtx, site *backend.Site, domain, targetURL, userAgent, requestID string, start time.Time, logger *zap.Logger) {
	renderCtx, cancel := context.WithTimeout(context.Background(), s.config.Render.NavTimeout)
	defer cancel()

	result, err := s.renderer.Render(renderCtx, targetURL, requestID)
	if err != nil {
		logger.Warn("Render failed, falling back to origin proxy",
			zap.String("url", targetURL),
			zap.Error(err))
		s.metrics.RecordRenderFailure(domain, failureReason(err))

		resp := s.proxy.Fetch(targetURL, string(ctx.Method()), clientHeaders(ctx), requestID)
		s.writeProxied(ctx, resp)
		s.metrics.RecordRequest(domain, metrics.OutcomeFallback, time.Since(start))
		return
	}

	elapsedMS := result.Elapsed.Milliseconds()

	ctx.Response.Header.SetContentType("text/html; charset=utf-8")
	ctx.Response.Header.Set("X-Prerendered", "true")
	ctx.Response.Header.Set("X-Render-Time", fmt.Sprintf("%dms", elapsedMS))
	ctx.Response.Header.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", s.config.Render.CacheMaxAge))
	ctx.Response.SetStatusCode(fasthttp.StatusOK)
	s.writeBody(ctx, []byte(result.HTML))

	s.metrics.RecordRenderDuration(domain, result.Elapsed)
	s.metrics.RecordRequest(domain, metrics.OutcomePrerendered, time.Since(start))

	// Fire-and-forget; the crawler never waits on telemetry.
	s.emitter.Emit(backend.CrawlEvent{
		SiteID:       site.SiteID,
		Domain:       domain,
		URL:          targetURL,
		UserAgent:    userAgent,
		RenderTimeMS: elapsedMS,
		Cached:       false,
	})

	logger.Info("Prerendered response served",
		zap.String("url", targetURL),
		zap.Int("html_size", len(result.HTML)),
		zap.Duration("render_time", result.Elapsed))
}

// serveHuman proxies the request straight through to the origin.
func (s *Server) serveHuman(ctx *fasthttp.RequestCtx, domain, targetURL, requestID string, start time.Time, logger *zap.Logger) {
	resp := s.proxy.Fetch(targetURL, string(ctx.Method()), clientHeaders(ctx), requestID)
	s.writeProxied(ctx, resp)

	outcome := metrics.OutcomeProxied
	if resp.StatusCode == fasthttp.StatusBadGateway {
		outcome = metrics.OutcomeError
	}
	s.metrics.RecordRequest(domain, outcome, time.Since(start))

	logger.Info("Proxied response served",
		zap.String("url", targetURL),
		zap.Int("status_code", resp.StatusCode))
}

// writeProxied relays an origin response, tagging its provenance.
func (s *Server) writeProxied(ctx *fasthttp.RequestCtx, resp *proxy.Response) {
	ctx.Response.Header.SetContentType(resp.ContentType)
	ctx.Response.Header.Set("X-Proxied-By", "Crawlable-Edge")
	ctx.Response.SetStatusCode(resp.StatusCode)
	s.writeBody(ctx, resp.Body)
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	// Reporting state must never launch the browser.
	body, _ := json.Marshal(map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"browser":   string(s.browsers.State()),
	})

	ctx.Response.Header.SetContentType("application/json")
	ctx.Response.SetStatusCode(fasthttp.StatusOK)
	ctx.Response.SetBody(body)
}

func (s *Server) writeError(ctx *fasthttp.RequestCtx, statusCode int, message string) {
	ctx.Response.Header.SetContentType("text/plain")
	ctx.Response.SetStatusCode(statusCode)
	ctx.Response.SetBodyString(message)
}

func (s *Server) writeJSONError(ctx *fasthttp.RequestCtx, statusCode int, message string) {
	body, _ := json.Marshal(map[string]string{"error": message})
	ctx.Response.Header.SetContentType("application/json")
	ctx.Response.SetStatusCode(statusCode)
	ctx.Response.SetBody(body)
}

// Shutdown closes the telemetry sinks after the listener has stopped.
func (s *Server) Shutdown() error {
	if s.emitter != nil {
		if err := s.emitter.Close(); err != nil {
			s.logger.Warn("Failed to close telemetry emitter", zap.Error(err))
			return err
		}
	}
	return nil
}
