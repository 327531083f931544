// Package proxy forwards non-rendered traffic to the site's origin server
// and relays the response untouched. It is the path for human visitors and
// the fallback when rendering fails.
package proxy

import (
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/crawlable/edge/internal/config"
)

// Response is the origin's reply, ready to relay to the client.
type Response struct {
	StatusCode  int
	Body        []byte
	ContentType string
}

// forwardedHeaders are the client request headers passed through to the
// origin. Everything else (cookies included) stays at the edge.
var forwardedHeaders = []string{
	"User-Agent",
	"Accept",
	"Accept-Language",
}

// Proxy fetches pages directly from origin servers.
type Proxy struct {
	client *fasthttp.Client
	logger *zap.Logger
}

func New(cfg config.ProxyConfig, logger *zap.Logger) *Proxy {
	return &Proxy{
		client: &fasthttp.Client{
			ReadTimeout:  cfg.Timeout,
			WriteTimeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// Fetch requests targetURL from the origin with the given method, forwarding
// a small allowlist of client headers. An unreachable origin yields a 502
// response rather than an error; the edge always answers the client itself.
func (p *Proxy) Fetch(targetURL, method string, clientHeaders map[string][]string, requestID string) *Response {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(targetURL)
	req.Header.SetMethod(method)

	for name, values := range clientHeaders {
		if !isForwarded(name) {
			continue
		}
		for i, value := range values {
			if i == 0 {
				req.Header.Set(name, value)
			} else {
				req.Header.Add(name, value)
			}
		}
	}

	if err := p.client.Do(req, resp); err != nil {
		p.logger.Warn("Origin request failed, returning 502 Bad Gateway",
			zap.String("request_id", requestID),
			zap.String("url", targetURL),
			zap.Error(err))

		return &Response{
			StatusCode:  fasthttp.StatusBadGateway,
			Body:        []byte("Bad Gateway: Origin unreachable"),
			ContentType: "text/plain; charset=utf-8",
		}
	}

	contentType := string(resp.Header.ContentType())
	if contentType == "" {
		contentType = "text/html; charset=utf-8"
	}

	p.logger.Debug("Origin request completed",
		zap.String("request_id", requestID),
		zap.String("url", targetURL),
		zap.Int("status_code", resp.StatusCode()),
		zap.Int("response_size", len(resp.Body())))

	return &Response{
		StatusCode:  resp.StatusCode(),
		Body:        append([]byte(nil), resp.Body()...),
		ContentType: contentType,
	}
}

func isForwarded(name string) bool {
	for _, h := range forwardedHeaders {
		if strings.EqualFold(name, h) {
			return true
		}
	}
	return false
}
