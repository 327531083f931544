package server

import (
	"bytes"
	"errors"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/crawlable/edge/internal/renderer"
)

// gzipThreshold is the minimum body size worth compressing.
const gzipThreshold = 1024

// forwardableHeaders are the client request headers handed to the origin
// proxy. Matching is case-insensitive per RFC 7230.
var forwardableHeaders = []string{
	"User-Agent",
	"Accept",
	"Accept-Language",
}

// clientHeaders collects the forwardable request headers, preserving the
// original name case and multiple values.
func clientHeaders(ctx *fasthttp.RequestCtx) map[string][]string {
	headers := make(map[string][]string)

	for key, value := range ctx.Request.Header.All() {
		name := string(key)
		for _, allowed := range forwardableHeaders {
			if strings.EqualFold(name, allowed) {
				headers[name] = append(headers[name], string(value))
				break
			}
		}
	}

	if len(headers) == 0 {
		return nil
	}
	return headers
}

// failureReason maps a render error to a stable metrics label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, renderer.ErrHardTimeout):
		return "timeout"
	case errors.Is(err, renderer.ErrNavigate):
		return "navigation"
	case errors.Is(err, renderer.ErrExtractHTML):
		return "extraction"
	case errors.Is(err, renderer.ErrBrowser):
		return "browser"
	default:
		return "other"
	}
}

// writeBody writes the response body, gzip-compressed when the client
// accepts it and the body is large enough to benefit.
func (s *Server) writeBody(ctx *fasthttp.RequestCtx, body []byte) {
	if len(body) >= gzipThreshold && acceptsGzip(ctx) {
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(body); err == nil && w.Close() == nil {
			ctx.Response.Header.Set("Content-Encoding", "gzip")
			ctx.Response.SetBody(buf.Bytes())
			return
		}
		s.logger.Warn("Response compression failed, sending identity",
			zap.Int("body_size", len(body)))
	}
	ctx.Response.SetBody(body)
}

func acceptsGzip(ctx *fasthttp.RequestCtx) bool {
	return strings.Contains(string(ctx.Request.Header.Peek("Accept-Encoding")), "gzip")
}
