// Package urlutil provides host and origin URL helpers used when routing
// requests to client sites.
package urlutil

import (
	"fmt"
	"net/url"
	"strings"
)

// Hostname strips the port from a Host header value and lowercases it.
// Handles IPv6 literals: the port of "[::1]:8080" is stripped, but a bare
// "::1" is returned untouched.
func Hostname(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))

	if strings.HasPrefix(host, "[") {
		if idx := strings.Index(host, "]"); idx != -1 {
			return host[1:idx]
		}
		return host
	}
	// Only strip a port when there is exactly one colon, which preserves
	// unbracketed IPv6 literals.
	if idx := strings.LastIndex(host, ":"); idx != -1 && strings.Count(host, ":") == 1 {
		return host[:idx]
	}
	return host
}

// ValidateOrigin checks that an origin URL returned by the site resolver is
// usable as a proxy or render target: absolute, http(s), with a host.
func ValidateOrigin(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("origin URL is empty")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("origin URL is not parseable: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("origin URL scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("origin URL has no host")
	}
	return nil
}

// JoinOrigin appends a request path (with query) to an origin base URL,
// avoiding duplicate slashes. The path is used as received from the client.
func JoinOrigin(origin, pathWithQuery string) string {
	origin = strings.TrimSuffix(origin, "/")
	if pathWithQuery == "" {
		return origin
	}
	if !strings.HasPrefix(pathWithQuery, "/") {
		pathWithQuery = "/" + pathWithQuery
	}
	return origin + pathWithQuery
}
