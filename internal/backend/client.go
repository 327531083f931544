// Package backend is the HTTP client for the SaaS control plane: it resolves
// which origin a domain belongs to and ingests crawl telemetry.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/crawlable/edge/internal/config"
)

// Site is the routing record returned by a lookup. Found is false when the
// domain is not registered with the service.
type Site struct {
	Found          bool   `json:"found"`
	SiteID         string `json:"site_id"`
	OriginURL      string `json:"origin_url"`
	PrerenderToken string `json:"prerender_token"`
}

// CrawlEvent is one bot visit, reported after a successful prerender.
type CrawlEvent struct {
	SiteID       string `json:"site_id"`
	Domain       string `json:"domain"`
	URL          string `json:"url"`
	UserAgent    string `json:"user_agent"`
	RenderTimeMS int64  `json:"render_time_ms"`
	Cached       bool   `json:"cached"`
}

type lookupRequest struct {
	Action string `json:"action"`
	Domain string `json:"domain"`
}

type logRequest struct {
	Action string `json:"action"`
	CrawlEvent
}

// Client talks to the backend's edge endpoint. Both operations go to the
// same URL and are dispatched by the action field.
type Client struct {
	baseURL      string
	serviceToken string
	apiKey       string
	httpClient   *http.Client
	logger       *zap.Logger
}

func NewClient(cfg config.BackendConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:      cfg.URL,
		serviceToken: cfg.ServiceToken,
		apiKey:       cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger,
	}
}

// Lookup resolves a domain to its routing record. A domain unknown to the
// backend is not an error; it comes back with Found=false.
func (c *Client) Lookup(ctx context.Context, domain string) (*Site, error) {
	body, err := c.post(ctx, lookupRequest{Action: "lookup", Domain: domain})
	if err != nil {
		return nil, fmt.Errorf("site lookup for %q: %w", domain, err)
	}

	var site Site
	if err := json.Unmarshal(body, &site); err != nil {
		return nil, fmt.Errorf("site lookup for %q: decode response: %w", domain, err)
	}

	c.logger.Debug("Site lookup completed",
		zap.String("domain", domain),
		zap.Bool("found", site.Found),
		zap.String("site_id", site.SiteID))

	return &site, nil
}

// LogCrawl reports a crawl event. The response body is ignored; the caller
// only cares whether delivery succeeded.
func (c *Client) LogCrawl(ctx context.Context, event CrawlEvent) error {
	if _, err := c.post(ctx, logRequest{Action: "log", CrawlEvent: event}); err != nil {
		return fmt.Errorf("crawl log for %q: %w", event.Domain, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, payload interface{}) ([]byte, error) {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.serviceToken)
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend returned status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
