package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crawlable/edge/internal/config"
)

func testClient(url string) *Client {
	return NewClient(config.BackendConfig{
		URL:          url,
		ServiceToken: "svc-token",
		APIKey:       "api-key",
		Timeout:      2 * time.Second,
	}, zap.NewNop())
}

func TestLookupFound(t *testing.T) {
	var gotBody map[string]string
	var gotAuth, gotAPIKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAPIKey = r.Header.Get("X-API-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(Site{
			Found:          true,
			SiteID:         "site-42",
			OriginURL:      "https://origin.shop.example.com",
			PrerenderToken: "tok",
		})
	}))
	defer srv.Close()

	site, err := testClient(srv.URL).Lookup(context.Background(), "shop.example.com")
	require.NoError(t, err)

	assert.True(t, site.Found)
	assert.Equal(t, "site-42", site.SiteID)
	assert.Equal(t, "https://origin.shop.example.com", site.OriginURL)

	assert.Equal(t, "Bearer svc-token", gotAuth)
	assert.Equal(t, "api-key", gotAPIKey)
	assert.Equal(t, "lookup", gotBody["action"])
	assert.Equal(t, "shop.example.com", gotBody["domain"])
}

func TestLookupNotFoundIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Site{Found: false})
	}))
	defer srv.Close()

	site, err := testClient(srv.URL).Lookup(context.Background(), "unknown.example.com")
	require.NoError(t, err)
	assert.False(t, site.Found)
}

func TestLookupBackendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Lookup(context.Background(), "shop.example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestLookupUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := testClient(url).Lookup(context.Background(), "shop.example.com")
	assert.Error(t, err)
}

func TestLookupRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := testClient(srv.URL).Lookup(ctx, "shop.example.com")
	assert.Error(t, err)
}

func TestLogCrawlPayload(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	err := testClient(srv.URL).LogCrawl(context.Background(), CrawlEvent{
		SiteID:       "site-42",
		Domain:       "shop.example.com",
		URL:          "https://shop.example.com/products",
		UserAgent:    "Googlebot/2.1",
		RenderTimeMS: 800,
		Cached:       false,
	})
	require.NoError(t, err)

	assert.Equal(t, "log", got["action"])
	assert.Equal(t, "site-42", got["site_id"])
	assert.Equal(t, "shop.example.com", got["domain"])
	assert.Equal(t, "https://shop.example.com/products", got["url"])
	assert.Equal(t, "Googlebot/2.1", got["user_agent"])
	assert.Equal(t, float64(800), got["render_time_ms"])
	assert.Equal(t, false, got["cached"])
}

func TestLogCrawlDeliveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := testClient(srv.URL).LogCrawl(context.Background(), CrawlEvent{Domain: "shop.example.com"})
	assert.Error(t, err)
}
