package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PRERENDER_BACKEND_URL", "https://backend.crawlable.dev/edge")
	t.Setenv("PRERENDER_BACKEND_SERVICE_TOKEN", "svc-token")
	t.Setenv("PRERENDER_BACKEND_API_KEY", "api-key")
}

func TestLoadWithDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.Server.Listen)
	assert.Equal(t, "https://backend.crawlable.dev/edge", cfg.Backend.URL)
	assert.Equal(t, "svc-token", cfg.Backend.ServiceToken)
	assert.Equal(t, "api-key", cfg.Backend.APIKey)
	assert.Equal(t, "auto", cfg.Chrome.MaxTabs)
	assert.Equal(t, 30*time.Second, cfg.Render.NavTimeout)
	assert.Equal(t, "#root", cfg.Render.ReadySelector)
	assert.Equal(t, 5*time.Second, cfg.Render.ReadyTimeout)
	assert.Equal(t, time.Second, cfg.Render.SettleDelay)
	assert.Equal(t, "Crawlable-Render/1.0 (+https://crawlable.dev/bot)", cfg.Render.UserAgent)
	assert.False(t, cfg.Render.StripScripts)
	assert.Equal(t, 86400, cfg.Render.CacheMaxAge)
	assert.Equal(t, 30*time.Second, cfg.Proxy.Timeout)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "prerender", cfg.Metrics.Namespace)
	assert.Equal(t, LogLevelInfo, cfg.Log.Level)
	assert.True(t, cfg.Log.Console.Enabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PRERENDER_SERVER_LISTEN", ":8080")
	t.Setenv("PRERENDER_CHROME_EXEC_PATH", "/usr/bin/chromium")
	t.Setenv("PRERENDER_CHROME_MAX_TABS", "8")
	t.Setenv("PRERENDER_RENDER_NAV_TIMEOUT", "45s")
	t.Setenv("PRERENDER_RENDER_STRIP_SCRIPTS", "true")
	t.Setenv("PRERENDER_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, "/usr/bin/chromium", cfg.Chrome.ExecPath)
	assert.Equal(t, "8", cfg.Chrome.MaxTabs)
	assert.Equal(t, 45*time.Second, cfg.Render.NavTimeout)
	assert.True(t, cfg.Render.StripScripts)
	assert.Equal(t, LogLevelDebug, cfg.Log.Level)
}

func TestLoadFailsFastWithoutCredentials(t *testing.T) {
	tests := []struct {
		name    string
		unset   string
		wantMsg string
	}{
		{"missing url", "PRERENDER_BACKEND_URL", "backend.url"},
		{"missing service token", "PRERENDER_BACKEND_SERVICE_TOKEN", "backend.service_token"},
		{"missing api key", "PRERENDER_BACKEND_API_KEY", "backend.api_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.unset, "")

			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:  ServerConfig{Listen: ":3000", Timeout: time.Minute},
			Backend: BackendConfig{URL: "https://b", ServiceToken: "t", APIKey: "k", Timeout: time.Second},
			Chrome:  ChromeConfig{MaxTabs: "auto"},
			Render:  RenderConfig{NavTimeout: time.Second, CacheMaxAge: 60},
			Proxy:   ProxyConfig{Timeout: time.Second},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad max tabs", func(c *Config) { c.Chrome.MaxTabs = "lots" }},
		{"zero max tabs", func(c *Config) { c.Chrome.MaxTabs = "0" }},
		{"zero nav timeout", func(c *Config) { c.Render.NavTimeout = 0 }},
		{"negative cache max age", func(c *Config) { c.Render.CacheMaxAge = -1 }},
		{"zero proxy timeout", func(c *Config) { c.Proxy.Timeout = 0 }},
		{"zero server timeout", func(c *Config) { c.Server.Timeout = 0 }},
		{"file telemetry without path", func(c *Config) { c.Telemetry.File.Enabled = true }},
		{"file logging without path", func(c *Config) { c.Log.File.Enabled = true }},
	}

	require.NoError(t, base().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
