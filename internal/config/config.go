// Package config loads and validates the edge service configuration.
// Values come from the environment (PRERENDER_ prefix) with an optional
// YAML file; required backend credentials fail startup immediately.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Log level constants accepted by log.level, log.console.level, log.file.level.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Log format constants.
const (
	LogFormatConsole = "console"
	LogFormatText    = "text"
	LogFormatJSON    = "json"
)

// Config captures all service configuration knobs.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Chrome    ChromeConfig    `mapstructure:"chrome"`
	Render    RenderConfig    `mapstructure:"render"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig controls the public HTTP listener.
type ServerConfig struct {
	Listen  string        `mapstructure:"listen"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// BackendConfig points at the SaaS backend used for site lookup and
// crawl-event ingestion. Token and APIKey are required credentials.
type BackendConfig struct {
	URL          string        `mapstructure:"url"`
	ServiceToken string        `mapstructure:"service_token"`
	APIKey       string        `mapstructure:"api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// ChromeConfig governs the shared headless browser.
type ChromeConfig struct {
	ExecPath string `mapstructure:"exec_path"` // empty: chromedp default discovery
	MaxTabs  string `mapstructure:"max_tabs"`  // "auto" or positive integer
}

// RenderConfig governs a single page render.
type RenderConfig struct {
	NavTimeout    time.Duration `mapstructure:"nav_timeout"`
	ReadySelector string        `mapstructure:"ready_selector"`
	ReadyTimeout  time.Duration `mapstructure:"ready_timeout"`
	SettleDelay   time.Duration `mapstructure:"settle_delay"`
	UserAgent     string        `mapstructure:"user_agent"`
	StripScripts  bool          `mapstructure:"strip_scripts"`
	CacheMaxAge   int           `mapstructure:"cache_max_age"` // seconds, Cache-Control on prerendered responses
}

// ProxyConfig governs origin passthrough.
type ProxyConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// MetricsConfig controls the standalone Prometheus listener.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Listen    string `mapstructure:"listen"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// TelemetryConfig selects crawl-event sinks beyond the backend reporter.
type TelemetryConfig struct {
	File TelemetryFileConfig `mapstructure:"file"`
}

// TelemetryFileConfig configures the local JSONL crawl log.
type TelemetryFileConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// LogConfig configures zap outputs.
type LogConfig struct {
	Level   string           `mapstructure:"level"`
	Console ConsoleLogConfig `mapstructure:"console"`
	File    FileLogConfig    `mapstructure:"file"`
}

// ConsoleLogConfig configures the stdout core.
type ConsoleLogConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Level   string `mapstructure:"level"` // empty: inherit log.level
	Format  string `mapstructure:"format"`
}

// FileLogConfig configures the rotated file core.
type FileLogConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Level    string         `mapstructure:"level"`
	Format   string         `mapstructure:"format"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig maps onto lumberjack settings.
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"` // MB
	MaxAge     int  `mapstructure:"max_age"`  // days
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// Load builds a Config from the environment and an optional config file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRERENDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", ":3000")
	v.SetDefault("server.timeout", 60*time.Second)
	// Required credentials default to empty so AutomaticEnv can see the
	// keys; Validate rejects them when they stay empty.
	v.SetDefault("backend.url", "")
	v.SetDefault("backend.service_token", "")
	v.SetDefault("backend.api_key", "")
	v.SetDefault("backend.timeout", 10*time.Second)
	v.SetDefault("chrome.exec_path", "")
	v.SetDefault("chrome.max_tabs", "auto")
	v.SetDefault("render.nav_timeout", 30*time.Second)
	v.SetDefault("render.ready_selector", "#root")
	v.SetDefault("render.ready_timeout", 5*time.Second)
	v.SetDefault("render.settle_delay", time.Second)
	v.SetDefault("render.user_agent", "Crawlable-Render/1.0 (+https://crawlable.dev/bot)")
	v.SetDefault("render.strip_scripts", false)
	v.SetDefault("render.cache_max_age", 86400)
	v.SetDefault("proxy.timeout", 30*time.Second)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9090")
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "prerender")
	v.SetDefault("telemetry.file.enabled", false)
	v.SetDefault("telemetry.file.path", "")
	v.SetDefault("log.level", LogLevelInfo)
	v.SetDefault("log.console.enabled", true)
	v.SetDefault("log.console.format", LogFormatConsole)
	v.SetDefault("log.file.enabled", false)
	v.SetDefault("log.file.path", "")
	v.SetDefault("log.file.format", LogFormatJSON)
}

// Validate enforces required credentials and sane limits. Missing backend
// credentials are a startup failure, never a request-time error.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen must be set")
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive")
	}
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required (set PRERENDER_BACKEND_URL)")
	}
	if c.Backend.ServiceToken == "" {
		return fmt.Errorf("backend.service_token is required (set PRERENDER_BACKEND_SERVICE_TOKEN)")
	}
	if c.Backend.APIKey == "" {
		return fmt.Errorf("backend.api_key is required (set PRERENDER_BACKEND_API_KEY)")
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive")
	}
	if c.Chrome.MaxTabs != "auto" {
		n, err := strconv.Atoi(c.Chrome.MaxTabs)
		if err != nil || n <= 0 {
			return fmt.Errorf("chrome.max_tabs must be 'auto' or a positive integer")
		}
	}
	if c.Render.NavTimeout <= 0 {
		return fmt.Errorf("render.nav_timeout must be positive")
	}
	if c.Render.CacheMaxAge < 0 {
		return fmt.Errorf("render.cache_max_age must not be negative")
	}
	if c.Proxy.Timeout <= 0 {
		return fmt.Errorf("proxy.timeout must be positive")
	}
	if c.Telemetry.File.Enabled && c.Telemetry.File.Path == "" {
		return fmt.Errorf("telemetry.file.path must be set when file telemetry is enabled")
	}
	if c.Log.File.Enabled && c.Log.File.Path == "" {
		return fmt.Errorf("log.file.path must be set when file logging is enabled")
	}
	return nil
}
