// Package config loads and validates relay configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int    `mapstructure:"port"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
	StaticDir             string `mapstructure:"static_dir"`
}

// UpstreamConfig describes the bot-management API and the retry budget used
// against it.
type UpstreamConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	Token      string `mapstructure:"token"`
	AuthScheme string `mapstructure:"auth_scheme"`
	UserAgent  string `mapstructure:"user_agent"`
	// TimeoutSeconds bounds a single attempt, not the whole retry sequence.
	TimeoutSeconds           int     `mapstructure:"timeout_seconds"`
	MaxRetries               int     `mapstructure:"max_retries"`
	DefaultRetryAfterSeconds int     `mapstructure:"default_retry_after_seconds"`
	MaxRetryAfterSeconds     int     `mapstructure:"max_retry_after_seconds"`
	RequestsPerSecond        float64 `mapstructure:"requests_per_second"`
	Burst                    int     `mapstructure:"burst"`
}

// RelayConfig holds the business rules applied to upstream listings.
type RelayConfig struct {
	AllowedCategories []string `mapstructure:"allowed_categories"`
	PublicBotPrefix   string   `mapstructure:"public_bot_prefix"`
	PublicCategoryID  string   `mapstructure:"public_category_id"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Relay.AllowedCategories = normalizeList(cfg.Relay.AllowedCategories)
	cfg.Upstream.Token = strings.TrimSpace(cfg.Upstream.Token)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 120)
	v.SetDefault("server.static_dir", "")
	v.SetDefault("upstream.base_url", "https://api.fnlb.net")
	v.SetDefault("upstream.token", "")
	v.SetDefault("upstream.auth_scheme", "raw")
	v.SetDefault("upstream.user_agent", "botrelay/0.1")
	v.SetDefault("upstream.timeout_seconds", 15)
	v.SetDefault("upstream.max_retries", 3)
	v.SetDefault("upstream.default_retry_after_seconds", 10)
	v.SetDefault("upstream.max_retry_after_seconds", 30)
	v.SetDefault("upstream.requests_per_second", 0)
	v.SetDefault("upstream.burst", 1)
	v.SetDefault("relay.allowed_categories", []string{})
	v.SetDefault("relay.public_bot_prefix", "ogsboti")
	v.SetDefault("relay.public_category_id", "")
	v.SetDefault("logging.development", true)
}

// bindLegacyEnv keeps the variable names older deployments already export.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"server.port":              {"RELAY_SERVER_PORT", "PORT"},
		"upstream.token":           {"RELAY_UPSTREAM_TOKEN", "API_TOKEN"},
		"relay.allowed_categories": {"RELAY_RELAY_ALLOWED_CATEGORIES", "ALLOWED_CATEGORIES"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// Validate enforces required values and reasonable limits. A missing upstream
// token is deliberately not an error here; see HasCredential.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("upstream.base_url must be an absolute http(s) URL")
	}
	switch strings.ToLower(c.Upstream.AuthScheme) {
	case "raw", "bearer":
	default:
		return fmt.Errorf("upstream.auth_scheme must be raw or bearer, got %q", c.Upstream.AuthScheme)
	}
	if c.Upstream.TimeoutSeconds <= 0 {
		return fmt.Errorf("upstream.timeout_seconds must be > 0")
	}
	if c.Upstream.MaxRetries < 1 || c.Upstream.MaxRetries > 10 {
		return fmt.Errorf("upstream.max_retries must be between 1 and 10")
	}
	if c.Upstream.DefaultRetryAfterSeconds <= 0 {
		return fmt.Errorf("upstream.default_retry_after_seconds must be > 0")
	}
	if c.Upstream.MaxRetryAfterSeconds <= 0 {
		return fmt.Errorf("upstream.max_retry_after_seconds must be > 0")
	}
	if c.Upstream.RequestsPerSecond < 0 {
		return fmt.Errorf("upstream.requests_per_second must be >= 0")
	}
	if strings.TrimSpace(c.Relay.PublicBotPrefix) == "" {
		return fmt.Errorf("relay.public_bot_prefix must be set")
	}
	return nil
}

// HasCredential reports whether an upstream token was supplied.
func (c Config) HasCredential() bool {
	return c.Upstream.Token != ""
}

// RequestTimeout bounds a whole relay request, retries included.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// UpstreamTimeout bounds one upstream attempt.
func (c Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.TimeoutSeconds) * time.Second
}

// DefaultRetryAfter is the wait used when a 429 has no usable Retry-After.
func (c Config) DefaultRetryAfter() time.Duration {
	return time.Duration(c.Upstream.DefaultRetryAfterSeconds) * time.Second
}

// MaxRetryAfter caps the wait honored for a single upstream 429.
func (c Config) MaxRetryAfter() time.Duration {
	return time.Duration(c.Upstream.MaxRetryAfterSeconds) * time.Second
}

// RetryBudget is the longest an upstream call can take when every attempt
// times out or is throttled with the longest allowed wait.
func (c Config) RetryBudget() time.Duration {
	attempts := max(c.Upstream.MaxRetries, 1)
	return time.Duration(attempts)*c.UpstreamTimeout() + time.Duration(attempts-1)*c.MaxRetryAfter()
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		// Env values arrive as one comma-separated string.
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
