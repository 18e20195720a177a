// Package config provides configuration types and loading for the
// accountgate demo service. The SDK itself is configured with functional
// options; this package exists for the runnable service in cmd/, which
// loads a YAML file with environment overrides.
package config

import (
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the demo service.
type Config struct {
	// Server configures the protected HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Backend configures the account backend transports.
	Backend BackendConfig `yaml:"backend" mapstructure:"backend"`

	// Auth configures the validation pipeline.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// DevMode enables verbose logging and stdout telemetry exporters.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	// ListenAddr is the address of the protected API listener.
	// Default: ":8080".
	ListenAddr string `yaml:"listen_addr" mapstructure:"listen_addr" validate:"required"`
	// MetricsAddr is the address of the Prometheus metrics listener.
	// Empty disables the metrics listener.
	MetricsAddr string `yaml:"metrics_addr" mapstructure:"metrics_addr"`
}

// BackendConfig configures the account backend transports.
type BackendConfig struct {
	// HTTPBaseURL is the base URL of the backend's internal HTTP API.
	HTTPBaseURL string `yaml:"http_base_url" mapstructure:"http_base_url" validate:"required,url"`
	// SocketURL is the backend's realtime socket endpoint (ws:// or
	// wss://). Empty disables the socket transport.
	SocketURL string `yaml:"socket_url" mapstructure:"socket_url" validate:"omitempty,uri"`
	// Transport is the preferred transport: "http" or "socket".
	Transport string `yaml:"transport" mapstructure:"transport" validate:"oneof=http socket"`
	// ServiceKey is the internal service credential sent on backend calls.
	ServiceKey string `yaml:"service_key" mapstructure:"service_key"`
	// Timeout is the per-call timeout (e.g. "5s").
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// AuthConfig configures the validation pipeline.
type AuthConfig struct {
	// AccountParam is the request parameter holding the account id.
	// Default: "accountId".
	AccountParam string `yaml:"account_param" mapstructure:"account_param"`
	// SessionCookie is the browser session cookie name.
	// Default: "account_session".
	SessionCookie string `yaml:"session_cookie" mapstructure:"session_cookie"`
	// RefreshRedirectBase is the base URL of the external token-refresh
	// flow. Empty disables refresh redirects (structured 401 instead).
	RefreshRedirectBase string `yaml:"refresh_redirect_base" mapstructure:"refresh_redirect_base" validate:"omitempty,url"`
	// PermissionExpr is an optional CEL predicate over the loaded account
	// applied after authentication, e.g.
	// `account.status == "active" && account.email_verified`.
	PermissionExpr string `yaml:"permission_expr" mapstructure:"permission_expr"`
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:  ":8080",
			MetricsAddr: ":9090",
		},
		Backend: BackendConfig{
			Transport: "http",
			Timeout:   5 * time.Second,
		},
		Auth: AuthConfig{
			AccountParam:  "accountId",
			SessionCookie: "account_session",
		},
	}
}

// Load unmarshals the viper state into a Config on top of the defaults and
// validates it.
func Load() (*Config, error) {
	cfg := Default()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Dump renders the effective configuration as YAML.
func (c *Config) Dump() ([]byte, error) {
	return yaml.Marshal(c)
}
