// Package config provides configuration management for the RUNNERS client SDK.
// It handles loading and parsing YAML configuration files, and provides structured
// access to application settings including the backend base URL, session storage
// directory, proxy configuration, timeouts and logging behavior.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultBaseURL is the production RUNNERS backend endpoint.
	DefaultBaseURL = "https://api.runners.social"

	// DefaultPageSize is the page size used by cursor-paginated list calls
	// when the caller does not request a specific size.
	DefaultPageSize = 20

	defaultRequestTimeoutSeconds = 30
	defaultConnectTimeoutSeconds = 10
)

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// BaseURL is the RUNNERS backend base URL all API paths are resolved against.
	BaseURL string `yaml:"base-url" json:"base-url"`

	// SessionDir is the directory holding the encrypted session blobs
	// (cookies, tokens and the machine secret). Defaults to ~/.runners.
	SessionDir string `yaml:"session-dir" json:"session-dir"`

	// ProxyURL is the URL of an optional proxy server to use for outbound requests.
	ProxyURL string `yaml:"proxy-url" json:"proxy-url"`

	// RequestTimeoutSeconds bounds a whole HTTP call including the body read.
	// <= 0 selects the default of 30 seconds.
	RequestTimeoutSeconds int `yaml:"request-timeout,omitempty" json:"request-timeout,omitempty"`

	// ConnectTimeoutSeconds bounds connection establishment.
	// <= 0 selects the default of 10 seconds.
	ConnectTimeoutSeconds int `yaml:"connect-timeout,omitempty" json:"connect-timeout,omitempty"`

	// PageSize is the default page size for cursor-paginated list endpoints.
	PageSize int `yaml:"page-size,omitempty" json:"page-size,omitempty"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug" json:"debug"`

	// RequestLog enables per-request logging of method, path and status.
	RequestLog bool `yaml:"request-log" json:"request-log"`

	// LogFile, when set, routes log output to a size-rotated file instead of stderr.
	LogFile string `yaml:"log-file,omitempty" json:"log-file,omitempty"`

	// OAuthCallbackPort is the localhost port used by the Google sign-in
	// callback listener. 0 selects an ephemeral port.
	OAuthCallbackPort int `yaml:"oauth-callback-port,omitempty" json:"oauth-callback-port,omitempty"`

	// GoogleClientID identifies this client to Google's OAuth endpoints during
	// the CLI sign-in flow.
	GoogleClientID string `yaml:"google-client-id,omitempty" json:"google-client-id,omitempty"`
}

// Default returns a configuration populated with usable defaults and no file input.
func Default() *Config {
	cfg := &Config{BaseURL: DefaultBaseURL}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads the YAML file at configFile and returns the parsed configuration.
// A missing file is not an error; defaults are returned instead so a fresh
// install works without any local setup.
func LoadConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: read %s failed: %w", configFile, err)
	}

	cfg := &Config{}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s failed: %w", configFile, err)
	}
	cfg.applyDefaults()

	if _, err = url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("config: invalid base-url %q: %w", cfg.BaseURL, err)
	}
	return cfg, nil
}

// RequestTimeout returns the configured total request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// ConnectTimeout returns the configured connection timeout as a duration.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if strings.TrimSpace(c.SessionDir) == "" {
		c.SessionDir = defaultSessionDir()
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
	if c.ConnectTimeoutSeconds <= 0 {
		c.ConnectTimeoutSeconds = defaultConnectTimeoutSeconds
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
}

func defaultSessionDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".runners"
	}
	return filepath.Join(home, ".runners")
}
