// Package config loads and validates the designgen YAML configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL        = "https://openrouter.ai/api/v1"
	DefaultAuthDir        = "~/.designgen"
	DefaultRequestRetry   = 3
	DefaultRetryBackoff   = time.Second
	DefaultRequestTimeout = 120 * time.Second
	DefaultPort           = 8317
	DefaultAppTitle       = "designgen"

	// EnvAPIKey fills api-key when the config leaves it empty.
	EnvAPIKey = "OPENROUTER_API_KEY"
	// EnvBaseURL overrides base-url.
	EnvBaseURL = "DESIGNGEN_BASE_URL"

	maxRequestRetry = 10
)

// Config is the root configuration.
type Config struct {
	// BaseURL is the OpenRouter-compatible API root, without a trailing slash.
	BaseURL string `yaml:"base-url" json:"base-url"`

	// APIKey is the default credential when a call does not supply one.
	APIKey string `yaml:"api-key,omitempty" json:"-"`

	// AuthDir holds stored API keys written by the login command.
	AuthDir string `yaml:"auth-dir" json:"auth-dir"`

	// ProxyURL routes upstream calls through an http, https or socks5 proxy.
	ProxyURL string `yaml:"proxy-url,omitempty" json:"proxy-url,omitempty"`

	RequestTimeout time.Duration `yaml:"request-timeout" json:"request-timeout"`

	// RequestRetry is the total number of attempts per generation call.
	RequestRetry int `yaml:"request-retry" json:"request-retry"`

	// RetryBackoff is the base delay; attempt i waits RetryBackoff * 2^i.
	RetryBackoff time.Duration `yaml:"retry-backoff" json:"retry-backoff"`

	Debug         bool   `yaml:"debug" json:"debug"`
	LoggingToFile bool   `yaml:"logging-to-file" json:"logging-to-file"`
	LogDir        string `yaml:"log-dir,omitempty" json:"log-dir,omitempty"`
	LogMaxSizeMB  int    `yaml:"log-max-size-mb,omitempty" json:"log-max-size-mb,omitempty"`
	LogMaxBackups int    `yaml:"log-max-backups,omitempty" json:"log-max-backups,omitempty"`

	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`

	// AppTitle and AppReferer are sent as X-Title / HTTP-Referer attribution headers.
	AppTitle   string `yaml:"app-title,omitempty" json:"app-title,omitempty"`
	AppReferer string `yaml:"app-referer,omitempty" json:"app-referer,omitempty"`

	DefaultModel string `yaml:"default-model,omitempty" json:"default-model,omitempty"`

	Recovery RecoveryConfig `yaml:"recovery" json:"recovery"`
}

// RecoveryConfig tunes the JSON recovery engine.
type RecoveryConfig struct {
	// Sections are the expected top-level keys used by section-wise reconstruction.
	Sections []string `yaml:"sections,omitempty" json:"sections,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// LoadConfig reads the YAML file at path, applies environment overrides and
// normalizes the result. A missing file is an error.
func LoadConfig(path string) (*Config, error) {
	return LoadConfigOptional(path, false)
}

// LoadConfigOptional behaves like LoadConfig but returns defaults when
// optional is set and the file does not exist.
func LoadConfigOptional(path string, optional bool) (*Config, error) {
	cfg := &Config{}
	if strings.TrimSpace(path) != "" {
		resolved, err := expandUserPath(path)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(resolved)
		switch {
		case err == nil:
			if err = yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", resolved, err)
			}
		case optional && errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	cfg.ApplyEnv()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv fills values from the process environment.
func (cfg *Config) ApplyEnv() {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		cfg.APIKey = strings.TrimSpace(os.Getenv(EnvAPIKey))
	}
	if base := strings.TrimSpace(os.Getenv(EnvBaseURL)); base != "" {
		cfg.BaseURL = base
	}
}

// Normalize trims values and applies defaults.
func (cfg *Config) Normalize() {
	if cfg == nil {
		return
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.AuthDir = strings.TrimSpace(cfg.AuthDir)
	if cfg.AuthDir == "" {
		cfg.AuthDir = DefaultAuthDir
	}
	cfg.ProxyURL = strings.TrimSpace(cfg.ProxyURL)
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.RequestRetry <= 0 {
		cfg.RequestRetry = DefaultRequestRetry
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	cfg.LogDir = strings.TrimSpace(cfg.LogDir)
	if cfg.LogMaxSizeMB <= 0 {
		cfg.LogMaxSizeMB = 10
	}
	if cfg.LogMaxBackups < 0 {
		cfg.LogMaxBackups = 0
	}
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	cfg.AppTitle = strings.TrimSpace(cfg.AppTitle)
	if cfg.AppTitle == "" {
		cfg.AppTitle = DefaultAppTitle
	}
	cfg.AppReferer = strings.TrimSpace(cfg.AppReferer)
	cfg.DefaultModel = strings.TrimSpace(cfg.DefaultModel)
	cfg.Recovery.normalize()
}

func (r *RecoveryConfig) normalize() {
	if r == nil || len(r.Sections) == 0 {
		return
	}
	seen := make(map[string]struct{}, len(r.Sections))
	out := r.Sections[:0]
	for _, name := range r.Sections {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, exists := seen[name]; exists {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	r.Sections = out
}

// Validate reports configuration values that cannot work.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("base-url %q must be an absolute http(s) URL", cfg.BaseURL)
	}
	if cfg.ProxyURL != "" {
		proxyURL, errProxy := url.Parse(cfg.ProxyURL)
		if errProxy != nil || proxyURL.Host == "" {
			return fmt.Errorf("proxy-url %q is invalid", cfg.ProxyURL)
		}
		switch proxyURL.Scheme {
		case "http", "https", "socks5", "socks5h":
		default:
			return fmt.Errorf("proxy-url scheme %q is not supported", proxyURL.Scheme)
		}
	}
	if cfg.RequestRetry > maxRequestRetry {
		return fmt.Errorf("request-retry %d exceeds the maximum of %d", cfg.RequestRetry, maxRequestRetry)
	}
	if cfg.Port > 65535 {
		return fmt.Errorf("port %d is out of range", cfg.Port)
	}
	return nil
}

// ResolvedAuthDir returns AuthDir with a leading '~' expanded.
func (cfg *Config) ResolvedAuthDir() (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("config is nil")
	}
	return expandUserPath(cfg.AuthDir)
}

// ResolvedLogDir returns the directory for rotated log files.
func (cfg *Config) ResolvedLogDir() (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("config is nil")
	}
	if cfg.LogDir != "" {
		return expandUserPath(cfg.LogDir)
	}
	authDir, err := cfg.ResolvedAuthDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(authDir, "logs"), nil
}

// Addr returns the HTTP listen address.
func (cfg *Config) Addr() string {
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}

func expandUserPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if path[0] != '~' {
		return filepath.Clean(path), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	if path == "~" {
		return filepath.Clean(home), nil
	}
	remainder := strings.TrimLeft(path[1:], string(filepath.Separator))
	remainder = strings.TrimLeft(remainder, "/\\")
	if remainder == "" {
		return filepath.Clean(home), nil
	}
	return filepath.Clean(filepath.Join(home, remainder)), nil
}
