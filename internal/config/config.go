// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads connector settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tombee/rdstation-connector/internal/credentials"
	"github.com/tombee/rdstation-connector/internal/integration/rdstation"
	"github.com/tombee/rdstation-connector/internal/log"
	"github.com/tombee/rdstation-connector/internal/telemetry"
)

// ErrInvalidConfig is wrapped by every error returned from Validate.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config represents the complete connector configuration.
type Config struct {
	// NodeName names the node in error messages and logs.
	NodeName string `yaml:"node_name"`

	// BaseURL is the RD Station platform API root.
	BaseURL string `yaml:"base_url"`

	// Credential is the name the OAuth2 credential is stored under.
	Credential string `yaml:"credential"`

	// ContinueOnFail records per-item failures instead of stopping the batch.
	ContinueOnFail bool `yaml:"continue_on_fail"`

	// Timeout bounds each HTTP call, including token refreshes.
	Timeout time.Duration `yaml:"timeout"`

	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

// RateLimitConfig throttles outbound requests.
type RateLimitConfig struct {
	// RequestsPerSecond limits dispatch rate. Zero disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// CredentialsConfig selects where OAuth2 credentials are read from.
type CredentialsConfig struct {
	// Backend is "keychain" (default) or "env".
	Backend string `yaml:"backend"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	Level string `yaml:"level"`

	// Format sets the output format (json, text).
	Format string `yaml:"format"`
}

// MetricsConfig controls Prometheus metrics output.
type MetricsConfig struct {
	// File receives the metrics in Prometheus text format when a command
	// finishes. Empty disables it.
	File string `yaml:"file"`
}

// TracingConfig controls span export.
type TracingConfig struct {
	// Exporter is "none" (default), "stdout" or "otlp". The stdout exporter
	// writes to the command's error stream so records on stdout stay parseable.
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP/HTTP collector host:port.
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS for the OTLP exporter.
	Insecure bool `yaml:"insecure"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		NodeName:   rdstation.DefaultNodeName,
		BaseURL:    rdstation.DefaultBaseURL,
		Credential: credentials.RDStationOAuth2.Name,
		Timeout:    30 * time.Second,
		Credentials: CredentialsConfig{
			Backend: credentials.BackendKeychain,
		},
		Log: LogConfig{
			Level:  "info",
			Format: string(log.FormatJSON),
		},
		Tracing: TracingConfig{
			Exporter: telemetry.ExporterNone,
		},
	}
}

// Load loads configuration from an optional YAML file and the environment.
// Environment variables take precedence over file-based configuration.
//
// When configPath is empty, RDSTATION_CONFIG is consulted, then the default
// XDG path. A missing default file is not an error; a missing explicit file is.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		configPath = os.Getenv("RDSTATION_CONFIG")
	}
	explicit := configPath != ""
	if !explicit {
		if path, err := ConfigPath(); err == nil {
			configPath = path
		}
	}

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config: load %s: %w", configPath, err)
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in zero values so minimal files work.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.NodeName == "" {
		c.NodeName = defaults.NodeName
	}
	if c.BaseURL == "" {
		c.BaseURL = defaults.BaseURL
	}
	if c.Credential == "" {
		c.Credential = defaults.Credential
	}
	if c.Timeout == 0 {
		c.Timeout = defaults.Timeout
	}
	if c.Credentials.Backend == "" {
		c.Credentials.Backend = defaults.Credentials.Backend
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = defaults.Tracing.Exporter
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// loadFromEnv loads configuration from environment variables.
// Unparseable values are ignored.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("RDSTATION_BASE_URL"); val != "" {
		c.BaseURL = val
	}
	if val := os.Getenv("RDSTATION_CREDENTIAL"); val != "" {
		c.Credential = val
	}
	if val := os.Getenv("RDSTATION_CONTINUE_ON_FAIL"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			c.ContinueOnFail = b
		}
	}
	if val := os.Getenv("RDSTATION_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Timeout = d
		}
	}
	if val := os.Getenv("RDSTATION_CREDENTIAL_BACKEND"); val != "" {
		c.Credentials.Backend = strings.ToLower(val)
	}
	if val := os.Getenv("RDSTATION_LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	} else if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("RDSTATION_DEBUG"); val == "true" || val == "1" {
		c.Log.Level = "debug"
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("RDSTATION_METRICS_FILE"); val != "" {
		c.Metrics.File = val
	}
	if val := os.Getenv("RDSTATION_TRACING_EXPORTER"); val != "" {
		c.Tracing.Exporter = strings.ToLower(val)
	}
	if val := os.Getenv("RDSTATION_TRACING_ENDPOINT"); val != "" {
		c.Tracing.Endpoint = val
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.NodeName) == "" {
		errs = append(errs, "node_name is required")
	}
	if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("base_url must be an absolute http(s) URL, got %q", c.BaseURL))
	}
	if strings.TrimSpace(c.Credential) == "" {
		errs = append(errs, "credential is required")
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("timeout must be positive, got %v", c.Timeout))
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Sprintf("rate_limit.requests_per_second must not be negative, got %v", c.RateLimit.RequestsPerSecond))
	}

	switch c.Credentials.Backend {
	case credentials.BackendKeychain, credentials.BackendEnv:
	default:
		errs = append(errs, fmt.Sprintf("credentials.backend must be one of [keychain, env], got %q", c.Credentials.Backend))
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	switch c.Tracing.Exporter {
	case telemetry.ExporterNone, telemetry.ExporterStdout, telemetry.ExporterOTLP:
	default:
		errs = append(errs, fmt.Sprintf("tracing.exporter must be one of [none, stdout, otlp], got %q", c.Tracing.Exporter))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

// LoggerConfig returns the logger settings described by c.
func (c *Config) LoggerConfig() *log.Config {
	cfg := log.FromEnv()
	cfg.Level = c.Log.Level
	cfg.Format = log.Format(c.Log.Format)
	return cfg
}

// TelemetryConfig returns the telemetry settings described by c.
func (c *Config) TelemetryConfig() telemetry.Config {
	return telemetry.Config{
		ServiceName: "rdstation",
		Exporter:    c.Tracing.Exporter,
		Endpoint:    c.Tracing.Endpoint,
		Insecure:    c.Tracing.Insecure,
		MetricsFile: c.Metrics.File,
	}
}
