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

package shared

import (
	"context"
	"io"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/tombee/rdstation-connector/internal/config"
	"github.com/tombee/rdstation-connector/internal/credentials"
	"github.com/tombee/rdstation-connector/internal/integration/rdstation"
	"github.com/tombee/rdstation-connector/internal/log"
	"github.com/tombee/rdstation-connector/internal/operation/api"
	"github.com/tombee/rdstation-connector/internal/operation/transport"
	"github.com/tombee/rdstation-connector/internal/telemetry"
)

// LoadConfig loads configuration from --config (or its fallbacks) and applies
// the --verbose and --quiet overrides.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigPath())
	if err != nil {
		return nil, NewConfigError("failed to load configuration", err)
	}
	if level := LogLevelOverride(); level != "" {
		cfg.Log.Level = level
	}
	return cfg, nil
}

// NewLogger builds the command logger writing to w.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	logCfg := cfg.LoggerConfig()
	logCfg.Output = w
	return log.New(logCfg)
}

// NewStore opens the credential backend named in cfg.
func NewStore(cfg *config.Config) (credentials.Store, error) {
	store, err := credentials.NewStore(cfg.Credentials.Backend)
	if err != nil {
		return nil, NewConfigError("failed to open credential store", err)
	}
	return store, nil
}

// NewHTTPTransport builds the HTTP transport with the configured timeout and
// optional rate limit.
func NewHTTPTransport(cfg *config.Config, logger *slog.Logger) (*transport.HTTPTransport, error) {
	httpTransport, err := transport.NewHTTPTransport(&transport.HTTPTransportConfig{
		Timeout: cfg.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, NewConfigError("failed to create HTTP transport", err)
	}
	if rps := cfg.RateLimit.RequestsPerSecond; rps > 0 {
		httpTransport.SetRateLimiter(rate.NewLimiter(rate.Limit(rps), 1))
	}
	return httpTransport, nil
}

// NewProviderConfig wires config, credential store, and transports into the
// provider configuration shared by all integrations.
func NewProviderConfig(cfg *config.Config, store credentials.Store, logger *slog.Logger) (*api.ProviderConfig, error) {
	httpTransport, err := NewHTTPTransport(cfg, logger)
	if err != nil {
		return nil, err
	}

	oauth, err := transport.NewOAuth2Transport(&transport.OAuth2TransportConfig{
		HTTP:   httpTransport,
		Store:  store,
		Logger: logger,
	})
	if err != nil {
		return nil, NewConfigError("failed to create OAuth2 transport", err)
	}

	return &api.ProviderConfig{
		Executor:       oauth,
		BaseURL:        cfg.BaseURL,
		CredentialName: cfg.Credential,
		NodeName:       cfg.NodeName,
		Logger:         logger,
	}, nil
}

// NewIntegration builds the RD Station integration from cfg.
func NewIntegration(cfg *config.Config, store credentials.Store, logger *slog.Logger) (*rdstation.Integration, error) {
	providerConfig, err := NewProviderConfig(cfg, store, logger)
	if err != nil {
		return nil, err
	}

	integration, err := rdstation.NewIntegration(providerConfig)
	if err != nil {
		return nil, NewConfigError("failed to create integration", err)
	}
	return integration, nil
}

// StartTelemetry installs the span exporter and metrics file named in cfg.
// Spans from the stdout exporter go to w. It must run before NewIntegration
// so the integration picks up the installed tracer provider.
func StartTelemetry(ctx context.Context, cfg *config.Config, w io.Writer) (*telemetry.Telemetry, error) {
	tc := cfg.TelemetryConfig()
	tc.ServiceVersion, _, _ = GetVersion()
	tc.Writer = w

	t, err := telemetry.Start(ctx, tc)
	if err != nil {
		return nil, NewConfigError("failed to start telemetry", err)
	}
	return t, nil
}
