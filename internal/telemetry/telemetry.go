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

// Package telemetry exports the connector's spans and metrics for a single
// command invocation.
//
// Spans recorded through the otel global tracer are sent to the configured
// exporter. Prometheus metrics from the default registry are written to a
// textfile on Shutdown, in the format read by the node_exporter textfile
// collector.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Exporter names accepted in Config.Exporter.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Config controls where telemetry is sent.
type Config struct {
	// ServiceName and ServiceVersion identify the process in exported spans.
	ServiceName    string
	ServiceVersion string

	// Exporter selects the span exporter: "", "none", "stdout" or "otlp".
	Exporter string

	// Writer receives spans from the stdout exporter (default: os.Stdout).
	Writer io.Writer

	// Endpoint is the OTLP/HTTP collector host:port. Empty uses the
	// exporter's default or OTEL_EXPORTER_OTLP_ENDPOINT.
	Endpoint string

	// Insecure disables TLS for the OTLP exporter.
	Insecure bool

	// MetricsFile is written with the default Prometheus registry on
	// Shutdown. Empty disables it.
	MetricsFile string

	// Gatherer overrides the registry written to MetricsFile.
	Gatherer prometheus.Gatherer
}

// Enabled reports whether cfg exports anything.
func (c Config) Enabled() bool {
	return c.tracing() || c.MetricsFile != ""
}

func (c Config) tracing() bool {
	return c.Exporter != "" && c.Exporter != ExporterNone
}

// Telemetry owns the tracer provider installed by Start.
type Telemetry struct {
	tp          *sdktrace.TracerProvider
	previous    trace.TracerProvider
	metricsFile string
	gatherer    prometheus.Gatherer
}

// Start installs a tracer provider for cfg.Exporter as the otel global
// provider. Callers must call Shutdown to flush spans and write metrics.
func Start(ctx context.Context, cfg Config) (*Telemetry, error) {
	t := &Telemetry{
		metricsFile: cfg.MetricsFile,
		gatherer:    cfg.Gatherer,
	}
	if t.gatherer == nil {
		t.gatherer = prometheus.DefaultGatherer
	}
	if !cfg.tracing() {
		return t, nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// The console exporter writes synchronously so spans interleave with
	// the command's own log lines in order.
	processor := sdktrace.WithBatcher(exporter)
	if cfg.Exporter == ExporterStdout {
		processor = sdktrace.WithSyncer(exporter)
	}
	t.tp = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		processor,
	)
	t.previous = otel.GetTracerProvider()
	otel.SetTracerProvider(t.tp)
	return t, nil
}

// Shutdown flushes pending spans, restores the previous global tracer
// provider and writes the metrics file.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.tp != nil {
		if err := t.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush spans: %w", err))
		}
		otel.SetTracerProvider(t.previous)
		t.tp = nil
	}
	if t.metricsFile != "" {
		if err := prometheus.WriteToTextfile(t.metricsFile, t.gatherer); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics file: %w", err))
		}
	}
	return errors.Join(errs...)
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		return NewConsoleExporter(w)
	case ExporterOTLP:
		return NewOTLPHTTPExporter(ctx, cfg.Endpoint, cfg.Insecure)
	default:
		return nil, fmt.Errorf("unknown trace exporter %q (want %s, %s or %s)", cfg.Exporter, ExporterNone, ExporterStdout, ExporterOTLP)
	}
}
