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

// Package tracing wires OpenTelemetry tracing and metrics for training
// runs: named profiling scopes become spans, and run/epoch counters are
// exported through the Prometheus exporter.
package tracing

import (
	"context"
	"fmt"
	"io"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Provider wraps the OpenTelemetry SDK pieces the runner needs.
type Provider struct {
	tp        *sdktrace.TracerProvider
	mp        *sdkmetric.MeterProvider
	registry  *promclient.Registry
	collector *Collector
}

// Config controls provider construction.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// SpanWriter, when set, exports spans as JSON to the writer. When nil,
	// spans are recorded but not exported.
	SpanWriter io.Writer
}

// NewProvider creates the tracer and meter providers and registers them as
// the process-wide defaults.
func NewProvider(cfg Config) (*Provider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"", // empty schema URL avoids merge conflicts with the default resource
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.SpanWriter != nil {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(cfg.SpanWriter))
		if err != nil {
			return nil, fmt.Errorf("failed to create span exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(traceOpts...)
	otel.SetTracerProvider(tp)

	// A dedicated registry keeps provider instances independent (the
	// default registerer would reject a second exporter).
	registry := promclient.NewRegistry()
	promExporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExporter),
	)

	collector, err := NewCollector(mp)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics collector: %w", err)
	}

	return &Provider{tp: tp, mp: mp, registry: registry, collector: collector}, nil
}

// Tracer returns a tracer for the given instrumentation name.
func (p *Provider) Tracer(name string) trace.Tracer {
	return p.tp.Tracer(name)
}

// Collector returns the run metrics collector.
func (p *Provider) Collector() *Collector {
	return p.collector
}

// MetricsHandler returns an HTTP handler serving the Prometheus metrics
// endpoint.
func (p *Provider) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.tp.Shutdown(ctx); err != nil {
		return err
	}
	return p.mp.Shutdown(ctx)
}
