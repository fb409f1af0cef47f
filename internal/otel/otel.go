// Package otel provides OpenTelemetry initialization for pane-driver.
//
// A run exports a "run" span, one "dispatch" span per tick that invoked
// processors, and loop/session counters to an OTLP endpoint (config file or
// OTEL_EXPORTER_OTLP_ENDPOINT). Without an endpoint, telemetry is a no-op.
package otel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName is the tracer, meter and resource name.
const ServiceName = "pane-driver"

// Version is reported as service.version. cmd sets it from its build version.
var Version = "dev"

// exportInterval is how often counters are pushed to the collector.
const exportInterval = 15 * time.Second

// Config selects the OTLP collector. An empty Endpoint disables export.
type Config struct {
	Endpoint string // OTLP/HTTP base URL, e.g. "http://localhost:4318"
	Headers  string // OTEL_EXPORTER_OTLP_HEADERS format: "k=v,k2=v2"
}

// Telemetry is what a run reports through. Tracer and Metrics are always
// usable; they only export when Init was given an endpoint.
type Telemetry struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider

	Tracer  trace.Tracer
	Metrics *Metrics
}

// collector is a parsed OTLP/HTTP endpoint.
type collector struct {
	host     string // host:port
	basePath string
	insecure bool
	headers  map[string]string
}

func parseCollector(cfg Config) (collector, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return collector{}, fmt.Errorf("otel: invalid endpoint URL %q: %w", cfg.Endpoint, err)
	}
	if u.Host == "" {
		return collector{}, fmt.Errorf("otel: endpoint %q has no host", cfg.Endpoint)
	}
	return collector{
		host:     u.Host,
		basePath: strings.TrimRight(u.Path, "/"),
		insecure: u.Scheme == "http",
		headers:  parseHeaders(cfg.Headers),
	}, nil
}

// The SDK does not append signal suffixes when a URL path is set, so each
// signal gets its own /v1/<signal> path under the base.
func (c collector) traceOptions() []otlptracehttp.Option {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(c.host),
		otlptracehttp.WithURLPath(c.basePath + "/v1/traces"),
	}
	if c.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(c.headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(c.headers))
	}
	return opts
}

func (c collector) metricOptions() []otlpmetrichttp.Option {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(c.host),
		otlpmetrichttp.WithURLPath(c.basePath + "/v1/metrics"),
	}
	if c.insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(c.headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(c.headers))
	}
	return opts
}

// parseHeaders parses a comma-separated "key=value,key2=value2" string.
// Pairs without a key are skipped.
func parseHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, val, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		headers[key] = strings.TrimSpace(val)
	}
	return headers
}

// Init returns the telemetry for one run. With an endpoint it installs
// exporting providers globally; without one the tracer and meters come from
// the global no-op providers.
func Init(ctx context.Context, cfg Config) (*Telemetry, error) {
	t := &Telemetry{}
	var meter metric.Meter

	if cfg.Endpoint == "" {
		t.Tracer = otel.Tracer(ServiceName)
		meter = otel.Meter(ServiceName)
	} else {
		c, err := parseCollector(cfg)
		if err != nil {
			return nil, err
		}
		if err := t.startProviders(ctx, c); err != nil {
			return nil, err
		}
		otel.SetTracerProvider(t.tp)
		otel.SetMeterProvider(t.mp)
		t.Tracer = t.tp.Tracer(ServiceName)
		meter = t.mp.Meter(ServiceName)
	}

	metrics, err := NewMetrics(meter)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("otel metrics: %w", err), t.Shutdown(ctx))
	}
	t.Metrics = metrics
	return t, nil
}

func (t *Telemetry) startProviders(ctx context.Context, c collector) error {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(Version),
		),
		resource.WithHost(),
	)
	if err != nil {
		return fmt.Errorf("otel resource: %w", err)
	}

	traceExp, err := otlptracehttp.New(ctx, c.traceOptions()...)
	if err != nil {
		return fmt.Errorf("otel trace exporter: %w", err)
	}
	metricExp, err := otlpmetrichttp.New(ctx, c.metricOptions()...)
	if err != nil {
		return errors.Join(fmt.Errorf("otel metric exporter: %w", err), traceExp.Shutdown(ctx))
	}

	t.tp = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	t.mp = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(exportInterval))),
		sdkmetric.WithResource(res),
	)
	return nil
}

// Shutdown flushes pending spans and counters and stops the providers. It
// reports export failures so a lost final flush is not silent.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.tp != nil {
		if err := t.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider: %w", err))
		}
	}
	if t.mp != nil {
		if err := t.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}
