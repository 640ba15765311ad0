// Package observability provides OpenTelemetry tracing and metrics for scan
// runs: one span per version pass and policy, counters for certificates
// scanned, qualifying certificates, submitted tickets and skipped units.
// Disabled by default; when disabled every call is a no-op.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // e.g. "localhost:4317" for gRPC
	BatchTimeout   time.Duration
	Enabled        bool
	Insecure       bool
}

// DefaultConfig returns defaults for a local run.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "certscan",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		BatchTimeout:   5 * time.Second,
		Enabled:        false,
	}
}

// Provider manages tracer and meter providers plus the scan instruments.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	certsScanned     metric.Int64Counter
	certsQualifying  metric.Int64Counter
	ticketsSubmitted metric.Int64Counter
	unitsSkipped     metric.Int64Counter
}

// New creates an observability provider. With Enabled false the provider is
// fully functional but records nothing.
func New(ctx context.Context, config *Config, logger *slog.Logger) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{config: config, logger: logger}

	if !config.Enabled {
		p.tracer = tracenoop.NewTracerProvider().Tracer(config.ServiceName)
		p.meter = metricnoop.NewMeterProvider().Meter(config.ServiceName)
		return p, p.initInstruments()
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
		semconv.DeploymentEnvironment(config.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(config.OTLPEndpoint)}
	if config.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	traceExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("observability: trace exporter: %w", err)
	}
	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter, sdktrace.WithBatchTimeout(config.BatchTimeout)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	p.tracer = p.tracerProvider.Tracer(config.ServiceName)

	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("observability: metric exporter: %w", err)
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(p.meterProvider)
	p.meter = p.meterProvider.Meter(config.ServiceName)

	return p, p.initInstruments()
}

func (p *Provider) initInstruments() error {
	var err error
	if p.certsScanned, err = p.meter.Int64Counter("certscan.certificates.scanned",
		metric.WithDescription("Certificates decoded from manifests")); err != nil {
		return err
	}
	if p.certsQualifying, err = p.meter.Int64Counter("certscan.certificates.qualifying",
		metric.WithDescription("Certificates inside the expiry reporting window")); err != nil {
		return err
	}
	if p.ticketsSubmitted, err = p.meter.Int64Counter("certscan.tickets.submitted",
		metric.WithDescription("Ticket batches submitted")); err != nil {
		return err
	}
	if p.unitsSkipped, err = p.meter.Int64Counter("certscan.units.skipped",
		metric.WithDescription("Environments or policies skipped due to errors")); err != nil {
		return err
	}
	return nil
}

// StartSpan starts a span; call sites never need to check Enabled.
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// CertsScanned adds to the decoded-certificate counter.
func (p *Provider) CertsScanned(ctx context.Context, n int64) {
	p.certsScanned.Add(ctx, n)
}

// CertsQualifying adds to the qualifying-certificate counter.
func (p *Provider) CertsQualifying(ctx context.Context, n int64) {
	p.certsQualifying.Add(ctx, n)
}

// TicketSubmitted counts one submitted batch.
func (p *Provider) TicketSubmitted(ctx context.Context) {
	p.ticketsSubmitted.Add(ctx, 1)
}

// UnitSkipped counts a skipped environment or policy with the failure stage.
func (p *Provider) UnitSkipped(ctx context.Context, stage string) {
	p.unitsSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("observability: shutdown: %v", errs)
	}
	return nil
}
