package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"hackcbs/vectorgate/internal/config"
	"hackcbs/vectorgate/internal/orchestrator"
)

// Version is reported as the OTEL service.version attribute.
const Version = "0.1.0"

// bootstrapDurationBuckets covers a warm start against an existing index up
// to a cold serverless create that waits out the full bootstrap timeout.
var bootstrapDurationBuckets = []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

// Provider owns the trace and meter providers installed as OTEL globals.
type Provider struct {
	tracer *sdktrace.TracerProvider
	meter  *sdkmetric.MeterProvider
	conn   *grpc.ClientConn
}

// InitProvider exports traces and metrics over OTLP/gRPC to
// cfg.OTLPEndpoint and installs the providers as OTEL globals. Dial is
// non-blocking, so an unreachable collector does not prevent startup.
func InitProvider(ctx context.Context, cfg config.TelemetryConfig) (*Provider, error) {
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("building OTEL resource: %w", err)
	}

	var dialOpts []grpc.DialOption
	if cfg.OTLPInsecure {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.NewClient(cfg.OTLPEndpoint, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating gRPC client for %s: %w", cfg.OTLPEndpoint, err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		conn.Close() //nolint:errcheck
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	metricExporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		traceExporter.Shutdown(ctx) //nolint:errcheck
		conn.Close()                //nolint:errcheck
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.MetricInterval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.MetricInterval))
	}

	p := newProvider(res, cfg.SampleRatio,
		sdktrace.WithBatcher(traceExporter),
		sdkmetric.NewPeriodicReader(metricExporter, readerOpts...),
	)
	p.conn = conn
	p.install()

	slog.InfoContext(ctx, "OTEL telemetry enabled",
		"endpoint", cfg.OTLPEndpoint,
		"sample_ratio", cfg.SampleRatio,
	)
	return p, nil
}

func newResource(ctx context.Context, cfg config.TelemetryConfig) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(Version),
			semconv.ServiceNamespace("hackcbs"),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
}

// newProvider builds the trace and meter providers without touching globals.
// Root spans are sampled at sampleRatio; child spans follow their parent.
func newProvider(res *resource.Resource, sampleRatio float64, spans sdktrace.TracerProviderOption, reader sdkmetric.Reader) *Provider {
	return &Provider{
		tracer: sdktrace.NewTracerProvider(
			spans,
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio))),
		),
		meter: sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(reader),
			sdkmetric.WithResource(res),
			sdkmetric.WithView(bootstrapViews()...),
		),
	}
}

// bootstrapViews shapes the orchestrator's instruments: duration buckets
// sized for index provisioning, and run counts keyed by status only.
func bootstrapViews() []sdkmetric.View {
	return []sdkmetric.View{
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: orchestrator.MetricBootstrapDuration},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
				Boundaries: bootstrapDurationBuckets,
			}},
		),
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: orchestrator.MetricBootstrapRuns},
			sdkmetric.Stream{AttributeFilter: attribute.NewAllowKeysFilter("status")},
		),
	}
}

func (p *Provider) install() {
	otel.SetTracerProvider(p.tracer)
	otel.SetMeterProvider(p.meter)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		slog.Warn("otel export error (will retry)", "err", err)
	}))
}

// Shutdown flushes pending spans and metrics and closes the collector
// connection. Export failures against an unreachable collector are dropped.
func (p *Provider) Shutdown(ctx context.Context) error {
	p.meter.Shutdown(ctx)  //nolint:errcheck
	p.tracer.Shutdown(ctx) //nolint:errcheck
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
