package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	attributionRuns     metric.Int64Counter
	ledgerEntries       metric.Int64Counter
	inferredTouchpoints metric.Int64Counter
	activitiesSkipped   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "attribution"
	}
	meter := provider.Meter(name)

	attributionRuns, err := meter.Int64Counter("attribution_runs_total")
	if err != nil {
		return nil, err
	}
	ledgerEntries, err := meter.Int64Counter("attribution_ledger_entries_total")
	if err != nil {
		return nil, err
	}
	inferredTouchpoints, err := meter.Int64Counter("attribution_inferred_touchpoints_total")
	if err != nil {
		return nil, err
	}
	activitiesSkipped, err := meter.Int64Counter("attribution_activities_skipped_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		attributionRuns:     attributionRuns,
		ledgerEntries:       ledgerEntries,
		inferredTouchpoints: inferredTouchpoints,
		activitiesSkipped:   activitiesSkipped,
	}, nil
}

// RecordRun increments attribution run counts per outcome.
func (m *Metrics) RecordRun(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.attributionRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLedgerEntries increments emitted ledger entry counts.
func (m *Metrics) RecordLedgerEntries(ctx context.Context, modelType string, n int) {
	if m == nil || n == 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("model_type", strings.TrimSpace(modelType)))
	m.ledgerEntries.Add(ctx, int64(n), metric.WithAttributes(attrs...))
}

// RecordInferredTouchpoints increments inferred touchpoint counts.
func (m *Metrics) RecordInferredTouchpoints(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.inferredTouchpoints.Add(ctx, int64(n))
}

// RecordActivitySkipped increments skipped activity counts per reason.
func (m *Metrics) RecordActivitySkipped(ctx context.Context, reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.activitiesSkipped.Add(ctx, int64(n), metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"outcome":     {},
	"model_type":  {},
	"reason":      {},
	"endpoint":    {},
	"status_code": {},
}

// FilterAttributes drops attributes outside the low-cardinality allowlist.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		if _, ok := allowedLabelKeys[a.Key]; !ok {
			continue
		}
		if strings.TrimSpace(a.Value.AsString()) == "" {
			continue
		}
		out = append(out, a)
	}
	return out
}
