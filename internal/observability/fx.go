package observability

import (
	"go.uber.org/fx"

	"github.com/dylan3796/attribution-mvp/internal/config"
	"github.com/dylan3796/attribution-mvp/internal/observability/metrics"
)

var Module = fx.Module("observability",
	fx.Provide(
		provideMetricsConfig,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
)

func provideMetricsConfig(cfg config.Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.Metrics.Enabled && cfg.Metrics.Exporter == "otlp",
		ExporterEndpoint: cfg.Metrics.Endpoint,
		ExporterProtocol: "grpc",
		ServiceName:      cfg.AppName,
		Environment:      cfg.Environment,
	}
}
