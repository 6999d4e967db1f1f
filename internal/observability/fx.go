package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/insightsync/internal/observability/logger"
	"github.com/smallbiznis/insightsync/internal/observability/metrics"
	"github.com/smallbiznis/insightsync/internal/observability/tracing"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		provideLoggerConfig,
		logger.New,
		provideMetricsConfig,
		metrics.NewProvider,
		metrics.New,
		provideSyncMetrics,
		providePusher,
		provideTracingConfig,
		tracing.NewTracerProvider,
	),
	fx.Invoke(ensureProviders),
)

func ensureProviders(_ metric.MeterProvider, _ trace.TracerProvider) {}

func provideTracingConfig(cfg Config) tracing.Config {
	return tracing.Config{
		Enabled:          cfg.OtelEnabled,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		ServiceName:      cfg.ServiceName,
		Version:          cfg.Version,
		Environment:      cfg.Environment,
	}
}

func provideLoggerConfig(cfg Config) logger.Config {
	return logger.Config{
		ServiceName:         cfg.ServiceName,
		Environment:         cfg.Environment,
		Version:             cfg.Version,
		Level:               cfg.LogLevel,
		Format:              cfg.LogFormat,
		Debug:               cfg.Debug(),
		IncludeCaller:       true,
		IncludeStackOnError: cfg.Debug(),
	}
}

func provideMetricsConfig(cfg Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.OtelEnabled,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		ServiceName:      cfg.ServiceName,
		Environment:      cfg.Environment,
		PushgatewayURL:   cfg.PushgatewayURL,
	}
}

func provideSyncMetrics(cfg metrics.Config) *metrics.SyncMetrics {
	return metrics.NewSyncMetrics(prometheus.DefaultRegisterer, cfg)
}

func providePusher(cfg metrics.Config) *metrics.Pusher {
	return metrics.NewPusher(cfg, prometheus.DefaultGatherer)
}
