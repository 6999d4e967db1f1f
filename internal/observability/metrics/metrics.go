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
	PushgatewayURL   string
}

// Metrics exposes OTLP-exported dataset instruments.
type Metrics struct {
	recordsMerged      metric.Int64Counter
	recordsPruned      metric.Int64Counter
	demographicsWrites metric.Int64Counter
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

// New configures the dataset instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "insightsync"
	}
	meter := provider.Meter(name)

	recordsMerged, err := meter.Int64Counter("insightsync_records_merged_total")
	if err != nil {
		return nil, err
	}
	recordsPruned, err := meter.Int64Counter("insightsync_records_pruned_total")
	if err != nil {
		return nil, err
	}
	demographicsWrites, err := meter.Int64Counter("insightsync_demographics_writes_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		recordsMerged:      recordsMerged,
		recordsPruned:      recordsPruned,
		demographicsWrites: demographicsWrites,
	}, nil
}

// RecordMerge adds merge statistics for one refresh run.
func (m *Metrics) RecordMerge(ctx context.Context, mode string, merged, pruned int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("mode", strings.TrimSpace(mode)))
	m.recordsMerged.Add(ctx, int64(merged), attrs)
	m.recordsPruned.Add(ctx, int64(pruned), attrs)
}

// RecordDemographicsWrite counts one persisted demographics period.
func (m *Metrics) RecordDemographicsWrite(ctx context.Context, periodDays int) {
	if m == nil {
		return
	}
	m.demographicsWrites.Add(ctx, 1, metric.WithAttributes(attribute.Int("period_days", periodDays)))
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
