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

// Metrics exposes engine-level instruments.
type Metrics struct {
	obligationsCreated metric.Int64Counter
	obligationsRemoved metric.Int64Counter
	commissionsCreated metric.Int64Counter
	orphansDeleted     metric.Int64Counter
	syncItems          metric.Int64Counter
	limiterWait        metric.Float64Histogram
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

// New configures the engine instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "obligo"
	}
	meter := provider.Meter(name)

	obligationsCreated, err := meter.Int64Counter("obligo_obligations_created_total")
	if err != nil {
		return nil, err
	}
	obligationsRemoved, err := meter.Int64Counter("obligo_obligations_cancelled_total")
	if err != nil {
		return nil, err
	}
	commissionsCreated, err := meter.Int64Counter("obligo_commissions_created_total")
	if err != nil {
		return nil, err
	}
	orphansDeleted, err := meter.Int64Counter("obligo_orphans_deleted_total")
	if err != nil {
		return nil, err
	}
	syncItems, err := meter.Int64Counter("obligo_commission_sync_items_total")
	if err != nil {
		return nil, err
	}
	limiterWait, err := meter.Float64Histogram("obligo_rate_limiter_wait_seconds")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		obligationsCreated: obligationsCreated,
		obligationsRemoved: obligationsRemoved,
		commissionsCreated: commissionsCreated,
		orphansDeleted:     orphansDeleted,
		syncItems:          syncItems,
		limiterWait:        limiterWait,
	}, nil
}

// NewNoop returns instruments bound to a no-op provider.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

// RecordObligationsCreated increments created obligation counts by origin.
func (m *Metrics) RecordObligationsCreated(ctx context.Context, originType string, count int) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("origin_type", strings.TrimSpace(originType)))
	m.obligationsCreated.Add(ctx, int64(count), metric.WithAttributes(attrs...))
}

// RecordObligationsCancelled increments cancelled obligation counts by origin.
func (m *Metrics) RecordObligationsCancelled(ctx context.Context, originType string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("origin_type", strings.TrimSpace(originType)))
	m.obligationsRemoved.Add(ctx, count, metric.WithAttributes(attrs...))
}

// RecordCommissionCreated increments commission counts.
func (m *Metrics) RecordCommissionCreated(ctx context.Context, originType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("origin_type", strings.TrimSpace(originType)))
	m.commissionsCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordOrphanDeleted increments orphan delete counts by class.
func (m *Metrics) RecordOrphanDeleted(ctx context.Context, class string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(class)))
	m.orphansDeleted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSyncItem increments synchronizer item counts by outcome.
func (m *Metrics) RecordSyncItem(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.syncItems.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// ObserveLimiterWait records time spent waiting on the sync limiter.
func (m *Metrics) ObserveLimiterWait(ctx context.Context, backend string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("backend", strings.TrimSpace(backend)))
	m.limiterWait.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
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
	"origin_type": {},
	"reason":      {},
	"status":      {},
	"backend":     {},
	"job":         {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
