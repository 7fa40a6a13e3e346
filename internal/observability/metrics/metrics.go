package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/crmsync/internal/reconciliation/domain"
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

// Metrics exposes OTel instruments for reconciliation runs.
type Metrics struct {
	recordsProcessed metric.Int64Counter
	runs             metric.Int64Counter
	runDuration      metric.Float64Histogram
	walletConflicts  metric.Int64Counter
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

// New configures the reconciliation instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "crmsync"
	}
	meter := provider.Meter(name)

	recordsProcessed, err := meter.Int64Counter("crmsync_records_processed_total")
	if err != nil {
		return nil, err
	}
	runs, err := meter.Int64Counter("crmsync_sync_runs_total")
	if err != nil {
		return nil, err
	}
	runDuration, err := meter.Float64Histogram("crmsync_sync_run_duration_seconds", metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	walletConflicts, err := meter.Int64Counter("crmsync_wallet_conflicts_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		recordsProcessed: recordsProcessed,
		runs:             runs,
		runDuration:      runDuration,
		walletConflicts:  walletConflicts,
	}, nil
}

// RecordProcessed counts one reconciled record by outcome and match strategy.
func (m *Metrics) RecordProcessed(ctx context.Context, kind domain.RunKind, outcome domain.RecordOutcome, strategy domain.MatchStrategy) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("outcome", string(outcome)),
		attribute.String("strategy", string(strategy)),
	)
	m.recordsProcessed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RunFinished records run totals once a run completes.
func (m *Metrics) RunFinished(ctx context.Context, result domain.SyncRunResult) {
	if m == nil {
		return
	}
	status := "ok"
	if result.Truncated {
		status = "truncated"
	}
	attrs := metric.WithAttributes(FilterAttributes(
		attribute.String("kind", string(result.Kind)),
		attribute.String("status", status),
	)...)
	m.runs.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, result.Duration().Seconds(), attrs)
	if result.WalletConflicts > 0 {
		m.walletConflicts.Add(ctx, int64(result.WalletConflicts))
	}
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
	"kind":        {},
	"outcome":     {},
	"strategy":    {},
	"status":      {},
	"job":         {},
	"reason":      {},
	"endpoint":    {},
	"status_code": {},
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
