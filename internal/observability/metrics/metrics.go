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

// Metrics exposes invoice lifecycle instruments.
type Metrics struct {
	invoicesCreated metric.Int64Counter
	invoicesPaid    metric.Int64Counter
	remindersSent   metric.Int64Counter
	overdueDigests  metric.Int64Counter
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
		name = "uptiomio"
	}
	meter := provider.Meter(name)

	invoicesCreated, err := meter.Int64Counter("uptiomio_invoices_created_total")
	if err != nil {
		return nil, err
	}
	invoicesPaid, err := meter.Int64Counter("uptiomio_invoices_paid_total")
	if err != nil {
		return nil, err
	}
	remindersSent, err := meter.Int64Counter("uptiomio_reminders_sent_total")
	if err != nil {
		return nil, err
	}
	overdueDigests, err := meter.Int64Counter("uptiomio_overdue_digests_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		invoicesCreated: invoicesCreated,
		invoicesPaid:    invoicesPaid,
		remindersSent:   remindersSent,
		overdueDigests:  overdueDigests,
	}, nil
}

func (m *Metrics) RecordInvoiceCreated(ctx context.Context, currency string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("currency", strings.ToUpper(strings.TrimSpace(currency))))
	m.invoicesCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordInvoicePaid(ctx context.Context, paymentMethod string) {
	if m == nil {
		return
	}
	if paymentMethod == "" {
		paymentMethod = "none"
	}
	attrs := FilterAttributes(attribute.String("payment_method", paymentMethod))
	m.invoicesPaid.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReminderSent counts reminder attempts; trigger is "schedule" or "manual".
func (m *Metrics) RecordReminderSent(ctx context.Context, trigger, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("trigger", trigger),
		attribute.String("outcome", outcome),
	)
	m.remindersSent.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordOverdueDigest(ctx context.Context, trigger, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("trigger", trigger),
		attribute.String("outcome", outcome),
	)
	m.overdueDigests.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"currency":       {},
	"payment_method": {},
	"trigger":        {},
	"outcome":        {},
	"endpoint":       {},
	"status_code":    {},
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
