package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type Metrics struct {
	SessionRequests  metric.Int64Counter
	RequestDuration  metric.Float64Histogram
	InflightRequests metric.Int64UpDownCounter
	PendingApprovals metric.Int64UpDownCounter
	RelayFailures    metric.Int64Counter
	HTTPRequests     metric.Int64Counter
	HTTPDuration     metric.Float64Histogram
}

func Setup(serviceName string) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	m := &Metrics{}

	m.SessionRequests, err = meter.Int64Counter(
		"wc_session_requests_total",
		metric.WithDescription("Session requests handled, labeled by terminal outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RequestDuration, err = meter.Float64Histogram(
		"wc_session_request_duration_seconds",
		metric.WithDescription("End-to-end session request handling duration in seconds"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.InflightRequests, err = meter.Int64UpDownCounter(
		"wc_inflight_session_requests",
		metric.WithDescription("Session requests currently being handled"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PendingApprovals, err = meter.Int64UpDownCounter(
		"wc_pending_approvals",
		metric.WithDescription("Requests currently waiting for a user decision"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RelayFailures, err = meter.Int64Counter(
		"wc_relay_failures_total",
		metric.WithDescription("Responses that could not be delivered to the relay"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequests, err = meter.Int64Counter(
		"wc_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPDuration, err = meter.Float64Histogram(
		"wc_http_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, nil, err
	}

	handler := promhttp.Handler()
	return m, handler, nil
}

func (m *Metrics) RecordSessionRequest(ctx context.Context, network, outcome string, duration time.Duration) {
	labels := metric.WithAttributes(
		attribute.String("network", network),
		attribute.String("outcome", outcome),
	)

	m.SessionRequests.Add(ctx, 1, labels)
	m.RequestDuration.Record(ctx, duration.Seconds(), labels)
}

func (m *Metrics) RecordRelayFailure(ctx context.Context, network string) {
	m.RelayFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("network", network)))
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	labels := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	)

	m.HTTPRequests.Add(ctx, 1, labels)
	m.HTTPDuration.Record(ctx, duration.Seconds(), labels)
}

func (m *Metrics) IncrementInflight(ctx context.Context) {
	m.InflightRequests.Add(ctx, 1)
}

func (m *Metrics) DecrementInflight(ctx context.Context) {
	m.InflightRequests.Add(ctx, -1)
}

func (m *Metrics) IncrementPendingApprovals(ctx context.Context) {
	m.PendingApprovals.Add(ctx, 1)
}

func (m *Metrics) DecrementPendingApprovals(ctx context.Context) {
	m.PendingApprovals.Add(ctx, -1)
}
