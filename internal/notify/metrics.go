package notify

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/dnothi/dnothi/internal/notify"

type metrics struct {
	connections metric.Int64UpDownCounter
	dropped     metric.Int64Counter
	published   metric.Int64Counter
}

func newMetrics() *metrics {
	meter := otel.Meter(meterName)
	fallback := noop.NewMeterProvider().Meter(meterName)

	m := &metrics{}
	var err error
	if m.connections, err = meter.Int64UpDownCounter("dnothi.sse.connections",
		metric.WithDescription("Live SSE notification connections")); err != nil {
		m.connections, _ = fallback.Int64UpDownCounter("dnothi.sse.connections")
	}
	if m.dropped, err = meter.Int64Counter("dnothi.sse.dropped",
		metric.WithDescription("SSE connections dropped after a failed write")); err != nil {
		m.dropped, _ = fallback.Int64Counter("dnothi.sse.dropped")
	}
	if m.published, err = meter.Int64Counter("dnothi.notifications.published",
		metric.WithDescription("Notification events published")); err != nil {
		m.published, _ = fallback.Int64Counter("dnothi.notifications.published")
	}
	return m
}
