package websocket

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "filterfinder.websocket"

// OTelMetrics records progress stream activity
type OTelMetrics struct {
	connectionsTotal   metric.Int64Counter
	connectionsActive  metric.Int64UpDownCounter
	connectionDuration metric.Float64Histogram
	messagesSent       metric.Int64Counter
	messageBytes       metric.Int64Counter
	droppedMessages    metric.Int64Counter
	broadcasts         metric.Int64Counter
}

// NewOTelMetrics creates the instruments on meter, or on the global meter
// provider when meter is nil.
func NewOTelMetrics(meter metric.Meter) (*OTelMetrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	var errs []error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}

	connectionsActive, err := meter.Int64UpDownCounter("websocket_connections_active",
		metric.WithDescription("Number of active WebSocket connections"))
	errs = append(errs, err)

	connectionDuration, err := meter.Float64Histogram("websocket_connection_duration_seconds",
		metric.WithDescription("WebSocket connection lifetime"),
		metric.WithUnit("s"))
	errs = append(errs, err)

	m := &OTelMetrics{
		connectionsTotal:   counter("websocket_connections_total", "Total number of WebSocket connections"),
		connectionsActive:  connectionsActive,
		connectionDuration: connectionDuration,
		messagesSent:       counter("websocket_messages_sent_total", "Total number of messages queued to clients"),
		messageBytes:       counter("websocket_message_bytes_total", "Total bytes queued to clients"),
		droppedMessages:    counter("websocket_dropped_messages_total", "Messages dropped because a buffer was full"),
		broadcasts:         counter("websocket_broadcasts_total", "Total number of broadcast operations"),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordConnection records a registered client
func (m *OTelMetrics) RecordConnection(ctx context.Context) {
	if m == nil {
		return
	}
	m.connectionsTotal.Add(ctx, 1)
	m.connectionsActive.Add(ctx, 1)
}

// RecordDisconnection records an unregistered client
func (m *OTelMetrics) RecordDisconnection(ctx context.Context, duration time.Duration, reason string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("disconnect_reason", reason))
	m.connectionsActive.Add(ctx, -1, attrs)
	m.connectionDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordBroadcast records one fan-out of a message of the given type
func (m *OTelMetrics) RecordBroadcast(ctx context.Context, messageType string, delivered, dropped int, size int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("message_type", messageType))
	m.broadcasts.Add(ctx, 1, attrs)
	m.messagesSent.Add(ctx, int64(delivered), attrs)
	m.messageBytes.Add(ctx, int64(delivered*size), attrs)
	if dropped > 0 {
		m.droppedMessages.Add(ctx, int64(dropped), metric.WithAttributes(
			attribute.String("message_type", messageType),
			attribute.String("reason", "client_buffer_full"),
		))
	}
}

// RecordDropped records a message dropped before fan-out
func (m *OTelMetrics) RecordDropped(ctx context.Context, messageType string) {
	if m == nil {
		return
	}
	m.droppedMessages.Add(ctx, 1, metric.WithAttributes(
		attribute.String("message_type", messageType),
		attribute.String("reason", "hub_queue_full"),
	))
}
