package server

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	dropReasonNotOpen    = "not_open"
	dropReasonBufferFull = "buffer_full"
)

// Metrics holds the relay instruments.
type Metrics struct {
	metric.Meter

	Connections       metric.Int64UpDownCounter
	MessagesReceived  metric.Int64Counter
	BytesReceived     metric.Int64Counter
	Deliveries        metric.Int64Counter
	DroppedDeliveries metric.Int64Counter
}

// NewMetrics registers the relay instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	connections, err := meter.Int64UpDownCounter("relay_connections")
	if err != nil {
		return nil, err
	}

	messagesReceived, err := meter.Int64Counter("relay_messages_received_total")
	if err != nil {
		return nil, err
	}

	bytesReceived, err := meter.Int64Counter("relay_bytes_received_total")
	if err != nil {
		return nil, err
	}

	deliveries, err := meter.Int64Counter("relay_deliveries_total")
	if err != nil {
		return nil, err
	}

	dropped, err := meter.Int64Counter("relay_deliveries_dropped_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		Meter:             meter,
		Connections:       connections,
		MessagesReceived:  messagesReceived,
		BytesReceived:     bytesReceived,
		Deliveries:        deliveries,
		DroppedDeliveries: dropped,
	}, nil
}

func (m *Metrics) connectionOpened() {
	m.Connections.Add(context.Background(), 1)
}

func (m *Metrics) connectionClosed() {
	m.Connections.Add(context.Background(), -1)
}

func (m *Metrics) messageReceived(size int) {
	ctx := context.Background()
	m.MessagesReceived.Add(ctx, 1)
	m.BytesReceived.Add(ctx, int64(size))
}

func (m *Metrics) delivered(n int) {
	if n > 0 {
		m.Deliveries.Add(context.Background(), int64(n))
	}
}

func (m *Metrics) dropped(reason string) {
	m.DroppedDeliveries.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}
