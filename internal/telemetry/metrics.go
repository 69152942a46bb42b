package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the session counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	connections       metric.Int64Counter
	qrIssued          metric.Int64Counter
	disconnects       metric.Int64Counter
	restartsScheduled metric.Int64Counter
	restartsAbandoned metric.Int64Counter
	persistFailures   metric.Int64Counter
}

// NewMetrics registers the counters on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var err error
	if m.connections, err = meter.Int64Counter("whatsapp.session.connections",
		metric.WithDescription("Connections that reached CONNECTED")); err != nil {
		return nil, err
	}
	if m.qrIssued, err = meter.Int64Counter("whatsapp.session.qr_issued",
		metric.WithDescription("Pairing codes issued")); err != nil {
		return nil, err
	}
	if m.disconnects, err = meter.Int64Counter("whatsapp.session.disconnects",
		metric.WithDescription("Connection closes by classification")); err != nil {
		return nil, err
	}
	if m.restartsScheduled, err = meter.Int64Counter("whatsapp.session.restarts_scheduled"); err != nil {
		return nil, err
	}
	if m.restartsAbandoned, err = meter.Int64Counter("whatsapp.session.restarts_abandoned"); err != nil {
		return nil, err
	}
	if m.persistFailures, err = meter.Int64Counter("whatsapp.auth.persist_failures",
		metric.WithDescription("Failed auth state writes")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metrics) Connected(ctx context.Context) {
	if m == nil {
		return
	}
	m.connections.Add(ctx, 1)
}

func (m *Metrics) QRIssued(ctx context.Context) {
	if m == nil {
		return
	}
	m.qrIssued.Add(ctx, 1)
}

// Disconnected counts a close of the given classification kind.
func (m *Metrics) Disconnected(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.disconnects.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RestartScheduled(ctx context.Context) {
	if m == nil {
		return
	}
	m.restartsScheduled.Add(ctx, 1)
}

func (m *Metrics) RestartAbandoned(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.restartsAbandoned.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) PersistFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.persistFailures.Add(ctx, 1)
}
