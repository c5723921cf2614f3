// Package events publishes platform events: registry lifecycle changes and
// health alerts. Sinks are interface-driven so tests can capture events
// in-process while production publishes to Kafka.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Type identifies an event class.
type Type string

const (
	TypeServiceRegistered   Type = "service.registered"
	TypeServiceUpdated      Type = "service.updated"
	TypeServiceDeregistered Type = "service.deregistered"
	TypeServiceUnhealthy    Type = "service.unhealthy"
)

// Event is the payload delivered to the alerting/audit collaborators.
type Event struct {
	ID        string            `json:"id"`
	Type      Type              `json:"type"`
	Service   string            `json:"service"`
	Timestamp time.Time         `json:"timestamp"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// Sink delivers events somewhere durable.
type Sink interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Publisher stamps and forwards events. Delivery is best-effort: a failing
// sink is logged, never surfaced to the mutation that triggered the event.
type Publisher struct {
	sink   Sink
	logger *slog.Logger
}

// NewPublisher wires a publisher to its sink.
func NewPublisher(sink Sink, logger *slog.Logger) *Publisher {
	return &Publisher{sink: sink, logger: logger}
}

// Emit fills in the event id and timestamp and hands the event to the sink.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := p.sink.Publish(ctx, event); err != nil {
		p.logger.WarnContext(ctx, "failed to publish platform event",
			"event_type", event.Type,
			"service", event.Service,
			"error", err,
		)
	}
}

// Close releases the underlying sink.
func (p *Publisher) Close() error {
	return p.sink.Close()
}
