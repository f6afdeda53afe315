package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RegistryMetrics counts domain events. It satisfies the services' Publisher
// interface so it can sit next to the live event hub.
type RegistryMetrics struct {
	events metric.Int64Counter
}

func NewRegistryMetrics(mp metric.MeterProvider) (*RegistryMetrics, error) {
	events, err := mp.Meter(instrumentationName).Int64Counter(
		"devreg.events",
		metric.WithDescription("Registry domain events by type"),
		metric.WithUnit("{events}"),
	)
	if err != nil {
		return nil, err
	}
	return &RegistryMetrics{events: events}, nil
}

// Publish increments the counter for eventType. The payload is ignored.
func (m *RegistryMetrics) Publish(eventType string, _ interface{}) {
	m.events.Add(context.Background(), 1, metric.WithAttributes(attribute.String("event.type", eventType)))
}
