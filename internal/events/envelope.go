package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventEnvelope is the common envelope for every event published to the exchange.
type EventEnvelope[T any] struct {
	EventName     string    `json:"eventName"`
	EventVersion  int       `json:"eventVersion"`
	EventID       string    `json:"eventId"`
	CorrelationID string    `json:"correlationId,omitempty"`
	Producer      string    `json:"producer"`
	PartitionKey  string    `json:"partitionKey"`
	OccurredAt    time.Time `json:"occurredAt"`
	Payload       T         `json:"payload"`
}

func newEnvelope[T any](name string, version int, producer, partitionKey, correlationID string, payload T, now time.Time) EventEnvelope[T] {
	return EventEnvelope[T]{
		EventName:     name,
		EventVersion:  version,
		EventID:       uuid.NewString(),
		CorrelationID: correlationID,
		Producer:      producer,
		PartitionKey:  partitionKey,
		OccurredAt:    now.UTC(),
		Payload:       payload,
	}
}

// RoutingKey is "<eventName>.v<version>".
func (e EventEnvelope[T]) RoutingKey() string {
	return fmt.Sprintf("%s.v%d", e.EventName, e.EventVersion)
}

func (e EventEnvelope[T]) Validate(expectedName string, expectedVersion int) error {
	if e.EventName != expectedName {
		return fmt.Errorf("unexpected eventName: %s", e.EventName)
	}
	if e.EventVersion != expectedVersion {
		return fmt.Errorf("unexpected eventVersion: %d", e.EventVersion)
	}
	if e.PartitionKey == "" {
		return fmt.Errorf("missing partitionKey")
	}
	return nil
}
