package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/campaignlens/backend/internal/domain/shared"
)

// Envelope is the wire form of a domain event sent to external consumers.
type Envelope struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Source        string          `json:"source"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope serialises e into an envelope tagged with source.
func NewEnvelope(source string, e shared.DomainEvent) (*Envelope, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", e.EventType(), err)
	}
	return &Envelope{
		ID:            e.EventID().String(),
		Type:          e.EventType(),
		AggregateID:   e.AggregateID(),
		AggregateType: e.AggregateType(),
		OccurredAt:    e.OccurredAt().UTC(),
		Source:        source,
		Payload:       payload,
	}, nil
}

// Marshal returns the JSON encoding of the envelope.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
