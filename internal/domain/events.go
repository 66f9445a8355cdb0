package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type constants for outbox events.
const (
	EventTypeRequestCreated    = "request.created"
	EventTypeRequestApproved   = "request.approved"
	EventTypeRequestDenied     = "request.denied"
	EventTypeRequestCompleted  = "request.completed"
	EventTypeRequestFailed     = "request.failed"
	EventTypeRequestCancelled  = "request.cancelled"
	EventTypeRequestDeleted    = "request.deleted"
	EventTypeSearchRequested   = "search.requested"
	EventTypeDownloadRequested = "download.requested"
	EventTypeNotify            = "notify"
)

// AggregateTypeRequest is the aggregate type for request lifecycle events.
const AggregateTypeRequest = "request"

// OutboxEvent represents an event to be published via the outbox pattern.
// Lifecycle transitions return these as effects; the orchestrator persists
// them transactionally and a poller delivers them to the broker.
type OutboxEvent struct {
	EventID       uuid.UUID
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Attempts      int
}

// NewOutboxEvent creates a new outbox event with the given parameters.
// The payload is JSON-serialized automatically.
func NewOutboxEvent(eventType, aggregateID string, payload interface{}) (*OutboxEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &OutboxEvent{
		EventID:       uuid.New(),
		AggregateID:   aggregateID,
		AggregateType: AggregateTypeRequest,
		EventType:     eventType,
		Payload:       payloadBytes,
		CreatedAt:     time.Now().UTC(),
	}, nil
}
