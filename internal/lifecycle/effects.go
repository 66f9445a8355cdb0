package lifecycle

import (
	"github.com/google/uuid"

	"github.com/shelfarr/shelfarr/internal/domain"
)

// Effect is one side effect a transition asks its caller to schedule. The
// state machine never calls the job queue itself; it returns effects and the
// orchestrator persists them through the outbox.
type Effect struct {
	EventType string
	RequestID uuid.UUID
	Payload   map[string]interface{}
}

// OutboxEvent converts the effect into a persistable outbox event.
func (e Effect) OutboxEvent() (*domain.OutboxEvent, error) {
	payload := map[string]interface{}{"request_id": e.RequestID.String()}
	for k, v := range e.Payload {
		payload[k] = v
	}
	return domain.NewOutboxEvent(e.EventType, e.RequestID.String(), payload)
}

func effect(eventType string, requestID uuid.UUID, payload map[string]interface{}) Effect {
	return Effect{EventType: eventType, RequestID: requestID, Payload: payload}
}

// effectsForStatus maps an entered status to the events it implies beyond the
// operation-specific ones.
func effectsForStatus(requestID uuid.UUID, to domain.RequestStatus) []Effect {
	switch to {
	case domain.RequestStatusPending:
		return []Effect{effect(domain.EventTypeSearchRequested, requestID, nil)}
	case domain.RequestStatusFailed:
		return []Effect{
			effect(domain.EventTypeRequestFailed, requestID, nil),
			effect(domain.EventTypeNotify, requestID, map[string]interface{}{"outcome": "failed"}),
		}
	case domain.RequestStatusAvailable, domain.RequestStatusDownloaded:
		return []Effect{
			effect(domain.EventTypeRequestCompleted, requestID, map[string]interface{}{"status": string(to)}),
			effect(domain.EventTypeNotify, requestID, map[string]interface{}{"outcome": string(to)}),
		}
	case domain.RequestStatusCancelled:
		return []Effect{effect(domain.EventTypeRequestCancelled, requestID, nil)}
	default:
		return nil
	}
}
