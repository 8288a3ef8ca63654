package timeline

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"bgv/internal/verification/models"
)

// OutboxRecord is a timeline entry waiting to be published to the event stream.
type OutboxRecord struct {
	ID          uuid.UUID
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// Event is the wire form of a timeline entry on the event stream.
type Event struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	CaseID      string `json:"case_id"`
	CheckID     string `json:"check_id,omitempty"`
	Action      string `json:"action"`
	ActorID     string `json:"actor_id,omitempty"`
	OldStatus   string `json:"old_status,omitempty"`
	NewStatus   string `json:"new_status,omitempty"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
	CreatedAt   string `json:"created_at"`
}

// NewOutboxRecord encodes entry for the outbox, keyed by its case.
func NewOutboxRecord(entry models.TimelineEntry) (OutboxRecord, error) {
	ev := Event{
		ID:          entry.ID.String(),
		TenantID:    entry.TenantID.String(),
		CaseID:      entry.CaseID.String(),
		Action:      string(entry.Action),
		OldStatus:   entry.OldStatus,
		NewStatus:   entry.NewStatus,
		Description: entry.Description,
		Visibility:  string(entry.Visibility),
		CreatedAt:   entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if !entry.CheckID.IsNil() {
		ev.CheckID = entry.CheckID.String()
	}
	if !entry.ActorID.IsNil() {
		ev.ActorID = entry.ActorID.String()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return OutboxRecord{}, err
	}
	return OutboxRecord{
		ID:          uuid.New(),
		AggregateID: ev.CaseID,
		EventType:   ev.Action,
		Payload:     payload,
		CreatedAt:   entry.CreatedAt,
	}, nil
}
