package events

import (
	"time"

	"github.com/google/uuid"
)

// OutcomeEvent is emitted for every recorded disposition. The audit worker
// consumes it into the Scylla audit store; reporting consumers are external.
type OutcomeEvent struct {
	DispositionID uuid.UUID  `json:"disposition_id"`
	EntryID       uuid.UUID  `json:"entry_id"`
	CampaignID    uuid.UUID  `json:"campaign_id"`
	ContactID     uuid.UUID  `json:"contact_id"`
	AgentID       uuid.UUID  `json:"agent_id"`
	Outcome       string     `json:"outcome"`
	RawOutcome    string     `json:"raw_outcome"`
	Notes         string     `json:"notes,omitempty"`
	CallbackAt    *time.Time `json:"callback_at,omitempty"`
	HandleTimeMs  int64      `json:"handle_time_ms"`
	AttemptCount  int        `json:"attempt_count"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

// CallbackRequest asks the external callback scheduler to create a follow-up
// reminder. The queue core only signals the request.
type CallbackRequest struct {
	DispositionID uuid.UUID `json:"disposition_id"`
	CampaignID    uuid.UUID `json:"campaign_id"`
	ContactID     uuid.UUID `json:"contact_id"`
	AgentID       uuid.UUID `json:"agent_id"`
	PhoneNumber   string    `json:"phone_number"`
	RequestedFor  time.Time `json:"requested_for"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
