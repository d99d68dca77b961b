package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/acme/dial-queue/internal/domain"
	apperrors "github.com/acme/dial-queue/pkg/errors"
)

var (
	// ErrNotFound indicates the entity was not located.
	ErrNotFound = apperrors.ErrNotFound
	// ErrInvalidState indicates an entry was not in the required lifecycle state.
	ErrInvalidState = apperrors.ErrInvalidState
	// ErrConflict indicates a unique constraint violation.
	ErrConflict = apperrors.ErrConflict
)

// CampaignRepository manages campaign configuration persistence.
type CampaignRepository interface {
	Create(ctx context.Context, campaign *domain.Campaign) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
	Update(ctx context.Context, campaign *domain.Campaign) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	List(ctx context.Context, afterID *uuid.UUID, limit int) ([]*domain.Campaign, error)
	ListActive(ctx context.Context, limit int) ([]*domain.Campaign, error)
	ReplaceCallingHours(ctx context.Context, campaignID uuid.UUID, windows []domain.CallingHourWindow) error
	ListCallingHours(ctx context.Context, campaignID uuid.UUID) ([]domain.CallingHourWindow, error)
}

// ContactRepository is the durable contact pool store.
type ContactRepository interface {
	CreateList(ctx context.Context, list *domain.ContactList) error
	BulkImport(ctx context.Context, listID uuid.UUID, contacts []ContactRecord) (int, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Contact, error)
	FindByPhone(ctx context.Context, phone string) (*domain.Contact, error)
}

// QueueRepository owns queue entry state. Claim and completion are the only
// operations with concurrent-writer exposure and must be atomic conditional
// updates, never read-then-write.
type QueueRepository interface {
	// Materialize creates queued entries for eligible contacts of the
	// campaign, up to maxEntries, skipping contacts with an active entry.
	Materialize(ctx context.Context, campaignID uuid.UUID, maxEntries int, now time.Time) (int, error)
	// ClaimNext atomically claims the oldest queued entry for the agent.
	// Returns (nil, nil) when the queue is empty.
	ClaimNext(ctx context.Context, campaignID, agentID uuid.UUID, now time.Time) (*ClaimedEntry, error)
	// CompleteWithOutcome transitions a claimed entry owned by the agent to
	// completed, writes the disposition and updates the contact's attempt
	// history, all in one transaction.
	CompleteWithOutcome(ctx context.Context, input CompleteOutcomeInput) (*CompleteOutcomeResult, error)
	GetEntry(ctx context.Context, id uuid.UUID) (*domain.QueueEntry, error)
	// ReleaseStale returns claimed entries older than the cutoff to queued
	// state and reports which agents held them.
	ReleaseStale(ctx context.Context, claimedBefore, now time.Time) ([]ReleasedEntry, error)
	Stats(ctx context.Context, campaignID uuid.UUID) (*domain.QueueStats, error)
	RecentHandleTimes(ctx context.Context, campaignID uuid.UUID, limit int) ([]time.Duration, error)
}

// DispositionAuditStore keeps the immutable disposition audit trail.
type DispositionAuditStore interface {
	Append(ctx context.Context, record AuditRecord) error
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int, pagingState []byte) ([]AuditRecord, []byte, error)
}

// ContactRecord is the storage representation of an imported contact.
type ContactRecord struct {
	ID           uuid.UUID
	ListID       uuid.UUID
	FirstName    string
	LastName     string
	PrimaryPhone string
	MobilePhone  *string
	WorkPhone    *string
	HomePhone    *string
	Priority     int
	CreatedAt    time.Time
}

// ClaimedEntry pairs a freshly claimed entry with its contact details.
type ClaimedEntry struct {
	Entry   domain.QueueEntry
	Contact domain.Contact
}

// CompleteOutcomeInput carries everything needed to close out an entry.
type CompleteOutcomeInput struct {
	EntryID    uuid.UUID
	AgentID    uuid.UUID
	Kind       domain.OutcomeKind
	RawOutcome string
	Notes      string
	CallbackAt *time.Time
	Now        time.Time
}

// CompleteOutcomeResult reports the terminal transition.
type CompleteOutcomeResult struct {
	Entry       domain.QueueEntry
	Disposition domain.Disposition
	Contact     domain.Contact
}

// ReleasedEntry identifies an entry returned to the queue by the reaper.
type ReleasedEntry struct {
	EntryID    uuid.UUID
	CampaignID uuid.UUID
	AgentID    uuid.UUID
}

// AuditRecord is the audit-store representation of a disposition.
type AuditRecord struct {
	DispositionID uuid.UUID
	EntryID       uuid.UUID
	CampaignID    uuid.UUID
	ContactID     uuid.UUID
	AgentID       uuid.UUID
	Outcome       string
	RawOutcome    string
	Notes         string
	CallbackAt    *time.Time
	HandleTimeMs  int64
	CreatedAt     time.Time
}
