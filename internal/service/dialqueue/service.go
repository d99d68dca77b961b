package dialqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/dial-queue/internal/domain"
	"github.com/acme/dial-queue/internal/events"
	"github.com/acme/dial-queue/internal/repository"
	apperrors "github.com/acme/dial-queue/pkg/errors"
	"github.com/acme/dial-queue/pkg/logger"
)

// AgentDirectory supplies agent presence snapshots.
type AgentDirectory interface {
	GetAgent(ctx context.Context, agentID uuid.UUID) (*domain.AgentSnapshot, error)
}

// ClaimSlots guards per-agent concurrent claim capacity.
type ClaimSlots interface {
	Acquire(ctx context.Context, agentID uuid.UUID, limit int) (bool, error)
	Release(ctx context.Context, agentID uuid.UUID) error
}

// OutcomePublisher emits outcome events for recorded dispositions.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, event events.OutcomeEvent) error
}

// CallbackPublisher signals callback requests to the external scheduler.
type CallbackPublisher interface {
	PublishCallback(ctx context.Context, request events.CallbackRequest) error
}

// Service is the queue/assignment core: it materializes queue entries,
// hands them to agents, and records outcomes.
type Service struct {
	queue           repository.QueueRepository
	campaigns       repository.CampaignRepository
	agents          AgentDirectory
	slots           ClaimSlots
	outcomes        OutcomePublisher
	callbacks       CallbackPublisher
	defaultCapacity int
	lg              *logger.Logger
}

// NewService constructs the dial queue service.
func NewService(
	queue repository.QueueRepository,
	campaigns repository.CampaignRepository,
	agents AgentDirectory,
	slots ClaimSlots,
	outcomes OutcomePublisher,
	callbacks CallbackPublisher,
	defaultCapacity int,
	lg *logger.Logger,
) *Service {
	if defaultCapacity <= 0 {
		defaultCapacity = 1
	}
	return &Service{
		queue:           queue,
		campaigns:       campaigns,
		agents:          agents,
		slots:           slots,
		outcomes:        outcomes,
		callbacks:       callbacks,
		defaultCapacity: defaultCapacity,
		lg:              lg,
	}
}

// MaterializeResult reports how many entries a refill created.
type MaterializeResult struct {
	Created int
}

// Materialize fills the campaign queue up to maxEntries with eligible
// contacts. Zero eligible contacts is a valid result, not an error.
func (s *Service) Materialize(ctx context.Context, campaignID uuid.UUID, maxEntries int) (*MaterializeResult, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("%w: max entries must be positive", apperrors.ErrValidation)
	}

	if _, err := s.campaigns.Get(ctx, campaignID); err != nil {
		return nil, err
	}

	created, err := s.queue.Materialize(ctx, campaignID, maxEntries, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("dial queue: materialize: %w", err)
	}

	return &MaterializeResult{Created: created}, nil
}

// ClaimedWork is the assignment handed to an agent.
type ClaimedWork struct {
	Entry   domain.QueueEntry
	Contact domain.Contact
}

// ClaimNext atomically claims the oldest queued entry for the agent.
// Returns (nil, nil) when no work is available; a lost race against another
// agent is never surfaced as an error.
func (s *Service) ClaimNext(ctx context.Context, campaignID, agentID uuid.UUID) (*ClaimedWork, error) {
	if agentID == uuid.Nil {
		return nil, fmt.Errorf("%w: agent id is required", apperrors.ErrValidation)
	}

	if _, err := s.campaigns.Get(ctx, campaignID); err != nil {
		return nil, err
	}

	capacity := s.agentCapacity(ctx, agentID)
	acquired, err := s.slots.Acquire(ctx, agentID, capacity)
	if err != nil {
		return nil, fmt.Errorf("dial queue: acquire slot: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: agent %s holds %d claimed entries", apperrors.ErrCapacityExceeded, agentID, capacity)
	}

	claimed, err := s.queue.ClaimNext(ctx, campaignID, agentID, time.Now().UTC())
	if err != nil {
		s.releaseSlot(agentID)
		return nil, fmt.Errorf("dial queue: claim next: %w", err)
	}
	if claimed == nil {
		s.releaseSlot(agentID)
		return nil, nil
	}

	return &ClaimedWork{Entry: claimed.Entry, Contact: claimed.Contact}, nil
}

// RecordOutcomeInput carries a disposition submission.
type RecordOutcomeInput struct {
	EntryID    uuid.UUID
	AgentID    uuid.UUID
	Outcome    string
	Notes      string
	CallbackAt *time.Time
}

// RecordOutcomeResult reports the terminal transition and updated contact.
type RecordOutcomeResult struct {
	Entry             domain.QueueEntry
	Disposition       domain.Disposition
	Contact           domain.Contact
	OutcomeRecognized bool
}

// RecordOutcome closes out a claimed entry. Agent-entered outcome data is
// compliance-sensitive: an unrecognized outcome code or a callback time
// already in the past is still persisted verbatim and then reported as a
// validation error alongside the result. A past callback is recorded on the
// disposition but never scheduled.
func (s *Service) RecordOutcome(ctx context.Context, input RecordOutcomeInput) (*RecordOutcomeResult, error) {
	if input.Outcome == "" {
		return nil, fmt.Errorf("%w: outcome code is required", apperrors.ErrValidation)
	}
	if input.AgentID == uuid.Nil {
		return nil, fmt.Errorf("%w: agent id is required", apperrors.ErrValidation)
	}

	now := time.Now().UTC()
	pastCallback := input.CallbackAt != nil && input.CallbackAt.Before(now)

	kind, recognized := domain.ParseOutcome(input.Outcome)

	completed, err := s.queue.CompleteWithOutcome(ctx, repository.CompleteOutcomeInput{
		EntryID:    input.EntryID,
		AgentID:    input.AgentID,
		Kind:       kind,
		RawOutcome: input.Outcome,
		Notes:      input.Notes,
		CallbackAt: input.CallbackAt,
		Now:        now,
	})
	if err != nil {
		return nil, err
	}

	s.releaseSlot(input.AgentID)
	s.publishOutcome(ctx, completed)

	result := &RecordOutcomeResult{
		Entry:             completed.Entry,
		Disposition:       completed.Disposition,
		Contact:           completed.Contact,
		OutcomeRecognized: recognized,
	}
	switch {
	case !recognized:
		return result, fmt.Errorf("%w: unknown outcome code %q (disposition recorded)", apperrors.ErrValidation, input.Outcome)
	case pastCallback:
		return result, fmt.Errorf("%w: callback time is in the past (disposition recorded, callback not scheduled)", apperrors.ErrValidation)
	}
	return result, nil
}

// QueueStats returns per-campaign queue counters.
func (s *Service) QueueStats(ctx context.Context, campaignID uuid.UUID) (*domain.QueueStats, error) {
	if _, err := s.campaigns.Get(ctx, campaignID); err != nil {
		return nil, err
	}
	stats, err := s.queue.Stats(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("dial queue: stats: %w", err)
	}
	return stats, nil
}

// ReleaseStale returns claimed entries older than the timeout to the queue
// and frees the holding agents' slots. Invoked by the reaper.
func (s *Service) ReleaseStale(ctx context.Context, claimTimeout time.Duration) ([]repository.ReleasedEntry, error) {
	now := time.Now().UTC()
	released, err := s.queue.ReleaseStale(ctx, now.Add(-claimTimeout), now)
	if err != nil {
		return nil, fmt.Errorf("dial queue: release stale: %w", err)
	}
	for _, entry := range released {
		s.releaseSlot(entry.AgentID)
	}
	return released, nil
}

// agentCapacity resolves the agent's concurrent-claim limit from presence,
// falling back to the configured default when presence has no record. The
// core trusts whatever capacity presence reports.
func (s *Service) agentCapacity(ctx context.Context, agentID uuid.UUID) int {
	snapshot, err := s.agents.GetAgent(ctx, agentID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.lg.Warn("dial queue: presence lookup failed", zap.Error(err), zap.String("agent_id", agentID.String()))
		}
		return s.defaultCapacity
	}
	if snapshot.MaxConcurrentCalls <= 0 {
		return s.defaultCapacity
	}
	return snapshot.MaxConcurrentCalls
}

func (s *Service) releaseSlot(agentID uuid.UUID) {
	if err := s.slots.Release(context.Background(), agentID); err != nil {
		s.lg.Warn("dial queue: release slot", zap.Error(err), zap.String("agent_id", agentID.String()))
	}
}

// publishOutcome emits the outcome event and, for callback outcomes, the
// callback request. The disposition is already durable at this point, so
// publish failures are logged, never propagated back to the agent.
func (s *Service) publishOutcome(ctx context.Context, completed *repository.CompleteOutcomeResult) {
	event := events.OutcomeEvent{
		DispositionID: completed.Disposition.ID,
		EntryID:       completed.Entry.ID,
		CampaignID:    completed.Entry.CampaignID,
		ContactID:     completed.Contact.ID,
		AgentID:       completed.Disposition.AgentID,
		Outcome:       string(completed.Disposition.Kind),
		RawOutcome:    completed.Disposition.RawOutcome,
		Notes:         completed.Disposition.Notes,
		CallbackAt:    completed.Disposition.CallbackAt,
		HandleTimeMs:  completed.Disposition.HandleTime.Milliseconds(),
		AttemptCount:  completed.Contact.AttemptCount,
		OccurredAt:    completed.Disposition.CreatedAt,
	}
	if err := s.outcomes.PublishOutcome(ctx, event); err != nil {
		s.lg.Error("dial queue: publish outcome", zap.Error(err), zap.String("entry_id", completed.Entry.ID.String()))
	}

	if completed.Disposition.Kind != domain.OutcomeCallback || completed.Disposition.CallbackAt == nil {
		return
	}
	if completed.Disposition.CallbackAt.Before(completed.Disposition.CreatedAt) {
		// Recorded on the disposition, but a callback in the past is never scheduled.
		return
	}
	request := events.CallbackRequest{
		DispositionID: completed.Disposition.ID,
		CampaignID:    completed.Entry.CampaignID,
		ContactID:     completed.Contact.ID,
		AgentID:       completed.Disposition.AgentID,
		PhoneNumber:   completed.Contact.PrimaryPhone,
		RequestedFor:  *completed.Disposition.CallbackAt,
		Notes:         completed.Disposition.Notes,
		CreatedAt:     completed.Disposition.CreatedAt,
	}
	if err := s.callbacks.PublishCallback(ctx, request); err != nil {
		s.lg.Error("dial queue: publish callback", zap.Error(err), zap.String("contact_id", completed.Contact.ID.String()))
	}
}
