package dialqueue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/dial-queue/internal/domain"
	"github.com/acme/dial-queue/internal/events"
	"github.com/acme/dial-queue/internal/repository"
	apperrors "github.com/acme/dial-queue/pkg/errors"
	"github.com/acme/dial-queue/pkg/logger"
)

type memQueueRepo struct {
	mu       sync.Mutex
	entries  map[uuid.UUID]*domain.QueueEntry
	contacts map[uuid.UUID]*domain.Contact
	pool     map[uuid.UUID][]uuid.UUID
	seq      int
}

func newMemQueueRepo() *memQueueRepo {
	return &memQueueRepo{
		entries:  make(map[uuid.UUID]*domain.QueueEntry),
		contacts: make(map[uuid.UUID]*domain.Contact),
		pool:     make(map[uuid.UUID][]uuid.UUID),
	}
}

func (m *memQueueRepo) addQueued(campaignID uuid.UUID, enqueuedAt time.Time) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	contact := &domain.Contact{
		ID:           uuid.New(),
		PrimaryPhone: "+15550100",
		Status:       domain.ContactStatusNew,
	}
	m.contacts[contact.ID] = contact
	entry := &domain.QueueEntry{
		ID:         uuid.New(),
		CampaignID: campaignID,
		ContactID:  contact.ID,
		Status:     domain.EntryStatusQueued,
		EnqueuedAt: enqueuedAt,
	}
	m.entries[entry.ID] = entry
	return entry.ID
}

// addContact registers a dialable contact on the campaign's list without
// creating an entry; Materialize selects from these.
func (m *memQueueRepo) addContact(campaignID uuid.UUID, priority int, lastAttemptAt *time.Time) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	contact := &domain.Contact{
		ID:            uuid.New(),
		PrimaryPhone:  "+15550100",
		Status:        domain.ContactStatusNew,
		Priority:      priority,
		LastAttemptAt: lastAttemptAt,
		CreatedAt:     time.Unix(int64(m.seq), 0).UTC(),
	}
	if lastAttemptAt != nil {
		contact.Status = domain.ContactStatusAttempted
	}
	m.contacts[contact.ID] = contact
	m.pool[campaignID] = append(m.pool[campaignID], contact.ID)
	return contact.ID
}

func (m *memQueueRepo) hasActiveEntry(campaignID, contactID uuid.UUID) bool {
	for _, e := range m.entries {
		if e.CampaignID == campaignID && e.ContactID == contactID &&
			(e.Status == domain.EntryStatusQueued || e.Status == domain.EntryStatusClaimed) {
			return true
		}
	}
	return false
}

// Materialize mirrors the SQL materializer: eligible contacts only, active
// entries excluded, selection ordered by priority then longest-waiting, and
// enqueue timestamps staggered by selection rank.
func (m *memQueueRepo) Materialize(ctx context.Context, campaignID uuid.UUID, maxEntries int, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var eligible []*domain.Contact
	for _, id := range m.pool[campaignID] {
		c := m.contacts[id]
		if c.Status != domain.ContactStatusNew && c.Status != domain.ContactStatusAttempted {
			continue
		}
		if m.hasActiveEntry(campaignID, c.ID) {
			continue
		}
		eligible = append(eligible, c)
	}
	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if (a.LastAttemptAt == nil) != (b.LastAttemptAt == nil) {
			return a.LastAttemptAt == nil
		}
		if a.LastAttemptAt != nil && !a.LastAttemptAt.Equal(*b.LastAttemptAt) {
			return a.LastAttemptAt.Before(*b.LastAttemptAt)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	if len(eligible) > maxEntries {
		eligible = eligible[:maxEntries]
	}

	for rank, c := range eligible {
		entry := &domain.QueueEntry{
			ID:         uuid.New(),
			CampaignID: campaignID,
			ContactID:  c.ID,
			Status:     domain.EntryStatusQueued,
			Priority:   c.Priority,
			EnqueuedAt: now.Add(time.Duration(rank) * time.Microsecond),
		}
		m.entries[entry.ID] = entry
	}
	return len(eligible), nil
}

func (m *memQueueRepo) ClaimNext(ctx context.Context, campaignID, agentID uuid.UUID, now time.Time) (*repository.ClaimedEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var queued []*domain.QueueEntry
	for _, e := range m.entries {
		if e.CampaignID == campaignID && e.Status == domain.EntryStatusQueued {
			queued = append(queued, e)
		}
	}
	if len(queued) == 0 {
		return nil, nil
	}
	sort.Slice(queued, func(i, j int) bool {
		if !queued[i].EnqueuedAt.Equal(queued[j].EnqueuedAt) {
			return queued[i].EnqueuedAt.Before(queued[j].EnqueuedAt)
		}
		return queued[i].ID.String() < queued[j].ID.String()
	})

	next := queued[0]
	next.Status = domain.EntryStatusClaimed
	next.AgentID = &agentID
	claimedAt := now
	next.ClaimedAt = &claimedAt
	return &repository.ClaimedEntry{Entry: *next, Contact: *m.contacts[next.ContactID]}, nil
}

func (m *memQueueRepo) CompleteWithOutcome(ctx context.Context, input repository.CompleteOutcomeInput) (*repository.CompleteOutcomeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[input.EntryID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if entry.Status != domain.EntryStatusClaimed || entry.AgentID == nil || *entry.AgentID != input.AgentID {
		return nil, repository.ErrInvalidState
	}

	entry.Status = domain.EntryStatusCompleted
	completedAt := input.Now
	entry.CompletedAt = &completedAt

	contact := m.contacts[entry.ContactID]
	contact.AttemptCount++
	contact.LastAttemptAt = &completedAt
	contact.Status = domain.ContactStatusAfter(input.Kind)

	disposition := domain.Disposition{
		ID:         uuid.New(),
		EntryID:    entry.ID,
		CampaignID: entry.CampaignID,
		ContactID:  contact.ID,
		AgentID:    input.AgentID,
		Kind:       input.Kind,
		RawOutcome: input.RawOutcome,
		Notes:      input.Notes,
		CallbackAt: input.CallbackAt,
		HandleTime: completedAt.Sub(*entry.ClaimedAt),
		CreatedAt:  completedAt,
	}
	return &repository.CompleteOutcomeResult{Entry: *entry, Disposition: disposition, Contact: *contact}, nil
}

func (m *memQueueRepo) GetEntry(ctx context.Context, id uuid.UUID) (*domain.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *entry
	return &copied, nil
}

func (m *memQueueRepo) ReleaseStale(ctx context.Context, claimedBefore, now time.Time) ([]repository.ReleasedEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var released []repository.ReleasedEntry
	for _, e := range m.entries {
		if e.Status == domain.EntryStatusClaimed && e.ClaimedAt != nil && e.ClaimedAt.Before(claimedBefore) {
			released = append(released, repository.ReleasedEntry{EntryID: e.ID, CampaignID: e.CampaignID, AgentID: *e.AgentID})
			e.Status = domain.EntryStatusQueued
			e.AgentID = nil
			e.ClaimedAt = nil
			e.ReleaseCount++
		}
	}
	return released, nil
}

func (m *memQueueRepo) Stats(ctx context.Context, campaignID uuid.UUID) (*domain.QueueStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &domain.QueueStats{}
	for _, e := range m.entries {
		if e.CampaignID != campaignID {
			continue
		}
		switch e.Status {
		case domain.EntryStatusQueued:
			stats.QueuedCount++
		case domain.EntryStatusClaimed:
			stats.ClaimedCount++
		case domain.EntryStatusCompleted:
			stats.CompletedCount++
		}
	}
	return stats, nil
}

func (m *memQueueRepo) RecentHandleTimes(ctx context.Context, campaignID uuid.UUID, limit int) ([]time.Duration, error) {
	return nil, nil
}

type memCampaignRepo struct {
	campaigns map[uuid.UUID]*domain.Campaign
}

func (m *memCampaignRepo) Create(ctx context.Context, campaign *domain.Campaign) error { return nil }

func (m *memCampaignRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	c, ok := m.campaigns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (m *memCampaignRepo) Update(ctx context.Context, campaign *domain.Campaign) error { return nil }
func (m *memCampaignRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return nil
}
func (m *memCampaignRepo) List(ctx context.Context, afterID *uuid.UUID, limit int) ([]*domain.Campaign, error) {
	return nil, nil
}
func (m *memCampaignRepo) ListActive(ctx context.Context, limit int) ([]*domain.Campaign, error) {
	return nil, nil
}
func (m *memCampaignRepo) ReplaceCallingHours(ctx context.Context, campaignID uuid.UUID, windows []domain.CallingHourWindow) error {
	return nil
}
func (m *memCampaignRepo) ListCallingHours(ctx context.Context, campaignID uuid.UUID) ([]domain.CallingHourWindow, error) {
	return nil, nil
}

type memDirectory struct {
	agents map[uuid.UUID]*domain.AgentSnapshot
}

func (m *memDirectory) GetAgent(ctx context.Context, agentID uuid.UUID) (*domain.AgentSnapshot, error) {
	a, ok := m.agents[agentID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return a, nil
}

type memSlots struct {
	mu    sync.Mutex
	held  map[uuid.UUID]int
	fail  bool
}

func (m *memSlots) Acquire(ctx context.Context, agentID uuid.UUID, limit int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return false, errors.New("redis down")
	}
	if m.held == nil {
		m.held = make(map[uuid.UUID]int)
	}
	if m.held[agentID] >= limit {
		return false, nil
	}
	m.held[agentID]++
	return true, nil
}

func (m *memSlots) Release(ctx context.Context, agentID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[agentID] > 0 {
		m.held[agentID]--
	}
	return nil
}

func (m *memSlots) holdCount(agentID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held[agentID]
}

type capturedEvents struct {
	mu        sync.Mutex
	outcomes  []events.OutcomeEvent
	callbacks []events.CallbackRequest
}

func (c *capturedEvents) PublishOutcome(ctx context.Context, event events.OutcomeEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, event)
	return nil
}

func (c *capturedEvents) PublishCallback(ctx context.Context, request events.CallbackRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, request)
	return nil
}

type fixture struct {
	service    *Service
	queue      *memQueueRepo
	slots      *memSlots
	events     *capturedEvents
	campaignID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	campaignID := uuid.New()
	queue := newMemQueueRepo()
	slots := &memSlots{}
	captured := &capturedEvents{}
	campaigns := &memCampaignRepo{campaigns: map[uuid.UUID]*domain.Campaign{
		campaignID: {ID: campaignID, Name: "q3-renewals", DialMethod: domain.DialMethodProgressive, Active: true},
	}}
	directory := &memDirectory{agents: map[uuid.UUID]*domain.AgentSnapshot{}}
	lg, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	svc := NewService(queue, campaigns, directory, slots, captured, captured, 1, lg)
	return &fixture{service: svc, queue: queue, slots: slots, events: captured, campaignID: campaignID}
}

func TestClaimNextEmptyQueue(t *testing.T) {
	f := newFixture(t)
	agentID := uuid.New()

	work, err := f.service.ClaimNext(context.Background(), f.campaignID, agentID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if work != nil {
		t.Fatalf("expected no work, got entry %s", work.Entry.ID)
	}
	if got := f.slots.holdCount(agentID); got != 0 {
		t.Fatalf("expected slot released after empty claim, still holding %d", got)
	}
}

func TestClaimNextOrdering(t *testing.T) {
	f := newFixture(t)
	base := time.Now().UTC()
	first := f.queue.addQueued(f.campaignID, base)
	second := f.queue.addQueued(f.campaignID, base.Add(time.Minute))

	work, err := f.service.ClaimNext(context.Background(), f.campaignID, uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if work.Entry.ID != first {
		t.Fatalf("expected oldest entry %s first, got %s", first, work.Entry.ID)
	}

	work, err = f.service.ClaimNext(context.Background(), f.campaignID, uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if work.Entry.ID != second {
		t.Fatalf("expected entry %s second, got %s", second, work.Entry.ID)
	}
}

func TestClaimNextMutualExclusion(t *testing.T) {
	f := newFixture(t)
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		f.queue.addQueued(f.campaignID, base.Add(time.Duration(i)*time.Second))
	}

	const agents = 12
	var wg sync.WaitGroup
	results := make(chan *ClaimedWork, agents)
	for i := 0; i < agents; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			work, err := f.service.ClaimNext(context.Background(), f.campaignID, uuid.New())
			if err != nil {
				t.Errorf("claim failed: %v", err)
				return
			}
			results <- work
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[uuid.UUID]int)
	var claimed, empty int
	for work := range results {
		if work == nil {
			empty++
			continue
		}
		claimed++
		seen[work.Entry.ID]++
	}
	if claimed != 5 {
		t.Fatalf("expected 5 successful claims, got %d", claimed)
	}
	if empty != agents-5 {
		t.Fatalf("expected %d empty results, got %d", agents-5, empty)
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("entry %s claimed %d times", id, count)
		}
	}
}

func TestClaimNextCapacityExceeded(t *testing.T) {
	f := newFixture(t)
	base := time.Now().UTC()
	f.queue.addQueued(f.campaignID, base)
	f.queue.addQueued(f.campaignID, base.Add(time.Second))
	agentID := uuid.New()

	if _, err := f.service.ClaimNext(context.Background(), f.campaignID, agentID); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	_, err := f.service.ClaimNext(context.Background(), f.campaignID, agentID)
	if !errors.Is(err, apperrors.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
}

func TestClaimNextUnknownCampaign(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.ClaimNext(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordOutcomeLifecycle(t *testing.T) {
	f := newFixture(t)
	f.queue.addQueued(f.campaignID, time.Now().UTC())
	agentID := uuid.New()

	work, err := f.service.ClaimNext(context.Background(), f.campaignID, agentID)
	if err != nil || work == nil {
		t.Fatalf("claim: %v %v", work, err)
	}

	result, err := f.service.RecordOutcome(context.Background(), RecordOutcomeInput{
		EntryID: work.Entry.ID,
		AgentID: agentID,
		Outcome: "answered",
		Notes:   "confirmed renewal",
	})
	if err != nil {
		t.Fatalf("record outcome: %v", err)
	}
	if result.Entry.Status != domain.EntryStatusCompleted {
		t.Fatalf("expected completed entry, got %s", result.Entry.Status)
	}
	if result.Contact.Status != domain.ContactStatusCompleted {
		t.Fatalf("expected completed contact, got %s", result.Contact.Status)
	}
	if result.Contact.AttemptCount != 1 {
		t.Fatalf("expected attempt count 1, got %d", result.Contact.AttemptCount)
	}
	if got := f.slots.holdCount(agentID); got != 0 {
		t.Fatalf("expected slot released, still holding %d", got)
	}
	if len(f.events.outcomes) != 1 {
		t.Fatalf("expected one outcome event, got %d", len(f.events.outcomes))
	}
	if f.events.outcomes[0].Outcome != "answered" {
		t.Fatalf("unexpected event outcome %q", f.events.outcomes[0].Outcome)
	}

	// A second submission for the same entry must not double-count.
	_, err = f.service.RecordOutcome(context.Background(), RecordOutcomeInput{
		EntryID: work.Entry.ID,
		AgentID: agentID,
		Outcome: "answered",
	})
	if !errors.Is(err, apperrors.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on duplicate submit, got %v", err)
	}
	if len(f.events.outcomes) != 1 {
		t.Fatalf("duplicate submit published an event")
	}
}

func TestRecordOutcomeWrongAgent(t *testing.T) {
	f := newFixture(t)
	f.queue.addQueued(f.campaignID, time.Now().UTC())
	owner := uuid.New()

	work, err := f.service.ClaimNext(context.Background(), f.campaignID, owner)
	if err != nil || work == nil {
		t.Fatalf("claim: %v %v", work, err)
	}

	_, err = f.service.RecordOutcome(context.Background(), RecordOutcomeInput{
		EntryID: work.Entry.ID,
		AgentID: uuid.New(),
		Outcome: "answered",
	})
	if !errors.Is(err, apperrors.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for non-owner, got %v", err)
	}
}

func TestRecordOutcomeUnknownCodePersists(t *testing.T) {
	f := newFixture(t)
	f.queue.addQueued(f.campaignID, time.Now().UTC())
	agentID := uuid.New()

	work, err := f.service.ClaimNext(context.Background(), f.campaignID, agentID)
	if err != nil || work == nil {
		t.Fatalf("claim: %v %v", work, err)
	}

	result, err := f.service.RecordOutcome(context.Background(), RecordOutcomeInput{
		EntryID: work.Entry.ID,
		AgentID: agentID,
		Outcome: "spoke with neighbor",
	})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if result == nil {
		t.Fatalf("expected recorded result alongside the validation error")
	}
	if result.Disposition.Kind != domain.OutcomeOther {
		t.Fatalf("expected kind other, got %s", result.Disposition.Kind)
	}
	if result.Disposition.RawOutcome != "spoke with neighbor" {
		t.Fatalf("raw outcome not preserved: %q", result.Disposition.RawOutcome)
	}
	if result.Entry.Status != domain.EntryStatusCompleted {
		t.Fatalf("expected entry completed despite unknown code")
	}
}

func TestRecordOutcomeCallbackPublishesRequest(t *testing.T) {
	f := newFixture(t)
	f.queue.addQueued(f.campaignID, time.Now().UTC())
	agentID := uuid.New()

	work, err := f.service.ClaimNext(context.Background(), f.campaignID, agentID)
	if err != nil || work == nil {
		t.Fatalf("claim: %v %v", work, err)
	}

	callbackAt := time.Now().UTC().Add(2 * time.Hour)
	result, err := f.service.RecordOutcome(context.Background(), RecordOutcomeInput{
		EntryID:    work.Entry.ID,
		AgentID:    agentID,
		Outcome:    "callback",
		CallbackAt: &callbackAt,
	})
	if err != nil {
		t.Fatalf("record outcome: %v", err)
	}
	if result.Contact.Status != domain.ContactStatusAttempted {
		t.Fatalf("callback contact should stay dialable, got %s", result.Contact.Status)
	}
	if len(f.events.callbacks) != 1 {
		t.Fatalf("expected one callback request, got %d", len(f.events.callbacks))
	}
	req := f.events.callbacks[0]
	if !req.RequestedFor.Equal(callbackAt) {
		t.Fatalf("callback time mismatch: %v vs %v", req.RequestedFor, callbackAt)
	}
	if req.PhoneNumber != result.Contact.PrimaryPhone {
		t.Fatalf("callback should carry the contact phone")
	}
}

func TestRecordOutcomePastCallbackPersistsWithoutScheduling(t *testing.T) {
	f := newFixture(t)
	f.queue.addQueued(f.campaignID, time.Now().UTC())
	agentID := uuid.New()

	work, err := f.service.ClaimNext(context.Background(), f.campaignID, agentID)
	if err != nil || work == nil {
		t.Fatalf("claim: %v %v", work, err)
	}

	past := time.Now().UTC().Add(-time.Hour)
	result, err := f.service.RecordOutcome(context.Background(), RecordOutcomeInput{
		EntryID:    work.Entry.ID,
		AgentID:    agentID,
		Outcome:    "callback",
		Notes:      "asked for yesterday, probably meant tomorrow",
		CallbackAt: &past,
	})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected ErrValidation for past callback, got %v", err)
	}
	if result == nil {
		t.Fatalf("expected recorded result alongside the validation error")
	}
	if result.Entry.Status != domain.EntryStatusCompleted {
		t.Fatalf("expected entry completed despite past callback, got %s", result.Entry.Status)
	}
	if result.Disposition.CallbackAt == nil || !result.Disposition.CallbackAt.Equal(past) {
		t.Fatalf("agent-entered callback time not preserved on the disposition")
	}
	if len(f.events.outcomes) != 1 {
		t.Fatalf("expected the outcome event, got %d", len(f.events.outcomes))
	}
	if len(f.events.callbacks) != 0 {
		t.Fatalf("a past callback must not be scheduled, got %d requests", len(f.events.callbacks))
	}
}

func TestReleaseStaleFreesSlots(t *testing.T) {
	f := newFixture(t)
	f.queue.addQueued(f.campaignID, time.Now().UTC().Add(-time.Hour))
	agentID := uuid.New()

	work, err := f.service.ClaimNext(context.Background(), f.campaignID, agentID)
	if err != nil || work == nil {
		t.Fatalf("claim: %v %v", work, err)
	}

	// Backdate the claim so the reaper cutoff catches it.
	f.queue.mu.Lock()
	stale := time.Now().UTC().Add(-30 * time.Minute)
	f.queue.entries[work.Entry.ID].ClaimedAt = &stale
	f.queue.mu.Unlock()

	released, err := f.service.ReleaseStale(context.Background(), 10*time.Minute)
	if err != nil {
		t.Fatalf("release stale: %v", err)
	}
	if len(released) != 1 {
		t.Fatalf("expected one released entry, got %d", len(released))
	}
	if released[0].AgentID != agentID {
		t.Fatalf("released wrong agent")
	}
	if got := f.slots.holdCount(agentID); got != 0 {
		t.Fatalf("expected slot freed, still holding %d", got)
	}

	// The released entry is claimable again.
	work2, err := f.service.ClaimNext(context.Background(), f.campaignID, uuid.New())
	if err != nil || work2 == nil {
		t.Fatalf("reclaim after release: %v %v", work2, err)
	}
	if work2.Entry.ID != work.Entry.ID {
		t.Fatalf("expected the released entry back, got %s", work2.Entry.ID)
	}
}

func TestMaterializeValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Materialize(context.Background(), f.campaignID, 0)
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected ErrValidation for zero max entries, got %v", err)
	}
	_, err = f.service.Materialize(context.Background(), uuid.New(), 10)
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown campaign, got %v", err)
	}
}

func TestMaterializeClaimOrderFollowsSelection(t *testing.T) {
	f := newFixture(t)
	old := time.Now().UTC().Add(-48 * time.Hour)
	recent := time.Now().UTC().Add(-time.Hour)

	// Selection order: priority first, then never-attempted, then
	// longest-waiting. Insertion order is deliberately shuffled.
	third := f.queue.addContact(f.campaignID, 0, &recent)
	first := f.queue.addContact(f.campaignID, 5, nil)
	second := f.queue.addContact(f.campaignID, 0, &old)

	result, err := f.service.Materialize(context.Background(), f.campaignID, 10)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if result.Created != 3 {
		t.Fatalf("expected 3 entries, got %d", result.Created)
	}

	for i, want := range []uuid.UUID{first, second, third} {
		work, err := f.service.ClaimNext(context.Background(), f.campaignID, uuid.New())
		if err != nil || work == nil {
			t.Fatalf("claim %d: %v %v", i, work, err)
		}
		if work.Contact.ID != want {
			t.Fatalf("claim %d: expected contact %s, got %s", i, want, work.Contact.ID)
		}
	}
}

func TestMaterializeTwiceNoDuplicateActiveEntries(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.queue.addContact(f.campaignID, 0, nil)
	}

	first, err := f.service.Materialize(context.Background(), f.campaignID, 5)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if first.Created != 3 {
		t.Fatalf("expected 3 entries, got %d", first.Created)
	}

	agentID := uuid.New()
	work, err := f.service.ClaimNext(context.Background(), f.campaignID, agentID)
	if err != nil || work == nil {
		t.Fatalf("claim: %v %v", work, err)
	}

	// A second materialization must skip contacts with queued or claimed
	// entries, including the one just claimed.
	second, err := f.service.Materialize(context.Background(), f.campaignID, 5)
	if err != nil {
		t.Fatalf("second materialize: %v", err)
	}
	if second.Created != 0 {
		t.Fatalf("expected no new entries while all contacts are active, got %d", second.Created)
	}

	// A no-answer keeps the contact dialable, so it alone is re-selected.
	if _, err := f.service.RecordOutcome(context.Background(), RecordOutcomeInput{
		EntryID: work.Entry.ID,
		AgentID: agentID,
		Outcome: "no_answer",
	}); err != nil {
		t.Fatalf("record outcome: %v", err)
	}
	third, err := f.service.Materialize(context.Background(), f.campaignID, 5)
	if err != nil {
		t.Fatalf("third materialize: %v", err)
	}
	if third.Created != 1 {
		t.Fatalf("expected only the no-answer contact requeued, got %d", third.Created)
	}

	active := make(map[uuid.UUID]int)
	f.queue.mu.Lock()
	for _, e := range f.queue.entries {
		if e.Status == domain.EntryStatusQueued || e.Status == domain.EntryStatusClaimed {
			active[e.ContactID]++
		}
	}
	f.queue.mu.Unlock()
	for contactID, count := range active {
		if count > 1 {
			t.Fatalf("contact %s holds %d active entries", contactID, count)
		}
	}
}
