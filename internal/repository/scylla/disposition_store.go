package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/acme/dial-queue/internal/repository"
)

// DispositionStore keeps the immutable disposition audit trail in Scylla,
// partitioned by (campaign, day bucket) for time-ordered compliance review.
type DispositionStore struct {
	session *gocql.Session
}

// NewDispositionStore creates a new store.
func NewDispositionStore(session *gocql.Session) *DispositionStore {
	return &DispositionStore{session: session}
}

// Append writes an audit record. Records are never updated or deleted.
func (s *DispositionStore) Append(ctx context.Context, record repository.AuditRecord) error {
	bucket := bucketDate(record.CreatedAt)
	if err := s.session.Query(`INSERT INTO dispositions_by_campaign
		(campaign_id, bucket, created_at, disposition_id, entry_id, contact_id, agent_id, outcome, raw_outcome, notes, callback_at, handle_time_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.CampaignID.String(), bucket, record.CreatedAt, record.DispositionID.String(),
		record.EntryID.String(), record.ContactID.String(), record.AgentID.String(),
		record.Outcome, record.RawOutcome, record.Notes, record.CallbackAt, record.HandleTimeMs,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("disposition store: append: %w", err)
	}
	return nil
}

// ListByCampaign lists audit records for a campaign with opaque paging state.
func (s *DispositionStore) ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int, pagingState []byte) ([]repository.AuditRecord, []byte, error) {
	if limit <= 0 {
		limit = 100
	}

	query := s.session.Query(`SELECT bucket, created_at, disposition_id, entry_id, contact_id, agent_id, outcome, raw_outcome, notes, callback_at, handle_time_ms
		FROM dispositions_by_campaign WHERE campaign_id = ?`, campaignID.String()).WithContext(ctx)
	query = query.PageSize(limit)
	if len(pagingState) > 0 {
		query = query.PageState(pagingState)
	}

	iter := query.Iter()
	records := make([]repository.AuditRecord, 0, limit)

	var (
		bucket       time.Time
		createdAt    time.Time
		dispIDStr    string
		entryIDStr   string
		contactIDStr string
		agentIDStr   string
		outcome      string
		rawOutcome   string
		notes        string
		callbackAt   *time.Time
		handleTimeMs int64
	)

	for iter.Scan(&bucket, &createdAt, &dispIDStr, &entryIDStr, &contactIDStr, &agentIDStr, &outcome, &rawOutcome, &notes, &callbackAt, &handleTimeMs) {
		dispID, err := uuid.Parse(dispIDStr)
		if err != nil {
			continue
		}
		entryID, err := uuid.Parse(entryIDStr)
		if err != nil {
			continue
		}
		contactID, err := uuid.Parse(contactIDStr)
		if err != nil {
			continue
		}
		agentID, err := uuid.Parse(agentIDStr)
		if err != nil {
			continue
		}

		record := repository.AuditRecord{
			DispositionID: dispID,
			EntryID:       entryID,
			CampaignID:    campaignID,
			ContactID:     contactID,
			AgentID:       agentID,
			Outcome:       outcome,
			RawOutcome:    rawOutcome,
			Notes:         notes,
			HandleTimeMs:  handleTimeMs,
			CreatedAt:     createdAt,
		}
		if callbackAt != nil {
			t := *callbackAt
			record.CallbackAt = &t
		}
		callbackAt = nil
		records = append(records, record)
	}

	if err := iter.Close(); err != nil {
		return nil, nil, fmt.Errorf("disposition store: iter close: %w", err)
	}

	return records, iter.PageState(), nil
}

func bucketDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
