package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/dial-queue/internal/domain"
	"github.com/acme/dial-queue/internal/repository"
)

// QueueRepository implements repository.QueueRepository using PostgreSQL.
//
// A partial unique index enforces the one-active-entry invariant at the
// storage layer:
//
//	CREATE UNIQUE INDEX queue_entries_active_contact
//	ON queue_entries (campaign_id, contact_id)
//	WHERE status IN ('queued', 'claimed');
type QueueRepository struct {
	db *sqlx.DB
}

// NewQueueRepository constructs the repository.
func NewQueueRepository(db *sqlx.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Materialize inserts queued entries for eligible contacts in one statement.
// Eligibility: contact belongs to one of the campaign's lists, is new or
// attempted, and has no queued/claimed entry for this campaign. Selection
// order is priority descending, then longest-waiting (never-attempted first).
// Each entry's enqueue timestamp is staggered by one microsecond per
// selection rank, so the claim order (enqueued_at ASC) reproduces the
// selection order inside a single batch instead of collapsing to uuid order.
func (r *QueueRepository) Materialize(ctx context.Context, campaignID uuid.UUID, maxEntries int, now time.Time) (int, error) {
	if maxEntries <= 0 {
		return 0, nil
	}

	res, err := r.db.ExecContext(ctx, `INSERT INTO queue_entries (id, campaign_id, contact_id, status, priority, enqueued_at, updated_at)
		SELECT gen_random_uuid(), $1, e.id, 'queued', e.priority,
		       $2::timestamptz + (e.rank - 1) * interval '1 microsecond', $2
		FROM (
			SELECT c.id, c.priority,
			       row_number() OVER (ORDER BY c.priority DESC, c.last_attempt_at ASC NULLS FIRST, c.created_at ASC) AS rank
			FROM contacts c
			JOIN contact_lists l ON l.id = c.list_id
			WHERE l.campaign_id = $1
			  AND c.status IN ('new', 'attempted')
			  AND NOT EXISTS (
				SELECT 1 FROM queue_entries q
				WHERE q.campaign_id = $1 AND q.contact_id = c.id AND q.status IN ('queued', 'claimed')
			  )
			ORDER BY rank
			LIMIT $3
		) e
		ON CONFLICT (campaign_id, contact_id) WHERE status IN ('queued', 'claimed') DO NOTHING`,
		campaignID, now, maxEntries)
	if err != nil {
		return 0, fmt.Errorf("queue repo: materialize: %w", err)
	}

	created, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("queue repo: rows affected: %w", err)
	}
	return int(created), nil
}

// ClaimNext claims the oldest queued entry for the campaign. The SELECT and
// the status transition happen in one conditional update: FOR UPDATE SKIP
// LOCKED means a losing racer is served the next unlocked row instead of
// blocking, and no two callers ever observe the same queued entry.
func (r *QueueRepository) ClaimNext(ctx context.Context, campaignID, agentID uuid.UUID, now time.Time) (*repository.ClaimedEntry, error) {
	var claimed *repository.ClaimedEntry

	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		row := tx.QueryRowxContext(ctx, `WITH next_entry AS (
			SELECT id FROM queue_entries
			WHERE campaign_id = $1 AND status = 'queued'
			ORDER BY enqueued_at ASC, id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE queue_entries qe
		SET status = 'claimed', agent_id = $2, claimed_at = $3, updated_at = $3
		FROM next_entry
		WHERE qe.id = next_entry.id
		RETURNING qe.id, qe.campaign_id, qe.contact_id, qe.status, qe.agent_id, qe.priority,
		          qe.enqueued_at, qe.claimed_at, qe.completed_at, qe.release_count, qe.updated_at`,
			campaignID, agentID, now)

		var rec entryRecord
		if err := row.StructScan(&rec); err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return fmt.Errorf("queue repo: claim next: %w", err)
		}

		contactRow := tx.QueryRowxContext(ctx, contactSelect+` WHERE id = $1`, rec.ContactID)
		var crec contactRecord
		if err := contactRow.StructScan(&crec); err != nil {
			return fmt.Errorf("queue repo: claimed contact: %w", err)
		}

		claimed = &repository.ClaimedEntry{Entry: rec.toDomain(), Contact: crec.toDomain()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// CompleteWithOutcome closes out a claimed entry, writes the disposition and
// bumps the contact attempt history in one transaction. The entry update is
// conditional on (claimed, owned-by-agent); zero rows affected is classified
// as NotFound or InvalidState by re-reading the entry.
func (r *QueueRepository) CompleteWithOutcome(ctx context.Context, input repository.CompleteOutcomeInput) (*repository.CompleteOutcomeResult, error) {
	var result repository.CompleteOutcomeResult

	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		row := tx.QueryRowxContext(ctx, `UPDATE queue_entries
			SET status = 'completed', completed_at = $3, updated_at = $3
			WHERE id = $1 AND status = 'claimed' AND agent_id = $2
			RETURNING id, campaign_id, contact_id, status, agent_id, priority,
			          enqueued_at, claimed_at, completed_at, release_count, updated_at`,
			input.EntryID, input.AgentID, input.Now)

		var rec entryRecord
		if err := row.StructScan(&rec); err != nil {
			if err != sql.ErrNoRows {
				return fmt.Errorf("queue repo: complete entry: %w", err)
			}
			return r.classifyCompletionFailure(ctx, tx, input)
		}
		result.Entry = rec.toDomain()

		handleTime := time.Duration(0)
		if result.Entry.ClaimedAt != nil {
			handleTime = input.Now.Sub(*result.Entry.ClaimedAt)
		}

		disposition := domain.Disposition{
			ID:         uuid.New(),
			EntryID:    result.Entry.ID,
			CampaignID: result.Entry.CampaignID,
			ContactID:  result.Entry.ContactID,
			AgentID:    input.AgentID,
			Kind:       input.Kind,
			RawOutcome: input.RawOutcome,
			Notes:      input.Notes,
			CallbackAt: input.CallbackAt,
			HandleTime: handleTime,
			CreatedAt:  input.Now,
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO dispositions
			(id, entry_id, campaign_id, contact_id, agent_id, outcome, raw_outcome, notes, callback_at, handle_time_ms, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			disposition.ID, disposition.EntryID, disposition.CampaignID, disposition.ContactID,
			disposition.AgentID, string(disposition.Kind), disposition.RawOutcome, disposition.Notes,
			disposition.CallbackAt, disposition.HandleTime.Milliseconds(), disposition.CreatedAt,
		); err != nil {
			return fmt.Errorf("queue repo: insert disposition: %w", err)
		}
		result.Disposition = disposition

		nextStatus := domain.ContactStatusAfter(input.Kind)
		contactRow := tx.QueryRowxContext(ctx, `UPDATE contacts
			SET attempt_count = attempt_count + 1, last_attempt_at = $2, status = $3, updated_at = $2
			WHERE id = $1
			RETURNING `+contactColumns,
			result.Entry.ContactID, input.Now, string(nextStatus))

		var crec contactRecord
		if err := contactRow.StructScan(&crec); err != nil {
			return fmt.Errorf("queue repo: update contact: %w", err)
		}
		result.Contact = crec.toDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// classifyCompletionFailure distinguishes a missing entry from a lifecycle
// violation (already completed, released, or claimed by another agent).
func (r *QueueRepository) classifyCompletionFailure(ctx context.Context, tx *sqlx.Tx, input repository.CompleteOutcomeInput) error {
	var rec entryRecord
	row := tx.QueryRowxContext(ctx, `SELECT id, campaign_id, contact_id, status, agent_id, priority,
		enqueued_at, claimed_at, completed_at, release_count, updated_at
		FROM queue_entries WHERE id = $1`, input.EntryID)
	if err := row.StructScan(&rec); err != nil {
		if err == sql.ErrNoRows {
			return repository.ErrNotFound
		}
		return fmt.Errorf("queue repo: classify completion: %w", err)
	}

	if rec.Status != string(domain.EntryStatusClaimed) {
		return fmt.Errorf("%w: entry %s is %s, not claimed", repository.ErrInvalidState, input.EntryID, rec.Status)
	}
	return fmt.Errorf("%w: entry %s is claimed by another agent", repository.ErrInvalidState, input.EntryID)
}

// GetEntry fetches an entry by id.
func (r *QueueRepository) GetEntry(ctx context.Context, id uuid.UUID) (*domain.QueueEntry, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT id, campaign_id, contact_id, status, agent_id, priority,
		enqueued_at, claimed_at, completed_at, release_count, updated_at
		FROM queue_entries WHERE id = $1`, id)

	var rec entryRecord
	if err := row.StructScan(&rec); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("queue repo: get entry: %w", err)
	}
	entry := rec.toDomain()
	return &entry, nil
}

// ReleaseStale returns claimed entries older than the cutoff to queued state.
// SKIP LOCKED keeps the reaper from contending with in-flight completions.
func (r *QueueRepository) ReleaseStale(ctx context.Context, claimedBefore, now time.Time) ([]repository.ReleasedEntry, error) {
	rows, err := r.db.QueryxContext(ctx, `WITH stale AS (
		SELECT id, campaign_id, agent_id FROM queue_entries
		WHERE status = 'claimed' AND claimed_at < $1
		FOR UPDATE SKIP LOCKED
	)
	UPDATE queue_entries qe
	SET status = 'queued', agent_id = NULL, claimed_at = NULL,
	    release_count = qe.release_count + 1, updated_at = $2
	FROM stale
	WHERE qe.id = stale.id
	RETURNING qe.id, stale.campaign_id, stale.agent_id`, claimedBefore, now)
	if err != nil {
		return nil, fmt.Errorf("queue repo: release stale: %w", err)
	}
	defer rows.Close()

	var released []repository.ReleasedEntry
	for rows.Next() {
		var rec struct {
			ID         uuid.UUID `db:"id"`
			CampaignID uuid.UUID `db:"campaign_id"`
			AgentID    uuid.UUID `db:"agent_id"`
		}
		if err := rows.StructScan(&rec); err != nil {
			return nil, fmt.Errorf("queue repo: scan released: %w", err)
		}
		released = append(released, repository.ReleasedEntry{
			EntryID:    rec.ID,
			CampaignID: rec.CampaignID,
			AgentID:    rec.AgentID,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queue repo: rows err: %w", err)
	}
	return released, nil
}

// Stats aggregates queue counters for a campaign.
func (r *QueueRepository) Stats(ctx context.Context, campaignID uuid.UUID) (*domain.QueueStats, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT
		COUNT(*) FILTER (WHERE status = 'queued') AS queued_count,
		COUNT(*) FILTER (WHERE status = 'claimed') AS claimed_count,
		COUNT(*) FILTER (WHERE status = 'completed') AS completed_count,
		COALESCE(SUM(release_count), 0) AS released_count,
		COALESCE(EXTRACT(EPOCH FROM AVG(completed_at - claimed_at) FILTER (WHERE status = 'completed' AND claimed_at IS NOT NULL)), 0) AS avg_dial_seconds
	FROM queue_entries WHERE campaign_id = $1`, campaignID)

	var rec struct {
		QueuedCount    int64   `db:"queued_count"`
		ClaimedCount   int64   `db:"claimed_count"`
		CompletedCount int64   `db:"completed_count"`
		ReleasedCount  int64   `db:"released_count"`
		AvgDialSeconds float64 `db:"avg_dial_seconds"`
	}
	if err := row.StructScan(&rec); err != nil {
		return nil, fmt.Errorf("queue repo: stats: %w", err)
	}

	return &domain.QueueStats{
		QueuedCount:    rec.QueuedCount,
		ClaimedCount:   rec.ClaimedCount,
		CompletedCount: rec.CompletedCount,
		ReleasedCount:  rec.ReleasedCount,
		AvgDialTime:    time.Duration(rec.AvgDialSeconds * float64(time.Second)),
	}, nil
}

// RecentHandleTimes returns claim-to-completion durations for the most
// recently completed entries, newest first.
func (r *QueueRepository) RecentHandleTimes(ctx context.Context, campaignID uuid.UUID, limit int) ([]time.Duration, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryxContext(ctx, `SELECT EXTRACT(EPOCH FROM (completed_at - claimed_at)) AS seconds
		FROM queue_entries
		WHERE campaign_id = $1 AND status = 'completed' AND claimed_at IS NOT NULL AND completed_at IS NOT NULL
		ORDER BY completed_at DESC
		LIMIT $2`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("queue repo: recent handle times: %w", err)
	}
	defer rows.Close()

	var durations []time.Duration
	for rows.Next() {
		var seconds float64
		if err := rows.Scan(&seconds); err != nil {
			return nil, fmt.Errorf("queue repo: scan handle time: %w", err)
		}
		durations = append(durations, time.Duration(seconds*float64(time.Second)))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queue repo: rows err: %w", err)
	}
	return durations, nil
}

type entryRecord struct {
	ID           uuid.UUID      `db:"id"`
	CampaignID   uuid.UUID      `db:"campaign_id"`
	ContactID    uuid.UUID      `db:"contact_id"`
	Status       string         `db:"status"`
	AgentID      *uuid.UUID     `db:"agent_id"`
	Priority     int            `db:"priority"`
	EnqueuedAt   time.Time      `db:"enqueued_at"`
	ClaimedAt    sql.NullTime   `db:"claimed_at"`
	CompletedAt  sql.NullTime   `db:"completed_at"`
	ReleaseCount int            `db:"release_count"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r entryRecord) toDomain() domain.QueueEntry {
	entry := domain.QueueEntry{
		ID:           r.ID,
		CampaignID:   r.CampaignID,
		ContactID:    r.ContactID,
		Status:       domain.EntryStatus(r.Status),
		AgentID:      r.AgentID,
		Priority:     r.Priority,
		EnqueuedAt:   r.EnqueuedAt,
		ReleaseCount: r.ReleaseCount,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.ClaimedAt.Valid {
		t := r.ClaimedAt.Time
		entry.ClaimedAt = &t
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		entry.CompletedAt = &t
	}
	return entry
}
