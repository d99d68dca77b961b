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

// CampaignRepository implements repository.CampaignRepository using PostgreSQL.
type CampaignRepository struct {
	db *sqlx.DB
}

// NewCampaignRepository constructs a new repository.
func NewCampaignRepository(db *sqlx.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

const campaignColumns = `id, name, description, time_zone, dial_method, dial_ratio, recording_policy, active, created_at, updated_at`

// Create inserts a new campaign.
func (r *CampaignRepository) Create(ctx context.Context, campaign *domain.Campaign) error {
	q := `INSERT INTO campaigns (` + campaignColumns + `) VALUES (
		:id, :name, :description, :time_zone, :dial_method, :dial_ratio, :recording_policy, :active, :created_at, :updated_at
	)`

	if _, err := r.db.NamedExecContext(ctx, q, campaignParams(campaign)); err != nil {
		return fmt.Errorf("campaign repo: insert: %w", err)
	}
	return nil
}

// Get fetches a campaign by id.
func (r *CampaignRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)

	var record campaignRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("campaign repo: get: %w", err)
	}

	campaign := record.toDomain()
	return &campaign, nil
}

// Update updates campaign configuration.
func (r *CampaignRepository) Update(ctx context.Context, campaign *domain.Campaign) error {
	q := `UPDATE campaigns SET
		name = :name,
		description = :description,
		time_zone = :time_zone,
		dial_method = :dial_method,
		dial_ratio = :dial_ratio,
		recording_policy = :recording_policy,
		active = :active,
		updated_at = :updated_at
	 WHERE id = :id`

	res, err := r.db.NamedExecContext(ctx, q, campaignParams(campaign))
	if err != nil {
		return fmt.Errorf("campaign repo: update: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("campaign repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SetActive flips the active flag.
func (r *CampaignRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE campaigns SET active = $1, updated_at = NOW() WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("campaign repo: set active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("campaign repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// List returns campaigns with optional keyset pagination.
func (r *CampaignRepository) List(ctx context.Context, afterID *uuid.UUID, limit int) ([]*domain.Campaign, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows *sqlx.Rows
	var err error
	if afterID != nil {
		rows, err = r.db.QueryxContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id > $1 ORDER BY id ASC LIMIT $2`, *afterID, limit)
	} else {
		rows, err = r.db.QueryxContext(ctx, `SELECT `+campaignColumns+` FROM campaigns ORDER BY id ASC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("campaign repo: list: %w", err)
	}
	defer rows.Close()

	return scanCampaigns(rows)
}

// ListActive returns active campaigns for the refiller.
func (r *CampaignRepository) ListActive(ctx context.Context, limit int) ([]*domain.Campaign, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryxContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE active ORDER BY updated_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("campaign repo: list active: %w", err)
	}
	defer rows.Close()

	return scanCampaigns(rows)
}

// ReplaceCallingHours replaces all calling-hour windows for a campaign.
func (r *CampaignRepository) ReplaceCallingHours(ctx context.Context, campaignID uuid.UUID, windows []domain.CallingHourWindow) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM campaign_calling_hours WHERE campaign_id = $1`, campaignID); err != nil {
			return fmt.Errorf("calling hours: delete existing: %w", err)
		}

		if len(windows) == 0 {
			return nil
		}

		stmt, err := tx.PreparexContext(ctx, `INSERT INTO campaign_calling_hours (campaign_id, day_of_week, start_minute, end_minute) VALUES ($1, $2, $3, $4)`)
		if err != nil {
			return fmt.Errorf("calling hours: prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, w := range windows {
			start := w.Start.Hour()*60 + w.Start.Minute()
			end := w.End.Hour()*60 + w.End.Minute()
			if _, err := stmt.ExecContext(ctx, campaignID, int(w.DayOfWeek), start, end); err != nil {
				return fmt.Errorf("calling hours: insert: %w", err)
			}
		}
		return nil
	})
}

// ListCallingHours retrieves calling-hour windows for a campaign.
func (r *CampaignRepository) ListCallingHours(ctx context.Context, campaignID uuid.UUID) ([]domain.CallingHourWindow, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT day_of_week, start_minute, end_minute FROM campaign_calling_hours WHERE campaign_id = $1 ORDER BY day_of_week, start_minute`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("calling hours: query: %w", err)
	}
	defer rows.Close()

	var windows []domain.CallingHourWindow
	for rows.Next() {
		var row struct {
			Day      int `db:"day_of_week"`
			StartMin int `db:"start_minute"`
			EndMin   int `db:"end_minute"`
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("calling hours: scan: %w", err)
		}

		windows = append(windows, domain.CallingHourWindow{
			DayOfWeek: time.Weekday(row.Day),
			Start:     minuteToTime(row.StartMin),
			End:       minuteToTime(row.EndMin),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("calling hours: rows err: %w", err)
	}

	return windows, nil
}

func scanCampaigns(rows *sqlx.Rows) ([]*domain.Campaign, error) {
	var results []*domain.Campaign
	for rows.Next() {
		var record campaignRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("campaign repo: scan: %w", err)
		}
		campaign := record.toDomain()
		results = append(results, &campaign)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("campaign repo: rows err: %w", err)
	}
	return results, nil
}

func campaignParams(campaign *domain.Campaign) map[string]any {
	return map[string]any{
		"id":               campaign.ID,
		"name":             campaign.Name,
		"description":      campaign.Description,
		"time_zone":        campaign.TimeZone,
		"dial_method":      string(campaign.DialMethod),
		"dial_ratio":       campaign.DialRatio,
		"recording_policy": campaign.RecordingPolicy,
		"active":           campaign.Active,
		"created_at":       campaign.CreatedAt,
		"updated_at":       campaign.UpdatedAt,
	}
}

func minuteToTime(min int) time.Time {
	hour := min / 60
	minute := min % 60
	return time.Date(2000, time.January, 1, hour, minute, 0, 0, time.UTC)
}

type campaignRecord struct {
	ID              uuid.UUID      `db:"id"`
	Name            string         `db:"name"`
	Description     sql.NullString `db:"description"`
	TimeZone        string         `db:"time_zone"`
	DialMethod      string         `db:"dial_method"`
	DialRatio       float64        `db:"dial_ratio"`
	RecordingPolicy string         `db:"recording_policy"`
	Active          bool           `db:"active"`
	CreatedAt       sql.NullTime   `db:"created_at"`
	UpdatedAt       sql.NullTime   `db:"updated_at"`
}

func (r campaignRecord) toDomain() domain.Campaign {
	campaign := domain.Campaign{
		ID:              r.ID,
		Name:            r.Name,
		Description:     r.Description.String,
		TimeZone:        r.TimeZone,
		DialMethod:      domain.DialMethod(r.DialMethod),
		DialRatio:       r.DialRatio,
		RecordingPolicy: r.RecordingPolicy,
		Active:          r.Active,
	}
	if r.CreatedAt.Valid {
		campaign.CreatedAt = r.CreatedAt.Time
	}
	if r.UpdatedAt.Valid {
		campaign.UpdatedAt = r.UpdatedAt.Time
	}
	return campaign
}
