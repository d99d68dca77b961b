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

const contactColumns = `id, list_id, first_name, last_name, primary_phone, mobile_phone, work_phone, home_phone,
	status, priority, attempt_count, last_attempt_at, created_at, updated_at`

const contactSelect = `SELECT ` + contactColumns + ` FROM contacts`

// ContactRepository is the durable contact pool store.
type ContactRepository struct {
	db *sqlx.DB
}

// NewContactRepository constructs the repository.
func NewContactRepository(db *sqlx.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// CreateList inserts a contact list header.
func (r *ContactRepository) CreateList(ctx context.Context, list *domain.ContactList) error {
	if _, err := r.db.ExecContext(ctx, `INSERT INTO contact_lists (id, campaign_id, name, created_at)
		VALUES ($1, $2, $3, $4)`,
		list.ID, list.CampaignID, list.Name, list.CreatedAt,
	); err != nil {
		return fmt.Errorf("contact repo: create list: %w", err)
	}
	return nil
}

// BulkImport inserts a batch of contacts in "new" status. Duplicate primary
// phones within a list are skipped, not errors.
func (r *ContactRepository) BulkImport(ctx context.Context, listID uuid.UUID, contacts []repository.ContactRecord) (int, error) {
	if len(contacts) == 0 {
		return 0, nil
	}

	query := `INSERT INTO contacts (
		id, list_id, first_name, last_name, primary_phone, mobile_phone, work_phone, home_phone,
		status, priority, attempt_count, created_at, updated_at
	) VALUES (:id, :list_id, :first_name, :last_name, :primary_phone, :mobile_phone, :work_phone, :home_phone,
		'new', :priority, 0, :created_at, :created_at)
	ON CONFLICT (list_id, primary_phone) DO NOTHING`

	rows := make([]map[string]any, 0, len(contacts))
	for _, c := range contacts {
		rows = append(rows, map[string]any{
			"id":            c.ID,
			"list_id":       listID,
			"first_name":    c.FirstName,
			"last_name":     c.LastName,
			"primary_phone": c.PrimaryPhone,
			"mobile_phone":  c.MobilePhone,
			"work_phone":    c.WorkPhone,
			"home_phone":    c.HomePhone,
			"priority":      c.Priority,
			"created_at":    c.CreatedAt,
		})
	}

	res, err := r.db.NamedExecContext(ctx, query, rows)
	if err != nil {
		return 0, fmt.Errorf("contact repo: bulk import: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("contact repo: rows affected: %w", err)
	}
	return int(n), nil
}

// Get fetches a contact by id.
func (r *ContactRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Contact, error) {
	row := r.db.QueryRowxContext(ctx, contactSelect+` WHERE id = $1`, id)

	var rec contactRecord
	if err := row.StructScan(&rec); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("contact repo: get: %w", err)
	}
	contact := rec.toDomain()
	return &contact, nil
}

// FindByPhone locates a contact by canonical phone number on any of its
// stored numbers. Numbers are stored in one strict normal form, so lookup is
// a plain equality match.
func (r *ContactRepository) FindByPhone(ctx context.Context, phone string) (*domain.Contact, error) {
	row := r.db.QueryRowxContext(ctx, contactSelect+`
		WHERE primary_phone = $1 OR mobile_phone = $1 OR work_phone = $1 OR home_phone = $1
		LIMIT 1`, phone)

	var rec contactRecord
	if err := row.StructScan(&rec); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("contact repo: find by phone: %w", err)
	}
	contact := rec.toDomain()
	return &contact, nil
}

type contactRecord struct {
	ID            uuid.UUID    `db:"id"`
	ListID        uuid.UUID    `db:"list_id"`
	FirstName     string       `db:"first_name"`
	LastName      string       `db:"last_name"`
	PrimaryPhone  string       `db:"primary_phone"`
	MobilePhone   *string      `db:"mobile_phone"`
	WorkPhone     *string      `db:"work_phone"`
	HomePhone     *string      `db:"home_phone"`
	Status        string       `db:"status"`
	Priority      int          `db:"priority"`
	AttemptCount  int          `db:"attempt_count"`
	LastAttemptAt sql.NullTime `db:"last_attempt_at"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
}

func (r contactRecord) toDomain() domain.Contact {
	contact := domain.Contact{
		ID:           r.ID,
		ListID:       r.ListID,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		PrimaryPhone: r.PrimaryPhone,
		MobilePhone:  r.MobilePhone,
		WorkPhone:    r.WorkPhone,
		HomePhone:    r.HomePhone,
		Status:       domain.ContactStatus(r.Status),
		Priority:     r.Priority,
		AttemptCount: r.AttemptCount,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.LastAttemptAt.Valid {
		t := r.LastAttemptAt.Time
		contact.LastAttemptAt = &t
	}
	return contact
}
