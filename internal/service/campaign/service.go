package campaign

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/acme/dial-queue/internal/domain"
	"github.com/acme/dial-queue/internal/repository"
	"github.com/acme/dial-queue/internal/service/phone"
	apperrors "github.com/acme/dial-queue/pkg/errors"
)

// Service orchestrates campaign lifecycle and contact list imports.
type Service struct {
	repo             repository.CampaignRepository
	contacts         repository.ContactRepository
	defaultDialRatio float64
	defaultCountry   string
}

// NewService constructs a campaign service.
func NewService(
	repo repository.CampaignRepository,
	contacts repository.ContactRepository,
	defaultDialRatio float64,
	defaultCountry string,
) *Service {
	if defaultDialRatio <= 0 {
		defaultDialRatio = 1.0
	}
	if defaultCountry == "" {
		defaultCountry = "1"
	}
	return &Service{
		repo:             repo,
		contacts:         contacts,
		defaultDialRatio: defaultDialRatio,
		defaultCountry:   defaultCountry,
	}
}

// CreateCampaignInput captures campaign creation parameters.
type CreateCampaignInput struct {
	Name            string
	Description     string
	TimeZone        string
	DialMethod      domain.DialMethod
	DialRatio       float64
	RecordingPolicy string
	CallingHours    []CallingHourInput
}

// CallingHourInput expresses an allowed calling window.
type CallingHourInput struct {
	DayOfWeek time.Weekday
	Start     time.Time
	End       time.Time
}

// UpdateCampaignInput captures updatable properties.
type UpdateCampaignInput struct {
	ID              uuid.UUID
	Name            *string
	Description     *string
	DialMethod      *domain.DialMethod
	DialRatio       *float64
	RecordingPolicy *string
	CallingHours    *[]CallingHourInput
}

// ContactInput is one row of a contact list import. Phone numbers arrive in
// whatever shape the upstream CRM exported them.
type ContactInput struct {
	FirstName    string
	LastName     string
	PrimaryPhone string
	MobilePhone  string
	WorkPhone    string
	HomePhone    string
	Priority     int
}

// ImportResult reports what a contact list import produced.
type ImportResult struct {
	ListID   uuid.UUID
	Imported int
	Rejected []RejectedContact
}

// RejectedContact names an import row that failed canonicalization.
type RejectedContact struct {
	Index  int
	Phone  string
	Reason string
}

// Create provisions a new campaign. Campaigns start inactive.
func (s *Service) Create(ctx context.Context, input CreateCampaignInput) (*domain.Campaign, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	campaign := &domain.Campaign{
		ID:              uuid.New(),
		Name:            input.Name,
		Description:     input.Description,
		TimeZone:        input.TimeZone,
		DialMethod:      input.DialMethod,
		DialRatio:       s.resolveRatio(input.DialMethod, input.DialRatio),
		RecordingPolicy: input.RecordingPolicy,
		Active:          false,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, campaign); err != nil {
		return nil, fmt.Errorf("campaign service: create campaign: %w", err)
	}

	if err := s.repo.ReplaceCallingHours(ctx, campaign.ID, toDomainCallingHours(input.CallingHours)); err != nil {
		return nil, fmt.Errorf("campaign service: store calling hours: %w", err)
	}

	return campaign, nil
}

// Get retrieves a campaign by id including calling hours.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	campaign, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	windows, err := s.repo.ListCallingHours(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("campaign service: list calling hours: %w", err)
	}
	campaign.CallingHours = windows
	return campaign, nil
}

// List returns campaigns after the given cursor.
func (s *Service) List(ctx context.Context, afterID *uuid.UUID, limit int) ([]*domain.Campaign, error) {
	return s.repo.List(ctx, afterID, limit)
}

// Update modifies campaign metadata.
func (s *Service) Update(ctx context.Context, input UpdateCampaignInput) (*domain.Campaign, error) {
	campaign, err := s.repo.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		campaign.Name = *input.Name
	}
	if input.Description != nil {
		campaign.Description = *input.Description
	}
	if input.DialMethod != nil {
		if !validDialMethod(*input.DialMethod) {
			return nil, fmt.Errorf("%w: unknown dial method %q", apperrors.ErrValidation, *input.DialMethod)
		}
		campaign.DialMethod = *input.DialMethod
	}
	if input.DialRatio != nil {
		campaign.DialRatio = s.resolveRatio(campaign.DialMethod, *input.DialRatio)
	}
	if input.RecordingPolicy != nil {
		campaign.RecordingPolicy = *input.RecordingPolicy
	}

	campaign.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, campaign); err != nil {
		return nil, err
	}

	if input.CallingHours != nil {
		for _, window := range *input.CallingHours {
			if window.Start.Equal(window.End) {
				return nil, fmt.Errorf("%w: calling hour window must have positive duration", apperrors.ErrValidation)
			}
		}
		if err := s.repo.ReplaceCallingHours(ctx, campaign.ID, toDomainCallingHours(*input.CallingHours)); err != nil {
			return nil, fmt.Errorf("campaign service: update calling hours: %w", err)
		}
	}

	return campaign, nil
}

// Activate makes the campaign eligible for refilling and claiming.
func (s *Service) Activate(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	return s.repo.SetActive(ctx, id, true)
}

// Pause stops refilling and claiming. Entries already claimed drain normally.
func (s *Service) Pause(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	return s.repo.SetActive(ctx, id, false)
}

// ImportContacts creates a contact list under the campaign and bulk-imports
// the rows. Every phone number is canonicalized to the single stored normal
// form; rows whose primary number fails canonicalization are rejected, rows
// with bad secondary numbers keep the good ones.
func (s *Service) ImportContacts(ctx context.Context, campaignID uuid.UUID, listName string, inputs []ContactInput) (*ImportResult, error) {
	if listName == "" {
		return nil, fmt.Errorf("%w: list name is required", apperrors.ErrValidation)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: contact list is empty", apperrors.ErrValidation)
	}

	if _, err := s.repo.Get(ctx, campaignID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	list := &domain.ContactList{
		ID:         uuid.New(),
		CampaignID: campaignID,
		Name:       listName,
		CreatedAt:  now,
	}
	if err := s.contacts.CreateList(ctx, list); err != nil {
		return nil, fmt.Errorf("campaign service: create contact list: %w", err)
	}

	records := make([]repository.ContactRecord, 0, len(inputs))
	var rejected []RejectedContact
	for i, in := range inputs {
		primary, err := phone.Canonicalize(in.PrimaryPhone, s.defaultCountry)
		if err != nil {
			rejected = append(rejected, RejectedContact{Index: i, Phone: in.PrimaryPhone, Reason: err.Error()})
			continue
		}
		records = append(records, repository.ContactRecord{
			ID:           uuid.New(),
			ListID:       list.ID,
			FirstName:    in.FirstName,
			LastName:     in.LastName,
			PrimaryPhone: primary,
			MobilePhone:  s.optionalPhone(in.MobilePhone),
			WorkPhone:    s.optionalPhone(in.WorkPhone),
			HomePhone:    s.optionalPhone(in.HomePhone),
			Priority:     in.Priority,
			CreatedAt:    now,
		})
	}

	imported := 0
	if len(records) > 0 {
		n, err := s.contacts.BulkImport(ctx, list.ID, records)
		if err != nil {
			return nil, fmt.Errorf("campaign service: import contacts: %w", err)
		}
		imported = n
	}

	return &ImportResult{ListID: list.ID, Imported: imported, Rejected: rejected}, nil
}

func (s *Service) optionalPhone(raw string) *string {
	if raw == "" {
		return nil
	}
	canonical, err := phone.Canonicalize(raw, s.defaultCountry)
	if err != nil {
		return nil
	}
	return &canonical
}

// resolveRatio pins non-predictive campaigns to 1.0 so a stale ratio can
// never leak into pacing if the method changes later.
func (s *Service) resolveRatio(method domain.DialMethod, ratio float64) float64 {
	if method != domain.DialMethodPredictive {
		return 1.0
	}
	if ratio <= 0 {
		return s.defaultDialRatio
	}
	return ratio
}

func validDialMethod(method domain.DialMethod) bool {
	switch method {
	case domain.DialMethodPreview, domain.DialMethodProgressive, domain.DialMethodPredictive:
		return true
	default:
		return false
	}
}

func toDomainCallingHours(inputs []CallingHourInput) []domain.CallingHourWindow {
	windows := make([]domain.CallingHourWindow, 0, len(inputs))
	for _, in := range inputs {
		windows = append(windows, domain.CallingHourWindow{
			DayOfWeek: in.DayOfWeek,
			Start:     in.Start,
			End:       in.End,
		})
	}
	return windows
}

func validateCreateInput(input CreateCampaignInput) error {
	if input.Name == "" {
		return fmt.Errorf("%w: campaign name is required", apperrors.ErrValidation)
	}
	if input.TimeZone == "" {
		return fmt.Errorf("%w: time zone is required", apperrors.ErrValidation)
	}
	if _, err := time.LoadLocation(input.TimeZone); err != nil {
		return fmt.Errorf("%w: invalid time zone %s: %v", apperrors.ErrValidation, input.TimeZone, err)
	}
	if !validDialMethod(input.DialMethod) {
		return fmt.Errorf("%w: unknown dial method %q", apperrors.ErrValidation, input.DialMethod)
	}
	if input.DialMethod == domain.DialMethodPredictive && input.DialRatio < 0 {
		return fmt.Errorf("%w: dial ratio cannot be negative", apperrors.ErrValidation)
	}
	for _, window := range input.CallingHours {
		if window.Start.Equal(window.End) {
			return fmt.Errorf("%w: calling hour window must have positive duration", apperrors.ErrValidation)
		}
	}
	return nil
}
