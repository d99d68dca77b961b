package campaign

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/dial-queue/internal/domain"
	"github.com/acme/dial-queue/internal/repository"
	apperrors "github.com/acme/dial-queue/pkg/errors"
)

type fakeCampaignRepo struct {
	campaigns map[uuid.UUID]*domain.Campaign
	windows   map[uuid.UUID][]domain.CallingHourWindow
	active    map[uuid.UUID]bool
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{
		campaigns: make(map[uuid.UUID]*domain.Campaign),
		windows:   make(map[uuid.UUID][]domain.CallingHourWindow),
		active:    make(map[uuid.UUID]bool),
	}
}

func (f *fakeCampaignRepo) Create(ctx context.Context, campaign *domain.Campaign) error {
	f.campaigns[campaign.ID] = campaign
	return nil
}

func (f *fakeCampaignRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	c, ok := f.campaigns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (f *fakeCampaignRepo) Update(ctx context.Context, campaign *domain.Campaign) error {
	if _, ok := f.campaigns[campaign.ID]; !ok {
		return repository.ErrNotFound
	}
	f.campaigns[campaign.ID] = campaign
	return nil
}

func (f *fakeCampaignRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	f.active[id] = active
	return nil
}

func (f *fakeCampaignRepo) List(ctx context.Context, afterID *uuid.UUID, limit int) ([]*domain.Campaign, error) {
	return nil, nil
}

func (f *fakeCampaignRepo) ListActive(ctx context.Context, limit int) ([]*domain.Campaign, error) {
	return nil, nil
}

func (f *fakeCampaignRepo) ReplaceCallingHours(ctx context.Context, campaignID uuid.UUID, windows []domain.CallingHourWindow) error {
	f.windows[campaignID] = windows
	return nil
}

func (f *fakeCampaignRepo) ListCallingHours(ctx context.Context, campaignID uuid.UUID) ([]domain.CallingHourWindow, error) {
	return f.windows[campaignID], nil
}

type fakeContactRepo struct {
	lists    map[uuid.UUID]*domain.ContactList
	imported map[uuid.UUID][]repository.ContactRecord
}

func newFakeContactRepo() *fakeContactRepo {
	return &fakeContactRepo{
		lists:    make(map[uuid.UUID]*domain.ContactList),
		imported: make(map[uuid.UUID][]repository.ContactRecord),
	}
}

func (f *fakeContactRepo) CreateList(ctx context.Context, list *domain.ContactList) error {
	f.lists[list.ID] = list
	return nil
}

func (f *fakeContactRepo) BulkImport(ctx context.Context, listID uuid.UUID, contacts []repository.ContactRecord) (int, error) {
	f.imported[listID] = append(f.imported[listID], contacts...)
	return len(contacts), nil
}

func (f *fakeContactRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Contact, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeContactRepo) FindByPhone(ctx context.Context, phone string) (*domain.Contact, error) {
	return nil, repository.ErrNotFound
}

func newTestService() (*Service, *fakeCampaignRepo, *fakeContactRepo) {
	campaigns := newFakeCampaignRepo()
	contacts := newFakeContactRepo()
	return NewService(campaigns, contacts, 1.3, "1"), campaigns, contacts
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService()

	cases := []struct {
		name  string
		input CreateCampaignInput
	}{
		{"missing name", CreateCampaignInput{TimeZone: "UTC", DialMethod: domain.DialMethodPreview}},
		{"missing timezone", CreateCampaignInput{Name: "x", DialMethod: domain.DialMethodPreview}},
		{"bad timezone", CreateCampaignInput{Name: "x", TimeZone: "Mars/Olympus", DialMethod: domain.DialMethodPreview}},
		{"bad dial method", CreateCampaignInput{Name: "x", TimeZone: "UTC", DialMethod: "turbo"}},
	}
	for _, tc := range cases {
		if _, err := svc.Create(context.Background(), tc.input); !errors.Is(err, apperrors.ErrValidation) {
			t.Errorf("%s: expected ErrValidation, got %v", tc.name, err)
		}
	}
}

func TestCreateStartsInactive(t *testing.T) {
	svc, _, _ := newTestService()

	campaign, err := svc.Create(context.Background(), CreateCampaignInput{
		Name:       "spring-drive",
		TimeZone:   "America/Chicago",
		DialMethod: domain.DialMethodPredictive,
		DialRatio:  1.8,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if campaign.Active {
		t.Fatalf("new campaigns must start inactive")
	}
	if campaign.DialRatio != 1.8 {
		t.Fatalf("expected ratio 1.8, got %v", campaign.DialRatio)
	}
}

func TestCreateRatioPinnedForNonPredictive(t *testing.T) {
	svc, _, _ := newTestService()

	campaign, err := svc.Create(context.Background(), CreateCampaignInput{
		Name:       "followups",
		TimeZone:   "UTC",
		DialMethod: domain.DialMethodProgressive,
		DialRatio:  3.0,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if campaign.DialRatio != 1.0 {
		t.Fatalf("progressive campaigns pin ratio to 1.0, got %v", campaign.DialRatio)
	}
}

func TestCreateDefaultRatio(t *testing.T) {
	svc, _, _ := newTestService()

	campaign, err := svc.Create(context.Background(), CreateCampaignInput{
		Name:       "renewals",
		TimeZone:   "UTC",
		DialMethod: domain.DialMethodPredictive,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if campaign.DialRatio != 1.3 {
		t.Fatalf("expected configured default 1.3, got %v", campaign.DialRatio)
	}
}

func TestActivatePause(t *testing.T) {
	svc, repo, _ := newTestService()

	campaign, err := svc.Create(context.Background(), CreateCampaignInput{
		Name: "winback", TimeZone: "UTC", DialMethod: domain.DialMethodProgressive,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Activate(context.Background(), campaign.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if !repo.active[campaign.ID] {
		t.Fatalf("expected campaign active")
	}
	if err := svc.Pause(context.Background(), campaign.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if repo.active[campaign.ID] {
		t.Fatalf("expected campaign paused")
	}

	if err := svc.Activate(context.Background(), uuid.New()); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestImportContactsCanonicalizes(t *testing.T) {
	svc, _, contacts := newTestService()

	campaign, err := svc.Create(context.Background(), CreateCampaignInput{
		Name: "leads", TimeZone: "UTC", DialMethod: domain.DialMethodPreview,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := svc.ImportContacts(context.Background(), campaign.ID, "march-export", []ContactInput{
		{FirstName: "Ada", LastName: "Nguyen", PrimaryPhone: "(212) 555-0142", MobilePhone: "+44 20 7946 0958"},
		{FirstName: "Sam", LastName: "Ortiz", PrimaryPhone: "212.555.0199", WorkPhone: "bad"},
		{FirstName: "Broken", LastName: "Row", PrimaryPhone: "no digits here"},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.Imported != 2 {
		t.Fatalf("expected 2 imported, got %d", result.Imported)
	}
	if len(result.Rejected) != 1 || result.Rejected[0].Index != 2 {
		t.Fatalf("expected row 2 rejected, got %+v", result.Rejected)
	}

	rows := contacts.imported[result.ListID]
	if rows[0].PrimaryPhone != "+12125550142" {
		t.Errorf("expected canonical primary, got %q", rows[0].PrimaryPhone)
	}
	if rows[0].MobilePhone == nil || *rows[0].MobilePhone != "+442079460958" {
		t.Errorf("expected canonical mobile, got %v", rows[0].MobilePhone)
	}
	if rows[1].WorkPhone != nil {
		t.Errorf("uncanonicalizable secondary number should be dropped, got %v", rows[1].WorkPhone)
	}
}

func TestImportContactsValidation(t *testing.T) {
	svc, _, _ := newTestService()

	if _, err := svc.ImportContacts(context.Background(), uuid.New(), "", []ContactInput{{PrimaryPhone: "x"}}); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected ErrValidation for missing list name, got %v", err)
	}
	if _, err := svc.ImportContacts(context.Background(), uuid.New(), "list", nil); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty list, got %v", err)
	}
	if _, err := svc.ImportContacts(context.Background(), uuid.New(), "list", []ContactInput{{PrimaryPhone: "2125550100"}}); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown campaign, got %v", err)
	}
}

func TestUpdateCallingHours(t *testing.T) {
	svc, repo, _ := newTestService()

	campaign, err := svc.Create(context.Background(), CreateCampaignInput{
		Name: "eve-shift", TimeZone: "UTC", DialMethod: domain.DialMethodProgressive,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	windows := []CallingHourInput{{
		DayOfWeek: time.Wednesday,
		Start:     time.Date(0, 1, 1, 17, 0, 0, 0, time.UTC),
		End:       time.Date(0, 1, 1, 21, 0, 0, 0, time.UTC),
	}}
	if _, err := svc.Update(context.Background(), UpdateCampaignInput{ID: campaign.ID, CallingHours: &windows}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(repo.windows[campaign.ID]) != 1 {
		t.Fatalf("expected stored window")
	}

	got, err := svc.Get(context.Background(), campaign.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.CallingHours) != 1 || got.CallingHours[0].DayOfWeek != time.Wednesday {
		t.Fatalf("expected calling hours on get, got %+v", got.CallingHours)
	}
}
