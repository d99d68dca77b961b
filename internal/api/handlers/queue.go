package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/dial-queue/internal/domain"
	"github.com/acme/dial-queue/internal/service/common"
	"github.com/acme/dial-queue/internal/service/dialqueue"
	"github.com/acme/dial-queue/internal/service/phone"
	apperrors "github.com/acme/dial-queue/pkg/errors"
)

type refillRequest struct {
	MaxEntries int `json:"max_entries"`
}

type refillResponse struct {
	Created int `json:"created"`
}

type claimRequest struct {
	AgentID uuid.UUID `json:"agent_id"`
}

type queueEntryResponse struct {
	ID           uuid.UUID          `json:"id"`
	CampaignID   uuid.UUID          `json:"campaign_id"`
	ContactID    uuid.UUID          `json:"contact_id"`
	Status       domain.EntryStatus `json:"status"`
	EnqueuedAt   time.Time          `json:"enqueued_at"`
	ClaimedAt    *time.Time         `json:"claimed_at,omitempty"`
	ReleaseCount int                `json:"release_count"`
}

type contactResponse struct {
	ID            uuid.UUID            `json:"id"`
	FirstName     string               `json:"first_name"`
	LastName      string               `json:"last_name"`
	PrimaryPhone  string               `json:"primary_phone"`
	MobilePhone   *string              `json:"mobile_phone,omitempty"`
	WorkPhone     *string              `json:"work_phone,omitempty"`
	HomePhone     *string              `json:"home_phone,omitempty"`
	Status        domain.ContactStatus `json:"status"`
	AttemptCount  int                  `json:"attempt_count"`
	LastAttemptAt *time.Time           `json:"last_attempt_at,omitempty"`
}

type claimResponse struct {
	Available bool                `json:"available"`
	Entry     *queueEntryResponse `json:"entry,omitempty"`
	Contact   *contactResponse    `json:"contact,omitempty"`
}

type outcomeRequest struct {
	AgentID    uuid.UUID  `json:"agent_id"`
	Outcome    string     `json:"outcome"`
	Notes      string     `json:"notes"`
	CallbackAt *time.Time `json:"callback_at"`
}

type outcomeResponse struct {
	Entry   queueEntryResponse `json:"entry"`
	Contact contactResponse    `json:"contact"`
	Warning string             `json:"warning,omitempty"`
}

type queueStatsResponse struct {
	QueuedCount        int64   `json:"queued_count"`
	ClaimedCount       int64   `json:"claimed_count"`
	CompletedCount     int64   `json:"completed_count"`
	AvgDialTimeSeconds float64 `json:"avg_dial_time_seconds"`
}

type pacingResponse struct {
	RecommendedDepth     int     `json:"recommended_depth"`
	AvgHandleTimeSeconds float64 `json:"avg_handle_time_seconds"`
	AvailableAgents      int     `json:"available_agents"`
	DialRatio            float64 `json:"dial_ratio"`
}

type dispositionResponse struct {
	DispositionID uuid.UUID  `json:"disposition_id"`
	EntryID       uuid.UUID  `json:"entry_id"`
	ContactID     uuid.UUID  `json:"contact_id"`
	AgentID       uuid.UUID  `json:"agent_id"`
	Outcome       string     `json:"outcome"`
	RawOutcome    string     `json:"raw_outcome"`
	Notes         string     `json:"notes,omitempty"`
	CallbackAt    *time.Time `json:"callback_at,omitempty"`
	HandleTimeMs  int64      `json:"handle_time_ms"`
	CreatedAt     time.Time  `json:"created_at"`
}

type listDispositionsResponse struct {
	Dispositions []dispositionResponse `json:"dispositions"`
	NextPage     string                `json:"next_page_token,omitempty"`
}

func (h *HandlerSet) refillQueue(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	var req refillRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.queue.Materialize(ctx.Context(), id, req.MaxEntries)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(refillResponse{Created: result.Created})
}

func (h *HandlerSet) claimNext(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	var req claimRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	work, err := h.queue.ClaimNext(ctx.Context(), id, req.AgentID)
	if err != nil {
		return translateError(err)
	}
	if work == nil {
		// An empty queue is a normal answer, not an error.
		return ctx.Status(http.StatusOK).JSON(claimResponse{Available: false})
	}

	entry := toQueueEntryResponse(work.Entry)
	contact := toContactResponse(work.Contact)
	return ctx.Status(http.StatusOK).JSON(claimResponse{
		Available: true,
		Entry:     &entry,
		Contact:   &contact,
	})
}

func (h *HandlerSet) getQueueEntry(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid entry id")
	}

	entry, err := h.container.Repositories().Queue.GetEntry(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(toQueueEntryResponse(*entry))
}

// lookupContact resolves a raw phone number to its contact record. Used by
// agent tooling to check do-not-call status before a manual dial.
func (h *HandlerSet) lookupContact(ctx *fiber.Ctx) error {
	raw := ctx.Query("phone")
	if raw == "" {
		return fiber.NewError(http.StatusBadRequest, "phone query parameter is required")
	}

	canonical, err := phone.Canonicalize(raw, h.container.Config.Contacts.DefaultCountryCode)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "unparseable phone number")
	}

	contact, err := h.container.Repositories().Contacts.FindByPhone(ctx.Context(), canonical)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(toContactResponse(*contact))
}

func (h *HandlerSet) recordOutcome(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid entry id")
	}

	var req outcomeRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.queue.RecordOutcome(ctx.Context(), dialqueue.RecordOutcomeInput{
		EntryID:    id,
		AgentID:    req.AgentID,
		Outcome:    req.Outcome,
		Notes:      req.Notes,
		CallbackAt: req.CallbackAt,
	})
	if err != nil {
		// An unknown outcome code is persisted before being flagged, so the
		// response still carries the recorded disposition.
		if result != nil && errors.Is(err, apperrors.ErrValidation) {
			return ctx.Status(http.StatusBadRequest).JSON(outcomeResponse{
				Entry:   toQueueEntryResponse(result.Entry),
				Contact: toContactResponse(result.Contact),
				Warning: err.Error(),
			})
		}
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(outcomeResponse{
		Entry:   toQueueEntryResponse(result.Entry),
		Contact: toContactResponse(result.Contact),
	})
}

func (h *HandlerSet) queueStats(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	stats, err := h.queue.QueueStats(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(queueStatsResponse{
		QueuedCount:        stats.QueuedCount,
		ClaimedCount:       stats.ClaimedCount,
		CompletedCount:     stats.CompletedCount,
		AvgDialTimeSeconds: stats.AvgDialTime.Seconds(),
	})
}

func (h *HandlerSet) pacingRecommendation(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	recommendation, err := h.pacing.Recommend(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(pacingResponse{
		RecommendedDepth:     recommendation.RecommendedDepth,
		AvgHandleTimeSeconds: recommendation.AvgHandleTime.Seconds(),
		AvailableAgents:      recommendation.AvailableAgents,
		DialRatio:            recommendation.DialRatio,
	})
}

func (h *HandlerSet) listDispositions(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	limit, _ := strconv.Atoi(ctx.Query("limit", "100"))
	pagingState, err := common.DecodePageToken(ctx.Query("page_token", ""))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid page token")
	}

	records, nextState, err := h.container.Repositories().Audit.ListByCampaign(ctx.Context(), id, limit, pagingState)
	if err != nil {
		return translateError(err)
	}

	resp := listDispositionsResponse{Dispositions: make([]dispositionResponse, 0, len(records))}
	for _, record := range records {
		resp.Dispositions = append(resp.Dispositions, dispositionResponse{
			DispositionID: record.DispositionID,
			EntryID:       record.EntryID,
			ContactID:     record.ContactID,
			AgentID:       record.AgentID,
			Outcome:       record.Outcome,
			RawOutcome:    record.RawOutcome,
			Notes:         record.Notes,
			CallbackAt:    record.CallbackAt,
			HandleTimeMs:  record.HandleTimeMs,
			CreatedAt:     record.CreatedAt,
		})
	}
	resp.NextPage = common.EncodePageToken(nextState)

	return ctx.Status(http.StatusOK).JSON(resp)
}

func toQueueEntryResponse(entry domain.QueueEntry) queueEntryResponse {
	return queueEntryResponse{
		ID:           entry.ID,
		CampaignID:   entry.CampaignID,
		ContactID:    entry.ContactID,
		Status:       entry.Status,
		EnqueuedAt:   entry.EnqueuedAt,
		ClaimedAt:    entry.ClaimedAt,
		ReleaseCount: entry.ReleaseCount,
	}
}

func toContactResponse(contact domain.Contact) contactResponse {
	return contactResponse{
		ID:            contact.ID,
		FirstName:     contact.FirstName,
		LastName:      contact.LastName,
		PrimaryPhone:  contact.PrimaryPhone,
		MobilePhone:   contact.MobilePhone,
		WorkPhone:     contact.WorkPhone,
		HomePhone:     contact.HomePhone,
		Status:        contact.Status,
		AttemptCount:  contact.AttemptCount,
		LastAttemptAt: contact.LastAttemptAt,
	}
}
