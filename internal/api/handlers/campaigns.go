package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/dial-queue/internal/domain"
	campaignsvc "github.com/acme/dial-queue/internal/service/campaign"
	apperrors "github.com/acme/dial-queue/pkg/errors"
)

type createCampaignRequest struct {
	Name            string               `json:"name"`
	Description     string               `json:"description"`
	TimeZone        string               `json:"time_zone"`
	DialMethod      string               `json:"dial_method"`
	DialRatio       float64              `json:"dial_ratio"`
	RecordingPolicy string               `json:"recording_policy"`
	CallingHours    []callingHourRequest `json:"calling_hours"`
}

type callingHourRequest struct {
	DayOfWeek int    `json:"day_of_week"`
	Start     string `json:"start"`
	End       string `json:"end"`
}

type campaignResponse struct {
	ID              uuid.UUID             `json:"id"`
	Name            string                `json:"name"`
	Description     string                `json:"description"`
	TimeZone        string                `json:"time_zone"`
	DialMethod      domain.DialMethod     `json:"dial_method"`
	DialRatio       float64               `json:"dial_ratio"`
	RecordingPolicy string                `json:"recording_policy"`
	Active          bool                  `json:"active"`
	CallingHours    []callingHourResponse `json:"calling_hours"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

type callingHourResponse struct {
	DayOfWeek int    `json:"day_of_week"`
	Start     string `json:"start"`
	End       string `json:"end"`
}

type listCampaignsResponse struct {
	Campaigns []campaignResponse `json:"campaigns"`
}

type contactRequest struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	PrimaryPhone string `json:"primary_phone"`
	MobilePhone  string `json:"mobile_phone"`
	WorkPhone    string `json:"work_phone"`
	HomePhone    string `json:"home_phone"`
	Priority     int    `json:"priority"`
}

type importContactsRequest struct {
	ListName string           `json:"list_name"`
	Contacts []contactRequest `json:"contacts"`
}

type rejectedContactResponse struct {
	Index  int    `json:"index"`
	Phone  string `json:"phone"`
	Reason string `json:"reason"`
}

type importContactsResponse struct {
	ListID   uuid.UUID                 `json:"list_id"`
	Imported int                       `json:"imported"`
	Rejected []rejectedContactResponse `json:"rejected,omitempty"`
}

func (h *HandlerSet) createCampaign(ctx *fiber.Ctx) error {
	var req createCampaignRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	input, err := toCreateCampaignInput(req)
	if err != nil {
		return translateError(err)
	}

	campaign, err := h.campaigns.Create(ctx.Context(), input)
	if err != nil {
		return translateError(err)
	}

	fullCampaign, err := h.campaigns.Get(ctx.Context(), campaign.ID)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusCreated).JSON(toCampaignResponse(fullCampaign))
}

func (h *HandlerSet) listCampaigns(ctx *fiber.Ctx) error {
	limit, _ := strconv.Atoi(ctx.Query("limit", "50"))
	var afterID *uuid.UUID
	if afterStr := ctx.Query("after_id"); afterStr != "" {
		if id, err := uuid.Parse(afterStr); err == nil {
			afterID = &id
		}
	}

	campaigns, err := h.campaigns.List(ctx.Context(), afterID, limit)
	if err != nil {
		return translateError(err)
	}

	resp := listCampaignsResponse{Campaigns: make([]campaignResponse, 0, len(campaigns))}
	for _, c := range campaigns {
		fullCampaign, err := h.campaigns.Get(ctx.Context(), c.ID)
		if err != nil {
			return translateError(err)
		}
		resp.Campaigns = append(resp.Campaigns, toCampaignResponse(fullCampaign))
	}

	return ctx.Status(http.StatusOK).JSON(resp)
}

func (h *HandlerSet) getCampaign(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	campaign, err := h.campaigns.Get(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(toCampaignResponse(campaign))
}

type updateCampaignRequest struct {
	Name            *string               `json:"name"`
	Description     *string               `json:"description"`
	DialMethod      *string               `json:"dial_method"`
	DialRatio       *float64              `json:"dial_ratio"`
	RecordingPolicy *string               `json:"recording_policy"`
	CallingHours    *[]callingHourRequest `json:"calling_hours"`
}

func (h *HandlerSet) updateCampaign(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	var req updateCampaignRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	input := campaignsvc.UpdateCampaignInput{ID: id}
	input.Name = req.Name
	input.Description = req.Description
	input.DialRatio = req.DialRatio
	input.RecordingPolicy = req.RecordingPolicy
	if req.DialMethod != nil {
		method := domain.DialMethod(*req.DialMethod)
		input.DialMethod = &method
	}
	if req.CallingHours != nil {
		windows, err := parseCallingHours(*req.CallingHours)
		if err != nil {
			return translateError(err)
		}
		input.CallingHours = &windows
	}

	campaign, err := h.campaigns.Update(ctx.Context(), input)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(toCampaignResponse(campaign))
}

func (h *HandlerSet) activateCampaign(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}
	if err := h.campaigns.Activate(ctx.Context(), id); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) pauseCampaign(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}
	if err := h.campaigns.Pause(ctx.Context(), id); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) importContacts(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	var req importContactsRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	inputs := make([]campaignsvc.ContactInput, 0, len(req.Contacts))
	for _, c := range req.Contacts {
		inputs = append(inputs, campaignsvc.ContactInput{
			FirstName:    c.FirstName,
			LastName:     c.LastName,
			PrimaryPhone: c.PrimaryPhone,
			MobilePhone:  c.MobilePhone,
			WorkPhone:    c.WorkPhone,
			HomePhone:    c.HomePhone,
			Priority:     c.Priority,
		})
	}

	result, err := h.campaigns.ImportContacts(ctx.Context(), id, req.ListName, inputs)
	if err != nil {
		return translateError(err)
	}

	resp := importContactsResponse{ListID: result.ListID, Imported: result.Imported}
	for _, r := range result.Rejected {
		resp.Rejected = append(resp.Rejected, rejectedContactResponse{Index: r.Index, Phone: r.Phone, Reason: r.Reason})
	}
	return ctx.Status(http.StatusCreated).JSON(resp)
}

func toCampaignResponse(campaign *domain.Campaign) campaignResponse {
	resp := campaignResponse{
		ID:              campaign.ID,
		Name:            campaign.Name,
		Description:     campaign.Description,
		TimeZone:        campaign.TimeZone,
		DialMethod:      campaign.DialMethod,
		DialRatio:       campaign.DialRatio,
		RecordingPolicy: campaign.RecordingPolicy,
		Active:          campaign.Active,
		CallingHours:    make([]callingHourResponse, 0, len(campaign.CallingHours)),
		CreatedAt:       campaign.CreatedAt,
		UpdatedAt:       campaign.UpdatedAt,
	}

	for _, window := range campaign.CallingHours {
		resp.CallingHours = append(resp.CallingHours, callingHourResponse{
			DayOfWeek: int(window.DayOfWeek),
			Start:     window.Start.Format("15:04"),
			End:       window.End.Format("15:04"),
		})
	}

	return resp
}

func toCreateCampaignInput(req createCampaignRequest) (campaignsvc.CreateCampaignInput, error) {
	input := campaignsvc.CreateCampaignInput{
		Name:            req.Name,
		Description:     req.Description,
		TimeZone:        req.TimeZone,
		DialMethod:      domain.DialMethod(req.DialMethod),
		DialRatio:       req.DialRatio,
		RecordingPolicy: req.RecordingPolicy,
	}

	if len(req.CallingHours) > 0 {
		windows, err := parseCallingHours(req.CallingHours)
		if err != nil {
			return campaignsvc.CreateCampaignInput{}, err
		}
		input.CallingHours = windows
	}

	return input, nil
}

func parseCallingHours(req []callingHourRequest) ([]campaignsvc.CallingHourInput, error) {
	windows := make([]campaignsvc.CallingHourInput, 0, len(req))
	for _, window := range req {
		start, err := time.Parse("15:04", window.Start)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid start time", apperrors.ErrValidation)
		}
		end, err := time.Parse("15:04", window.End)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid end time", apperrors.ErrValidation)
		}
		windows = append(windows, campaignsvc.CallingHourInput{
			DayOfWeek: time.Weekday(window.DayOfWeek),
			Start:     start,
			End:       end,
		})
	}
	return windows, nil
}

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(value)
}
