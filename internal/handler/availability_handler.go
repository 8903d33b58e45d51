package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clinic-booking-api/internal/dto"
	appErrors "github.com/noah-isme/clinic-booking-api/pkg/errors"
	"github.com/noah-isme/clinic-booking-api/pkg/response"
)

type availabilityService interface {
	Describe(ctx context.Context, therapistID, date string) (*dto.AvailabilityResponse, error)
	GetWeeklyTemplate(ctx context.Context, therapistID string) (*dto.WeeklyTemplateResponse, error)
	ReplaceWeeklyTemplate(ctx context.Context, actor dto.Actor, therapistID string, req dto.WeeklyTemplateRequest) (*dto.WeeklyTemplateResponse, error)
	UpsertException(ctx context.Context, actor dto.Actor, therapistID, date string, req dto.DayExceptionRequest) (*dto.DayExceptionResponse, error)
	DeleteException(ctx context.Context, actor dto.Actor, therapistID, date string) error
}

type slotService interface {
	Generate(ctx context.Context, therapistID, date string, durationMinutes int) ([]dto.SlotResponse, error)
}

// AvailabilityHandler exposes availability resolution, slots and the schedule write side.
type AvailabilityHandler struct {
	availability availabilityService
	slots        slotService
}

// NewAvailabilityHandler builds a new handler.
func NewAvailabilityHandler(availability availabilityService, slots slotService) *AvailabilityHandler {
	return &AvailabilityHandler{availability: availability, slots: slots}
}

// Availability godoc
// @Summary Resolve a therapist's open intervals for a date
// @Tags Availability
// @Produce json
// @Param id path string true "Therapist ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope{data=dto.AvailabilityResponse}
// @Failure 400 {object} response.Envelope
// @Router /therapists/{id}/availability [get]
func (h *AvailabilityHandler) Availability(c *gin.Context) {
	resp, err := h.availability.Describe(c.Request.Context(), c.Param("id"), c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, resp)
}

// Slots godoc
// @Summary List bookable slots of a fixed duration
// @Tags Availability
// @Produce json
// @Param id path string true "Therapist ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param duration query int true "Slot length in minutes"
// @Success 200 {object} response.Envelope{data=[]dto.SlotResponse}
// @Failure 400 {object} response.Envelope
// @Router /therapists/{id}/slots [get]
func (h *AvailabilityHandler) Slots(c *gin.Context) {
	duration := queryInt(c, "duration", 0)
	if duration <= 0 {
		response.Error(c, appErrors.ErrInvalidDuration)
		return
	}
	slots, err := h.slots.Generate(c.Request.Context(), c.Param("id"), c.Query("date"), duration)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil, map[string]interface{}{"duration_minutes": duration, "count": len(slots)})
}

// WeeklyTemplate godoc
// @Summary Get a therapist's weekly template
// @Tags Availability
// @Produce json
// @Param id path string true "Therapist ID"
// @Success 200 {object} response.Envelope{data=dto.WeeklyTemplateResponse}
// @Router /therapists/{id}/weekly-template [get]
func (h *AvailabilityHandler) WeeklyTemplate(c *gin.Context) {
	resp, err := h.availability.GetWeeklyTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, resp)
}

// ReplaceWeeklyTemplate godoc
// @Summary Replace a therapist's weekly template
// @Tags Availability
// @Accept json
// @Produce json
// @Param id path string true "Therapist ID"
// @Param payload body dto.WeeklyTemplateRequest true "Intervals keyed by lowercase weekday"
// @Success 200 {object} response.Envelope{data=dto.WeeklyTemplateResponse}
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /therapists/{id}/weekly-template [put]
func (h *AvailabilityHandler) ReplaceWeeklyTemplate(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.WeeklyTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "weekly template"))
		return
	}
	resp, err := h.availability.ReplaceWeeklyTemplate(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, resp)
}

// UpsertException godoc
// @Summary Create or replace the override for one date
// @Tags Availability
// @Accept json
// @Produce json
// @Param id path string true "Therapist ID"
// @Param date path string true "Date (YYYY-MM-DD)"
// @Param payload body dto.DayExceptionRequest true "Closed flag or replacement intervals"
// @Success 200 {object} response.Envelope{data=dto.DayExceptionResponse}
// @Router /therapists/{id}/exceptions/{date} [put]
func (h *AvailabilityHandler) UpsertException(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.DayExceptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "exception"))
		return
	}
	resp, err := h.availability.UpsertException(c.Request.Context(), actor, c.Param("id"), c.Param("date"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, resp)
}

// DeleteException godoc
// @Summary Remove the override for one date
// @Tags Availability
// @Param id path string true "Therapist ID"
// @Param date path string true "Date (YYYY-MM-DD)"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /therapists/{id}/exceptions/{date} [delete]
func (h *AvailabilityHandler) DeleteException(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.availability.DeleteException(c.Request.Context(), actor, c.Param("id"), c.Param("date")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
