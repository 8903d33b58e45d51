package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clinic-booking-api/internal/dto"
	"github.com/noah-isme/clinic-booking-api/internal/models"
	"github.com/noah-isme/clinic-booking-api/internal/service"
	"github.com/noah-isme/clinic-booking-api/pkg/response"
)

type bookingService interface {
	TryBook(ctx context.Context, actor dto.Actor, req dto.BookingRequest) (*models.Appointment, error)
	Get(ctx context.Context, actor dto.Actor, id string) (*models.Appointment, error)
	ListForDate(ctx context.Context, actor dto.Actor, therapistID, date string) ([]models.Appointment, error)
	UpdateStatus(ctx context.Context, actor dto.Actor, id string, req dto.UpdateStatusRequest) (*models.Appointment, error)
}

type agendaService interface {
	Export(ctx context.Context, actor dto.Actor, therapistID, date, format string) (*service.AgendaFile, error)
}

// AppointmentHandler exposes booking and appointment lifecycle endpoints.
type AppointmentHandler struct {
	bookings bookingService
	agenda   agendaService
}

// NewAppointmentHandler builds a new handler.
func NewAppointmentHandler(bookings bookingService, agenda agendaService) *AppointmentHandler {
	return &AppointmentHandler{bookings: bookings, agenda: agenda}
}

// Book godoc
// @Summary Book an appointment
// @Description Atomically checks for overlaps and creates a pending appointment.
// @Tags Appointments
// @Accept json
// @Produce json
// @Param payload body dto.BookingRequest true "Booking payload"
// @Success 201 {object} response.Envelope{data=models.Appointment}
// @Failure 409 {object} response.Envelope "SLOT_CONFLICT"
// @Failure 422 {object} response.Envelope "INVALID_TARGET or OUTSIDE_AVAILABILITY"
// @Failure 429 {object} response.Envelope "RATE_LIMITED"
// @Failure 503 {object} response.Envelope "STORE_UNAVAILABLE"
// @Router /bookings [post]
func (h *AppointmentHandler) Book(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "booking"))
		return
	}
	appt, err := h.bookings.TryBook(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, appt)
}

// Get godoc
// @Summary Get an appointment
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope{data=models.Appointment}
// @Failure 404 {object} response.Envelope
// @Router /appointments/{id} [get]
func (h *AppointmentHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	appt, err := h.bookings.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, appt)
}

// UpdateStatus godoc
// @Summary Move an appointment to a new status
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body dto.UpdateStatusRequest true "Target status"
// @Success 200 {object} response.Envelope{data=models.Appointment}
// @Failure 409 {object} response.Envelope "INVALID_TRANSITION"
// @Router /appointments/{id}/status [patch]
func (h *AppointmentHandler) UpdateStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "status"))
		return
	}
	appt, err := h.bookings.UpdateStatus(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, appt)
}

// ListForDate godoc
// @Summary List a therapist's appointments on a date
// @Tags Appointments
// @Produce json
// @Param id path string true "Therapist ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope{data=[]models.Appointment}
// @Router /therapists/{id}/appointments [get]
func (h *AppointmentHandler) ListForDate(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	appts, err := h.bookings.ListForDate(c.Request.Context(), actor, c.Param("id"), c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, appts)
}

// Agenda godoc
// @Summary Download a therapist's daily agenda
// @Tags Appointments
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Therapist ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /therapists/{id}/agenda [get]
func (h *AppointmentHandler) Agenda(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	file, err := h.agenda.Export(c.Request.Context(), actor, c.Param("id"), c.Query("date"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}
