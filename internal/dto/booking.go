package dto

import (
	"time"

	"github.com/noah-isme/clinic-booking-api/internal/models"
)

// SlotResponse is one bookable slot carrying both wall-clock and absolute bounds.
type SlotResponse struct {
	Start   string    `json:"start"`
	End     string    `json:"end"`
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

// BookingRequest is the payload of POST /bookings.
type BookingRequest struct {
	TherapistID     string `json:"therapist_id" validate:"required"`
	PatientID       string `json:"patient_id"`
	StartAt         string `json:"start_at" validate:"required"`
	DurationMinutes int    `json:"duration_minutes"`
	Reason          string `json:"reason" validate:"max=255"`
	Notes           string `json:"notes" validate:"max=2000"`
}

// UpdateStatusRequest is the payload of PATCH /appointments/:id/status.
type UpdateStatusRequest struct {
	Status models.AppointmentStatus `json:"status" validate:"required,oneof=pending confirmed cancelled completed"`
}

// Actor is the authenticated caller as supplied by the identity layer.
type Actor struct {
	UserID string
	Role   models.UserRole
}

// IsAdmin reports whether the actor has administrative rights.
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}
