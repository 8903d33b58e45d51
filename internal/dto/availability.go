package dto

import "github.com/noah-isme/clinic-booking-api/internal/models"

// IntervalPayload is an HH:MM pair as exchanged over the API.
type IntervalPayload struct {
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

// AvailabilityResponse is returned by GET /therapists/:id/availability.
type AvailabilityResponse struct {
	TherapistID string                    `json:"therapist_id"`
	Date        string                    `json:"date"`
	Closed      bool                      `json:"closed"`
	Source      models.AvailabilitySource `json:"source"`
	Intervals   []IntervalPayload         `json:"intervals"`
}

// WeeklyTemplateRequest replaces a therapist's recurring availability wholesale.
type WeeklyTemplateRequest struct {
	Days map[string][]IntervalPayload `json:"days" validate:"required"`
}

// WeeklyTemplateResponse renders a weekly template with HH:MM intervals.
type WeeklyTemplateResponse struct {
	TherapistID string                       `json:"therapist_id"`
	Days        map[string][]IntervalPayload `json:"days"`
}

// DayExceptionRequest creates or replaces the override for one date.
type DayExceptionRequest struct {
	Closed    bool              `json:"closed"`
	Intervals []IntervalPayload `json:"intervals"`
}

// DayExceptionResponse renders a stored override.
type DayExceptionResponse struct {
	ID          string            `json:"id"`
	TherapistID string            `json:"therapist_id"`
	Date        string            `json:"date"`
	Closed      bool              `json:"closed"`
	Intervals   []IntervalPayload `json:"intervals"`
}
