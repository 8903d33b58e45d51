package models

import "time"

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentCompleted AppointmentStatus = "completed"
)

// IsTerminal reports whether no transition may leave the status.
func (s AppointmentStatus) IsTerminal() bool {
	return s == AppointmentCancelled || s == AppointmentCompleted
}

// IsActive reports whether the appointment still occupies its interval.
func (s AppointmentStatus) IsActive() bool {
	return s == AppointmentPending || s == AppointmentConfirmed
}

// Valid reports whether s is a known status.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentPending, AppointmentConfirmed, AppointmentCancelled, AppointmentCompleted:
		return true
	}
	return false
}

// Appointment is the unit of scheduling. EndAt is derived from StartAt and DurationMinutes.
type Appointment struct {
	ID              string            `db:"id" json:"id"`
	PatientID       string            `db:"patient_id" json:"patient_id"`
	TherapistID     string            `db:"therapist_id" json:"therapist_id"`
	StartAt         time.Time         `db:"start_at" json:"start_at"`
	EndAt           time.Time         `db:"end_at" json:"end_at"`
	DurationMinutes int               `db:"duration_minutes" json:"duration_minutes"`
	Reason          string            `db:"reason" json:"reason"`
	Notes           string            `db:"notes" json:"notes"`
	Status          AppointmentStatus `db:"status" json:"status"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}

// AppointmentFilter narrows appointment queries to a therapist and time range. A non-zero
// CreatedBefore keeps only appointments created at or before that instant.
type AppointmentFilter struct {
	TherapistID   string
	From          time.Time
	To            time.Time
	Statuses      []AppointmentStatus
	CreatedBefore time.Time
}
