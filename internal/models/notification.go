package models

import "time"

// NotificationKind identifies why a notification was created. Together with the
// appointment id it forms the idempotency key of a notification.
type NotificationKind string

const (
	NotificationCancellation NotificationKind = "cancellation"
	NotificationReminder     NotificationKind = "reminder"
)

// Notification is a message for one recipient referencing an appointment.
type Notification struct {
	ID            string           `db:"id" json:"id"`
	UserID        string           `db:"user_id" json:"user_id"`
	AppointmentID string           `db:"appointment_id" json:"appointment_id"`
	Kind          NotificationKind `db:"kind" json:"kind"`
	Message       string           `db:"message" json:"message"`
	Read          bool             `db:"read" json:"read"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
}
