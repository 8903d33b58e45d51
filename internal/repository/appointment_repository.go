package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/clinic-booking-api/internal/models"
)

// ErrOverlap is returned by CreateIfNoOverlap when the therapist is already booked.
var ErrOverlap = errors.New("appointment overlaps an existing booking")

const appointmentColumns = `id, patient_id, therapist_id, start_at, end_at, duration_minutes, reason, notes, status, created_at, updated_at`

var activeStatuses = []string{string(models.AppointmentPending), string(models.AppointmentConfirmed)}

// AppointmentRepository persists appointments and the notifications tied to their cancellation.
type AppointmentRepository struct {
	db *sqlx.DB
}

// NewAppointmentRepository constructs the repository.
func NewAppointmentRepository(db *sqlx.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// FindByID loads an appointment by id.
func (r *AppointmentRepository) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	var appt models.Appointment
	if err := r.db.GetContext(ctx, &appt, query, id); err != nil {
		return nil, err
	}
	return &appt, nil
}

// ListOverlapping returns the therapist's appointments whose [start_at, end_at) intersects
// [from, to), restricted to the given statuses (all statuses when empty).
func (r *AppointmentRepository) ListOverlapping(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE therapist_id = $1 AND start_at < $3 AND end_at > $2 AND ($4::text[] IS NULL OR status = ANY($4)) ORDER BY start_at ASC`
	var appts []models.Appointment
	if err := r.db.SelectContext(ctx, &appts, query, filter.TherapistID, filter.From, filter.To, statusArray(filter.Statuses)); err != nil {
		return nil, fmt.Errorf("list overlapping appointments: %w", err)
	}
	return appts, nil
}

// ListStartingWithin returns the therapist's appointments whose start_at lies in [from, to],
// optionally only those created no later than filter.CreatedBefore.
func (r *AppointmentRepository) ListStartingWithin(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE therapist_id = $1 AND start_at >= $2 AND start_at <= $3 AND ($4::text[] IS NULL OR status = ANY($4)) AND ($5::timestamptz IS NULL OR created_at <= $5) ORDER BY start_at ASC`
	var appts []models.Appointment
	if err := r.db.SelectContext(ctx, &appts, query, filter.TherapistID, filter.From, filter.To, statusArray(filter.Statuses), optionalTime(filter.CreatedBefore)); err != nil {
		return nil, fmt.Errorf("list appointments in range: %w", err)
	}
	return appts, nil
}

// ListActiveStartingBetween returns pending/confirmed appointments of every therapist
// starting in (from, to].
func (r *AppointmentRepository) ListActiveStartingBetween(ctx context.Context, from, to time.Time) ([]models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE start_at > $1 AND start_at <= $2 AND status = ANY($3) ORDER BY start_at ASC`
	var appts []models.Appointment
	if err := r.db.SelectContext(ctx, &appts, query, from, to, pq.Array(activeStatuses)); err != nil {
		return nil, fmt.Errorf("list upcoming appointments: %w", err)
	}
	return appts, nil
}

// CreateIfNoOverlap inserts the appointment unless a non-cancelled appointment of the same
// therapist overlaps it. Attempts for one therapist are serialised by a transaction-scoped
// advisory lock, so the overlap check and the insert are atomic with respect to each other.
func (r *AppointmentRepository) CreateIfNoOverlap(ctx context.Context, appt *models.Appointment) (err error) {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	appt.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin booking transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, appt.TherapistID); err != nil {
		return fmt.Errorf("lock therapist schedule: %w", err)
	}

	var conflicts []string
	const overlapQuery = `SELECT id FROM appointments WHERE therapist_id = $1 AND status <> 'cancelled' AND start_at < $3 AND end_at > $2 LIMIT 1`
	if err = tx.SelectContext(ctx, &conflicts, overlapQuery, appt.TherapistID, appt.StartAt, appt.EndAt); err != nil {
		return fmt.Errorf("check appointment overlap: %w", err)
	}
	if len(conflicts) > 0 {
		return ErrOverlap
	}

	query := `INSERT INTO appointments (` + appointmentColumns + `) VALUES (:id, :patient_id, :therapist_id, :start_at, :end_at, :duration_minutes, :reason, :notes, :status, :created_at, :updated_at)`
	if _, err = sqlx.NamedExecContext(ctx, tx, query, appt); err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit booking transaction: %w", err)
	}
	return nil
}

// UpdateStatus moves the appointment to status `to` only while it is still in one of `from`.
// It reports whether a row changed.
func (r *AppointmentRepository) UpdateStatus(ctx context.Context, id string, from []models.AppointmentStatus, to models.AppointmentStatus) (bool, error) {
	const query = `UPDATE appointments SET status = $2, updated_at = $3 WHERE id = $1 AND status = ANY($4)`
	res, err := r.db.ExecContext(ctx, query, id, to, time.Now().UTC(), statusArray(from))
	if err != nil {
		return false, fmt.Errorf("update appointment status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update appointment status rows: %w", err)
	}
	return affected > 0, nil
}

// CancelWithNotification cancels a pending/confirmed appointment and records the patient
// notification in the same transaction. It reports false, without writing anything, when
// the appointment was no longer active. The notification insert is idempotent on
// (appointment_id, kind).
func (r *AppointmentRepository) CancelWithNotification(ctx context.Context, appointmentID string, note *models.Notification) (cancelled bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin cancellation transaction: %w", err)
	}
	defer func() {
		if err != nil || !cancelled {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `UPDATE appointments SET status = 'cancelled', updated_at = $2 WHERE id = $1 AND status = ANY($3)`, appointmentID, now, pq.Array(activeStatuses))
	if err != nil {
		return false, fmt.Errorf("cancel appointment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel appointment rows: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = now
	}
	note.AppointmentID = appointmentID
	if _, err = sqlx.NamedExecContext(ctx, tx, insertNotificationQuery, note); err != nil {
		return false, fmt.Errorf("insert cancellation notification: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit cancellation: %w", err)
	}
	cancelled = true
	return true, nil
}

// CompleteEndedBefore flips pending/confirmed appointments that ended at or before `now`
// to completed and returns how many changed.
func (r *AppointmentRepository) CompleteEndedBefore(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE appointments SET status = 'completed', updated_at = $1 WHERE end_at <= $1 AND status = ANY($2)`, now, pq.Array(activeStatuses))
	if err != nil {
		return 0, fmt.Errorf("complete past appointments: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("complete past appointments rows: %w", err)
	}
	return affected, nil
}

func optionalTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func statusArray(statuses []models.AppointmentStatus) interface{} {
	if len(statuses) == 0 {
		return nil
	}
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return pq.Array(out)
}
