package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/clinic-booking-api/internal/models"
)

const insertNotificationQuery = `INSERT INTO notifications (id, user_id, appointment_id, kind, message, read, created_at) VALUES (:id, :user_id, :appointment_id, :kind, :message, :read, :created_at) ON CONFLICT (appointment_id, kind) DO NOTHING`

// NotificationRepository persists notification records.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// CreateIfAbsent inserts the notification unless one of the same kind already exists for
// the appointment. It reports whether a row was written.
func (r *NotificationRepository) CreateIfAbsent(ctx context.Context, note *models.Notification) (bool, error) {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.NamedExecContext(ctx, insertNotificationQuery, note)
	if err != nil {
		return false, fmt.Errorf("create notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create notification rows: %w", err)
	}
	return affected > 0, nil
}

// ListByUser returns the recipient's notifications, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, page, size int) ([]models.Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, user_id, appointment_id, kind, message, read, created_at FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT %d OFFSET %d`, size, offset)
	var notes []models.Notification
	if err := r.db.SelectContext(ctx, &notes, query, userID); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM notifications WHERE user_id = $1`, userID); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	return notes, total, nil
}

// MarkRead flags the notification as read if it belongs to userID.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark notification read rows: %w", err)
	}
	return affected > 0, nil
}
