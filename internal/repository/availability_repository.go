package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/clinic-booking-api/internal/models"
	"github.com/noah-isme/clinic-booking-api/pkg/timegrid"
)

// AvailabilityRepository persists weekly templates and day exceptions.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs the repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// GetWeeklyTemplate loads every stored interval of the therapist's template. A therapist who
// never saved a template yields an empty template, not an error.
func (r *AvailabilityRepository) GetWeeklyTemplate(ctx context.Context, therapistID string) (*models.WeeklyTemplate, error) {
	const query = `SELECT therapist_id, weekday, start_minute, end_minute FROM therapist_weekly_availability WHERE therapist_id = $1 ORDER BY weekday ASC, start_minute ASC`
	var rows []models.WeeklyAvailabilityRow
	if err := r.db.SelectContext(ctx, &rows, query, therapistID); err != nil {
		return nil, fmt.Errorf("get weekly template: %w", err)
	}
	tpl := &models.WeeklyTemplate{TherapistID: therapistID, Days: make(map[string][]timegrid.Interval)}
	for _, row := range rows {
		tpl.Days[row.Weekday] = append(tpl.Days[row.Weekday], timegrid.Interval{Start: row.StartMinute, End: row.EndMinute})
	}
	return tpl, nil
}

// GetWeekdayIntervals loads the template intervals of a single weekday.
func (r *AvailabilityRepository) GetWeekdayIntervals(ctx context.Context, therapistID, weekday string) ([]timegrid.Interval, error) {
	const query = `SELECT therapist_id, weekday, start_minute, end_minute FROM therapist_weekly_availability WHERE therapist_id = $1 AND weekday = $2 ORDER BY start_minute ASC`
	var rows []models.WeeklyAvailabilityRow
	if err := r.db.SelectContext(ctx, &rows, query, therapistID, weekday); err != nil {
		return nil, fmt.Errorf("get weekday intervals: %w", err)
	}
	intervals := make([]timegrid.Interval, 0, len(rows))
	for _, row := range rows {
		intervals = append(intervals, timegrid.Interval{Start: row.StartMinute, End: row.EndMinute})
	}
	return intervals, nil
}

// ReplaceWeeklyTemplate swaps the whole template inside one transaction.
func (r *AvailabilityRepository) ReplaceWeeklyTemplate(ctx context.Context, tpl *models.WeeklyTemplate) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace weekly template: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM therapist_weekly_availability WHERE therapist_id = $1`, tpl.TherapistID); err != nil {
		return fmt.Errorf("clear weekly template: %w", err)
	}

	const insert = `INSERT INTO therapist_weekly_availability (therapist_id, weekday, start_minute, end_minute) VALUES ($1, $2, $3, $4)`
	for _, day := range models.Weekdays {
		for _, iv := range tpl.Days[day] {
			if _, err = tx.ExecContext(ctx, insert, tpl.TherapistID, day, iv.Start, iv.End); err != nil {
				return fmt.Errorf("insert weekly interval: %w", err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit weekly template: %w", err)
	}
	return nil
}

// FindException returns the override for the date, or nil when none exists.
func (r *AvailabilityRepository) FindException(ctx context.Context, therapistID, date string) (*models.DayException, error) {
	const query = `SELECT id, therapist_id, date::text AS date, closed, intervals, created_at, updated_at FROM therapist_day_exceptions WHERE therapist_id = $1 AND date = $2::date`
	var exc models.DayException
	if err := r.db.GetContext(ctx, &exc, query, therapistID, date); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find day exception: %w", err)
	}
	if err := decodeIntervals(&exc); err != nil {
		return nil, err
	}
	return &exc, nil
}

// UpsertException creates or replaces the override for (therapist, date).
func (r *AvailabilityRepository) UpsertException(ctx context.Context, exc *models.DayException) error {
	if exc.ID == "" {
		exc.ID = uuid.NewString()
	}
	intervals := exc.Parsed
	if intervals == nil || exc.Closed {
		intervals = []timegrid.Interval{}
	}
	raw, err := json.Marshal(intervals)
	if err != nil {
		return fmt.Errorf("marshal exception intervals: %w", err)
	}
	exc.Intervals = types.JSONText(raw)
	now := time.Now().UTC()
	exc.UpdatedAt = now

	const query = `INSERT INTO therapist_day_exceptions (id, therapist_id, date, closed, intervals, created_at, updated_at)
VALUES ($1, $2, $3::date, $4, $5, $6, $6)
ON CONFLICT (therapist_id, date) DO UPDATE SET closed = EXCLUDED.closed, intervals = EXCLUDED.intervals, updated_at = EXCLUDED.updated_at
RETURNING id, created_at`
	row := r.db.QueryRowxContext(ctx, query, exc.ID, exc.TherapistID, exc.Date, exc.Closed, exc.Intervals, now)
	if err := row.Scan(&exc.ID, &exc.CreatedAt); err != nil {
		return fmt.Errorf("upsert day exception: %w", err)
	}
	exc.Parsed = intervals
	return nil
}

// DeleteException removes the override for the date and reports whether one existed.
func (r *AvailabilityRepository) DeleteException(ctx context.Context, therapistID, date string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM therapist_day_exceptions WHERE therapist_id = $1 AND date = $2::date`, therapistID, date)
	if err != nil {
		return false, fmt.Errorf("delete day exception: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete day exception rows: %w", err)
	}
	return affected > 0, nil
}

func decodeIntervals(exc *models.DayException) error {
	exc.Parsed = []timegrid.Interval{}
	if len(exc.Intervals) == 0 {
		return nil
	}
	if err := json.Unmarshal(exc.Intervals, &exc.Parsed); err != nil {
		return fmt.Errorf("decode exception intervals: %w", err)
	}
	return nil
}
