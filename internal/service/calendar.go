package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/noah-isme/clinic-booking-api/internal/dto"
	"github.com/noah-isme/clinic-booking-api/internal/models"
	appErrors "github.com/noah-isme/clinic-booking-api/pkg/errors"
	"github.com/noah-isme/clinic-booking-api/pkg/timegrid"
)

const dateLayout = "2006-01-02"

type userFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// parseDay interprets date (YYYY-MM-DD) in loc and returns local midnight.
func parseDay(date string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation(dateLayout, date, loc)
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrInvalidRequest.Code, appErrors.ErrInvalidRequest.Status, "date must use the YYYY-MM-DD format")
	}
	return day, nil
}

// fullDayRange is the closed range [00:00:00.000, 23:59:59.999] of the day starting at dayStart.
func fullDayRange(dayStart time.Time) (time.Time, time.Time) {
	next := time.Date(dayStart.Year(), dayStart.Month(), dayStart.Day()+1, 0, 0, 0, 0, dayStart.Location())
	return dayStart, next.Add(-time.Millisecond)
}

// atMinute returns the wall-clock instant minute minutes after midnight of day.
func atMinute(day time.Time, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 0, minute, 0, 0, day.Location())
}

func toPayload(intervals []timegrid.Interval) []dto.IntervalPayload {
	out := make([]dto.IntervalPayload, 0, len(intervals))
	for _, iv := range intervals {
		out = append(out, dto.IntervalPayload{Start: timegrid.FromMinutes(iv.Start), End: timegrid.FromMinutes(iv.End)})
	}
	return out
}

func fromPayload(payload []dto.IntervalPayload) ([]timegrid.Interval, error) {
	out := make([]timegrid.Interval, 0, len(payload))
	for _, p := range payload {
		start, err := timegrid.ToMinutes(p.Start)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid interval start")
		}
		end, err := timegrid.ToMinutes(p.End)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid interval end")
		}
		out = append(out, timegrid.Interval{Start: start, End: end})
	}
	if err := timegrid.Validate(out); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	return timegrid.Sorted(out), nil
}

// canManageTherapist reports whether actor may write the therapist's schedule.
func canManageTherapist(actor dto.Actor, therapistID string) bool {
	if actor.IsAdmin() {
		return true
	}
	return actor.Role == models.RoleTherapist && actor.UserID == therapistID
}

// requireTherapist re-checks that id references an active therapist.
func requireTherapist(ctx context.Context, users userFinder, id string) (*models.User, error) {
	if users == nil {
		return nil, nil
	}
	user, err := users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTarget, "therapist not found")
		}
		return nil, appErrors.FromStore(err, "failed to load therapist")
	}
	if user.Role != models.RoleTherapist || !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInvalidTarget, "referenced user is not an active therapist")
	}
	return user, nil
}
