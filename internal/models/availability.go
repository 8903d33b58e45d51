package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/clinic-booking-api/pkg/timegrid"
)

// Weekday names used as WeeklyTemplate keys.
const (
	Monday    = "monday"
	Tuesday   = "tuesday"
	Wednesday = "wednesday"
	Thursday  = "thursday"
	Friday    = "friday"
	Saturday  = "saturday"
	Sunday    = "sunday"
)

// Weekdays lists the template keys in calendar order.
var Weekdays = []string{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// WeekdayName maps a time.Weekday to its template key.
func WeekdayName(d time.Weekday) string {
	switch d {
	case time.Monday:
		return Monday
	case time.Tuesday:
		return Tuesday
	case time.Wednesday:
		return Wednesday
	case time.Thursday:
		return Thursday
	case time.Friday:
		return Friday
	case time.Saturday:
		return Saturday
	default:
		return Sunday
	}
}

// IsWeekday reports whether name is one of the seven template keys.
func IsWeekday(name string) bool {
	for _, d := range Weekdays {
		if d == name {
			return true
		}
	}
	return false
}

// WeeklyTemplate is a therapist's recurring availability, keyed by weekday name.
type WeeklyTemplate struct {
	TherapistID string                         `json:"therapist_id"`
	Days        map[string][]timegrid.Interval `json:"days"`
}

// WeeklyAvailabilityRow is one stored interval of a weekly template.
type WeeklyAvailabilityRow struct {
	TherapistID string `db:"therapist_id"`
	Weekday     string `db:"weekday"`
	StartMinute int    `db:"start_minute"`
	EndMinute   int    `db:"end_minute"`
}

// DayException overrides the template for one calendar date.
type DayException struct {
	ID          string              `db:"id" json:"id"`
	TherapistID string              `db:"therapist_id" json:"therapist_id"`
	Date        string              `db:"date" json:"date"`
	Closed      bool                `db:"closed" json:"closed"`
	Intervals   types.JSONText      `db:"intervals" json:"-"`
	Parsed      []timegrid.Interval `db:"-" json:"intervals"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `db:"updated_at" json:"updated_at"`
}

// AbsenceBlockKind distinguishes full-day blocks from the reserved partial variant.
type AbsenceBlockKind string

const (
	AbsenceBlockFullDay  AbsenceBlockKind = "full_day"
	AbsenceBlockInterval AbsenceBlockKind = "interval"
)

// AbsenceBlock is a retroactive closure of [StartAt, EndAt] that cancels bookings inside it.
type AbsenceBlock struct {
	ID          string           `db:"id" json:"id"`
	TherapistID string           `db:"therapist_id" json:"therapist_id"`
	StartAt     time.Time        `db:"start_at" json:"start_at"`
	EndAt       time.Time        `db:"end_at" json:"end_at"`
	Reason      string           `db:"reason" json:"reason"`
	Kind        AbsenceBlockKind `db:"kind" json:"kind"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
}

// AvailabilitySource names which declaration produced a resolved availability.
type AvailabilitySource string

const (
	SourceException AvailabilitySource = "exception"
	SourceBlock     AvailabilitySource = "block"
	SourceTemplate  AvailabilitySource = "template"
	SourceNone      AvailabilitySource = "none"
)

// ResolvedAvailability is the ordered set of open intervals for one therapist and date.
type ResolvedAvailability struct {
	TherapistID string              `json:"therapist_id"`
	Date        string              `json:"date"`
	Source      AvailabilitySource  `json:"source"`
	Intervals   []timegrid.Interval `json:"intervals"`
}

// Closed reports whether nothing is open on the date.
func (r ResolvedAvailability) Closed() bool {
	return len(r.Intervals) == 0
}
