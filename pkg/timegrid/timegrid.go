package timegrid

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the exclusive upper bound of a minute-of-day value. It is also
// accepted as an interval end ("24:00") so that a day can stay open until midnight.
const MinutesPerDay = 24 * 60

// Interval is a half-open [Start, End) range of minutes within one day.
type Interval struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Duration returns the interval length in minutes.
func (i Interval) Duration() int {
	return i.End - i.Start
}

// ToMinutes converts an HH:MM clock value into minutes since midnight.
func ToMinutes(hhmm string) (int, error) {
	parts := strings.Split(strings.TrimSpace(hhmm), ":")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", hhmm)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q: %w", hhmm, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q: %w", hhmm, err)
	}
	if h == 24 && m == 0 {
		return MinutesPerDay, nil
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q out of range", hhmm)
	}
	return h*60 + m, nil
}

// FromMinutes renders minutes since midnight as HH:MM.
func FromMinutes(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) share any instant.
// Touching boundaries do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}

// OverlapsTime is Overlaps over absolute instants.
func OverlapsTime(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Contains reports whether point falls inside any of the intervals.
func Contains(intervals []Interval, point int) bool {
	for _, iv := range intervals {
		if point >= iv.Start && point < iv.End {
			return true
		}
	}
	return false
}

// Covers reports whether [start, end) lies entirely within a single interval.
func Covers(intervals []Interval, start, end int) bool {
	for _, iv := range intervals {
		if start >= iv.Start && end <= iv.End {
			return true
		}
	}
	return false
}

// Subtract removes the occupied ranges from interval and returns the free parts in order.
func Subtract(interval Interval, occupied []Interval) []Interval {
	busy := make([]Interval, 0, len(occupied))
	for _, o := range occupied {
		if Overlaps(interval.Start, interval.End, o.Start, o.End) {
			busy = append(busy, o)
		}
	}
	sort.SliceStable(busy, func(i, j int) bool { return busy[i].Start < busy[j].Start })

	free := make([]Interval, 0, len(busy)+1)
	cursor := interval.Start
	for _, o := range busy {
		if o.Start > cursor {
			free = append(free, Interval{Start: cursor, End: o.Start})
		}
		if o.End > cursor {
			cursor = o.End
		}
		if cursor >= interval.End {
			break
		}
	}
	if cursor < interval.End {
		free = append(free, Interval{Start: cursor, End: interval.End})
	}
	return free
}

// Sorted returns a copy of intervals ordered by start.
func Sorted(intervals []Interval) []Interval {
	out := make([]Interval, len(intervals))
	copy(out, intervals)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// Validate checks that every interval is inside the day, has start < end and that no two
// intervals overlap.
func Validate(intervals []Interval) error {
	ordered := Sorted(intervals)
	for i, iv := range ordered {
		if iv.Start < 0 || iv.End > MinutesPerDay {
			return fmt.Errorf("interval %s-%s outside of day", FromMinutes(iv.Start), FromMinutes(iv.End))
		}
		if iv.Start >= iv.End {
			return fmt.Errorf("interval %s-%s must start before it ends", FromMinutes(iv.Start), FromMinutes(iv.End))
		}
		if i > 0 && Overlaps(ordered[i-1].Start, ordered[i-1].End, iv.Start, iv.End) {
			return fmt.Errorf("interval %s-%s overlaps %s-%s",
				FromMinutes(iv.Start), FromMinutes(iv.End),
				FromMinutes(ordered[i-1].Start), FromMinutes(ordered[i-1].End))
		}
	}
	return nil
}

// MinuteOfDay returns the wall-clock minute of t on the local date that starts at dayStart,
// read in dayStart's location. Instants before that date clamp to 0 and instants on a later
// date clamp to MinutesPerDay, so the result stays comparable with "HH:MM" boundaries on
// days with a daylight saving transition.
func MinuteOfDay(dayStart, t time.Time) int {
	loc := dayStart.Location()
	next := time.Date(dayStart.Year(), dayStart.Month(), dayStart.Day()+1, 0, 0, 0, 0, loc)
	switch {
	case t.Before(dayStart):
		return 0
	case !t.Before(next):
		return MinutesPerDay
	}
	local := t.In(loc)
	return local.Hour()*60 + local.Minute()
}
