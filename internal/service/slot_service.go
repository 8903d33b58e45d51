package service

import (
	"context"
	"time"

	"github.com/noah-isme/clinic-booking-api/internal/dto"
	"github.com/noah-isme/clinic-booking-api/internal/models"
	appErrors "github.com/noah-isme/clinic-booking-api/pkg/errors"
	"github.com/noah-isme/clinic-booking-api/pkg/timegrid"
)

// occupyingStatuses are the statuses whose interval still blocks the schedule.
var occupyingStatuses = []models.AppointmentStatus{models.AppointmentPending, models.AppointmentConfirmed, models.AppointmentCompleted}

type availabilityResolver interface {
	Resolve(ctx context.Context, therapistID, date string) (*models.ResolvedAvailability, error)
}

type appointmentReader interface {
	ListOverlapping(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, error)
}

// GenerateSlots walks every open interval in duration-sized steps from its start and keeps
// the candidates that fit entirely inside the interval and overlap no occupied range.
// The result is chronological and depends only on its inputs.
func GenerateSlots(open, occupied []timegrid.Interval, duration int) []timegrid.Interval {
	if duration <= 0 {
		return nil
	}
	slots := make([]timegrid.Interval, 0)
	for _, iv := range timegrid.Sorted(open) {
		for t := iv.Start; t+duration <= iv.End; t += duration {
			candidate := timegrid.Interval{Start: t, End: t + duration}
			free := true
			for _, o := range occupied {
				if timegrid.Overlaps(candidate.Start, candidate.End, o.Start, o.End) {
					free = false
					break
				}
			}
			if free {
				slots = append(slots, candidate)
			}
		}
	}
	return slots
}

// SlotService discretises resolved availability into bookable slots.
type SlotService struct {
	resolver     availabilityResolver
	appointments appointmentReader
	loc          *time.Location
}

// NewSlotService constructs the service.
func NewSlotService(resolver availabilityResolver, appointments appointmentReader, loc *time.Location) *SlotService {
	if loc == nil {
		loc = time.UTC
	}
	return &SlotService{resolver: resolver, appointments: appointments, loc: loc}
}

// Generate returns the bookable slots of the therapist on date for the given duration.
// No availability yields an empty list, not an error.
func (s *SlotService) Generate(ctx context.Context, therapistID, date string, durationMinutes int) ([]dto.SlotResponse, error) {
	if durationMinutes <= 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidDuration, "duration must be a positive number of minutes")
	}
	day, err := parseDay(date, s.loc)
	if err != nil {
		return nil, err
	}

	resolved, err := s.resolver.Resolve(ctx, therapistID, date)
	if err != nil {
		return nil, err
	}
	if resolved.Closed() {
		return []dto.SlotResponse{}, nil
	}

	from, to := fullDayRange(day)
	appts, err := s.appointments.ListOverlapping(ctx, models.AppointmentFilter{
		TherapistID: therapistID,
		From:        from,
		To:          to,
		Statuses:    occupyingStatuses,
	})
	if err != nil {
		return nil, appErrors.FromStore(err, "failed to load appointments")
	}

	occupied := make([]timegrid.Interval, 0, len(appts))
	for _, appt := range appts {
		occupied = append(occupied, timegrid.Interval{
			Start: timegrid.MinuteOfDay(day, appt.StartAt),
			End:   timegrid.MinuteOfDay(day, appt.EndAt),
		})
	}

	slots := GenerateSlots(resolved.Intervals, occupied, durationMinutes)
	out := make([]dto.SlotResponse, 0, len(slots))
	for _, slot := range slots {
		out = append(out, dto.SlotResponse{
			Start:   timegrid.FromMinutes(slot.Start),
			End:     timegrid.FromMinutes(slot.End),
			StartAt: atMinute(day, slot.Start),
			EndAt:   atMinute(day, slot.End),
		})
	}
	return out, nil
}
