package service

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clinic-booking-api/internal/models"
	appErrors "github.com/noah-isme/clinic-booking-api/pkg/errors"
	"github.com/noah-isme/clinic-booking-api/pkg/timegrid"
)

type staticResolver struct {
	intervals []timegrid.Interval
	err       error
}

func (r staticResolver) Resolve(ctx context.Context, therapistID, date string) (*models.ResolvedAvailability, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &models.ResolvedAvailability{TherapistID: therapistID, Date: date, Source: models.SourceTemplate, Intervals: r.intervals}, nil
}

func TestGenerateSlotsDropsPartialTrailingSlot(t *testing.T) {
	slots := GenerateSlots([]timegrid.Interval{{Start: 540, End: 600}}, nil, 30)
	assert.Equal(t, []timegrid.Interval{{Start: 540, End: 570}, {Start: 570, End: 600}}, slots)

	slots = GenerateSlots([]timegrid.Interval{{Start: 540, End: 610}}, nil, 30)
	assert.Len(t, slots, 2)
}

func TestGenerateSlotsSkipsOccupiedAndKeepsTouching(t *testing.T) {
	open := []timegrid.Interval{{Start: 780, End: 900}, {Start: 540, End: 660}}
	occupied := []timegrid.Interval{{Start: 570, End: 600}, {Start: 790, End: 800}}

	slots := GenerateSlots(open, occupied, 30)
	assert.Equal(t, []timegrid.Interval{
		{Start: 540, End: 570},
		{Start: 600, End: 630},
		{Start: 630, End: 660},
		{Start: 810, End: 840},
		{Start: 840, End: 870},
		{Start: 870, End: 900},
	}, slots)
}

func TestGenerateSlotsIsDeterministic(t *testing.T) {
	open := []timegrid.Interval{{Start: 480, End: 720}}
	occupied := []timegrid.Interval{{Start: 600, End: 645}}
	assert.Equal(t, GenerateSlots(open, occupied, 45), GenerateSlots(open, occupied, 45))
	assert.Nil(t, GenerateSlots(open, nil, 0))
}

func TestSlotServiceGenerate(t *testing.T) {
	appts := newFakeAppointments()
	appts.seed(models.Appointment{ID: "busy", TherapistID: "t1", PatientID: "p1", StartAt: at(9, 30), DurationMinutes: 30, Status: models.AppointmentConfirmed})
	appts.seed(models.Appointment{ID: "gone", TherapistID: "t1", PatientID: "p2", StartAt: at(10, 0), DurationMinutes: 30, Status: models.AppointmentCancelled})
	appts.seed(models.Appointment{ID: "other", TherapistID: "t2", PatientID: "p2", StartAt: at(10, 30), DurationMinutes: 30, Status: models.AppointmentPending})

	svc := NewSlotService(staticResolver{intervals: []timegrid.Interval{{Start: 540, End: 660}}}, appts, time.UTC)
	slots, err := svc.Generate(context.Background(), "t1", "2026-03-02", 30)
	require.NoError(t, err)

	require.Len(t, slots, 3)
	assert.Equal(t, "09:00", slots[0].Start)
	assert.Equal(t, "10:00", slots[1].Start)
	assert.Equal(t, "10:30", slots[2].Start)
	assert.Equal(t, "11:00", slots[2].End)
	assert.Equal(t, at(10, 0), slots[1].StartAt)
	assert.Equal(t, at(10, 30), slots[1].EndAt)
}

func TestSlotServiceGenerateHonoursClinicTimezone(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	svc := NewSlotService(staticResolver{intervals: []timegrid.Interval{{Start: 540, End: 600}}}, newFakeAppointments(), loc)

	slots, err := svc.Generate(context.Background(), "t1", "2026-03-02", 60)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC), slots[0].StartAt.UTC())
}

func TestSlotServiceGenerateRejectsNonPositiveDuration(t *testing.T) {
	svc := NewSlotService(staticResolver{}, newFakeAppointments(), time.UTC)
	for _, d := range []int{0, -30} {
		_, err := svc.Generate(context.Background(), "t1", "2026-03-02", d)
		assert.ErrorIs(t, err, appErrors.ErrInvalidDuration)
	}
}

func TestSlotServiceGenerateClosedDayIsEmpty(t *testing.T) {
	svc := NewSlotService(staticResolver{intervals: []timegrid.Interval{}}, newFakeAppointments(), time.UTC)
	slots, err := svc.Generate(context.Background(), "t1", "2026-03-02", 30)
	require.NoError(t, err)
	assert.NotNil(t, slots)
	assert.Empty(t, slots)
}

func TestSlotServiceGenerateOnDaylightSavingDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	appts := newFakeAppointments()
	appts.seed(models.Appointment{ID: "busy", TherapistID: "t1", PatientID: "p1", StartAt: time.Date(2026, 3, 8, 10, 0, 0, 0, ny), DurationMinutes: 60, Status: models.AppointmentConfirmed})

	svc := NewSlotService(staticResolver{intervals: []timegrid.Interval{{Start: 540, End: 720}}}, appts, ny)
	slots, err := svc.Generate(context.Background(), "t1", "2026-03-08", 60)
	require.NoError(t, err)

	require.Len(t, slots, 2)
	assert.Equal(t, "09:00", slots[0].Start)
	assert.Equal(t, "11:00", slots[1].Start)
	assert.Equal(t, time.Date(2026, 3, 8, 13, 0, 0, 0, time.UTC), slots[0].StartAt.UTC())
	assert.Equal(t, time.Date(2026, 3, 8, 15, 0, 0, 0, time.UTC), slots[1].StartAt.UTC())
}
