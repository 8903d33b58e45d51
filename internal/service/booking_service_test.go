package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clinic-booking-api/internal/dto"
	"github.com/noah-isme/clinic-booking-api/internal/models"
	appErrors "github.com/noah-isme/clinic-booking-api/pkg/errors"
	"github.com/noah-isme/clinic-booking-api/pkg/timegrid"
)

var (
	patient   = dto.Actor{UserID: "p1", Role: models.RolePatient}
	therapist = dto.Actor{UserID: "t1", Role: models.RoleTherapist}
	admin     = dto.Actor{UserID: "a1", Role: models.RoleAdmin}
)

func newBookingFixture(t *testing.T, enforce bool, open ...timegrid.Interval) (*BookingService, *fakeAppointments, *MetricsService) {
	t.Helper()
	appts := newFakeAppointments()
	metrics := NewMetricsService()
	if len(open) == 0 {
		open = []timegrid.Interval{{Start: 8 * 60, End: 18 * 60}}
	}
	svc := NewBookingService(appts, newFakeUsers(), staticResolver{intervals: open}, nil, metrics, nil, BookingConfig{
		Location:            time.UTC,
		MinDurationMinutes:  30,
		EnforceAvailability: enforce,
		Now:                 fixedNow,
	})
	return svc, appts, metrics
}

func bookingAt(start time.Time, minutes int) dto.BookingRequest {
	return dto.BookingRequest{TherapistID: "t1", StartAt: start.Format(time.RFC3339), DurationMinutes: minutes, Reason: "check-up"}
}

func TestBookingServiceTryBookCreatesPending(t *testing.T) {
	svc, _, metrics := newBookingFixture(t, true)

	appt, err := svc.TryBook(context.Background(), patient, bookingAt(at(10, 0), 60))
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentPending, appt.Status)
	assert.Equal(t, "p1", appt.PatientID)
	assert.Equal(t, at(11, 0), appt.EndAt)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.bookings.WithLabelValues(BookingOutcomeCreated)))
}

func TestBookingServiceConflictAndTouchingBoundary(t *testing.T) {
	svc, appts, metrics := newBookingFixture(t, true)
	appts.seed(models.Appointment{ID: "existing", TherapistID: "t1", PatientID: "p2", StartAt: at(10, 30), DurationMinutes: 60, Status: models.AppointmentConfirmed})
	ctx := context.Background()

	_, err := svc.TryBook(ctx, patient, bookingAt(at(10, 0), 60))
	assert.ErrorIs(t, err, appErrors.ErrSlotConflict)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.bookings.WithLabelValues(BookingOutcomeConflict)))

	appt, err := svc.TryBook(ctx, patient, bookingAt(at(10, 0), 30))
	require.NoError(t, err)
	assert.Equal(t, at(10, 30), appt.EndAt)
}

func TestBookingServiceIgnoresCancelledAppointments(t *testing.T) {
	svc, appts, _ := newBookingFixture(t, true)
	appts.seed(models.Appointment{ID: "old", TherapistID: "t1", PatientID: "p2", StartAt: at(10, 0), DurationMinutes: 60, Status: models.AppointmentCancelled})

	_, err := svc.TryBook(context.Background(), patient, bookingAt(at(10, 0), 60))
	require.NoError(t, err)
}

func TestBookingServiceConcurrentAttemptsAdmitOne(t *testing.T) {
	svc, appts, _ := newBookingFixture(t, false)
	ctx := context.Background()

	const attempts = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := at(10, 0).Add(time.Duration(i%4) * 15 * time.Minute)
			_, err := svc.TryBook(ctx, patient, bookingAt(start, 60))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, appErrors.ErrSlotConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, conflicts)

	live, err := appts.ListOverlapping(ctx, models.AppointmentFilter{TherapistID: "t1", From: monday, To: monday.Add(24 * time.Hour), Statuses: occupyingStatuses})
	require.NoError(t, err)
	for i := range live {
		for j := i + 1; j < len(live); j++ {
			assert.False(t, timegrid.OverlapsTime(live[i].StartAt, live[i].EndAt, live[j].StartAt, live[j].EndAt))
		}
	}
}

func TestBookingServiceRejectsInvalidInput(t *testing.T) {
	svc, _, _ := newBookingFixture(t, true)
	ctx := context.Background()

	tests := []struct {
		name  string
		actor dto.Actor
		req   dto.BookingRequest
		want  *appErrors.Error
	}{
		{name: "zero duration", actor: patient, req: bookingAt(at(10, 0), 0), want: appErrors.ErrInvalidRequest},
		{name: "negative duration", actor: patient, req: bookingAt(at(10, 0), -30), want: appErrors.ErrInvalidRequest},
		{name: "below floor", actor: patient, req: bookingAt(at(10, 0), 15), want: appErrors.ErrInvalidRequest},
		{name: "unparseable start", actor: patient, req: dto.BookingRequest{TherapistID: "t1", StartAt: "tomorrow", DurationMinutes: 30}, want: appErrors.ErrInvalidRequest},
		{name: "missing therapist", actor: patient, req: dto.BookingRequest{StartAt: at(10, 0).Format(time.RFC3339), DurationMinutes: 30}, want: appErrors.ErrValidation},
		{name: "target is a patient", actor: patient, req: dto.BookingRequest{TherapistID: "p2", StartAt: at(10, 0).Format(time.RFC3339), DurationMinutes: 30}, want: appErrors.ErrInvalidTarget},
		{name: "unknown therapist", actor: patient, req: dto.BookingRequest{TherapistID: "ghost", StartAt: at(10, 0).Format(time.RFC3339), DurationMinutes: 30}, want: appErrors.ErrInvalidTarget},
		{name: "start in the past", actor: patient, req: bookingAt(testNow.Add(-time.Hour), 30), want: appErrors.ErrInvalidRequest},
		{name: "outside availability", actor: patient, req: bookingAt(at(17, 30), 60), want: appErrors.ErrOutsideAvailability},
		{name: "patient books for someone else", actor: patient, req: dto.BookingRequest{TherapistID: "t1", PatientID: "p2", StartAt: at(10, 0).Format(time.RFC3339), DurationMinutes: 30}, want: appErrors.ErrForbidden},
		{name: "admin without patient", actor: admin, req: bookingAt(at(10, 0), 30), want: appErrors.ErrInvalidRequest},
		{name: "therapist cannot book", actor: therapist, req: bookingAt(at(10, 0), 30), want: appErrors.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appt, err := svc.TryBook(ctx, tt.actor, tt.req)
			assert.Nil(t, appt)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBookingServiceAdminBooksOnBehalf(t *testing.T) {
	svc, _, _ := newBookingFixture(t, true)
	req := bookingAt(at(9, 0), 45)
	req.PatientID = "p2"

	appt, err := svc.TryBook(context.Background(), admin, req)
	require.NoError(t, err)
	assert.Equal(t, "p2", appt.PatientID)
}

func TestBookingServiceStoreOutageIsNotAConflict(t *testing.T) {
	appts := &failingCreateStore{fakeAppointments: newFakeAppointments(), err: context.DeadlineExceeded}
	svc := NewBookingService(appts, newFakeUsers(), nil, nil, nil, nil, BookingConfig{Now: fixedNow})

	_, err := svc.TryBook(context.Background(), patient, bookingAt(at(10, 0), 30))
	assert.ErrorIs(t, err, appErrors.ErrStoreUnavailable)
	assert.False(t, errors.Is(err, appErrors.ErrSlotConflict))
}

type failingCreateStore struct {
	*fakeAppointments
	err error
}

func (f *failingCreateStore) CreateIfNoOverlap(ctx context.Context, appt *models.Appointment) error {
	return f.err
}

func TestBookingServiceUpdateStatusRoleMatrix(t *testing.T) {
	svc, appts, _ := newBookingFixture(t, true)
	ctx := context.Background()
	seed := func(id string, status models.AppointmentStatus, start time.Time) {
		appts.seed(models.Appointment{ID: id, TherapistID: "t1", PatientID: "p1", StartAt: start, DurationMinutes: 30, Status: status})
	}
	seed("pending", models.AppointmentPending, at(9, 0))
	seed("confirmed", models.AppointmentConfirmed, at(10, 0))
	seed("done", models.AppointmentCompleted, at(11, 0))
	seed("started", models.AppointmentConfirmed, testNow.Add(-10*time.Minute))

	status := func(s models.AppointmentStatus) dto.UpdateStatusRequest { return dto.UpdateStatusRequest{Status: s} }

	_, err := svc.UpdateStatus(ctx, patient, "pending", status(models.AppointmentConfirmed))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.UpdateStatus(ctx, dto.Actor{UserID: "p2", Role: models.RolePatient}, "pending", status(models.AppointmentCancelled))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.UpdateStatus(ctx, dto.Actor{UserID: "t2", Role: models.RoleTherapist}, "pending", status(models.AppointmentConfirmed))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	updated, err := svc.UpdateStatus(ctx, therapist, "pending", status(models.AppointmentConfirmed))
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentConfirmed, updated.Status)

	updated, err = svc.UpdateStatus(ctx, therapist, "pending", status(models.AppointmentPending))
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentPending, updated.Status)

	_, err = svc.UpdateStatus(ctx, patient, "started", status(models.AppointmentCancelled))
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)

	updated, err = svc.UpdateStatus(ctx, patient, "confirmed", status(models.AppointmentCancelled))
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentCancelled, appts.get("confirmed").Status)
	assert.Equal(t, models.AppointmentCancelled, updated.Status)

	_, err = svc.UpdateStatus(ctx, admin, "confirmed", status(models.AppointmentPending))
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)

	_, err = svc.UpdateStatus(ctx, admin, "done", status(models.AppointmentCancelled))
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)

	_, err = svc.UpdateStatus(ctx, admin, "missing", status(models.AppointmentCancelled))
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.UpdateStatus(ctx, admin, "pending", dto.UpdateStatusRequest{Status: "archived"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestBookingServiceGetAndListForDate(t *testing.T) {
	svc, appts, _ := newBookingFixture(t, true)
	ctx := context.Background()
	appts.seed(models.Appointment{ID: "a", TherapistID: "t1", PatientID: "p1", StartAt: at(9, 0), DurationMinutes: 30, Status: models.AppointmentPending})
	appts.seed(models.Appointment{ID: "b", TherapistID: "t1", PatientID: "p2", StartAt: at(8, 0), DurationMinutes: 30, Status: models.AppointmentCancelled})
	appts.seed(models.Appointment{ID: "c", TherapistID: "t1", PatientID: "p2", StartAt: at(9, 0).Add(24 * time.Hour), DurationMinutes: 30, Status: models.AppointmentPending})

	got, err := svc.Get(ctx, patient, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)

	_, err = svc.Get(ctx, dto.Actor{UserID: "p2", Role: models.RolePatient}, "a")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	list, err := svc.ListForDate(ctx, therapist, "t1", "2026-03-02")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)

	_, err = svc.ListForDate(ctx, patient, "t1", "2026-03-02")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestBookingServiceAvailabilityUsesLocalWallClockOnDaylightSavingDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	appts := newFakeAppointments()
	svc := NewBookingService(appts, newFakeUsers(), staticResolver{intervals: []timegrid.Interval{{Start: 540, End: 720}}}, nil, nil, nil, BookingConfig{
		Location:            ny,
		EnforceAvailability: true,
		Now:                 fixedNow,
	})
	ctx := context.Background()

	appt, err := svc.TryBook(ctx, patient, bookingAt(time.Date(2026, 3, 8, 9, 0, 0, 0, ny), 60))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 8, 13, 0, 0, 0, time.UTC), appt.StartAt)

	_, err = svc.TryBook(ctx, patient, bookingAt(time.Date(2026, 3, 8, 11, 30, 0, 0, ny), 60))
	assert.ErrorIs(t, err, appErrors.ErrOutsideAvailability)

	_, err = svc.TryBook(ctx, patient, bookingAt(time.Date(2026, 3, 8, 11, 0, 0, 0, ny), 60))
	require.NoError(t, err)
}
