package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/clinic-booking-api/internal/dto"
	"github.com/noah-isme/clinic-booking-api/internal/models"
	"github.com/noah-isme/clinic-booking-api/internal/repository"
	appErrors "github.com/noah-isme/clinic-booking-api/pkg/errors"
	"github.com/noah-isme/clinic-booking-api/pkg/timegrid"
)

type appointmentStore interface {
	FindByID(ctx context.Context, id string) (*models.Appointment, error)
	ListStartingWithin(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, error)
	CreateIfNoOverlap(ctx context.Context, appt *models.Appointment) error
	UpdateStatus(ctx context.Context, id string, from []models.AppointmentStatus, to models.AppointmentStatus) (bool, error)
}

// BookingConfig holds the booking rules.
type BookingConfig struct {
	Location            *time.Location
	MinDurationMinutes  int
	EnforceAvailability bool
	Now                 func() time.Time
}

// BookingService admits bookings and drives appointment status transitions.
type BookingService struct {
	appointments appointmentStore
	users        userFinder
	resolver     availabilityResolver
	validator    *validator.Validate
	metrics      *MetricsService
	logger       *zap.Logger
	cfg          BookingConfig
}

// NewBookingService constructs the service.
func NewBookingService(appointments appointmentStore, users userFinder, resolver availabilityResolver, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, cfg BookingConfig) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MinDurationMinutes <= 0 {
		cfg.MinDurationMinutes = 30
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &BookingService{
		appointments: appointments,
		users:        users,
		resolver:     resolver,
		validator:    validate,
		metrics:      metrics,
		logger:       logger,
		cfg:          cfg,
	}
}

// TryBook admits the booking when it overlaps no non-cancelled appointment of the therapist.
// The overlap check and the insert happen atomically in the store.
func (s *BookingService) TryBook(ctx context.Context, actor dto.Actor, req dto.BookingRequest) (*models.Appointment, error) {
	appt, err := s.tryBook(ctx, actor, req)
	switch {
	case err == nil:
		s.metrics.RecordBooking(BookingOutcomeCreated)
	case errors.Is(err, appErrors.ErrSlotConflict):
		s.metrics.RecordBooking(BookingOutcomeConflict)
	case errors.Is(err, appErrors.ErrStoreUnavailable), errors.Is(err, appErrors.ErrInternal):
		s.metrics.RecordBooking(BookingOutcomeError)
	default:
		s.metrics.RecordBooking(BookingOutcomeRejected)
	}
	return appt, err
}

func (s *BookingService) tryBook(ctx context.Context, actor dto.Actor, req dto.BookingRequest) (*models.Appointment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}

	startAt, err := time.Parse(time.RFC3339, req.StartAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidRequest.Code, appErrors.ErrInvalidRequest.Status, "start_at must be an RFC3339 timestamp")
	}
	if req.DurationMinutes < s.cfg.MinDurationMinutes {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "duration_minutes is below the minimum appointment length")
	}

	patientID, err := s.bookingPatient(actor, req.PatientID)
	if err != nil {
		return nil, err
	}
	if _, err := requireTherapist(ctx, s.users, req.TherapistID); err != nil {
		return nil, err
	}

	startAt = startAt.UTC()
	if !startAt.After(s.cfg.Now()) {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "start_at must be in the future")
	}
	endAt := startAt.Add(time.Duration(req.DurationMinutes) * time.Minute)

	if s.cfg.EnforceAvailability && s.resolver != nil {
		if err := s.checkAvailability(ctx, req.TherapistID, startAt, endAt); err != nil {
			return nil, err
		}
	}

	appt := &models.Appointment{
		PatientID:       patientID,
		TherapistID:     req.TherapistID,
		StartAt:         startAt,
		EndAt:           endAt,
		DurationMinutes: req.DurationMinutes,
		Reason:          req.Reason,
		Notes:           req.Notes,
		Status:          models.AppointmentPending,
	}
	if err := s.appointments.CreateIfNoOverlap(ctx, appt); err != nil {
		if errors.Is(err, repository.ErrOverlap) {
			return nil, appErrors.Clone(appErrors.ErrSlotConflict, "the therapist already has an appointment in this time range")
		}
		return nil, appErrors.FromStore(err, "failed to create appointment")
	}

	s.logger.Info("appointment booked",
		zap.String("appointment_id", appt.ID),
		zap.String("therapist_id", appt.TherapistID),
		zap.String("patient_id", appt.PatientID),
		zap.Time("start_at", appt.StartAt),
		zap.Int("duration_minutes", appt.DurationMinutes),
	)
	return appt, nil
}

func (s *BookingService) bookingPatient(actor dto.Actor, requested string) (string, error) {
	switch actor.Role {
	case models.RolePatient:
		if requested != "" && requested != actor.UserID {
			return "", appErrors.Clone(appErrors.ErrForbidden, "patients may only book for themselves")
		}
		return actor.UserID, nil
	case models.RoleAdmin:
		if requested == "" {
			return "", appErrors.Clone(appErrors.ErrInvalidRequest, "patient_id is required when booking on behalf of a patient")
		}
		return requested, nil
	default:
		return "", appErrors.Clone(appErrors.ErrForbidden, "only patients and admins may book appointments")
	}
}

// checkAvailability requires [startAt, endAt) to sit inside one open interval of its local date.
func (s *BookingService) checkAvailability(ctx context.Context, therapistID string, startAt, endAt time.Time) error {
	local := startAt.In(s.cfg.Location)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.cfg.Location)
	resolved, err := s.resolver.Resolve(ctx, therapistID, day.Format(dateLayout))
	if err != nil {
		return err
	}
	_, dayEnd := fullDayRange(day)
	if endAt.After(dayEnd.Add(time.Millisecond)) {
		return appErrors.Clone(appErrors.ErrOutsideAvailability, "requested time is outside the therapist availability")
	}
	start := timegrid.MinuteOfDay(day, startAt)
	end := timegrid.MinuteOfDay(day, endAt)
	if end <= start || !timegrid.Covers(resolved.Intervals, start, end) {
		return appErrors.Clone(appErrors.ErrOutsideAvailability, "requested time is outside the therapist availability")
	}
	return nil
}

// Get returns an appointment visible to the actor.
func (s *BookingService) Get(ctx context.Context, actor dto.Actor, id string) (*models.Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, appt) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "appointment belongs to another user")
	}
	return appt, nil
}

// ListForDate returns every appointment of the therapist starting on date, in any status.
func (s *BookingService) ListForDate(ctx context.Context, actor dto.Actor, therapistID, date string) ([]models.Appointment, error) {
	if !canManageTherapist(actor, therapistID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the therapist or an admin may list this agenda")
	}
	day, err := parseDay(date, s.cfg.Location)
	if err != nil {
		return nil, err
	}
	from, to := fullDayRange(day)
	appts, err := s.appointments.ListStartingWithin(ctx, models.AppointmentFilter{TherapistID: therapistID, From: from, To: to})
	if err != nil {
		return nil, appErrors.FromStore(err, "failed to list appointments")
	}
	if appts == nil {
		appts = []models.Appointment{}
	}
	return appts, nil
}

// UpdateStatus applies a status transition allowed by the actor's role. Cancelled and
// completed are terminal.
func (s *BookingService) UpdateStatus(ctx context.Context, actor dto.Actor, id string, req dto.UpdateStatusRequest) (*models.Appointment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, appt) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "appointment belongs to another user")
	}
	if err := s.checkTransition(actor, appt, req.Status); err != nil {
		return nil, err
	}

	changed, err := s.appointments.UpdateStatus(ctx, appt.ID, []models.AppointmentStatus{appt.Status}, req.Status)
	if err != nil {
		return nil, appErrors.FromStore(err, "failed to update appointment status")
	}
	if !changed {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "appointment status changed concurrently, reload and retry")
	}

	s.logger.Info("appointment status changed",
		zap.String("appointment_id", appt.ID),
		zap.String("from", string(appt.Status)),
		zap.String("to", string(req.Status)),
		zap.String("actor_id", actor.UserID),
	)
	appt.Status = req.Status
	appt.UpdatedAt = s.cfg.Now().UTC()
	return appt, nil
}

func (s *BookingService) checkTransition(actor dto.Actor, appt *models.Appointment, to models.AppointmentStatus) error {
	if appt.Status.IsTerminal() {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "appointment is already "+string(appt.Status))
	}
	if appt.Status == to {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "appointment is already "+string(to))
	}
	switch actor.Role {
	case models.RolePatient:
		if to != models.AppointmentCancelled {
			return appErrors.Clone(appErrors.ErrForbidden, "patients may only cancel their appointments")
		}
		if !appt.StartAt.After(s.cfg.Now()) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "appointments that already started cannot be cancelled by the patient")
		}
	case models.RoleTherapist, models.RoleAdmin:
	default:
		return appErrors.ErrForbidden
	}
	return nil
}

func (s *BookingService) load(ctx context.Context, id string) (*models.Appointment, error) {
	appt, err := s.appointments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return nil, appErrors.FromStore(err, "failed to load appointment")
	}
	return appt, nil
}

func canView(actor dto.Actor, appt *models.Appointment) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleTherapist:
		return appt.TherapistID == actor.UserID
	case models.RolePatient:
		return appt.PatientID == actor.UserID
	}
	return false
}
