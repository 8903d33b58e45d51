package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/clinic-booking-api/internal/models"
	appErrors "github.com/noah-isme/clinic-booking-api/pkg/errors"
)

type sweepAppointmentStore interface {
	CompleteEndedBefore(ctx context.Context, now time.Time) (int64, error)
	ListActiveStartingBetween(ctx context.Context, from, to time.Time) ([]models.Appointment, error)
}

type notificationWriter interface {
	CreateIfAbsent(ctx context.Context, note *models.Notification) (bool, error)
}

// SweepConfig configures the periodic sweeps.
type SweepConfig struct {
	CompletionInterval time.Duration
	ReminderInterval   time.Duration
	ReminderLead       time.Duration
	Location           *time.Location
}

// SweepService runs the idempotent completion and reminder sweeps. Both take the reference
// instant as an argument; only Start reads the clock.
type SweepService struct {
	appointments  sweepAppointmentStore
	notifications notificationWriter
	metrics       *MetricsService
	logger        *zap.Logger
	cfg           SweepConfig
	now           func() time.Time
}

// NewSweepService constructs the service.
func NewSweepService(appointments sweepAppointmentStore, notifications notificationWriter, metrics *MetricsService, logger *zap.Logger, cfg SweepConfig) *SweepService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReminderLead <= 0 {
		cfg.ReminderLead = 24 * time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &SweepService{appointments: appointments, notifications: notifications, metrics: metrics, logger: logger, cfg: cfg, now: time.Now}
}

// CompletePast marks pending and confirmed appointments that ended at or before now as completed.
func (s *SweepService) CompletePast(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.appointments.CompleteEndedBefore(ctx, now)
	if err != nil {
		return 0, appErrors.FromStore(err, "failed to complete past appointments")
	}
	s.metrics.RecordSweep("completion", int(n))
	if n > 0 {
		s.logger.Info("past appointments completed", zap.Int64("count", n), zap.Time("now", now))
	}
	return n, nil
}

// SendReminders creates one reminder per active appointment starting in (now, now+lead].
// Running it again for the same window creates nothing new.
func (s *SweepService) SendReminders(ctx context.Context, now time.Time) (int, error) {
	upcoming, err := s.appointments.ListActiveStartingBetween(ctx, now, now.Add(s.cfg.ReminderLead))
	if err != nil {
		return 0, appErrors.FromStore(err, "failed to list upcoming appointments")
	}
	created := 0
	for _, appt := range upcoming {
		local := appt.StartAt.In(s.cfg.Location)
		note := &models.Notification{
			UserID:        appt.PatientID,
			AppointmentID: appt.ID,
			Kind:          models.NotificationReminder,
			Message:       fmt.Sprintf("Reminder: you have an appointment on %s at %s.", local.Format(dateLayout), local.Format("15:04")),
		}
		ok, err := s.notifications.CreateIfAbsent(ctx, note)
		if err != nil {
			s.logger.Warn("reminder creation failed", zap.String("appointment_id", appt.ID), zap.Error(err))
			continue
		}
		if ok {
			created++
		}
	}
	s.metrics.RecordSweep("reminder", created)
	if created > 0 {
		s.logger.Info("appointment reminders created", zap.Int("count", created))
	}
	return created, nil
}

// Start runs both sweeps on their tickers until ctx is cancelled.
func (s *SweepService) Start(ctx context.Context) {
	s.loop(ctx, s.cfg.CompletionInterval, func(ctx context.Context, now time.Time) {
		if _, err := s.CompletePast(ctx, now); err != nil {
			s.logger.Warn("completion sweep failed", zap.Error(err))
		}
	})
	s.loop(ctx, s.cfg.ReminderInterval, func(ctx context.Context, now time.Time) {
		if _, err := s.SendReminders(ctx, now); err != nil {
			s.logger.Warn("reminder sweep failed", zap.Error(err))
		}
	})
}

func (s *SweepService) loop(ctx context.Context, interval time.Duration, run func(context.Context, time.Time)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run(ctx, s.now().UTC())
			}
		}
	}()
}
