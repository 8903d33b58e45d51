package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/clinic-booking-api/internal/dto"
	"github.com/noah-isme/clinic-booking-api/internal/models"
	appErrors "github.com/noah-isme/clinic-booking-api/pkg/errors"
	"github.com/noah-isme/clinic-booking-api/pkg/jobs"
)

// CascadeJobType identifies queued retries of a single block cancellation.
const CascadeJobType = "block_cascade"

var activeAppointmentStatuses = []models.AppointmentStatus{models.AppointmentPending, models.AppointmentConfirmed}

type blockStore interface {
	ExistsForRange(ctx context.Context, therapistID string, startAt, endAt time.Time) (bool, error)
	Create(ctx context.Context, block *models.AbsenceBlock) error
	FindByID(ctx context.Context, id string) (*models.AbsenceBlock, error)
	ListByTherapist(ctx context.Context, therapistID string, from time.Time) ([]models.AbsenceBlock, error)
	ListEndingAfter(ctx context.Context, from time.Time) ([]models.AbsenceBlock, error)
	Delete(ctx context.Context, id string) error
}

type cascadeStore interface {
	FindByID(ctx context.Context, id string) (*models.Appointment, error)
	ListStartingWithin(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, error)
	CancelWithNotification(ctx context.Context, appointmentID string, note *models.Notification) (bool, error)
}

type availabilityInvalidator interface {
	Invalidate(ctx context.Context, therapistID string)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// CascadePayload is the body of a queued cascade retry.
type CascadePayload struct {
	BlockID       string
	AppointmentID string
}

// BlockService applies and removes absence blocks, cancelling the appointments they cover.
type BlockService struct {
	blocks       blockStore
	appointments cascadeStore
	users        userFinder
	availability availabilityInvalidator
	queue        jobDispatcher
	validator    *validator.Validate
	metrics      *MetricsService
	logger       *zap.Logger
	loc          *time.Location
}

// NewBlockService constructs the service. queue and availability may be nil.
func NewBlockService(blocks blockStore, appointments cascadeStore, users userFinder, availability availabilityInvalidator, queue jobDispatcher, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, loc *time.Location) *BlockService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &BlockService{
		blocks:       blocks,
		appointments: appointments,
		users:        users,
		availability: availability,
		queue:        queue,
		validator:    validate,
		metrics:      metrics,
		logger:       logger,
		loc:          loc,
	}
}

// SetQueue attaches the retry queue once it exists; the queue handler itself needs the service.
func (s *BlockService) SetQueue(queue jobDispatcher) {
	s.queue = queue
}

// ApplyBlock closes the therapist's date and cancels, with one notification each, every
// pending or confirmed appointment starting inside it. Units that fail are queued for retry
// and reported in PendingRetry, so CancelledCount may be lower than MatchedCount. When the
// affected appointments cannot be loaded at all, the stored block is returned with
// Reconciling set and the cascade is left to ReconcileBlocks.
func (s *BlockService) ApplyBlock(ctx context.Context, actor dto.Actor, therapistID string, req dto.BlockRequest) (*dto.BlockResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid block payload")
	}
	if !canManageTherapist(actor, therapistID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the therapist or an admin may block this schedule")
	}
	day, err := parseDay(req.Date, s.loc)
	if err != nil {
		return nil, err
	}
	if _, err := requireTherapist(ctx, s.users, therapistID); err != nil {
		return nil, err
	}

	startAt, endAt := fullDayRange(day)
	exists, err := s.blocks.ExistsForRange(ctx, therapistID, startAt, endAt)
	if err != nil {
		return nil, appErrors.FromStore(err, "failed to check absence blocks")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateBlock, fmt.Sprintf("an absence block already exists for %s", req.Date))
	}

	block := &models.AbsenceBlock{
		TherapistID: therapistID,
		StartAt:     startAt,
		EndAt:       endAt,
		Reason:      req.Reason,
		Kind:        models.AbsenceBlockFullDay,
	}
	if err := s.blocks.Create(ctx, block); err != nil {
		if appErrors.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateBlock, fmt.Sprintf("an absence block already exists for %s", req.Date))
		}
		return nil, appErrors.FromStore(err, "failed to create absence block")
	}
	s.invalidate(ctx, therapistID)

	result, err := s.cascade(ctx, block)
	if err != nil {
		// The block is stored; start-up reconciliation finishes the cascade.
		s.logger.Error("block cascade lookup failed", zap.String("block_id", block.ID), zap.Error(err))
		return &dto.BlockResult{Block: block, Reconciling: true}, nil
	}

	s.logger.Info("absence block applied",
		zap.String("block_id", block.ID),
		zap.String("therapist_id", therapistID),
		zap.String("date", req.Date),
		zap.Int("matched", result.MatchedCount),
		zap.Int("cancelled", result.CancelledCount),
		zap.Int("pending_retry", len(result.PendingRetry)),
	)
	return result, nil
}

func (s *BlockService) cascade(ctx context.Context, block *models.AbsenceBlock) (*dto.BlockResult, error) {
	affected, err := s.appointments.ListStartingWithin(ctx, models.AppointmentFilter{
		TherapistID:   block.TherapistID,
		From:          block.StartAt,
		To:            block.EndAt,
		Statuses:      activeAppointmentStatuses,
		CreatedBefore: block.CreatedAt,
	})
	if err != nil {
		return nil, err
	}

	result := &dto.BlockResult{Block: block, MatchedCount: len(affected)}
	skipped := 0
	for i := range affected {
		appt := &affected[i]
		cancelled, err := s.appointments.CancelWithNotification(ctx, appt.ID, s.cancellationNotice(appt))
		if err != nil {
			s.logger.Warn("cascade cancellation failed, queued for retry",
				zap.String("block_id", block.ID),
				zap.String("appointment_id", appt.ID),
				zap.Error(err),
			)
			result.PendingRetry = append(result.PendingRetry, appt.ID)
			s.enqueueRetry(block.ID, appt.ID)
			continue
		}
		if cancelled {
			result.CancelledCount++
		} else {
			skipped++
		}
	}

	s.metrics.RecordCascade("cancelled", result.CancelledCount)
	s.metrics.RecordCascade("skipped", skipped)
	s.metrics.RecordCascade("retry", len(result.PendingRetry))
	return result, nil
}

func (s *BlockService) cancellationNotice(appt *models.Appointment) *models.Notification {
	local := appt.StartAt.In(s.loc)
	return &models.Notification{
		UserID:        appt.PatientID,
		AppointmentID: appt.ID,
		Kind:          models.NotificationCancellation,
		Message: fmt.Sprintf("Your appointment on %s at %s was cancelled: therapist unavailable.",
			local.Format(dateLayout), local.Format("15:04")),
	}
}

func (s *BlockService) enqueueRetry(blockID, appointmentID string) {
	if s.queue == nil {
		return
	}
	job := jobs.Job{
		ID:      appointmentID,
		Type:    CascadeJobType,
		Payload: CascadePayload{BlockID: blockID, AppointmentID: appointmentID},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Error("failed to queue cascade retry", zap.String("appointment_id", appointmentID), zap.Error(err))
	}
}

// HandleCascadeJob retries one cancellation. It is safe to run more than once: an appointment
// that is no longer active is skipped and the notification insert is idempotent.
func (s *BlockService) HandleCascadeJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(CascadePayload)
	if !ok {
		return fmt.Errorf("unexpected cascade payload %T", job.Payload)
	}
	block, err := s.blocks.FindByID(ctx, payload.BlockID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Info("block removed before cascade retry", zap.String("block_id", payload.BlockID))
			return nil
		}
		return err
	}
	appt, err := s.appointments.FindByID(ctx, payload.AppointmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	if !appt.Status.IsActive() || bookedAfter(appt, block) {
		return nil
	}
	cancelled, err := s.appointments.CancelWithNotification(ctx, appt.ID, s.cancellationNotice(appt))
	if err != nil {
		return err
	}
	if cancelled {
		s.metrics.RecordCascade("cancelled", 1)
	}
	return nil
}

// bookedAfter reports whether appt was admitted after block existed, e.g. through a later
// open day exception. Such bookings are outside the block's cascade.
func bookedAfter(appt *models.Appointment, block *models.AbsenceBlock) bool {
	return !block.CreatedAt.IsZero() && appt.CreatedAt.After(block.CreatedAt)
}

// ReconcileBlocks replays the cascade of every block that has not ended by now, cancelling
// appointments a crash may have left behind. Appointments booked after the block are kept.
// It returns how many were cancelled.
func (s *BlockService) ReconcileBlocks(ctx context.Context, now time.Time) (int, error) {
	blocks, err := s.blocks.ListEndingAfter(ctx, now)
	if err != nil {
		return 0, appErrors.FromStore(err, "failed to list absence blocks")
	}
	total := 0
	for i := range blocks {
		result, err := s.cascade(ctx, &blocks[i])
		if err != nil {
			s.logger.Warn("block reconciliation failed", zap.String("block_id", blocks[i].ID), zap.Error(err))
			continue
		}
		total += result.CancelledCount
	}
	if total > 0 {
		s.logger.Info("absence blocks reconciled", zap.Int("blocks", len(blocks)), zap.Int("cancelled", total))
	}
	return total, nil
}

// Unblock deletes a block. Appointments it cancelled stay cancelled.
func (s *BlockService) Unblock(ctx context.Context, actor dto.Actor, blockID string) error {
	block, err := s.blocks.FindByID(ctx, blockID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "absence block not found")
		}
		return appErrors.FromStore(err, "failed to load absence block")
	}
	if !canManageTherapist(actor, block.TherapistID) {
		return appErrors.Clone(appErrors.ErrForbidden, "only the therapist or an admin may remove this block")
	}
	if err := s.blocks.Delete(ctx, blockID); err != nil {
		return appErrors.FromStore(err, "failed to delete absence block")
	}
	s.invalidate(ctx, block.TherapistID)
	s.logger.Info("absence block removed", zap.String("block_id", blockID), zap.String("therapist_id", block.TherapistID))
	return nil
}

// List returns the therapist's blocks that have not ended before today.
func (s *BlockService) List(ctx context.Context, therapistID string, now time.Time) ([]models.AbsenceBlock, error) {
	local := now.In(s.loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	blocks, err := s.blocks.ListByTherapist(ctx, therapistID, today)
	if err != nil {
		return nil, appErrors.FromStore(err, "failed to list absence blocks")
	}
	if blocks == nil {
		blocks = []models.AbsenceBlock{}
	}
	return blocks, nil
}

func (s *BlockService) invalidate(ctx context.Context, therapistID string) {
	if s.availability != nil {
		s.availability.Invalidate(ctx, therapistID)
	}
}
