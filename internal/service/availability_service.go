package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/clinic-booking-api/internal/dto"
	"github.com/noah-isme/clinic-booking-api/internal/models"
	appErrors "github.com/noah-isme/clinic-booking-api/pkg/errors"
	"github.com/noah-isme/clinic-booking-api/pkg/timegrid"
)

type availabilityStore interface {
	GetWeeklyTemplate(ctx context.Context, therapistID string) (*models.WeeklyTemplate, error)
	GetWeekdayIntervals(ctx context.Context, therapistID, weekday string) ([]timegrid.Interval, error)
	ReplaceWeeklyTemplate(ctx context.Context, tpl *models.WeeklyTemplate) error
	FindException(ctx context.Context, therapistID, date string) (*models.DayException, error)
	UpsertException(ctx context.Context, exc *models.DayException) error
	DeleteException(ctx context.Context, therapistID, date string) (bool, error)
}

type blockLookup interface {
	FindCovering(ctx context.Context, therapistID string, from, to time.Time) (*models.AbsenceBlock, error)
}

type availabilityCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

// AvailabilityConfig tunes the resolver.
type AvailabilityConfig struct {
	Location *time.Location
	CacheTTL time.Duration
}

// ResolveAvailability applies the precedence DayException > AbsenceBlock > WeeklyTemplate.
// An exception, closed or not, fully replaces the template; a block closes the day; only
// when neither exists does the template for the weekday apply.
func ResolveAvailability(exception *models.DayException, block *models.AbsenceBlock, weekday []timegrid.Interval) (models.AvailabilitySource, []timegrid.Interval) {
	switch {
	case exception != nil && exception.Closed:
		return models.SourceException, []timegrid.Interval{}
	case exception != nil:
		return models.SourceException, timegrid.Sorted(exception.Parsed)
	case block != nil:
		return models.SourceBlock, []timegrid.Interval{}
	case len(weekday) > 0:
		return models.SourceTemplate, timegrid.Sorted(weekday)
	default:
		return models.SourceNone, []timegrid.Interval{}
	}
}

// AvailabilityService resolves and maintains therapist availability declarations.
type AvailabilityService struct {
	store  availabilityStore
	blocks blockLookup
	users  userFinder
	cache  availabilityCache
	logger *zap.Logger
	cfg    AvailabilityConfig
}

// NewAvailabilityService constructs the service. cache may be nil.
func NewAvailabilityService(store availabilityStore, blocks blockLookup, users userFinder, cache availabilityCache, logger *zap.Logger, cfg AvailabilityConfig) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &AvailabilityService{store: store, blocks: blocks, users: users, cache: cache, logger: logger, cfg: cfg}
}

// Location returns the clinic timezone dates are interpreted in.
func (s *AvailabilityService) Location() *time.Location {
	return s.cfg.Location
}

// Resolve returns the ordered open intervals of the therapist on date (YYYY-MM-DD).
func (s *AvailabilityService) Resolve(ctx context.Context, therapistID, date string) (*models.ResolvedAvailability, error) {
	if therapistID == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, "therapist id is required")
	}
	day, err := parseDay(date, s.cfg.Location)
	if err != nil {
		return nil, err
	}

	key := availabilityCacheKey(therapistID, date)
	if s.cache != nil {
		var cached models.ResolvedAvailability
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	resolved, err := s.resolveFromStore(ctx, therapistID, date, day)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, resolved, s.cfg.CacheTTL)
	}
	return resolved, nil
}

func (s *AvailabilityService) resolveFromStore(ctx context.Context, therapistID, date string, day time.Time) (*models.ResolvedAvailability, error) {
	var (
		exception *models.DayException
		block     *models.AbsenceBlock
		weekday   []timegrid.Interval
		err       error
	)

	exception, err = s.store.FindException(ctx, therapistID, date)
	if err != nil {
		return nil, appErrors.FromStore(err, "failed to load day exception")
	}
	if exception == nil {
		from, to := fullDayRange(day)
		block, err = s.blocks.FindCovering(ctx, therapistID, from, to)
		if err != nil {
			return nil, appErrors.FromStore(err, "failed to load absence blocks")
		}
	}
	if exception == nil && block == nil {
		weekday, err = s.store.GetWeekdayIntervals(ctx, therapistID, models.WeekdayName(day.Weekday()))
		if err != nil {
			return nil, appErrors.FromStore(err, "failed to load weekly template")
		}
	}

	source, intervals := ResolveAvailability(exception, block, weekday)
	return &models.ResolvedAvailability{
		TherapistID: therapistID,
		Date:        date,
		Source:      source,
		Intervals:   intervals,
	}, nil
}

// GetWeeklyTemplate returns the therapist's template with HH:MM intervals.
func (s *AvailabilityService) GetWeeklyTemplate(ctx context.Context, therapistID string) (*dto.WeeklyTemplateResponse, error) {
	tpl, err := s.store.GetWeeklyTemplate(ctx, therapistID)
	if err != nil {
		return nil, appErrors.FromStore(err, "failed to load weekly template")
	}
	resp := &dto.WeeklyTemplateResponse{TherapistID: therapistID, Days: make(map[string][]dto.IntervalPayload, len(models.Weekdays))}
	for _, day := range models.Weekdays {
		resp.Days[day] = toPayload(timegrid.Sorted(tpl.Days[day]))
	}
	return resp, nil
}

// ReplaceWeeklyTemplate validates and stores a whole new template.
func (s *AvailabilityService) ReplaceWeeklyTemplate(ctx context.Context, actor dto.Actor, therapistID string, req dto.WeeklyTemplateRequest) (*dto.WeeklyTemplateResponse, error) {
	if !canManageTherapist(actor, therapistID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the therapist or an admin may change this schedule")
	}
	if _, err := requireTherapist(ctx, s.users, therapistID); err != nil {
		return nil, err
	}

	tpl := &models.WeeklyTemplate{TherapistID: therapistID, Days: make(map[string][]timegrid.Interval)}
	for day, payload := range req.Days {
		if !models.IsWeekday(day) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown weekday %q", day))
		}
		intervals, err := fromPayload(payload)
		if err != nil {
			return nil, err
		}
		tpl.Days[day] = intervals
	}

	if err := s.store.ReplaceWeeklyTemplate(ctx, tpl); err != nil {
		return nil, appErrors.FromStore(err, "failed to save weekly template")
	}
	s.Invalidate(ctx, therapistID)
	s.logger.Info("weekly template replaced", zap.String("therapist_id", therapistID), zap.String("actor_id", actor.UserID))
	return s.GetWeeklyTemplate(ctx, therapistID)
}

// UpsertException creates or replaces the override of one date. Existing appointments are
// never touched.
func (s *AvailabilityService) UpsertException(ctx context.Context, actor dto.Actor, therapistID, date string, req dto.DayExceptionRequest) (*dto.DayExceptionResponse, error) {
	if !canManageTherapist(actor, therapistID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the therapist or an admin may change this schedule")
	}
	if _, err := parseDay(date, s.cfg.Location); err != nil {
		return nil, err
	}
	if _, err := requireTherapist(ctx, s.users, therapistID); err != nil {
		return nil, err
	}

	exc := &models.DayException{TherapistID: therapistID, Date: date, Closed: req.Closed}
	if !req.Closed {
		intervals, err := fromPayload(req.Intervals)
		if err != nil {
			return nil, err
		}
		exc.Parsed = intervals
	}

	if err := s.store.UpsertException(ctx, exc); err != nil {
		return nil, appErrors.FromStore(err, "failed to save day exception")
	}
	s.Invalidate(ctx, therapistID)
	return &dto.DayExceptionResponse{
		ID:          exc.ID,
		TherapistID: therapistID,
		Date:        date,
		Closed:      exc.Closed,
		Intervals:   toPayload(exc.Parsed),
	}, nil
}

// DeleteException removes the override of one date.
func (s *AvailabilityService) DeleteException(ctx context.Context, actor dto.Actor, therapistID, date string) error {
	if !canManageTherapist(actor, therapistID) {
		return appErrors.Clone(appErrors.ErrForbidden, "only the therapist or an admin may change this schedule")
	}
	if _, err := parseDay(date, s.cfg.Location); err != nil {
		return err
	}
	existed, err := s.store.DeleteException(ctx, therapistID, date)
	if err != nil {
		return appErrors.FromStore(err, "failed to delete day exception")
	}
	if !existed {
		return appErrors.Clone(appErrors.ErrNotFound, "day exception not found")
	}
	s.Invalidate(ctx, therapistID)
	return nil
}

// Invalidate drops every cached resolution of the therapist.
func (s *AvailabilityService) Invalidate(ctx context.Context, therapistID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, availabilityCachePattern(therapistID)); err != nil {
		s.logger.Warn("availability cache invalidation failed", zap.String("therapist_id", therapistID), zap.Error(err))
	}
}

func availabilityCacheKey(therapistID, date string) string {
	return fmt.Sprintf("availability:%s:%s", therapistID, date)
}

func availabilityCachePattern(therapistID string) string {
	return fmt.Sprintf("availability:%s:*", therapistID)
}

// Describe resolves the date and renders it for the API.
func (s *AvailabilityService) Describe(ctx context.Context, therapistID, date string) (*dto.AvailabilityResponse, error) {
	resolved, err := s.Resolve(ctx, therapistID, date)
	if err != nil {
		return nil, err
	}
	return &dto.AvailabilityResponse{
		TherapistID: resolved.TherapistID,
		Date:        resolved.Date,
		Closed:      resolved.Closed(),
		Source:      resolved.Source,
		Intervals:   toPayload(resolved.Intervals),
	}, nil
}
