package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/clinic-booking-api/internal/dto"
	"github.com/noah-isme/clinic-booking-api/internal/models"
	appErrors "github.com/noah-isme/clinic-booking-api/pkg/errors"
	"github.com/noah-isme/clinic-booking-api/pkg/export"
)

var agendaHeaders = []string{"start", "end", "minutes", "status", "patient", "reason"}

type agendaLister interface {
	ListForDate(ctx context.Context, actor dto.Actor, therapistID, date string) ([]models.Appointment, error)
}

// AgendaFile is a rendered agenda ready to be streamed.
type AgendaFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// AgendaService renders a therapist's daily agenda as CSV or PDF.
type AgendaService struct {
	appointments agendaLister
	renderers    map[string]export.Renderer
	loc          *time.Location
	logger       *zap.Logger
}

// NewAgendaService constructs the service with the CSV and PDF renderers.
func NewAgendaService(appointments agendaLister, loc *time.Location, logger *zap.Logger) *AgendaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &AgendaService{
		appointments: appointments,
		renderers: map[string]export.Renderer{
			"csv": export.NewCSVExporter(),
			"pdf": export.NewPDFExporter(),
		},
		loc:    loc,
		logger: logger,
	}
}

// Export renders the non-cancelled appointments of the therapist on date.
func (s *AgendaService) Export(ctx context.Context, actor dto.Actor, therapistID, date, format string) (*AgendaFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidRequest, fmt.Sprintf("unsupported agenda format %q", format))
	}

	appts, err := s.appointments.ListForDate(ctx, actor, therapistID, date)
	if err != nil {
		return nil, err
	}

	data := export.Dataset{
		Title:    "Therapist agenda",
		Subtitle: fmt.Sprintf("%s (%s)", date, s.loc.String()),
		Headers:  agendaHeaders,
	}
	for _, appt := range appts {
		if appt.Status == models.AppointmentCancelled {
			continue
		}
		data.Rows = append(data.Rows, map[string]string{
			"start":   appt.StartAt.In(s.loc).Format("15:04"),
			"end":     appt.EndAt.In(s.loc).Format("15:04"),
			"minutes": strconv.Itoa(appt.DurationMinutes),
			"status":  string(appt.Status),
			"patient": appt.PatientID,
			"reason":  appt.Reason,
		})
	}

	payload, err := renderer.Render(data)
	if err != nil {
		s.logger.Error("agenda render failed", zap.String("therapist_id", therapistID), zap.String("format", format), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render agenda")
	}
	return &AgendaFile{
		Filename:    fmt.Sprintf("agenda_%s_%s.%s", sanitizeFilename(therapistID), date, renderer.Extension()),
		ContentType: renderer.ContentType(),
		Data:        payload,
	}, nil
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 64 {
		return result[:64]
	}
	return result
}
