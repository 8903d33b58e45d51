package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/clinic-booking-api/internal/models"
)

const absenceBlockColumns = `id, therapist_id, start_at, end_at, reason, kind, created_at`

// AbsenceBlockRepository persists absence blocks.
type AbsenceBlockRepository struct {
	db *sqlx.DB
}

// NewAbsenceBlockRepository constructs the repository.
func NewAbsenceBlockRepository(db *sqlx.DB) *AbsenceBlockRepository {
	return &AbsenceBlockRepository{db: db}
}

// FindCovering returns a block intersecting [from, to] or nil when the range is free.
func (r *AbsenceBlockRepository) FindCovering(ctx context.Context, therapistID string, from, to time.Time) (*models.AbsenceBlock, error) {
	query := `SELECT ` + absenceBlockColumns + ` FROM absence_blocks WHERE therapist_id = $1 AND start_at <= $3 AND end_at >= $2 ORDER BY start_at ASC LIMIT 1`
	var block models.AbsenceBlock
	if err := r.db.GetContext(ctx, &block, query, therapistID, from, to); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find covering absence block: %w", err)
	}
	return &block, nil
}

// ExistsForRange reports whether a block with exactly this range exists.
func (r *AbsenceBlockRepository) ExistsForRange(ctx context.Context, therapistID string, startAt, endAt time.Time) (bool, error) {
	const query = `SELECT 1 FROM absence_blocks WHERE therapist_id = $1 AND start_at = $2 AND end_at = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, therapistID, startAt, endAt); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check absence block: %w", err)
	}
	return true, nil
}

// Create stores a new block.
func (r *AbsenceBlockRepository) Create(ctx context.Context, block *models.AbsenceBlock) error {
	if block.ID == "" {
		block.ID = uuid.NewString()
	}
	if block.CreatedAt.IsZero() {
		block.CreatedAt = time.Now().UTC()
	}
	if block.Kind == "" {
		block.Kind = models.AbsenceBlockFullDay
	}
	query := `INSERT INTO absence_blocks (` + absenceBlockColumns + `) VALUES (:id, :therapist_id, :start_at, :end_at, :reason, :kind, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, block); err != nil {
		return fmt.Errorf("create absence block: %w", err)
	}
	return nil
}

// FindByID loads a block by id.
func (r *AbsenceBlockRepository) FindByID(ctx context.Context, id string) (*models.AbsenceBlock, error) {
	query := `SELECT ` + absenceBlockColumns + ` FROM absence_blocks WHERE id = $1`
	var block models.AbsenceBlock
	if err := r.db.GetContext(ctx, &block, query, id); err != nil {
		return nil, err
	}
	return &block, nil
}

// ListByTherapist returns the therapist's blocks ending at or after from.
func (r *AbsenceBlockRepository) ListByTherapist(ctx context.Context, therapistID string, from time.Time) ([]models.AbsenceBlock, error) {
	query := `SELECT ` + absenceBlockColumns + ` FROM absence_blocks WHERE therapist_id = $1 AND end_at >= $2 ORDER BY start_at ASC`
	var blocks []models.AbsenceBlock
	if err := r.db.SelectContext(ctx, &blocks, query, therapistID, from); err != nil {
		return nil, fmt.Errorf("list absence blocks: %w", err)
	}
	return blocks, nil
}

// ListEndingAfter returns every block, for all therapists, that has not yet ended.
func (r *AbsenceBlockRepository) ListEndingAfter(ctx context.Context, from time.Time) ([]models.AbsenceBlock, error) {
	query := `SELECT ` + absenceBlockColumns + ` FROM absence_blocks WHERE end_at >= $1 ORDER BY start_at ASC`
	var blocks []models.AbsenceBlock
	if err := r.db.SelectContext(ctx, &blocks, query, from); err != nil {
		return nil, fmt.Errorf("list current absence blocks: %w", err)
	}
	return blocks, nil
}

// Delete removes a block. Appointments cancelled by it are left untouched.
func (r *AbsenceBlockRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM absence_blocks WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete absence block: %w", err)
	}
	return nil
}
