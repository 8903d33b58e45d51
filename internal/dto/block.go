package dto

import "github.com/noah-isme/clinic-booking-api/internal/models"

// BlockRequest is the payload of POST /therapists/:id/blocks.
type BlockRequest struct {
	Date   string `json:"date" validate:"required"`
	Reason string `json:"reason" validate:"max=255"`
}

// BlockResult reports the outcome of applying an absence block. CancelledCount may be
// lower than MatchedCount when some cancellations are still queued for retry. Reconciling
// is set when the block is stored but its cascade could not start yet.
type BlockResult struct {
	Block          *models.AbsenceBlock `json:"block"`
	CancelledCount int                  `json:"cancelled_count"`
	MatchedCount   int                  `json:"matched_count"`
	PendingRetry   []string             `json:"pending_retry,omitempty"`
	Reconciling    bool                 `json:"reconciling,omitempty"`
}
