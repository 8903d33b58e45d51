package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clinic-booking-api/internal/dto"
	"github.com/noah-isme/clinic-booking-api/internal/models"
	"github.com/noah-isme/clinic-booking-api/pkg/response"
)

type blockService interface {
	ApplyBlock(ctx context.Context, actor dto.Actor, therapistID string, req dto.BlockRequest) (*dto.BlockResult, error)
	Unblock(ctx context.Context, actor dto.Actor, blockID string) error
	List(ctx context.Context, therapistID string, now time.Time) ([]models.AbsenceBlock, error)
}

// BlockHandler exposes absence block endpoints.
type BlockHandler struct {
	blocks blockService
	now    func() time.Time
}

// NewBlockHandler builds a new handler.
func NewBlockHandler(blocks blockService) *BlockHandler {
	return &BlockHandler{blocks: blocks, now: time.Now}
}

// Apply godoc
// @Summary Block a therapist's day
// @Description Cancels every pending or confirmed appointment starting that day and notifies each patient.
// @Tags Blocks
// @Accept json
// @Produce json
// @Param id path string true "Therapist ID"
// @Param payload body dto.BlockRequest true "Block payload"
// @Success 201 {object} response.Envelope{data=dto.BlockResult}
// @Success 202 {object} response.Envelope{data=dto.BlockResult} "Some cancellations are queued (pending_retry) or the cascade is still reconciling"
// @Failure 409 {object} response.Envelope "DUPLICATE_BLOCK"
// @Router /therapists/{id}/blocks [post]
func (h *BlockHandler) Apply(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.BlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "block"))
		return
	}
	result, err := h.blocks.ApplyBlock(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusCreated
	if len(result.PendingRetry) > 0 || result.Reconciling {
		status = http.StatusAccepted
	}
	response.JSON(c, status, result, nil)
}

// List godoc
// @Summary List a therapist's current and upcoming blocks
// @Tags Blocks
// @Produce json
// @Param id path string true "Therapist ID"
// @Success 200 {object} response.Envelope{data=[]models.AbsenceBlock}
// @Router /therapists/{id}/blocks [get]
func (h *BlockHandler) List(c *gin.Context) {
	blocks, err := h.blocks.List(c.Request.Context(), c.Param("id"), h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, blocks)
}

// Unblock godoc
// @Summary Remove an absence block
// @Description Cancelled appointments are not restored.
// @Tags Blocks
// @Param id path string true "Block ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /blocks/{id} [delete]
func (h *BlockHandler) Unblock(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.blocks.Unblock(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
