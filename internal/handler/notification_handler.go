package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clinic-booking-api/internal/dto"
	"github.com/noah-isme/clinic-booking-api/internal/models"
	"github.com/noah-isme/clinic-booking-api/pkg/response"
)

type notificationService interface {
	List(ctx context.Context, actor dto.Actor, page, size int) ([]models.Notification, *models.Pagination, error)
	MarkRead(ctx context.Context, actor dto.Actor, id string) error
}

// NotificationHandler exposes the caller's notification inbox.
type NotificationHandler struct {
	notifications notificationService
}

// NewNotificationHandler builds a new handler.
func NewNotificationHandler(notifications notificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List godoc
// @Summary List the caller's notifications
// @Tags Notifications
// @Produce json
// @Param page query int false "Page (default 1)"
// @Param page_size query int false "Page size (default 20)"
// @Success 200 {object} response.Envelope{data=[]models.Notification}
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	notes, page, err := h.notifications.List(c.Request.Context(), actor, queryInt(c, "page", 1), queryInt(c, "page_size", 20))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notes, page)
}

// MarkRead godoc
// @Summary Mark a notification as read
// @Tags Notifications
// @Param id path string true "Notification ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /notifications/{id}/read [patch]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
