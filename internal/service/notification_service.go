package service

import (
	"context"

	"github.com/noah-isme/clinic-booking-api/internal/dto"
	"github.com/noah-isme/clinic-booking-api/internal/models"
	appErrors "github.com/noah-isme/clinic-booking-api/pkg/errors"
)

type notificationStore interface {
	ListByUser(ctx context.Context, userID string, page, size int) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, id, userID string) (bool, error)
}

// NotificationService exposes the recipient's inbox.
type NotificationService struct {
	repo notificationStore
}

// NewNotificationService constructs the service.
func NewNotificationService(repo notificationStore) *NotificationService {
	return &NotificationService{repo: repo}
}

// List returns the actor's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, actor dto.Actor, page, size int) ([]models.Notification, *models.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	notes, total, err := s.repo.ListByUser(ctx, actor.UserID, page, size)
	if err != nil {
		return nil, nil, appErrors.FromStore(err, "failed to list notifications")
	}
	if notes == nil {
		notes = []models.Notification{}
	}
	return notes, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// MarkRead flags one of the actor's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, actor dto.Actor, id string) error {
	ok, err := s.repo.MarkRead(ctx, id, actor.UserID)
	if err != nil {
		return appErrors.FromStore(err, "failed to update notification")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	return nil
}
