package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clinic-booking-api/internal/models"
	appErrors "github.com/noah-isme/clinic-booking-api/pkg/errors"
)

type fakeNotificationStore struct {
	items    []models.Notification
	lastPage int
	lastSize int
	err      error
}

func (f *fakeNotificationStore) ListByUser(ctx context.Context, userID string, page, size int) ([]models.Notification, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	f.lastPage, f.lastSize = page, size
	var out []models.Notification
	for _, n := range f.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, len(out), nil
}

func (f *fakeNotificationStore) MarkRead(ctx context.Context, id, userID string) (bool, error) {
	for i := range f.items {
		if f.items[i].ID == id && f.items[i].UserID == userID {
			f.items[i].Read = true
			return true, nil
		}
	}
	return false, nil
}

func TestNotificationServiceList(t *testing.T) {
	store := &fakeNotificationStore{items: []models.Notification{
		{ID: "n1", UserID: "p1", Kind: models.NotificationCancellation},
		{ID: "n2", UserID: "p2", Kind: models.NotificationReminder},
	}}
	svc := NewNotificationService(store)

	notes, page, err := svc.List(context.Background(), patient, 0, 500)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "n1", notes[0].ID)
	assert.Equal(t, 1, store.lastPage)
	assert.Equal(t, 20, store.lastSize)
	assert.Equal(t, 1, page.TotalCount)

	empty, _, err := svc.List(context.Background(), therapist, 1, 10)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	store.err = errStoreDown
	_, _, err = svc.List(context.Background(), patient, 1, 10)
	assert.Error(t, err)
}

func TestNotificationServiceMarkReadOnlyOwnNotifications(t *testing.T) {
	store := &fakeNotificationStore{items: []models.Notification{{ID: "n1", UserID: "p1"}}}
	svc := NewNotificationService(store)

	err := svc.MarkRead(context.Background(), therapist, "n1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.False(t, store.items[0].Read)

	require.NoError(t, svc.MarkRead(context.Background(), patient, "n1"))
	assert.True(t, store.items[0].Read)
}
