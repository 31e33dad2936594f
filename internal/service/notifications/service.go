package notifications

import (
	"context"
	"fmt"

	"github.com/vovakirdan/wirenote/internal/store"
)

// Service exposes a user's notifications.
type Service struct {
	store store.Store
}

// New creates a new notification service.
func New(st store.Store) *Service {
	return &Service{store: st}
}

// List returns userID's notifications, newest first.
func (s *Service) List(ctx context.Context, userID int64, unreadOnly bool) ([]*store.Notification, error) {
	notes, err := s.store.ListNotifications(ctx, userID, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notes, nil
}

// MarkRead flags one of userID's notifications as read. Marking an already
// read notification succeeds; another user's notification is not found.
func (s *Service) MarkRead(ctx context.Context, userID, notificationID int64) error {
	return s.store.MarkNotificationRead(ctx, userID, notificationID)
}
