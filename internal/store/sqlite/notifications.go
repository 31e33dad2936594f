package sqlite

import (
	"context"
	"fmt"

	"github.com/vovakirdan/wirenote/internal/store"
)

// ListNotifications returns a user's notifications, newest first.
func (s *SQLiteStore) ListNotifications(ctx context.Context, userID int64, unreadOnly bool) ([]*store.Notification, error) {
	query := `
		SELECT id, user_id, message_id, type, content, created_at, read
		FROM notifications
		WHERE user_id = ?`
	if unreadOnly {
		query += ` AND read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", mapError(err))
	}
	defer rows.Close()

	var notifications []*store.Notification
	for rows.Next() {
		var n store.Notification
		var kind string
		if err := rows.Scan(&n.ID, &n.UserID, &n.MessageID, &kind, &n.Content, &n.CreatedAt, &n.Read); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Type = store.NotificationType(kind)
		notifications = append(notifications, &n)
	}

	return notifications, rows.Err()
}

// MarkNotificationRead flags a notification owned by userID as read.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, userID, notificationID int64) error {
	query := `UPDATE notifications SET read = 1 WHERE id = ? AND user_id = ?`
	result, err := s.db.ExecContext(ctx, query, notificationID, userID)
	if err != nil {
		return fmt.Errorf("update notification: %w", mapError(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("notification %d: %w", notificationID, store.ErrNotFound)
	}
	return nil
}
