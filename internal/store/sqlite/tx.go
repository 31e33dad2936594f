package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vovakirdan/wirenote/internal/store"
)

// sqliteTx implements store.Tx on top of a single *sql.Tx.
// It must never touch SQLiteStore.db: the pool holds one connection and the
// transaction already owns it.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	return getUser(ctx, t.tx, "id = ?", id)
}

func (t *sqliteTx) DeleteUser(ctx context.Context, id int64) (bool, error) {
	n, err := t.exec(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	return n > 0, nil
}

func (t *sqliteTx) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	return getMessage(ctx, t.tx, id)
}

func (t *sqliteTx) ParentOf(ctx context.Context, id int64) (*int64, error) {
	var parentID sql.NullInt64
	err := t.tx.QueryRowContext(ctx, `SELECT parent_id FROM messages WHERE id = ?`, id).Scan(&parentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query parent: %w", mapError(err))
	}
	if !parentID.Valid {
		return nil, nil
	}
	return &parentID.Int64, nil
}

func (t *sqliteTx) InsertMessage(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO messages (sender_id, receiver_id, parent_id, content, created_at, edited, read, version)
		VALUES (?, ?, ?, ?, ?, 0, 0, 1)
	`
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now()
	}
	result, err := t.tx.ExecContext(ctx, query, msg.SenderID, msg.ReceiverID, msg.ParentID, msg.Content, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", mapError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	msg.ID = id
	msg.Edited = false
	msg.Read = false
	msg.Version = 1
	return nil
}

func (t *sqliteTx) UpdateMessageContent(ctx context.Context, msg *store.Message) error {
	query := `
		UPDATE messages
		SET content = ?, edited = ?, version = version + 1
		WHERE id = ? AND version = ?
	`
	n, err := t.exec(ctx, query, msg.Content, msg.Edited, msg.ID, msg.Version)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if n == 0 {
		if _, getErr := t.GetMessage(ctx, msg.ID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("message %d at version %d: %w", msg.ID, msg.Version, store.ErrConflict)
	}
	msg.Version++
	return nil
}

func (t *sqliteTx) MarkMessageRead(ctx context.Context, id int64) error {
	n, err := t.exec(ctx, `UPDATE messages SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark message read: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("message %d: %w", id, store.ErrNotFound)
	}
	return nil
}

func (t *sqliteTx) DeleteMessage(ctx context.Context, id int64) (bool, error) {
	n, err := t.exec(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	return n > 0, nil
}

func (t *sqliteTx) DeleteMessagesBySender(ctx context.Context, userID int64) (int64, error) {
	n, err := t.exec(ctx, `DELETE FROM messages WHERE sender_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete sent messages: %w", err)
	}
	return n, nil
}

func (t *sqliteTx) DeleteMessagesByReceiver(ctx context.Context, userID int64) (int64, error) {
	n, err := t.exec(ctx, `DELETE FROM messages WHERE receiver_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete received messages: %w", err)
	}
	return n, nil
}

func (t *sqliteTx) InsertHistory(ctx context.Context, h *store.MessageHistory) error {
	query := `
		INSERT INTO message_history (message_id, old_content, edited_at, edited_by)
		VALUES (?, ?, ?, ?)
	`
	if h.EditedAt.IsZero() {
		h.EditedAt = now()
	}
	result, err := t.tx.ExecContext(ctx, query, h.MessageID, h.OldContent, h.EditedAt, h.EditedBy)
	if err != nil {
		return fmt.Errorf("insert history: %w", mapError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	h.ID = id
	return nil
}

func (t *sqliteTx) InsertNotification(ctx context.Context, n *store.Notification) error {
	query := `
		INSERT INTO notifications (user_id, message_id, type, content, created_at, read)
		VALUES (?, ?, ?, ?, ?, 0)
	`
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now()
	}
	result, err := t.tx.ExecContext(ctx, query, n.UserID, n.MessageID, string(n.Type), n.Content, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", mapError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	n.ID = id
	n.Read = false
	return nil
}

func (t *sqliteTx) DeleteNotificationsForMessage(ctx context.Context, messageID int64) (int64, error) {
	n, err := t.exec(ctx, `DELETE FROM notifications WHERE message_id = ?`, messageID)
	if err != nil {
		return 0, fmt.Errorf("delete message notifications: %w", err)
	}
	return n, nil
}

func (t *sqliteTx) DeleteNotificationsForUser(ctx context.Context, userID int64) (int64, error) {
	n, err := t.exec(ctx, `DELETE FROM notifications WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user notifications: %w", err)
	}
	return n, nil
}

func (t *sqliteTx) exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, nil
}
