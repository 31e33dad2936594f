package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/wirenote/internal/store"
)

const messageColumns = `m.id, m.sender_id, m.receiver_id, m.parent_id, m.content, m.created_at, m.edited, m.read, m.version`

const messageViewColumns = messageColumns + `, s.username, r.username`

const messageViewJoin = `
		FROM messages m
		JOIN users s ON s.id = m.sender_id
		JOIN users r ON r.id = m.receiver_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner, extra ...any) (*store.Message, error) {
	var msg store.Message
	var parentID sql.NullInt64
	dest := []any{
		&msg.ID,
		&msg.SenderID,
		&msg.ReceiverID,
		&parentID,
		&msg.Content,
		&msg.CreatedAt,
		&msg.Edited,
		&msg.Read,
		&msg.Version,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if parentID.Valid {
		msg.ParentID = &parentID.Int64
	}
	return &msg, nil
}

func scanMessageView(row rowScanner) (*store.MessageView, error) {
	var view store.MessageView
	msg, err := scanMessage(row, &view.SenderUsername, &view.ReceiverUsername)
	if err != nil {
		return nil, err
	}
	view.Message = *msg
	return &view, nil
}

func getMessage(ctx context.Context, q querier, id int64) (*store.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages m WHERE m.id = ?`
	msg, err := scanMessage(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", mapError(err))
	}
	return msg, nil
}

// ==== MessageStore implementation ====

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	return getMessage(ctx, s.db, id)
}

// GetMessageView retrieves a message with participant usernames.
func (s *SQLiteStore) GetMessageView(ctx context.Context, id int64) (*store.MessageView, error) {
	query := `SELECT ` + messageViewColumns + messageViewJoin + ` WHERE m.id = ?`
	view, err := scanMessageView(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", mapError(err))
	}
	return view, nil
}

// ListUnreadForUser returns unread messages received by userID, newest first.
func (s *SQLiteStore) ListUnreadForUser(ctx context.Context, userID int64) ([]*store.MessageView, error) {
	query := `SELECT ` + messageViewColumns + messageViewJoin + `
		WHERE m.receiver_id = ? AND m.read = 0
		ORDER BY m.created_at DESC, m.id DESC
	`
	return s.queryViews(ctx, query, userID)
}

// ListReplies returns direct replies to any of parentIDs, oldest first.
func (s *SQLiteStore) ListReplies(ctx context.Context, parentIDs []int64) ([]*store.MessageView, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(parentIDs)), ",")
	args := make([]any, 0, len(parentIDs))
	for _, id := range parentIDs {
		args = append(args, id)
	}

	query := `SELECT ` + messageViewColumns + messageViewJoin + `
		WHERE m.parent_id IN (` + placeholders + `)
		ORDER BY m.created_at ASC, m.id ASC
	`
	return s.queryViews(ctx, query, args...)
}

func (s *SQLiteStore) queryViews(ctx context.Context, query string, args ...any) ([]*store.MessageView, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", mapError(err))
	}
	defer rows.Close()

	var views []*store.MessageView
	for rows.Next() {
		view, err := scanMessageView(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		views = append(views, view)
	}

	return views, rows.Err()
}

// ListHistory returns the edit history of a message, newest edit first.
func (s *SQLiteStore) ListHistory(ctx context.Context, messageID int64) ([]*store.MessageHistory, error) {
	query := `
		SELECT id, message_id, old_content, edited_at, edited_by
		FROM message_history
		WHERE message_id = ?
		ORDER BY edited_at DESC, id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, messageID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", mapError(err))
	}
	defer rows.Close()

	var history []*store.MessageHistory
	for rows.Next() {
		var h store.MessageHistory
		var editedBy sql.NullInt64
		if err := rows.Scan(&h.ID, &h.MessageID, &h.OldContent, &h.EditedAt, &editedBy); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if editedBy.Valid {
			h.EditedBy = &editedBy.Int64
		}
		history = append(history, &h)
	}

	return history, rows.Err()
}
