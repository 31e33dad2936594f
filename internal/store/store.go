package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an optimistic version check fails.
	ErrConflict = errors.New("version conflict")
	// ErrConstraint is returned when a write violates a unique or foreign key constraint.
	ErrConstraint = errors.New("constraint violation")
	// ErrBusy is returned when the database stayed locked past the busy timeout.
	ErrBusy = errors.New("database busy")
)

// Role grants access to role-gated routes.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// ParseRole validates a role name.
func ParseRole(name string) (Role, bool) {
	switch r := Role(name); r {
	case RoleUser, RoleModerator, RoleAdmin:
		return r, true
	}
	return "", false
}

// User represents an account that can send and receive messages.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// Message represents a persisted direct message.
type Message struct {
	ID         int64
	SenderID   int64
	ReceiverID int64
	ParentID   *int64 // nil for thread roots
	Content    string
	CreatedAt  time.Time
	Edited     bool
	Read       bool
	Version    int64
}

// IsReply reports whether the message answers another message.
func (m *Message) IsReply() bool {
	return m.ParentID != nil
}

// MessageView is a message joined with its participants' usernames.
type MessageView struct {
	Message
	SenderUsername   string
	ReceiverUsername string
}

// MessageHistory is an immutable record of a message's content before an edit.
type MessageHistory struct {
	ID         int64
	MessageID  int64
	OldContent string
	EditedAt   time.Time
	EditedBy   *int64 // nil once the editor account is gone
}

// NotificationType classifies why a notification was raised.
type NotificationType string

const (
	NotificationNewMessage   NotificationType = "new_message"
	NotificationMessageReply NotificationType = "message_reply"
)

// Notification tells a user about a message addressed to them.
type Notification struct {
	ID        int64
	UserID    int64
	MessageID int64
	Type      NotificationType
	Content   string
	CreatedAt time.Time
	Read      bool
}

// UserStore handles user persistence outside of transactions.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// SetUserRole changes a user's role. Returns ErrNotFound for unknown users.
	SetUserRole(ctx context.Context, id int64, role Role) error
}

// MessageStore handles read-side message queries.
type MessageStore interface {
	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// GetMessageView retrieves a message with participant usernames.
	GetMessageView(ctx context.Context, id int64) (*MessageView, error)

	// ListUnreadForUser returns unread messages received by userID, newest first,
	// with sender and parent resolved in the same query.
	ListUnreadForUser(ctx context.Context, userID int64) ([]*MessageView, error)

	// ListReplies returns direct replies to any of parentIDs, oldest first.
	ListReplies(ctx context.Context, parentIDs []int64) ([]*MessageView, error)

	// ListHistory returns the edit history of a message, newest edit first.
	ListHistory(ctx context.Context, messageID int64) ([]*MessageHistory, error)
}

// NotificationStore handles read-side notification queries.
type NotificationStore interface {
	// ListNotifications returns a user's notifications, newest first.
	ListNotifications(ctx context.Context, userID int64, unreadOnly bool) ([]*Notification, error)

	// MarkNotificationRead flags a notification owned by userID as read.
	MarkNotificationRead(ctx context.Context, userID, notificationID int64) error
}

// Tx is the set of operations available inside a store transaction.
// Every write the consistency engine performs goes through a Tx so that
// derived rows commit or roll back together with the triggering message.
type Tx interface {
	GetUserByID(ctx context.Context, id int64) (*User, error)
	// DeleteUser removes a user row. It reports whether a row was removed.
	DeleteUser(ctx context.Context, id int64) (bool, error)

	GetMessage(ctx context.Context, id int64) (*Message, error)
	// ParentOf returns the parent id of a message, or nil for thread roots.
	ParentOf(ctx context.Context, id int64) (*int64, error)
	InsertMessage(ctx context.Context, msg *Message) error
	// UpdateMessageContent writes content and edited flag if the stored version
	// still equals msg.Version, then bumps msg.Version. Returns ErrConflict otherwise.
	UpdateMessageContent(ctx context.Context, msg *Message) error
	MarkMessageRead(ctx context.Context, id int64) error
	DeleteMessage(ctx context.Context, id int64) (bool, error)
	DeleteMessagesBySender(ctx context.Context, userID int64) (int64, error)
	DeleteMessagesByReceiver(ctx context.Context, userID int64) (int64, error)

	InsertHistory(ctx context.Context, h *MessageHistory) error

	InsertNotification(ctx context.Context, n *Notification) error
	DeleteNotificationsForMessage(ctx context.Context, messageID int64) (int64, error)
	DeleteNotificationsForUser(ctx context.Context, userID int64) (int64, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore
	NotificationStore

	// WithTx runs fn inside a write transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close closes the underlying database connection.
	Close() error
}
