package core

import "github.com/vovakirdan/wirenote/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventNotification delivers a freshly committed notification to its owner.
	EventNotification EventKind = iota
	// EventError tells a client why the server is ending its session.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind         EventKind
	Notification *store.Notification
	From         string // sender username for EventNotification
	Error        *CoreError
}

// NotificationEvent is a committed notification together with the two users
// of the message that raised it.
type NotificationEvent struct {
	Notification *store.Notification
	Sender       *store.User
	Receiver     *store.User
}

// Disconnector ends the live sessions of a user.
type Disconnector interface {
	Disconnect(userID int64, reason *CoreError)
}

// Notifier receives notifications after their transaction has committed.
// Implementations must not block the caller.
type Notifier interface {
	Notify(ev NotificationEvent)
}
