// Package delivery hands committed notifications to an external sink
// asynchronously. Nothing in here ever runs inside a store transaction.
package delivery

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vovakirdan/wirenote/internal/store"
)

// Notice is the outbound form of a notification.
type Notice struct {
	ID             string    `json:"id"`
	NotificationID int64     `json:"notification_id"`
	MessageID      int64     `json:"message_id"`
	UserID         int64     `json:"user_id"`
	Type           string    `json:"type"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body"`
	Recipients     []string  `json:"recipients"`
	CreatedAt      time.Time `json:"created_at"`
}

// Render builds the notice for n. The receiver's email, when set, is the
// only recipient.
func Render(n *store.Notification, sender, receiver *store.User) Notice {
	notice := Notice{
		ID:             uuid.NewString(),
		NotificationID: n.ID,
		MessageID:      n.MessageID,
		UserID:         n.UserID,
		Type:           string(n.Type),
		Subject:        fmt.Sprintf("New message from %s", sender.Username),
		Body:           fmt.Sprintf("You have a new message from %s:\n\n%s", sender.Username, n.Content),
		CreatedAt:      n.CreatedAt,
	}
	if receiver != nil && receiver.Email != "" {
		notice.Recipients = []string{receiver.Email}
	}
	return notice
}

// Text renders the notice as a plain mail-like document.
func (n Notice) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\n", strings.Join(n.Recipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\n", n.Subject)
	b.WriteString("\n")
	b.WriteString(n.Body)
	b.WriteString("\n")
	return b.String()
}
