package core

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirenote/internal/metrics"
	"github.com/vovakirdan/wirenote/internal/store"
)

const (
	// DefaultMaxThreadDepth bounds how many ancestors a reply may have.
	DefaultMaxThreadDepth = 32
	// previewRunes is the length of the body prefix embedded in notifications.
	previewRunes = 50
)

// PurgeStats reports what OnUserDeleted removed.
type PurgeStats struct {
	SentMessages     int64
	ReceivedMessages int64
	Notifications    int64
}

// Engine keeps notifications and edit history consistent with message writes.
// Every method runs inside the caller's transaction and never commits on its
// own, so derived rows share the fate of the write that triggered them.
type Engine struct {
	now      func() time.Time
	maxDepth int
	metrics  *metrics.Metrics
	log      *zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMaxThreadDepth overrides DefaultMaxThreadDepth.
func WithMaxThreadDepth(depth int) Option {
	return func(e *Engine) {
		if depth > 0 {
			e.maxDepth = depth
		}
	}
}

// WithMetrics records engine activity.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine builds an engine.
func NewEngine(logger *zerolog.Logger, opts ...Option) *Engine {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	e := &Engine{
		now:      func() time.Time { return time.Now().UTC() },
		maxDepth: DefaultMaxThreadDepth,
		log:      logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxThreadDepth returns the configured depth bound.
func (e *Engine) MaxThreadDepth() int {
	return e.maxDepth
}

// CheckParent verifies that a new reply may hang below parentID.
func (e *Engine) CheckParent(ctx context.Context, tx store.Tx, parentID int64) error {
	seen := make(map[int64]struct{}, 8)
	current := &parentID
	for depth := 1; current != nil; depth++ {
		if depth > e.maxDepth {
			return threadTooDeep(e.maxDepth)
		}
		if _, ok := seen[*current]; ok {
			return fmt.Errorf("%w at message %d", ErrThreadCycle, *current)
		}
		seen[*current] = struct{}{}

		next, err := tx.ParentOf(ctx, *current)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				if *current == parentID {
					return fmt.Errorf("%w: %d", ErrParentNotFound, parentID)
				}
				// A broken ancestor link ends the chain.
				return nil
			}
			return fmt.Errorf("walk thread: %w", err)
		}
		current = next
	}
	return nil
}

// OnMessageCreated derives the receiver's notification for a freshly inserted message.
func (e *Engine) OnMessageCreated(ctx context.Context, tx store.Tx, msg *store.Message) (*store.Notification, error) {
	sender, err := tx.GetUserByID(ctx, msg.SenderID)
	if err != nil {
		return nil, fmt.Errorf("load sender: %w", err)
	}

	n := &store.Notification{
		UserID:    msg.ReceiverID,
		MessageID: msg.ID,
		Type:      store.NotificationNewMessage,
		Content:   fmt.Sprintf("New message from %s: %s...", sender.Username, preview(msg.Content)),
		CreatedAt: e.now(),
	}
	if msg.IsReply() {
		n.Type = store.NotificationMessageReply
		n.Content = fmt.Sprintf("%s replied to your message: %s...", sender.Username, preview(msg.Content))
	}

	if err := tx.InsertNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	e.metrics.NotificationCreated(string(n.Type))
	e.log.Debug().
		Int64("message_id", msg.ID).
		Int64("user_id", n.UserID).
		Str("type", string(n.Type)).
		Msg("notification derived")
	return n, nil
}

// OnMessageBeforeUpdate records the previous content when an edit changes it.
// old must have been read inside tx; next is the row about to be written and
// gets its Edited flag set. Returns nil history when the content is unchanged.
func (e *Engine) OnMessageBeforeUpdate(ctx context.Context, tx store.Tx, old, next *store.Message, editorID int64) (*store.MessageHistory, error) {
	if old.Content == next.Content {
		return nil, nil
	}

	next.Edited = true
	h := &store.MessageHistory{
		MessageID:  old.ID,
		OldContent: old.Content,
		EditedAt:   e.now(),
		EditedBy:   &editorID,
	}
	if err := tx.InsertHistory(ctx, h); err != nil {
		return nil, fmt.Errorf("record history: %w", err)
	}

	e.metrics.HistoryRecorded()
	return h, nil
}

// OnMessageDeleted removes a message and its notification. History rows and
// replies go with the message through the store's cascade.
func (e *Engine) OnMessageDeleted(ctx context.Context, tx store.Tx, msg *store.Message) error {
	if _, err := tx.DeleteNotificationsForMessage(ctx, msg.ID); err != nil {
		return err
	}
	if _, err := tx.DeleteMessage(ctx, msg.ID); err != nil {
		return err
	}
	return nil
}

// OnUserDeleted purges everything a user takes part in. It runs before the
// user row itself is removed, in the same transaction, and is a no-op for a
// user with nothing left.
func (e *Engine) OnUserDeleted(ctx context.Context, tx store.Tx, userID int64) (PurgeStats, error) {
	var stats PurgeStats
	var err error

	if stats.SentMessages, err = tx.DeleteMessagesBySender(ctx, userID); err != nil {
		return stats, err
	}
	if stats.ReceivedMessages, err = tx.DeleteMessagesByReceiver(ctx, userID); err != nil {
		return stats, err
	}
	if stats.Notifications, err = tx.DeleteNotificationsForUser(ctx, userID); err != nil {
		return stats, err
	}

	e.log.Info().
		Int64("user_id", userID).
		Int64("sent", stats.SentMessages).
		Int64("received", stats.ReceivedMessages).
		Int64("notifications", stats.Notifications).
		Msg("user data purged")
	return stats, nil
}

func preview(body string) string {
	if utf8.RuneCountInString(body) <= previewRunes {
		return body
	}
	runes := []rune(body)
	return string(runes[:previewRunes])
}
