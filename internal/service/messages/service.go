package messages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirenote/internal/cache"
	"github.com/vovakirdan/wirenote/internal/core"
	"github.com/vovakirdan/wirenote/internal/metrics"
	"github.com/vovakirdan/wirenote/internal/store"
)

// Common errors for message operations.
var (
	ErrReceiverNotFound = errors.New("receiver not found")
)

const (
	defaultEditRetries    = 3
	defaultEditRetryDelay = 20 * time.Millisecond
)

// Service runs message writes in store transactions together with the
// consistency engine, then publishes the derived notifications.
type Service struct {
	store     store.Store
	engine    *core.Engine
	notifiers []core.Notifier
	metrics   *metrics.Metrics
	reads     *cache.Reads
	log       *zerolog.Logger

	editRetries    int
	editRetryDelay time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithNotifiers registers post-commit notification consumers.
func WithNotifiers(n ...core.Notifier) Option {
	return func(s *Service) { s.notifiers = append(s.notifiers, n...) }
}

// WithMetrics records message activity.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithReadCache caches unread and thread reads. Every committed write
// invalidates it.
func WithReadCache(r *cache.Reads) Option {
	return func(s *Service) { s.reads = r }
}

// WithEditRetry sets how often an unversioned edit is retried after a
// conflict or a busy database, and the pause between attempts.
func WithEditRetry(retries int, delay time.Duration) Option {
	return func(s *Service) {
		if retries >= 0 {
			s.editRetries = retries
		}
		if delay > 0 {
			s.editRetryDelay = delay
		}
	}
}

// New creates a new message service.
func New(st store.Store, engine *core.Engine, logger *zerolog.Logger, opts ...Option) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &Service{
		store:          st,
		engine:         engine,
		log:            logger,
		editRetries:    defaultEditRetries,
		editRetryDelay: defaultEditRetryDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send creates a message and its notification atomically. parentID, when
// set, must name a message the sender takes part in.
func (s *Service) Send(ctx context.Context, senderID, receiverID int64, content string, parentID *int64) (*store.MessageView, error) {
	if strings.TrimSpace(content) == "" {
		return nil, core.ErrEmptyContent
	}

	msg := &store.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		ParentID:   parentID,
		Content:    content,
	}
	var (
		sender, receiver *store.User
		notification     *store.Notification
	)

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if receiver, err = tx.GetUserByID(ctx, receiverID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %w", ErrReceiverNotFound, err)
			}
			return err
		}
		if sender, err = tx.GetUserByID(ctx, senderID); err != nil {
			return fmt.Errorf("load sender: %w", err)
		}

		if parentID != nil {
			if err := s.engine.CheckParent(ctx, tx, *parentID); err != nil {
				return err
			}
			parent, err := tx.GetMessage(ctx, *parentID)
			if err != nil {
				return fmt.Errorf("load parent: %w", err)
			}
			if parent.SenderID != senderID && parent.ReceiverID != senderID {
				return fmt.Errorf("reply to message %d: %w", parent.ID, core.ErrForbidden)
			}
		}

		if err := tx.InsertMessage(ctx, msg); err != nil {
			return err
		}
		notification, err = s.engine.OnMessageCreated(ctx, tx, msg)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.reads.Invalidate()

	s.metrics.MessageCreated()
	s.log.Debug().Int64("message_id", msg.ID).Int64("sender_id", senderID).Int64("receiver_id", receiverID).Msg("message sent")
	s.publish(core.NotificationEvent{Notification: notification, Sender: sender, Receiver: receiver})

	return &store.MessageView{
		Message:          *msg,
		SenderUsername:   sender.Username,
		ReceiverUsername: receiver.Username,
	}, nil
}

// Edit replaces a message's content on behalf of its sender. With a non-zero
// expectedVersion the edit fails with store.ErrConflict if the message has
// moved on; without one it is retried on conflicts and busy errors.
func (s *Service) Edit(ctx context.Context, actorID, messageID int64, content string, expectedVersion int64) (*store.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, core.ErrEmptyContent
	}

	var result *store.Message
	attempt := func() error {
		return s.store.WithTx(ctx, func(tx store.Tx) error {
			old, err := tx.GetMessage(ctx, messageID)
			if err != nil {
				return err
			}
			if old.SenderID != actorID {
				return fmt.Errorf("edit message %d: %w", messageID, core.ErrForbidden)
			}
			if expectedVersion > 0 && old.Version != expectedVersion {
				return fmt.Errorf("message %d is at version %d, not %d: %w", messageID, old.Version, expectedVersion, store.ErrConflict)
			}

			next := *old
			next.Content = content
			h, err := s.engine.OnMessageBeforeUpdate(ctx, tx, old, &next, actorID)
			if err != nil {
				return err
			}
			if h == nil {
				result = old
				return nil
			}
			if err := tx.UpdateMessageContent(ctx, &next); err != nil {
				return err
			}
			result = &next
			return nil
		})
	}

	if expectedVersion > 0 {
		if err := attempt(); err != nil {
			return nil, err
		}
		s.reads.Invalidate()
		return result, nil
	}

	op := func() error {
		err := attempt()
		if err == nil || errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrBusy) {
			return err
		}
		return backoff.Permanent(err)
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.editRetryDelay), uint64(s.editRetries)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	s.reads.Invalidate()
	return result, nil
}

// Delete removes a message on behalf of its sender, together with its
// notification, history and replies.
func (s *Service) Delete(ctx context.Context, actorID, messageID int64) error {
	return s.write(ctx, func(tx store.Tx) error {
		msg, err := tx.GetMessage(ctx, messageID)
		if err != nil {
			return err
		}
		if msg.SenderID != actorID {
			return fmt.Errorf("delete message %d: %w", messageID, core.ErrForbidden)
		}
		return s.engine.OnMessageDeleted(ctx, tx, msg)
	})
}

// Get returns a message to one of its participants. A receiver fetching an
// unread message marks it read.
func (s *Service) Get(ctx context.Context, actorID, messageID int64) (*store.MessageView, error) {
	view, err := s.store.GetMessageView(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !participant(&view.Message, actorID) {
		return nil, fmt.Errorf("read message %d: %w", messageID, core.ErrForbidden)
	}

	if view.ReceiverID == actorID && !view.Read {
		err := s.write(ctx, func(tx store.Tx) error {
			return tx.MarkMessageRead(ctx, messageID)
		})
		if err != nil {
			return nil, fmt.Errorf("mark read: %w", err)
		}
		view.Read = true
	}
	return view, nil
}

// MarkRead flags a message as read by its receiver.
func (s *Service) MarkRead(ctx context.Context, actorID, messageID int64) error {
	return s.write(ctx, func(tx store.Tx) error {
		msg, err := tx.GetMessage(ctx, messageID)
		if err != nil {
			return err
		}
		if msg.ReceiverID != actorID {
			return fmt.Errorf("mark message %d read: %w", messageID, core.ErrForbidden)
		}
		if msg.Read {
			return nil
		}
		return tx.MarkMessageRead(ctx, messageID)
	})
}

// History returns the edit history of a message, newest edit first.
func (s *Service) History(ctx context.Context, actorID, messageID int64) ([]*store.MessageHistory, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !participant(msg, actorID) {
		return nil, fmt.Errorf("read history of message %d: %w", messageID, core.ErrForbidden)
	}
	return s.store.ListHistory(ctx, messageID)
}

// write runs fn in a transaction and retires cached reads once it commits.
func (s *Service) write(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := s.store.WithTx(ctx, fn); err != nil {
		return err
	}
	s.reads.Invalidate()
	return nil
}

func (s *Service) publish(ev core.NotificationEvent) {
	if ev.Notification == nil {
		return
	}
	for _, n := range s.notifiers {
		n.Notify(ev)
	}
}

func participant(msg *store.Message, userID int64) bool {
	return msg.SenderID == userID || msg.ReceiverID == userID
}
