package core

import (
	"context"

	"github.com/rs/zerolog"
)

type hubDelivery struct {
	userID int64
	event  *Event
}

type hubDisconnect struct {
	userID int64
	reason *CoreError
}

// Hub fans committed notifications out to the owner's connected clients.
// All client bookkeeping happens on the Run goroutine.
type Hub struct {
	register    chan *Client
	unregister  chan *Client
	deliveries  chan hubDelivery
	disconnects chan hubDisconnect
	done        chan struct{}
	clients     map[int64]map[*Client]struct{}
	log         *zerolog.Logger
}

// NewHub creates a new notification hub instance.
func NewHub(logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		deliveries:  make(chan hubDelivery, 256),
		disconnects: make(chan hubDisconnect, 16),
		done:        make(chan struct{}),
		clients:     make(map[int64]map[*Client]struct{}),
		log:         logger,
	}
}

// Run processes registrations and deliveries until ctx is cancelled.
// Remaining clients have their event channels closed on exit.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for _, set := range h.clients {
				for c := range set {
					close(c.Events)
				}
			}
			h.clients = make(map[int64]map[*Client]struct{})
			return
		case c := <-h.register:
			set, ok := h.clients[c.UserID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[c.UserID] = set
			}
			set[c] = struct{}{}
			h.log.Debug().Str("client_id", c.ID).Int64("user_id", c.UserID).Msg("client registered")
		case c := <-h.unregister:
			h.remove(c)
		case d := <-h.deliveries:
			for c := range h.clients[d.userID] {
				select {
				case c.Events <- d.event:
				default:
					h.log.Warn().Str("client_id", c.ID).Int64("user_id", d.userID).Msg("client event buffer full, dropping event")
				}
			}
		case d := <-h.disconnects:
			for c := range h.clients[d.userID] {
				select {
				case c.Events <- &Event{Kind: EventError, Error: d.reason}:
				default:
				}
				h.remove(c)
			}
		}
	}
}

// RegisterClient attaches a client. It reports false when the hub has stopped.
func (h *Hub) RegisterClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// UnregisterClient detaches a client and closes its event channel.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish queues an event for every client of userID. It never blocks;
// the event is dropped when the hub is saturated.
func (h *Hub) Publish(userID int64, ev *Event) {
	select {
	case h.deliveries <- hubDelivery{userID: userID, event: ev}:
	default:
		h.log.Warn().Int64("user_id", userID).Msg("hub queue full, dropping event")
	}
}

// Disconnect sends reason to every client of userID and then detaches them.
// It implements Disconnector.
func (h *Hub) Disconnect(userID int64, reason *CoreError) {
	select {
	case h.disconnects <- hubDisconnect{userID: userID, reason: reason}:
	case <-h.done:
	}
}

// Notify implements Notifier.
func (h *Hub) Notify(ev NotificationEvent) {
	if ev.Notification == nil {
		return
	}
	out := &Event{Kind: EventNotification, Notification: ev.Notification}
	if ev.Sender != nil {
		out.From = ev.Sender.Username
	}
	h.Publish(ev.Notification.UserID, out)
}

func (h *Hub) remove(c *Client) {
	set, ok := h.clients[c.UserID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.UserID)
	}
	close(c.Events)
	h.log.Debug().Str("client_id", c.ID).Int64("user_id", c.UserID).Msg("client unregistered")
}
