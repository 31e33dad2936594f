package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirenote/internal/service/notifications"
)

// NotificationHandlers provides HTTP handlers for a user's notifications.
type NotificationHandlers struct {
	notifications *notifications.Service
	log           *zerolog.Logger
}

// NewNotificationHandlers creates a new notification handlers instance.
func NewNotificationHandlers(svc *notifications.Service, logger *zerolog.Logger) *NotificationHandlers {
	return &NotificationHandlers{notifications: svc, log: logger}
}

// List handles GET /api/notifications?unread=true.
func (h *NotificationHandlers) List(c *gin.Context) {
	unreadOnly := c.Query("unread") == "true"
	list, err := h.notifications.List(c.Request.Context(), currentUserID(c), unreadOnly)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	resp := make([]NotificationResponse, 0, len(list))
	for _, n := range list {
		resp = append(resp, notificationResponse(n))
	}
	c.JSON(http.StatusOK, resp)
}

// MarkRead handles POST /api/notifications/:id/read.
func (h *NotificationHandlers) MarkRead(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), currentUserID(c), id); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
