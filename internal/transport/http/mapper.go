package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirenote/internal/core"
	"github.com/vovakirdan/wirenote/internal/proto"
	"github.com/vovakirdan/wirenote/internal/service/messages"
	"github.com/vovakirdan/wirenote/internal/store"
)

var statusByCode = map[string]int{
	core.ErrCodeNotFound:      http.StatusNotFound,
	core.ErrCodeForbidden:     http.StatusForbidden,
	core.ErrCodeConflict:      http.StatusConflict,
	core.ErrCodeBadRequest:    http.StatusBadRequest,
	core.ErrCodeThreadInvalid: http.StatusBadRequest,
	core.ErrCodeUnauthorized:  http.StatusUnauthorized,
	core.ErrCodeRateLimited:   http.StatusTooManyRequests,
	core.ErrCodeOutsideWindow: http.StatusForbidden,
}

// writeError maps a service error onto a status code and JSON body.
func writeError(c *gin.Context, logger *zerolog.Logger, err error) {
	if errors.Is(err, messages.ErrReceiverNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: core.ErrCodeNotFound})
		return
	}

	ce := core.ToCoreError(err)
	status, ok := statusByCode[ce.Code]
	if !ok {
		status = http.StatusInternalServerError
		logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	c.JSON(status, ErrorResponse{Error: ce.Message, Code: ce.Code})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: core.ErrCodeBadRequest})
}

// pathID parses the :id route parameter. It writes a 400 and returns false on failure.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}

// currentUserID returns the authenticated user set by AuthMiddleware.
func currentUserID(c *gin.Context) int64 {
	return c.GetInt64(ContextKeyUserID)
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func userResponse(u *store.User) *UserResponse {
	return &UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
	}
}

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID               int64     `json:"id"`
	SenderID         int64     `json:"sender_id"`
	SenderUsername   string    `json:"sender_username,omitempty"`
	ReceiverID       int64     `json:"receiver_id"`
	ReceiverUsername string    `json:"receiver_username,omitempty"`
	ParentID         *int64    `json:"parent_id"`
	Content          string    `json:"content"`
	CreatedAt        time.Time `json:"created_at"`
	Edited           bool      `json:"edited"`
	Read             bool      `json:"read"`
	Version          int64     `json:"version"`
}

func messageResponse(m *store.Message) MessageResponse {
	return MessageResponse{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		ParentID:   m.ParentID,
		Content:    m.Content,
		CreatedAt:  m.CreatedAt,
		Edited:     m.Edited,
		Read:       m.Read,
		Version:    m.Version,
	}
}

func messageViewResponse(v *store.MessageView) MessageResponse {
	resp := messageResponse(&v.Message)
	resp.SenderUsername = v.SenderUsername
	resp.ReceiverUsername = v.ReceiverUsername
	return resp
}

// HistoryResponse is one prior version of a message.
type HistoryResponse struct {
	ID         int64     `json:"id"`
	OldContent string    `json:"old_content"`
	EditedAt   time.Time `json:"edited_at"`
	EditedBy   *int64    `json:"edited_by"`
}

// ThreadResponse is a message with its nested replies.
type ThreadResponse struct {
	MessageResponse
	Replies []ThreadResponse `json:"replies"`
}

func threadResponse(node *messages.ThreadNode) ThreadResponse {
	resp := ThreadResponse{
		MessageResponse: messageViewResponse(node.Message),
		Replies:         make([]ThreadResponse, 0, len(node.Replies)),
	}
	for _, child := range node.Replies {
		resp.Replies = append(resp.Replies, threadResponse(child))
	}
	return resp
}

// NotificationResponse represents a notification in API responses.
type NotificationResponse struct {
	ID        int64     `json:"id"`
	MessageID int64     `json:"message_id"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
}

func notificationResponse(n *store.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		MessageID: n.MessageID,
		Type:      string(n.Type),
		Content:   n.Content,
		CreatedAt: n.CreatedAt,
		Read:      n.Read,
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventNotification:
		n := event.Notification
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNotification,
			Data: proto.EventNotificationData{
				ID:        n.ID,
				MessageID: n.MessageID,
				Type:      string(n.Type),
				Content:   n.Content,
				From:      event.From,
				TS:        n.CreatedAt.Unix(),
			},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}
