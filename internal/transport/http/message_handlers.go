package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirenote/internal/service/messages"
)

// MessageHandlers provides HTTP handlers for direct messages.
type MessageHandlers struct {
	messages *messages.Service
	log      *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(svc *messages.Service, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{messages: svc, log: logger}
}

// SendMessageRequest is the body of POST /api/messages.
type SendMessageRequest struct {
	ReceiverID int64  `json:"receiver_id" binding:"required"`
	Content    string `json:"content" binding:"required"`
	ParentID   *int64 `json:"parent_id"`
}

// EditMessageRequest is the body of PATCH /api/messages/:id.
// Version is optional; when set, a stale version yields 409.
type EditMessageRequest struct {
	Content string `json:"content" binding:"required"`
	Version int64  `json:"version"`
}

// Send handles POST /api/messages.
func (h *MessageHandlers) Send(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send request")
		badRequest(c, "invalid request body")
		return
	}

	view, err := h.messages.Send(c.Request.Context(), currentUserID(c), req.ReceiverID, req.Content, req.ParentID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, messageViewResponse(view))
}

// Unread handles GET /api/messages/unread.
func (h *MessageHandlers) Unread(c *gin.Context) {
	views, err := h.messages.UnreadForUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	resp := make([]MessageResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, messageViewResponse(v))
	}
	c.JSON(http.StatusOK, resp)
}

// Get handles GET /api/messages/:id.
func (h *MessageHandlers) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	view, err := h.messages.Get(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, messageViewResponse(view))
}

// Edit handles PATCH /api/messages/:id.
func (h *MessageHandlers) Edit(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	msg, err := h.messages.Edit(c.Request.Context(), currentUserID(c), id, req.Content, req.Version)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse(msg))
}

// Delete handles DELETE /api/messages/:id.
func (h *MessageHandlers) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.messages.Delete(c.Request.Context(), currentUserID(c), id); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkRead handles POST /api/messages/:id/read.
func (h *MessageHandlers) MarkRead(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.messages.MarkRead(c.Request.Context(), currentUserID(c), id); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// History handles GET /api/messages/:id/history.
func (h *MessageHandlers) History(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	entries, err := h.messages.History(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	resp := make([]HistoryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, HistoryResponse{
			ID:         e.ID,
			OldContent: e.OldContent,
			EditedAt:   e.EditedAt,
			EditedBy:   e.EditedBy,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// Thread handles GET /api/messages/:id/thread.
func (h *MessageHandlers) Thread(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	root, err := h.messages.Thread(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, threadResponse(root))
}
