package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirenote/internal/service/users"
)

// UserHandlers provides HTTP handlers for the caller's own account.
type UserHandlers struct {
	users *users.Service
	log   *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(svc *users.Service, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		users: svc,
		log:   logger,
	}
}

// DeleteAccountResponse reports what an account deletion removed.
type DeleteAccountResponse struct {
	Removed          bool  `json:"removed"`
	SentMessages     int64 `json:"sent_messages"`
	ReceivedMessages int64 `json:"received_messages"`
	Notifications    int64 `json:"notifications"`
}

// Me returns the authenticated user.
// GET /api/users/me
func (h *UserHandlers) Me(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, userResponse(user))
}

// DeleteMe removes the authenticated user and everything they took part in.
// DELETE /api/users/me
func (h *UserHandlers) DeleteMe(c *gin.Context) {
	uid := currentUserID(c)
	removed, stats, err := h.users.DeleteAccount(c.Request.Context(), uid)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	h.log.Info().Int64("user_id", uid).Bool("removed", removed).Msg("account deleted")
	c.JSON(http.StatusOK, DeleteAccountResponse{
		Removed:          removed,
		SentMessages:     stats.SentMessages,
		ReceivedMessages: stats.ReceivedMessages,
		Notifications:    stats.Notifications,
	})
}
