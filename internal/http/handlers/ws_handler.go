package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Live godoc
// @ID          live
// @Summary     Open the real-time channel
// @Description Upgrades to WebSocket. The token may be passed as ?token= since browsers cannot set headers on upgrade.
// @Description Client events: joinRoom, leaveRoom, sendMessage, updateProfile, deleteConversation.
// @Description Server events: roomJoined, message, notification, messageLiked, conversationDeleted, profileUpdated, error.
// @Tags        Realtime
// @Param       token  query  string  false  "Bearer token"
// @Success     101  {string}  string  "Switching Protocols"
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /ws [get]
func (h *Handlers) Live(c *gin.Context) {
	if h.live == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "live channel disabled")
		return
	}
	h.live.Serve(c.Writer, c.Request, userID(c))
}
