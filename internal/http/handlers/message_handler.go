// Message HTTP handlers.
//
// This file exposes REST endpoints for chat messages:
//   - POST /conversations/message   (send a message to a conversation)
//   - PUT  /message/{id}/like       (toggle the caller's like)
//
// Sending over HTTP follows the same pipeline as the WebSocket sendMessage
// event: the message is persisted, pushed to the conversation room and fanned
// out as notifications.
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// send exists for (user, route, key), the handler returns the recorded message
// and sets `Idempotency-Replayed: true` without sending again.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-realtime-chat/internal/http/middleware"
	"github.com/tbourn/go-realtime-chat/internal/repo"
	"github.com/tbourn/go-realtime-chat/internal/services"
)

//
// DTOs
//

// SendMessageRequest is the body of POST /conversations/message.
type SendMessageRequest struct {
	ConversationID string `json:"conversationId" binding:"required" example:"0b6f2c1e-5d4a-4f3b-8e2d-1c0a9b8e7d6f"`
	// Content is normalized (line endings, blank-line runs) before storing.
	Content string `json:"content" binding:"required" example:"See you at 8?"`
}

// LikeResponse is returned by PUT /message/{id}/like.
type LikeResponse struct {
	Message string `json:"message" example:"Message updated successfully"`
	Likes   int    `json:"likes"   example:"3"`
	Liked   bool   `json:"liked"   example:"true"`
}

//
// Handlers
//

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a message
// @Description Persists the message, pushes it to the conversation room and notifies the other participants.
// @Description Supports idempotency via the Idempotency-Key header (same key → same message).
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false  "Idempotency key for safe retries (UUID recommended)"
// @Param       body             body    handlers.SendMessageRequest  true  "Message payload"
// @Success     201  {object}  domain.Message
// @Failure     400  {object}  handlers.ErrorResponse  "Empty or too long content"
// @Failure     403  {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Router      /conversations/message [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)

	// Replay path: the validator already found a stored result.
	if resID, found := middleware.ReplayResource(c); found {
		prev, err := h.msgs.Get(ctx, resID)
		if err == nil {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusCreated, prev)
			return
		}
		middleware.LoggerFrom(c).Warn().Err(err).Str("resource_id", resID).Msg("idempotent replay target missing")
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindingMessage(err))
		return
	}
	msg, err := h.gw.SendMessage(ctx, uid, req.ConversationID, req.Content, services.TransportHTTP)
	if err != nil {
		failErr(c, err)
		return
	}

	// Store path (best effort).
	if key, has := middleware.GetIdempotencyKey(c); has && h.db != nil {
		if _, err := repo.CreateIdempotency(ctx, h.db, uid, middleware.IdempotencyScope(c), key, msg.ID, http.StatusCreated, h.idemTTL); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("message_id", msg.ID).Msg("idempotency record not stored")
		}
	}

	ok(c, http.StatusCreated, msg)
}

// ToggleLike godoc
// @ID          toggleLike
// @Summary     Like or unlike a message
// @Description Adds the caller's like if absent, removes it otherwise. The new state is pushed to the conversation room.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Message ID"  format(uuid)
// @Success     200  {object}  handlers.LikeResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404  {object}  handlers.ErrorResponse  "Message not found"
// @Router      /message/{id}/like [put]
func (h *Handlers) ToggleLike(c *gin.Context) {
	likes, liked, err := h.gw.ToggleLike(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, LikeResponse{Message: "Message updated successfully", Likes: likes, Liked: liked})
}
