// Conversation HTTP handlers.
//
// This file exposes REST endpoints for conversations:
//   - POST   /conversations                 (find or create a direct conversation)
//   - POST   /conversations/group           (create a group)
//   - GET    /conversations                 (list the caller's conversations)
//   - GET    /conversations/{id}/messages   (paginated history)
//   - DELETE /conversations/{id}            (delete with all messages)
//
// Creation and deletion go through the Gateway so participants connected over
// WebSocket see the change immediately.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-realtime-chat/internal/domain"
	"github.com/tbourn/go-realtime-chat/internal/repo"
	"github.com/tbourn/go-realtime-chat/internal/services"
)

//
// DTOs
//

// CreateConversationRequest is the body of POST /conversations. The caller is
// always added to Participants.
type CreateConversationRequest struct {
	Participants []string `json:"participants" binding:"required,min=1,dive,required" example:"6f1c2a9e-0d3b-4c1e-9a57-2b8f3e4d5c6a"`
}

// CreateGroupRequest is the body of POST /conversations/group. The caller is
// added as the first participant when absent.
type CreateGroupRequest struct {
	Participants []string `json:"participants" binding:"required,min=1,dive,required"`
	GroupName    *string  `json:"groupName"    binding:"omitempty,max=100" example:"Weekend trip"`
}

// ListMessagesResponse contains a page of messages and pagination metadata.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

//
// Handlers
//

// CreateConversation godoc
// @ID          createConversation
// @Summary     Find or create a direct conversation
// @Description Returns the existing conversation when one already has exactly this participant set.
// @Tags        Conversations
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.CreateConversationRequest  true  "Other participants"
// @Success     201   {object}  domain.Conversation
// @Failure     400   {object}  handlers.ErrorResponse  "Missing or unknown participants"
// @Router      /conversations [post]
func (h *Handlers) CreateConversation(c *gin.Context) {
	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "participants are required")
		return
	}
	conv, err := h.gw.CreateDirect(c.Request.Context(), userID(c), req.Participants)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, conv)
}

// CreateGroup godoc
// @ID          createGroup
// @Summary     Create a group conversation
// @Description Every participant except the caller receives a conversation notification.
// @Tags        Conversations
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.CreateGroupRequest  true  "Members and optional name"
// @Success     201   {object}  domain.Conversation
// @Failure     400   {object}  handlers.ErrorResponse
// @Router      /conversations/group [post]
func (h *Handlers) CreateGroup(c *gin.Context) {
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindingMessage(err))
		return
	}
	conv, err := h.gw.CreateGroup(c.Request.Context(), userID(c), req.Participants, req.GroupName)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, conv)
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List the caller's conversations
// @Description Most recently updated first, each with participants and last message.
// @Description Supports conditional GET via ETag/If-None-Match.
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
// @Param       If-None-Match  header  string  false  "ETag from a previous response"
// @Success     200  {array}   domain.Conversation
// @Success     304  {string}  string  "Not Modified"
// @Router      /conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)

	// ETag pre-check (best effort).
	if h.db != nil {
		if st, err := repo.ConversationsStats(ctx, h.db, uid); err == nil && notModified(c, st.ETag("conversations", uid)) {
			return
		}
	}

	convs, err := h.convs.ListForUser(ctx, uid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, convs)
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List messages in a conversation
// @Description Returns a page of messages, oldest first. Only participants may read.
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
// @Param       id         path   string  true   "Conversation ID"  format(uuid)
// @Param       page       query  int     false  "Page number"      minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"   minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListMessagesResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Router      /conversations/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	convID := c.Param("id")

	conv, err := h.convs.Get(ctx, convID)
	if err != nil {
		failErr(c, err)
		return
	}
	if !conv.HasParticipant(userID(c)) {
		failErr(c, services.ErrNotParticipant)
		return
	}

	page, pageSize := clampPagination(c)
	items, total, err := h.msgs.ListPage(ctx, convID, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages:   items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// DeleteConversation godoc
// @ID          deleteConversation
// @Summary     Delete a conversation
// @Description Removes the conversation and all its messages and tells every participant.
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Conversation ID"  format(uuid)
// @Success     200  {object}  handlers.MessageResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Router      /conversations/{id} [delete]
func (h *Handlers) DeleteConversation(c *gin.Context) {
	if err := h.gw.DeleteConversation(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, MessageResponse{Message: "Conversation deleted successfully"})
}
