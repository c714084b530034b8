// Notification HTTP handlers.
//
//   - GET /notifications               (unread, newest first; ETag aware)
//   - PUT /notifications/{id}/read
//   - PUT /notifications/read-all
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-realtime-chat/internal/repo"
)

// MarkAllReadResponse reports how many notifications changed.
type MarkAllReadResponse struct {
	Updated int64 `json:"updated" example:"4"`
}

// ListNotifications godoc
// @ID          listNotifications
// @Summary     List unread notifications
// @Description Each item carries its conversation and, for message notifications, the message.
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Param       If-None-Match  header  string  false  "ETag from a previous response"
// @Success     200  {array}   domain.NotificationView
// @Success     304  {string}  string  "Not Modified"
// @Router      /notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)

	if h.db != nil {
		if st, err := repo.NotificationsStats(ctx, h.db, uid); err == nil && notModified(c, st.ETag("notifications", uid)) {
			return
		}
	}

	views, err := h.notes.ListUnread(ctx, uid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, views)
}

// MarkNotificationRead godoc
// @ID          markNotificationRead
// @Summary     Mark one notification read
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Notification ID"  format(uuid)
// @Success     200  {object}  domain.Notification
// @Failure     403  {object}  handlers.ErrorResponse  "Belongs to another user"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /notifications/{id}/read [put]
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	n, err := h.notes.MarkRead(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, n)
}

// MarkAllNotificationsRead godoc
// @ID          markAllNotificationsRead
// @Summary     Mark every unread notification read
// @Tags        Notifications
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.MarkAllReadResponse
// @Router      /notifications/read-all [put]
func (h *Handlers) MarkAllNotificationsRead(c *gin.Context) {
	n, err := h.notes.MarkAllRead(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, MarkAllReadResponse{Updated: n})
}
