// User HTTP handlers.
//
//   - GET /users
//   - GET /user/{username}
//   - PUT /profile/photo
//   - PUT /profile/username
//   - PUT /profile/password
//
// Profile changes go through the gateway so that connected clients receive a
// profileUpdated event.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-realtime-chat/internal/services"
)

// UpdatePhotoRequest is the body of PUT /profile/photo.
type UpdatePhotoRequest struct {
	ProfilePhoto string `json:"profilePhoto" binding:"required,uri,max=1024" example:"https://cdn.example.com/u/alice.png"`
}

// UpdateUsernameRequest is the body of PUT /profile/username.
type UpdateUsernameRequest struct {
	Username string `json:"username" binding:"required,username" example:"alice_2"`
}

// ChangePasswordRequest is the body of PUT /profile/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword"     binding:"required,strongpassword"`
}

// ListUsers godoc
// @ID          listUsers
// @Summary     List users
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}   domain.UserSummary
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /users [get]
func (h *Handlers) ListUsers(c *gin.Context) {
	users, err := h.accounts.List(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, users)
}

// GetUser godoc
// @ID          getUser
// @Summary     Look a user up by username
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
// @Param       username  path      string  true  "Username (case-insensitive)"
// @Success     200       {object}  domain.UserSummary
// @Failure     404       {object}  handlers.ErrorResponse
// @Router      /user/{username} [get]
func (h *Handlers) GetUser(c *gin.Context) {
	u, err := h.accounts.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// UpdateProfilePhoto godoc
// @ID          updateProfilePhoto
// @Summary     Change the caller's profile photo
// @Tags        Users
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.UpdatePhotoRequest  true  "New photo URI"
// @Success     200   {object}  domain.UserSummary
// @Failure     400   {object}  handlers.ErrorResponse
// @Router      /profile/photo [put]
func (h *Handlers) UpdateProfilePhoto(c *gin.Context) {
	var req UpdatePhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindingMessage(err))
		return
	}
	h.updateProfile(c, services.ProfileUpdate{ProfilePhoto: &req.ProfilePhoto})
}

// UpdateUsername godoc
// @ID          updateUsername
// @Summary     Rename the caller
// @Tags        Users
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.UpdateUsernameRequest  true  "New username"
// @Success     200   {object}  domain.UserSummary
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     409   {object}  handlers.ErrorResponse  "Username is already taken"
// @Router      /profile/username [put]
func (h *Handlers) UpdateUsername(c *gin.Context) {
	var req UpdateUsernameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindingMessage(err))
		return
	}
	h.updateProfile(c, services.ProfileUpdate{Username: &req.Username})
}

func (h *Handlers) updateProfile(c *gin.Context, upd services.ProfileUpdate) {
	u, err := h.gw.UpdateProfile(c.Request.Context(), userID(c), upd)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// ChangePassword godoc
// @ID          changePassword
// @Summary     Change the caller's password
// @Tags        Users
// @Accept      json
// @Security    BearerAuth
// @Param       body  body  handlers.ChangePasswordRequest  true  "Current and new password"
// @Success     204   {string}  string  "No Content"
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     401   {object}  handlers.ErrorResponse  "Current password is wrong"
// @Router      /profile/password [put]
func (h *Handlers) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindingMessage(err))
		return
	}
	if err := h.accounts.ChangePassword(c.Request.Context(), userID(c), req.CurrentPassword, req.NewPassword); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
