// Account HTTP handlers.
//
//   - POST /register
//   - POST /login
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-realtime-chat/internal/domain"
)

// CredentialsRequest is the body of register and login.
type CredentialsRequest struct {
	Username string `json:"username" binding:"required" example:"alice"`
	Password string `json:"password" binding:"required" example:"Secret!1"`
}

// RegisterRequest adds the account rules to CredentialsRequest.
type RegisterRequest struct {
	Username string `json:"username" binding:"required,username"       example:"alice"`
	Password string `json:"password" binding:"required,strongpassword" example:"Secret!1"`
}

// RegisterResponse is returned by POST /register.
type RegisterResponse struct {
	Message string              `json:"message" example:"User registered successfully"`
	User    *domain.UserSummary `json:"user"`
}

// LoginResponse is returned by POST /login.
type LoginResponse struct {
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expires_at"`
	User      *domain.UserSummary `json:"user"`
}

// Register godoc
// @ID          register
// @Summary     Create an account
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RegisterRequest  true  "Credentials"
// @Success     201   {object}  handlers.RegisterResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Invalid username or password"
// @Failure     409   {object}  handlers.ErrorResponse  "Username is already taken"
// @Router      /register [post]
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindingMessage(err))
		return
	}
	u, err := h.accounts.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	sum := u.Summary()
	ok(c, http.StatusCreated, RegisterResponse{Message: "User registered successfully", User: &sum})
}

// Login godoc
// @ID          login
// @Summary     Exchange credentials for a bearer token
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.CredentialsRequest  true  "Credentials"
// @Success     200   {object}  handlers.LoginResponse
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     401   {object}  handlers.ErrorResponse  "Invalid username or password"
// @Router      /login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindingMessage(err))
		return
	}
	token, exp, u, err := h.accounts.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	sum := u.Summary()
	ok(c, http.StatusOK, LoginResponse{Token: token, ExpiresAt: exp, User: &sum})
}
