package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-realtime-chat/internal/auth"
)

// Context keys set by Auth.
const (
	UserIDKey   = "userID"
	UsernameKey = "username"
)

// AuthOptions tunes Auth.
type AuthOptions struct {
	// AllowQueryToken also accepts ?token=, for clients that cannot set
	// headers on a WebSocket handshake.
	AllowQueryToken bool
}

// Auth requires a valid bearer token. On success the subject is stored under
// "userID", the username under "username", and the request logger gains a
// user_id field. Failures abort with 401.
func Auth(tokens *auth.TokenManager, opts AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" && opts.AllowQueryToken {
			raw = strings.TrimSpace(c.Query("token"))
		}
		if raw == "" {
			unauthorized(c, "missing bearer token")
			return
		}

		claims, err := tokens.Parse(raw)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				msg = "token expired"
			}
			unauthorized(c, msg)
			return
		}

		c.Set(UserIDKey, claims.UserID())
		c.Set(UsernameKey, claims.Username)
		setLogger(c, LoggerFrom(c).With().Str("user_id", claims.UserID()).Logger())
		c.Next()
	}
}

// CurrentUserID returns the authenticated user id, or "" when Auth did not run.
func CurrentUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

func bearerToken(h string) string {
	const prefix = "bearer "
	h = strings.TrimSpace(h)
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="chat"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.GetString(requestIDKey),
		"code":       "unauthorized",
		"message":    msg,
	})
}
