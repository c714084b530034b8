package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-realtime-chat/internal/domain"
	"github.com/tbourn/go-realtime-chat/internal/http/middleware"
	"github.com/tbourn/go-realtime-chat/internal/services"
	"github.com/tbourn/go-realtime-chat/internal/utils"
)

//
// Service contracts (context-aware)
//

// AccountService registers, authenticates and describes users.
type AccountService interface {
	Register(ctx context.Context, username, password string) (*domain.User, error)
	Login(ctx context.Context, username, password string) (token string, expiresAt time.Time, user *domain.User, err error)
	GetByUsername(ctx context.Context, username string) (*domain.UserSummary, error)
	List(ctx context.Context) ([]domain.UserSummary, error)
	ChangePassword(ctx context.Context, userID, current, next string) error
}

// Gateway performs chat actions that are pushed to live subscribers.
type Gateway interface {
	SendMessage(ctx context.Context, senderID, conversationID, content, transport string) (*domain.Message, error)
	DeleteConversation(ctx context.Context, requesterID, conversationID string) error
	CreateDirect(ctx context.Context, callerID string, participantIDs []string) (*domain.Conversation, error)
	CreateGroup(ctx context.Context, creatorID string, participantIDs []string, groupName *string) (*domain.Conversation, error)
	ToggleLike(ctx context.Context, userID, messageID string) (likes int, liked bool, err error)
	UpdateProfile(ctx context.Context, userID string, upd services.ProfileUpdate) (*domain.UserSummary, error)
}

// ConversationReader reads conversations.
type ConversationReader interface {
	Get(ctx context.Context, id string) (*domain.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error)
}

// MessageReader reads messages.
type MessageReader interface {
	Get(ctx context.Context, id string) (*domain.Message, error)
	ListPage(ctx context.Context, conversationID string, page, pageSize int) ([]domain.Message, int64, error)
}

// NotificationService reads and acknowledges notifications.
type NotificationService interface {
	ListUnread(ctx context.Context, userID string) ([]domain.NotificationView, error)
	MarkRead(ctx context.Context, notificationID, requesterID string) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// LiveChannel upgrades an authenticated request to the WebSocket channel.
type LiveChannel interface {
	Serve(w http.ResponseWriter, r *http.Request, userID string)
}

//
// Handler wiring
//

// Deps lists what Handlers needs. DB is optional: without it conditional
// GETs and idempotency records are skipped.
type Deps struct {
	Accounts      AccountService
	Gateway       Gateway
	Conversations ConversationReader
	Messages      MessageReader
	Notifications NotificationService
	Live          LiveChannel

	DB             *gorm.DB
	IdempotencyTTL time.Duration
}

// Handlers groups every HTTP endpoint.
type Handlers struct {
	accounts AccountService
	gw       Gateway
	convs    ConversationReader
	msgs     MessageReader
	notes    NotificationService
	live     LiveChannel

	db      *gorm.DB
	idemTTL time.Duration
}

// New builds Handlers from d and installs the custom binding rules.
func New(d Deps) *Handlers {
	RegisterValidators()
	ttl := d.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Handlers{
		accounts: d.Accounts,
		gw:       d.Gateway,
		convs:    d.Conversations,
		msgs:     d.Messages,
		notes:    d.Notifications,
		live:     d.Live,
		db:       d.DB,
		idemTTL:  ttl,
	}
}

// userID is the authenticated caller. Routes using it sit behind
// middleware.Auth, so it is never empty there.
func userID(c *gin.Context) string {
	return middleware.CurrentUserID(c)
}

//
// DTOs shared by several endpoints
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// MessageResponse is the body of simple acknowledgements.
type MessageResponse struct {
	Message string `json:"message" example:"Conversation deleted successfully"`
}

// clampPagination reads page and page_size, defaulting to 1 and 20 and
// capping page_size at 100.
func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.ParsePage(c.Query("page"), c.Query("page_size"), 20, 100)
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// notModified sets a weak ETag and reports whether the client already has it.
func notModified(c *gin.Context, etag string) bool {
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}
