// Package services – MessageService
//
// MessageService owns the lifecycle of messages: validated creation, likes,
// paging and bulk removal when a conversation goes away.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include conversation/message identifiers where applicable.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-realtime-chat/internal/domain"
	"github.com/tbourn/go-realtime-chat/internal/repo"
)

// blankRunRE matches runs of three or more newlines.
var blankRunRE = regexp.MustCompile(`\n{3,}`)

// NormalizeContent converts CRLF/CR to LF, collapses runs of blank lines to a
// single empty line and trims surrounding whitespace.
func NormalizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = blankRunRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// MessageService coordinates message persistence.
type MessageService struct {
	DB *gorm.DB

	// MaxContentRunes caps message length; 0 disables the check.
	MaxContentRunes int
}

// Create normalizes and validates content and stores a message in
// conversationID. The conversation's last message is updated in the same
// transaction.
func (s *MessageService) Create(ctx context.Context, conversationID, senderID, content string) (*domain.Message, error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("user.id", senderID),
		),
	)
	defer span.End()

	content = NormalizeContent(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes {
		return nil, ErrContentTooLong
	}

	msg, err := repo.CreateMessage(ctx, s.DB, conversationID, senderID, content)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrConversationNotFound
		}
		return nil, serverErr("create message", err)
	}
	return msg, nil
}

// Get fetches a message with its likes.
func (s *MessageService) Get(ctx context.Context, id string) (*domain.Message, error) {
	msg, err := repo.GetMessage(ctx, s.DB, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrMessageNotFound
		}
		return nil, serverErr("get message", err)
	}
	return msg, nil
}

// ToggleLike removes userID's like when present and adds it otherwise. It
// returns the resulting like count and whether the user now likes the
// message.
func (s *MessageService) ToggleLike(ctx context.Context, messageID, userID string) (likes int, liked bool, err error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "ToggleLike",
		trace.WithAttributes(
			attribute.String("message.id", messageID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	if _, err := s.Get(ctx, messageID); err != nil {
		return 0, false, err
	}

	removed, err := repo.RemoveLike(ctx, s.DB, messageID, userID)
	if err != nil {
		return 0, false, serverErr("remove like", err)
	}
	if !removed {
		// A concurrent toggle may have added it first; either way it is liked.
		if err := repo.AddLike(ctx, s.DB, messageID, userID); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			return 0, false, serverErr("add like", err)
		}
		liked = true
	}

	n, err := repo.CountLikes(ctx, s.DB, messageID)
	if err != nil {
		return 0, false, serverErr("count likes", err)
	}
	return int(n), liked, nil
}

// DeleteAllForConversation removes every message of a conversation together
// with their likes and notifications.
func (s *MessageService) DeleteAllForConversation(ctx context.Context, conversationID string) (int64, error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "DeleteAllForConversation",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	n, err := repo.DeleteMessagesForConversation(ctx, s.DB, conversationID)
	if err != nil {
		return 0, serverErr("delete messages", err)
	}
	span.SetAttributes(attribute.Int64("messages.deleted", n))
	return n, nil
}

// ListPage returns paginated messages for a conversation, oldest first.
func (s *MessageService) ListPage(ctx context.Context, conversationID string, page, pageSize int) ([]domain.Message, int64, error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	items, total, err := repo.ListMessagesPage(ctx, s.DB, conversationID, page, pageSize)
	if err != nil {
		return nil, 0, serverErr("list messages", err)
	}
	if items == nil {
		items = []domain.Message{}
	}
	return items, total, nil
}
