// Package services – ConversationService
//
// ConversationService owns direct and group conversations. Direct
// conversations are deduplicated by their canonical participant set; groups
// are always created fresh.
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

	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-realtime-chat/internal/domain"
	"github.com/tbourn/go-realtime-chat/internal/repo"
)

// ConversationService provides conversation lifecycle operations.
type ConversationService struct {
	DB *gorm.DB

	// GroupNameMaxRunes caps group names; 0 means 100.
	GroupNameMaxRunes int
}

// NewConversationService constructs a ConversationService with defaults.
func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{DB: db, GroupNameMaxRunes: 100}
}

// FindOrCreateDirect returns the direct conversation between exactly the
// given users, creating it when none exists. Input order and duplicates do
// not matter. When two callers race to create the same conversation the
// loser re-reads and returns the winner.
func (s *ConversationService) FindOrCreateDirect(ctx context.Context, participantIDs []string) (*domain.Conversation, error) {
	ids := domain.UniqueParticipants(participantIDs)

	ctx, span := otel.Tracer("services/ConversationService").Start(ctx, "FindOrCreateDirect",
		trace.WithAttributes(attribute.Int("participants", len(ids))),
	)
	defer span.End()

	if len(ids) == 0 {
		return nil, ErrNoParticipants
	}
	if err := s.ensureUsers(ctx, ids); err != nil {
		return nil, err
	}

	conv, err := repo.FindDirectConversation(ctx, s.DB, ids)
	if err == nil {
		return conv, nil
	}
	if !isNotFound(err) {
		return nil, serverErr("find direct conversation", err)
	}

	created, err := repo.CreateDirectConversation(ctx, s.DB, ids)
	switch {
	case err == nil:
		return s.Get(ctx, created.ID)
	case errors.Is(err, repo.ErrDuplicate):
		conv, err = repo.FindDirectConversation(ctx, s.DB, ids)
		if err != nil {
			return nil, serverErr("reread direct conversation", err)
		}
		return conv, nil
	default:
		return nil, serverErr("create direct conversation", err)
	}
}

// CreateGroup creates a new group conversation. The creator is placed first
// and added when missing from participantIDs. A blank group name is stored as
// no name.
func (s *ConversationService) CreateGroup(ctx context.Context, participantIDs []string, creatorID string, groupName *string) (*domain.Conversation, error) {
	ctx, span := otel.Tracer("services/ConversationService").Start(ctx, "CreateGroup",
		trace.WithAttributes(
			attribute.String("user.id", creatorID),
			attribute.Int("participants", len(participantIDs)),
		),
	)
	defer span.End()

	others := domain.UniqueParticipants(participantIDs)
	if len(others) == 0 || strings.TrimSpace(creatorID) == "" {
		return nil, ErrNoParticipants
	}
	ids := make([]string, 0, len(others)+1)
	ids = append(ids, creatorID)
	for _, id := range others {
		if id != creatorID {
			ids = append(ids, id)
		}
	}

	name, err := s.normalizeGroupName(groupName)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUsers(ctx, ids); err != nil {
		return nil, err
	}

	conv, err := repo.CreateConversation(ctx, s.DB, ids, true, name)
	if err != nil {
		return nil, serverErr("create group", err)
	}
	return s.Get(ctx, conv.ID)
}

// Get loads a conversation with participants and last message.
func (s *ConversationService) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	ctx, span := otel.Tracer("services/ConversationService").Start(ctx, "Get",
		trace.WithAttributes(attribute.String("conversation.id", id)),
	)
	defer span.End()

	conv, err := repo.GetConversation(ctx, s.DB, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrConversationNotFound
		}
		return nil, serverErr("get conversation", err)
	}
	return conv, nil
}

// ListForUser returns the conversations userID takes part in, most recently
// active first.
func (s *ConversationService) ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	ctx, span := otel.Tracer("services/ConversationService").Start(ctx, "ListForUser",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	list, err := repo.ListConversationsForUser(ctx, s.DB, userID)
	if err != nil {
		return nil, serverErr("list conversations", err)
	}
	if list == nil {
		list = []domain.Conversation{}
	}
	return list, nil
}

// Delete removes a conversation with its participants and direct key.
func (s *ConversationService) Delete(ctx context.Context, id string) error {
	ctx, span := otel.Tracer("services/ConversationService").Start(ctx, "Delete",
		trace.WithAttributes(attribute.String("conversation.id", id)),
	)
	defer span.End()

	if err := repo.DeleteConversation(ctx, s.DB, id); err != nil {
		if isNotFound(err) {
			return ErrConversationNotFound
		}
		return serverErr("delete conversation", err)
	}
	return nil
}

// IsParticipant reports whether userID belongs to conversationID.
func (s *ConversationService) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	ok, err := repo.IsParticipant(ctx, s.DB, conversationID, userID)
	if err != nil {
		return false, serverErr("is participant", err)
	}
	return ok, nil
}

func (s *ConversationService) ensureUsers(ctx context.Context, ids []string) error {
	n, err := repo.CountUsers(ctx, s.DB, ids)
	if err != nil {
		return serverErr("count users", err)
	}
	if n != int64(len(ids)) {
		return ErrUnknownUsers
	}
	return nil
}

// normalizeGroupName applies NFC, trims and collapses whitespace.
func (s *ConversationService) normalizeGroupName(name *string) (*string, error) {
	if name == nil {
		return nil, nil
	}
	n := whitespaceRE.ReplaceAllString(strings.TrimSpace(norm.NFC.String(*name)), " ")
	if n == "" {
		return nil, nil
	}
	max := s.GroupNameMaxRunes
	if max <= 0 {
		max = 100
	}
	if utf8.RuneCountInString(n) > max {
		return nil, ErrGroupNameTooLong
	}
	return &n, nil
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
