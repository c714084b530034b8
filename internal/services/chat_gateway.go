// Package services – ChatGateway
//
// ChatGateway is the entry point for live chat actions, whether they arrive
// over HTTP or the WebSocket channel. It enforces membership, persists
// through the stores and pushes the resulting events to room subscribers.
//
// Send pipeline: validate → persist → push message → fan out notifications
// (retried, idempotent) → respond. A message is never rolled back because
// fan-out failed.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-realtime-chat/internal/domain"
	"github.com/tbourn/go-realtime-chat/internal/observability"
)

// Publisher delivers events to live subscribers. Rooms are conversation ids
// or user ids. Each call returns the number of connections reached; zero is
// not an error.
type Publisher interface {
	Publish(room string, ev domain.Event) int
	PublishMany(rooms []string, ev domain.Event) int
	Broadcast(ev domain.Event) int
}

// Transports reported in chat_messages_sent_total.
const (
	TransportHTTP = "http"
	TransportWS   = "ws"
)

// ChatGateway orchestrates conversation, message and notification use-cases
// with live delivery.
type ChatGateway struct {
	Conversations *ConversationService
	Messages      *MessageService
	Notifications *NotificationService
	Users         *UserService
	Publisher     Publisher

	// FanoutRetries is the number of extra attempts after a failed fan-out.
	FanoutRetries int
	// FanoutBackoff is the base delay between attempts; it grows linearly.
	FanoutBackoff time.Duration
}

// SendMessage posts content to conversationID on behalf of senderID and
// delivers it live. The returned message is persisted even if notification
// fan-out failed.
func (g *ChatGateway) SendMessage(ctx context.Context, senderID, conversationID, content, transport string) (*domain.Message, error) {
	ctx, span := otel.Tracer("services/ChatGateway").Start(ctx, "SendMessage",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("user.id", senderID),
			attribute.String("transport", transport),
		),
	)
	defer span.End()

	// validate
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	conv, err := g.Conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(senderID) {
		return nil, ErrNotParticipant
	}

	// persist
	msg, err := g.Messages.Create(ctx, conversationID, senderID, content)
	if err != nil {
		return nil, err
	}
	observability.MessagesSent.WithLabelValues(transport).Inc()

	// push
	g.push(conversationID, domain.Event{Type: domain.EventMessage, Data: msg})

	// fan out; the caller going away must not cut it short
	g.fanout(context.WithoutCancel(ctx), msg, conv)

	return msg, nil
}

func (g *ChatGateway) fanout(ctx context.Context, msg *domain.Message, conv *domain.Conversation) {
	log := zerolog.Ctx(ctx)

	var (
		notes []domain.Notification
		err   error
	)
	for attempt := 0; attempt <= g.FanoutRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(g.FanoutBackoff * time.Duration(attempt))
		}
		notes, err = g.Notifications.NotifyNewMessage(ctx, msg, conv)
		if err == nil {
			break
		}
		log.Warn().Err(err).
			Int("attempt", attempt+1).
			Str("message_id", msg.ID).
			Msg("notification fan-out failed")
	}
	if err != nil {
		observability.FanoutFailures.Inc()
		log.Error().Err(err).
			Str("message_id", msg.ID).
			Str("conversation_id", conv.ID).
			Msg("notification fan-out gave up")
		return
	}

	observability.NotificationsCreated.WithLabelValues(string(domain.KindMessage)).Add(float64(len(notes)))
	for _, n := range notes {
		view := domain.NotificationView{Notification: n, Conversation: conv, Message: msg}
		g.push(n.UserID, domain.Event{Type: domain.EventNotification, Data: view})
	}
}

// DeleteConversation removes a conversation and all its messages, then tells
// every participant and every subscriber of the conversation room.
func (g *ChatGateway) DeleteConversation(ctx context.Context, requesterID, conversationID string) error {
	ctx, span := otel.Tracer("services/ChatGateway").Start(ctx, "DeleteConversation",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("user.id", requesterID),
		),
	)
	defer span.End()

	conv, err := g.Conversations.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(requesterID) {
		return ErrNotParticipant
	}

	if _, err := g.Messages.DeleteAllForConversation(ctx, conversationID); err != nil {
		return err
	}
	if err := g.Conversations.Delete(ctx, conversationID); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Str("conversation_id", conversationID).
			Msg("messages deleted but conversation delete failed")
		return err
	}

	rooms := append([]string{conversationID}, conv.ParticipantIDs()...)
	g.pushMany(rooms, domain.Event{
		Type: domain.EventConversationDeleted,
		Data: domain.ConversationDeleted{ConversationID: conversationID},
	})
	return nil
}

// AuthorizeJoin decides whether userID may subscribe to room. A user may join
// their own personal room and the rooms of conversations they belong to.
func (g *ChatGateway) AuthorizeJoin(ctx context.Context, userID, room string) error {
	room = strings.TrimSpace(room)
	if room == "" {
		return ErrInvalidRoom
	}
	if room == userID {
		return nil
	}
	ok, err := g.Conversations.IsParticipant(ctx, room, userID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if _, err := g.Conversations.Get(ctx, room); err != nil {
		return err
	}
	return ErrNotParticipant
}

// CreateDirect finds or creates the direct conversation between callerID and
// participantIDs.
func (g *ChatGateway) CreateDirect(ctx context.Context, callerID string, participantIDs []string) (*domain.Conversation, error) {
	ids := append([]string{callerID}, participantIDs...)
	return g.Conversations.FindOrCreateDirect(ctx, ids)
}

// CreateGroup creates a group and notifies the members that were added.
func (g *ChatGateway) CreateGroup(ctx context.Context, creatorID string, participantIDs []string, groupName *string) (*domain.Conversation, error) {
	ctx, span := otel.Tracer("services/ChatGateway").Start(ctx, "CreateGroup",
		trace.WithAttributes(attribute.String("user.id", creatorID)),
	)
	defer span.End()

	conv, err := g.Conversations.CreateGroup(ctx, participantIDs, creatorID, groupName)
	if err != nil {
		return nil, err
	}

	notes, err := g.Notifications.NotifyAddedToGroup(ctx, conv, creatorID)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("conversation_id", conv.ID).Msg("group notifications failed")
		return conv, nil
	}
	observability.NotificationsCreated.WithLabelValues(string(domain.KindConversation)).Add(float64(len(notes)))
	for _, n := range notes {
		g.push(n.UserID, domain.Event{
			Type: domain.EventNotification,
			Data: domain.NotificationView{Notification: n, Conversation: conv},
		})
	}
	return conv, nil
}

// ToggleLike flips userID's like on messageID and pushes the new state to the
// conversation room.
func (g *ChatGateway) ToggleLike(ctx context.Context, userID, messageID string) (likes int, liked bool, err error) {
	ctx, span := otel.Tracer("services/ChatGateway").Start(ctx, "ToggleLike",
		trace.WithAttributes(
			attribute.String("message.id", messageID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	msg, err := g.Messages.Get(ctx, messageID)
	if err != nil {
		return 0, false, err
	}
	ok, err := g.Conversations.IsParticipant(ctx, msg.ConversationID, userID)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, ErrNotParticipant
	}

	likes, liked, err = g.Messages.ToggleLike(ctx, messageID, userID)
	if err != nil {
		return 0, false, err
	}
	g.push(msg.ConversationID, domain.Event{
		Type: domain.EventMessageLiked,
		Data: domain.MessageLiked{
			MessageID:      messageID,
			ConversationID: msg.ConversationID,
			UserID:         userID,
			Likes:          likes,
			Liked:          liked,
		},
	})
	return likes, liked, nil
}

// UpdateProfile changes userID's profile and broadcasts the result.
func (g *ChatGateway) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*domain.UserSummary, error) {
	u, err := g.Users.UpdateProfile(ctx, userID, upd)
	if err != nil {
		return nil, err
	}
	g.ProfileUpdated(*u)
	return u, nil
}

// ProfileUpdated broadcasts a changed profile to every connection.
func (g *ChatGateway) ProfileUpdated(u domain.UserSummary) {
	if g.Publisher == nil {
		return
	}
	ev := domain.Event{Type: domain.EventProfileUpdated, Data: domain.ProfileUpdated{User: u}}
	g.Publisher.Broadcast(ev)
	observability.RoomPushes.WithLabelValues(string(ev.Type)).Inc()
}

func (g *ChatGateway) push(room string, ev domain.Event) {
	if g.Publisher == nil {
		return
	}
	g.Publisher.Publish(room, ev)
	observability.RoomPushes.WithLabelValues(string(ev.Type)).Inc()
}

func (g *ChatGateway) pushMany(rooms []string, ev domain.Event) {
	if g.Publisher == nil {
		return
	}
	g.Publisher.PublishMany(rooms, ev)
	observability.RoomPushes.WithLabelValues(string(ev.Type)).Inc()
}
