// Package services – NotificationService
//
// NotificationService turns new messages and group creations into persisted
// notifications, and lets recipients list and acknowledge them.
package services

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-realtime-chat/internal/domain"
	"github.com/tbourn/go-realtime-chat/internal/repo"
)

// NotificationService persists and serves notifications.
type NotificationService struct {
	DB *gorm.DB
}

// NotifyNewMessage creates one message notification per participant other
// than the sender. The insert ignores (message, recipient) pairs that already
// exist and the stored set is read back, so calling it again for the same
// message returns the same rows without creating duplicates.
func (s *NotificationService) NotifyNewMessage(ctx context.Context, msg *domain.Message, conv *domain.Conversation) ([]domain.Notification, error) {
	ctx, span := otel.Tracer("services/NotificationService").Start(ctx, "NotifyNewMessage",
		trace.WithAttributes(
			attribute.String("conversation.id", conv.ID),
			attribute.String("message.id", msg.ID),
		),
	)
	defer span.End()

	recipients := recipientsExcept(conv.ParticipantIDs(), msg.SenderID)
	if len(recipients) == 0 {
		return []domain.Notification{}, nil
	}

	detail := domain.MessageNotification{ConversationID: conv.ID, MessageID: msg.ID}
	rows := make([]domain.Notification, 0, len(recipients))
	for _, uid := range recipients {
		rows = append(rows, domain.NewNotification(uid, detail))
	}
	if err := repo.InsertNotifications(ctx, s.DB, rows); err != nil {
		return nil, serverErr("insert notifications", err)
	}

	stored, err := repo.ListNotificationsForMessage(ctx, s.DB, msg.ID)
	if err != nil {
		return nil, serverErr("reread notifications", err)
	}
	span.SetAttributes(attribute.Int("notifications", len(stored)))
	return stored, nil
}

// NotifyAddedToGroup tells every member except actorID that they were added
// to conv.
func (s *NotificationService) NotifyAddedToGroup(ctx context.Context, conv *domain.Conversation, actorID string) ([]domain.Notification, error) {
	ctx, span := otel.Tracer("services/NotificationService").Start(ctx, "NotifyAddedToGroup",
		trace.WithAttributes(attribute.String("conversation.id", conv.ID)),
	)
	defer span.End()

	recipients := recipientsExcept(conv.ParticipantIDs(), actorID)
	rows := make([]domain.Notification, 0, len(recipients))
	for _, uid := range recipients {
		rows = append(rows, domain.NewNotification(uid, domain.ConversationNotification{ConversationID: conv.ID}))
	}
	if err := repo.InsertNotifications(ctx, s.DB, rows); err != nil {
		return nil, serverErr("insert notifications", err)
	}
	return rows, nil
}

// MarkRead marks a notification as read on behalf of its recipient. Marking
// an already-read notification succeeds without change.
func (s *NotificationService) MarkRead(ctx context.Context, notificationID, requesterID string) (*domain.Notification, error) {
	ctx, span := otel.Tracer("services/NotificationService").Start(ctx, "MarkRead",
		trace.WithAttributes(
			attribute.String("notification.id", notificationID),
			attribute.String("user.id", requesterID),
		),
	)
	defer span.End()

	n, err := repo.GetNotification(ctx, s.DB, notificationID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotificationNotFound
		}
		return nil, serverErr("get notification", err)
	}
	if n.UserID != requesterID {
		return nil, ErrNotOwner
	}
	if n.Read {
		return n, nil
	}
	if err := repo.MarkNotificationRead(ctx, s.DB, notificationID); err != nil {
		return nil, serverErr("mark notification read", err)
	}
	n, err = repo.GetNotification(ctx, s.DB, notificationID)
	if err != nil {
		return nil, serverErr("reread notification", err)
	}
	return n, nil
}

// MarkAllRead marks every unread notification of userID as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := repo.MarkAllNotificationsRead(ctx, s.DB, userID)
	if err != nil {
		return 0, serverErr("mark all read", err)
	}
	return n, nil
}

// ListUnread returns userID's unread notifications, newest first, each
// resolved with its conversation and, for message kinds, its message. Rows
// whose kind cannot be decoded are skipped and logged.
func (s *NotificationService) ListUnread(ctx context.Context, userID string) ([]domain.NotificationView, error) {
	ctx, span := otel.Tracer("services/NotificationService").Start(ctx, "ListUnread",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	rows, err := repo.ListUnreadNotifications(ctx, s.DB, userID)
	if err != nil {
		return nil, serverErr("list notifications", err)
	}

	out := make([]domain.NotificationView, 0, len(rows))
	for _, n := range rows {
		d, err := n.Detail()
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("notification_id", n.ID).Msg("skipping undecodable notification")
			continue
		}
		v := domain.NotificationView{Notification: n, Conversation: n.Conversation}
		if _, ok := d.(domain.MessageNotification); ok {
			v.Message = n.Message
		}
		out = append(out, v)
	}
	return out, nil
}

// recipientsExcept returns the de-duplicated ids other than exclude.
func recipientsExcept(ids []string, exclude string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range domain.UniqueParticipants(ids) {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}
