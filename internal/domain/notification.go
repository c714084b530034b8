package domain

import (
	"fmt"
	"time"
)

// NotificationKind tags the variant carried by a notification.
type NotificationKind string

const (
	// KindMessage notifies a participant about a new message.
	KindMessage NotificationKind = "message"
	// KindConversation notifies a user that they were added to a group.
	KindConversation NotificationKind = "conversation"
)

// NotificationDetail is the kind-specific payload of a notification. Each
// implementation carries only the references its kind needs.
type NotificationDetail interface {
	Kind() NotificationKind
	Conversation() string
}

// MessageNotification points at a message inside a conversation.
type MessageNotification struct {
	ConversationID string
	MessageID      string
}

// Kind implements NotificationDetail.
func (MessageNotification) Kind() NotificationKind { return KindMessage }

// Conversation implements NotificationDetail.
func (d MessageNotification) Conversation() string { return d.ConversationID }

// ConversationNotification points at a conversation only.
type ConversationNotification struct {
	ConversationID string
}

// Kind implements NotificationDetail.
func (ConversationNotification) Kind() NotificationKind { return KindConversation }

// Conversation implements NotificationDetail.
func (d ConversationNotification) Conversation() string { return d.ConversationID }

// Notification is the persisted row. Rows are built through NewNotification
// and read back through Detail, so MessageID is set only for message kinds.
//
// The unique (message_id, user_id) index turns a repeated fan-out for the
// same message into a no-op.
type Notification struct {
	ID             string           `json:"id"                  gorm:"type:char(36);primaryKey"`
	UserID         string           `json:"userId"              gorm:"type:char(36);not null;index:idx_user_unread,priority:1;uniqueIndex:ux_notification_message_user,priority:2"`
	Type           NotificationKind `json:"type"                gorm:"type:varchar(32);not null"`
	ConversationID string           `json:"conversationId"      gorm:"type:char(36);not null;index"`
	MessageID      *string          `json:"messageId,omitempty" gorm:"type:char(36);uniqueIndex:ux_notification_message_user,priority:1"`
	Read           bool             `json:"read"                gorm:"column:is_read;not null;default:false;index:idx_user_unread,priority:2"`
	CreatedAt      time.Time        `json:"createdAt"           gorm:"index:idx_user_unread,priority:3"`
	UpdatedAt      time.Time        `json:"updatedAt"`

	Conversation *Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Message      *Message      `json:"-" gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }

// NewNotification flattens a detail into a row addressed to userID. The id
// and timestamps are assigned by the repository.
func NewNotification(userID string, d NotificationDetail) Notification {
	n := Notification{
		UserID:         userID,
		Type:           d.Kind(),
		ConversationID: d.Conversation(),
	}
	if m, ok := d.(MessageNotification); ok {
		id := m.MessageID
		n.MessageID = &id
	}
	return n
}

// Detail rebuilds the variant from the stored row.
func (n Notification) Detail() (NotificationDetail, error) {
	switch n.Type {
	case KindMessage:
		if n.MessageID == nil || *n.MessageID == "" {
			return nil, fmt.Errorf("notification %s: message kind without message id", n.ID)
		}
		return MessageNotification{ConversationID: n.ConversationID, MessageID: *n.MessageID}, nil
	case KindConversation:
		return ConversationNotification{ConversationID: n.ConversationID}, nil
	default:
		return nil, fmt.Errorf("notification %s: unknown kind %q", n.ID, n.Type)
	}
}

// NotificationView is a notification resolved with what it refers to.
// Message is present only for message kinds.
type NotificationView struct {
	Notification
	Conversation *Conversation `json:"conversation,omitempty"`
	Message      *Message      `json:"message,omitempty"`
}
