// Package domain defines the persistence models for users, conversations,
// messages, likes and notifications. These types are mapped with GORM and
// form the core data layer of the chat backend.
package domain

import (
	"encoding/json"
	"time"
)

// DefaultProfilePhoto is assigned to users who never uploaded a photo.
const DefaultProfilePhoto = "default-photo-url"

// User is an account. PasswordHash never leaves the server.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Username: display name as typed at registration (4–20 chars).
//   - UsernameKey: case-folded username; unique, used for lookups.
//   - PasswordHash: bcrypt hash.
//   - ProfilePhoto: URI of the avatar.
type User struct {
	ID           string    `json:"id"           gorm:"type:char(36);primaryKey"`
	Username     string    `json:"username"     gorm:"type:varchar(20);not null"`
	UsernameKey  string    `json:"-"            gorm:"type:varchar(80);not null;uniqueIndex:ux_users_username_key"`
	PasswordHash string    `json:"-"            gorm:"type:varchar(100);not null"`
	ProfilePhoto string    `json:"profilePhoto" gorm:"type:varchar(1024);not null"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// UserSummary is the read-only view of a user shared with other users.
type UserSummary struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	ProfilePhoto string `json:"profilePhoto"`
}

// Summary strips a user down to its public fields.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, ProfilePhoto: u.ProfilePhoto}
}

// Conversation is a direct or group thread between participants.
//
// Participants are kept in join rows ordered by Position. LastMessage is not a
// GORM association (messages already reference conversations); repositories
// resolve it from LastMessageID.
type Conversation struct {
	ID            string    `json:"id"                      gorm:"type:char(36);primaryKey"`
	GroupName     *string   `json:"groupName,omitempty"     gorm:"type:varchar(100)"`
	IsGroup       bool      `json:"isGroup"                 gorm:"not null;default:false"`
	LastMessageID *string   `json:"lastMessageId,omitempty" gorm:"type:char(36)"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"               gorm:"index"`

	Participants []ConversationParticipant `json:"participants" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	LastMessage  *Message                  `json:"lastMessage,omitempty" gorm:"-"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// ParticipantIDs returns participant user ids in stored order.
func (c Conversation) ParticipantIDs() []string {
	out := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		out = append(out, p.UserID)
	}
	return out
}

// HasParticipant reports whether userID belongs to the conversation.
func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// ConversationParticipant links a user to a conversation.
type ConversationParticipant struct {
	ConversationID string    `json:"-"         gorm:"type:char(36);primaryKey"`
	UserID         string    `json:"userId"    gorm:"type:char(36);primaryKey;index:idx_participant_user"`
	Position       int       `json:"-"         gorm:"not null;default:0"`
	JoinedAt       time.Time `json:"joinedAt"  gorm:"autoCreateTime"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ConversationParticipant.
func (ConversationParticipant) TableName() string { return "conversation_participants" }

// MarshalJSON exposes only the public summary of the participant's user.
func (p ConversationParticipant) MarshalJSON() ([]byte, error) {
	out := struct {
		UserID   string       `json:"userId"`
		JoinedAt time.Time    `json:"joinedAt"`
		User     *UserSummary `json:"user,omitempty"`
	}{UserID: p.UserID, JoinedAt: p.JoinedAt}
	if p.User != nil {
		sum := p.User.Summary()
		out.User = &sum
	}
	return json.Marshal(out)
}

// DirectConversationKey maps the hashed canonical participant set of a direct
// conversation to its id. The primary key makes the lookup exact and rejects
// a second concurrent creation for the same set.
type DirectConversationKey struct {
	Key            string    `gorm:"column:participant_key;type:char(64);primaryKey"`
	ConversationID string    `gorm:"type:char(36);not null;uniqueIndex"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`

	Conversation Conversation `gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for DirectConversationKey.
func (DirectConversationKey) TableName() string { return "direct_conversation_keys" }

// Message is a text message posted to a conversation.
type Message struct {
	ID             string        `json:"id"             gorm:"type:char(36);primaryKey"`
	ConversationID string        `json:"conversationId" gorm:"type:char(36);not null;index:idx_conversation_msgs,priority:1"`
	SenderID       string        `json:"senderId"       gorm:"type:char(36);not null;index"`
	Content        string        `json:"content"        gorm:"type:text;not null"`
	CreatedAt      time.Time     `json:"createdAt"      gorm:"index:idx_conversation_msgs,priority:2"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	Likes          []MessageLike `json:"likes"          gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`

	// Conversation is the parent thread. Messages are cascade-deleted with it.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// LikedBy returns the ids of users who liked the message.
func (m Message) LikedBy() []string {
	out := make([]string, 0, len(m.Likes))
	for _, l := range m.Likes {
		out = append(out, l.UserID)
	}
	return out
}

// MessageLike records one user's like. The composite key forbids duplicates.
type MessageLike struct {
	MessageID string    `gorm:"type:char(36);primaryKey"`
	UserID    string    `gorm:"type:char(36);primaryKey;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName returns the database table name for MessageLike.
func (MessageLike) TableName() string { return "message_likes" }

// MarshalJSON renders a like as the liking user's id.
func (l MessageLike) MarshalJSON() ([]byte, error) { return json.Marshal(l.UserID) }

// UnmarshalJSON accepts the user-id form produced by MarshalJSON.
func (l *MessageLike) UnmarshalJSON(b []byte) error { return json.Unmarshal(b, &l.UserID) }
