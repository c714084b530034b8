package domain

// EventType names a frame on the live channel.
type EventType string

// Outbound events.
const (
	EventMessage             EventType = "message"
	EventNotification        EventType = "notification"
	EventProfileUpdated      EventType = "profileUpdated"
	EventConversationDeleted EventType = "conversationDeleted"
	EventMessageLiked        EventType = "messageLiked"
	EventRoomJoined          EventType = "roomJoined"
	EventError               EventType = "error"
)

// Inbound events.
const (
	EventJoinRoom           EventType = "joinRoom"
	EventLeaveRoom          EventType = "leaveRoom"
	EventSendMessage        EventType = "sendMessage"
	EventUpdateProfile      EventType = "updateProfile"
	EventDeleteConversation EventType = "deleteConversation"
)

// Event is one frame pushed to live subscribers.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data,omitempty"`
}

// ConversationDeleted is the payload of EventConversationDeleted.
type ConversationDeleted struct {
	ConversationID string `json:"conversationId"`
}

// MessageLiked is the payload of EventMessageLiked.
type MessageLiked struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Likes          int    `json:"likes"`
	Liked          bool   `json:"liked"`
}

// ProfileUpdated is the payload of EventProfileUpdated.
type ProfileUpdated struct {
	User UserSummary `json:"user"`
}

// RoomJoined is the payload of EventRoomJoined.
type RoomJoined struct {
	Room string `json:"room"`
}

// EventFailure is the payload of EventError.
type EventFailure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
