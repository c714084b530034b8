package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-realtime-chat/internal/domain"
)

// CreateMessage inserts a message and, in the same transaction, records it as
// the conversation's last message. Returns ErrNotFound when the conversation
// does not exist.
func CreateMessage(ctx context.Context, db *gorm.DB, conversationID, senderID, content string) (*domain.Message, error) {
	now := time.Now().UTC()
	msg := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Conversation{}).
			Where("id = ?", conversationID).
			Updates(map[string]any{"last_message_id": msg.ID, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Omit("Conversation", "Likes").Create(msg).Error
	})
	if err != nil {
		return nil, err
	}
	msg.Likes = []domain.MessageLike{}
	return msg, nil
}

// GetMessage fetches a message with its likes.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Preload("Likes").First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessagesPage returns a page of messages for a conversation, oldest
// first, together with the total count.
func ListMessagesPage(ctx context.Context, db *gorm.DB, conversationID string, page, pageSize int) ([]domain.Message, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	total, err := CountMessages(ctx, db, conversationID)
	if err != nil {
		return nil, 0, err
	}

	var out []domain.Message
	err = db.WithContext(ctx).
		Preload("Likes").
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Order("id ASC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&out).Error
	return out, total, err
}

// CountMessages counts the messages of a conversation.
func CountMessages(ctx context.Context, db *gorm.DB, conversationID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&n).Error
	return n, err
}

// DeleteMessagesForConversation removes every message of a conversation along
// with their likes and notifications, and clears the last-message pointer.
// Returns the number of messages deleted.
func DeleteMessagesForConversation(ctx context.Context, db *gorm.DB, conversationID string) (int64, error) {
	var deleted int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := func() *gorm.DB {
			return tx.Model(&domain.Message{}).Select("id").Where("conversation_id = ?", conversationID)
		}

		if err := tx.Where("message_id IN (?)", ids()).Delete(&domain.MessageLike{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id IN (?)", ids()).Delete(&domain.Notification{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.Conversation{}).
			Where("id = ?", conversationID).
			Update("last_message_id", nil).Error; err != nil {
			return err
		}
		res := tx.Where("conversation_id = ?", conversationID).Delete(&domain.Message{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	return deleted, err
}

// HasLike reports whether userID liked messageID.
func HasLike(ctx context.Context, db *gorm.DB, messageID, userID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.MessageLike{}).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		Count(&n).Error
	return n > 0, err
}

// AddLike records a like; ErrDuplicate when it already exists.
func AddLike(ctx context.Context, db *gorm.DB, messageID, userID string) error {
	like := &domain.MessageLike{MessageID: messageID, UserID: userID, CreatedAt: time.Now().UTC()}
	if err := db.WithContext(ctx).Create(like).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// RemoveLike deletes a like and reports whether one was removed.
func RemoveLike(ctx context.Context, db *gorm.DB, messageID, userID string) (bool, error) {
	res := db.WithContext(ctx).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		Delete(&domain.MessageLike{})
	return res.RowsAffected > 0, res.Error
}

// CountLikes counts the likes of a message.
func CountLikes(ctx context.Context, db *gorm.DB, messageID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.MessageLike{}).
		Where("message_id = ?", messageID).
		Count(&n).Error
	return n, err
}
