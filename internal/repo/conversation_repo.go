package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-realtime-chat/internal/domain"
)

// withParticipants preloads participants in stored order with their users.
func withParticipants(q *gorm.DB) *gorm.DB {
	return q.
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Participants.User")
}

// CreateConversation inserts a conversation and its participant rows in one
// transaction. participantIDs keep their order.
func CreateConversation(ctx context.Context, db *gorm.DB, participantIDs []string, isGroup bool, groupName *string) (*domain.Conversation, error) {
	var conv *domain.Conversation
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := createConversationTx(tx, participantIDs, isGroup, groupName)
		conv = c
		return err
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// CreateDirectConversation inserts a conversation together with its direct
// key. When another caller already owns the key it returns ErrDuplicate and
// nothing is written.
func CreateDirectConversation(ctx context.Context, db *gorm.DB, participantIDs []string) (*domain.Conversation, error) {
	var conv *domain.Conversation
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := createConversationTx(tx, participantIDs, false, nil)
		if err != nil {
			return err
		}
		key := &domain.DirectConversationKey{
			Key:            domain.DirectKey(participantIDs),
			ConversationID: c.ID,
			CreatedAt:      c.CreatedAt,
		}
		if err := tx.Omit("Conversation").Create(key).Error; err != nil {
			if isDuplicate(err) {
				return ErrDuplicate
			}
			return err
		}
		conv = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func createConversationTx(tx *gorm.DB, participantIDs []string, isGroup bool, groupName *string) (*domain.Conversation, error) {
	now := time.Now().UTC()
	conv := &domain.Conversation{
		ID:        uuid.NewString(),
		GroupName: groupName,
		IsGroup:   isGroup,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.Omit("Participants").Create(conv).Error; err != nil {
		return nil, err
	}
	rows := make([]domain.ConversationParticipant, 0, len(participantIDs))
	for i, uid := range participantIDs {
		rows = append(rows, domain.ConversationParticipant{
			ConversationID: conv.ID,
			UserID:         uid,
			Position:       i,
			JoinedAt:       now,
		})
	}
	if len(rows) > 0 {
		if err := tx.Omit("User").Create(&rows).Error; err != nil {
			return nil, err
		}
	}
	conv.Participants = rows
	return conv, nil
}

// FindDirectConversation returns the direct conversation whose participant
// set equals ids, or ErrNotFound.
func FindDirectConversation(ctx context.Context, db *gorm.DB, ids []string) (*domain.Conversation, error) {
	var key domain.DirectConversationKey
	err := db.WithContext(ctx).
		Where("participant_key = ?", domain.DirectKey(ids)).
		First(&key).Error
	if err != nil {
		return nil, err
	}
	return GetConversation(ctx, db, key.ConversationID)
}

// GetConversation loads a conversation with participants and last message.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := withParticipants(db.WithContext(ctx)).First(&conv, "id = ?", id).Error; err != nil {
		return nil, err
	}
	list := []domain.Conversation{conv}
	if err := attachLastMessages(ctx, db, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// ListConversationsForUser returns every conversation userID takes part in,
// most recently active first.
func ListConversationsForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Conversation, error) {
	sub := db.Model(&domain.ConversationParticipant{}).
		Select("conversation_id").
		Where("user_id = ?", userID)

	var out []domain.Conversation
	err := withParticipants(db.WithContext(ctx)).
		Where("id IN (?)", sub).
		Order("updated_at DESC").
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	if err := attachLastMessages(ctx, db, out); err != nil {
		return nil, err
	}
	return out, nil
}

// attachLastMessages resolves LastMessage for each conversation in place.
func attachLastMessages(ctx context.Context, db *gorm.DB, convs []domain.Conversation) error {
	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		if c.LastMessageID != nil {
			ids = append(ids, *c.LastMessageID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	var msgs []domain.Message
	if err := db.WithContext(ctx).Preload("Likes").Where("id IN ?", ids).Find(&msgs).Error; err != nil {
		return err
	}
	byID := make(map[string]*domain.Message, len(msgs))
	for i := range msgs {
		byID[msgs[i].ID] = &msgs[i]
	}
	for i := range convs {
		if convs[i].LastMessageID != nil {
			convs[i].LastMessage = byID[*convs[i].LastMessageID]
		}
	}
	return nil
}

// IsParticipant reports whether userID belongs to conversationID.
func IsParticipant(ctx context.Context, db *gorm.DB, conversationID, userID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&n).Error
	return n > 0, err
}

// DeleteConversation removes a conversation with its participants, direct
// key and notifications. Messages are expected to be gone already; any left
// over are removed by the foreign key cascade. Returns ErrNotFound when the
// conversation does not exist.
func DeleteConversation(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&domain.Notification{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&domain.DirectConversationKey{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&domain.ConversationParticipant{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&domain.Conversation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
