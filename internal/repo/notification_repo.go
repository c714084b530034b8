package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-realtime-chat/internal/domain"
)

// InsertNotifications stores rows and silently skips any whose
// (message_id, user_id) pair already exists, so replaying a fan-out is safe.
// Rows without a message id are always inserted.
func InsertNotifications(ctx context.Context, db *gorm.DB, rows []domain.Notification) error {
	if len(rows) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range rows {
		if rows[i].ID == "" {
			rows[i].ID = uuid.NewString()
		}
		rows[i].CreatedAt = now
		rows[i].UpdatedAt = now
	}
	return db.WithContext(ctx).
		Omit("Conversation", "Message").
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&rows).Error
}

// ListNotificationsForMessage returns the persisted notifications of a message.
func ListNotificationsForMessage(ctx context.Context, db *gorm.DB, messageID string) ([]domain.Notification, error) {
	var out []domain.Notification
	err := db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("user_id ASC").
		Find(&out).Error
	return out, err
}

// GetNotification fetches a notification by id.
func GetNotification(ctx context.Context, db *gorm.DB, id string) (*domain.Notification, error) {
	var n domain.Notification
	if err := db.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

// MarkNotificationRead flips the read flag. Already-read rows are left as is.
func MarkNotificationRead(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ? AND is_read = ?", id, false).
		Updates(map[string]any{"is_read": true, "updated_at": time.Now().UTC()}).Error
}

// MarkAllNotificationsRead marks every unread notification of userID as read
// and returns how many changed.
func MarkAllNotificationsRead(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{"is_read": true, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

// ListUnreadNotifications returns the unread notifications of userID, newest
// first, with their conversation (and participants) and message preloaded.
func ListUnreadNotifications(ctx context.Context, db *gorm.DB, userID string) ([]domain.Notification, error) {
	var out []domain.Notification
	err := db.WithContext(ctx).
		Preload("Conversation").
		Preload("Conversation.Participants", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Conversation.Participants.User").
		Preload("Message").
		Preload("Message.Likes").
		Where("user_id = ? AND is_read = ?", userID, false).
		Order("created_at DESC").
		Order("id DESC").
		Find(&out).Error
	return out, err
}

// PurgeReadNotifications deletes read notifications created before cutoff.
func PurgeReadNotifications(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("is_read = ? AND created_at < ?", true, cutoff).
		Delete(&domain.Notification{})
	return res.RowsAffected, res.Error
}
