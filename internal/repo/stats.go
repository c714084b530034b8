// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer.
package repo

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-realtime-chat/internal/domain"
)

// ListStats summarizes a list response and everything embedded in it, so a
// change to any of them changes the derived ETag.
type ListStats struct {
	// Count is the number of rows in the list.
	Count int64
	// Latest is the newest change among the rows, their conversations, the
	// participants' profiles and the likes on their messages.
	Latest time.Time
	// Likes counts likes on messages of the embedded conversations; it moves
	// on unlike, which Latest alone would miss.
	Likes int64
}

// ETag renders s as a weak entity tag for kind and userID.
func (s ListStats) ETag(kind, userID string) string {
	var ts int64
	if !s.Latest.IsZero() {
		ts = s.Latest.UnixNano()
	}
	return fmt.Sprintf(`W/"%s:%s:%d:%d:%d"`, kind, userID, s.Count, ts, s.Likes)
}

func (s *ListStats) observe(t time.Time) {
	if t.After(s.Latest) {
		s.Latest = t
	}
}

// ConversationsStats describes the conversation list of userID: how many
// conversations, and the newest change among them and what they embed.
func ConversationsStats(ctx context.Context, db *gorm.DB, userID string) (ListStats, error) {
	convIDs := func() *gorm.DB {
		return db.Model(&domain.ConversationParticipant{}).Select("conversation_id").Where("user_id = ?", userID)
	}

	var st ListStats
	if err := db.WithContext(ctx).Model(&domain.Conversation{}).
		Where("id IN (?)", convIDs()).
		Count(&st.Count).Error; err != nil {
		return ListStats{}, err
	}
	if st.Count == 0 {
		return st, nil
	}
	if err := embeddedStats(ctx, db, convIDs, &st); err != nil {
		return ListStats{}, err
	}
	return st, nil
}

// NotificationsStats describes the unread notifications of userID, including
// the conversations and messages they resolve to.
func NotificationsStats(ctx context.Context, db *gorm.DB, userID string) (ListStats, error) {
	unread := func() *gorm.DB {
		return db.Model(&domain.Notification{}).Where("user_id = ? AND is_read = ?", userID, false)
	}

	var st ListStats
	if err := unread().WithContext(ctx).Count(&st.Count).Error; err != nil {
		return ListStats{}, err
	}
	if st.Count == 0 {
		return st, nil
	}

	// Latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err := unread().WithContext(ctx).Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return ListStats{}, err
	}
	st.observe(row.CreatedAt)

	convIDs := func() *gorm.DB { return unread().Select("conversation_id") }
	if err := embeddedStats(ctx, db, convIDs, &st); err != nil {
		return ListStats{}, err
	}
	return st, nil
}

// embeddedStats folds into st the conversations selected by convIDs, their
// participants' profiles and the likes on their messages.
func embeddedStats(ctx context.Context, db *gorm.DB, convIDs func() *gorm.DB, st *ListStats) error {
	var conv struct {
		UpdatedAt time.Time
	}
	if err := db.WithContext(ctx).Model(&domain.Conversation{}).
		Where("id IN (?)", convIDs()).
		Select("updated_at").Order("updated_at DESC").Limit(1).
		Scan(&conv).Error; err != nil {
		return err
	}
	st.observe(conv.UpdatedAt)

	var user struct {
		UpdatedAt time.Time
	}
	memberIDs := db.Model(&domain.ConversationParticipant{}).Select("user_id").Where("conversation_id IN (?)", convIDs())
	if err := db.WithContext(ctx).Model(&domain.User{}).
		Where("id IN (?)", memberIDs).
		Select("updated_at").Order("updated_at DESC").Limit(1).
		Scan(&user).Error; err != nil {
		return err
	}
	st.observe(user.UpdatedAt)

	likes := func() *gorm.DB {
		msgIDs := db.Model(&domain.Message{}).Select("id").Where("conversation_id IN (?)", convIDs())
		return db.WithContext(ctx).Model(&domain.MessageLike{}).Where("message_id IN (?)", msgIDs)
	}
	if err := likes().Count(&st.Likes).Error; err != nil {
		return err
	}
	if st.Likes == 0 {
		return nil
	}
	var like struct {
		CreatedAt time.Time
	}
	if err := likes().Select("created_at").Order("created_at DESC").Limit(1).Scan(&like).Error; err != nil {
		return err
	}
	st.observe(like.CreatedAt)
	return nil
}
