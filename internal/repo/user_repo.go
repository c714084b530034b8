package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-realtime-chat/internal/domain"
)

// CreateUser inserts an account. A taken username yields ErrDuplicate.
func CreateUser(ctx context.Context, db *gorm.DB, username, passwordHash, photo string) (*domain.User, error) {
	if photo == "" {
		photo = domain.DefaultProfilePhoto
	}
	now := time.Now().UTC()
	u := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		UsernameKey:  domain.UsernameKey(username),
		PasswordHash: passwordHash,
		ProfilePhoto: photo,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return u, nil
}

// GetUser fetches a user by id.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByUsername looks a user up case-insensitively.
func GetUserByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("username_key = ?", domain.UsernameKey(username)).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers returns every account ordered by username.
func ListUsers(ctx context.Context, db *gorm.DB) ([]domain.User, error) {
	var out []domain.User
	err := db.WithContext(ctx).Order("username_key ASC").Find(&out).Error
	return out, err
}

// CountUsers counts how many of ids exist.
func CountUsers(ctx context.Context, db *gorm.DB, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var n int64
	err := db.WithContext(ctx).Model(&domain.User{}).Where("id IN ?", ids).Count(&n).Error
	return n, err
}

// UpdateUsername renames a user; ErrDuplicate when the name is taken.
func UpdateUsername(ctx context.Context, db *gorm.DB, id, username string) error {
	err := updateUser(ctx, db, id, map[string]any{
		"username":     username,
		"username_key": domain.UsernameKey(username),
	})
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// UpdateProfilePhoto sets the avatar URI.
func UpdateProfilePhoto(ctx context.Context, db *gorm.DB, id, photo string) error {
	return updateUser(ctx, db, id, map[string]any{"profile_photo": photo})
}

// UpdatePasswordHash replaces the stored bcrypt hash.
func UpdatePasswordHash(ctx context.Context, db *gorm.DB, id, hash string) error {
	return updateUser(ctx, db, id, map[string]any{"password_hash": hash})
}

func updateUser(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
