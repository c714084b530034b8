// Package services – UserService
//
// UserService registers and authenticates accounts, and serves and updates
// public profiles. Profile reads go through the optional user cache.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-realtime-chat/internal/auth"
	"github.com/tbourn/go-realtime-chat/internal/cache"
	"github.com/tbourn/go-realtime-chat/internal/domain"
	"github.com/tbourn/go-realtime-chat/internal/repo"
)

var (
	usernameRE        = regexp.MustCompile(`^[A-Za-z0-9_.\-]{4,20}$`)
	passwordUpperRE   = regexp.MustCompile(`[A-Z]`)
	passwordSpecialRE = regexp.MustCompile(`[@$!%*?&]`)
)

// ValidUsername reports whether u is 4–20 letters, digits, '_', '.' or '-'.
func ValidUsername(u string) bool { return usernameRE.MatchString(u) }

// ValidPassword reports whether p is 6–72 characters with at least one
// uppercase letter and one of @$!%*?&. 72 is bcrypt's input limit.
func ValidPassword(p string) bool {
	n := utf8.RuneCountInString(p)
	return n >= 6 && len(p) <= 72 &&
		passwordUpperRE.MatchString(p) &&
		passwordSpecialRE.MatchString(p)
}

// ProfileUpdate lists the profile fields to change; nil fields are kept.
type ProfileUpdate struct {
	Username     *string `json:"username,omitempty"`
	ProfilePhoto *string `json:"profilePhoto,omitempty"`
}

// UserService implements account and profile use-cases.
type UserService struct {
	DB         *gorm.DB
	Tokens     *auth.TokenManager
	BcryptCost int
	Cache      cache.UserCache
}

// Register creates an account.
func (s *UserService) Register(ctx context.Context, username, password string) (*domain.User, error) {
	ctx, span := otel.Tracer("services/UserService").Start(ctx, "Register")
	defer span.End()

	username = strings.TrimSpace(username)
	if !ValidUsername(username) {
		return nil, errInvalidUsername
	}
	if !ValidPassword(password) {
		return nil, errInvalidPassword
	}
	hash, err := auth.HashPassword(password, s.BcryptCost)
	if err != nil {
		return nil, serverErr("hash password", err)
	}
	u, err := repo.CreateUser(ctx, s.DB, username, hash, "")
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrUsernameTaken
		}
		return nil, serverErr("create user", err)
	}
	span.SetAttributes(attribute.String("user.id", u.ID))
	return u, nil
}

// Login checks credentials and issues an access token.
func (s *UserService) Login(ctx context.Context, username, password string) (token string, expiresAt time.Time, user *domain.User, err error) {
	ctx, span := otel.Tracer("services/UserService").Start(ctx, "Login")
	defer span.End()

	u, err := repo.GetUserByUsername(ctx, s.DB, username)
	if err != nil {
		if isNotFound(err) {
			return "", time.Time{}, nil, ErrInvalidCredentials
		}
		return "", time.Time{}, nil, serverErr("get user", err)
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return "", time.Time{}, nil, ErrInvalidCredentials
		}
		return "", time.Time{}, nil, serverErr("check password", err)
	}
	token, expiresAt, err = s.Tokens.Issue(u.ID, u.Username)
	if err != nil {
		return "", time.Time{}, nil, serverErr("issue token", err)
	}
	span.SetAttributes(attribute.String("user.id", u.ID))
	return token, expiresAt, u, nil
}

// Get returns the public profile of a user, served from cache when possible.
func (s *UserService) Get(ctx context.Context, id string) (*domain.UserSummary, error) {
	if c, err := s.cache().Get(ctx, id); err == nil {
		return c, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		zerolog.Ctx(ctx).Warn().Err(err).Str("user_id", id).Msg("user cache get failed")
	}

	u, err := repo.GetUser(ctx, s.DB, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, serverErr("get user", err)
	}
	sum := u.Summary()
	if err := s.cache().Set(ctx, sum); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("user_id", id).Msg("user cache set failed")
	}
	return &sum, nil
}

// GetByUsername looks a profile up case-insensitively.
func (s *UserService) GetByUsername(ctx context.Context, username string) (*domain.UserSummary, error) {
	u, err := repo.GetUserByUsername(ctx, s.DB, username)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, serverErr("get user by username", err)
	}
	sum := u.Summary()
	return &sum, nil
}

// List returns every user's public profile ordered by username.
func (s *UserService) List(ctx context.Context) ([]domain.UserSummary, error) {
	users, err := repo.ListUsers(ctx, s.DB)
	if err != nil {
		return nil, serverErr("list users", err)
	}
	out := make([]domain.UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, u.Summary())
	}
	return out, nil
}

// UpdateProfile applies the non-nil fields of upd and returns the new profile.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*domain.UserSummary, error) {
	ctx, span := otel.Tracer("services/UserService").Start(ctx, "UpdateProfile",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	if upd.Username == nil && upd.ProfilePhoto == nil {
		return nil, ErrInvalidProfile
	}
	if upd.Username != nil {
		name := strings.TrimSpace(*upd.Username)
		if !ValidUsername(name) {
			return nil, errInvalidUsername
		}
		if err := repo.UpdateUsername(ctx, s.DB, userID, name); err != nil {
			return nil, s.mapUpdateErr("update username", err)
		}
	}
	if upd.ProfilePhoto != nil {
		photo := strings.TrimSpace(*upd.ProfilePhoto)
		if photo == "" || len(photo) > 1024 {
			return nil, errInvalidPhoto
		}
		if err := repo.UpdateProfilePhoto(ctx, s.DB, userID, photo); err != nil {
			return nil, s.mapUpdateErr("update profile photo", err)
		}
	}

	if err := s.cache().Invalidate(ctx, userID); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("user cache invalidate failed")
	}
	return s.Get(ctx, userID)
}

// ChangePassword replaces the password after verifying the current one.
func (s *UserService) ChangePassword(ctx context.Context, userID, current, next string) error {
	ctx, span := otel.Tracer("services/UserService").Start(ctx, "ChangePassword",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	u, err := repo.GetUser(ctx, s.DB, userID)
	if err != nil {
		if isNotFound(err) {
			return ErrUserNotFound
		}
		return serverErr("get user", err)
	}
	if err := auth.CheckPassword(u.PasswordHash, current); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return ErrInvalidCredentials
		}
		return serverErr("check password", err)
	}
	if !ValidPassword(next) {
		return errInvalidPassword
	}
	hash, err := auth.HashPassword(next, s.BcryptCost)
	if err != nil {
		return serverErr("hash password", err)
	}
	if err := repo.UpdatePasswordHash(ctx, s.DB, userID, hash); err != nil {
		return s.mapUpdateErr("update password", err)
	}
	return nil
}

func (s *UserService) mapUpdateErr(op string, err error) error {
	switch {
	case errors.Is(err, repo.ErrDuplicate):
		return ErrUsernameTaken
	case isNotFound(err):
		return ErrUserNotFound
	default:
		return serverErr(op, err)
	}
}

func (s *UserService) cache() cache.UserCache {
	if s.Cache == nil {
		return cache.Noop{}
	}
	return s.Cache
}
