// Package cache holds the optional read-through cache for public user
// profiles. Conversation listings and notification views resolve the same few
// users over and over; the cache keeps those lookups off the database.
package cache

import (
	"context"
	"errors"

	"github.com/tbourn/go-realtime-chat/internal/domain"
)

// ErrCacheMiss is returned by Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// UserCache stores user summaries by id.
type UserCache interface {
	Get(ctx context.Context, id string) (*domain.UserSummary, error)
	Set(ctx context.Context, u domain.UserSummary) error
	Invalidate(ctx context.Context, id string) error
	Close() error
}

// Noop is used when no cache is configured. Every Get misses.
type Noop struct{}

func (Noop) Get(context.Context, string) (*domain.UserSummary, error) { return nil, ErrCacheMiss }
func (Noop) Set(context.Context, domain.UserSummary) error             { return nil }
func (Noop) Invalidate(context.Context, string) error                   { return nil }
func (Noop) Close() error                                               { return nil }
