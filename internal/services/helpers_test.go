package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-realtime-chat/internal/auth"
	"github.com/tbourn/go-realtime-chat/internal/domain"
	"github.com/tbourn/go-realtime-chat/internal/repo"
)

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "svc_test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	db.Logger = logger.Default.LogMode(logger.Silent)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func mkUser(t *testing.T, db *gorm.DB, name string) *domain.User {
	t.Helper()
	u, err := repo.CreateUser(context.Background(), db, name, "x", "")
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", name, err)
	}
	return u
}

// published records one delivered event.
type published struct {
	Rooms []string
	Event domain.Event
}

// fakePublisher records pushes instead of delivering them.
type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *fakePublisher) Publish(room string, ev domain.Event) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{Rooms: []string{room}, Event: ev})
	return 1
}

func (p *fakePublisher) PublishMany(rooms []string, ev domain.Event) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{Rooms: rooms, Event: ev})
	return len(rooms)
}

func (p *fakePublisher) Broadcast(ev domain.Event) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{Rooms: []string{"*"}, Event: ev})
	return 1
}

func (p *fakePublisher) ofType(tp domain.EventType) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.events {
		if e.Event.Type == tp {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	db  *gorm.DB
	pub *fakePublisher
	gw  *ChatGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newSvcDB(t)
	pub := &fakePublisher{}
	gw := &ChatGateway{
		Conversations: NewConversationService(db),
		Messages:      &MessageService{DB: db, MaxContentRunes: 100},
		Notifications: &NotificationService{DB: db},
		Users: &UserService{
			DB:         db,
			Tokens:     auth.NewTokenManager("0123456789abcdef", "test", time.Hour),
			BcryptCost: bcrypt.MinCost,
		},
		Publisher:     pub,
		FanoutRetries: 2,
		FanoutBackoff: time.Millisecond,
	}
	return &fixture{db: db, pub: pub, gw: gw}
}
