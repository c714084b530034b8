package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-realtime-chat/internal/config"
	"github.com/tbourn/go-realtime-chat/internal/domain"
	"github.com/tbourn/go-realtime-chat/internal/repo"
	"github.com/tbourn/go-realtime-chat/internal/services"
)

type frame struct {
	Type domain.EventType `json:"type"`
	Data json.RawMessage  `json:"data"`
}

type liveEnv struct {
	db  *gorm.DB
	reg *Registry
	gw  *services.ChatGateway
	srv *httptest.Server
}

func newLiveEnv(t *testing.T) *liveEnv {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "ws_test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	db.Logger = logger.Default.LogMode(logger.Silent)
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	reg := NewRegistry()
	gw := &services.ChatGateway{
		Conversations: services.NewConversationService(db),
		Messages:      &services.MessageService{DB: db, MaxContentRunes: 1000},
		Notifications: &services.NotificationService{DB: db},
		Users:         &services.UserService{DB: db},
		Publisher:     reg,
	}
	cfg := config.WSConfig{
		WriteWait:       time.Second,
		PongWait:        5 * time.Second,
		PingInterval:    4 * time.Second,
		MaxMessageBytes: 4096,
		SendBuffer:      32,
	}
	h := NewHandler(reg, gw, cfg, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Serve(w, r, r.URL.Query().Get("user"))
	}))
	t.Cleanup(func() {
		srv.Close()
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return &liveEnv{db: db, reg: reg, gw: gw, srv: srv}
}

func (e *liveEnv) user(t *testing.T, name string) *domain.User {
	t.Helper()
	u, err := repo.CreateUser(context.Background(), e.db, name, "x", "")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func (e *liveEnv) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/?user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	// The server registers the connection after the handshake completes.
	waitFor(t, func() bool { return e.reg.Members(userID) > 0 })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, tp domain.EventType, data any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": tp, "data": data}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
}

// next reads frames until one of type tp arrives.
func next(t *testing.T, conn *websocket.Conn, tp domain.EventType) frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for %s: %v", tp, err)
		}
		if f.Type == tp {
			return f
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLive_JoinAndReceiveMessage(t *testing.T) {
	env := newLiveEnv(t)
	ctx := context.Background()
	a, b := env.user(t, "alice"), env.user(t, "bobby")
	conv, err := env.gw.CreateDirect(ctx, a.ID, []string{b.ID})
	if err != nil {
		t.Fatalf("CreateDirect: %v", err)
	}

	ca := env.dial(t, a.ID)
	cb := env.dial(t, b.ID)

	send(t, ca, domain.EventJoinRoom, map[string]string{"conversationId": conv.ID})
	joined := next(t, ca, domain.EventRoomJoined)
	if !strings.Contains(string(joined.Data), conv.ID) {
		t.Fatalf("roomJoined = %s", joined.Data)
	}

	send(t, cb, domain.EventSendMessage, map[string]string{"conversationId": conv.ID, "message": "hi"})

	got := next(t, ca, domain.EventMessage)
	var msg domain.Message
	if err := json.Unmarshal(got.Data, &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.Content != "hi" || msg.SenderID != b.ID || msg.ConversationID != conv.ID {
		t.Fatalf("unexpected message %+v", msg)
	}

	// alice is the recipient, so her personal room gets the notification.
	note := next(t, ca, domain.EventNotification)
	if !strings.Contains(string(note.Data), `"type":"message"`) {
		t.Fatalf("notification = %s", note.Data)
	}
}

func TestLive_JoinForbiddenRoom(t *testing.T) {
	env := newLiveEnv(t)
	ctx := context.Background()
	a, b, c := env.user(t, "alice"), env.user(t, "bobby"), env.user(t, "carol")
	conv, _ := env.gw.CreateDirect(ctx, a.ID, []string{b.ID})

	cc := env.dial(t, c.ID)
	send(t, cc, domain.EventJoinRoom, map[string]string{"conversationId": conv.ID})

	f := next(t, cc, domain.EventError)
	var fail domain.EventFailure
	_ = json.Unmarshal(f.Data, &fail)
	if fail.Code != CodeForbidden {
		t.Fatalf("code = %q, want %q", fail.Code, CodeForbidden)
	}
	if env.reg.Members(conv.ID) != 0 {
		t.Fatal("outsider must not be subscribed")
	}
}

func TestLive_BadFrames(t *testing.T) {
	env := newLiveEnv(t)
	a := env.user(t, "alice")
	ca := env.dial(t, a.ID)

	if err := ca.WriteMessage(websocket.TextMessage, []byte("{nope")); err != nil {
		t.Fatalf("write: %v", err)
	}
	f := next(t, ca, domain.EventError)
	if !strings.Contains(string(f.Data), CodeBadRequest) {
		t.Fatalf("error = %s", f.Data)
	}

	send(t, ca, "dance", nil)
	f = next(t, ca, domain.EventError)
	if !strings.Contains(string(f.Data), "unknown event") {
		t.Fatalf("error = %s", f.Data)
	}
}

func TestLive_DeleteConversationReachesParticipants(t *testing.T) {
	env := newLiveEnv(t)
	ctx := context.Background()
	a, b := env.user(t, "alice"), env.user(t, "bobby")
	conv, _ := env.gw.CreateDirect(ctx, a.ID, []string{b.ID})

	ca := env.dial(t, a.ID)
	cb := env.dial(t, b.ID)

	send(t, ca, domain.EventDeleteConversation, map[string]string{"conversationId": conv.ID})
	f := next(t, cb, domain.EventConversationDeleted)
	if !strings.Contains(string(f.Data), conv.ID) {
		t.Fatalf("conversationDeleted = %s", f.Data)
	}
}

func TestLive_DisconnectLeavesRooms(t *testing.T) {
	env := newLiveEnv(t)
	a := env.user(t, "alice")
	ca := env.dial(t, a.ID)

	_ = ca.Close()
	waitFor(t, func() bool { return env.reg.Members(a.ID) == 0 })
}
