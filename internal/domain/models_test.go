package domain

import (
	"encoding/json"
	"fmt"
	"reflect"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:domain_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	// Enforce FKs so cascades actually execute.
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func migrateAll(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := db.AutoMigrate(
		&User{}, &Conversation{}, &ConversationParticipant{}, &DirectConversationKey{},
		&Message{}, &MessageLike{}, &Notification{}, &Idempotency{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		User{}.TableName():                    "users",
		Conversation{}.TableName():            "conversations",
		ConversationParticipant{}.TableName(): "conversation_participants",
		DirectConversationKey{}.TableName():   "direct_conversation_keys",
		Message{}.TableName():                 "messages",
		MessageLike{}.TableName():             "message_likes",
		Notification{}.TableName():            "notifications",
		Idempotency{}.TableName():             "idempotency",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestMigrations_Indexes_AndCascades(t *testing.T) {
	db := newDomainDB(t)
	migrateAll(t, db)
	m := db.Migrator()

	for tbl, idx := range map[any]string{
		&User{}:         "ux_users_username_key",
		&Message{}:      "idx_conversation_msgs",
		&Notification{}: "ux_notification_message_user",
		&Idempotency{}:  "ux_user_scope_key",
	} {
		if !m.HasIndex(tbl, idx) {
			t.Fatalf("expected index %s on %T", idx, tbl)
		}
	}

	a := User{ID: uuid.NewString(), Username: "alice", UsernameKey: "alice", PasswordHash: "x", ProfilePhoto: DefaultProfilePhoto}
	b := User{ID: uuid.NewString(), Username: "bob", UsernameKey: "bob", PasswordHash: "x", ProfilePhoto: DefaultProfilePhoto}
	if err := db.Create(&[]User{a, b}).Error; err != nil {
		t.Fatalf("seed users: %v", err)
	}
	conv := Conversation{ID: uuid.NewString()}
	if err := db.Create(&conv).Error; err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if err := db.Create(&[]ConversationParticipant{
		{ConversationID: conv.ID, UserID: a.ID, Position: 0},
		{ConversationID: conv.ID, UserID: b.ID, Position: 1},
	}).Error; err != nil {
		t.Fatalf("participants: %v", err)
	}
	msg := Message{ID: uuid.NewString(), ConversationID: conv.ID, SenderID: a.ID, Content: "hi"}
	if err := db.Create(&msg).Error; err != nil {
		t.Fatalf("message: %v", err)
	}
	if err := db.Create(&MessageLike{MessageID: msg.ID, UserID: b.ID}).Error; err != nil {
		t.Fatalf("like: %v", err)
	}
	if err := db.Create(&MessageLike{MessageID: msg.ID, UserID: b.ID}).Error; err == nil {
		t.Fatalf("expected duplicate like to be rejected")
	}

	// Deleting the conversation cascades to participants, messages and likes.
	if err := db.Delete(&Conversation{}, "id = ?", conv.ID).Error; err != nil {
		t.Fatalf("delete conversation: %v", err)
	}
	for _, model := range []any{&ConversationParticipant{}, &Message{}, &MessageLike{}} {
		var n int64
		db.Model(model).Count(&n)
		if n != 0 {
			t.Fatalf("expected cascade to clear %T, found %d rows", model, n)
		}
	}
}

func TestCanonicalParticipants_AndDirectKey(t *testing.T) {
	got := CanonicalParticipants([]string{" b ", "a", "", "b", "c"})
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("canonical = %#v", got)
	}
	if DirectKey([]string{"x", "y"}) != DirectKey([]string{"y", "x", "x"}) {
		t.Fatalf("direct key must not depend on order or duplicates")
	}
	if DirectKey([]string{"x", "y"}) == DirectKey([]string{"x", "z"}) {
		t.Fatalf("different sets must not share a key")
	}
	if len(DirectKey([]string{"x"})) != 64 {
		t.Fatalf("expected hex sha256")
	}
}

func TestUsernameKey_Folds(t *testing.T) {
	if UsernameKey("  Alice ") != "alice" {
		t.Fatalf("UsernameKey = %q", UsernameKey("  Alice "))
	}
}

func TestNotificationVariants_RoundTrip(t *testing.T) {
	n := NewNotification("u2", MessageNotification{ConversationID: "c1", MessageID: "m1"})
	if n.Type != KindMessage || n.MessageID == nil || *n.MessageID != "m1" || n.ConversationID != "c1" {
		t.Fatalf("unexpected message row: %+v", n)
	}
	d, err := n.Detail()
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if md, ok := d.(MessageNotification); !ok || md.MessageID != "m1" {
		t.Fatalf("unexpected detail: %#v", d)
	}

	g := NewNotification("u3", ConversationNotification{ConversationID: "c9"})
	if g.Type != KindConversation || g.MessageID != nil {
		t.Fatalf("conversation kind must not carry a message: %+v", g)
	}
	if d, err := g.Detail(); err != nil || d.Kind() != KindConversation || d.Conversation() != "c9" {
		t.Fatalf("unexpected detail: %#v %v", d, err)
	}

	bad := Notification{ID: "n1", Type: KindMessage}
	if _, err := bad.Detail(); err == nil {
		t.Fatalf("expected error for message kind without message id")
	}
	if _, err := (Notification{ID: "n2", Type: "weird"}).Detail(); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestMessageLikes_JSONAsUserIDs(t *testing.T) {
	m := Message{ID: "m1", Likes: []MessageLike{{MessageID: "m1", UserID: "u1"}, {MessageID: "m1", UserID: "u2"}}}
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw struct {
		Likes []string `json:"likes"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(raw.Likes, []string{"u1", "u2"}) {
		t.Fatalf("likes = %#v", raw.Likes)
	}
	if !reflect.DeepEqual(m.LikedBy(), []string{"u1", "u2"}) {
		t.Fatalf("LikedBy = %#v", m.LikedBy())
	}
}

func TestConversation_ParticipantHelpers(t *testing.T) {
	c := Conversation{Participants: []ConversationParticipant{{UserID: "a"}, {UserID: "b"}}}
	if !reflect.DeepEqual(c.ParticipantIDs(), []string{"a", "b"}) {
		t.Fatalf("ParticipantIDs = %#v", c.ParticipantIDs())
	}
	if !c.HasParticipant("b") || c.HasParticipant("z") {
		t.Fatalf("HasParticipant mismatch")
	}
	u := User{ID: "a", Username: "alice", ProfilePhoto: "p", PasswordHash: "secret"}
	if s := u.Summary(); s.ID != "a" || s.Username != "alice" || s.ProfilePhoto != "p" {
		t.Fatalf("Summary = %+v", s)
	}
}

func TestUniqueParticipants_KeepsOrder(t *testing.T) {
	got := UniqueParticipants([]string{"c", " a", "c", "", "b"})
	if !reflect.DeepEqual(got, []string{"c", "a", "b"}) {
		t.Fatalf("unique = %#v", got)
	}
}

func TestEvent_JSONShape(t *testing.T) {
	b, err := json.Marshal(Event{Type: EventConversationDeleted, Data: ConversationDeleted{ConversationID: "c1"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"type":"conversationDeleted","data":{"conversationId":"c1"}}` {
		t.Fatalf("unexpected frame: %s", b)
	}
}

func TestConversationParticipant_JSONExposesSummaryOnly(t *testing.T) {
	u := &User{ID: "u1", Username: "alice", UsernameKey: "alice", PasswordHash: "hash", ProfilePhoto: "p.png"}
	c := Conversation{ID: "c1", Participants: []ConversationParticipant{
		{ConversationID: "c1", UserID: "u1", User: u},
		{ConversationID: "c1", UserID: "u2"},
	}}
	b, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw struct {
		Participants []map[string]json.RawMessage `json:"participants"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(raw.Participants) != 2 {
		t.Fatalf("participants = %s", b)
	}
	var user map[string]any
	if err := json.Unmarshal(raw.Participants[0]["user"], &user); err != nil {
		t.Fatalf("user: %v (%s)", err, b)
	}
	want := map[string]any{"id": "u1", "username": "alice", "profilePhoto": "p.png"}
	if !reflect.DeepEqual(user, want) {
		t.Fatalf("user = %v; want %v", user, want)
	}
	if _, ok := raw.Participants[1]["user"]; ok {
		t.Fatalf("unloaded user rendered: %s", b)
	}

	// decoding the rendered form still yields the summary fields
	var back Conversation
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p := back.Participants[0]; p.UserID != "u1" || p.User == nil || p.User.Summary() != u.Summary() {
		t.Fatalf("decoded %+v", back.Participants[0])
	}
}
