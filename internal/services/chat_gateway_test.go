package services

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-realtime-chat/internal/domain"
	"github.com/tbourn/go-realtime-chat/internal/repo"
)

func TestSendMessage_DirectNotifiesOnlyRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := mkUser(t, f.db, "alice"), mkUser(t, f.db, "bob")
	conv, _ := f.gw.CreateDirect(ctx, a.ID, []string{b.ID})

	msg, err := f.gw.SendMessage(ctx, a.ID, conv.ID, "hi", TransportWS)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.Content != "hi" || msg.SenderID != a.ID {
		t.Fatalf("unexpected message: %+v", msg)
	}

	pushes := f.pub.ofType(domain.EventMessage)
	if len(pushes) != 1 || pushes[0].Rooms[0] != conv.ID {
		t.Fatalf("expected one message push to %s, got %+v", conv.ID, pushes)
	}
	notes := f.pub.ofType(domain.EventNotification)
	if len(notes) != 1 || notes[0].Rooms[0] != b.ID {
		t.Fatalf("expected one notification push to bob, got %+v", notes)
	}

	if got, _ := f.gw.Notifications.ListUnread(ctx, b.ID); len(got) != 1 || got[0].Type != domain.KindMessage {
		t.Fatalf("bob should have one message notification, got %+v", got)
	}
	if got, _ := f.gw.Notifications.ListUnread(ctx, a.ID); len(got) != 0 {
		t.Fatalf("alice should have none, got %d", len(got))
	}
}

func TestSendMessage_PushComesAfterPersist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := mkUser(t, f.db, "alice"), mkUser(t, f.db, "bob")
	conv, _ := f.gw.CreateDirect(ctx, a.ID, []string{b.ID})

	msg, _ := f.gw.SendMessage(ctx, a.ID, conv.ID, "persisted?", TransportHTTP)
	pushed := f.pub.ofType(domain.EventMessage)[0].Event.Data.(*domain.Message)
	stored, err := repo.GetMessage(ctx, f.db, pushed.ID)
	if err != nil || stored.ID != msg.ID {
		t.Fatalf("pushed message must already be stored: %v", err)
	}
}

func TestSendMessage_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := mkUser(t, f.db, "alice"), mkUser(t, f.db, "bob"), mkUser(t, f.db, "carol")
	conv, _ := f.gw.CreateDirect(ctx, a.ID, []string{b.ID})

	cases := []struct {
		name    string
		sender  string
		conv    string
		content string
		want    error
	}{
		{"empty", a.ID, conv.ID, "  ", ErrEmptyContent},
		{"unknown conversation", a.ID, "missing", "hi", ErrConversationNotFound},
		{"outsider", c.ID, conv.ID, "hi", ErrNotParticipant},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.gw.SendMessage(ctx, tc.sender, tc.conv, tc.content, TransportHTTP); !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}
	if n := len(f.pub.ofType(domain.EventMessage)); n != 0 {
		t.Fatalf("rejected sends must not push, got %d", n)
	}
}

func TestSendMessage_FanoutFailureKeepsMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := mkUser(t, f.db, "alice"), mkUser(t, f.db, "bob")
	conv, _ := f.gw.CreateDirect(ctx, a.ID, []string{b.ID})

	// Without the notifications table every fan-out attempt fails.
	if err := f.db.Migrator().DropTable(&domain.Notification{}); err != nil {
		t.Fatalf("drop notifications: %v", err)
	}
	msg, err := f.gw.SendMessage(ctx, a.ID, conv.ID, "still here", TransportHTTP)
	if err != nil {
		t.Fatalf("SendMessage must succeed despite fan-out failure: %v", err)
	}
	if _, err := repo.GetMessage(ctx, f.db, msg.ID); err != nil {
		t.Fatalf("message must stay persisted: %v", err)
	}
	if n := len(f.pub.ofType(domain.EventNotification)); n != 0 {
		t.Fatalf("no notifications should be pushed, got %d", n)
	}
}

func TestCreateGroup_ParticipantsAndNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := mkUser(t, f.db, "alice"), mkUser(t, f.db, "bob"), mkUser(t, f.db, "carol")

	g, err := f.gw.CreateGroup(ctx, a.ID, []string{b.ID, c.ID}, nil)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	set := map[string]bool{}
	for _, id := range g.ParticipantIDs() {
		set[id] = true
	}
	if len(set) != 3 || !set[a.ID] || !set[b.ID] || !set[c.ID] {
		t.Fatalf("participants = %v", g.ParticipantIDs())
	}
	pushes := f.pub.ofType(domain.EventNotification)
	if len(pushes) != 2 {
		t.Fatalf("expected 2 group notifications, got %d", len(pushes))
	}
	for _, p := range pushes {
		if p.Rooms[0] == a.ID {
			t.Fatalf("creator must not be notified")
		}
	}
}

func TestDeleteConversation_RequiresParticipantAndPushes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := mkUser(t, f.db, "alice"), mkUser(t, f.db, "bob"), mkUser(t, f.db, "carol")
	conv, _ := f.gw.CreateDirect(ctx, a.ID, []string{b.ID})
	_, _ = f.gw.SendMessage(ctx, a.ID, conv.ID, "bye", TransportHTTP)

	if err := f.gw.DeleteConversation(ctx, c.ID, conv.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("outsider: want ErrForbidden, got %v", err)
	}
	if err := f.gw.DeleteConversation(ctx, a.ID, conv.ID); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	if err := f.gw.DeleteConversation(ctx, a.ID, conv.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("second delete: want ErrConversationNotFound, got %v", err)
	}

	pushes := f.pub.ofType(domain.EventConversationDeleted)
	if len(pushes) != 1 {
		t.Fatalf("expected one conversationDeleted push, got %d", len(pushes))
	}
	rooms := map[string]bool{}
	for _, r := range pushes[0].Rooms {
		rooms[r] = true
	}
	if !rooms[conv.ID] || !rooms[a.ID] || !rooms[b.ID] {
		t.Fatalf("expected conversation and participant rooms, got %v", pushes[0].Rooms)
	}
	if got, _ := f.gw.Notifications.ListUnread(ctx, b.ID); len(got) != 0 {
		t.Fatalf("notifications must go with the conversation")
	}
}

func TestAuthorizeJoin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := mkUser(t, f.db, "alice"), mkUser(t, f.db, "bob"), mkUser(t, f.db, "carol")
	conv, _ := f.gw.CreateDirect(ctx, a.ID, []string{b.ID})

	cases := []struct {
		name string
		user string
		room string
		want error
	}{
		{"own room", c.ID, c.ID, nil},
		{"member", b.ID, conv.ID, nil},
		{"outsider", c.ID, conv.ID, ErrForbidden},
		{"someone else's room", c.ID, a.ID, ErrNotFound},
		{"unknown", a.ID, "nope", ErrConversationNotFound},
		{"blank", a.ID, " ", ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.gw.AuthorizeJoin(ctx, tc.user, tc.room)
			if tc.want == nil && err != nil {
				t.Fatalf("want nil, got %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}
}

func TestGatewayToggleLike(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := mkUser(t, f.db, "alice"), mkUser(t, f.db, "bob"), mkUser(t, f.db, "carol")
	conv, _ := f.gw.CreateDirect(ctx, a.ID, []string{b.ID})
	msg, _ := f.gw.SendMessage(ctx, a.ID, conv.ID, "like me", TransportHTTP)

	if _, _, err := f.gw.ToggleLike(ctx, c.ID, msg.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("outsider like: want ErrForbidden, got %v", err)
	}
	likes, liked, err := f.gw.ToggleLike(ctx, b.ID, msg.ID)
	if err != nil || likes != 1 || !liked {
		t.Fatalf("ToggleLike = %d %v %v", likes, liked, err)
	}
	pushes := f.pub.ofType(domain.EventMessageLiked)
	if len(pushes) != 1 || pushes[0].Rooms[0] != conv.ID {
		t.Fatalf("expected messageLiked push to conversation, got %+v", pushes)
	}
	ev := pushes[0].Event.Data.(domain.MessageLiked)
	if ev.Likes != 1 || !ev.Liked || ev.UserID != b.ID {
		t.Fatalf("unexpected payload %+v", ev)
	}
}

func TestGatewayUpdateProfile_Broadcasts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := mkUser(t, f.db, "alice")
	photo := "https://img/alice.png"

	u, err := f.gw.UpdateProfile(ctx, a.ID, ProfileUpdate{ProfilePhoto: &photo})
	if err != nil || u.ProfilePhoto != photo {
		t.Fatalf("UpdateProfile = %+v, %v", u, err)
	}
	pushes := f.pub.ofType(domain.EventProfileUpdated)
	if len(pushes) != 1 || pushes[0].Rooms[0] != "*" {
		t.Fatalf("expected one broadcast, got %+v", pushes)
	}
	if _, err := f.gw.UpdateProfile(ctx, a.ID, ProfileUpdate{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty update: want ErrValidation, got %v", err)
	}
}
