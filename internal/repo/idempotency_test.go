package repo

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIdempotency_CreateGetDuplicateAndPurge(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := GetIdempotency(ctx, db, "u1", "", "k", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("blank scope should be ErrNotFound, got %v", err)
	}

	rec, err := CreateIdempotency(ctx, db, "u1", "conversations.message", "k1", "m1", 201, time.Hour)
	if err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "u1", "conversations.message", "k1", "m2", 201, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	// Same key under another scope or user is independent.
	if _, err := CreateIdempotency(ctx, db, "u2", "conversations.message", "k1", "m3", 201, time.Hour); err != nil {
		t.Fatalf("other user: %v", err)
	}

	got, err := GetIdempotency(ctx, db, "u1", "conversations.message", "k1", now)
	if err != nil || got.ID != rec.ID || got.ResourceID != "m1" {
		t.Fatalf("GetIdempotency = %+v, %v", got, err)
	}
	if _, err := GetIdempotency(ctx, db, "u1", "conversations.message", "k1", now.Add(2*time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired record should be ErrNotFound, got %v", err)
	}

	n, err := PurgeExpiredIdempotency(ctx, db, now.Add(2*time.Hour))
	if err != nil || n != 2 {
		t.Fatalf("PurgeExpiredIdempotency = %d, %v", n, err)
	}
}
