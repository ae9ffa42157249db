package metadata

import (
	"context"
	"testing"
	"time"

	"tmpshare/internal/lifecycle"
)

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) lifecycle.MetadataStore {
		return NewMemoryStore()
	})
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Unix(1_700_000_000, 0).UTC()

	if err := s.Insert(ctx, lifecycle.FileRecord{FileID: "x", StoredName: "x.bin", CreatedAt: now}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := s.Arm(ctx, "x", now, now.Add(time.Minute)); err != nil {
		t.Fatalf("Arm: %v", err)
	}

	got, err := s.Get(ctx, "x")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	*got.ExpireAt = now.Add(time.Hour)

	again, err := s.Get(ctx, "x")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !again.ExpireAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("stored ExpireAt changed through a returned copy: %v", again.ExpireAt)
	}
}

func TestMemoryStoreTruncatesToSeconds(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	created := time.Unix(1_700_000_000, 750_000_000).UTC()

	if err := s.Insert(ctx, lifecycle.FileRecord{FileID: "t", CreatedAt: created}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := s.Get(ctx, "t")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.CreatedAt.Nanosecond() != 0 {
		t.Fatalf("CreatedAt kept sub-second precision: %v", got.CreatedAt)
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
}
