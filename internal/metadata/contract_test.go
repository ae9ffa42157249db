package metadata

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tmpshare/internal/lifecycle"
)

// runStoreContract exercises the behaviour every MetadataStore must share.
// newStore must return an empty store.
func runStoreContract(t *testing.T, newStore func(t *testing.T) lifecycle.MetadataStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0).UTC()

	pending := func(id string) lifecycle.FileRecord {
		return lifecycle.FileRecord{
			FileID:       id,
			StoredName:   id + ".bin",
			OriginalName: "report.pdf",
			DownloadName: "0011223344556677.pdf",
			CreatedAt:    base,
		}
	}

	t.Run("insert and get", func(t *testing.T) {
		s := newStore(t)
		if err := s.Insert(ctx, pending("a")); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		got, err := s.Get(ctx, "a")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.StoredName != "a.bin" || got.OriginalName != "report.pdf" || got.DownloadName != "0011223344556677.pdf" {
			t.Fatalf("unexpected record: %+v", got)
		}
		if !got.CreatedAt.Equal(base) {
			t.Fatalf("CreatedAt = %v, want %v", got.CreatedAt, base)
		}
		if got.FirstDownloadAt != nil || got.ExpireAt != nil {
			t.Fatalf("new record should be pending: %+v", got)
		}
	})

	t.Run("duplicate insert", func(t *testing.T) {
		s := newStore(t)
		if err := s.Insert(ctx, pending("dup")); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if err := s.Insert(ctx, pending("dup")); !errors.Is(err, lifecycle.ErrAlreadyExists) {
			t.Fatalf("second Insert err = %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(ctx, "nope"); !errors.Is(err, lifecycle.ErrNotFound) {
			t.Fatalf("Get err = %v, want ErrNotFound", err)
		}
	})

	t.Run("arm once", func(t *testing.T) {
		s := newStore(t)
		if err := s.Insert(ctx, pending("arm")); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		armed, err := s.Arm(ctx, "arm", base, base.Add(time.Minute))
		if err != nil || !armed {
			t.Fatalf("first Arm = %v, %v; want true, nil", armed, err)
		}
		armed, err = s.Arm(ctx, "arm", base.Add(time.Hour), base.Add(2*time.Hour))
		if err != nil || armed {
			t.Fatalf("second Arm = %v, %v; want false, nil", armed, err)
		}
		got, err := s.Get(ctx, "arm")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.ExpireAt == nil || !got.ExpireAt.Equal(base.Add(time.Minute)) {
			t.Fatalf("ExpireAt = %v, want %v", got.ExpireAt, base.Add(time.Minute))
		}
		if got.FirstDownloadAt == nil || !got.FirstDownloadAt.Equal(base) {
			t.Fatalf("FirstDownloadAt = %v, want %v", got.FirstDownloadAt, base)
		}
	})

	t.Run("arm missing", func(t *testing.T) {
		s := newStore(t)
		armed, err := s.Arm(ctx, "ghost", base, base.Add(time.Minute))
		if err != nil || armed {
			t.Fatalf("Arm on missing = %v, %v; want false, nil", armed, err)
		}
	})

	t.Run("concurrent arm has one winner", func(t *testing.T) {
		s := newStore(t)
		if err := s.Insert(ctx, pending("race")); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				at := base.Add(time.Duration(i) * time.Second)
				armed, err := s.Arm(ctx, "race", at, at.Add(time.Minute))
				if err != nil {
					t.Errorf("Arm: %v", err)
					return
				}
				if armed {
					wins.Add(1)
				}
			}(i)
		}
		wg.Wait()
		if wins.Load() != 1 {
			t.Fatalf("winners = %d, want 1", wins.Load())
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s := newStore(t)
		if err := s.Insert(ctx, pending("del")); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		for i, want := range []bool{true, false} {
			deleted, err := s.Delete(ctx, "del")
			if err != nil {
				t.Fatalf("Delete #%d: %v", i+1, err)
			}
			if deleted != want {
				t.Fatalf("Delete #%d deleted = %v, want %v", i+1, deleted, want)
			}
		}
		if _, err := s.Get(ctx, "del"); !errors.Is(err, lifecycle.ErrNotFound) {
			t.Fatalf("Get after delete err = %v, want ErrNotFound", err)
		}
	})

	t.Run("list expired", func(t *testing.T) {
		s := newStore(t)
		for _, id := range []string{"pending", "soon", "later", "edge"} {
			if err := s.Insert(ctx, pending(id)); err != nil {
				t.Fatalf("Insert %s: %v", id, err)
			}
		}
		mustArm := func(id string, exp time.Time) {
			t.Helper()
			if _, err := s.Arm(ctx, id, base, exp); err != nil {
				t.Fatalf("Arm %s: %v", id, err)
			}
		}
		now := base.Add(time.Minute)
		mustArm("soon", base.Add(30*time.Second))
		mustArm("edge", now)
		mustArm("later", base.Add(time.Hour))

		got, err := s.ListExpired(ctx, now)
		if err != nil {
			t.Fatalf("ListExpired: %v", err)
		}
		ids := map[string]bool{}
		for _, rec := range got {
			ids[rec.FileID] = true
		}
		if len(got) != 2 || !ids["soon"] || !ids["edge"] {
			t.Fatalf("ListExpired ids = %v, want soon and edge", ids)
		}

		if _, err := s.Delete(ctx, "soon"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		got, err = s.ListExpired(ctx, now)
		if err != nil {
			t.Fatalf("ListExpired: %v", err)
		}
		if len(got) != 1 || got[0].FileID != "edge" {
			t.Fatalf("after delete ListExpired = %+v, want only edge", got)
		}
	})
}
