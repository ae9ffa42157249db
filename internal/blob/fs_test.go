package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFSStore_PutOpenDelete(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(filepath.Join(t.TempDir(), "files"))
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	n, err := s.Put(ctx, "abc.bin", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if n != 5 {
		t.Fatalf("Put size = %d, want 5", n)
	}

	ok, err := s.Exists(ctx, "abc.bin")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v; want true", ok, err)
	}

	rc, size, err := s.Open(ctx, "abc.bin")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "hello" || size != 5 {
		t.Fatalf("Open = %q (%d), want hello (5)", body, size)
	}

	if err := s.Delete(ctx, "abc.bin"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "abc.bin"); err != nil {
		t.Fatalf("second Delete should be a no-op: %v", err)
	}
	if ok, _ := s.Exists(ctx, "abc.bin"); ok {
		t.Fatal("blob still exists after Delete")
	}
}

func TestFSStore_OpenMissing(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	_, _, err = s.Open(context.Background(), "nope.bin")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Open missing: got %v, want fs.ErrNotExist", err)
	}
}

func TestFSStore_EmptyBlob(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	n, err := s.Put(ctx, "zero.bin", bytes.NewReader(nil))
	if err != nil || n != 0 {
		t.Fatalf("Put empty = %d, %v", n, err)
	}
	if ok, _ := s.Exists(ctx, "zero.bin"); !ok {
		t.Fatal("empty blob not stored")
	}
}

func TestFSStore_RejectsEscapingNames(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	for _, name := range []string{"", ".", "..", "../x", "a/b", `a\b`} {
		if _, err := s.Put(context.Background(), name, strings.NewReader("x")); err == nil {
			t.Errorf("Put(%q) should fail", name)
		}
	}
}

func TestFSStore_NoTempLeftOnFailure(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Put(ctx, "c.bin", strings.NewReader("data")); err == nil {
		t.Fatal("Put with cancelled context should fail")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty dir after failed Put, found %d entries", len(entries))
	}
}

func TestNewFSStore_Empty(t *testing.T) {
	if _, err := NewFSStore(""); err == nil {
		t.Fatal("expected error for empty dir")
	}
}
