package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/ttw/internal/config"
	"github.com/goodtune/ttw/internal/storage"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	// miniredis.Addr() returns "host:port", so Port stays zero
	cfg := config.RedisConfig{
		Host:         mr.Addr(),
		Port:         0,
		DB:           0,
		Key:          "ttw:test:sessions",
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	}

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}

	return store, mr
}

func collect(t *testing.T, seq func(func(storage.Session, error) bool)) []storage.Session {
	t.Helper()

	var out []storage.Session
	for s, err := range seq {
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		out = append(out, s)
	}
	return out
}

func TestSessionStore_AppendAndPatch(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	sessions := store.Sessions()

	if err := sessions.Append(ctx, storage.Session{Class: "kitty", Title: "bash", Start: 0, End: 1000}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := sessions.Append(ctx, storage.Session{Class: "code", Title: "main.go", Start: 1000, Open: true}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	list, err := store.client.LRange(ctx, "ttw:test:sessions", 0, -1).Result()
	if err != nil {
		t.Fatalf("read list: %v", err)
	}
	if list[1] != "code\tmain.go\t1000\t" {
		t.Errorf("Expected open line, got %q", list[1])
	}

	if err := sessions.PatchLastEnd(ctx, 3000); err != nil {
		t.Fatalf("PatchLastEnd failed: %v", err)
	}

	got := collect(t, sessions.ReadAll(ctx))
	if len(got) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(got))
	}
	if got[1].Open || got[1].End != 3000 {
		t.Errorf("Expected patched end 3000, got %+v", got[1])
	}
	if got[0].End != 1000 {
		t.Errorf("Expected first session untouched, got %+v", got[0])
	}
}

func TestSessionStore_PatchEmpty(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	err := store.Sessions().PatchLastEnd(context.Background(), 10)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestSessionStore_PatchCorrupt(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	if err := store.client.RPush(context.Background(), "ttw:test:sessions", "garbage").Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := store.Sessions().PatchLastEnd(context.Background(), 10)
	if !errors.Is(err, storage.ErrCorrupt) {
		t.Fatalf("Expected ErrCorrupt, got %v", err)
	}
}

func TestSessionStore_ReadAllPages(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	sessions := store.Sessions()

	total := readPage + 10
	for i := 0; i < total; i++ {
		s := storage.Session{Class: "app", Title: fmt.Sprintf("t%d", i), Start: int64(i), End: int64(i + 1)}
		if err := sessions.Append(ctx, s); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	got := collect(t, sessions.ReadAll(ctx))
	if len(got) != total {
		t.Fatalf("Expected %d sessions, got %d", total, len(got))
	}
	for i, s := range got {
		if s.Start != int64(i) {
			t.Fatalf("Expected start %d at %d, got %d", i, i, s.Start)
		}
	}

	// Restartable
	if again := collect(t, sessions.ReadAll(ctx)); len(again) != total {
		t.Errorf("Expected second pass to yield %d sessions, got %d", total, len(again))
	}
}

func TestSessionStore_ReadAllCorrupt(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if err := store.client.RPush(ctx, "ttw:test:sessions", "kitty\tbash\t0\t10", "kitty\tbash\tx\t20").Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var parseErr *storage.ParseError
	count := 0
	for _, err := range store.Sessions().ReadAll(ctx) {
		if err != nil {
			if !errors.As(err, &parseErr) {
				t.Fatalf("Expected ParseError, got %v", err)
			}
			break
		}
		count++
	}
	if count != 1 {
		t.Errorf("Expected 1 valid session before error, got %d", count)
	}
	if parseErr == nil || parseErr.Position != "index 1" {
		t.Errorf("Expected error at index 1, got %+v", parseErr)
	}
	if !errors.Is(parseErr, storage.ErrCorrupt) {
		t.Error("Expected ParseError to match ErrCorrupt")
	}
}

func TestSessionStore_ReadTail(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	sessions := store.Sessions()

	if got := collect(t, sessions.ReadTail(ctx, 3)); len(got) != 0 {
		t.Fatalf("Expected empty tail, got %d", len(got))
	}

	for i := int64(0); i < 5; i++ {
		if err := sessions.Append(ctx, storage.Session{Class: "app", Start: i, End: i + 1}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	got := collect(t, sessions.ReadTail(ctx, 2))
	if len(got) != 2 || got[0].Start != 3 || got[1].Start != 4 {
		t.Errorf("Unexpected tail: %+v", got)
	}

	if got := collect(t, sessions.ReadTail(ctx, 10)); len(got) != 5 {
		t.Errorf("Expected whole list when n exceeds length, got %d", len(got))
	}
}

func TestOpen_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Open(config.RedisConfig{
		Host:         addr,
		DialTimeout:  "100ms",
		ReadTimeout:  "100ms",
		WriteTimeout: "100ms",
	})
	if !errors.Is(err, storage.ErrIO) {
		t.Fatalf("Expected ErrIO, got %v", err)
	}
}
