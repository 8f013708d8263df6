package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestRedisStoreGetSet(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedis(t)

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestRedisStoreSetNX(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedis(t)

	ok, err := s.SetNX(ctx, "lease", []byte("1"), 5*time.Minute)
	if err != nil || !ok {
		t.Fatalf("first SetNX: ok=%v err=%v", ok, err)
	}
	ok, err = s.SetNX(ctx, "lease", []byte("2"), 5*time.Minute)
	if err != nil || ok {
		t.Fatalf("second SetNX should be refused: ok=%v err=%v", ok, err)
	}

	mr.FastForward(6 * time.Minute)
	ok, _ = s.SetNX(ctx, "lease", []byte("3"), 5*time.Minute)
	if !ok {
		t.Fatal("SetNX should succeed after the lease expired")
	}
}

func TestRedisStoreDeletePrefix(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestRedis(t)

	// More keys than one SCAN batch to exercise batching.
	for i := 0; i < scanBatch+25; i++ {
		s.Set(ctx, fmt.Sprintf("monthly_summary:1:%04d", i), []byte("x"), time.Hour)
	}
	s.Set(ctx, "monthly_summary:12:2025-01", []byte("y"), time.Hour)

	n, err := s.DeletePrefix(ctx, "monthly_summary:1:")
	if err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}
	if n != scanBatch+25 {
		t.Fatalf("removed %d, want %d", n, scanBatch+25)
	}
	if _, err := s.Get(ctx, "monthly_summary:12:2025-01"); err != nil {
		t.Fatalf("other user's key must survive: %v", err)
	}

	n, err = s.DeletePrefix(ctx, "nothing:")
	if err != nil || n != 0 {
		t.Fatalf("zero-match DeletePrefix = %d, %v", n, err)
	}
}

func TestRedisStoreDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestRedis(t)

	s.Set(ctx, "a", []byte("1"), 0)
	if err := s.Delete(ctx, "a", "never-existed"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatal("a should be gone")
	}
	if err := s.Delete(ctx); err != nil {
		t.Fatalf("Delete with no keys: %v", err)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewRedisStore(ctx, RedisConfig{Addr: addr}); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestEscapeGlob(t *testing.T) {
	tests := map[string]string{
		"monthly_summary:1:": "monthly_summary:1:",
		"a*b":                `a\*b`,
		"a?[x]":              `a\?\[x\]`,
		`back\slash`:         `back\\slash`,
	}
	for in, want := range tests {
		if got := escapeGlob(in); got != want {
			t.Errorf("escapeGlob(%q) = %q, want %q", in, got, want)
		}
	}
}
