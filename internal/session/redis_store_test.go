package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://"+s.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestCreateAndLookup(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	token, err := store.Create(ctx, 42, "saleh", true)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if token == "" {
		t.Fatal("Create returned empty token")
	}

	sess, err := store.Lookup(ctx, token)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if sess.UserID != 42 || sess.Username != "saleh" || !sess.IsAdmin {
		t.Errorf("unexpected session: %+v", sess)
	}
}

func TestLookupUnknownToken(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	_, err := store.Lookup(context.Background(), "no-such-token")
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestLookupExpiredToken(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	token, err := store.Create(ctx, 7, "dana", false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	s.FastForward(2 * time.Hour)

	if _, err := store.Lookup(ctx, token); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after TTL, got %v", err)
	}
}

func TestLookupSlidesExpiry(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	token, err := store.Create(ctx, 7, "dana", false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	s.FastForward(45 * time.Minute)
	if _, err := store.Lookup(ctx, token); err != nil {
		t.Fatalf("Lookup before expiry failed: %v", err)
	}

	// The first lookup reset the TTL, so another 45 minutes stays valid.
	s.FastForward(45 * time.Minute)
	if _, err := store.Lookup(ctx, token); err != nil {
		t.Fatalf("Lookup after sliding expiry failed: %v", err)
	}
}

func TestRevoke(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	token, err := store.Create(ctx, 9, "omar", false)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Revoke(ctx, token); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := store.Lookup(ctx, token); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after revoke, got %v", err)
	}
	if err := store.Revoke(ctx, token); err != nil {
		t.Fatalf("revoking twice should not error: %v", err)
	}
}
