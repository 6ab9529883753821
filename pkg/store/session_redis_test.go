package store

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestRedisSessionStoreRoundTrip(t *testing.T) {
	redis := miniredis.RunT(t)
	sessions := NewRedisSessionStore(redis.Addr(), "", time.Hour)

	token, err := sessions.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if token == "" {
		t.Fatalf("expected non-empty token")
	}

	uid, ok, err := sessions.GetUserIDByToken(token)
	if err != nil {
		t.Fatalf("get user id: %v", err)
	}
	if !ok || uid != "user-1" {
		t.Fatalf("expected user-1, got %q ok=%v", uid, ok)
	}

	if err := sessions.DeleteSession(token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, ok, _ := sessions.GetUserIDByToken(token); ok {
		t.Fatalf("expected session gone after delete")
	}
}

func TestRedisSessionStoreExpiry(t *testing.T) {
	redis := miniredis.RunT(t)
	sessions := NewRedisSessionStore(redis.Addr(), "", time.Minute)

	token, err := sessions.NewSession("user-2")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	redis.FastForward(2 * time.Minute)
	if _, ok, _ := sessions.GetUserIDByToken(token); ok {
		t.Fatalf("expected session expired")
	}
}

func TestRedisSessionStoreUnknownToken(t *testing.T) {
	redis := miniredis.RunT(t)
	sessions := NewRedisSessionStore(redis.Addr(), "", time.Minute)
	if _, ok, err := sessions.GetUserIDByToken("no-such-token"); ok || err != nil {
		t.Fatalf("expected miss without error, ok=%v err=%v", ok, err)
	}
}
