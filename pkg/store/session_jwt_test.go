package store

import (
	"testing"
	"time"
)

func TestJWTSessionStoreIssueAndVerify(t *testing.T) {
	s := NewJWTSessionStore("test-secret", time.Hour, NewMemoryTokenRevoker())

	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	uid, ok, err := s.GetUserIDByToken(token)
	if err != nil || !ok {
		t.Fatalf("verify token: ok=%v err=%v", ok, err)
	}
	if uid != "user-1" {
		t.Fatalf("unexpected subject: %q", uid)
	}
}

func TestJWTSessionStoreRejectsTamperedToken(t *testing.T) {
	s := NewJWTSessionStore("test-secret", time.Hour, nil)
	other := NewJWTSessionStore("other-secret", time.Hour, nil)

	token, err := other.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, err := s.GetUserIDByToken(token); ok || err == nil {
		t.Fatalf("expected verification failure for foreign signature")
	}
}

func TestJWTSessionStoreRejectsExpiredToken(t *testing.T) {
	s := NewJWTSessionStoreWithOptions("test-secret", -2*time.Hour, nil, JWTOptions{
		Leeway: time.Millisecond,
	})
	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, err := s.GetUserIDByToken(token); ok || err == nil {
		t.Fatalf("expected verification failure for expired token")
	}
}

func TestJWTSessionStoreLogoutRevokesToken(t *testing.T) {
	s := NewJWTSessionStore("test-secret", time.Hour, NewMemoryTokenRevoker())

	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, err := s.GetUserIDByToken(token); err != nil || !ok {
		t.Fatalf("verify before logout: ok=%v err=%v", ok, err)
	}
	if err := s.DeleteSession(token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, ok, err := s.GetUserIDByToken(token); ok || err == nil {
		t.Fatalf("expected revoked token to fail verification")
	}
}

func TestJWTSessionStoreRevocationIsPerToken(t *testing.T) {
	s := NewJWTSessionStore("test-secret", time.Hour, NewMemoryTokenRevoker())

	first, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	second, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.DeleteSession(first); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, ok, _ := s.GetUserIDByToken(first); ok {
		t.Fatalf("expected first token revoked")
	}
	if _, ok, err := s.GetUserIDByToken(second); err != nil || !ok {
		t.Fatalf("expected second token still valid: ok=%v err=%v", ok, err)
	}
}
