package auth

import (
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	svc := NewTokenService("test-secret-key", true)

	token, err := svc.Issue()
	if err != nil {
		t.Fatalf("Issue() failed: %v", err)
	}
	if token == "" {
		t.Fatal("Expected non-empty token")
	}

	claims, ok := svc.Verify(token)
	if !ok {
		t.Fatal("Verify() rejected a fresh token")
	}
	if !claims.Authenticated {
		t.Error("Expected authenticated claim")
	}
	if claims.Timestamp == 0 {
		t.Error("Expected issue timestamp")
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != TokenTTL {
		t.Errorf("Expected %v validity, got %v", TokenTTL, got)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	token, err := NewTokenService("secret-1", true).Issue()
	if err != nil {
		t.Fatalf("Issue() failed: %v", err)
	}

	if _, ok := NewTokenService("secret-2", true).Verify(token); ok {
		t.Error("Verify() should fail when secret is different")
	}
}

func TestVerify_Expired(t *testing.T) {
	now := time.Now()
	svc := NewTokenService("test-secret-key", true).WithClock(func() time.Time { return now })
	token, err := svc.Issue()
	if err != nil {
		t.Fatalf("Issue() failed: %v", err)
	}

	svc.WithClock(func() time.Time { return now.Add(TokenTTL + time.Minute) })
	if _, ok := svc.Verify(token); ok {
		t.Error("Verify() should fail after 24h")
	}

	svc.WithClock(func() time.Time { return now.Add(TokenTTL - time.Minute) })
	if _, ok := svc.Verify(token); !ok {
		t.Error("Verify() should pass just before expiry")
	}
}

func TestVerify_Garbage(t *testing.T) {
	svc := NewTokenService("test-secret-key", true)
	for _, raw := range []string{"", "invalid.token.string", "a.b"} {
		if _, ok := svc.Verify(raw); ok {
			t.Errorf("Verify(%q) should fail", raw)
		}
	}
}

func TestIssue_FailsClosedWithoutSecret(t *testing.T) {
	svc := NewTokenService("change-this-secret-in-production", false)
	if _, err := svc.Issue(); err != ErrSigningDisabled {
		t.Errorf("Expected ErrSigningDisabled, got %v", err)
	}
	if NewTokenService("", true).CanSign() {
		t.Error("Empty secret must never sign")
	}
}

func TestPasswordChecker(t *testing.T) {
	p, err := NewPasswordChecker("hunter2")
	if err != nil {
		t.Fatalf("NewPasswordChecker() failed: %v", err)
	}
	if err := p.Check("hunter2"); err != nil {
		t.Errorf("Correct password rejected: %v", err)
	}
	if err := p.Check("wrong"); err != ErrInvalidPassword {
		t.Errorf("Expected ErrInvalidPassword, got %v", err)
	}
	if err := p.Check(""); err != ErrInvalidPassword {
		t.Errorf("Expected ErrInvalidPassword for empty attempt, got %v", err)
	}

	empty, _ := NewPasswordChecker("")
	if err := empty.Check("anything"); err != ErrPasswordNotConfigured {
		t.Errorf("Expected ErrPasswordNotConfigured, got %v", err)
	}
}
