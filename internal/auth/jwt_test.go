package auth

import (
	"errors"
	"testing"
	"time"
)

func newTestManager(accessTTL time.Duration) *Manager {
	return NewManager("test-secret", "nutriscan-api", "nutriscan-app", accessTTL, 24*time.Hour)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := newTestManager(time.Hour)

	tok, err := m.GenerateAccessToken("user-123", "a@b.com", true)

	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	claims, err := m.VerifyAccessToken(tok)

	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}

	if claims.UserID != "user-123" || claims.Email != "a@b.com" || !claims.EmailVerified {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestExpiredTokenErrorKind(t *testing.T) {
	m := newTestManager(-time.Minute)

	tok, err := m.GenerateAccessToken("u1", "a@b.com", false)

	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	_, err = m.VerifyAccessToken(tok)

	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("want ErrTokenExpired, got %v", err)
	}
}

func TestWrongAudienceRejected(t *testing.T) {
	issuing := NewManager("same-secret", "nutriscan-api", "other-app", time.Hour, time.Hour)
	verifying := NewManager("same-secret", "nutriscan-api", "nutriscan-app", time.Hour, time.Hour)

	tok, err := issuing.GenerateAccessToken("u1", "a@b.com", true)

	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	// validly signed by the same key, but for a different audience
	if _, err := verifying.VerifyAccessToken(tok); err == nil {
		t.Fatalf("want error for audience mismatch, got nil")
	}
}

func TestWrongIssuerRejected(t *testing.T) {
	issuing := NewManager("same-secret", "someone-else", "nutriscan-app", time.Hour, time.Hour)
	verifying := NewManager("same-secret", "nutriscan-api", "nutriscan-app", time.Hour, time.Hour)

	tok, _ := issuing.GenerateAccessToken("u1", "a@b.com", true)

	if _, err := verifying.VerifyAccessToken(tok); err == nil {
		t.Fatalf("want error for issuer mismatch, got nil")
	}
}

func TestMalformedToken(t *testing.T) {
	m := newTestManager(time.Hour)

	_, err := m.VerifyAccessToken("not.a.jwt")

	if !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("want ErrTokenMalformed, got %v", err)
	}
}

func TestWrongSignatureRejected(t *testing.T) {
	m := newTestManager(time.Hour)
	other := NewManager("different-secret", "nutriscan-api", "nutriscan-app", time.Hour, time.Hour)

	tok, _ := other.GenerateAccessToken("u1", "a@b.com", true)

	if _, err := m.VerifyAccessToken(tok); err == nil {
		t.Fatalf("want error for bad signature, got nil")
	}
}

func TestTokenTypeEnforced(t *testing.T) {
	m := newTestManager(time.Hour)

	refresh, _ := m.GenerateRefreshToken("u1", "a@b.com", true)

	if _, err := m.VerifyAccessToken(refresh); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("refresh token accepted as access token: %v", err)
	}

	access, _ := m.GenerateAccessToken("u1", "a@b.com", true)

	if _, err := m.VerifyRefreshToken(access); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("access token accepted as refresh token: %v", err)
	}
}

func TestIssueTokenPair(t *testing.T) {
	m := newTestManager(time.Hour)

	pair, err := m.IssueTokenPair("u1", "a@b.com", false)

	if err != nil {
		t.Fatalf("IssueTokenPair: %v", err)
	}

	if pair.TokenType != "Bearer" {
		t.Errorf("TokenType = %q", pair.TokenType)
	}

	if pair.ExpiresIn != 3600 {
		t.Errorf("ExpiresIn = %d, want 3600", pair.ExpiresIn)
	}

	claims, err := m.VerifyRefreshToken(pair.RefreshToken)

	if err != nil {
		t.Fatalf("VerifyRefreshToken: %v", err)
	}

	if claims.UserID != "u1" {
		t.Errorf("refresh claims userID = %q", claims.UserID)
	}
}
