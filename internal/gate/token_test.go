package gate

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/reputul/reputul-backend/internal/config"
)

func testIssuer(ttl time.Duration) *TokenIssuer {
	return NewTokenIssuer(&config.GateConfig{
		TokenSecret: "test-secret",
		TokenTTL:    ttl,
	}, nil)
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	ctx := context.Background()
	issuer := testIssuer(time.Hour)
	requestID := uuid.New()

	token, err := issuer.Issue(ctx, requestID)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	parsedID, jti, err := issuer.Parse(ctx, token)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsedID != requestID {
		t.Errorf("parsed request id = %s, want %s", parsedID, requestID)
	}
	if jti == "" {
		t.Error("parsed token must carry a token id")
	}
}

func TestTokenIssuer_RejectsExpired(t *testing.T) {
	ctx := context.Background()
	issuer := testIssuer(-time.Minute)

	token, err := issuer.Issue(ctx, uuid.New())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if _, _, err := issuer.Parse(ctx, token); err != ErrTokenExpired {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenIssuer_RejectsTampering(t *testing.T) {
	ctx := context.Background()
	issuer := testIssuer(time.Hour)

	token, err := issuer.Issue(ctx, uuid.New())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if _, _, err := issuer.Parse(ctx, token+"x"); err != ErrTokenInvalid {
		t.Errorf("expected ErrTokenInvalid for tampered token, got %v", err)
	}

	other := NewTokenIssuer(&config.GateConfig{TokenSecret: "other-secret", TokenTTL: time.Hour}, nil)
	if _, _, err := other.Parse(ctx, token); err != ErrTokenInvalid {
		t.Errorf("expected ErrTokenInvalid for wrong secret, got %v", err)
	}
}
