package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/reputul/reputul-backend/internal/config"
	"github.com/rs/zerolog/log"
)

// Token errors
var (
	ErrTokenInvalid = errors.New("invalid gate token")
	ErrTokenExpired = errors.New("gate token expired")
)

// gateClaims binds a gate link token to one review request
type gateClaims struct {
	ReviewRequestID string `json:"rrid"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies rating-gate link tokens. Each issued
// token is also registered in Redis as a short-lived reservation so
// used links can be invalidated ahead of their signed expiry.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	rdb    *redis.Client
}

// NewTokenIssuer creates a new gate token issuer. rdb may be nil, in
// which case tokens are validated by signature and expiry alone.
func NewTokenIssuer(cfg *config.GateConfig, rdb *redis.Client) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(cfg.TokenSecret),
		ttl:    cfg.TokenTTL,
		rdb:    rdb,
	}
}

// Issue creates a signed link token for a review request
func (t *TokenIssuer) Issue(ctx context.Context, reviewRequestID uuid.UUID) (string, error) {
	now := time.Now()
	jti := uuid.New().String()

	claims := &gateClaims{
		ReviewRequestID: reviewRequestID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   "gate",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign gate token: %w", err)
	}

	if t.rdb != nil {
		// Best effort: a missing reservation never blocks issuing
		if err := t.rdb.Set(ctx, reservationKey(jti), reviewRequestID.String(), t.ttl).Err(); err != nil {
			log.Warn().Err(err).Msg("Failed to register gate token reservation")
		}
	}

	return signed, nil
}

// Parse validates a link token and returns the review request it was
// issued for, along with the token ID used for consumption.
func (t *TokenIssuer) Parse(ctx context.Context, tokenString string) (uuid.UUID, string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &gateClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, "", ErrTokenExpired
		}
		return uuid.Nil, "", ErrTokenInvalid
	}

	claims, ok := token.Claims.(*gateClaims)
	if !ok || !token.Valid || claims.Subject != "gate" {
		return uuid.Nil, "", ErrTokenInvalid
	}

	requestID, err := uuid.Parse(claims.ReviewRequestID)
	if err != nil {
		return uuid.Nil, "", ErrTokenInvalid
	}

	return requestID, claims.ID, nil
}

// Consume invalidates a token's reservation after a successful gate
// submission. Best effort: the database completed_at check remains the
// authoritative idempotency guard.
func (t *TokenIssuer) Consume(ctx context.Context, jti string) {
	if t.rdb == nil {
		return
	}
	if err := t.rdb.Del(ctx, reservationKey(jti)).Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to consume gate token reservation")
	}
}

func reservationKey(jti string) string {
	return "gate:link:" + jti
}
