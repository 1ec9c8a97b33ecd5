package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/reputul/reputul-backend/internal/logging"
	"github.com/reputul/reputul-backend/internal/models"
	"github.com/reputul/reputul-backend/internal/monitoring"
	"github.com/shopspring/decimal"
)

// Service errors
var (
	ErrRequestNotFound  = errors.New("review request not found")
	ErrBusinessNotFound = errors.New("business not found")
)

// Service handles rating gate submissions. The decision itself is pure
// (see Decide); the service owns persistence of the resulting review or
// feedback record and the gate-used idempotency guard.
type Service struct {
	db     *pgxpool.Pool
	tokens *TokenIssuer
}

// NewService creates a new gate service
func NewService(db *pgxpool.Pool, tokens *TokenIssuer) *Service {
	return &Service{db: db, tokens: tokens}
}

// GateInfo describes the gate landing page for one review request
type GateInfo struct {
	ReviewRequestID uuid.UUID `json:"review_request_id"`
	BusinessName    string    `json:"business_name"`
	CustomerName    string    `json:"customer_name"`
	Used            bool      `json:"used"`
}

// Info loads the landing-page context for a review request
func (s *Service) Info(ctx context.Context, reviewRequestID uuid.UUID) (*GateInfo, error) {
	var info GateInfo
	var completedAt *time.Time
	err := s.db.QueryRow(ctx, `
		SELECT rr.id, b.name, c.name, rr.completed_at
		FROM review_requests rr
		JOIN businesses b ON b.id = rr.business_id
		JOIN customers c ON c.id = rr.customer_id
		WHERE rr.id = $1
	`, reviewRequestID).Scan(&info.ReviewRequestID, &info.BusinessName, &info.CustomerName, &completedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to load gate info: %w", err)
	}
	info.Used = completedAt != nil
	return &info, nil
}

// Submit records a gate submission for a review request. The rating is
// routed by Decide; public routes produce a Review record pointing at
// the selected platform, private routes produce a Feedback record. A
// second submission for the same request fails with ErrAlreadyUsed.
func (s *Service) Submit(ctx context.Context, reviewRequestID uuid.UUID, rating int, comment string) (*Decision, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var customerID, businessID uuid.UUID
	var completedAt *time.Time
	err = tx.QueryRow(ctx, `
		SELECT customer_id, business_id, completed_at
		FROM review_requests WHERE id = $1 FOR UPDATE
	`, reviewRequestID).Scan(&customerID, &businessID, &completedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get review request: %w", err)
	}

	if completedAt != nil {
		return nil, ErrAlreadyUsed
	}

	cfg, err := loadGateConfig(ctx, tx, businessID)
	if err != nil {
		return nil, err
	}

	decision, err := Decide(rating, *cfg)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if decision.Route == RoutePublic {
		_, err = tx.Exec(ctx, `
			INSERT INTO reviews (id, business_id, customer_id, review_request_id, rating, platform)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.New(), businessID, customerID, reviewRequestID, rating, decision.Platform)
		if err != nil {
			return nil, fmt.Errorf("failed to create review record: %w", err)
		}
	} else {
		var commentVal *string
		if comment != "" {
			commentVal = &comment
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO feedback (id, business_id, customer_id, review_request_id, rating, comment)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.New(), businessID, customerID, reviewRequestID, rating, commentVal)
		if err != nil {
			return nil, fmt.Errorf("failed to create feedback record: %w", err)
		}
	}

	// The customer converted: completed is the strongest lattice state,
	// so it supersedes whatever delivery status the request carries.
	_, err = tx.Exec(ctx, `
		UPDATE review_requests
		SET status = $1, completed_at = $2
		WHERE id = $3 AND completed_at IS NULL
	`, models.RequestStatusCompleted, now, reviewRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark gate used: %w", err)
	}

	if err := recomputeReputation(ctx, tx, businessID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	monitoring.RecordGateDecision(string(decision.Route))
	logging.LogGateDecision(reviewRequestID.String(), rating, string(decision.Route), string(decision.Platform))

	return &decision, nil
}

// loadGateConfig reads the business threshold and configured platforms
func loadGateConfig(ctx context.Context, tx pgx.Tx, businessID uuid.UUID) (*models.GateConfig, error) {
	var cfg models.GateConfig
	err := tx.QueryRow(ctx, `
		SELECT public_rating_threshold FROM businesses WHERE id = $1
	`, businessID).Scan(&cfg.PublicRatingThreshold)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBusinessNotFound
		}
		return nil, fmt.Errorf("failed to get business: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT business_id, type, url, place_id
		FROM business_platforms
		WHERE business_id = $1
	`, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to query business platforms: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.PlatformConfig
		if err := rows.Scan(&p.BusinessID, &p.Type, &p.URL, &p.PlaceID); err != nil {
			return nil, fmt.Errorf("failed to scan platform config: %w", err)
		}
		cfg.Platforms = append(cfg.Platforms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating platforms: %w", err)
	}

	return &cfg, nil
}

// recomputeReputation refreshes the business reputation score from all
// recorded ratings. Public reviews and private feedback both count.
func recomputeReputation(ctx context.Context, tx pgx.Tx, businessID uuid.UUID) error {
	var avg decimal.Decimal
	var count int
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(AVG(rating), 0), COUNT(*)
		FROM (
			SELECT rating FROM reviews WHERE business_id = $1
			UNION ALL
			SELECT rating FROM feedback WHERE business_id = $1
		) ratings
	`, businessID).Scan(&avg, &count)
	if err != nil {
		return fmt.Errorf("failed to aggregate ratings: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE businesses
		SET reputation_score = $1, review_count = $2, updated_at = NOW()
		WHERE id = $3
	`, avg.Round(2), count, businessID)
	if err != nil {
		return fmt.Errorf("failed to update reputation score: %w", err)
	}
	return nil
}

// Tokens exposes the link token issuer
func (s *Service) Tokens() *TokenIssuer {
	return s.tokens
}
