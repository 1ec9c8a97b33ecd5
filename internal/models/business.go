package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlatformType identifies a public review platform
type PlatformType string

const (
	PlatformGoogle   PlatformType = "google"
	PlatformFacebook PlatformType = "facebook"
	PlatformYelp     PlatformType = "yelp"
)

// PlatformConfig is one configured review destination for a business.
// Google entries may carry a short URL, a Place ID, or both.
type PlatformConfig struct {
	BusinessID uuid.UUID    `json:"business_id" db:"business_id"`
	Type       PlatformType `json:"type" db:"type"`
	URL        *string      `json:"url,omitempty" db:"url"`
	PlaceID    *string      `json:"place_id,omitempty" db:"place_id"`
}

// Business represents one tenant business
type Business struct {
	ID                    uuid.UUID       `json:"id" db:"id"`
	OrgID                 uuid.UUID       `json:"org_id" db:"org_id"`
	Name                  string          `json:"name" db:"name"`
	PublicRatingThreshold int             `json:"public_rating_threshold" db:"public_rating_threshold"`
	ReputationScore       decimal.Decimal `json:"reputation_score" db:"reputation_score"`
	ReviewCount           int             `json:"review_count" db:"review_count"`
	CreatedAt             time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at" db:"updated_at"`
}

// GateConfig is the business configuration consumed by the rating gate
type GateConfig struct {
	PublicRatingThreshold int              `json:"public_rating_threshold"`
	Platforms             []PlatformConfig `json:"platforms"`
}

// DefaultPublicRatingThreshold is used when a business has not
// configured its own gate threshold.
const DefaultPublicRatingThreshold = 4
