package models

import (
	"time"

	"github.com/google/uuid"
)

// Review is a public-routed gate submission. The customer is pointed at
// the selected platform; the rating itself is kept for reputation math.
type Review struct {
	ID              uuid.UUID    `json:"id" db:"id"`
	BusinessID      uuid.UUID    `json:"business_id" db:"business_id"`
	CustomerID      uuid.UUID    `json:"customer_id" db:"customer_id"`
	ReviewRequestID uuid.UUID    `json:"review_request_id" db:"review_request_id"`
	Rating          int          `json:"rating" db:"rating"`
	Platform        PlatformType `json:"platform" db:"platform"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
}

// Feedback is a private-routed gate submission, visible only to the
// business owner.
type Feedback struct {
	ID              uuid.UUID `json:"id" db:"id"`
	BusinessID      uuid.UUID `json:"business_id" db:"business_id"`
	CustomerID      uuid.UUID `json:"customer_id" db:"customer_id"`
	ReviewRequestID uuid.UUID `json:"review_request_id" db:"review_request_id"`
	Rating          int       `json:"rating" db:"rating"`
	Comment         *string   `json:"comment,omitempty" db:"comment"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}
