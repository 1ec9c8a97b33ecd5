package models

import (
	"time"

	"github.com/google/uuid"
)

// OptStatus represents a customer's messaging consent state
type OptStatus string

const (
	OptStatusIn  OptStatus = "opted_in"
	OptStatusOut OptStatus = "opted_out"
)

// Customer represents one customer of one business
type Customer struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	BusinessID   uuid.UUID  `json:"business_id" db:"business_id"`
	Name         string     `json:"name" db:"name"`
	Email        *string    `json:"email,omitempty" db:"email"`
	Phone        *string    `json:"phone,omitempty" db:"phone"`
	OptStatus    OptStatus  `json:"opt_status" db:"opt_status"`
	OptUpdatedAt *time.Time `json:"opt_updated_at,omitempty" db:"opt_updated_at"`
	ServiceType  *string    `json:"service_type,omitempty" db:"service_type"`
	ServiceDate  *time.Time `json:"service_date,omitempty" db:"service_date"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}
