package models

import (
	"time"

	"github.com/google/uuid"
)

// Channel represents the delivery medium used to reach a customer
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Valid reports whether the channel is a known delivery medium
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelSMS
}

// RequestStatus represents the delivery status of a review request.
// Happy-path statuses form a strictly increasing lattice; bounced and
// failed are absorbing failure states.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusSent      RequestStatus = "sent"
	RequestStatusDelivered RequestStatus = "delivered"
	RequestStatusOpened    RequestStatus = "opened"
	RequestStatusClicked   RequestStatus = "clicked"
	RequestStatusCompleted RequestStatus = "completed"
	RequestStatusBounced   RequestStatus = "bounced"
	RequestStatusFailed    RequestStatus = "failed"
)

// statusRanks orders the happy-path statuses. Failure states carry no rank.
var statusRanks = map[RequestStatus]int{
	RequestStatusPending:   0,
	RequestStatusSent:      1,
	RequestStatusDelivered: 2,
	RequestStatusOpened:    3,
	RequestStatusClicked:   4,
	RequestStatusCompleted: 5,
}

// Rank returns the position of the status on the happy-path lattice,
// or -1 for the absorbing failure states.
func (s RequestStatus) Rank() int {
	if r, ok := statusRanks[s]; ok {
		return r
	}
	return -1
}

// IsFailure reports whether the status is an absorbing failure state
func (s RequestStatus) IsFailure() bool {
	return s == RequestStatusBounced || s == RequestStatusFailed
}

// ReviewRequest represents one outbound review ask to one customer via
// one channel. Records are never deleted, only superseded.
type ReviewRequest struct {
	ID                uuid.UUID     `json:"id" db:"id"`
	CustomerID        uuid.UUID     `json:"customer_id" db:"customer_id"`
	BusinessID        uuid.UUID     `json:"business_id" db:"business_id"`
	Channel           Channel       `json:"channel" db:"channel"`
	Status            RequestStatus `json:"status" db:"status"`
	ProviderMessageID *string       `json:"provider_message_id,omitempty" db:"provider_message_id"`
	ExecutionID       *uuid.UUID    `json:"execution_id,omitempty" db:"execution_id"`
	StepNumber        *int          `json:"step_number,omitempty" db:"step_number"`
	SentAt            *time.Time    `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt       *time.Time    `json:"delivered_at,omitempty" db:"delivered_at"`
	OpenedAt          *time.Time    `json:"opened_at,omitempty" db:"opened_at"`
	ClickedAt         *time.Time    `json:"clicked_at,omitempty" db:"clicked_at"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
	ErrorCode         *string       `json:"error_code,omitempty" db:"error_code"`
	ErrorMessage      *string       `json:"error_message,omitempty" db:"error_message"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
}
