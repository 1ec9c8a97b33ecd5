package models

import (
	"time"

	"github.com/google/uuid"
)

// CampaignSequence is an ordered template of follow-up steps owned by an
// organization. At most one sequence per organization may be the default.
type CampaignSequence struct {
	ID        uuid.UUID `json:"id" db:"id"`
	OrgID     uuid.UUID `json:"org_id" db:"org_id"`
	Name      string    `json:"name" db:"name"`
	IsDefault bool      `json:"is_default" db:"is_default"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CampaignStep is one unit in a sequence. StepNumber is 1-based and
// defines the total order; DelayHours is the offset from the previous
// step's fire time.
type CampaignStep struct {
	ID          uuid.UUID `json:"id" db:"id"`
	SequenceID  uuid.UUID `json:"sequence_id" db:"sequence_id"`
	StepNumber  int       `json:"step_number" db:"step_number"`
	DelayHours  int       `json:"delay_hours" db:"delay_hours"`
	MessageType Channel   `json:"message_type" db:"message_type"`
	Subject     string    `json:"subject" db:"subject"`
	Body        string    `json:"body" db:"body"`
	IsActive    bool      `json:"is_active" db:"is_active"`
}

// ExecutionStatus represents the status of a campaign execution.
// Active is the only non-terminal state.
type ExecutionStatus string

const (
	ExecutionStatusActive    ExecutionStatus = "active"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusStopped   ExecutionStatus = "stopped"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Terminal reports whether the status permits no further transitions
func (s ExecutionStatus) Terminal() bool {
	return s != ExecutionStatusActive
}

// CampaignExecution is one customer's run through one sequence, tied to
// the review request that started it. CurrentStep names the next step
// to fire (1-based): a fresh execution sits at 1 with nothing sent yet,
// and a value past the last step means the run is finished. It only
// increases.
type CampaignExecution struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	ReviewRequestID uuid.UUID       `json:"review_request_id" db:"review_request_id"`
	SequenceID      uuid.UUID       `json:"sequence_id" db:"sequence_id"`
	CurrentStep     int             `json:"current_step" db:"current_step"`
	Status          ExecutionStatus `json:"status" db:"status"`
	StartedAt       time.Time       `json:"started_at" db:"started_at"`
	LastStepFiredAt *time.Time      `json:"last_step_fired_at,omitempty" db:"last_step_fired_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	StopReason      *string         `json:"stop_reason,omitempty" db:"stop_reason"`
}

// StepAttempt records a single dispatch attempt for one step of one
// execution. Attempts are counted per (execution, step) pair to bound
// retries.
type StepAttempt struct {
	ID            uuid.UUID `json:"id" db:"id"`
	ExecutionID   uuid.UUID `json:"execution_id" db:"execution_id"`
	StepNumber    int       `json:"step_number" db:"step_number"`
	AttemptNumber int       `json:"attempt_number" db:"attempt_number"`
	Succeeded     bool      `json:"succeeded" db:"succeeded"`
	ErrorMessage  *string   `json:"error_message,omitempty" db:"error_message"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
