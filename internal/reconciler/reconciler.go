package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/reputul/reputul-backend/internal/logging"
	"github.com/reputul/reputul-backend/internal/models"
	"github.com/reputul/reputul-backend/internal/monitoring"
	"github.com/rs/zerolog/log"
)

// EventType identifies a provider delivery event
type EventType string

const (
	EventProcessed EventType = "processed"
	EventDelivered EventType = "delivered"
	EventOpen      EventType = "open"
	EventClick     EventType = "click"
	EventBounce    EventType = "bounce"
	EventBlocked   EventType = "blocked"
	EventDropped   EventType = "dropped"
	EventDeferred  EventType = "deferred"
)

// DeliveryEvent is one entry of a provider webhook batch
type DeliveryEvent struct {
	Type              string `json:"event_type"`
	ProviderMessageID string `json:"provider_message_id"`
	Timestamp         int64  `json:"timestamp"`
	Code              string `json:"code,omitempty"`
	Reason            string `json:"reason,omitempty"`
}

// Outcome classifies what applying an event did
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeIgnored Outcome = "ignored"
	OutcomeDropped Outcome = "dropped"
	OutcomeUnknown Outcome = "unknown"
)

// Apply advances a review request's status for one delivery event,
// following the allowed-from-state table. Events are only ever allowed
// to move status forward on the lattice; replays and late arrivals
// degrade to no-ops. Timestamps are set on first occurrence only.
// Unknown event types are ignored for forward compatibility.
func Apply(req *models.ReviewRequest, ev DeliveryEvent) Outcome {
	at := time.Unix(ev.Timestamp, 0)
	if ev.Timestamp <= 0 {
		at = time.Now()
	}

	// Failure states absorb; completed is final.
	status := req.Status

	switch EventType(ev.Type) {
	case EventProcessed:
		if status != models.RequestStatusPending {
			return OutcomeIgnored
		}
		req.Status = models.RequestStatusSent
		setOnce(&req.SentAt, at)
		return OutcomeApplied

	case EventDelivered:
		if status != models.RequestStatusPending && status != models.RequestStatusSent {
			return OutcomeIgnored
		}
		req.Status = models.RequestStatusDelivered
		setOnce(&req.SentAt, at)
		setOnce(&req.DeliveredAt, at)
		return OutcomeApplied

	case EventOpen:
		if status.IsFailure() || status == models.RequestStatusCompleted ||
			status.Rank() >= models.RequestStatusClicked.Rank() {
			return OutcomeIgnored
		}
		req.Status = models.RequestStatusOpened
		setOnce(&req.OpenedAt, at)
		return OutcomeApplied

	case EventClick:
		if status.IsFailure() || status == models.RequestStatusCompleted {
			return OutcomeIgnored
		}
		if status == models.RequestStatusClicked {
			return OutcomeIgnored
		}
		req.Status = models.RequestStatusClicked
		setOnce(&req.ClickedAt, at)
		return OutcomeApplied

	case EventBounce:
		// A bounce after confirmed delivery is a provider retry artifact
		if status.IsFailure() || status.Rank() >= models.RequestStatusDelivered.Rank() {
			return OutcomeIgnored
		}
		req.Status = models.RequestStatusBounced
		setError(req, ev)
		return OutcomeApplied

	case EventBlocked, EventDropped:
		if status != models.RequestStatusPending {
			return OutcomeIgnored
		}
		req.Status = models.RequestStatusFailed
		setError(req, ev)
		return OutcomeApplied

	case EventDeferred:
		return OutcomeIgnored

	default:
		return OutcomeUnknown
	}
}

func setOnce(field **time.Time, at time.Time) {
	if *field == nil {
		t := at
		*field = &t
	}
}

func setError(req *models.ReviewRequest, ev DeliveryEvent) {
	if req.ErrorCode == nil && ev.Code != "" {
		code := ev.Code
		req.ErrorCode = &code
	}
	if req.ErrorMessage == nil && ev.Reason != "" {
		reason := ev.Reason
		req.ErrorMessage = &reason
	}
}

// Service reconciles provider delivery events against stored review
// requests. Each event is applied in its own transaction so one bad
// event never loses the rest of a batch.
type Service struct {
	db *pgxpool.Pool
}

// NewService creates a new reconciler service
func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

// BatchResult summarizes one processed webhook batch
type BatchResult struct {
	Applied int `json:"applied"`
	Ignored int `json:"ignored"`
	Dropped int `json:"dropped"`
	Unknown int `json:"unknown"`
}

// ProcessBatch applies a batch of delivery events. Malformed events are
// dropped with logging; failures on one event never abort the batch.
func (s *Service) ProcessBatch(ctx context.Context, events []DeliveryEvent) BatchResult {
	var result BatchResult

	for _, ev := range events {
		if ev.Type == "" || ev.ProviderMessageID == "" {
			result.Dropped++
			monitoring.RecordWebhookEvent(ev.Type, string(OutcomeDropped))
			log.Warn().
				Str("event_type", ev.Type).
				Str("provider_message_id", ev.ProviderMessageID).
				Msg("Dropping malformed delivery event")
			continue
		}

		outcome, err := s.applyEvent(ctx, ev)
		if err != nil {
			result.Dropped++
			monitoring.RecordWebhookEvent(ev.Type, string(OutcomeDropped))
			logging.LogError(err, "reconciler", "apply_event")
			continue
		}

		switch outcome {
		case OutcomeApplied:
			result.Applied++
		case OutcomeUnknown:
			result.Unknown++
		default:
			result.Ignored++
		}
		monitoring.RecordWebhookEvent(ev.Type, string(outcome))
		logging.LogWebhookEvent(ev.Type, ev.ProviderMessageID, string(outcome))
	}

	return result
}

// applyEvent applies one event under a row lock so concurrent webhook
// deliveries for the same request cannot interleave.
func (s *Service) applyEvent(ctx context.Context, ev DeliveryEvent) (Outcome, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return OutcomeDropped, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var req models.ReviewRequest
	err = tx.QueryRow(ctx, `
		SELECT id, status, sent_at, delivered_at, opened_at, clicked_at, completed_at,
		       error_code, error_message
		FROM review_requests
		WHERE provider_message_id = $1
		FOR UPDATE
	`, ev.ProviderMessageID).Scan(
		&req.ID, &req.Status, &req.SentAt, &req.DeliveredAt, &req.OpenedAt,
		&req.ClickedAt, &req.CompletedAt, &req.ErrorCode, &req.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Provider message we never sent; drop quietly
			return OutcomeIgnored, nil
		}
		return OutcomeDropped, fmt.Errorf("failed to get review request: %w", err)
	}

	outcome := Apply(&req, ev)
	if outcome != OutcomeApplied {
		return outcome, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE review_requests
		SET status = $1, sent_at = $2, delivered_at = $3, opened_at = $4,
		    clicked_at = $5, error_code = $6, error_message = $7
		WHERE id = $8
	`, req.Status, req.SentAt, req.DeliveredAt, req.OpenedAt, req.ClickedAt,
		req.ErrorCode, req.ErrorMessage, req.ID)
	if err != nil {
		return OutcomeDropped, fmt.Errorf("failed to update review request: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return OutcomeDropped, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return OutcomeApplied, nil
}
