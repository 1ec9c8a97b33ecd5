package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/reputul/reputul-backend/internal/channel"
	"github.com/reputul/reputul-backend/internal/config"
	"github.com/reputul/reputul-backend/internal/gate"
	"github.com/reputul/reputul-backend/internal/logging"
	"github.com/reputul/reputul-backend/internal/models"
	"github.com/reputul/reputul-backend/internal/monitoring"
)

// Dispatcher errors
var (
	ErrCustomerNotFound = errors.New("customer not found")
	ErrBusinessNotFound = errors.New("business not found")
	ErrRequestNotFound  = errors.New("review request not found")
	ErrOptedOut         = errors.New("customer has opted out")
	ErrInvalidRecipient = errors.New("customer has no valid recipient for channel")
)

// Dispatcher sends review request messages. Validation and opt-out
// failures reject the dispatch before any record exists; provider
// failures persist the request in failed state with the error. Either
// way there is never a request row whose send outcome is unknown.
type Dispatcher struct {
	db       *pgxpool.Pool
	registry *channel.Registry
	tokens   *gate.TokenIssuer
	baseURL  string
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(db *pgxpool.Pool, registry *channel.Registry, tokens *gate.TokenIssuer, cfg *config.ServerConfig) *Dispatcher {
	return &Dispatcher{
		db:       db,
		registry: registry,
		tokens:   tokens,
		baseURL:  cfg.URL,
	}
}

// Input describes one review request dispatch
type Input struct {
	CustomerID  uuid.UUID      `json:"customer_id"`
	BusinessID  uuid.UUID      `json:"business_id"`
	Channel     models.Channel `json:"channel"`
	Subject     string         `json:"subject"`
	Body        string         `json:"body"`
	ExecutionID *uuid.UUID     `json:"-"`
	StepNumber  *int           `json:"-"`
}

// Dispatch validates, renders, and sends one review request message
func (d *Dispatcher) Dispatch(ctx context.Context, input Input) (*models.ReviewRequest, error) {
	if !input.Channel.Valid() {
		return nil, fmt.Errorf("invalid channel: %s", input.Channel)
	}

	customer, err := d.getCustomer(ctx, input.CustomerID)
	if err != nil {
		return nil, err
	}
	if customer.OptStatus == models.OptStatusOut {
		return nil, ErrOptedOut
	}

	recipient, err := recipientFor(customer, input.Channel)
	if err != nil {
		return nil, err
	}

	var businessName string
	err = d.db.QueryRow(ctx, `SELECT name FROM businesses WHERE id = $1`, input.BusinessID).Scan(&businessName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBusinessNotFound
		}
		return nil, fmt.Errorf("failed to get business: %w", err)
	}

	sender, err := d.registry.For(input.Channel)
	if err != nil {
		return nil, err
	}

	requestID := uuid.New()
	token, err := d.tokens.Issue(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue gate link token: %w", err)
	}

	data := TemplateData{
		CustomerName: customer.Name,
		BusinessName: businessName,
		ReviewLink:   fmt.Sprintf("%s/r/%s", d.baseURL, token),
	}
	if customer.ServiceType != nil {
		data.ServiceType = *customer.ServiceType
	}
	msg := channel.Message{
		To:      recipient,
		Subject: Render(input.Subject, data),
		Body:    Render(input.Body, data),
	}

	req := &models.ReviewRequest{
		ID:          requestID,
		CustomerID:  input.CustomerID,
		BusinessID:  input.BusinessID,
		Channel:     input.Channel,
		ExecutionID: input.ExecutionID,
		StepNumber:  input.StepNumber,
		CreatedAt:   time.Now(),
	}

	providerMessageID, sendErr := sender.Send(ctx, msg)
	if sendErr != nil {
		req.Status = models.RequestStatusFailed
		var de *channel.DispatchError
		if errors.As(sendErr, &de) && de.Code != "" {
			req.ErrorCode = &de.Code
		}
		errMsg := sendErr.Error()
		req.ErrorMessage = &errMsg
	} else {
		now := time.Now()
		req.Status = models.RequestStatusSent
		req.ProviderMessageID = &providerMessageID
		req.SentAt = &now
	}

	if err := d.insert(ctx, req); err != nil {
		return nil, err
	}

	monitoring.RecordDispatch(string(input.Channel), string(req.Status))
	logging.LogDispatch(req.ID.String(), input.BusinessID.String(), input.CustomerID.String(),
		string(input.Channel), string(req.Status), stringOrEmpty(req.ProviderMessageID))

	if sendErr != nil {
		return req, fmt.Errorf("failed to send review request: %w", sendErr)
	}
	return req, nil
}

// DispatchStep sends the message for one campaign step, addressed to
// the customer of the execution's originating review request.
func (d *Dispatcher) DispatchStep(ctx context.Context, exec *models.CampaignExecution, step *models.CampaignStep) (*models.ReviewRequest, error) {
	var customerID, businessID uuid.UUID
	err := d.db.QueryRow(ctx, `
		SELECT customer_id, business_id FROM review_requests WHERE id = $1
	`, exec.ReviewRequestID).Scan(&customerID, &businessID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get originating review request: %w", err)
	}

	stepNumber := step.StepNumber
	return d.Dispatch(ctx, Input{
		CustomerID:  customerID,
		BusinessID:  businessID,
		Channel:     step.MessageType,
		Subject:     step.Subject,
		Body:        step.Body,
		ExecutionID: &exec.ID,
		StepNumber:  &stepNumber,
	})
}

func (d *Dispatcher) getCustomer(ctx context.Context, customerID uuid.UUID) (*models.Customer, error) {
	var c models.Customer
	err := d.db.QueryRow(ctx, `
		SELECT id, business_id, name, email, phone, opt_status, service_type
		FROM customers WHERE id = $1
	`, customerID).Scan(&c.ID, &c.BusinessID, &c.Name, &c.Email, &c.Phone, &c.OptStatus, &c.ServiceType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &c, nil
}

// recipientFor resolves and validates the customer's address for a
// channel.
func recipientFor(customer *models.Customer, ch models.Channel) (string, error) {
	switch ch {
	case models.ChannelEmail:
		if customer.Email == nil || !ValidEmail(*customer.Email) {
			return "", fmt.Errorf("%w: email", ErrInvalidRecipient)
		}
		return *customer.Email, nil
	case models.ChannelSMS:
		if customer.Phone == nil || !ValidPhone(*customer.Phone) {
			return "", fmt.Errorf("%w: phone", ErrInvalidRecipient)
		}
		return *customer.Phone, nil
	default:
		return "", fmt.Errorf("invalid channel: %s", ch)
	}
}

func (d *Dispatcher) insert(ctx context.Context, req *models.ReviewRequest) error {
	_, err := d.db.Exec(ctx, `
		INSERT INTO review_requests
			(id, customer_id, business_id, channel, status, provider_message_id,
			 execution_id, step_number, sent_at, error_code, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, req.ID, req.CustomerID, req.BusinessID, req.Channel, req.Status, req.ProviderMessageID,
		req.ExecutionID, req.StepNumber, req.SentAt, req.ErrorCode, req.ErrorMessage, req.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create review request: %w", err)
	}
	return nil
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
