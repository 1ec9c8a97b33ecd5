package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/reputul/reputul-backend/internal/config"
	"github.com/reputul/reputul-backend/internal/monitoring"
)

const emailProvider = "sendgrid"

// EmailSender delivers review request emails through the SendGrid v3
// mail API.
type EmailSender struct {
	config   *config.EmailConfig
	client   *http.Client
	breakers *BreakerManager
}

// NewEmailSender creates a new email sender
func NewEmailSender(cfg *config.EmailConfig, breakers *BreakerManager) *EmailSender {
	return &EmailSender{
		config:   cfg,
		client:   &http.Client{Timeout: 10 * time.Second},
		breakers: breakers,
	}
}

// Name returns the provider name
func (s *EmailSender) Name() string {
	return emailProvider
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridRequest struct {
	Personalizations []struct {
		To []sendGridAddress `json:"to"`
	} `json:"personalizations"`
	From    sendGridAddress `json:"from"`
	Subject string          `json:"subject"`
	Content []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
}

// Send delivers one email and returns the provider message ID from the
// X-Message-Id response header.
func (s *EmailSender) Send(ctx context.Context, msg Message) (string, error) {
	start := time.Now()
	id, err := s.breakers.Execute(ctx, emailProvider, func() (string, error) {
		return s.send(ctx, msg)
	})
	monitoring.RecordProviderLatency(emailProvider, time.Since(start))
	if err != nil {
		return "", &DispatchError{Provider: emailProvider, Err: err}
	}
	return id, nil
}

func (s *EmailSender) send(ctx context.Context, msg Message) (string, error) {
	payload := sendGridRequest{
		From:    sendGridAddress{Email: s.config.FromEmail, Name: s.config.FromName},
		Subject: msg.Subject,
	}
	payload.Personalizations = append(payload.Personalizations, struct {
		To []sendGridAddress `json:"to"`
	}{To: []sendGridAddress{{Email: msg.To}}})
	payload.Content = append(payload.Content, struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	}{Type: "text/html", Value: msg.Body})

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.config.BaseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(respBody))
	}

	messageID := resp.Header.Get("X-Message-Id")
	if messageID == "" {
		return "", fmt.Errorf("provider response missing message id")
	}
	return messageID, nil
}
