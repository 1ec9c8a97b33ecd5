package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/reputul/reputul-backend/internal/config"
	"github.com/reputul/reputul-backend/internal/monitoring"
)

const smsProvider = "twilio"

// SMSSender delivers review request texts through the Twilio messages
// API.
type SMSSender struct {
	config   *config.SMSConfig
	client   *http.Client
	breakers *BreakerManager
}

// NewSMSSender creates a new SMS sender
func NewSMSSender(cfg *config.SMSConfig, breakers *BreakerManager) *SMSSender {
	return &SMSSender{
		config:   cfg,
		client:   &http.Client{Timeout: 10 * time.Second},
		breakers: breakers,
	}
}

// Name returns the provider name
func (s *SMSSender) Name() string {
	return smsProvider
}

// Send delivers one SMS and returns the provider message SID
func (s *SMSSender) Send(ctx context.Context, msg Message) (string, error) {
	start := time.Now()
	id, err := s.breakers.Execute(ctx, smsProvider, func() (string, error) {
		return s.send(ctx, msg)
	})
	monitoring.RecordProviderLatency(smsProvider, time.Since(start))
	if err != nil {
		return "", &DispatchError{Provider: smsProvider, Err: err}
	}
	return id, nil
}

func (s *SMSSender) send(ctx context.Context, msg Message) (string, error) {
	form := url.Values{}
	form.Set("To", msg.To)
	form.Set("From", s.config.FromNumber)
	form.Set("Body", msg.Body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		s.config.BaseURL, s.config.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(s.config.AccountSID, s.config.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		SID string `json:"sid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode provider response: %w", err)
	}
	if result.SID == "" {
		return "", fmt.Errorf("provider response missing message sid")
	}
	return result.SID, nil
}
