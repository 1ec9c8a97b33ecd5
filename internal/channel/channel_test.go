package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/reputul/reputul-backend/internal/config"
	"github.com/reputul/reputul-backend/internal/models"
)

func TestEmailSender_Send(t *testing.T) {
	var gotAuth string
	var gotPayload map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/mail/send" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.Header().Set("X-Message-Id", "sg-abc123")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := NewEmailSender(&config.EmailConfig{
		APIKey:    "sk-test",
		BaseURL:   srv.URL,
		FromEmail: "reviews@acme.test",
		FromName:  "Acme",
	}, NewBreakerManager(nil))

	id, err := sender.Send(context.Background(), Message{
		To:      "jane@example.com",
		Subject: "How did we do?",
		Body:    "<p>Leave a review</p>",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "sg-abc123" {
		t.Errorf("message id = %q, want sg-abc123", id)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotPayload["subject"] != "How did we do?" {
		t.Errorf("subject not forwarded: %v", gotPayload["subject"])
	}
}

func TestEmailSender_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[{"message":"bad api key"}]}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	sender := NewEmailSender(&config.EmailConfig{APIKey: "bad", BaseURL: srv.URL}, NewBreakerManager(nil))

	_, err := sender.Send(context.Background(), Message{To: "jane@example.com"})
	if err == nil {
		t.Fatal("expected error from provider failure")
	}
	var de *DispatchError
	if !errors.As(err, &de) {
		t.Fatalf("expected DispatchError, got %T", err)
	}
	if de.Provider != "sendgrid" {
		t.Errorf("provider = %q", de.Provider)
	}
}

func TestSMSSender_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC123/Messages.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, _ := r.BasicAuth()
		if user != "AC123" || pass != "tok" {
			t.Errorf("basic auth = %s:%s", user, pass)
		}
		r.ParseForm()
		if r.PostForm.Get("To") != "+15551234567" {
			t.Errorf("To = %q", r.PostForm.Get("To"))
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"sid": "SM789"})
	}))
	defer srv.Close()

	sender := NewSMSSender(&config.SMSConfig{
		AccountSID: "AC123",
		AuthToken:  "tok",
		BaseURL:    srv.URL,
		FromNumber: "+15550000000",
	}, NewBreakerManager(nil))

	id, err := sender.Send(context.Background(), Message{To: "+15551234567", Body: "rate us"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "SM789" {
		t.Errorf("message sid = %q, want SM789", id)
	}
}

func TestBreakerManager_OpensAfterConsecutiveFailures(t *testing.T) {
	m := NewBreakerManager(&BreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 3,
	})

	failing := func() (string, error) { return "", errors.New("provider down") }

	for i := 0; i < 3; i++ {
		if _, err := m.Execute(context.Background(), "test", failing); err == nil {
			t.Fatal("expected failure")
		}
	}

	_, err := m.Execute(context.Background(), "test", func() (string, error) {
		t.Fatal("call must not reach the provider once the circuit is open")
		return "", nil
	})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if _, err := r.For(models.ChannelEmail); !errors.Is(err, ErrChannelNotConfigured) {
		t.Errorf("expected ErrChannelNotConfigured, got %v", err)
	}

	sender := NewEmailSender(&config.EmailConfig{}, NewBreakerManager(nil))
	r.Register(models.ChannelEmail, sender)
	got, err := r.For(models.ChannelEmail)
	if err != nil || got != Sender(sender) {
		t.Errorf("registry lookup failed: %v", err)
	}
}
