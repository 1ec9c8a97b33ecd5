package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/reputul/reputul-backend/internal/models"
)

// ErrChannelNotConfigured indicates no sender exists for a channel
var ErrChannelNotConfigured = errors.New("no sender configured for channel")

// Message is one outbound review request message
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a message through one provider and returns the
// provider's message ID for later webhook reconciliation.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) (string, error)
}

// DispatchError wraps a provider send failure with enough detail to
// persist on the failed review request.
type DispatchError struct {
	Provider string
	Code     string
	Err      error
}

func (e *DispatchError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s send failed (%s): %v", e.Provider, e.Code, e.Err)
	}
	return fmt.Sprintf("%s send failed: %v", e.Provider, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Registry maps channels to their configured senders
type Registry struct {
	senders map[models.Channel]Sender
}

// NewRegistry creates an empty sender registry
func NewRegistry() *Registry {
	return &Registry{senders: make(map[models.Channel]Sender)}
}

// Register binds a sender to a channel
func (r *Registry) Register(ch models.Channel, sender Sender) {
	r.senders[ch] = sender
}

// For returns the sender for a channel
func (r *Registry) For(ch models.Channel) (Sender, error) {
	sender, ok := r.senders[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotConfigured, ch)
	}
	return sender, nil
}
