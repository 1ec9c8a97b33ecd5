package reconciler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/reputul/reputul-backend/internal/models"
	"github.com/rs/zerolog/log"
)

// KeywordAction classifies an inbound SMS body
type KeywordAction string

const (
	ActionOptOut KeywordAction = "opt_out"
	ActionOptIn  KeywordAction = "opt_in"
	ActionHelp   KeywordAction = "help"
	ActionNone   KeywordAction = "none"
)

// Carrier-mandated keyword families. Matching is case-insensitive on
// the whole trimmed message body.
var (
	stopKeywords  = map[string]bool{"stop": true, "stopall": true, "unsubscribe": true, "cancel": true, "end": true, "quit": true}
	startKeywords = map[string]bool{"start": true, "unstop": true, "yes": true}
	helpKeywords  = map[string]bool{"help": true, "info": true}
)

// MatchKeyword classifies an inbound SMS message body
func MatchKeyword(body string) KeywordAction {
	word := strings.ToLower(strings.TrimSpace(body))
	switch {
	case stopKeywords[word]:
		return ActionOptOut
	case startKeywords[word]:
		return ActionOptIn
	case helpKeywords[word]:
		return ActionHelp
	default:
		return ActionNone
	}
}

// HandleInboundSMS processes an inbound SMS, recording opt-out or
// opt-in for every customer matching the sender's phone number. HELP
// and non-keyword messages leave opt state untouched.
func (s *Service) HandleInboundSMS(ctx context.Context, from, body string) (KeywordAction, error) {
	action := MatchKeyword(body)

	var status models.OptStatus
	switch action {
	case ActionOptOut:
		status = models.OptStatusOut
	case ActionOptIn:
		status = models.OptStatusIn
	default:
		return action, nil
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE customers
		SET opt_status = $1, opt_updated_at = $2
		WHERE phone = $3
	`, status, time.Now(), from)
	if err != nil {
		return action, fmt.Errorf("failed to update customer opt status: %w", err)
	}

	log.Info().
		Str("action", string(action)).
		Int64("customers_updated", tag.RowsAffected()).
		Msg("Processed SMS keyword")

	return action, nil
}
