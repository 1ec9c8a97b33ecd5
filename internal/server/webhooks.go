package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	apierrors "github.com/reputul/reputul-backend/internal/errors"
	"github.com/reputul/reputul-backend/internal/monitoring"
	"github.com/reputul/reputul-backend/internal/reconciler"
)

const (
	headerSignature          = "X-Signature"
	headerSignatureTimestamp = "X-Signature-Timestamp"
)

// handleEmailWebhook processes a batch of email delivery events. The
// batch signature must verify before any event is touched.
func (s *APIServer) handleEmailWebhook(c *gin.Context) {
	body, ok := s.verifiedBody(c, s.config.Webhook.EmailSigningKey, "email")
	if !ok {
		return
	}

	var events []reconciler.DeliveryEvent
	if err := json.Unmarshal(body, &events); err != nil {
		monitoring.RecordWebhookBatch("email", "malformed")
		respondError(c, apierrors.NewInvalidRequestError("invalid event batch"))
		return
	}

	result := s.reconciler.ProcessBatch(c.Request.Context(), events)
	monitoring.RecordWebhookBatch("email", "processed")
	c.JSON(http.StatusOK, result)
}

// handleSMSStatusWebhook processes a single SMS delivery status event
func (s *APIServer) handleSMSStatusWebhook(c *gin.Context) {
	body, ok := s.verifiedBody(c, s.config.Webhook.SMSSigningKey, "sms")
	if !ok {
		return
	}

	var event reconciler.DeliveryEvent
	if err := json.Unmarshal(body, &event); err != nil {
		monitoring.RecordWebhookBatch("sms", "malformed")
		respondError(c, apierrors.NewInvalidRequestError("invalid event"))
		return
	}

	result := s.reconciler.ProcessBatch(c.Request.Context(), []reconciler.DeliveryEvent{event})
	monitoring.RecordWebhookBatch("sms", "processed")
	c.JSON(http.StatusOK, result)
}

// handleSMSInboundWebhook processes inbound SMS, honoring carrier
// keywords (STOP, START, HELP families).
func (s *APIServer) handleSMSInboundWebhook(c *gin.Context) {
	body, ok := s.verifiedBody(c, s.config.Webhook.SMSSigningKey, "sms")
	if !ok {
		return
	}

	var inbound struct {
		From string `json:"from"`
		Body string `json:"body"`
	}
	if err := json.Unmarshal(body, &inbound); err != nil || inbound.From == "" {
		respondError(c, apierrors.NewInvalidRequestError("invalid inbound message"))
		return
	}

	action, err := s.reconciler.HandleInboundSMS(c.Request.Context(), inbound.From, inbound.Body)
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"action": action})
}

// verifiedBody reads the request body and checks its HMAC signature.
// On failure it writes the error response and records the rejection.
func (s *APIServer) verifiedBody(c *gin.Context, signingKey, source string) ([]byte, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, apierrors.NewInvalidRequestError("failed to read request body"))
		return nil, false
	}

	timestamp := c.GetHeader(headerSignatureTimestamp)
	signature := c.GetHeader(headerSignature)
	if !reconciler.VerifySignature([]byte(signingKey), timestamp, body, signature) {
		monitoring.RecordWebhookBatch(source, "rejected")
		respondError(c, apierrors.ErrInvalidWebhookSigError)
		return nil, false
	}

	return body, true
}
