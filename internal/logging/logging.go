package logging

import (
	"io"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/reputul/reputul-backend/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup initializes the global logger based on configuration
func Setup(cfg *config.LoggingConfig, env string) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	zerolog.TimeFieldFormat = time.RFC3339Nano

	var output io.Writer
	if cfg.Format == "json" || env == "production" {
		output = os.Stdout
	} else {
		// Pretty console output for development
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
			NoColor:    false,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Str("service", "reputul").
		Logger()
}

// NewLogger creates a new logger with additional context
func NewLogger(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// RequestLogger is a Gin middleware for structured request logging
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		requestID := c.GetString("request_id")

		event := log.Info()
		if c.Writer.Status() >= 500 {
			event = log.Error()
		} else if c.Writer.Status() >= 400 {
			event = log.Warn()
		}

		event.
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", raw).
			Int("status", c.Writer.Status()).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Int("body_size", c.Writer.Size()).
			Msg("HTTP request")
	}
}

// LogDispatch logs an outbound review-request dispatch
func LogDispatch(requestID, businessID, customerID, channel, status, providerMessageID string) {
	event := log.Info()
	if status == "failed" {
		event = log.Error()
	}
	event.
		Str("review_request_id", requestID).
		Str("business_id", businessID).
		Str("customer_id", customerID).
		Str("channel", channel).
		Str("status", status).
		Str("provider_message_id", providerMessageID).
		Msg("Review request dispatched")
}

// LogWebhookEvent logs a processed provider delivery event
func LogWebhookEvent(eventType, providerMessageID, outcome string) {
	log.Info().
		Str("event_type", eventType).
		Str("provider_message_id", providerMessageID).
		Str("outcome", outcome).
		Msg("Delivery event")
}

// LogGateDecision logs a rating-gate decision
func LogGateDecision(requestID string, rating int, route, platform string) {
	log.Info().
		Str("review_request_id", requestID).
		Int("rating", rating).
		Str("route", route).
		Str("platform", platform).
		Msg("Rating gate decision")
}

// LogExecutionEvent logs a campaign execution lifecycle event
func LogExecutionEvent(executionID, event string, step int, detail string) {
	log.Info().
		Str("execution_id", executionID).
		Str("event", event).
		Int("step", step).
		Str("detail", detail).
		Msg("Campaign execution")
}

// LogError logs an error with context
func LogError(err error, component, operation string) {
	log.Error().
		Err(err).
		Str("component", component).
		Str("operation", operation).
		Msg("Error occurred")
}
