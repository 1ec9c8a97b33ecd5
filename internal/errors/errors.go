package errors

import (
	"net/http"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Authentication errors (401xx)
	ErrInvalidAPIToken     ErrorCode = "40101"
	ErrInvalidWebhookSig   ErrorCode = "40102"
	ErrInvalidGateToken    ErrorCode = "40103"

	// Resource errors (404xx)
	ErrRequestNotFound   ErrorCode = "40401"
	ErrSequenceNotFound  ErrorCode = "40402"
	ErrExecutionNotFound ErrorCode = "40403"
	ErrCustomerNotFound  ErrorCode = "40404"

	// Request errors (400xx)
	ErrInvalidRequest   ErrorCode = "40001"
	ErrValidationFailed ErrorCode = "40002"
	ErrInvalidRating    ErrorCode = "40003"
	ErrInvalidRecipient ErrorCode = "40004"

	// Conflict errors (409xx)
	ErrAlreadyRunning ErrorCode = "40901"
	ErrGateUsed       ErrorCode = "40902"
	ErrOptedOut       ErrorCode = "40903"
	ErrNoDefault      ErrorCode = "40904"

	// Server errors (500xx)
	ErrInternalServer      ErrorCode = "50001"
	ErrDispatchFailed      ErrorCode = "50201"
	ErrProviderUnavailable ErrorCode = "50301"
)

// APIError represents a standardized API error
type APIError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    any       `json:"details,omitempty"`
	HTTPStatus int       `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// ErrorResponse represents the error response format
type ErrorResponse struct {
	Error     APIError `json:"error"`
	RequestID string   `json:"request_id"`
}

// Common errors
var (
	ErrInvalidAPITokenError = &APIError{
		Code:       ErrInvalidAPIToken,
		Message:    "Invalid or missing API token",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrInvalidWebhookSigError = &APIError{
		Code:       ErrInvalidWebhookSig,
		Message:    "Invalid webhook signature",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrInvalidGateTokenError = &APIError{
		Code:       ErrInvalidGateToken,
		Message:    "Invalid or expired review link",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrRequestNotFoundError = &APIError{
		Code:       ErrRequestNotFound,
		Message:    "Review request not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrSequenceNotFoundError = &APIError{
		Code:       ErrSequenceNotFound,
		Message:    "Campaign sequence not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrExecutionNotFoundError = &APIError{
		Code:       ErrExecutionNotFound,
		Message:    "Campaign execution not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrCustomerNotFoundError = &APIError{
		Code:       ErrCustomerNotFound,
		Message:    "Customer not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrInvalidRatingError = &APIError{
		Code:       ErrInvalidRating,
		Message:    "Rating must be between 1 and 5",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrAlreadyRunningError = &APIError{
		Code:       ErrAlreadyRunning,
		Message:    "An active campaign execution already exists for this review request",
		HTTPStatus: http.StatusConflict,
	}

	ErrGateUsedError = &APIError{
		Code:       ErrGateUsed,
		Message:    "A rating has already been submitted for this review request",
		HTTPStatus: http.StatusConflict,
	}

	ErrOptedOutError = &APIError{
		Code:       ErrOptedOut,
		Message:    "Customer has opted out of messaging",
		HTTPStatus: http.StatusConflict,
	}

	ErrNoDefaultError = &APIError{
		Code:       ErrNoDefault,
		Message:    "Organization has no default campaign sequence",
		HTTPStatus: http.StatusConflict,
	}

	ErrInternalServerError = &APIError{
		Code:       ErrInternalServer,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrDispatchFailedError = &APIError{
		Code:       ErrDispatchFailed,
		Message:    "Message could not be delivered to the provider",
		HTTPStatus: http.StatusBadGateway,
	}
)

// NewValidationError creates a validation error with details
func NewValidationError(details any) *APIError {
	return &APIError{
		Code:       ErrValidationFailed,
		Message:    "Validation failed",
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) *APIError {
	return &APIError{
		Code:       ErrInvalidRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidRecipientError creates an invalid recipient error
func NewInvalidRecipientError(message string) *APIError {
	return &APIError{
		Code:       ErrInvalidRecipient,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}
