package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Ryan-Har/authgate/pkg/models"
)

// ErrorKey is a type alias for string, used to reference a specific
// standardized error message in the errorMessages map.
type ErrorKey string

// These constants define unique keys for each error variant.
// You can have multiple variants under the same HTTP status code.
// Example: both ErrInvalidJSON and ErrValidation map to HTTP 400.
const (
	ErrInvalidJSON      ErrorKey = "invalid_json"
	ErrValidation       ErrorKey = "validation_failed"
	ErrNotFound         ErrorKey = "not_found"
	ErrInternal         ErrorKey = "internal_error"
	ErrCredentials      ErrorKey = "invalid_credentials"
	ErrAuthRequired     ErrorKey = "auth_required"
	ErrConflict         ErrorKey = "conflict"
	ErrMethodNotAllowed ErrorKey = "not_allowed"
	ErrTooManyRequests  ErrorKey = "too_many_requests"
	ErrNotEnabled       ErrorKey = "not_enabled"
)

// errorMessages is the centralized map of all standard error texts.
var errorMessages = map[ErrorKey]string{
	ErrInvalidJSON:      "invalid JSON format",
	ErrValidation:       "validation failed",
	ErrNotFound:         "resource not found",
	ErrInternal:         "internal server error",
	ErrCredentials:      "invalid credentials",
	ErrAuthRequired:     "authentication required",
	ErrConflict:         "resource conflict",
	ErrMethodNotAllowed: "method not allowed",
	ErrTooManyRequests:  "too many requests",
	ErrNotEnabled:       "feature not enabled",
}

// ErrorResponse represents the JSON body returned for an error.
// - Error:   short machine-readable summary of the problem
// - Field:   the offending input, for validation failures only
// - Details: optional human-readable explanation
type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

// NewError creates an ErrorResponse for a given HTTP status, error key, and details.
// If the key is not found, it falls back to "unknown error".
func NewError(status int, key ErrorKey, details string) (int, ErrorResponse) {
	msg, ok := errorMessages[key]
	if !ok {
		msg = "unknown error"
	}
	return status, ErrorResponse{
		Error:   msg,
		Details: details,
	}
}

// BadRequestInvalidJSON returns a 400 error for invalid JSON payloads,
// with a fixed details message to aid client debugging.
func BadRequestInvalidJSON() (int, ErrorResponse) {
	return NewError(http.StatusBadRequest, ErrInvalidJSON, "expected valid JSON object")
}

// BadRequestValidation returns a 400 error naming the field that failed and why.
func BadRequestValidation(field, reason string) (int, ErrorResponse) {
	status, resp := NewError(http.StatusBadRequest, ErrValidation, reason)
	resp.Field = field
	return status, resp
}

func NotFound(details string) (int, ErrorResponse) {
	return NewError(http.StatusNotFound, ErrNotFound, details)
}

// InternalServerError returns a 500 error with a generic details message.
// The underlying cause is logged, never sent.
func InternalServerError() (int, ErrorResponse) {
	return NewError(http.StatusInternalServerError, ErrInternal, "an unexpected error occurred")
}

func MethodNotAllowed() (int, ErrorResponse) {
	return NewError(http.StatusMethodNotAllowed, ErrMethodNotAllowed, "")
}

// UnauthorizedInvalidCredentials returns a 401 error indicating incorrect login credentials.
// It does not say whether the username exists.
func UnauthorizedInvalidCredentials() (int, ErrorResponse) {
	return NewError(http.StatusUnauthorized, ErrCredentials, "username or password is incorrect")
}

// Unauthorized is returned for a missing or expired session and for a caller
// lacking the required role alike.
func Unauthorized() (int, ErrorResponse) {
	return NewError(http.StatusUnauthorized, ErrAuthRequired, "a valid session is required")
}

// DuplicateAccount returns a 409 error that does not reveal which field collided.
func DuplicateAccount() (int, ErrorResponse) {
	return NewError(http.StatusConflict, ErrConflict, "account already exists")
}

func TooManyRequests() (int, ErrorResponse) {
	return NewError(http.StatusTooManyRequests, ErrTooManyRequests, "slow down and try again later")
}

func NotEnabled(details string) (int, ErrorResponse) {
	return NewError(http.StatusNotFound, ErrNotEnabled, details)
}

// FromError maps an error from the auth service to its public response.
// Anything outside the known taxonomy becomes a generic 500.
func FromError(err error) func() (int, ErrorResponse) {
	var vErr *models.ValidationError
	switch {
	case errors.As(err, &vErr):
		return func() (int, ErrorResponse) { return BadRequestValidation(vErr.Field, vErr.Reason) }
	case errors.Is(err, models.ErrDuplicate):
		return DuplicateAccount
	case errors.Is(err, models.ErrInvalidCredentials):
		return UnauthorizedInvalidCredentials
	case errors.Is(err, models.ErrUnauthorized):
		return Unauthorized
	case errors.Is(err, models.ErrNotFound):
		return func() (int, ErrorResponse) { return NotFound("") }
	default:
		return InternalServerError
	}
}

// ReturnError accepts a function returning (int, ErrorResponse)
// calls it, and passes the result to RespondJSONAndLog with the given writer and logger.
func ReturnError(w http.ResponseWriter, logger *slog.Logger, errorFunc func() (int, ErrorResponse)) {
	status, errResp := errorFunc()
	RespondJSONAndLog(w, logger, status, errResp)
}
