package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// WalletError represents an application-level error with HTTP status code
type WalletError struct {
	Code       string        `json:"code"`
	Message    string        `json:"message"`
	Detail     string        `json:"detail,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	StatusCode int           `json:"-"`
}

func (e *WalletError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is makes errors.Is match two WalletErrors with the same code, so
// sentinel comparisons keep working for detail-enriched copies.
func (e *WalletError) Is(target error) bool {
	var we *WalletError
	if errors.As(target, &we) {
		return we.Code == e.Code
	}
	return false
}

// Common error codes
const (
	CodeAuthenticationFailed = "authentication_failed"
	CodeNotFound             = "not_found"
	CodeLockedOut            = "locked_out"
	CodeInvalidRequest       = "invalid_request"
	CodeChainClient          = "chain_client_error"
	CodeMergeConflict        = "merge_conflict"
	CodeBadRequest           = "bad_request"
	CodeRateLimited          = "rate_limited"
	CodeInternalError        = "internal_error"
)

// Predefined errors
var (
	// ErrAuthentication covers both a wrong password and a corrupted
	// ciphertext; the two are deliberately indistinguishable.
	ErrAuthentication = &WalletError{
		Code:       CodeAuthenticationFailed,
		Message:    "Decryption failed: wrong password or corrupted data",
		StatusCode: http.StatusUnauthorized,
	}

	ErrNotFound = &WalletError{
		Code:       CodeNotFound,
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrInvalidRequest = &WalletError{
		Code:       CodeInvalidRequest,
		Message:    "Unknown or already resolved request",
		StatusCode: http.StatusConflict,
	}

	ErrMergeConflict = &WalletError{
		Code:       CodeMergeConflict,
		Message:    "Persisted store changed during merge",
		StatusCode: http.StatusConflict,
	}

	ErrBadRequest = &WalletError{
		Code:       CodeBadRequest,
		Message:    "Invalid request parameters",
		StatusCode: http.StatusBadRequest,
	}

	ErrRateLimited = &WalletError{
		Code:       CodeRateLimited,
		Message:    "Too many requests",
		StatusCode: http.StatusTooManyRequests,
	}

	ErrInternal = &WalletError{
		Code:       CodeInternalError,
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}
)

// New creates a new WalletError
func New(code, message string, statusCode int) *WalletError {
	return &WalletError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetail returns a copy of the error with additional detail
func (e *WalletError) WithDetail(detail string) *WalletError {
	clone := *e
	clone.Detail = detail
	return &clone
}

// NotFound creates a not-found error naming the missing resource
func NotFound(resource string) *WalletError {
	return ErrNotFound.WithDetail(resource)
}

// LockedOut creates a locked-out error carrying the remaining wait time
func LockedOut(retryAfter time.Duration) *WalletError {
	return &WalletError{
		Code:       CodeLockedOut,
		Message:    fmt.Sprintf("Too many failed attempts, retry after %s", retryAfter.Round(time.Second)),
		RetryAfter: retryAfter,
		StatusCode: http.StatusForbidden,
	}
}

// ChainClient wraps a failure reported by the external chain client
func ChainClient(op string, err error) *WalletError {
	return &WalletError{
		Code:       CodeChainClient,
		Message:    fmt.Sprintf("Chain client failure during %s", op),
		Detail:     err.Error(),
		StatusCode: http.StatusBadGateway,
	}
}

// IsAuthentication checks if an error is an authentication failure
func IsAuthentication(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

// IsNotFound checks if an error is a not-found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsLockedOut checks if an error is a lockout error, returning the
// remaining wait time when it is.
func IsLockedOut(err error) (time.Duration, bool) {
	var we *WalletError
	if errors.As(err, &we) && we.Code == CodeLockedOut {
		return we.RetryAfter, true
	}
	return 0, false
}

// IsInvalidRequest checks if an error is an invalid-request error
func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}

// IsWalletError checks if an error is a WalletError
func IsWalletError(err error) (*WalletError, bool) {
	var we *WalletError
	if errors.As(err, &we) {
		return we, true
	}
	return nil, false
}
