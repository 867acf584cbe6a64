package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Error kinds. Services return them wrapped in a *ServiceError; callers match
// with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidAmount     = errors.New("invalid transfer amount")
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrInvalidOperation  = errors.New("invalid operation")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrRateLimited       = errors.New("rate limited")
	ErrTimeout           = errors.New("timeout")
	ErrUnavailable       = errors.New("service unavailable")
	ErrInternal          = errors.New("internal error")
)

// ServiceError carries a kind from the list above plus the message shown to
// the client.
type ServiceError struct {
	Kind    error
	Message string
	Details map[string]string
	// RetryAfter is set on conflicts the client may retry.
	RetryAfter int
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error { return e.Kind }

func newError(kind error, format string, args ...any) *ServiceError {
	return &ServiceError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// InsufficientFunds reports the sender's balance at the time of the check.
func InsufficientFunds(balance decimal.Decimal) *ServiceError {
	return &ServiceError{
		Kind:    ErrInsufficientFunds,
		Message: fmt.Sprintf("Insufficient balance ( You have balance %s )", balance.String()),
		Details: map[string]string{"balance": balance.String()},
	}
}

// StatusCode maps an error kind to its HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInvalidOperation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WriteServiceError renders err as an ErrorResponse. Errors without a known
// kind are reported as a generic 500 so internals do not leak.
func WriteServiceError(w http.ResponseWriter, err error) {
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}
	if svcErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(svcErr.RetryAfter))
	}
	status := StatusCode(svcErr)
	message := svcErr.Error()
	if status == http.StatusInternalServerError {
		message = "An Internal Error Occurred"
	}
	writeJSON(w, status, ErrorResponse{Error: message, Details: svcErr.Details})
}

// Postgres SQLSTATE codes the services react to.
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqUniqueViolation      = "23505"
)

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isRetryable(err error) bool {
	if errors.Is(err, ErrConflict) {
		return true
	}
	switch pqCode(err) {
	case pqSerializationFailure, pqDeadlockDetected:
		return true
	}
	return false
}

func isUniqueViolation(err error) bool {
	return pqCode(err) == pqUniqueViolation
}

// storageError classifies a raw database error, turning deadline expiry into
// ErrTimeout and everything else into ErrInternal.
func storageError(op string, err error) error {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ServiceError{Kind: ErrTimeout, Message: "Request timed out"}
	}
	return fmt.Errorf("%s: %w", op, errors.Join(ErrInternal, err))
}
