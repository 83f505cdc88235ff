package domain

import (
	"errors"
	"fmt"
)

// Common errors used throughout the application.
//
// ErrTransient, ErrDataIntegrity and ErrConfiguration form the error
// taxonomy that adapters classify into at the boundary. ErrNotFound is an
// expected condition that callers branch on, not a failure.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrTransient     = errors.New("transient external error")
	ErrDataIntegrity = errors.New("data integrity error")
	ErrConfiguration = errors.New("configuration error")
)

// Transient marks err as a retryable external failure.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// DataIntegrity marks err as a malformed-data failure that needs an operator.
func DataIntegrity(err error) error {
	if err == nil || errors.Is(err, ErrDataIntegrity) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrDataIntegrity, err)
}

// Configuration marks err as a missing or invalid setting or credential.
func Configuration(err error) error {
	if err == nil || errors.Is(err, ErrConfiguration) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConfiguration, err)
}

// IsRetryable reports whether redelivering the work that produced err can
// succeed. Data integrity and configuration failures never fix themselves.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrDataIntegrity) && !errors.Is(err, ErrConfiguration)
}

// APIError represents an error response from the API.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}
