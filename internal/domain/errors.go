package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateRequest indicates that an active request for the same work
	// and user already exists.
	ErrDuplicateRequest = errors.New("duplicate request")

	// ErrIllegalTransition indicates a request status transition that is not
	// a legal edge of the lifecycle state machine.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrExternalUnavailable indicates that an indexer, library backend, or
	// download-client call failed. Retry scheduling belongs to the job-queue
	// layer, not to this service's core.
	ErrExternalUnavailable = errors.New("external service unavailable")

	// ErrConflict indicates that a conditional update lost a race with a
	// concurrent transition on the same request.
	ErrConflict = errors.New("concurrent modification")
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// DuplicateRequestError reports an attempt to create a request for a work the
// user already has an active request for.
type DuplicateRequestError struct {
	WorkID     string
	UserID     string
	ExistingID string
	Status     RequestStatus
}

// Error implements the error interface.
func (e *DuplicateRequestError) Error() string {
	return fmt.Sprintf("active request %s (%s) already exists for work %s", e.ExistingID, e.Status, e.WorkID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *DuplicateRequestError) Unwrap() error {
	return ErrDuplicateRequest
}

// TransitionError reports an illegal lifecycle transition attempt.
type TransitionError struct {
	RequestID string
	From      RequestStatus
	To        RequestStatus
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("request %s: illegal transition %s -> %s", e.RequestID, e.From, e.To)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// ExternalError provides details about a failed external collaborator call.
type ExternalError struct {
	Service    string
	Operation  string
	StatusCode int
	Cause      error
}

// Error implements the error interface.
func (e *ExternalError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s failed (status %d): %v", e.Service, e.Operation, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Service, e.Operation, e.Cause)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ExternalError) Unwrap() error {
	return ErrExternalUnavailable
}

// PartialCleanupError reports a deletion where one or more of the three
// cleanup effects failed while others succeeded. Each effect is itemized so
// the caller can see exactly what got cleaned up; this error is never a reason
// to withhold the parts that did succeed.
type PartialCleanupError struct {
	RequestID    string
	SoftDeleteOK bool
	ClientOK     bool
	FilesOK      bool
	Causes       []error
}

// Error implements the error interface.
func (e *PartialCleanupError) Error() string {
	var failed []string
	if !e.SoftDeleteOK {
		failed = append(failed, "db soft-delete")
	}
	if !e.ClientOK {
		failed = append(failed, "download-client disposition")
	}
	if !e.FilesOK {
		failed = append(failed, "file removal")
	}
	return fmt.Sprintf("request %s: partial cleanup failure (%s)", e.RequestID, strings.Join(failed, ", "))
}

// Unwrap returns the itemized causes for use with errors.Is and errors.As.
func (e *PartialCleanupError) Unwrap() []error {
	return e.Causes
}
