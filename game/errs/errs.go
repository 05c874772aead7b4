// Package errs defines the error kinds shared by the civilization model.
// Every kind is recoverable: callers surface it and leave the action retryable.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientResource = errors.New("insufficient resource")
	ErrInvalidOperation     = errors.New("invalid operation")
	ErrNotEligible          = errors.New("character not eligible for job")
	ErrNotFound             = errors.New("not found")
	ErrTransient            = errors.New("transient store failure")
)

// InsufficientResourceError carries the counter that would have gone negative
// and the amounts involved. It matches ErrInsufficientResource with errors.Is.
type InsufficientResourceError struct {
	Resource  string
	Requested int64
	Available int64
}

func (e *InsufficientResourceError) Error() string {
	return fmt.Sprintf("not enough %s: requested %d, available %d", e.Resource, e.Requested, e.Available)
}

func (e *InsufficientResourceError) Is(target error) bool {
	return target == ErrInsufficientResource
}

// Invalid wraps ErrInvalidOperation with a reason.
func Invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidOperation, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound with the missing entity name.
func NotFound(entity string) error {
	return fmt.Errorf("%s %w", entity, ErrNotFound)
}

// NotEligibleFor wraps ErrNotEligible naming the character and job.
func NotEligibleFor(character, job string) error {
	return fmt.Errorf("%w: %s does not meet the requirements of %s", ErrNotEligible, character, job)
}

// Transient wraps an I/O error from a collaborator as ErrTransient while
// keeping the cause reachable through errors.Unwrap.
func Transient(op string, cause error) error {
	return &transientError{op: op, cause: cause}
}

type transientError struct {
	op    string
	cause error
}

func (e *transientError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.op, ErrTransient, e.cause)
}

func (e *transientError) Unwrap() []error { return []error{ErrTransient, e.cause} }
