// Package apperr holds the error taxonomy every remote-facing store converts
// failures into.
package apperr

import (
	"errors"
	"fmt"
)

// ErrBusy is returned when a state-changing operation is requested while a
// previous one for the same owner is still in flight.
var ErrBusy = errors.New("operation already in flight")

// ValidationError reports a malformed intent. Input is preserved.
type ValidationError struct {
	Code    string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return "validation failed"
	}
	return "validation failed: " + e.Message
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ConflictError reports that server-side state moved since the last read.
// Callers must refetch before retrying.
type ConflictError struct {
	Code    string
	Message string
	Err     error
}

func (e *ConflictError) Error() string {
	if e.Message == "" {
		return "conflict: state changed on the server"
	}
	return "conflict: " + e.Message
}

func (e *ConflictError) Unwrap() error { return e.Err }

// TransportError reports network or server failures. Retry is user-driven only.
type TransportError struct {
	Status       int
	Message      string
	Unauthorized bool
	Err          error
}

func (e *TransportError) Error() string {
	switch {
	case e.Unauthorized:
		return "unauthorized: sign in again"
	case e.Status > 0 && e.Message != "":
		return fmt.Sprintf("transport: HTTP %d: %s", e.Status, e.Message)
	case e.Status > 0:
		return fmt.Sprintf("transport: HTTP %d", e.Status)
	case e.Err != nil:
		return "transport: " + e.Err.Error()
	default:
		return "transport failure"
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// NotFoundError reports that an entity vanished.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func Validation(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// Kind names the taxonomy bucket of err, or "" when err is nil.
func Kind(err error) string {
	var (
		v *ValidationError
		c *ConflictError
		t *TransportError
		n *NotFoundError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.As(err, &v):
		return "validation"
	case errors.As(err, &c):
		return "conflict"
	case errors.As(err, &n):
		return "not_found"
	case errors.As(err, &t):
		return "transport"
	default:
		return "transport"
	}
}

// From converts an arbitrary error into the taxonomy. Errors already in the
// taxonomy are returned unchanged; anything else becomes a TransportError.
func From(err error) error {
	if err == nil {
		return nil
	}
	var (
		v *ValidationError
		c *ConflictError
		t *TransportError
		n *NotFoundError
	)
	if errors.Is(err, ErrBusy) || errors.As(err, &v) || errors.As(err, &c) || errors.As(err, &t) || errors.As(err, &n) {
		return err
	}
	return &TransportError{Err: err}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

func IsTransport(err error) bool {
	var t *TransportError
	return errors.As(err, &t)
}

func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}
