package store

import (
	"errors"
	"fmt"
)

// NotFoundError indicates the referenced thread or item is absent. It is also
// returned when a stored record fails to decode, so one corrupt record cannot
// wedge the read path.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// UnsupportedError indicates a capability this backend deliberately does not
// provide. Permanent; retrying will not help.
type UnsupportedError struct {
	Operation string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s is not supported by this backend", e.Operation)
}

// InvalidContextError indicates the request context is missing required data
// (the authenticated user id). This is a caller programming error, not a
// recoverable condition.
type InvalidContextError struct {
	Message string
}

func (e *InvalidContextError) Error() string {
	return e.Message
}

// ValidationError indicates a client-side validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}
