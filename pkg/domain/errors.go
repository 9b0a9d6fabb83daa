package domain

import "errors"

var (
	// ErrAuthRequired indicates a scoped write was attempted without an active session.
	ErrAuthRequired = errors.New("you must be signed in")
	// ErrPermission indicates the row is not owned by the caller, or the store denied access.
	ErrPermission = errors.New("permission denied")
)

// ValidationError reports a field that failed local validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: field + " " + msg}
}
