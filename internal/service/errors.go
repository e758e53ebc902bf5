package service

import "errors"

var (
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	// Unknown usernames and wrong passwords both map to it.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicateUsername is returned when the store rejects a username that is already taken.
	ErrDuplicateUsername = errors.New("username already exists")
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports input that failed validation. Its message is safe
// to return to clients.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Err: err}
}
