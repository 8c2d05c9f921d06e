package todo

import "errors"

var (
	// ErrValidation marks malformed input. It is detected before any dependency call.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing user or todo.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by Store.Update when a patch precondition no longer holds.
	ErrConflict = errors.New("update conflict")
)
