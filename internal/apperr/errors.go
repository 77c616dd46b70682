// Package apperr defines the sentinel errors shared across service and
// transport layers. Handlers map these to HTTP statuses at the edge.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalid       = errors.New("invalid input")
)
