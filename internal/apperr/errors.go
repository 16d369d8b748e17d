package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalid marks input rejected at a construction boundary.
	ErrInvalid = errors.New("invalid input")
	// ErrStoreWrite marks a write the record store rejected. Never retried internally.
	ErrStoreWrite = errors.New("store write failed")
	// ErrIntake marks a file reference that could not be opened at all.
	ErrIntake = errors.New("intake failed")
)
