package services

import "errors"

// Domain errors. Callers wrap them with fmt.Errorf("...: %w") and the
// request layer maps them to HTTP statuses with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")
)
