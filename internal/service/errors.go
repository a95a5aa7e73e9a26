package service

import "errors"

// Sentinel errors surfaced by the CRUD services; handlers map them onto
// HTTP status codes.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
)
