package models

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	ErrUnauthorized      = errors.New("not authorized")
	ErrForbidden         = errors.New("access denied")
	ErrUnverified        = errors.New("account not verified")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidState      = errors.New("invalid state")
	ErrInvalidSignature  = errors.New("invalid signature")
)
