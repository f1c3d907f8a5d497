package entity

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrDuplicateActiveRequest = errors.New("an active NDA request already exists for this listing and buyer")
	ErrPreconditionFailed     = errors.New("precondition failed")
	ErrValidation             = errors.New("validation failed")
)
