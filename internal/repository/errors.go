package repository

import "errors"

var (
	ErrNotFound       = errors.New("entity not found")
	ErrDuplicate      = errors.New("duplicate entity")
	ErrOptimisticLock = errors.New("version conflict")
	ErrUpdateFailed   = errors.New("update failed")
)
