package interview

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("session not found")
	ErrInvalidState = errors.New("session is already completed")
	ErrPersistence  = errors.New("session store unavailable")
	// ErrConflict also matches ErrPersistence; the caller may retry
	ErrConflict = fmt.Errorf("%w: concurrent update", ErrPersistence)
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, ErrPersistence, err)
}
