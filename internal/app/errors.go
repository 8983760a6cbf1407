package app

import (
	"errors"
	"fmt"
)

// ValidationError reports bad user input. It is returned synchronously and
// never retried automatically.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

func NewValidationError(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Sentinel validation failures for the submit path.
var (
	ErrEmptyMessage         = NewValidationError("message must not be empty")
	ErrMinutesOutOfRange    = NewValidationError(fmt.Sprintf("timer must be between %d and %d minutes", MinTimerMinutes, MaxTimerMinutes))
	ErrUnknownPersona       = NewValidationError("unknown persona")
	ErrNoWeekdays           = NewValidationError("a weekly reminder needs at least one weekday")
	ErrBadTimeOfDay         = NewValidationError("time of day out of range")
	ErrReminderLimitReached = NewValidationError("active reminder limit reached")
)

// StorageError wraps a durable-store I/O failure. The in-memory reminder
// list is left unchanged when the failing operation was a write.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
