package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the requester does not own the reminder.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidSchedule is returned for a notification after a one-shot event
	// or an unparsable recurrence rule.
	ErrInvalidSchedule = errors.New("invalid schedule")
	// ErrValidation is returned when a required field is missing or a reference is dangling.
	ErrValidation = errors.New("validation error")
	// ErrConflict is returned when a unique key is already taken.
	ErrConflict = errors.New("conflict")
)

func notFound(kind string, id uint) error {
	return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
}

func validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// scheduleError wraps a schedule validation failure so that it matches both
// ErrInvalidSchedule and the underlying schedule sentinel.
func scheduleError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
}

// lookupError maps a missing row to ErrNotFound and wraps anything else.
func lookupError(err error, kind string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound(kind, id)
	}
	return fmt.Errorf("find %s: %w", kind, err)
}
