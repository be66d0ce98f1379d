package calendar

import (
	"errors"
	"fmt"
)

// Error kinds. Callers test for them with errors.Is.
var (
	// ErrNotFound is returned when a calendar or appointment does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned for malformed input such as an empty title,
	// an end time before the start or an unparseable timestamp.
	ErrValidation = errors.New("validation error")

	// ErrAdmissionRefused marks a schedule request vetoed by a more important
	// overlapping appointment. It is reported through ScheduleResult, not
	// returned as an error.
	ErrAdmissionRefused = errors.New("admission refused")

	// ErrPersistence wraps failures of the underlying store.
	ErrPersistence = errors.New("persistence error")
)

// NotFoundf returns an error wrapping ErrNotFound.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Validationf returns an error wrapping ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Persistence wraps err as a store failure. Errors that already carry a kind
// are returned unchanged.
func Persistence(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) || errors.Is(err, ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
