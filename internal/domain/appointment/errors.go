package appointment

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrDoctorUnavailable = errors.New("doctor unavailable")
	ErrPersistence       = errors.New("persistence failed")
)

// MissingFieldsMessage is shown when the booking form is incomplete.
const MissingFieldsMessage = "Please select a date, doctor, and time slot."

// ValidationError is a rejected input or transition. Nothing was mutated.
type ValidationError struct {
	Message string
	// Transition is set when the input was fine but the appointment's
	// current status does not allow the operation.
	Transition bool
}

func (e *ValidationError) Error() string        { return e.Message }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func invalidTransition(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...), Transition: true}
}

// NotFoundError names a missing appointment or doctor.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	if e.Kind == "doctor" {
		return fmt.Sprintf("doctor %s is no longer available", e.ID)
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound || (e.Kind == "doctor" && target == ErrDoctorUnavailable)
}

// PersistenceError is a failed durable read or write. For writes the
// in-memory change has been kept.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: changes may not survive a reload: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error        { return e.Err }
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
