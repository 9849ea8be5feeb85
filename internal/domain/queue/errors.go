package queue

import "errors"

var (
	// ErrNotFound is returned when a queue entry does not exist.
	ErrNotFound = errors.New("queue entry not found")

	// ErrAppointmentNotFound is returned when an admission references an
	// appointment that does not exist.
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrAlreadyInQueue is returned when an appointment already has an entry
	// in waiting, called, or serving status. Concurrent duplicate admissions
	// surface as this error, never as a second entry.
	ErrAlreadyInQueue = errors.New("appointment already in queue")

	// ErrInvalidTransition is returned when a status change is not allowed by
	// the state machine, including any transition out of a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrVersionConflict is returned when an optimistic update loses a race
	// with a concurrent writer. Callers can distinguish it from ErrNotFound
	// and retry against fresh state if appropriate.
	ErrVersionConflict = errors.New("queue entry was modified concurrently")
)
