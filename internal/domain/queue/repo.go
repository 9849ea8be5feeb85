package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists queue entries. Implementations must guarantee the
// concurrency contracts documented per method; the service layer assumes
// them rather than re-locking.
type Repository interface {
	// Create assigns the next queue number for the entry's admission day and
	// inserts the entry, atomically with respect to concurrent admissions.
	// Returns ErrAlreadyInQueue when the appointment already has an active
	// entry.
	Create(ctx context.Context, e *Entry) error

	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)

	// GetActiveByAppointment returns the waiting, called, or serving entry
	// for the appointment, or ErrNotFound.
	GetActiveByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Entry, error)

	// GetActiveByPatient returns the patient's current active entry, or
	// ErrNotFound. A patient has at most one active entry per day in
	// practice; when several exist the earliest admission wins.
	GetActiveByPatient(ctx context.Context, patientID uuid.UUID) (*Entry, error)

	// Update persists the entry with optimistic locking on VersionID.
	// Returns ErrVersionConflict when the row changed since it was read, or
	// ErrNotFound when it no longer exists.
	Update(ctx context.Context, e *Entry) error

	// ClaimNext atomically picks the highest-priority waiting entry for the
	// day, optionally restricted to one doctor, marks it called, and returns
	// it. Concurrent callers never receive the same entry. Returns
	// ErrNotFound when nothing is waiting.
	ClaimNext(ctx context.Context, day time.Time, doctorID *uuid.UUID) (*Entry, error)

	// ListActive returns the day's waiting, called, and serving entries in
	// effective-priority order, optionally restricted to one doctor.
	ListActive(ctx context.Context, day time.Time, doctorID *uuid.UUID) ([]*Entry, error)

	// Rank returns the entry's 1-based position among the day's waiting
	// entries, by effective priority. The cohort is the entry's doctor when
	// one is assigned and the whole day otherwise, matching ListActive.
	Rank(ctx context.Context, e *Entry) (int, error)

	// CountActiveByDoctor returns per-doctor active entry counts for the day.
	// Doctors with no active entries are absent from the map.
	CountActiveByDoctor(ctx context.Context, day time.Time) (map[uuid.UUID]int, error)

	List(ctx context.Context, day time.Time, status Status, limit, offset int) ([]*Entry, int, error)

	// Stats aggregates the day's entries, optionally restricted to one
	// doctor's cohort.
	Stats(ctx context.Context, day time.Time, doctorID *uuid.UUID) (*Stats, error)
}
