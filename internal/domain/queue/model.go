package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/clinicflow/internal/domain/appointment"
)

// Queue entry statuses.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusCalled    Status = "called"
	StatusServing   Status = "serving"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// allowedTransitions is the full status state machine. Terminal statuses have
// no outgoing edges, so any attempt to leave them fails CanTransition.
// Serving can be entered straight from waiting because walk-up flows skip the
// called step. Called may fall back to waiting when a patient misses the call
// but is not yet skipped.
var allowedTransitions = map[Status][]Status{
	StatusWaiting: {StatusCalled, StatusServing, StatusCancelled, StatusNoShow},
	StatusCalled:  {StatusServing, StatusCompleted, StatusWaiting, StatusCancelled, StatusNoShow},
	StatusServing: {StatusCompleted, StatusCancelled, StatusNoShow},
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusCalled, StatusServing, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Active reports whether an entry in this status still occupies the queue.
// Active entries block a second admission for the same appointment.
func (s Status) Active() bool {
	switch s {
	case StatusWaiting, StatusCalled, StatusServing:
		return true
	}
	return false
}

// CanTransition reports whether the state machine permits from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Entry maps to the queue_entry table. Urgency is denormalized from the
// appointment at admission so ordering can happen entirely in SQL.
type Entry struct {
	ID            uuid.UUID           `db:"id" json:"id"`
	AppointmentID uuid.UUID           `db:"appointment_id" json:"appointment_id"`
	PatientID     uuid.UUID           `db:"patient_id" json:"patient_id"`
	DoctorID      *uuid.UUID          `db:"doctor_id" json:"doctor_id,omitempty"`
	QueueNumber   int                 `db:"queue_number" json:"queue_number"`
	AdmissionDay  time.Time           `db:"admission_day" json:"admission_day"`
	Urgency       appointment.Urgency `db:"urgency" json:"urgency"`
	Status        Status              `db:"status" json:"status"`
	PriorityScore int                 `db:"priority_score" json:"priority_score"`
	Reason        *string             `db:"reason" json:"reason,omitempty"`

	AdmittedAt       time.Time  `db:"admitted_at" json:"admitted_at"`
	CalledAt         *time.Time `db:"called_at" json:"called_at,omitempty"`
	ServingStartedAt *time.Time `db:"serving_started_at" json:"serving_started_at,omitempty"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	ClosedAt         *time.Time `db:"closed_at" json:"closed_at,omitempty"`

	VersionID int       `db:"version_id" json:"version_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// GetVersionID returns the current version.
func (e *Entry) GetVersionID() int { return e.VersionID }

// SetVersionID sets the current version.
func (e *Entry) SetVersionID(v int) { e.VersionID = v }

// Transition applies to with its side-effect timestamps, or returns
// ErrInvalidTransition. Timestamps are only ever set forward, never cleared,
// so an entry called twice keeps its first called_at.
func (e *Entry) Transition(to Status, now time.Time) error {
	if !CanTransition(e.Status, to) {
		return ErrInvalidTransition
	}
	switch to {
	case StatusCalled:
		if e.CalledAt == nil {
			e.CalledAt = &now
		}
	case StatusServing:
		if e.ServingStartedAt == nil {
			e.ServingStartedAt = &now
		}
	case StatusCompleted:
		if e.CompletedAt == nil {
			e.CompletedAt = &now
		}
		e.ClosedAt = &now
	case StatusCancelled, StatusNoShow:
		e.ClosedAt = &now
	}
	e.Status = to
	return nil
}

// Position describes where an active entry sits in its queue right now.
type Position struct {
	EntryID          uuid.UUID `json:"entry_id"`
	QueueNumber      int       `json:"queue_number"`
	Status           Status    `json:"status"`
	Rank             int       `json:"rank"`
	AheadCount       int       `json:"ahead_count"`
	TotalWaiting     int       `json:"total_waiting"`
	EstimatedMinutes int       `json:"estimated_wait_minutes"`
	EffectiveScore   int       `json:"effective_score"`
}

// Stats summarizes one admission day of the queue.
type Stats struct {
	Day            time.Time      `json:"day"`
	Total          int            `json:"total"`
	ByStatus       map[Status]int `json:"by_status"`
	AvgWaitMinutes float64        `json:"avg_wait_minutes"`
	LongestWaitMin float64        `json:"longest_wait_minutes"`
}
