package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Urgency classifies how quickly a visit needs attention. It is recorded on
// the appointment and drives queue prioritization downstream.
type Urgency string

const (
	UrgencyEmergency Urgency = "emergency"
	UrgencyHigh      Urgency = "high"
	UrgencyNormal    Urgency = "normal"
	UrgencyLow       Urgency = "low"
)

// Valid reports whether u is one of the known urgency levels.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyEmergency, UrgencyHigh, UrgencyNormal, UrgencyLow:
		return true
	}
	return false
}

// Appointment statuses.
const (
	StatusBooked    = "booked"
	StatusFulfilled = "fulfilled"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

// Appointment maps to the appointment table. DoctorID is nil until a doctor
// is assigned, either at booking or by the queue at admission.
type Appointment struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID        *uuid.UUID `db:"doctor_id" json:"doctor_id,omitempty"`
	Department      *string    `db:"department" json:"department,omitempty"`
	Urgency         Urgency    `db:"urgency" json:"urgency"`
	AppointmentDate time.Time  `db:"appointment_date" json:"appointment_date"`
	Status          string     `db:"status" json:"status"`
	Note            *string    `db:"note" json:"note,omitempty"`
	VersionID       int        `db:"version_id" json:"version_id"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// GetVersionID returns the current version.
func (a *Appointment) GetVersionID() int { return a.VersionID }

// SetVersionID sets the current version.
func (a *Appointment) SetVersionID(v int) { a.VersionID = v }
