package identity

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table.
type Patient struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	MRN         string     `db:"mrn" json:"mrn"`
	Active      bool       `db:"active" json:"active"`
	FirstName   string     `db:"first_name" json:"first_name"`
	LastName    string     `db:"last_name" json:"last_name"`
	BirthDate   *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Gender      *string    `db:"gender" json:"gender,omitempty"`
	PhoneMobile *string    `db:"phone_mobile" json:"phone_mobile,omitempty"`
	Email       *string    `db:"email" json:"email,omitempty"`
	VersionID   int        `db:"version_id" json:"version_id"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// GetVersionID returns the current version.
func (p *Patient) GetVersionID() int { return p.VersionID }

// SetVersionID sets the current version.
func (p *Patient) SetVersionID(v int) { p.VersionID = v }

// Age returns the patient's age in whole years at the given instant, or nil
// when no birth date is recorded.
func (p *Patient) Age(now time.Time) *int {
	if p.BirthDate == nil {
		return nil
	}
	years := now.Year() - p.BirthDate.Year()
	anniversary := p.BirthDate.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	if years < 0 {
		years = 0
	}
	return &years
}

// Doctor maps to the doctor table.
type Doctor struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Active      bool      `db:"active" json:"active"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	Department  string    `db:"department" json:"department"`
	IsAvailable bool      `db:"is_available" json:"is_available"`
	Phone       *string   `db:"phone" json:"phone,omitempty"`
	Email       *string   `db:"email" json:"email,omitempty"`
	VersionID   int       `db:"version_id" json:"version_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// GetVersionID returns the current version.
func (d *Doctor) GetVersionID() int { return d.VersionID }

// SetVersionID sets the current version.
func (d *Doctor) SetVersionID(v int) { d.VersionID = v }
