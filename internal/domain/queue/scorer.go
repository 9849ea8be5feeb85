package queue

import (
	"time"

	"github.com/clinicflow/clinicflow/internal/domain/appointment"
)

// Base priority per urgency. The bands are spaced so bonuses and hours of
// aging cannot promote a lower band past emergency.
const (
	baseEmergency = 3000
	baseHigh      = 1000
	baseNormal    = 0
	baseLow       = -200
)

// Age bonuses for elderly patients.
const (
	bonusAge65 = 50
	bonusAge80 = 100
)

// bonusLateArrival applies when the patient is admitted after their booked
// appointment time, compensating for time already lost.
const bonusLateArrival = 20

// Aging rates in points per full hour waited. Emergencies do not age; they
// already outrank everything. Low urgency ages fastest so it cannot starve:
// low passes normal after 100 hours, normal passes high after 125 hours.
var agingPerHour = map[appointment.Urgency]int{
	appointment.UrgencyEmergency: 0,
	appointment.UrgencyHigh:      2,
	appointment.UrgencyNormal:    10,
	appointment.UrgencyLow:       12,
}

// AgeBonusPolicy selects how the two elderly bonuses combine.
type AgeBonusPolicy string

const (
	AgeBonusAdditive AgeBonusPolicy = "additive"
	AgeBonusHighest  AgeBonusPolicy = "highest"
)

// Scorer computes priority scores. It is pure: all time dependence comes in
// through explicit arguments so scoring is reproducible in tests.
type Scorer struct {
	policy AgeBonusPolicy
}

func NewScorer(policy AgeBonusPolicy) *Scorer {
	if policy == "" {
		policy = AgeBonusAdditive
	}
	return &Scorer{policy: policy}
}

// Score computes the admission-time priority score. age is nil when the
// patient has no recorded birth date; lateArrival is true when admission
// happens after the booked appointment time.
func (s *Scorer) Score(urgency appointment.Urgency, age *int, lateArrival bool) int {
	score := baseScore(urgency)
	score += s.ageBonus(age)
	if lateArrival {
		score += bonusLateArrival
	}
	return score
}

func (s *Scorer) ageBonus(age *int) int {
	if age == nil {
		return 0
	}
	var bonus int
	switch s.policy {
	case AgeBonusHighest:
		if *age >= 80 {
			bonus = bonusAge80
		} else if *age >= 65 {
			bonus = bonusAge65
		}
	default:
		if *age >= 65 {
			bonus += bonusAge65
		}
		if *age >= 80 {
			bonus += bonusAge80
		}
	}
	return bonus
}

func baseScore(urgency appointment.Urgency) int {
	switch urgency {
	case appointment.UrgencyEmergency:
		return baseEmergency
	case appointment.UrgencyHigh:
		return baseHigh
	case appointment.UrgencyLow:
		return baseLow
	default:
		return baseNormal
	}
}

// AgingBonus returns the points accrued after waiting for the given duration.
// Only full hours count; a negative duration accrues nothing.
func AgingBonus(urgency appointment.Urgency, waited time.Duration) int {
	if waited <= 0 {
		return 0
	}
	hours := int(waited / time.Hour)
	return agingPerHour[urgency] * hours
}

// EffectiveScore is the stored admission score plus live aging. The stored
// score never changes after admission; aging is recomputed on every read so
// waiting entries drift upward without write traffic.
func EffectiveScore(e *Entry, now time.Time) int {
	return e.PriorityScore + AgingBonus(e.Urgency, now.Sub(e.AdmittedAt))
}
