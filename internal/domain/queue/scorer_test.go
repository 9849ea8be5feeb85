package queue

import (
	"testing"
	"time"

	"github.com/clinicflow/clinicflow/internal/domain/appointment"
)

func intPtr(v int) *int { return &v }

func TestScore_UrgencyOrdering(t *testing.T) {
	s := NewScorer(AgeBonusAdditive)

	emergency := s.Score(appointment.UrgencyEmergency, nil, false)
	high := s.Score(appointment.UrgencyHigh, nil, false)
	normal := s.Score(appointment.UrgencyNormal, nil, false)
	low := s.Score(appointment.UrgencyLow, nil, false)

	if !(emergency > high && high > normal && normal > low) {
		t.Errorf("expected emergency > high > normal > low, got %d, %d, %d, %d",
			emergency, high, normal, low)
	}
}

func TestScore_AgeBonusAdditive(t *testing.T) {
	s := NewScorer(AgeBonusAdditive)

	if got := s.Score(appointment.UrgencyNormal, intPtr(70), false); got != 50 {
		t.Errorf("expected 50 for age 70, got %d", got)
	}
	// 80+ earns both bonuses under the additive policy.
	if got := s.Score(appointment.UrgencyNormal, intPtr(85), false); got != 150 {
		t.Errorf("expected 150 for age 85, got %d", got)
	}
	if got := s.Score(appointment.UrgencyNormal, intPtr(40), false); got != 0 {
		t.Errorf("expected 0 for age 40, got %d", got)
	}
	if got := s.Score(appointment.UrgencyNormal, nil, false); got != 0 {
		t.Errorf("expected 0 for unknown age, got %d", got)
	}
}

func TestScore_AgeBonusHighest(t *testing.T) {
	s := NewScorer(AgeBonusHighest)

	if got := s.Score(appointment.UrgencyNormal, intPtr(85), false); got != 100 {
		t.Errorf("expected 100 for age 85 under highest policy, got %d", got)
	}
	if got := s.Score(appointment.UrgencyNormal, intPtr(70), false); got != 50 {
		t.Errorf("expected 50 for age 70 under highest policy, got %d", got)
	}
}

func TestScore_LateArrival(t *testing.T) {
	s := NewScorer(AgeBonusAdditive)

	onTime := s.Score(appointment.UrgencyHigh, nil, false)
	late := s.Score(appointment.UrgencyHigh, nil, true)
	if late-onTime != 20 {
		t.Errorf("expected late arrival bonus of 20, got %d", late-onTime)
	}
}

func TestAgingBonus(t *testing.T) {
	tests := []struct {
		urgency appointment.Urgency
		waited  time.Duration
		want    int
	}{
		{appointment.UrgencyEmergency, 10 * time.Hour, 0},
		{appointment.UrgencyHigh, 3 * time.Hour, 6},
		{appointment.UrgencyNormal, 2 * time.Hour, 20},
		{appointment.UrgencyLow, 2 * time.Hour, 24},
		// Partial hours do not count.
		{appointment.UrgencyNormal, 90 * time.Minute, 10},
		{appointment.UrgencyNormal, 59 * time.Minute, 0},
		{appointment.UrgencyNormal, -time.Hour, 0},
	}

	for _, tt := range tests {
		if got := AgingBonus(tt.urgency, tt.waited); got != tt.want {
			t.Errorf("AgingBonus(%s, %v) = %d, want %d", tt.urgency, tt.waited, got, tt.want)
		}
	}
}

// A normal entry gains 10 points per hour against high's 2, an 8 point/hour
// closing rate on a 1000 point gap. It overtakes after 125 hours of waiting.
func TestAging_NormalOvertakesHigh(t *testing.T) {
	s := NewScorer(AgeBonusAdditive)
	admitted := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)

	high := &Entry{Urgency: appointment.UrgencyHigh, PriorityScore: s.Score(appointment.UrgencyHigh, nil, false), AdmittedAt: admitted}
	normal := &Entry{Urgency: appointment.UrgencyNormal, PriorityScore: s.Score(appointment.UrgencyNormal, nil, false), AdmittedAt: admitted}

	before := admitted.Add(124 * time.Hour)
	if EffectiveScore(normal, before) > EffectiveScore(high, before) {
		t.Error("normal must not outrank high before the crossover point")
	}

	after := admitted.Add(126 * time.Hour)
	if EffectiveScore(normal, after) <= EffectiveScore(high, after) {
		t.Error("normal should outrank high after 125 hours of equal waiting")
	}
}

// Low starts 200 points behind normal but ages 2 points per hour faster,
// crossing over after 100 hours.
func TestAging_LowOvertakesNormal(t *testing.T) {
	s := NewScorer(AgeBonusAdditive)
	admitted := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)

	normal := &Entry{Urgency: appointment.UrgencyNormal, PriorityScore: s.Score(appointment.UrgencyNormal, nil, false), AdmittedAt: admitted}
	low := &Entry{Urgency: appointment.UrgencyLow, PriorityScore: s.Score(appointment.UrgencyLow, nil, false), AdmittedAt: admitted}

	after := admitted.Add(101 * time.Hour)
	if EffectiveScore(low, after) <= EffectiveScore(normal, after) {
		t.Error("low should outrank normal after 100 hours of equal waiting")
	}
}

func TestAging_EmergencyNeverOvertaken(t *testing.T) {
	s := NewScorer(AgeBonusAdditive)
	admitted := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	now := admitted.Add(72 * time.Hour)

	emergency := &Entry{Urgency: appointment.UrgencyEmergency, PriorityScore: s.Score(appointment.UrgencyEmergency, nil, false), AdmittedAt: now}
	for _, u := range []appointment.Urgency{appointment.UrgencyHigh, appointment.UrgencyNormal, appointment.UrgencyLow} {
		aged := &Entry{Urgency: u, PriorityScore: s.Score(u, intPtr(85), true), AdmittedAt: admitted}
		if EffectiveScore(aged, now) >= EffectiveScore(emergency, now) {
			t.Errorf("a 72 hour old %s entry must not outrank a fresh emergency", u)
		}
	}
}

func TestEffectiveScore_StoredScoreUnchanged(t *testing.T) {
	admitted := time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC)
	e := &Entry{Urgency: appointment.UrgencyNormal, PriorityScore: 0, AdmittedAt: admitted}

	_ = EffectiveScore(e, admitted.Add(5*time.Hour))
	if e.PriorityScore != 0 {
		t.Errorf("reading effective score must not mutate stored score, got %d", e.PriorityScore)
	}
}
