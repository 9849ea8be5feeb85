package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/clinicflow/clinicflow/internal/domain/appointment"
	"github.com/clinicflow/clinicflow/internal/domain/identity"
	"github.com/clinicflow/clinicflow/internal/platform/websocket"
)

// Notifier delivers patient-facing queue notifications. Delivery is best
// effort: failures are logged, never propagated to the caller.
type Notifier interface {
	QueueAdmitted(ctx context.Context, patientID uuid.UUID, queueNumber, estimatedMinutes int) error
	QueueCalled(ctx context.Context, patientID uuid.UUID, queueNumber int) error
}

// Service orchestrates admissions, calls, and status changes. All clock reads
// happen here; the scorer and estimator stay pure.
type Service struct {
	repo     Repository
	appts    appointment.Repository
	patients identity.PatientRepository
	doctors  identity.DoctorRepository

	scorer         *Scorer
	avgServiceMins int

	notifier Notifier
	events   websocket.EventPublisher
}

func NewService(
	repo Repository,
	appts appointment.Repository,
	patients identity.PatientRepository,
	doctors identity.DoctorRepository,
	scorer *Scorer,
	avgServiceMins int,
	notifier Notifier,
	events websocket.EventPublisher,
) *Service {
	return &Service{
		repo:           repo,
		appts:          appts,
		patients:       patients,
		doctors:        doctors,
		scorer:         scorer,
		avgServiceMins: avgServiceMins,
		notifier:       notifier,
		events:         events,
	}
}

// dayOf truncates an instant to its UTC admission day.
func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Admit places an appointment into today's queue. The doctor comes from the
// appointment when pre-assigned, otherwise from load balancing over available
// doctors, filtered by department when one is given. An appointment can hold
// at most one active entry; a duplicate admission returns ErrAlreadyInQueue.
func (s *Service) Admit(ctx context.Context, appointmentID uuid.UUID, department string) (*Entry, error) {
	appt, err := s.appts.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, ErrAppointmentNotFound
	}
	if appt.Status != appointment.StatusBooked {
		return nil, fmt.Errorf("appointment is %s, only booked appointments can be admitted", appt.Status)
	}

	now := time.Now().UTC()

	var age *int
	if patient, err := s.patients.GetByID(ctx, appt.PatientID); err == nil {
		age = patient.Age(now)
	}
	lateArrival := now.After(appt.AppointmentDate)
	score := s.scorer.Score(appt.Urgency, age, lateArrival)

	doctorID := appt.DoctorID
	if doctorID == nil {
		if department == "" && appt.Department != nil {
			department = *appt.Department
		}
		if picked, err := s.pickDoctor(ctx, now, department); err != nil {
			return nil, err
		} else if picked != nil {
			doctorID = &picked.ID
			// Backfill the assignment so later reads of the appointment see
			// the doctor chosen here.
			appt.DoctorID = doctorID
			if err := s.appts.Update(ctx, appt); err != nil {
				log.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("doctor backfill failed")
			}
		}
	}

	entry := &Entry{
		AppointmentID: appointmentID,
		PatientID:     appt.PatientID,
		DoctorID:      doctorID,
		AdmissionDay:  dayOf(now),
		Urgency:       appt.Urgency,
		Status:        StatusWaiting,
		PriorityScore: score,
		AdmittedAt:    now,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		rank, err := s.repo.Rank(ctx, entry)
		if err != nil {
			rank = 0
		}
		eta := EstimateWaitMinutes(rank, s.avgServiceMins)
		if err := s.notifier.QueueAdmitted(ctx, entry.PatientID, entry.QueueNumber, eta); err != nil {
			log.Warn().Err(err).Str("entry_id", entry.ID.String()).Msg("queue admitted notification failed")
		}
	}
	s.publish(ctx, "queue.admitted", entry)

	return entry, nil
}

func (s *Service) pickDoctor(ctx context.Context, now time.Time, department string) (*identity.Doctor, error) {
	available, err := s.doctors.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}
	if len(available) == 0 {
		return nil, nil
	}
	load, err := s.repo.CountActiveByDoctor(ctx, dayOf(now))
	if err != nil {
		return nil, err
	}
	return PickDoctor(available, load, department), nil
}

// CallNext claims the highest-priority waiting entry, for one doctor's queue
// when doctorID is set or across the whole day otherwise. Returns ErrNotFound
// when nobody is waiting.
func (s *Service) CallNext(ctx context.Context, doctorID *uuid.UUID) (*Entry, error) {
	entry, err := s.repo.ClaimNext(ctx, dayOf(time.Now()), doctorID)
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		if err := s.notifier.QueueCalled(ctx, entry.PatientID, entry.QueueNumber); err != nil {
			log.Warn().Err(err).Str("entry_id", entry.ID.String()).Msg("queue called notification failed")
		}
	}
	s.publish(ctx, "queue.called", entry)

	return entry, nil
}

// StartServing moves a waiting or called entry to serving.
func (s *Service) StartServing(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return s.transition(ctx, id, StatusServing, "queue.serving", nil)
}

// MarkServed completes an entry. Both called and serving entries can complete
// directly; clinics that skip StartServing still close out correctly. The
// backing appointment is fulfilled as a side effect.
func (s *Service) MarkServed(ctx context.Context, id uuid.UUID) (*Entry, error) {
	entry, err := s.transition(ctx, id, StatusCompleted, "queue.completed", nil)
	if err != nil {
		return nil, err
	}
	if err := s.appts.UpdateStatus(ctx, entry.AppointmentID, appointment.StatusFulfilled); err != nil {
		log.Warn().Err(err).Str("appointment_id", entry.AppointmentID.String()).Msg("fulfill appointment failed")
	}
	return entry, nil
}

// Requeue puts a called entry back to waiting, keeping its score and queue
// number, for patients who miss their call but are still around.
func (s *Service) Requeue(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return s.transition(ctx, id, StatusWaiting, "queue.requeued", nil)
}

// MarkNoShow closes an entry whose patient never appeared and flags the
// appointment accordingly.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID, reason string) (*Entry, error) {
	entry, err := s.transition(ctx, id, StatusNoShow, "queue.no_show", optional(reason))
	if err != nil {
		return nil, err
	}
	if err := s.appts.UpdateStatus(ctx, entry.AppointmentID, appointment.StatusNoShow); err != nil {
		log.Warn().Err(err).Str("appointment_id", entry.AppointmentID.String()).Msg("no-show appointment failed")
	}
	return entry, nil
}

// Cancel closes an entry at the patient's or clinic's request.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Entry, error) {
	return s.transition(ctx, id, StatusCancelled, "queue.cancelled", optional(reason))
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, eventType string, reason *string) (*Entry, error) {
	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := entry.Transition(to, time.Now().UTC()); err != nil {
		return nil, err
	}
	if reason != nil {
		entry.Reason = reason
	}
	if err := s.repo.Update(ctx, entry); err != nil {
		return nil, err
	}
	s.publish(ctx, eventType, entry)
	return entry, nil
}

// ReorderItem is one staff score override.
type ReorderItem struct {
	EntryID  uuid.UUID `json:"entry_id"`
	NewScore int       `json:"priority_score"`
}

// Reorder applies manual score overrides for front-desk escalations the
// scorer cannot know about. Only waiting entries are touched; any other
// target is returned unchanged rather than failing the batch.
func (s *Service) Reorder(ctx context.Context, items []ReorderItem) ([]*Entry, error) {
	out := make([]*Entry, 0, len(items))
	for _, item := range items {
		entry, err := s.repo.GetByID(ctx, item.EntryID)
		if err != nil {
			return nil, err
		}
		if entry.Status != StatusWaiting {
			out = append(out, entry)
			continue
		}
		entry.PriorityScore = item.NewScore
		if err := s.repo.Update(ctx, entry); err != nil {
			return nil, err
		}
		s.publish(ctx, "queue.reprioritized", entry)
		out = append(out, entry)
	}
	return out, nil
}

// Get returns a single entry.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return s.repo.GetByID(ctx, id)
}

// PositionOf reports where an entry stands. Waiting entries get a live rank
// and wait estimate; called and serving entries are at the front with nothing
// ahead; terminal entries report rank zero.
func (s *Service) PositionOf(ctx context.Context, id uuid.UUID) (*Position, error) {
	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.positionFor(ctx, entry)
}

// StatusOf resolves a patient or appointment ID to the position of its active
// entry. The ID is tried as an appointment first, then as a patient. Returns
// ErrNotFound when neither has an active entry.
func (s *Service) StatusOf(ctx context.Context, ref uuid.UUID) (*Position, error) {
	entry, err := s.repo.GetActiveByAppointment(ctx, ref)
	if err == ErrNotFound {
		entry, err = s.repo.GetActiveByPatient(ctx, ref)
	}
	if err != nil {
		return nil, err
	}
	return s.positionFor(ctx, entry)
}

func (s *Service) positionFor(ctx context.Context, entry *Entry) (*Position, error) {
	pos := &Position{
		EntryID:        entry.ID,
		QueueNumber:    entry.QueueNumber,
		Status:         entry.Status,
		EffectiveScore: EffectiveScore(entry, time.Now().UTC()),
	}

	active, err := s.repo.ListActive(ctx, entry.AdmissionDay, entry.DoctorID)
	if err != nil {
		return nil, err
	}
	for _, e := range active {
		if e.Status == StatusWaiting {
			pos.TotalWaiting++
		}
	}

	if entry.Status == StatusWaiting {
		rank, err := s.repo.Rank(ctx, entry)
		if err != nil {
			return nil, err
		}
		pos.Rank = rank
		pos.AheadCount = rank - 1
		pos.EstimatedMinutes = EstimateWaitMinutes(rank, s.avgServiceMins)
	}
	return pos, nil
}

// BoardEntry is one row of the live queue board.
type BoardEntry struct {
	Entry            *Entry `json:"entry"`
	Rank             int    `json:"rank"`
	EstimatedMinutes int    `json:"estimated_wait_minutes"`
	EffectiveScore   int    `json:"effective_score"`
}

// Board returns the day's active entries in effective-priority order.
// Waiting entries are ranked 1..n; called and serving entries appear in the
// same ordering but carry no rank.
func (s *Service) Board(ctx context.Context, day time.Time, doctorID *uuid.UUID) ([]*BoardEntry, error) {
	entries, err := s.repo.ListActive(ctx, dayOf(day), doctorID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	board := make([]*BoardEntry, 0, len(entries))
	rank := 0
	for _, e := range entries {
		be := &BoardEntry{Entry: e, EffectiveScore: EffectiveScore(e, now)}
		if e.Status == StatusWaiting {
			rank++
			be.Rank = rank
			be.EstimatedMinutes = EstimateWaitMinutes(rank, s.avgServiceMins)
		}
		board = append(board, be)
	}
	return board, nil
}

// List pages through a day's entries, optionally filtered by status.
func (s *Service) List(ctx context.Context, day time.Time, status Status, limit, offset int) ([]*Entry, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, fmt.Errorf("invalid status %q", status)
	}
	return s.repo.List(ctx, dayOf(day), status, limit, offset)
}

// Stats summarizes a day's queue activity, for one doctor's cohort when
// doctorID is set.
func (s *Service) Stats(ctx context.Context, day time.Time, doctorID *uuid.UUID) (*Stats, error) {
	return s.repo.Stats(ctx, dayOf(day), doctorID)
}

func (s *Service) publish(ctx context.Context, eventType string, entry *Entry) {
	if s.events == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	event := websocket.Event{
		Type:         eventType,
		Topic:        "queue",
		ResourceType: "QueueEntry",
		ResourceID:   entry.ID.String(),
		Timestamp:    time.Now().UTC(),
		Data:         data,
	}
	if err := s.events.Publish(ctx, event); err != nil {
		log.Warn().Err(err).Str("event", eventType).Msg("queue event publish failed")
	}
	if entry.DoctorID != nil {
		event.Topic = "queue:doctor:" + entry.DoctorID.String()
		if err := s.events.Publish(ctx, event); err != nil {
			log.Warn().Err(err).Str("event", eventType).Msg("queue doctor event publish failed")
		}
	}
}
