package queue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicflow/clinicflow/internal/domain/appointment"
)

func newTestHandler(t *testing.T) (*Handler, *fixture, *echo.Echo) {
	t.Helper()
	f := newFixture()
	return NewHandler(f.svc), f, echo.New()
}

func TestHandler_Admit(t *testing.T) {
	h, f, e := newTestHandler(t)
	appt := f.bookAppointment(t, appointment.UrgencyNormal)

	body := `{"appointment_id":"` + appt.ID.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Admit(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var entry Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if entry.QueueNumber != 1 {
		t.Errorf("expected queue number 1, got %d", entry.QueueNumber)
	}
}

func TestHandler_Admit_MissingAppointmentID(t *testing.T) {
	h, _, e := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Admit(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_Admit_UnknownAppointment(t *testing.T) {
	h, _, e := newTestHandler(t)

	body := `{"appointment_id":"` + uuid.New().String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Admit(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_Admit_DuplicateConflict(t *testing.T) {
	h, f, e := newTestHandler(t)
	appt := f.bookAppointment(t, appointment.UrgencyNormal)
	if _, err := f.svc.Admit(context.Background(), appt.ID, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := `{"appointment_id":"` + appt.ID.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Admit(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusConflict {
		t.Errorf("expected 409, got %v", err)
	}
}

func TestHandler_CallNext(t *testing.T) {
	h, f, e := newTestHandler(t)
	appt := f.bookAppointment(t, appointment.UrgencyNormal)
	if _, err := f.svc.Admit(context.Background(), appt.ID, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CallNext(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_CallNext_EmptyQueue(t *testing.T) {
	h, _, e := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.CallNext(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_CallNext_InvalidDoctorID(t *testing.T) {
	h, _, e := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/?doctor_id=nope", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.CallNext(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_Position(t *testing.T) {
	h, f, e := newTestHandler(t)
	appt := f.bookAppointment(t, appointment.UrgencyNormal)
	entry, err := f.svc.Admit(context.Background(), appt.ID, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(entry.ID.String())

	if err := h.Position(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var pos Position
	if err := json.Unmarshal(rec.Body.Bytes(), &pos); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if pos.Rank != 1 {
		t.Errorf("expected rank 1, got %d", pos.Rank)
	}
}

func TestHandler_StatusOf_ByAppointment(t *testing.T) {
	h, f, e := newTestHandler(t)
	appt := f.bookAppointment(t, appointment.UrgencyNormal)
	entry, err := f.svc.Admit(context.Background(), appt.ID, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(appt.ID.String())

	if err := h.StatusOf(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var pos Position
	if err := json.Unmarshal(rec.Body.Bytes(), &pos); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if pos.EntryID != entry.ID || pos.TotalWaiting != 1 {
		t.Errorf("unexpected position %+v", pos)
	}
}

func TestHandler_StatusOf_Unknown(t *testing.T) {
	h, _, e := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.StatusOf(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_Cancel_WithReason(t *testing.T) {
	h, f, e := newTestHandler(t)
	appt := f.bookAppointment(t, appointment.UrgencyNormal)
	entry, err := f.svc.Admit(context.Background(), appt.ID, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"left early"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(entry.ID.String())

	if err := h.Cancel(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", got.Status)
	}
	if got.Reason == nil || *got.Reason != "left early" {
		t.Errorf("expected reason recorded, got %v", got.Reason)
	}
}

func TestHandler_NoShow_EmptyBody(t *testing.T) {
	h, f, e := newTestHandler(t)
	appt := f.bookAppointment(t, appointment.UrgencyNormal)
	entry, err := f.svc.Admit(context.Background(), appt.ID, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(entry.ID.String())

	if err := h.NoShow(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_Reorder(t *testing.T) {
	h, f, e := newTestHandler(t)
	appt := f.bookAppointment(t, appointment.UrgencyNormal)
	entry, err := f.svc.Admit(context.Background(), appt.ID, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := `[{"entry_id":"` + entry.ID.String() + `","priority_score":750}]`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Reorder(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var entries []*Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(entries) != 1 || entries[0].PriorityScore != 750 {
		t.Errorf("expected one entry with score 750, got %+v", entries)
	}
}

func TestHandler_Reorder_EmptyBody(t *testing.T) {
	h, _, e := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`[]`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Reorder(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_Complete_InvalidTransitionConflict(t *testing.T) {
	h, f, e := newTestHandler(t)
	appt := f.bookAppointment(t, appointment.UrgencyNormal)
	entry, err := f.svc.Admit(context.Background(), appt.ID, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(entry.ID.String())

	err = h.MarkServed(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusConflict {
		t.Errorf("expected 409, got %v", err)
	}
}

func TestHandler_Board(t *testing.T) {
	h, f, e := newTestHandler(t)
	appt := f.bookAppointment(t, appointment.UrgencyNormal)
	if _, err := f.svc.Admit(context.Background(), appt.ID, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Board(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var board []*BoardEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &board); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(board) != 1 {
		t.Errorf("expected 1 board entry, got %d", len(board))
	}
}

func TestHandler_Board_InvalidDate(t *testing.T) {
	h, _, e := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/?date=30-08-2026", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Board(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_Stats(t *testing.T) {
	h, f, e := newTestHandler(t)
	appt := f.bookAppointment(t, appointment.UrgencyNormal)
	if _, err := f.svc.Admit(context.Background(), appt.ID, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Stats(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var stats Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if stats.Total != 1 {
		t.Errorf("expected 1 total, got %d", stats.Total)
	}
}
