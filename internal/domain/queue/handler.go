package queue

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicflow/clinicflow/internal/platform/auth"
	"github.com/clinicflow/clinicflow/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "doctor", "nurse", "registrar"))
	readGroup.GET("/queue/entries", h.List)
	readGroup.GET("/queue/entries/:id", h.Get)
	readGroup.GET("/queue/entries/:id/position", h.Position)
	readGroup.GET("/queue/status/:id", h.StatusOf)
	readGroup.GET("/queue/board", h.Board)
	readGroup.GET("/queue/stats", h.Stats)

	// Admission and cancellation happen at the front desk.
	deskGroup := api.Group("", auth.RequireRole("admin", "nurse", "registrar"))
	deskGroup.POST("/queue/admissions", h.Admit)
	deskGroup.POST("/queue/entries/:id/requeue", h.Requeue)
	deskGroup.POST("/queue/entries/:id/no-show", h.NoShow)
	deskGroup.POST("/queue/entries/:id/cancel", h.Cancel)
	deskGroup.POST("/queue/reorder", h.Reorder)

	// Calling and serving are clinical actions.
	clinicGroup := api.Group("", auth.RequireRole("admin", "doctor", "nurse"))
	clinicGroup.POST("/queue/call-next", h.CallNext)
	clinicGroup.POST("/queue/entries/:id/serve", h.StartServing)
	clinicGroup.POST("/queue/entries/:id/complete", h.MarkServed)
}

// httpError maps domain sentinels onto HTTP status codes.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAppointmentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyInQueue), errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrVersionConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

type admitRequest struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	Department    string    `json:"department"`
}

func (h *Handler) Admit(c echo.Context) error {
	var req admitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.AppointmentID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "appointment_id is required")
	}
	entry, err := h.svc.Admit(c.Request().Context(), req.AppointmentID, req.Department)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, entry)
}

func (h *Handler) CallNext(c echo.Context) error {
	var doctorID *uuid.UUID
	if raw := c.QueryParam("doctor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
		}
		doctorID = &id
	}
	entry, err := h.svc.CallNext(c.Request().Context(), doctorID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "queue is empty")
		}
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	entry, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) Position(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pos, err := h.svc.PositionOf(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pos)
}

func (h *Handler) StartServing(c echo.Context) error { return h.act(c, h.svc.StartServing) }
func (h *Handler) MarkServed(c echo.Context) error   { return h.act(c, h.svc.MarkServed) }
func (h *Handler) Requeue(c echo.Context) error      { return h.act(c, h.svc.Requeue) }

func (h *Handler) NoShow(c echo.Context) error { return h.actWithReason(c, h.svc.MarkNoShow) }
func (h *Handler) Cancel(c echo.Context) error { return h.actWithReason(c, h.svc.Cancel) }

// act runs one of the single-entry status operations.
func (h *Handler) act(c echo.Context, op func(ctx context.Context, id uuid.UUID) (*Entry, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	entry, err := op(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

// actWithReason is act for the closing operations that record why the entry
// left the queue. The body is optional.
func (h *Handler) actWithReason(c echo.Context, op func(ctx context.Context, id uuid.UUID, reason string) (*Entry, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	entry, err := op(c.Request().Context(), id, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) StatusOf(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pos, err := h.svc.StatusOf(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pos)
}

func (h *Handler) Reorder(c echo.Context) error {
	var items []ReorderItem
	if err := c.Bind(&items); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(items) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "at least one item is required")
	}
	entries, err := h.svc.Reorder(c.Request().Context(), items)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) Board(c echo.Context) error {
	day, err := dayParam(c)
	if err != nil {
		return err
	}
	var doctorID *uuid.UUID
	if raw := c.QueryParam("doctor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
		}
		doctorID = &id
	}
	board, err := h.svc.Board(c.Request().Context(), day, doctorID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, board)
}

func (h *Handler) List(c echo.Context) error {
	day, err := dayParam(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), day, Status(c.QueryParam("status")), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Stats(c echo.Context) error {
	day, err := dayParam(c)
	if err != nil {
		return err
	}
	var doctorID *uuid.UUID
	if raw := c.QueryParam("doctor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
		}
		doctorID = &id
	}
	stats, err := h.svc.Stats(c.Request().Context(), day, doctorID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func dayParam(c echo.Context) (time.Time, error) {
	raw := c.QueryParam("date")
	if raw == "" {
		return time.Now().UTC(), nil
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
	}
	return day, nil
}
