package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/claim-bot/internal/lifecycle"
	"github.com/iliyamo/claim-bot/internal/model"
	"github.com/iliyamo/claim-bot/internal/repository"
)

// EventHandler exposes event administration over HTTP, mirroring the
// create_event/update_event message commands for operators who prefer a
// web UI.
type EventHandler struct {
	Lifecycle *lifecycle.Manager
	Events    *repository.EventRepo
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(lc *lifecycle.Manager, events *repository.EventRepo) *EventHandler {
	if lc == nil || events == nil {
		panic("nil dependency passed to NewEventHandler")
	}
	return &EventHandler{Lifecycle: lc, Events: events}
}

type eventReq struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Code         string    `json:"code"`
	StartDate    time.Time `json:"start_date"`
	ExpiryDate   time.Time `json:"expiry_date"`
	MinimumAge   int       `json:"minimum_age"`
	MinimumKarma int       `json:"minimum_karma"`
}

type eventUpdateReq struct {
	Name         *string    `json:"name"`
	Description  *string    `json:"description"`
	Code         *string    `json:"code"`
	StartDate    *time.Time `json:"start_date"`
	ExpiryDate   *time.Time `json:"expiry_date"`
	MinimumAge   *int       `json:"minimum_age"`
	MinimumKarma *int       `json:"minimum_karma"`
}

// Create handles POST /v1/events.
func (h *EventHandler) Create(c echo.Context) error {
	var req eventReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ev, err := h.Lifecycle.CreateEvent(c.Request().Context(), &model.Event{
		ID:           req.ID,
		Name:         req.Name,
		Description:  req.Description,
		Code:         req.Code,
		StartDate:    req.StartDate,
		ExpiryDate:   req.ExpiryDate,
		MinimumAge:   req.MinimumAge,
		MinimumKarma: req.MinimumKarma,
	})
	switch {
	case err == nil:
		return c.JSON(http.StatusCreated, ev)
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "event id or code already exists"})
	case errors.Is(err, lifecycle.ErrInvalidWindow):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
}

// Update handles PUT /v1/events/:id.  Only provided fields are applied.
func (h *EventHandler) Update(c echo.Context) error {
	id := c.Param("id")
	var req eventUpdateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ev, err := h.Lifecycle.UpdateEvent(c.Request().Context(), id, model.EventUpdate{
		Name:         req.Name,
		Description:  req.Description,
		Code:         req.Code,
		StartDate:    req.StartDate,
		ExpiryDate:   req.ExpiryDate,
		MinimumAge:   req.MinimumAge,
		MinimumKarma: req.MinimumKarma,
	})
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, ev)
	case errors.Is(err, repository.ErrEventNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "event code already exists"})
	case errors.Is(err, lifecycle.ErrInvalidWindow):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
}

// Get handles GET /v1/events/:id.
func (h *EventHandler) Get(c echo.Context) error {
	ev, err := h.Events.GetByID(c.Request().Context(), c.Param("id"))
	if errors.Is(err, repository.ErrEventNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, ev)
}

// List handles GET /v1/events.
func (h *EventHandler) List(c echo.Context) error {
	events, err := h.Events.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": events})
}
