package prescription

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carepoint/portal/internal/domain/session"
)

type Handler struct {
	svc       *Service
	reference []ReferenceMedication
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, reference: DefaultReference()}
}

// RegisterRoutes mounts the prescription routes on a doctor-gated group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/prescriptions", h.List)
	g.POST("/prescriptions", h.Create)
	g.POST("/prescriptions/:id/fill", h.MarkFilled)
	g.GET("/medications", h.Medications)
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	uid, _ := session.Caller(c)
	p, err := h.svc.Create(c.Request().Context(), uid, req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) List(c echo.Context) error {
	status := Status(c.QueryParam("status"))
	if status != "" && status != StatusPending && status != StatusFilled {
		return echo.NewHTTPError(http.StatusBadRequest, "status must be Pending or Filled")
	}
	uid, _ := session.Caller(c)
	list, err := h.svc.List(c.Request().Context(), uid, status)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) MarkFilled(c echo.Context) error {
	uid, _ := session.Caller(c)
	p, err := h.svc.MarkFilled(c.Request().Context(), uid, c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// Medications serves the medication reference, optionally narrowed by ?q=.
func (h *Handler) Medications(c echo.Context) error {
	return c.JSON(http.StatusOK, searchReference(h.reference, c.QueryParam("q")))
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyFilled):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
