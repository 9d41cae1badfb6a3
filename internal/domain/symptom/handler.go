package symptom

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the checker on a patient-gated group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/symptoms/check", h.Check)
}

func (h *Handler) Check(c echo.Context) error {
	var req CheckRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Check(c.Request().Context(), req)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, res)
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrRemote):
		return echo.NewHTTPError(http.StatusBadGateway, "the symptom checker is unavailable, please try again later")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
