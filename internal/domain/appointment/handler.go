package appointment

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/carepoint/portal/internal/domain/session"
	"github.com/carepoint/portal/pkg/pagination"
)

// Directory resolves the accounts behind the doctor routes.
type Directory interface {
	// DoctorIDFor maps a doctor's user id to their catalog entry. An empty
	// id means the account is not linked to one.
	DoctorIDFor(ctx context.Context, userID string) (string, error)
	IsPatient(ctx context.Context, userID string) (bool, error)
}

type Handler struct {
	registry  *Registry
	directory Directory
	clock     func() time.Time
}

func NewHandler(registry *Registry, directory Directory, clock func() time.Time) *Handler {
	if clock == nil {
		clock = time.Now
	}
	return &Handler{registry: registry, directory: directory, clock: clock}
}

func (h *Handler) RegisterRoutes(patient, doctor *echo.Group) {
	patient.GET("/doctors", h.ListDoctors)
	patient.GET("/appointments", h.GetViews)
	patient.GET("/appointments/history", h.History)
	patient.POST("/appointments", h.Book)
	patient.POST("/appointments/sync", h.Sync)
	patient.POST("/appointments/:id/cancel", h.Cancel)
	patient.GET("/appointments/:id/book-again", h.BookAgain)

	doctor.GET("/patients/:patient_id/appointments", h.PatientAppointments)
	doctor.POST("/patients/:patient_id/appointments/:id/complete", h.Complete)
}

func (h *Handler) today() Date { return DateOf(h.clock()) }

func (h *Handler) manager(c echo.Context) *Manager {
	uid, _ := session.Caller(c)
	return h.registry.For(uid)
}

type mutationResponse struct {
	Appointment Appointment `json:"appointment"`
	Warning     string      `json:"warning,omitempty"`
}

// respondMutation keeps a write that failed to persist visible to the
// caller: the change is reported as applied along with a warning.
func respondMutation(c echo.Context, code int, a Appointment, err error) error {
	var perr *PersistenceError
	if err != nil && !(errors.As(err, &perr) && a.ID != "") {
		return mapError(err)
	}
	resp := mutationResponse{Appointment: a}
	if perr != nil {
		resp.Warning = perr.Error()
	}
	return c.JSON(code, resp)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	return c.JSON(http.StatusOK, h.registry.Catalog().Doctors(c.Request().Context()))
}

func (h *Handler) GetViews(c echo.Context) error {
	v, err := h.manager(c).Views(c.Request().Context(), h.today())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) History(c echo.Context) error {
	all, err := h.manager(c).All(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	pg := pagination.FromContext(c)
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Page(all, pg), len(all), pg.Limit, pg.Offset))
}

func (h *Handler) Book(c echo.Context) error {
	var req BookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.manager(c).Book(c.Request().Context(), req, h.today())
	return respondMutation(c, http.StatusCreated, a, err)
}

func (h *Handler) Cancel(c echo.Context) error {
	a, err := h.manager(c).Cancel(c.Request().Context(), c.Param("id"))
	return respondMutation(c, http.StatusOK, a, err)
}

func (h *Handler) BookAgain(c echo.Context) error {
	d, err := h.manager(c).BookAgain(c.Request().Context(), c.Param("id"), h.today())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Sync(c echo.Context) error {
	m := h.manager(c)
	if err := m.Flush(c.Request().Context()); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type patientAppointmentsResponse struct {
	Views Views         `json:"views"`
	All   []Appointment `json:"all"`
}

// doctorScope resolves the calling doctor's catalog entry and the manager
// of the patient named in the path. Unlinked doctors and unknown patients
// never reach a manager.
func (h *Handler) doctorScope(c echo.Context) (string, *Manager, error) {
	ctx := c.Request().Context()
	uid, _ := session.Caller(c)
	doctorID, err := h.directory.DoctorIDFor(ctx, uid)
	if err != nil {
		return "", nil, echo.NewHTTPError(http.StatusInternalServerError, "could not resolve doctor profile")
	}
	if doctorID == "" {
		return "", nil, echo.NewHTTPError(http.StatusForbidden, "doctor account is not linked to a catalog entry")
	}

	patientID := c.Param("patient_id")
	ok, err := h.directory.IsPatient(ctx, patientID)
	if err != nil {
		return "", nil, echo.NewHTTPError(http.StatusInternalServerError, "could not resolve patient")
	}
	if !ok {
		return "", nil, echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return doctorID, h.registry.For(patientID), nil
}

// PatientAppointments lists the patient's appointments with the calling
// doctor only.
func (h *Handler) PatientAppointments(c echo.Context) error {
	doctorID, m, err := h.doctorScope(c)
	if err != nil {
		return err
	}
	all, err := m.All(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	mine := make([]Appointment, 0, len(all))
	for _, a := range all {
		if a.DoctorID == doctorID {
			mine = append(mine, a)
		}
	}
	return c.JSON(http.StatusOK, patientAppointmentsResponse{Views: DeriveViews(mine, h.today()), All: mine})
}

func (h *Handler) Complete(c echo.Context) error {
	var req CompleteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	doctorID, m, err := h.doctorScope(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	appt, err := m.Get(ctx, c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	if appt.DoctorID != doctorID {
		return echo.NewHTTPError(http.StatusForbidden, "appointment belongs to another doctor")
	}

	a, err := m.Complete(ctx, appt.ID, req, h.today())
	return respondMutation(c, http.StatusOK, a, err)
}

func mapError(err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		if verr.Transition {
			return echo.NewHTTPError(http.StatusConflict, verr.Message)
		}
		return echo.NewHTTPError(http.StatusBadRequest, verr.Message)
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrPersistence):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
