// Package dashboard serves the landing pages each role is redirected to
// after sign-in.
package dashboard

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/carepoint/portal/internal/domain/appointment"
	"github.com/carepoint/portal/internal/domain/identity"
	"github.com/carepoint/portal/internal/domain/session"
)

// Profiles looks up the signed-in user's account.
type Profiles interface {
	Profile(ctx context.Context, userID string) (*identity.User, error)
}

type Handler struct {
	profiles     Profiles
	appointments *appointment.Registry
	clock        func() time.Time
}

func NewHandler(profiles Profiles, appointments *appointment.Registry, clock func() time.Time) *Handler {
	if clock == nil {
		clock = time.Now
	}
	return &Handler{profiles: profiles, appointments: appointments, clock: clock}
}

// RegisterRoutes mounts the dashboards on role-gated groups. The paths match
// session.PatientDashboardPath and session.DoctorDashboardPath.
func (h *Handler) RegisterRoutes(patient, doctor *echo.Group) {
	patient.GET("/dashboard", h.Patient)
	doctor.GET("/dashboard", h.Doctor)
}

type Counts struct {
	Ongoing  int `json:"ongoing"`
	Upcoming int `json:"upcoming"`
	Past     int `json:"past"`
}

type PatientDashboard struct {
	Profile *identity.User           `json:"profile"`
	Counts  Counts                   `json:"counts"`
	Next    *appointment.Appointment `json:"next,omitempty"`
}

type DoctorDashboard struct {
	Profile *identity.User      `json:"profile"`
	Doctor  *appointment.Doctor `json:"doctor,omitempty"`
}

func (h *Handler) Patient(c echo.Context) error {
	uid, _ := session.Caller(c)
	ctx := c.Request().Context()
	profile, err := h.profile(ctx, uid)
	if err != nil {
		return err
	}

	v, err := h.appointments.For(uid).Views(ctx, appointment.DateOf(h.clock()))
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	resp := PatientDashboard{
		Profile: profile,
		Counts:  Counts{Ongoing: len(v.Ongoing), Upcoming: len(v.Upcoming), Past: len(v.Past)},
		Next:    nextAppointment(v),
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) Doctor(c echo.Context) error {
	uid, _ := session.Caller(c)
	ctx := c.Request().Context()
	profile, err := h.profile(ctx, uid)
	if err != nil {
		return err
	}

	resp := DoctorDashboard{Profile: profile}
	if profile.DoctorID != "" {
		if d, ok := h.appointments.Catalog().Doctor(ctx, profile.DoctorID); ok {
			resp.Doctor = d
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) profile(ctx context.Context, uid string) (*identity.User, error) {
	u, err := h.profiles.Profile(ctx, uid)
	switch {
	case err == nil:
		return u, nil
	case errors.Is(err, identity.ErrNotFound):
		return nil, echo.NewHTTPError(http.StatusNotFound, "profile not found")
	default:
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "could not load profile")
	}
}

// nextAppointment picks the earliest ongoing appointment, then the earliest
// upcoming one.
func nextAppointment(v appointment.Views) *appointment.Appointment {
	for _, bucket := range [][]appointment.Appointment{v.Ongoing, v.Upcoming} {
		var best *appointment.Appointment
		for i := range bucket {
			if best == nil || bucket[i].Date.Before(best.Date) {
				best = &bucket[i]
			}
		}
		if best != nil {
			return best
		}
	}
	return nil
}
