package identity

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/carepoint/portal/internal/domain/session"
	"github.com/carepoint/portal/internal/platform/auth"
)

type Handler struct {
	svc  *Service
	gate *session.Gate
	wait time.Duration
}

// NewHandler builds the auth handler. wait bounds how long sign-in waits for
// the role lookup before answering without a redirect.
func NewHandler(svc *Service, gate *session.Gate, wait time.Duration) *Handler {
	return &Handler{svc: svc, gate: gate, wait: wait}
}

func (h *Handler) RegisterRoutes(g *echo.Group, limit echo.MiddlewareFunc) {
	g.POST("/auth/sign-up", h.SignUp, limit)
	g.POST("/auth/sign-in", h.SignIn, limit)

	signedIn := g.Group("", h.gate.Require(""))
	signedIn.POST("/auth/sign-out", h.SignOut)
	signedIn.GET("/auth/me", h.Me)
}

func (h *Handler) SignUp(c echo.Context) error {
	var req SignUpRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.SignUp(c.Request().Context(), req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, u)
}

type signInResponse struct {
	*SignInResult
	Session  session.Session  `json:"session"`
	Decision session.Decision `json:"decision"`
}

// SignIn answers once the new session has resolved so the client can follow
// the redirect to its role's dashboard.
func (h *Handler) SignIn(c echo.Context) error {
	var req SignInRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.SignIn(c.Request().Context(), req)
	if err != nil {
		return mapError(err)
	}

	resp := signInResponse{SignInResult: res, Session: session.Unknown(), Decision: session.Decision{Kind: session.DecisionNone}}
	if holder, ok := h.gate.Sessions().Get(res.SessionID); ok {
		ctx, cancel := context.WithTimeout(c.Request().Context(), h.wait)
		defer cancel()
		resp.Session = holder.Resolve(ctx)
		resp.Decision = session.EvaluateLogin(resp.Session)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) SignOut(c echo.Context) error {
	sid := auth.SessionIDFromContext(c.Request().Context())
	if err := h.svc.SignOut(c.Request().Context(), sid); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, session.Evaluate(session.Unauthenticated(), ""))
}

func (h *Handler) Me(c echo.Context) error {
	uid, _ := session.Caller(c)
	u, err := h.svc.Profile(c.Request().Context(), uid)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrDoctorLinked):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrSessionRevoked):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
