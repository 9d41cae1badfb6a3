package session

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carepoint/portal/internal/platform/auth"
	"github.com/carepoint/portal/internal/platform/events"
	"github.com/carepoint/portal/internal/platform/websocket"
)

const EventDecision = "session.decision"

type Handler struct {
	gate *Gate
	hub  *websocket.Hub
}

func NewHandler(gate *Gate, hub *websocket.Hub) *Handler {
	return &Handler{gate: gate, hub: hub}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/session", h.GetSession)
	g.GET("/session/stream", h.Stream)
}

type sessionResponse struct {
	Session  Session  `json:"session"`
	Decision Decision `json:"decision"`
}

// GetSession is the one-shot check a view performs on mount. The optional
// role query parameter names the role the view requires; view=login gates
// the login page instead.
func (h *Handler) GetSession(c echo.Context) error {
	role, err := requiredRole(c)
	if err != nil {
		return err
	}
	_, s := h.gate.Current(c)

	d := Evaluate(s, role)
	if c.QueryParam("view") == "login" {
		d = EvaluateLogin(s)
	}
	h.gate.observe(d)
	return c.JSON(http.StatusOK, sessionResponse{Session: s, Decision: d})
}

// Stream upgrades to a WebSocket that receives a decision every time the
// session changes, plus the patient's appointment events. The session
// listener is released when the socket closes.
func (h *Handler) Stream(c echo.Context) error {
	role, err := requiredRole(c)
	if err != nil {
		return err
	}
	token, err := auth.BearerToken(c)
	if err != nil {
		return redirectError(http.StatusUnauthorized, "authentication required", LoginPath)
	}
	p, err := h.gate.auth.Authenticate(c.Request().Context(), token)
	if err != nil {
		return redirectError(http.StatusUnauthorized, "authentication required", LoginPath)
	}

	holder, ok := h.gate.sessions.Ensure(p.SessionID, p.UserID, p.ExpiresAt)
	if !ok {
		return redirectError(http.StatusUnauthorized, "authentication required", LoginPath)
	}
	client, err := h.hub.Upgrade(c, events.PatientTopic(p.UserID))
	if err != nil {
		return err
	}

	unsubscribe := Watch(holder, role, func(d Decision) {
		h.gate.observe(d)
		ev, err := websocket.NewEvent(EventDecision, d)
		if err != nil {
			return
		}
		client.Push(ev)
	})
	go func() {
		<-client.Done()
		unsubscribe()
	}()
	return nil
}

func requiredRole(c echo.Context) (Role, error) {
	raw := c.QueryParam("role")
	if raw == "" {
		return "", nil
	}
	role, err := ParseRole(raw)
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return role, nil
}
