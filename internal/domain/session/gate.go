package session

const (
	LoginPath            = "/login"
	PatientDashboardPath = "/patient/dashboard"
	DoctorDashboardPath  = "/doctor/dashboard"
)

type DecisionKind string

const (
	// DecisionNone means the session is still resolving; no navigation.
	DecisionNone          DecisionKind = "none"
	DecisionAllow         DecisionKind = "allow"
	DecisionRedirectLogin DecisionKind = "redirect_login"
	DecisionRedirectHome  DecisionKind = "redirect_home"
)

// Decision is the outcome of gating a view. Target is set for redirects;
// UserID and Role are set when the view may render.
type Decision struct {
	Kind   DecisionKind `json:"kind"`
	Target string       `json:"target,omitempty"`
	UserID string       `json:"user_id,omitempty"`
	Role   Role         `json:"role,omitempty"`
}

// HomeFor returns the dashboard path for role.
func HomeFor(role Role) string {
	if role == RoleDoctor {
		return DoctorDashboardPath
	}
	return PatientDashboardPath
}

// Evaluate gates a view that requires role. An empty role admits any
// authenticated session. A role mismatch sends the caller to the home of
// the role they actually have.
func Evaluate(s Session, required Role) Decision {
	switch s.Status {
	case StatusAuthenticated:
		if required != "" && s.Role != required {
			return Decision{Kind: DecisionRedirectHome, Target: HomeFor(s.Role)}
		}
		return Decision{Kind: DecisionAllow, UserID: s.UserID, Role: s.Role}
	case StatusUnauthenticated:
		return Decision{Kind: DecisionRedirectLogin, Target: LoginPath}
	default:
		return Decision{Kind: DecisionNone}
	}
}

// EvaluateLogin gates the login view itself: a signed-in user is sent to
// their home, anyone else stays.
func EvaluateLogin(s Session) Decision {
	if s.Status == StatusAuthenticated {
		return Decision{Kind: DecisionRedirectHome, Target: HomeFor(s.Role), UserID: s.UserID, Role: s.Role}
	}
	return Decision{Kind: DecisionNone}
}

// Watch observes h and calls onDecision for every state change that yields
// a decision. Unknown states produce no call. The returned function must be
// called when the watching view goes away.
func Watch(h *Holder, required Role, onDecision func(Decision)) Unsubscribe {
	return h.Subscribe(func(s Session) {
		d := Evaluate(s, required)
		if d.Kind == DecisionNone {
			return
		}
		onDecision(d)
	})
}
