package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/carepoint/portal/internal/domain/session"
	"github.com/carepoint/portal/internal/platform/auth"
	"github.com/carepoint/portal/internal/platform/kv"
)

type recordingNotifier struct {
	mu      sync.Mutex
	signIns []string
	expires []time.Time
	signOut []string
}

func (n *recordingNotifier) SignedIn(sid, uid string, expiresAt time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.signIns = append(n.signIns, sid+"/"+uid)
	n.expires = append(n.expires, expiresAt)
}

func (n *recordingNotifier) SignedOut(sid string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.signOut = append(n.signOut, sid)
}

var testCatalog = DoctorCatalogFunc(func(_ context.Context, id string) bool {
	return id == "1" || id == "2"
})

func newTestService() (*Service, *recordingNotifier) {
	store := kv.NewMemoryStore()
	tokens := auth.NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), "portal", time.Hour)
	svc := NewService(NewUserRepoKV(store), NewSessionStoreKV(store), tokens, testCatalog, zerolog.Nop())
	n := &recordingNotifier{}
	svc.SetNotifier(n)
	return svc, n
}

func validSignUp() SignUpRequest {
	return SignUpRequest{
		Email:     "Jane.Doe@Example.com ",
		Password:  "s3cret-pass",
		FirstName: "Jane",
		LastName:  "Doe",
		Role:      "patient",
	}
}

func TestSignUp_Validation(t *testing.T) {
	svc, _ := newTestService()
	tests := []struct {
		name   string
		mutate func(*SignUpRequest)
	}{
		{"bad email", func(r *SignUpRequest) { r.Email = "not-an-email" }},
		{"short password", func(r *SignUpRequest) { r.Password = "short" }},
		{"missing first name", func(r *SignUpRequest) { r.FirstName = " " }},
		{"missing last name", func(r *SignUpRequest) { r.LastName = "" }},
		{"bad role", func(r *SignUpRequest) { r.Role = "admin" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validSignUp()
			tt.mutate(&req)
			if _, err := svc.SignUp(context.Background(), req); !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestSignUp_NormalizesAndRejectsDuplicate(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	u, err := svc.SignUp(ctx, validSignUp())
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if u.Email != "jane.doe@example.com" {
		t.Errorf("expected normalized email, got %q", u.Email)
	}
	if u.PasswordHash == "" || u.PasswordHash == "s3cret-pass" {
		t.Error("expected a bcrypt hash")
	}

	dup := validSignUp()
	dup.Email = "JANE.DOE@example.com"
	if _, err := svc.SignUp(ctx, dup); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}
}

func doctorSignUp(email, doctorID string) SignUpRequest {
	req := validSignUp()
	req.Email = email
	req.Role = "doctor"
	req.DoctorID = doctorID
	return req
}

func TestSignUp_DoctorLink(t *testing.T) {
	tests := []struct {
		name     string
		doctorID string
		want     error
	}{
		{"missing doctor_id", " ", ErrValidation},
		{"not in catalog", "does-not-exist", ErrValidation},
		{"linked", "1", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService()
			_, err := svc.SignUp(context.Background(), doctorSignUp("dr@example.com", tt.doctorID))
			if tt.want == nil && err != nil {
				t.Fatalf("sign up: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSignUp_DoctorLinkedOnce(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.SignUp(ctx, doctorSignUp("wilson@example.com", "1")); err != nil {
		t.Fatalf("first doctor: %v", err)
	}
	if _, err := svc.SignUp(ctx, doctorSignUp("imp@example.com", "1")); !errors.Is(err, ErrDoctorLinked) {
		t.Errorf("expected ErrDoctorLinked, got %v", err)
	}

	// The rejected sign-up must not keep its email reserved.
	if _, err := svc.SignUp(ctx, doctorSignUp("imp@example.com", "2")); err != nil {
		t.Errorf("expected email to be free after a rejected link, got %v", err)
	}
}

func TestSignIn_IssuesSessionAndNotifies(t *testing.T) {
	svc, n := newTestService()
	ctx := context.Background()
	u, _ := svc.SignUp(ctx, validSignUp())

	res, err := svc.SignIn(ctx, SignInRequest{Email: "jane.doe@example.com", Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if len(n.signIns) != 1 || n.signIns[0] != res.SessionID+"/"+u.ID.String() {
		t.Errorf("expected SIGNED_IN for the new session, got %v", n.signIns)
	}

	p, err := svc.Authenticate(ctx, res.Token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.UserID != u.ID.String() || p.SessionID != res.SessionID || !p.ExpiresAt.Equal(res.ExpiresAt) {
		t.Errorf("unexpected principal %+v", p)
	}
	if len(n.expires) != 1 || !n.expires[0].Equal(res.ExpiresAt) {
		t.Errorf("expected SIGNED_IN to carry the session expiry, got %v", n.expires)
	}
}

func TestSignIn_BadCredentials(t *testing.T) {
	svc, n := newTestService()
	ctx := context.Background()
	svc.SignUp(ctx, validSignUp())

	if _, err := svc.SignIn(ctx, SignInRequest{Email: "jane.doe@example.com", Password: "wrong-pass"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := svc.SignIn(ctx, SignInRequest{Email: "nobody@example.com", Password: "whatever1"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
	if len(n.signIns) != 0 {
		t.Error("failed sign in must not notify")
	}
}

func TestSignOut_RevokesSession(t *testing.T) {
	svc, n := newTestService()
	ctx := context.Background()
	svc.SignUp(ctx, validSignUp())
	res, _ := svc.SignIn(ctx, SignInRequest{Email: "jane.doe@example.com", Password: "s3cret-pass"})

	if err := svc.SignOut(ctx, res.SessionID); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if len(n.signOut) != 1 || n.signOut[0] != res.SessionID {
		t.Errorf("expected SIGNED_OUT for session, got %v", n.signOut)
	}
	if _, err := svc.Authenticate(ctx, res.Token); !errors.Is(err, ErrSessionRevoked) {
		t.Errorf("expected ErrSessionRevoked after sign out, got %v", err)
	}
}

func TestAuthenticate_ExpiredSessionRecord(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	svc.SignUp(ctx, validSignUp())
	res, _ := svc.SignIn(ctx, SignInRequest{Email: "jane.doe@example.com", Password: "s3cret-pass"})

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := svc.Authenticate(ctx, res.Token); !errors.Is(err, ErrSessionRevoked) {
		t.Errorf("expected expired session to be rejected, got %v", err)
	}
}

func TestLookupRole(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	req := validSignUp()
	req.Role = "doctor"
	req.DoctorID = "1"
	u, _ := svc.SignUp(ctx, req)

	role, err := svc.LookupRole(ctx, u.ID.String())
	if err != nil || role != session.RoleDoctor {
		t.Fatalf("expected doctor, got %q %v", role, err)
	}
	if _, err := svc.LookupRole(ctx, "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	p, _ := svc.Profile(ctx, u.ID.String())
	if p.DoctorID != "1" || p.FullName() != "Jane Doe" {
		t.Errorf("unexpected profile %+v", p)
	}
}

func TestDoctorIDFor(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	req := validSignUp()
	req.Role = "doctor"
	req.DoctorID = "2"
	doc, _ := svc.SignUp(ctx, req)

	patientReq := validSignUp()
	patientReq.Email = "pat@example.com"
	patientReq.DoctorID = "1"
	pat, _ := svc.SignUp(ctx, patientReq)

	if id, err := svc.DoctorIDFor(ctx, doc.ID.String()); err != nil || id != "2" {
		t.Errorf("expected linked doctor 2, got %q %v", id, err)
	}
	if id, err := svc.DoctorIDFor(ctx, pat.ID.String()); err != nil || id != "" {
		t.Errorf("patients are never linked, got %q %v", id, err)
	}
}

func TestIsPatient(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	pat, _ := svc.SignUp(ctx, validSignUp())
	doc, _ := svc.SignUp(ctx, doctorSignUp("dr@example.com", "2"))

	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"patient", pat.ID.String(), true},
		{"doctor", doc.ID.String(), false},
		{"unknown uuid", "6f1c1a4e-8f43-4a8e-9d7b-2a1d3c4b5e6f", false},
		{"not a uuid", "p-1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.IsPatient(ctx, tt.id)
			if err != nil || got != tt.want {
				t.Errorf("IsPatient(%s) = %v, %v; want %v", tt.id, got, err, tt.want)
			}
		})
	}
}
