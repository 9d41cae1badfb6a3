package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carepoint/portal/internal/domain/appointment"
	"github.com/carepoint/portal/internal/domain/identity"
	"github.com/carepoint/portal/internal/domain/session"
	"github.com/carepoint/portal/internal/platform/auth"
	"github.com/carepoint/portal/internal/platform/kv"
)

type mockProfiles map[string]*identity.User

func (m mockProfiles) Profile(_ context.Context, userID string) (*identity.User, error) {
	u, ok := m[userID]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return u, nil
}

var now = time.Date(2025, time.April, 15, 9, 0, 0, 0, time.UTC)

func newHandler(profiles mockProfiles) (*Handler, *appointment.Registry) {
	reg := appointment.NewRegistry(appointment.Options{
		Repo:    appointment.NewRepository(kv.NewMemoryStore()),
		Catalog: appointment.NewStaticCatalog(appointment.DefaultDoctors()...),
		Logger:  zerolog.Nop(),
		Now:     func() time.Time { return now },
	})
	return NewHandler(profiles, reg, func() time.Time { return now }), reg
}

func call(h echo.HandlerFunc, userID string, role session.Role) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	auth.WithIdentity(c, userID, "sess", string(role))
	if err := h(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestPatientDashboard(t *testing.T) {
	pid := uuid.NewString()
	h, reg := newHandler(mockProfiles{pid: {FirstName: "Ada", LastName: "Lovelace", Role: session.RolePatient}})
	ctx := context.Background()
	today := appointment.DateOf(now)
	m := reg.For(pid)
	if _, err := m.Book(ctx, appointment.BookRequest{DoctorID: "2", Date: today.AddDays(5), Time: "9:00 AM"}, today); err != nil {
		t.Fatal(err)
	}
	soon, err := m.Book(ctx, appointment.BookRequest{DoctorID: "1", Date: today.AddDays(2), Time: "2:00 PM"}, today)
	if err != nil {
		t.Fatal(err)
	}

	rec := call(h.Patient, pid, session.RolePatient)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp PatientDashboard
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Counts.Upcoming != 2 || resp.Counts.Ongoing != 0 || resp.Counts.Past != 0 {
		t.Errorf("unexpected counts %+v", resp.Counts)
	}
	if resp.Next == nil || resp.Next.ID != soon.ID {
		t.Errorf("expected the earliest upcoming appointment as next, got %+v", resp.Next)
	}
	if resp.Profile.FirstName != "Ada" {
		t.Errorf("unexpected profile %+v", resp.Profile)
	}
}

func TestDoctorDashboard(t *testing.T) {
	did := uuid.NewString()
	h, _ := newHandler(mockProfiles{did: {FirstName: "Michael", LastName: "Chen", Role: session.RoleDoctor, DoctorID: "2"}})

	rec := call(h.Doctor, did, session.RoleDoctor)
	var resp DoctorDashboard
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Doctor == nil || resp.Doctor.Speciality != "Cardiologist" {
		t.Errorf("expected linked catalog entry, got %+v", resp.Doctor)
	}
}

func TestDashboard_MissingProfile(t *testing.T) {
	h, _ := newHandler(mockProfiles{})
	if rec := call(h.Doctor, "ghost", session.RoleDoctor); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
