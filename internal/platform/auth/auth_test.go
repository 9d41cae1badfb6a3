package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func TestTokenIssuer_RoundTrip(t *testing.T) {
	iss := NewTokenIssuer(testKey, "portal", time.Hour)

	tok, exp, err := iss.Issue("user-1", "sess-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Error("expected expiry in the future")
	}

	claims, err := iss.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "user-1" || claims.SessionID != "sess-1" {
		t.Errorf("unexpected claims %+v", claims)
	}
}

func TestTokenIssuer_RejectsExpired(t *testing.T) {
	iss := NewTokenIssuer(testKey, "portal", time.Minute)
	base := time.Now()
	iss.now = func() time.Time { return base }
	tok, _, err := iss.Issue("user-1", "sess-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	iss.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, err := iss.Parse(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenIssuer_RejectsOtherKeyAndIssuer(t *testing.T) {
	tok, _, _ := NewTokenIssuer(testKey, "portal", time.Hour).Issue("u", "s")

	other := NewTokenIssuer([]byte("ffffffffffffffffffffffffffffffff"), "portal", time.Hour)
	if _, err := other.Parse(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected signature failure, got %v", err)
	}
	wrongIss := NewTokenIssuer(testKey, "someone-else", time.Hour)
	if _, err := wrongIss.Parse(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected issuer failure, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		upgrade bool
		query   string
		want    string
		wantErr error
	}{
		{name: "bearer", header: "Bearer abc", want: "abc"},
		{name: "case insensitive", header: "bearer abc", want: "abc"},
		{name: "missing", wantErr: ErrMissingToken},
		{name: "basic", header: "Basic abc", wantErr: ErrBadFormat},
		{name: "empty token", header: "Bearer ", wantErr: ErrBadFormat},
		{name: "websocket query", upgrade: true, query: "xyz", want: "xyz"},
		{name: "query ignored without upgrade", query: "xyz", wantErr: ErrMissingToken},
	}

	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/"
			if tt.query != "" {
				target = "/?access_token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.upgrade {
				req.Header.Set("Upgrade", "websocket")
			}
			c := e.NewContext(req, httptest.NewRecorder())

			got, err := BearerToken(c)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("expected %q, got %q (%v)", tt.want, got, err)
			}
		})
	}
}

func TestWithIdentity(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	WithIdentity(c, "user-1", "sess-1", "doctor")

	ctx := c.Request().Context()
	if UserIDFromContext(ctx) != "user-1" || SessionIDFromContext(ctx) != "sess-1" || RoleFromContext(ctx) != "doctor" {
		t.Error("identity not stored on request context")
	}
	if c.Get("user_id") != "user-1" {
		t.Error("identity not stored on echo context")
	}
	if UserIDFromContext(context.Background()) != "" {
		t.Error("empty context should yield empty user id")
	}
}

func TestPassword(t *testing.T) {
	if _, err := HashPassword("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}

	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := CheckPassword(hash, "correct horse"); err != nil {
		t.Errorf("expected match, got %v", err)
	}
	if err := CheckPassword(hash, "wrong horse"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("expected ErrPasswordMismatch, got %v", err)
	}
}
