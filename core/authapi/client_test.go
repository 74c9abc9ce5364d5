package authapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"garrison-gate/core/session"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second, nil)
}

func TestLoginMapsUnauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	})
	err := c.Login(context.Background(), session.Credentials{Email: "a@b.c", Password: "x"})
	if !errors.Is(err, session.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginMapsUnverifiedEmailWithRealAddress(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": "email_not_verified",
			"email": "user99@real.com",
		})
	})
	// Logged in with a username; the error payload carries the real email.
	err := c.Login(context.Background(), session.Credentials{Email: "user99", Password: "x"})
	var unverified *session.UnverifiedEmailError
	if !errors.As(err, &unverified) {
		t.Fatalf("expected UnverifiedEmailError, got %v", err)
	}
	if unverified.Email != "user99@real.com" {
		t.Fatalf("expected backend-supplied email, got %q", unverified.Email)
	}
}

func TestProfileNullUserAndUnauthorizedAreNil(t *testing.T) {
	for _, mode := range []string{"null", "401"} {
		mode := mode
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if mode == "401" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"user":null}`))
		})
		u, err := c.Profile(context.Background())
		if err != nil || u != nil {
			t.Fatalf("mode %s: absent session must be (nil, nil), got %v %v", mode, u, err)
		}
	}
}

func TestProfileDecodesUser(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user":{"id":7,"username":"tom","email":"tom@garrison.io","roles":["ADMIN","MANAGER"]}}`))
	})
	u, err := c.Profile(context.Background())
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if u.ID != 7 || u.Email != "tom@garrison.io" || len(u.Roles) != 2 {
		t.Fatalf("unexpected user: %+v", u)
	}
}

func TestResendOutcomes(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		outcome ResendOutcome
		retry   time.Duration
	}{
		{"sent", http.StatusOK, `{"status":"sent"}`, ResendSent, 0},
		{"already verified", http.StatusConflict, `{"error":"already_verified"}`, ResendAlreadyVerified, 0},
		{"cooldown", http.StatusTooManyRequests, `{"error":"cooldown","retry_after_sec":47}`, ResendCooldown, 47 * time.Second},
	}
	for _, tc := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		})
		res, err := c.ResendVerification(context.Background(), "a@b.c")
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if res.Outcome != tc.outcome || res.RetryAfter != tc.retry {
			t.Fatalf("%s: got %+v", tc.name, res)
		}
	}
}

func TestVerificationStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("email"); got != "a@b.c" {
			t.Fatalf("unexpected email param %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"email":"a@b.c","verified":true}`))
	})
	ok, err := c.VerificationStatus(context.Background(), "a@b.c")
	if err != nil || !ok {
		t.Fatalf("expected verified, got %v %v", ok, err)
	}
}

func TestLoginKeepsUpstreamCookieForProfile(t *testing.T) {
	var sawCookie bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "s1", Path: "/"})
			w.WriteHeader(http.StatusOK)
		case "/api/auth/profile":
			if ck, err := r.Cookie("sid"); err == nil && ck.Value == "s1" {
				sawCookie = true
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"user":{"id":1,"email":"a@b.c","roles":[]}}`))
		}
	})
	if err := c.Login(context.Background(), session.Credentials{}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := c.Profile(context.Background()); err != nil {
		t.Fatalf("profile: %v", err)
	}
	if !sawCookie {
		t.Fatal("profile request must carry the session cookie set at login")
	}
}
