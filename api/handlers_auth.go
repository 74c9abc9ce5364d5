package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"garrison-gate/core/session"
	"garrison-gate/core/verify"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		session.Credentials
		ReturnTo string `json:"return_to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request"})
		return
	}
	creds := body.Credentials
	redirect := body.ReturnTo
	if redirect == "" || !strings.HasPrefix(redirect, "/") {
		redirect = "/"
	}

	user, err := s.sessions.Login(r.Context(), creds)
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]any{"user": user, "redirect": redirect})
		return
	}

	var uerr *session.UnverifiedEmailError
	if errors.As(err, &uerr) {
		// Switch into the waiting flow: park the credentials, resend,
		// poll, and listen for another window's broadcast.
		if berr := s.waiter.Begin(r.Context(), creds, uerr, body.ReturnTo); berr != nil {
			s.logger.Errorf("verification wait failed to start: %v", berr)
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "verification_unavailable"})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"error": "email_not_verified",
			"state": verificationStateBody(s.waiter.State()),
		})
		return
	}

	if errors.Is(err, session.ErrInvalidCredentials) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_credentials"})
		return
	}
	if errors.Is(err, session.ErrProfileUnavailable) {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "profile_unavailable"})
		return
	}
	s.logger.Errorf("login failed: %v", err)
	writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream_error"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Logout(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"logged_in": false, "redirect": "/login"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.sessions.Me(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream_error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logged_in": user != nil,
		"user":      user,
	})
}

// handleRoutes reports the admission verdict for every configured view
// under the current session, so a client can gray out what it may not
// enter.
func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	snap := s.sessions.Store().Snapshot()
	type entry struct {
		Path       string `json:"path"`
		Name       string `json:"name"`
		Allowed    bool   `json:"allowed"`
		RedirectTo string `json:"redirect_to,omitempty"`
	}
	out := make([]entry, 0, len(s.routes))
	for _, meta := range s.routes {
		d := s.gate.CanEnter(meta, snap)
		out = append(out, entry{Path: meta.Path, Name: meta.Name, Allowed: d.Allowed, RedirectTo: d.RedirectTo})
	}
	writeJSON(w, http.StatusOK, map[string]any{"routes": out})
}

func verificationStateBody(st verify.State) map[string]any {
	return map[string]any{
		"waiting":            st.Waiting,
		"resend_in_flight":   st.ResendInFlight,
		"email_sent":         st.EmailSent,
		"completed":          st.Completed,
		"email":              st.Email,
		"cooldown_remaining": int(st.CooldownRemaining.Round(time.Second) / time.Second),
		"message":            st.Message,
		"terminal_error":     st.TerminalError,
		"redirect_to":        st.RedirectTo,
	}
}

func (s *Server) handleVerificationState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, verificationStateBody(s.waiter.State()))
}

func (s *Server) handleVerificationResend(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	err := s.waiter.Resend(r.Context(), body.Email)
	if err == nil {
		writeJSON(w, http.StatusOK, verificationStateBody(s.waiter.State()))
		return
	}
	if errors.Is(err, verify.ErrNoResendTarget) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no_resend_target"})
		return
	}
	var cerr *verify.CooldownError
	if errors.As(err, &cerr) {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":           "cooldown_active",
			"retry_after_sec": int(cerr.Remaining.Round(time.Second) / time.Second),
		})
		return
	}
	s.logger.Errorf("manual resend failed: %v", err)
	writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream_error"})
}

func (s *Server) handleVerificationCancel(w http.ResponseWriter, r *http.Request) {
	s.waiter.Cancel(r.Context())
	writeJSON(w, http.StatusOK, verificationStateBody(s.waiter.State()))
}

// handleVerificationQR renders the status-check URL as a QR code, so
// the wait can be finished from a phone when the inbox lives there.
// The address always comes from the active flow; this endpoint is not
// a QR generator for arbitrary caller input.
func (s *Server) handleVerificationQR(w http.ResponseWriter, r *http.Request) {
	email := s.waiter.State().Email
	if email == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no_pending_verification"})
		return
	}
	png, err := qrcode.Encode(s.authClient.VerificationStatusURL(email), qrcode.Medium, 256)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "qr_encode_failed"})
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
