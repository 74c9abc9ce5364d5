package devbackend

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"

	"garrison-gate/core/utils"
)

const sessionCookie = "gate_dev_session"

// Account is one seeded user of the stub backend.
type Account struct {
	ID       int64
	Username string
	Email    string
	Roles    []string

	hash     *passwordHash
	verified bool
}

// Server is an in-memory stand-in for the real authentication backend,
// used for local development and integration tests. It implements the
// same wire surface the gateway talks to: cookie sessions, the
// unverified-email login rejection, resend with a cooldown, and a
// status endpoint. Verification is completed through the confirm
// endpoint, which plays the role of the emailed link.
type Server struct {
	logger   *utils.Logger
	cooldown time.Duration

	mu         sync.Mutex
	accounts   map[string]*Account // keyed by lowercase email
	byUsername map[string]string   // username -> email
	sessions   map[string]string   // cookie token -> email
	lastResend map[string]time.Time
	nextID     int64
}

func NewServer(cooldown time.Duration, logger *utils.Logger) *Server {
	if cooldown <= 0 {
		cooldown = 120 * time.Second
	}
	return &Server{
		logger:     logger,
		cooldown:   cooldown,
		accounts:   make(map[string]*Account),
		byUsername: make(map[string]string),
		sessions:   make(map[string]string),
		lastResend: make(map[string]time.Time),
		nextID:     1,
	}
}

// AddAccount seeds a user. Returns the stored account for tests that
// need its ID.
func (s *Server) AddAccount(username, email, password string, roles []string, verified bool) *Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := &Account{
		ID:       s.nextID,
		Username: username,
		Email:    email,
		Roles:    roles,
		hash:     mustHashPassword(password),
		verified: verified,
	}
	s.nextID++
	s.accounts[strings.ToLower(email)] = acct
	if username != "" {
		s.byUsername[strings.ToLower(username)] = strings.ToLower(email)
	}
	return acct
}

// MarkVerified flips an account to verified, as the emailed link would.
func (s *Server) MarkVerified(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[strings.ToLower(email)]
	if !ok {
		return false
	}
	acct.verified = true
	return true
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Get("/profile", s.handleProfile)
		r.Post("/logout", s.handleLogout)
		r.Post("/verification/resend", s.handleResend)
		r.Get("/verification/status", s.handleStatus)
		r.Post("/verification/confirm", s.handleConfirm)
	})
	return r
}

func (s *Server) lookup(identifier string) *Account {
	key := strings.ToLower(strings.TrimSpace(identifier))
	if email, ok := s.byUsername[key]; ok {
		key = email
	}
	return s.accounts[key]
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.lookup(body.Email)
	if acct == nil || !verifyPassword(body.Password, acct.hash) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_credentials"})
		return
	}
	if !acct.verified {
		// The form input may have been the username; report the real
		// address so the caller verifies the right target.
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error": "email_not_verified",
			"email": acct.Email,
		})
		return
	}

	token, err := uuid.NewV4()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
		return
	}
	s.sessions[token.String()] = strings.ToLower(acct.Email)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token.String(),
		Path:     "/",
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusOK)
}

func (s *Server) sessionAccount(r *http.Request) *Account {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil
	}
	email, ok := s.sessions[c.Value]
	if !ok {
		return nil
	}
	return s.accounts[email]
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	acct := s.sessionAccount(r)
	s.mu.Unlock()
	if acct == nil {
		writeJSON(w, http.StatusOK, map[string]any{"user": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{
		"id":       acct.ID,
		"username": acct.Username,
		"email":    acct.Email,
		"roles":    acct.Roles,
	}})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if c, err := r.Cookie(sessionCookie); err == nil {
		delete(s.sessions, c.Value)
	}
	s.mu.Unlock()
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleResend(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()

	var acct *Account
	if strings.TrimSpace(body.Email) != "" {
		acct = s.lookup(body.Email)
	} else {
		acct = s.sessionAccount(r)
	}
	if acct == nil {
		// Do not reveal whether the address exists.
		w.WriteHeader(http.StatusOK)
		return
	}
	if acct.verified {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "already_verified"})
		return
	}
	key := strings.ToLower(acct.Email)
	if last, ok := s.lastResend[key]; ok {
		elapsed := time.Since(last)
		if elapsed < s.cooldown {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":           "cooldown_active",
				"retry_after_sec": int((s.cooldown - elapsed).Round(time.Second) / time.Second),
			})
			return
		}
	}
	s.lastResend[key] = time.Now()
	s.logger.Printf("DEVBACKEND verification email sent email=%s", acct.Email)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	s.mu.Lock()
	acct := s.lookup(email)
	verified := acct != nil && acct.verified
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]bool{"verified": verified})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Email) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request"})
		return
	}
	if !s.MarkVerified(body.Email) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown_email"})
		return
	}
	s.logger.Printf("DEVBACKEND email verified email=%s", body.Email)
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
