package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"garrison-gate/core/authapi"
	"garrison-gate/core/session"
	"garrison-gate/core/store"
	"garrison-gate/core/utils"
)

// ErrNoResendTarget is returned by a manual resend when no email can
// be resolved from any source. The caller must surface it; a resend
// never silently does nothing.
var ErrNoResendTarget = errors.New("no email address available for verification resend")

// CooldownError rejects a manual resend attempted before the cooldown
// window elapsed.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("resend not allowed for another %s", e.Remaining.Round(time.Second))
}

// Backend is the slice of the upstream API the waiter needs.
type Backend interface {
	ResendVerification(ctx context.Context, email string) (authapi.ResendResult, error)
	VerificationStatus(ctx context.Context, email string) (bool, error)
}

// Cache is the shared pending-auth slot. Take must be atomic across
// windows: of two concurrent callers exactly one sees the record.
type Cache interface {
	Put(ctx context.Context, rec store.PendingAuth) error
	Peek(ctx context.Context) (*store.PendingAuth, error)
	Take(ctx context.Context) (*store.PendingAuth, error)
	Delete(ctx context.Context) error
}

// Authority completes the deferred sign-in once verification lands.
type Authority interface {
	Login(ctx context.Context, creds session.Credentials) (*session.User, error)
}

type Options struct {
	PollInterval   time.Duration
	ResendCooldown time.Duration
	PendingTTL     time.Duration
	Origin         string
}

// State is a point-in-time snapshot of the waiting flow for handlers
// and metrics. TerminalError set means the flow ended and the user has
// to sign in manually.
type State struct {
	Waiting           bool
	ResendInFlight    bool
	EmailSent         bool
	Completed         bool
	Email             string
	CooldownRemaining time.Duration
	Message           string
	TerminalError     string
	// RedirectTo is the navigation target once the flow completed
	// without a terminal error: the destination the blocked login was
	// headed for, or the application root.
	RedirectTo string
}

// Waiter coordinates a login attempt blocked on an unverified email:
// it parks the credentials, requests a resend, polls the status
// endpoint, listens for a cross-window broadcast, and on whichever
// signal lands first completes the sign-in exactly once.
type Waiter struct {
	backend  Backend
	cache    Cache
	sessions Authority
	bus      Broadcaster
	logger   *utils.Logger
	opts     Options

	cd countdown

	mu             sync.Mutex
	waiting        bool
	resendInFlight bool
	emailSent      bool
	completed      bool
	realEmail      string
	formEmail      string
	destination    string
	message        string
	terminalErr    error
	cancelWatch    context.CancelFunc
	unsubscribe    func()
}

func NewWaiter(backend Backend, cache Cache, sessions Authority, bus Broadcaster, logger *utils.Logger, opts Options) *Waiter {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	if opts.ResendCooldown <= 0 {
		opts.ResendCooldown = 120 * time.Second
	}
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = 30 * time.Minute
	}
	return &Waiter{
		backend:  backend,
		cache:    cache,
		sessions: sessions,
		bus:      bus,
		logger:   logger,
		opts:     opts,
	}
}

// Begin starts the waiting flow for a login rejected with an
// unverified-email error. The verification target is the backend's
// reported address when present; the form input may have been a
// username. destination is where the blocked navigation was headed;
// completion reports it back so the caller can resume there.
func (w *Waiter) Begin(ctx context.Context, creds session.Credentials, uerr *session.UnverifiedEmailError, destination string) error {
	email := strings.TrimSpace(uerr.Email)
	if email == "" {
		email = strings.TrimSpace(creds.Email)
	}
	if email == "" {
		return ErrNoResendTarget
	}
	destination = strings.TrimSpace(destination)
	if destination == "" || !strings.HasPrefix(destination, "/") {
		destination = "/"
	}

	w.mu.Lock()
	w.stopLocked()
	w.waiting = true
	w.completed = false
	w.emailSent = false
	w.realEmail = email
	w.formEmail = strings.TrimSpace(creds.Email)
	w.destination = destination
	w.message = ""
	w.terminalErr = nil
	w.mu.Unlock()

	now := time.Now().UTC()
	err := w.cache.Put(ctx, store.PendingAuth{
		Email:     email,
		Password:  creds.Password,
		Owner:     w.opts.Origin,
		CreatedAt: now,
		ExpiresAt: now.Add(w.opts.PendingTTL),
	})
	if err != nil {
		w.mu.Lock()
		w.stopLocked()
		w.mu.Unlock()
		return fmt.Errorf("park credentials: %w", err)
	}

	// The cooldown opens immediately, whatever the automatic resend
	// below ends up doing. A server-reported window wins over the
	// local default.
	if uerr.RetryAfter > 0 {
		w.cd.start(uerr.RetryAfter)
	} else {
		w.cd.start(w.opts.ResendCooldown)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	ch, unsub := w.bus.Subscribe()
	w.mu.Lock()
	w.cancelWatch = cancel
	w.unsubscribe = unsub
	w.mu.Unlock()
	go w.pollLoop(watchCtx, email)
	go w.listen(watchCtx, ch)

	// A failed automatic resend never aborts the flow; the poll loop
	// and the manual resend remain available.
	if res, err := w.backend.ResendVerification(ctx, email); err != nil {
		w.logger.Warnf("VERIFY automatic resend failed email=%s err=%v", email, err)
	} else {
		w.applyResendOutcome(ctx, res)
	}
	w.logger.Printf("VERIFY waiting for confirmation email=%s", email)
	return nil
}

// Resend is the user-initiated resend. The target is resolved in
// priority order: the backend-reported real email, the parked
// credentials, then the login form's current input.
func (w *Waiter) Resend(ctx context.Context, formEmail string) error {
	// The cooldown check and the in-flight gate close together, so two
	// concurrent calls cannot both slip past an open cooldown window.
	w.mu.Lock()
	if w.resendInFlight {
		w.mu.Unlock()
		return nil
	}
	if rem := w.cd.remaining(); rem > 0 {
		w.mu.Unlock()
		return &CooldownError{Remaining: rem}
	}
	w.resendInFlight = true
	email := w.realEmail
	stored := w.formEmail
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.resendInFlight = false
		w.mu.Unlock()
	}()

	if email == "" {
		if rec, err := w.cache.Peek(ctx); err == nil && rec != nil {
			email = rec.Email
		}
	}
	if email == "" {
		email = strings.TrimSpace(formEmail)
	}
	if email == "" {
		email = stored
	}
	if email == "" {
		return ErrNoResendTarget
	}

	res, err := w.backend.ResendVerification(ctx, email)
	if err != nil {
		w.logger.Warnf("VERIFY manual resend failed email=%s err=%v", email, err)
		return fmt.Errorf("resend verification: %w", err)
	}
	w.cd.start(w.opts.ResendCooldown)
	w.applyResendOutcome(ctx, res)
	return nil
}

func (w *Waiter) applyResendOutcome(ctx context.Context, res authapi.ResendResult) {
	switch res.Outcome {
	case authapi.ResendSent:
		w.mu.Lock()
		w.emailSent = true
		w.message = "Verification email sent. Check your inbox."
		w.mu.Unlock()
	case authapi.ResendAlreadyVerified:
		// Nothing left to wait for. The parked credentials must not
		// outlive the flow that created them.
		w.mu.Lock()
		w.message = "This email address is already verified. You can sign in directly."
		w.stopLocked()
		w.mu.Unlock()
		w.cd.clear()
		if err := w.cache.Delete(ctx); err != nil {
			w.logger.Warnf("VERIFY cache delete failed: %v", err)
		}
	case authapi.ResendCooldown:
		// The server already sent one; its remaining window is
		// authoritative over the local default.
		w.mu.Lock()
		w.emailSent = true
		w.message = "A verification email was already sent recently."
		w.mu.Unlock()
		if res.RetryAfter > 0 {
			w.cd.start(res.RetryAfter)
		}
	}
}

func (w *Waiter) pollLoop(ctx context.Context, email string) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			verified, err := w.backend.VerificationStatus(ctx, email)
			if err != nil {
				w.logger.Warnf("VERIFY status poll failed email=%s err=%v", email, err)
				continue
			}
			if !verified {
				continue
			}
			// Let the other windows know before completing locally;
			// they would otherwise wait for their own next poll tick.
			if err := w.bus.Publish(ctx, Message{Event: EventEmailVerified, Email: email, At: time.Now()}); err != nil {
				w.logger.Warnf("VERIFY broadcast publish failed: %v", err)
			}
			w.complete(ctx, email)
			return
		}
	}
}

func (w *Waiter) listen(ctx context.Context, ch <-chan Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg.Event != EventEmailVerified {
				continue
			}
			w.mu.Lock()
			match := strings.EqualFold(msg.Email, w.realEmail)
			w.mu.Unlock()
			if !match {
				continue
			}
			w.complete(ctx, msg.Email)
			return
		}
	}
}

// complete runs the deferred auto-login. The completed flag plus the
// atomic cache Take make it single-shot even when the poll tick and a
// broadcast land at the same instant.
func (w *Waiter) complete(ctx context.Context, email string) {
	w.mu.Lock()
	if !w.waiting || w.completed || !strings.EqualFold(email, w.realEmail) {
		w.mu.Unlock()
		return
	}
	w.completed = true
	w.mu.Unlock()

	rec, err := w.cache.Take(ctx)
	if err != nil {
		w.finish("", fmt.Errorf("read parked credentials: %w", err))
		return
	}
	if rec == nil {
		// Another window got there first and consumed the slot.
		w.finish("Email verified. Sign-in completed in another window.", nil)
		return
	}
	if !strings.EqualFold(rec.Email, email) {
		w.logger.Warnf("VERIFY parked credentials belong to %s, not %s; discarding", rec.Email, email)
		w.finish("", errors.New("verification completed but no matching credentials were cached; please sign in manually"))
		return
	}
	if rec.Expired(time.Now().UTC()) {
		w.logger.Warnf("VERIFY parked credentials expired email=%s", rec.Email)
		w.finish("", errors.New("email verified, but the cached credentials expired; please sign in manually"))
		return
	}

	if _, err := w.sessions.Login(ctx, session.Credentials{Email: rec.Email, Password: rec.Password}); err != nil {
		w.logger.Warnf("VERIFY auto sign-in failed email=%s err=%v", rec.Email, err)
		if derr := w.cache.Delete(ctx); derr != nil {
			w.logger.Warnf("VERIFY cache delete failed: %v", derr)
		}
		w.finish("", errors.New("email verified, but automatic sign-in failed; please sign in manually"))
		return
	}
	w.logger.Printf("VERIFY auto sign-in completed email=%s", rec.Email)
	w.finish("Email verified. You are now signed in.", nil)
}

func (w *Waiter) finish(message string, terminal error) {
	w.mu.Lock()
	if message != "" {
		w.message = message
	}
	w.terminalErr = terminal
	w.stopLocked()
	w.mu.Unlock()
}

// Cancel is the user abandoning the flow: teardown plus disposal of
// the parked credentials.
func (w *Waiter) Cancel(ctx context.Context) {
	w.Stop()
	if err := w.cache.Delete(ctx); err != nil {
		w.logger.Warnf("VERIFY cache delete failed: %v", err)
	}
}

// Stop tears the flow down unconditionally: the poll loop and the
// broadcast subscription always go away together.
func (w *Waiter) Stop() {
	w.mu.Lock()
	w.stopLocked()
	w.mu.Unlock()
}

func (w *Waiter) stopLocked() {
	w.waiting = false
	if w.cancelWatch != nil {
		w.cancelWatch()
		w.cancelWatch = nil
	}
	if w.unsubscribe != nil {
		w.unsubscribe()
		w.unsubscribe = nil
	}
}

func (w *Waiter) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := State{
		Waiting:           w.waiting,
		ResendInFlight:    w.resendInFlight,
		EmailSent:         w.emailSent,
		Completed:         w.completed,
		Email:             w.realEmail,
		CooldownRemaining: w.cd.remaining(),
		Message:           w.message,
	}
	if w.terminalErr != nil {
		st.TerminalError = w.terminalErr.Error()
	}
	if st.Completed && st.TerminalError == "" {
		st.RedirectTo = w.destination
		if st.RedirectTo == "" {
			st.RedirectTo = "/"
		}
	}
	return st
}
