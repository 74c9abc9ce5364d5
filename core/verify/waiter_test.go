package verify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"garrison-gate/core/authapi"
	"garrison-gate/core/session"
	"garrison-gate/core/store"
)

type fakeBackend struct {
	mu           sync.Mutex
	verified     bool
	resendResult authapi.ResendResult
	resendErr    error
	resendDelay  time.Duration
	resendCalls  []string
	statusCalls  int
}

func (b *fakeBackend) ResendVerification(_ context.Context, email string) (authapi.ResendResult, error) {
	b.mu.Lock()
	b.resendCalls = append(b.resendCalls, email)
	res, err, delay := b.resendResult, b.resendErr, b.resendDelay
	b.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return res, err
}

func (b *fakeBackend) VerificationStatus(_ context.Context, _ string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statusCalls++
	return b.verified, nil
}

func (b *fakeBackend) setVerified(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.verified = v
}

func (b *fakeBackend) resendCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.resendCalls)
}

func (b *fakeBackend) lastResendTarget() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.resendCalls) == 0 {
		return ""
	}
	return b.resendCalls[len(b.resendCalls)-1]
}

type fakeCache struct {
	mu    sync.Mutex
	rec   *store.PendingAuth
	takes int
}

func (c *fakeCache) Put(_ context.Context, rec store.PendingAuth) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rec = &rec
	return nil
}

func (c *fakeCache) Peek(_ context.Context) (*store.PendingAuth, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec == nil {
		return nil, nil
	}
	cp := *c.rec
	return &cp, nil
}

func (c *fakeCache) Take(_ context.Context) (*store.PendingAuth, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec == nil {
		return nil, nil
	}
	c.takes++
	rec := c.rec
	c.rec = nil
	return rec, nil
}

func (c *fakeCache) Delete(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rec = nil
	return nil
}

func (c *fakeCache) stored() *store.PendingAuth {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec
}

type fakeAuthority struct {
	mu     sync.Mutex
	err    error
	logins []session.Credentials
}

func (a *fakeAuthority) Login(_ context.Context, creds session.Credentials) (*session.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logins = append(a.logins, creds)
	if a.err != nil {
		return nil, a.err
	}
	return &session.User{ID: 1, Email: creds.Email, Roles: []string{"CLIENT"}}, nil
}

func (a *fakeAuthority) loginCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.logins)
}

func newTestWaiter(backend *fakeBackend, cache *fakeCache, auth *fakeAuthority) *Waiter {
	return NewWaiter(backend, cache, auth, NewMemoryBroadcaster("win-test"), nil, Options{
		PollInterval:   10 * time.Millisecond,
		ResendCooldown: 120 * time.Second,
		PendingTTL:     30 * time.Minute,
		Origin:         "win-test",
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestBeginTargetsBackendReportedEmail(t *testing.T) {
	backend := &fakeBackend{resendResult: authapi.ResendResult{Outcome: authapi.ResendSent}}
	cache := &fakeCache{}
	auth := &fakeAuthority{}
	w := newTestWaiter(backend, cache, auth)
	defer w.Stop()

	creds := session.Credentials{Email: "user99", Password: "pw"}
	uerr := &session.UnverifiedEmailError{Email: "user99@real.com"}
	if err := w.Begin(context.Background(), creds, uerr, ""); err != nil {
		t.Fatalf("begin: %v", err)
	}

	if got := backend.lastResendTarget(); got != "user99@real.com" {
		t.Fatalf("resend targeted %q, want the backend-reported address", got)
	}
	rec := cache.stored()
	if rec == nil || rec.Email != "user99@real.com" || rec.Password != "pw" {
		t.Fatalf("parked credentials = %+v", rec)
	}
	st := w.State()
	if !st.Waiting || !st.EmailSent || st.Email != "user99@real.com" {
		t.Fatalf("state after begin = %+v", st)
	}
}

func TestServerCooldownOverridesLocalDefault(t *testing.T) {
	backend := &fakeBackend{resendResult: authapi.ResendResult{
		Outcome:    authapi.ResendCooldown,
		RetryAfter: 47 * time.Second,
	}}
	cache := &fakeCache{}
	auth := &fakeAuthority{}
	w := newTestWaiter(backend, cache, auth)
	defer w.Stop()

	creds := session.Credentials{Email: "a@b.c", Password: "pw"}
	if err := w.Begin(context.Background(), creds, &session.UnverifiedEmailError{Email: "a@b.c"}, ""); err != nil {
		t.Fatalf("begin: %v", err)
	}

	st := w.State()
	if !st.EmailSent {
		t.Fatal("cooldown-rejected resend should read as email already sent")
	}
	if st.CooldownRemaining > 47*time.Second || st.CooldownRemaining < 40*time.Second {
		t.Fatalf("cooldown remaining = %s, want the server's 47s window", st.CooldownRemaining)
	}
}

func TestPollCompletionAutoLogin(t *testing.T) {
	backend := &fakeBackend{resendResult: authapi.ResendResult{Outcome: authapi.ResendSent}}
	cache := &fakeCache{}
	auth := &fakeAuthority{}
	w := newTestWaiter(backend, cache, auth)
	defer w.Stop()

	creds := session.Credentials{Email: "a@b.c", Password: "pw"}
	if err := w.Begin(context.Background(), creds, &session.UnverifiedEmailError{Email: "a@b.c"}, ""); err != nil {
		t.Fatalf("begin: %v", err)
	}
	backend.setVerified(true)

	waitFor(t, func() bool { return auth.loginCount() == 1 })
	waitFor(t, func() bool { return !w.State().Waiting })

	if got := auth.logins[0]; got.Email != "a@b.c" || got.Password != "pw" {
		t.Fatalf("auto login used %+v", got)
	}
	if cache.stored() != nil {
		t.Fatal("cache must be consumed by the auto login")
	}
	st := w.State()
	if st.TerminalError != "" {
		t.Fatalf("unexpected terminal error: %s", st.TerminalError)
	}
}

func TestBroadcastCompletionFromAnotherWindow(t *testing.T) {
	backend := &fakeBackend{resendResult: authapi.ResendResult{Outcome: authapi.ResendSent}}
	cache := &fakeCache{}
	auth := &fakeAuthority{}
	bus := NewMemoryBroadcaster("win-1")
	w := NewWaiter(backend, cache, auth, bus, nil, Options{
		PollInterval:   time.Hour, // only the broadcast can complete this flow
		ResendCooldown: 120 * time.Second,
		PendingTTL:     time.Hour,
		Origin:         "win-1",
	})
	defer w.Stop()

	creds := session.Credentials{Email: "a@b.c", Password: "pw"}
	if err := w.Begin(context.Background(), creds, &session.UnverifiedEmailError{Email: "a@b.c"}, ""); err != nil {
		t.Fatalf("begin: %v", err)
	}

	if err := bus.Publish(context.Background(), Message{Event: EventEmailVerified, Email: "A@B.C", Origin: "win-2", At: time.Now()}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, func() bool { return auth.loginCount() == 1 })
}

func TestCompletionIsSingleShot(t *testing.T) {
	backend := &fakeBackend{resendResult: authapi.ResendResult{Outcome: authapi.ResendSent}}
	cache := &fakeCache{}
	auth := &fakeAuthority{}
	w := newTestWaiter(backend, cache, auth)
	defer w.Stop()

	creds := session.Credentials{Email: "a@b.c", Password: "pw"}
	if err := w.Begin(context.Background(), creds, &session.UnverifiedEmailError{Email: "a@b.c"}, ""); err != nil {
		t.Fatalf("begin: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.complete(context.Background(), "a@b.c")
		}()
	}
	wg.Wait()

	if n := auth.loginCount(); n != 1 {
		t.Fatalf("expected exactly one auto login, got %d", n)
	}
	cache.mu.Lock()
	takes := cache.takes
	cache.mu.Unlock()
	if takes != 1 {
		t.Fatalf("expected exactly one cache consumption, got %d", takes)
	}
}

func TestAutoLoginFailureIsTerminal(t *testing.T) {
	backend := &fakeBackend{resendResult: authapi.ResendResult{Outcome: authapi.ResendSent}}
	cache := &fakeCache{}
	auth := &fakeAuthority{err: errors.New("credentials revoked")}
	w := newTestWaiter(backend, cache, auth)
	defer w.Stop()

	creds := session.Credentials{Email: "a@b.c", Password: "pw"}
	if err := w.Begin(context.Background(), creds, &session.UnverifiedEmailError{Email: "a@b.c"}, ""); err != nil {
		t.Fatalf("begin: %v", err)
	}
	backend.setVerified(true)

	waitFor(t, func() bool { return w.State().TerminalError != "" })

	if cache.stored() != nil {
		t.Fatal("cache must be cleared after a failed auto login")
	}
	if w.State().Waiting {
		t.Fatal("flow must end after a terminal failure")
	}
	if !strings.Contains(w.State().TerminalError, "manually") {
		t.Fatalf("terminal error should tell the user to sign in manually: %s", w.State().TerminalError)
	}
	time.Sleep(50 * time.Millisecond)
	if n := auth.loginCount(); n != 1 {
		t.Fatalf("no automatic retries allowed after a terminal failure, got %d logins", n)
	}
}

func TestAlreadyVerifiedDropsOutOfWaiting(t *testing.T) {
	backend := &fakeBackend{resendResult: authapi.ResendResult{Outcome: authapi.ResendAlreadyVerified}}
	cache := &fakeCache{}
	auth := &fakeAuthority{}
	w := newTestWaiter(backend, cache, auth)
	defer w.Stop()

	creds := session.Credentials{Email: "a@b.c", Password: "pw"}
	if err := w.Begin(context.Background(), creds, &session.UnverifiedEmailError{Email: "a@b.c"}, ""); err != nil {
		t.Fatalf("begin: %v", err)
	}

	st := w.State()
	if st.Waiting {
		t.Fatal("already-verified must drop out of the waiting state")
	}
	if st.Message == "" {
		t.Fatal("already-verified should leave an informational message")
	}
	if cache.stored() != nil {
		t.Fatal("parked credentials must not outlive the flow")
	}
}

func TestManualResendRequiresResolvableEmail(t *testing.T) {
	backend := &fakeBackend{}
	w := newTestWaiter(backend, &fakeCache{}, &fakeAuthority{})
	err := w.Resend(context.Background(), "")
	if !errors.Is(err, ErrNoResendTarget) {
		t.Fatalf("expected ErrNoResendTarget, got %v", err)
	}
}

func TestManualResendFallsBackToCacheThenForm(t *testing.T) {
	backend := &fakeBackend{resendResult: authapi.ResendResult{Outcome: authapi.ResendSent}}
	cache := &fakeCache{}
	cache.Put(context.Background(), store.PendingAuth{Email: "cached@b.c", Password: "pw"})
	w := newTestWaiter(backend, cache, &fakeAuthority{})

	if err := w.Resend(context.Background(), "form@b.c"); err != nil {
		t.Fatalf("resend: %v", err)
	}
	if got := backend.lastResendTarget(); got != "cached@b.c" {
		t.Fatalf("resend targeted %q, want the cached address over the form input", got)
	}
}

func TestManualResendEnforcesCooldown(t *testing.T) {
	backend := &fakeBackend{resendResult: authapi.ResendResult{Outcome: authapi.ResendSent}}
	w := newTestWaiter(backend, &fakeCache{}, &fakeAuthority{})

	if err := w.Resend(context.Background(), "a@b.c"); err != nil {
		t.Fatalf("first resend: %v", err)
	}
	err := w.Resend(context.Background(), "a@b.c")
	var cerr *CooldownError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CooldownError, got %v", err)
	}
	if cerr.Remaining <= 0 {
		t.Fatalf("cooldown error should carry the remaining window, got %s", cerr.Remaining)
	}
}

func TestCompletionReportsBlockedDestination(t *testing.T) {
	backend := &fakeBackend{resendResult: authapi.ResendResult{Outcome: authapi.ResendSent}}
	cache := &fakeCache{}
	auth := &fakeAuthority{}
	w := newTestWaiter(backend, cache, auth)
	defer w.Stop()

	creds := session.Credentials{Email: "a@b.c", Password: "pw"}
	if err := w.Begin(context.Background(), creds, &session.UnverifiedEmailError{Email: "a@b.c"}, "/dashboard"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if got := w.State().RedirectTo; got != "" {
		t.Fatalf("no redirect target before completion, got %q", got)
	}
	backend.setVerified(true)

	waitFor(t, func() bool { return w.State().Completed })
	st := w.State()
	if st.TerminalError != "" {
		t.Fatalf("unexpected terminal error: %s", st.TerminalError)
	}
	if st.RedirectTo != "/dashboard" {
		t.Fatalf("redirect target = %q, want the blocked destination", st.RedirectTo)
	}
}

func TestCompletionDefaultsRedirectToRoot(t *testing.T) {
	backend := &fakeBackend{resendResult: authapi.ResendResult{Outcome: authapi.ResendSent}}
	cache := &fakeCache{}
	auth := &fakeAuthority{}
	w := newTestWaiter(backend, cache, auth)
	defer w.Stop()

	creds := session.Credentials{Email: "a@b.c", Password: "pw"}
	if err := w.Begin(context.Background(), creds, &session.UnverifiedEmailError{Email: "a@b.c"}, "https://evil.example/"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	backend.setVerified(true)

	waitFor(t, func() bool { return w.State().Completed })
	if got := w.State().RedirectTo; got != "/" {
		t.Fatalf("non-local destination must fall back to root, got %q", got)
	}
}

func TestExpiredParkedCredentialsAreNotUsed(t *testing.T) {
	backend := &fakeBackend{resendResult: authapi.ResendResult{Outcome: authapi.ResendSent}}
	cache := &fakeCache{}
	auth := &fakeAuthority{}
	w := newTestWaiter(backend, cache, auth)
	defer w.Stop()

	creds := session.Credentials{Email: "a@b.c", Password: "pw"}
	if err := w.Begin(context.Background(), creds, &session.UnverifiedEmailError{Email: "a@b.c"}, ""); err != nil {
		t.Fatalf("begin: %v", err)
	}
	cache.mu.Lock()
	cache.rec.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	cache.mu.Unlock()
	backend.setVerified(true)

	waitFor(t, func() bool { return w.State().TerminalError != "" })
	if n := auth.loginCount(); n != 0 {
		t.Fatalf("expired credentials must never reach the login endpoint, got %d logins", n)
	}
	if !strings.Contains(w.State().TerminalError, "manually") {
		t.Fatalf("terminal error should tell the user to sign in manually: %s", w.State().TerminalError)
	}
}

func TestConcurrentManualResendsCoalesce(t *testing.T) {
	backend := &fakeBackend{
		resendResult: authapi.ResendResult{Outcome: authapi.ResendSent},
		resendDelay:  50 * time.Millisecond,
	}
	w := newTestWaiter(backend, &fakeCache{}, &fakeAuthority{})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := w.Resend(context.Background(), "a@b.c")
			var cerr *CooldownError
			if err != nil && !errors.As(err, &cerr) {
				t.Errorf("resend: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := backend.resendCount(); n != 1 {
		t.Fatalf("concurrent manual resends must coalesce into one upstream request, got %d", n)
	}
}

func TestStopTearsDownWatchers(t *testing.T) {
	backend := &fakeBackend{resendResult: authapi.ResendResult{Outcome: authapi.ResendSent}}
	auth := &fakeAuthority{}
	w := newTestWaiter(backend, &fakeCache{}, auth)

	creds := session.Credentials{Email: "a@b.c", Password: "pw"}
	if err := w.Begin(context.Background(), creds, &session.UnverifiedEmailError{Email: "a@b.c"}, ""); err != nil {
		t.Fatalf("begin: %v", err)
	}
	w.Stop()
	backend.setVerified(true)
	time.Sleep(60 * time.Millisecond)

	if n := auth.loginCount(); n != 0 {
		t.Fatalf("stopped waiter must not auto login, got %d", n)
	}
	if w.State().Waiting {
		t.Fatal("waiting flag must clear on stop")
	}
}
