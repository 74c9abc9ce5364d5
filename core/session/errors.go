package session

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidCredentials is the upstream's 401: surfaced verbatim to the login
// caller and never retried automatically.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrProfileUnavailable is returned when the credential submission succeeded
// but no profile could be hydrated; the composite login reports failure.
var ErrProfileUnavailable = errors.New("profile unavailable after login")

// UnverifiedEmailError is the distinguished login failure meaning
// "credentials valid, email not verified". Email carries the account's real
// address when the backend supplies one (the form input may have been a
// username). RetryAfter, when set, is the server-reported resend cooldown.
type UnverifiedEmailError struct {
	Email      string
	RetryAfter time.Duration
}

func (e *UnverifiedEmailError) Error() string {
	if e.Email == "" {
		return "email not verified"
	}
	return fmt.Sprintf("email not verified: %s", e.Email)
}
