// Package authapi is the wire boundary to the storefront's REST backend. It
// maps HTTP shapes onto the session error taxonomy and carries the upstream
// session cookie, playing the browser's role for the gateway process.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"garrison-gate/core/session"
	"garrison-gate/core/utils"
)

type ResendOutcome string

const (
	ResendSent            ResendOutcome = "sent"
	ResendAlreadyVerified ResendOutcome = "already_verified"
	ResendCooldown        ResendOutcome = "cooldown"
)

type ResendResult struct {
	Outcome ResendOutcome
	// RetryAfter is server-authoritative for the cooldown outcome.
	RetryAfter time.Duration
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  *utils.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *utils.Logger) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout, Jar: jar},
		logger:  logger,
	}
}

type errorBody struct {
	Error         string `json:"error"`
	Email         string `json:"email,omitempty"`
	RetryAfterSec int    `json:"retry_after_sec,omitempty"`
}

func (c *Client) Login(ctx context.Context, creds session.Credentials) error {
	resp, err := c.postJSON(ctx, "/api/auth/login", creds)
	if err != nil {
		return err
	}
	defer drain(resp)
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		return session.ErrInvalidCredentials
	case http.StatusForbidden:
		var body errorBody
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error == "email_not_verified" {
			return &session.UnverifiedEmailError{
				Email:      body.Email,
				RetryAfter: time.Duration(body.RetryAfterSec) * time.Second,
			}
		}
		return fmt.Errorf("login rejected: %s", body.Error)
	default:
		return statusError("login", resp.StatusCode)
	}
}

func (c *Client) Profile(ctx context.Context) (*session.User, error) {
	resp, err := c.get(ctx, "/api/auth/profile", nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	if resp.StatusCode == http.StatusUnauthorized {
		// The server treats "no session" as unauthorized; callers see nil.
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("profile", resp.StatusCode)
	}
	var body struct {
		User *session.User `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("profile decode: %w", err)
	}
	return body.User, nil
}

func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.postJSON(ctx, "/api/auth/logout", nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return statusError("logout", resp.StatusCode)
	}
	return nil
}

// ResendVerification requests a verification email for the given address
// (unauthenticated variant). An empty email switches to the authenticated
// variant, which targets the current session's user.
func (c *Client) ResendVerification(ctx context.Context, email string) (ResendResult, error) {
	var payload any
	if email != "" {
		payload = map[string]string{"email": email}
	}
	resp, err := c.postJSON(ctx, "/api/auth/verification/resend", payload)
	if err != nil {
		return ResendResult{}, err
	}
	defer drain(resp)
	switch resp.StatusCode {
	case http.StatusOK:
		return ResendResult{Outcome: ResendSent}, nil
	case http.StatusConflict:
		return ResendResult{Outcome: ResendAlreadyVerified}, nil
	case http.StatusTooManyRequests:
		var body errorBody
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return ResendResult{
			Outcome:    ResendCooldown,
			RetryAfter: time.Duration(body.RetryAfterSec) * time.Second,
		}, nil
	default:
		return ResendResult{}, statusError("resend", resp.StatusCode)
	}
}

func (c *Client) VerificationStatus(ctx context.Context, email string) (bool, error) {
	resp, err := c.get(ctx, "/api/auth/verification/status", url.Values{"email": {email}})
	if err != nil {
		return false, err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return false, statusError("verification status", resp.StatusCode)
	}
	var body struct {
		Verified bool `json:"verified"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("verification status decode: %w", err)
	}
	return body.Verified, nil
}

// VerificationStatusURL is the status link for out-of-band use (QR code for
// finishing verification on another device).
func (c *Client) VerificationStatusURL(email string) string {
	return c.baseURL + "/api/auth/verification/status?" + url.Values{"email": {email}}.Encode()
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

func (c *Client) get(ctx context.Context, path string, q url.Values) (*http.Response, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

func statusError(op string, code int) error {
	return fmt.Errorf("%s: upstream returned %d", op, code)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
