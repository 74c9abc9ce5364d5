package session

import "context"

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// User is the session record. It is owned by the Store; everyone else only
// ever sees copies.
type User struct {
	ID       int64    `json:"id"`
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.Roles = make([]string, len(u.Roles))
	copy(cp.Roles, u.Roles)
	return &cp
}

// Snapshot is an immutable view of the session cell pair. LoggedIn and User
// are always consistent: either both set or both cleared.
type Snapshot struct {
	LoggedIn bool
	User     *User
	Version  uint64
}

func (s Snapshot) Roles() []string {
	if s.User == nil {
		return nil
	}
	return s.User.Roles
}

// Backend is the upstream credential boundary the lifecycle service talks to.
type Backend interface {
	// Login submits credentials; a nil error is only an acknowledgment, the
	// profile still has to be fetched.
	Login(ctx context.Context, creds Credentials) error
	// Profile returns the current user, or (nil, nil) when the server reports
	// no active session.
	Profile(ctx context.Context) (*User, error)
	Logout(ctx context.Context) error
}
