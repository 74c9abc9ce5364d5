package session

import (
	"context"
	"fmt"

	"garrison-gate/core/utils"
)

// Service is the session lifecycle: the only writer of the Store.
type Service struct {
	store   *Store
	backend Backend
	logger  *utils.Logger
}

func NewService(store *Store, backend Backend, logger *utils.Logger) *Service {
	return &Service{store: store, backend: backend, logger: logger}
}

func (s *Service) Store() *Store {
	return s.store
}

// Login chains credential submission with profile hydration. The composite
// succeeds only when both calls do; a profile failure after a successful
// credential submission still reports failure and leaves the store anonymous.
func (s *Service) Login(ctx context.Context, creds Credentials) (*User, error) {
	if err := s.backend.Login(ctx, creds); err != nil {
		return nil, err
	}
	user, err := s.backend.Profile(ctx)
	if err != nil {
		s.store.clear()
		return nil, fmt.Errorf("profile fetch after login: %w", err)
	}
	if user == nil {
		s.store.clear()
		return nil, ErrProfileUnavailable
	}
	s.store.setAuthenticated(user)
	if s.logger != nil {
		s.logger.Printf("AUTH login user=%s roles=%v", user.Email, user.Roles)
	}
	return s.store.Snapshot().User, nil
}

// Logout notifies the server best-effort and always clears local state: a
// failing logout endpoint must never trap a user in a session they believe
// they've left. The server error is logged, not returned.
func (s *Service) Logout(ctx context.Context) {
	if err := s.backend.Logout(ctx); err != nil && s.logger != nil {
		s.logger.Warnf("AUTH logout server call failed, clearing local state anyway: %v", err)
	}
	s.store.clear()
	if s.logger != nil {
		s.logger.Printf("AUTH logout")
	}
}

// Me refreshes the profile. A response carrying no user payload means "no
// active session": a valid outcome normalized to (nil, nil), clearing the
// store. Transport errors propagate unchanged and leave the store as-is.
func (s *Service) Me(ctx context.Context) (*User, error) {
	user, err := s.backend.Profile(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		s.store.clear()
		return nil, nil
	}
	s.store.setAuthenticated(user)
	return s.store.Snapshot().User, nil
}

// Hydrate runs one Me attempt and marks the store hydrated regardless of the
// outcome, releasing the router's initial-navigation gate.
func (s *Service) Hydrate(ctx context.Context) {
	if _, err := s.Me(ctx); err != nil && s.logger != nil {
		s.logger.Warnf("AUTH hydration attempt failed, treating session as anonymous: %v", err)
	}
	s.store.MarkHydrated()
}
