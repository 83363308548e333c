// Package identity tracks who is signed in and whether they are the
// administrator.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// User is a signed-in identity as reported by the provider.
type User struct {
	ID    string
	Email string
}

// Provider is an external identity provider.
type Provider interface {
	// SignIn runs the provider's sign-in flow and returns the new user.
	SignIn(ctx context.Context) (*User, error)

	// SignOut ends the provider session.
	SignOut(ctx context.Context) error

	// OnChange registers fn to receive the current user (nil when signed
	// out) on every session change.  The returned func unregisters it.
	OnChange(fn func(*User)) (unsubscribe func())
}

// IsAdmin reports whether user is the administrator.  The comparison is an
// exact, case-sensitive match; an empty adminEmail matches nobody.
func IsAdmin(user *User, adminEmail string) bool {
	if user == nil || adminEmail == "" {
		return false
	}
	return user.Email == adminEmail
}

// Session is the process-wide view of the provider's session.  Create it
// with NewSession, call Start once at startup and Close at shutdown.
//
// The admin flag is recomputed on every identity change.  It is only as
// trustworthy as the client; the store must enforce the same rule
// server-side.
type Session struct {
	provider   Provider
	adminEmail string

	mu          sync.Mutex
	user        *User
	admin       bool
	unsubscribe func()
	closed      bool
	watchers    map[int]func(*User, bool)
	nextWatcher int
}

func NewSession(provider Provider, adminEmail string) *Session {
	return &Session{
		provider:   provider,
		adminEmail: adminEmail,
		watchers:   map[int]func(*User, bool){},
	}
}

// Start subscribes to the provider.  Calling Start on a started session is a
// no-op.
func (s *Session) Start() {
	s.mu.Lock()
	if s.unsubscribe != nil {
		s.mu.Unlock()
		return
	}
	s.closed = false
	s.mu.Unlock()

	unsubscribe := s.provider.OnChange(s.handleChange)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe != nil {
		// Lost a race with a concurrent Start.
		unsubscribe()
		return
	}
	s.unsubscribe = unsubscribe
}

// Close unsubscribes from the provider and forgets the signed-in user, so a
// closed session is never admin.  It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.closed = true
	s.user = nil
	s.admin = false
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Current returns the signed-in user (nil if none) and the admin flag.
func (s *Session) Current() (*User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user, s.admin
}

// User returns the signed-in user, or nil.
func (s *Session) User() *User {
	u, _ := s.Current()
	return u
}

// IsAdmin reports whether the signed-in user is the administrator.
func (s *Session) IsAdmin() bool {
	_, admin := s.Current()
	return admin
}

// Watch registers fn to be called after every identity change.
func (s *Session) Watch(fn func(user *User, admin bool)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextWatcher
	s.nextWatcher++
	s.watchers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
	}
}

// SignIn delegates to the provider.  A provider failure is returned as-is
// and leaves the session unchanged; the new state arrives through the
// subscription.
func (s *Session) SignIn(ctx context.Context) (*User, error) {
	user, err := s.provider.SignIn(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Error signing in", slog.Any("err", err))
		return nil, fmt.Errorf("while signing in: %w", err)
	}
	slog.InfoContext(ctx, "User signed in", slog.String("user", user.ID))
	return user, nil
}

// SignOut delegates to the provider, with the same failure rules as SignIn.
func (s *Session) SignOut(ctx context.Context) error {
	if err := s.provider.SignOut(ctx); err != nil {
		slog.ErrorContext(ctx, "Error signing out", slog.Any("err", err))
		return fmt.Errorf("while signing out: %w", err)
	}
	slog.InfoContext(ctx, "User signed out")
	return nil
}

func (s *Session) handleChange(user *User) {
	s.mu.Lock()
	if s.closed {
		// A change delivered while Close was unsubscribing.
		s.mu.Unlock()
		return
	}
	s.user = user
	s.admin = IsAdmin(user, s.adminEmail)
	admin := s.admin
	watchers := make([]func(*User, bool), 0, len(s.watchers))
	for _, w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.mu.Unlock()

	if user == nil {
		slog.Info("Identity changed: signed out")
	} else {
		slog.Info("Identity changed", slog.String("user", user.ID), slog.Bool("admin", admin))
	}

	for _, w := range watchers {
		w(user, admin)
	}
}
