package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/livebetter/livebetter/internal/api/response"
	"github.com/livebetter/livebetter/internal/auth"
	"github.com/livebetter/livebetter/internal/session"
)

// UserFinder loads accounts by ID.
type UserFinder interface {
	GetUser(ctx context.Context, userID string) (*auth.User, error)
}

// Sessions resolves the live refresh session of an authenticated user,
// starting it on first use with the account email as the alert contact.
type Sessions struct {
	manager *session.Manager
	users   UserFinder
}

// NewSessions creates a session resolver.
func NewSessions(manager *session.Manager, users UserFinder) *Sessions {
	return &Sessions{manager: manager, users: users}
}

// For returns the user's session.
func (s *Sessions) For(ctx context.Context, userID string) (*session.Session, error) {
	if sess, ok := s.manager.Lookup(userID); ok {
		return sess, nil
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.manager.Get(ctx, userID, user.Email)
}

// Lookup returns the user's session if one is running.
func (s *Sessions) Lookup(userID string) (*session.Session, bool) {
	return s.manager.Lookup(userID)
}

// sessionFor resolves the caller's session and writes a problem response on
// failure.
func (s *Sessions) sessionFor(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return nil, false
	}

	sess, err := s.For(r.Context(), userID)
	switch {
	case err == nil:
		return sess, true
	case errors.Is(err, auth.ErrUserNotFound):
		response.Unauthorized(w, r, "user not found")
	case errors.Is(err, session.ErrClosed):
		response.ServiceUnavailable(w, r, "service is shutting down")
	default:
		response.InternalError(w, r, "failed to load session")
	}
	return nil, false
}
