package handler

import (
	"context"
	"net/http"

	"github.com/livebetter/livebetter/internal/api/middleware"
	"github.com/livebetter/livebetter/internal/api/response"
)

// GetUserID retrieves the authenticated user ID from the context.
// This is a convenience wrapper around middleware.GetUserID.
func GetUserID(ctx context.Context) string {
	return middleware.GetUserID(ctx)
}

// requireUser returns the authenticated user ID, writing a 401 when the
// request carries none.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, r, "authentication required")
		return "", false
	}
	return userID, true
}
