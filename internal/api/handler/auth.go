package handler

import (
	"errors"
	"net/http"

	"github.com/livebetter/livebetter/internal/api/models"
	"github.com/livebetter/livebetter/internal/api/response"
	"github.com/livebetter/livebetter/internal/auth"
)

// AuthHandler handles account and token endpoints.
type AuthHandler struct {
	authService *auth.Service
	sessions    *Sessions
}

// NewAuthHandler creates a new AuthHandler. sessions may be nil, in which
// case email changes only reach sessions started afterwards.
func NewAuthHandler(authService *auth.Service, sessions *Sessions) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		sessions:    sessions,
	}
}

// Register handles POST /v1/auth/register - create an account and sign in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tokenResp, err := h.authService.Register(r.Context(), &req)
	if err != nil {
		if errors.Is(err, auth.ErrUsernameTaken) {
			response.Conflict(w, r, "username is already taken")
			return
		}
		response.InternalError(w, r, "registration failed")
		return
	}

	response.Created(w, r, "/v1/me", tokenResp)
}

// Login handles POST /v1/auth/login - password login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tokenResp, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			response.Unauthorized(w, r, "invalid username or password")
			return
		}
		response.InternalError(w, r, "login failed")
		return
	}

	response.JSON(w, r, http.StatusOK, tokenResp)
}

// RefreshToken handles POST /v1/auth/refresh - rotate the refresh token.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req auth.RefreshTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tokenResp, err := h.authService.RefreshAccessToken(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidRefreshToken):
			response.Unauthorized(w, r, "invalid refresh token")
		case errors.Is(err, auth.ErrRefreshTokenExpired):
			response.Unauthorized(w, r, "refresh token has expired")
		case errors.Is(err, auth.ErrUserNotFound):
			response.Unauthorized(w, r, "user not found")
		default:
			response.InternalError(w, r, "token refresh failed")
		}
		return
	}

	response.JSON(w, r, http.StatusOK, tokenResp)
}

// Logout handles POST /v1/auth/logout - revoke one refresh token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req auth.RefreshTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.authService.RevokeRefreshToken(r.Context(), req.RefreshToken); err != nil {
		response.InternalError(w, r, "logout failed")
		return
	}

	response.NoContent(w, r)
}

// LogoutAll handles POST /v1/auth/logout-all - revoke every refresh token of the caller.
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.authService.RevokeAllTokens(r.Context(), userID); err != nil {
		response.InternalError(w, r, "logout failed")
		return
	}

	response.NoContent(w, r)
}

// GetMe handles GET /v1/me - the current account.
func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	user, err := h.authService.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			response.NotFound(w, r, "user not found")
			return
		}
		response.InternalError(w, r, "failed to load user")
		return
	}

	response.JSON(w, r, http.StatusOK, toMe(user))
}

// UpdateMe handles PATCH /v1/me - change the alert email. A running session
// picks up the new contact immediately.
func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var input models.MeInput
	if !decodeJSON(w, r, &input) {
		return
	}
	if input.Email == nil {
		response.BadRequest(w, r, "validation error", []models.FieldError{
			{Field: "email", Message: "is required", Code: "required"},
		})
		return
	}

	user, err := h.authService.UpdateEmail(r.Context(), userID, *input.Email)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			response.NotFound(w, r, "user not found")
			return
		}
		response.InternalError(w, r, "failed to update user")
		return
	}

	if h.sessions != nil {
		if sess, ok := h.sessions.Lookup(userID); ok {
			sess.SetContact(user.Email)
		}
	}

	response.JSON(w, r, http.StatusOK, toMe(user))
}

func toMe(u *auth.User) models.Me {
	return models.Me{
		UserID:    u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: models.Timestamp(u.CreatedAt),
	}
}
