package auth_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/livebetter/livebetter/internal/auth"
)

func newAuthService() (*auth.Service, *auth.InMemoryUserRepository) {
	users := auth.NewInMemoryUserRepository()
	svc := auth.NewService(auth.ServiceConfig{
		Tokens:      newIssuer(testKey, testIssuer, testAudience, nil),
		UserRepo:    users,
		RefreshRepo: auth.NewInMemoryRefreshTokenRepository(),
		BcryptCost:  bcrypt.MinCost,
		Logger:      zerolog.Nop(),
	})
	return svc, users
}

func register(t *testing.T, svc *auth.Service) *auth.TokenResponse {
	t.Helper()
	resp, err := svc.Register(context.Background(), &auth.RegisterRequest{
		Username: "alice",
		Password: "correct-horse",
		Email:    "alice@example.com",
	})
	require.NoError(t, err)
	return resp
}

func TestService_Register(t *testing.T) {
	svc, users := newAuthService()

	resp := register(t, svc)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int64(auth.DefaultTokenPolicy().AccessTTL.Seconds()), resp.ExpiresIn)
	assert.NotEmpty(t, resp.RefreshToken)
	require.NotNil(t, resp.User)
	assert.Equal(t, "alice", resp.User.Username)

	stored, err := users.FindByUsername(context.Background(), "ALICE")
	require.NoError(t, err)
	assert.NotEqual(t, "correct-horse", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("correct-horse")))

	userID, err := svc.ValidateAccessToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, userID)
}

func TestService_RegisterDuplicate(t *testing.T) {
	svc, _ := newAuthService()
	register(t, svc)

	_, err := svc.Register(context.Background(), &auth.RegisterRequest{Username: "Alice", Password: "another-pass"})
	assert.ErrorIs(t, err, auth.ErrUsernameTaken)
}

func TestService_Login(t *testing.T) {
	svc, _ := newAuthService()
	registered := register(t, svc)
	ctx := context.Background()

	resp, err := svc.Login(ctx, &auth.LoginRequest{Username: "alice", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, resp.User.ID)

	_, err = svc.Login(ctx, &auth.LoginRequest{Username: "alice", Password: "wrong"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = svc.Login(ctx, &auth.LoginRequest{Username: "bob", Password: "correct-horse"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestService_RefreshRotates(t *testing.T) {
	svc, _ := newAuthService()
	first := register(t, svc)
	ctx := context.Background()

	second, err := svc.RefreshAccessToken(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = svc.RefreshAccessToken(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrInvalidRefreshToken, "rotated token cannot be reused")

	require.NoError(t, svc.RevokeAllTokens(ctx, second.User.ID))
	_, err = svc.RefreshAccessToken(ctx, second.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrInvalidRefreshToken)

	_, err = svc.RefreshAccessToken(ctx, "unknown")
	assert.ErrorIs(t, err, auth.ErrInvalidRefreshToken)
}

func TestService_UpdateEmail(t *testing.T) {
	svc, _ := newAuthService()
	resp := register(t, svc)
	ctx := context.Background()

	user, err := svc.UpdateEmail(ctx, resp.User.ID, " new@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email)

	_, err = svc.UpdateEmail(ctx, "usr_missing", "x@example.com")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}
