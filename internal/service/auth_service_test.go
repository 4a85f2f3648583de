package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agromarket-api/internal/models"
	appErrors "github.com/noah-isme/agromarket-api/pkg/errors"
)

func newAuthFixture(t *testing.T, single bool) (*marketFixture, *AuthService) {
	t.Helper()
	f := newDirectory(t, DirectoryConfig{})
	svc := NewAuthService(f.userRepo, f.users, plainHasher{}, nil, nil, AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "agromarket",
		SingleSession:      single,
	})
	return f, svc
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	ctx := context.Background()
	f, svc := newAuthFixture(t, false)
	user := f.mustRegister(t, "login@example.com")

	res, err := svc.Login(ctx, models.LoginRequest{Email: "login@example.com", Password: "secret123", IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, int64(3600), res.ExpiresIn)
	assert.Equal(t, models.RoleNameUser, res.User.Role)
	assert.Equal(t, models.Permission(6), res.User.Permissions)
	assert.Equal(t, int64(1000), res.User.Wallet)
	assert.Len(t, f.store.tokens, 1)
	assert.False(t, f.user(ctx, user.ID).LastSeen.IsZero())

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.True(t, claims.Can(models.PermWrite))
	assert.False(t, claims.Can(models.PermModerate))
}

func TestAuthServiceLoginFailureIsOpaque(t *testing.T) {
	ctx := context.Background()
	f, svc := newAuthFixture(t, false)
	f.mustRegister(t, "login@example.com")

	_, wrongPassword := svc.Login(ctx, models.LoginRequest{Email: "login@example.com", Password: "bad"})
	_, unknownEmail := svc.Login(ctx, models.LoginRequest{Email: "ghost@example.com", Password: "bad"})

	require.Error(t, wrongPassword)
	require.Error(t, unknownEmail)
	assert.ErrorIs(t, wrongPassword, appErrors.ErrAuthFailure)
	assert.ErrorIs(t, unknownEmail, appErrors.ErrAuthFailure)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	assert.Empty(t, f.store.tokens)
}

func TestAuthServiceSingleSessionRevokesPrevious(t *testing.T) {
	ctx := context.Background()
	f, svc := newAuthFixture(t, true)
	f.mustRegister(t, "login@example.com")

	first, err := svc.Login(ctx, models.LoginRequest{Email: "login@example.com", Password: "secret123"})
	require.NoError(t, err)
	_, err = svc.Login(ctx, models.LoginRequest{Email: "login@example.com", Password: "secret123"})
	require.NoError(t, err)

	assert.True(t, f.store.tokens[first.RefreshToken].Revoked)
}

func TestAuthServiceRefreshToken(t *testing.T) {
	ctx := context.Background()
	f, svc := newAuthFixture(t, false)
	f.mustRegister(t, "login@example.com")
	login, err := svc.Login(ctx, models.LoginRequest{Email: "login@example.com", Password: "secret123"})
	require.NoError(t, err)

	res, err := svc.RefreshToken(ctx, models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEqual(t, login.RefreshToken, res.RefreshToken)
	assert.True(t, f.store.tokens[login.RefreshToken].Revoked)

	_, err = svc.RefreshToken(ctx, models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestAuthServiceLogout(t *testing.T) {
	ctx := context.Background()
	f, svc := newAuthFixture(t, false)
	user := f.mustRegister(t, "login@example.com")
	other := f.mustRegister(t, "other@example.com")
	login, err := svc.Login(ctx, models.LoginRequest{Email: "login@example.com", Password: "secret123"})
	require.NoError(t, err)

	err = svc.Logout(ctx, login.RefreshToken, other.ID, models.LoginRequest{})
	assert.ErrorIs(t, err, appErrors.ErrPermissionDenied)

	require.NoError(t, svc.Logout(ctx, login.RefreshToken, user.ID, models.LoginRequest{}))
	assert.True(t, f.store.tokens[login.RefreshToken].Revoked)
}

func TestAuthServiceChangePassword(t *testing.T) {
	ctx := context.Background()
	f, svc := newAuthFixture(t, false)
	user := f.mustRegister(t, "login@example.com")

	err := svc.ChangePassword(ctx, user.ID, models.ChangePasswordRequest{OldPassword: "wrong", NewPassword: "newpassword"})
	assert.ErrorIs(t, err, appErrors.ErrAuthFailure)

	require.NoError(t, svc.ChangePassword(ctx, user.ID, models.ChangePasswordRequest{OldPassword: "secret123", NewPassword: "newpassword"}))
	_, err = svc.Login(ctx, models.LoginRequest{Email: "login@example.com", Password: "newpassword"})
	require.NoError(t, err)
	_, err = svc.Login(ctx, models.LoginRequest{Email: "login@example.com", Password: "secret123"})
	assert.ErrorIs(t, err, appErrors.ErrAuthFailure)
}

func TestValidateTokenRejectsForeignSignature(t *testing.T) {
	f, svc := newAuthFixture(t, false)
	user := f.mustRegister(t, "login@example.com")
	other := NewAuthService(f.userRepo, f.users, plainHasher{}, nil, nil, AuthConfig{AccessTokenSecret: "other", AccessTokenExpiry: time.Hour})

	token, _, err := other.generateAccessToken(user)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
