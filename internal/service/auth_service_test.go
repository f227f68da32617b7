package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/school-suite-api/internal/models"
	appErrors "github.com/noah-isme/school-suite-api/pkg/errors"
)

type mockAuthRepo struct {
	user             *models.User
	refreshTokens    map[string]*models.RefreshToken
	auditLogs        []*models.AuditLog
	lastLoginUpdated bool
	revokedAll       bool
}

func (m *mockAuthRepo) FindByLogin(ctx context.Context, login string) (*models.User, error) {
	if m.user == nil || (m.user.Username != login && m.user.Email != login) {
		return nil, sql.ErrNoRows
	}
	return m.user, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.user == nil || m.user.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.user, nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if m.user != nil && m.user.ID == id {
		m.user.PasswordHash = passwordHash
	}
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedAll = true
	for _, token := range m.refreshTokens {
		if token.UserID == userID {
			token.Revoked = true
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]*models.RefreshToken)
	}
	m.refreshTokens[token.TokenHash] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	rt, ok := m.refreshTokens[tokenHash]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func newAuthFixture(t *testing.T, active bool) (*AuthService, *mockAuthRepo) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	require.NoError(t, err)
	inst := "inst-i"
	repo := &mockAuthRepo{user: &models.User{ID: "u1", InstitutionID: &inst, Username: "ana", Email: "ana@example.com", PasswordHash: string(hash), Active: active, Role: models.RoleAdmin}}
	svc := NewAuthService(repo, nil, zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
	})
	return svc, repo
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	svc, repo := newAuthFixture(t, true)

	res, err := svc.Login(context.Background(), models.LoginRequest{Username: "ana@example.com", Password: "password", IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.True(t, repo.lastLoginUpdated)
	assert.Equal(t, "ana", res.User.Username)

	stored, ok := repo.refreshTokens[hashRefreshToken(res.RefreshToken)]
	require.True(t, ok)
	assert.NotEqual(t, res.RefreshToken, stored.TokenHash)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionLogin, repo.auditLogs[0].Action)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "inst-i", claims.InstitutionID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestAuthServiceLoginFailures(t *testing.T) {
	svc, _ := newAuthFixture(t, false)
	ctx := context.Background()

	_, err := svc.Login(ctx, models.LoginRequest{Username: "ana", Password: "password"})
	assertAppError(t, err, appErrors.ErrInactiveAccount, "account is inactive")

	_, err = svc.Login(ctx, models.LoginRequest{Username: "ana", Password: "wrong"})
	assertAppError(t, err, appErrors.ErrInvalidCredentials, "invalid username or password")

	_, err = svc.Login(ctx, models.LoginRequest{Username: "nobody", Password: "password"})
	assertAppError(t, err, appErrors.ErrInvalidCredentials, "invalid username or password")

	_, err = svc.Login(ctx, models.LoginRequest{Username: "ana"})
	assertAppError(t, err, appErrors.ErrValidation, "invalid login payload")
}

func TestAuthServiceRefreshRotates(t *testing.T) {
	svc, repo := newAuthFixture(t, true)
	ctx := context.Background()
	login, err := svc.Login(ctx, models.LoginRequest{Username: "ana", Password: "password"})
	require.NoError(t, err)

	res, err := svc.RefreshToken(ctx, models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, res.RefreshToken)
	assert.True(t, repo.refreshTokens[hashRefreshToken(login.RefreshToken)].Revoked)

	_, err = svc.RefreshToken(ctx, models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	assertAppError(t, err, appErrors.ErrUnauthorized, "refresh token is expired or revoked")

	svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	_, err = svc.RefreshToken(ctx, models.RefreshTokenRequest{RefreshToken: res.RefreshToken})
	assertAppError(t, err, appErrors.ErrUnauthorized, "refresh token is expired or revoked")
}

func TestAuthServiceLogoutAndMe(t *testing.T) {
	svc, repo := newAuthFixture(t, true)
	ctx := context.Background()
	login, err := svc.Login(ctx, models.LoginRequest{Username: "ana", Password: "password"})
	require.NoError(t, err)

	err = svc.Logout(ctx, login.RefreshToken, "someone-else", "", "")
	assertAppError(t, err, appErrors.ErrForbidden, "token does not belong to user")

	require.NoError(t, svc.Logout(ctx, login.RefreshToken, "u1", "", ""))
	assert.True(t, repo.refreshTokens[hashRefreshToken(login.RefreshToken)].Revoked)

	me, err := svc.Me(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", me.Email)

	_, err = svc.Me(ctx, "missing")
	assertAppError(t, err, appErrors.ErrNotFound, "user not found")
}

func TestAuthServiceChangePassword(t *testing.T) {
	svc, repo := newAuthFixture(t, true)
	oldHash := repo.user.PasswordHash

	err := svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{OldPassword: "nope", NewPassword: "newpassword"})
	assertAppError(t, err, appErrors.ErrForbidden, "old password does not match")

	err = svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{OldPassword: "password", NewPassword: "newpassword"})
	require.NoError(t, err)
	assert.NotEqual(t, oldHash, repo.user.PasswordHash)
	assert.True(t, repo.revokedAll)
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	svc, _ := newAuthFixture(t, true)
	other := NewAuthService(&mockAuthRepo{}, nil, nil, AuthConfig{AccessTokenSecret: "other", AccessTokenExpiry: time.Hour})
	token, _, err := other.generateAccessToken(&models.User{ID: "u1", Role: models.RoleAdmin})
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assertAppError(t, err, appErrors.ErrUnauthorized, "invalid token")
}
