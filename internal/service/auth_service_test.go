package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/srms-dev/srms-api/internal/models"
	appErrors "github.com/srms-dev/srms-api/pkg/errors"
)

type mockUserRepo struct {
	usersByEmail map[string]*models.User
	usersByID    map[string]*models.User
	created      []*models.User
	createErr    error
	findErr      error
}

func newMockUserRepo(users ...*models.User) *mockUserRepo {
	m := &mockUserRepo{
		usersByEmail: make(map[string]*models.User),
		usersByID:    make(map[string]*models.User),
	}
	for _, u := range users {
		m.usersByEmail[u.Email] = u
		m.usersByID[u.ID] = u
	}
	return m
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	u, ok := m.usersByEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	u, ok := m.usersByID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, user)
	m.usersByEmail[user.Email] = user
	m.usersByID[user.ID] = user
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	m.usersByID[user.ID] = user
	return nil
}

func (m *mockUserRepo) RecordLogin(ctx context.Context, id, refreshToken string, ts time.Time) error {
	u := m.usersByID[id]
	u.RefreshToken = &refreshToken
	u.LastLoginAt = &ts
	u.LoginCount++
	return nil
}

func (m *mockUserRepo) RotateRefreshToken(ctx context.Context, id, refreshToken string) error {
	m.usersByID[id].RefreshToken = &refreshToken
	return nil
}

func (m *mockUserRepo) RevokeTokens(ctx context.Context, id string) error {
	u := m.usersByID[id]
	u.TokenVersion++
	u.RefreshToken = nil
	return nil
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	u := m.usersByID[id]
	u.PasswordHash = passwordHash
	u.TokenVersion++
	u.RefreshToken = nil
	return nil
}

type mockAudit struct {
	entries []models.AuditLog
}

func (m *mockAudit) Record(ctx context.Context, entry models.AuditLog) {
	m.entries = append(m.entries, entry)
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessSecret:      "access-secret",
		RefreshSecret:     "refresh-secret",
		AccessExpiration:  15 * time.Minute,
		RefreshExpiration: 24 * time.Hour,
		Issuer:            "srms-test",
	}
}

func activeUser(password string) *models.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return &models.User{
		ID:           "u1",
		Email:        "user@example.com",
		PasswordHash: string(hash),
		FirstName:    "Jane",
		LastName:     "Doe",
		Role:         models.RoleTeacher,
		Active:       true,
	}
}

func TestAuthServiceRegisterDefaultsToStudent(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewAuthService(repo, nil, validator.New(), zap.NewNop(), testAuthConfig())

	user, err := svc.Register(context.Background(), models.RegisterRequest{
		FirstName: "New",
		LastName:  "User",
		Email:     "new@example.com",
		Password:  "password123",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, user.Role)
	assert.True(t, user.Active)
	assert.NotEqual(t, "password123", user.PasswordHash)
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	user := activeUser("password123")
	repo := newMockUserRepo(user)
	audit := &mockAudit{}
	svc := NewAuthService(repo, audit, validator.New(), zap.NewNop(), testAuthConfig())

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: user.Email, Password: "password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, user.ID, res.User.ID)
	require.NotNil(t, user.RefreshToken)
	assert.Equal(t, res.RefreshToken, *user.RefreshToken)
	assert.Equal(t, 1, user.LoginCount)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionLogin, audit.entries[0].Action)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	repo := newMockUserRepo(activeUser("password123"))
	svc := NewAuthService(repo, nil, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "wrong-password"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginInactive(t *testing.T) {
	user := activeUser("password123")
	user.Active = false
	repo := newMockUserRepo(user)
	svc := NewAuthService(repo, nil, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: user.Email, Password: "password123"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshRotatesToken(t *testing.T) {
	user := activeUser("password123")
	repo := newMockUserRepo(user)
	svc := NewAuthService(repo, nil, validator.New(), zap.NewNop(), testAuthConfig())

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: user.Email, Password: "password123"})
	require.NoError(t, err)

	pair, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	require.NotNil(t, user.RefreshToken)
	assert.Equal(t, pair.RefreshToken, *user.RefreshToken)

	// The replaced token no longer matches the stored one.
	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshRejectedAfterLogout(t *testing.T) {
	user := activeUser("password123")
	repo := newMockUserRepo(user)
	svc := NewAuthService(repo, nil, validator.New(), zap.NewNop(), testAuthConfig())

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: user.Email, Password: "password123"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), user.ID))
	assert.Nil(t, user.RefreshToken)

	_, err = svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceChangePasswordRevokesTokens(t *testing.T) {
	user := activeUser("old-password")
	repo := newMockUserRepo(user)
	svc := NewAuthService(repo, nil, validator.New(), zap.NewNop(), testAuthConfig())

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: user.Email, Password: "old-password"})
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), user.ID, models.ChangePasswordRequest{
		CurrentPassword: "old-password",
		NewPassword:     "new-password",
	})
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("new-password")))

	// Access tokens issued before the change carry the old version.
	claims, err := svc.VerifyAccessToken(login.AccessToken)
	require.NoError(t, err)
	_, err = svc.LoadVerifiedUser(context.Background(), claims)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceChangePasswordWrongCurrent(t *testing.T) {
	user := activeUser("old-password")
	repo := newMockUserRepo(user)
	svc := NewAuthService(repo, nil, validator.New(), zap.NewNop(), testAuthConfig())

	err := svc.ChangePassword(context.Background(), user.ID, models.ChangePasswordRequest{
		CurrentPassword: "not-the-password",
		NewPassword:     "new-password",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceVerifyAccessToken(t *testing.T) {
	user := activeUser("password123")
	repo := newMockUserRepo(user)
	svc := NewAuthService(repo, nil, validator.New(), zap.NewNop(), testAuthConfig())

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: user.Email, Password: "password123"})
	require.NoError(t, err)

	claims, err := svc.VerifyAccessToken(login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Role, claims.Role)

	loaded, err := svc.LoadVerifiedUser(context.Background(), claims)
	require.NoError(t, err)
	assert.Equal(t, user.ID, loaded.ID)
}

func TestAuthServiceVerifyAccessTokenTampered(t *testing.T) {
	svc := NewAuthService(newMockUserRepo(), nil, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.VerifyAccessToken("not-a-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
	assert.Equal(t, appErrors.ErrUnauthorized.Message, appErrors.FromError(err).Message)
}

func TestAuthServiceRefreshTokenNotAcceptedAsAccess(t *testing.T) {
	user := activeUser("password123")
	repo := newMockUserRepo(user)
	svc := NewAuthService(repo, nil, validator.New(), zap.NewNop(), testAuthConfig())

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: user.Email, Password: "password123"})
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(login.RefreshToken)
	require.Error(t, err)
}
