package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-api/internal/models"
	appErrors "github.com/noah-isme/attendance-api/pkg/errors"
)

type stubUserRepo struct {
	users map[string]*models.User
}

func (s *stubUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func newAuthService() *AuthService {
	return NewAuthService(&stubUserRepo{users: map[string]*models.User{
		"u-1": {ID: "u-1", Role: models.RoleTeacher, Active: true},
		"u-2": {ID: "u-2", Role: models.RoleStudent, Active: false},
	}}, nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "attendance-api"})
}

func TestAuthServiceIssueAndValidate(t *testing.T) {
	svc := newAuthService()

	token, err := svc.IssueToken(models.User{ID: "u-1", Role: models.RoleTeacher, Email: "t@example.edu"}, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
}

func TestAuthServiceRejectsExpiredAndForeignTokens(t *testing.T) {
	svc := newAuthService()

	expired, err := svc.IssueToken(models.User{ID: "u-1", Role: models.RoleTeacher}, -time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized.Code))

	other := NewAuthService(nil, nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "someone-else"})
	foreign, err := other.IssueToken(models.User{ID: "u-1", Role: models.RoleTeacher}, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized.Code))
}

func TestAuthServiceRejectsUnknownRole(t *testing.T) {
	svc := newAuthService()
	claims := models.JWTClaims{
		UserID: "u-1",
		Role:   "JANITOR",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "attendance-api",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized.Code))
}

func TestAuthServiceCurrentUser(t *testing.T) {
	svc := newAuthService()

	user, err := svc.CurrentUser(context.Background(), models.Actor{UserID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, user.Role)

	_, err = svc.CurrentUser(context.Background(), models.Actor{UserID: "u-2"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))

	_, err = svc.CurrentUser(context.Background(), models.Actor{UserID: "missing"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}
