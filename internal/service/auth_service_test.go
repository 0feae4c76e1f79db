package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-library-api/internal/models"
	appErrors "github.com/noah-isme/sma-library-api/pkg/errors"
)

type auditLoggerStub struct {
	logs []*models.AuditLog
}

func (a *auditLoggerStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func newTestAuthService(t *testing.T, audit *auditLoggerStub) *AuthService {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("desk-secret"), bcrypt.MinCost)
	require.NoError(t, err)
	return NewAuthService(audit, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret: "secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "sma-library-api",
		InstitutionDomain: "@School.edu",
		AdminPasswordHash: string(hash),
	})
}

func TestAuthServiceLoginBorrowerSuccess(t *testing.T) {
	audit := &auditLoggerStub{}
	svc := newTestAuthService(t, audit)

	res, err := svc.LoginBorrower(context.Background(), models.BorrowerLoginRequest{Email: " Ana.Garcia@school.edu "})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, int64(3600), res.ExpiresIn)
	assert.Equal(t, "ana.garcia@school.edu", res.User.Email)
	assert.Equal(t, "ana.garcia", res.User.FullName)
	assert.Equal(t, models.RoleBorrower, res.User.Role)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ana.garcia@school.edu", claims.Email)
	assert.Equal(t, "ana.garcia@school.edu", claims.Subject)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionLogin, audit.logs[0].Action)
}

func TestAuthServiceLoginBorrowerRejectsForeignDomain(t *testing.T) {
	audit := &auditLoggerStub{}
	svc := newTestAuthService(t, audit)

	_, err := svc.LoginBorrower(context.Background(), models.BorrowerLoginRequest{Email: "ana@gmail.com"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
	require.Len(t, audit.logs, 1)
	assert.JSONEq(t, `{"status":"failure"}`, string(audit.logs[0].Payload))
}

func TestAuthServiceLoginBorrowerValidation(t *testing.T) {
	svc := newTestAuthService(t, &auditLoggerStub{})

	_, err := svc.LoginBorrower(context.Background(), models.BorrowerLoginRequest{Email: "not-an-email"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestAuthServiceLoginAdmin(t *testing.T) {
	audit := &auditLoggerStub{}
	svc := newTestAuthService(t, audit)

	_, err := svc.LoginAdmin(context.Background(), models.AdminLoginRequest{Password: "wrong"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))

	res, err := svc.LoginAdmin(context.Background(), models.AdminLoginRequest{Password: "desk-secret"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, res.User.Role)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.AdminSubject, claims.Subject)
	assert.Len(t, audit.logs, 2)
}

func TestAuthServiceLoginAdminDisabledWithoutHash(t *testing.T) {
	svc := NewAuthService(nil, nil, nil, AuthConfig{AccessTokenSecret: "secret"})

	_, err := svc.LoginAdmin(context.Background(), models.AdminLoginRequest{Password: "anything"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestAuthServiceValidateTokenRejectsTampering(t *testing.T) {
	svc := newTestAuthService(t, &auditLoggerStub{})
	res, err := svc.LoginBorrower(context.Background(), models.BorrowerLoginRequest{Email: "ana@school.edu"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(res.AccessToken + "x")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))

	other := NewAuthService(nil, nil, nil, AuthConfig{AccessTokenSecret: "other", Issuer: "sma-library-api"})
	_, err = other.ValidateToken(res.AccessToken)
	require.Error(t, err)
}

func TestAuthServiceValidateTokenRejectsExpired(t *testing.T) {
	svc := newTestAuthService(t, &auditLoggerStub{})
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	res, err := svc.LoginBorrower(context.Background(), models.BorrowerLoginRequest{Email: "ana@school.edu"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(res.AccessToken)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}
