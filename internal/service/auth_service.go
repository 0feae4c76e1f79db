package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-library-api/internal/models"
	appErrors "github.com/noah-isme/sma-library-api/pkg/errors"
)

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
	InstitutionDomain string
	AdminPasswordHash string
}

// AuthService issues session tokens. Borrowers are identified by an
// institutional email address; the library desk signs in with a password
// verified against a bcrypt hash from configuration.
type AuthService struct {
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(audit auditLogger, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = 8 * time.Hour
	}
	config.InstitutionDomain = strings.ToLower(strings.TrimSpace(config.InstitutionDomain))
	return &AuthService{audit: audit, validator: validate, logger: logger, config: config, now: time.Now}
}

// LoginBorrower opens a borrower session for an institutional email address.
func (s *AuthService) LoginBorrower(ctx context.Context, req models.BorrowerLoginRequest) (*models.LoginResponse, error) {
	req.Email = normaliseEmail(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}
	if s.config.InstitutionDomain != "" && !strings.HasSuffix(req.Email, s.config.InstitutionDomain) {
		s.recordLogin(ctx, models.AuditActionLogin, req.Email, false, req.IP, req.UserAgent)
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, fmt.Sprintf("email must end with %s", s.config.InstitutionDomain))
	}

	fullName := req.FullName
	if fullName == "" {
		fullName = strings.SplitN(req.Email, "@", 2)[0]
	}
	info := models.UserInfo{Email: req.Email, FullName: fullName, Role: models.RoleBorrower}
	resp, err := s.issue(req.Email, info)
	if err != nil {
		return nil, err
	}
	s.recordLogin(ctx, models.AuditActionLogin, req.Email, true, req.IP, req.UserAgent)
	return resp, nil
}

// LoginAdmin opens a library desk session.
func (s *AuthService) LoginAdmin(ctx context.Context, req models.AdminLoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}
	if s.config.AdminPasswordHash == "" {
		s.logger.Warn("admin login attempted without ADMIN_PASSWORD_HASH configured")
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "admin login disabled")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.config.AdminPasswordHash), []byte(req.Password)); err != nil {
		s.recordLogin(ctx, models.AuditActionAdminLogin, models.AdminSubject, false, req.IP, req.UserAgent)
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid password")
	}

	info := models.UserInfo{FullName: "Library desk", Role: models.RoleAdmin}
	resp, err := s.issue(models.AdminSubject, info)
	if err != nil {
		return nil, err
	}
	s.recordLogin(ctx, models.AuditActionAdminLogin, models.AdminSubject, true, req.IP, req.UserAgent)
	return resp, nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.config.AccessTokenSecret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	switch claims.Role {
	case models.RoleAdmin, models.RoleBorrower:
	default:
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unknown role")
	}
	return claims, nil
}

func (s *AuthService) issue(subject string, info models.UserInfo) (*models.LoginResponse, error) {
	issuedAt := s.now().UTC()
	claims := &models.JWTClaims{
		Email:    info.Email,
		FullName: info.FullName,
		Role:     info.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.config.AccessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	return &models.LoginResponse{
		AccessToken: signed,
		ExpiresIn:   int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:    issuedAt,
		User:        info,
	}, nil
}

func (s *AuthService) recordLogin(ctx context.Context, action, actor string, success bool, ip, userAgent string) {
	if s.audit == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	payload, _ := json.Marshal(map[string]string{"status": status})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		Actor:     &actor,
		Action:    action,
		Resource:  "auth",
		Payload:   payload,
		IPAddress: ip,
		UserAgent: userAgent,
	}); err != nil {
		s.logger.Warn("failed to record login audit log", zap.Error(err))
	}
}
