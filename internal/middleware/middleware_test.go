package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-library-api/internal/models"
	appErrors "github.com/noah-isme/sma-library-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type validatorStub struct {
	claims map[string]*models.JWTClaims
}

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := v.claims[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

func borrowerClaims(email string) *models.JWTClaims {
	return &models.JWTClaims{
		Email:            email,
		Role:             models.RoleBorrower,
		RegisteredClaims: jwt.RegisteredClaims{Subject: email},
	}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{
		Role:             models.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: models.AdminSubject},
	}
}

func newTokens() validatorStub {
	return validatorStub{claims: map[string]*models.JWTClaims{
		"borrower": borrowerClaims("ana@school.edu"),
		"admin":    adminClaims(),
	}}
}

func serve(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("User-Agent", "desk-client")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestJWTMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/me", JWT(newTokens()), func(c *gin.Context) {
		claims := c.MustGet(ContextUserKey).(*models.JWTClaims)
		c.String(http.StatusOK, claims.Subject)
	})

	rec := serve(r, http.MethodGet, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(r, http.MethodGet, "/me", "forged")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(r, http.MethodGet, "/me", "borrower")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ana@school.edu", rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Basic borrower")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOptionalJWTNeverBlocks(t *testing.T) {
	r := gin.New()
	r.GET("/catalog", OptionalJWT(newTokens()), func(c *gin.Context) {
		_, ok := c.Get(ContextUserKey)
		if ok {
			c.String(http.StatusOK, "user")
			return
		}
		c.String(http.StatusOK, "anonymous")
	})

	assert.Equal(t, "anonymous", serve(r, http.MethodGet, "/catalog", "").Body.String())
	assert.Equal(t, "anonymous", serve(r, http.MethodGet, "/catalog", "forged").Body.String())
	assert.Equal(t, "user", serve(r, http.MethodGet, "/catalog", "borrower").Body.String())
}

func TestRBACRoles(t *testing.T) {
	r := gin.New()
	tokens := newTokens()
	r.POST("/admin/loans/:id/return", JWT(tokens), RequireRoles(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/borrowers/:id", JWT(tokens), RBAC(string(models.RoleAdmin), "SELF"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodPost, "/admin/loans/1/return", "borrower").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/admin/loans/1/return", "admin").Code)

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/borrowers/ana@school.edu", "borrower").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/borrowers/luis@school.edu", "borrower").Code)
}

func TestRBACWithoutClaims(t *testing.T) {
	r := gin.New()
	r.GET("/admin", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/admin", "").Code)
}

type auditWriterStub struct {
	logs []*models.AuditLog
	err  error
}

func (a *auditWriterStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return a.err
}

func TestAuditRecordsSuccessfulRequests(t *testing.T) {
	audit := &auditWriterStub{}
	r := gin.New()
	r.POST("/admin/loans/:id/return", JWT(newTokens()), Audit(audit, nil, models.AuditActionLoanReturn, "loan"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.POST("/admin/loans/:id/fail", JWT(newTokens()), Audit(audit, nil, models.AuditActionLoanReturn, "loan"), func(c *gin.Context) {
		c.Status(http.StatusConflict)
	})

	require.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/admin/loans/12/return", "admin").Code)
	require.Len(t, audit.logs, 1)
	entry := audit.logs[0]
	assert.Equal(t, models.AuditActionLoanReturn, entry.Action)
	assert.Equal(t, "loan", entry.Resource)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "12", *entry.ResourceID)
	require.NotNil(t, entry.Actor)
	assert.Equal(t, models.AdminSubject, *entry.Actor)
	assert.Equal(t, "desk-client", entry.UserAgent)
	assert.Contains(t, string(entry.Payload), `"status":200`)

	serve(r, http.MethodPost, "/admin/loans/12/fail", "admin")
	assert.Len(t, audit.logs, 1)
}

func TestAuditWriterFailureDoesNotChangeResponse(t *testing.T) {
	audit := &auditWriterStub{err: errors.New("db down")}
	r := gin.New()
	r.POST("/admin/reports", Audit(audit, nil, models.AuditActionReport, "report"), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	rec := serve(r, http.MethodPost, "/admin/reports", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, audit.logs, 1)
	assert.Nil(t, audit.logs[0].Actor)
}
