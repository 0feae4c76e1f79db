package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-library-api/internal/models"
)

type fakeAuditReader struct {
	limit int
	err   error
}

func (f *fakeAuditReader) ListRecent(_ context.Context, limit int) ([]models.AuditLog, error) {
	f.limit = limit
	return []models.AuditLog{}, f.err
}

func TestAuditHandlerClampsLimit(t *testing.T) {
	reader := &fakeAuditReader{}
	handler := NewAuditHandler(reader)

	c, rec := newContext(http.MethodGet, "/admin/audit-logs?limit=9000", nil)
	handler.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxAuditLimit, reader.limit)
}

func TestAuditHandlerDefaultsAndErrors(t *testing.T) {
	reader := &fakeAuditReader{err: errors.New("db down")}
	handler := NewAuditHandler(reader)

	c, rec := newContext(http.MethodGet, "/admin/audit-logs", nil)
	handler.List(c)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, defaultAuditLimit, reader.limit)
}
