package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-library-api/internal/dto"
	"github.com/noah-isme/sma-library-api/internal/models"
	appErrors "github.com/noah-isme/sma-library-api/pkg/errors"
)

type fakeLedgerSrv struct {
	created    dto.CreateLoanRequest
	createErr  error
	returnedID int64
	returnErr  error
	loansFor   string
	history    dto.LoanHistoryQuery
}

func (f *fakeLedgerSrv) CreateLoan(_ context.Context, req dto.CreateLoanRequest) (*dto.LoanView, error) {
	f.created = req
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &dto.LoanView{ID: 1, BookID: req.BookID, BorrowerEmail: req.BorrowerEmail, Days: req.Days, RemainingDays: req.Days}, nil
}

func (f *fakeLedgerSrv) ReturnLoan(_ context.Context, loanID int64) (*dto.LoanView, error) {
	f.returnedID = loanID
	if f.returnErr != nil {
		return nil, f.returnErr
	}
	return &dto.LoanView{ID: loanID, Returned: true, RemainingDays: 0}, nil
}

func (f *fakeLedgerSrv) GetLoan(_ context.Context, loanID int64) (*dto.LoanView, error) {
	if loanID != 3 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "loan not found")
	}
	return &dto.LoanView{ID: loanID, BorrowerEmail: "ana@school.edu", RemainingDays: 2}, nil
}

func (f *fakeLedgerSrv) BorrowerLoans(_ context.Context, email string) ([]dto.LoanView, error) {
	f.loansFor = email
	return []dto.LoanView{{ID: 3, BorrowerEmail: email}}, nil
}

func (f *fakeLedgerSrv) History(_ context.Context, query dto.LoanHistoryQuery) ([]dto.LoanView, *models.Pagination, error) {
	f.history = query
	return []dto.LoanView{{ID: 9}}, &models.Pagination{Page: 2, PageSize: 10, TotalCount: 11}, nil
}

func TestLoanHandlerCreateUsesSessionEmail(t *testing.T) {
	srv := &fakeLedgerSrv{}
	handler := NewLoanHandler(srv)

	c, rec := newContext(http.MethodPost, "/loans", map[string]interface{}{
		"book_id":        7,
		"borrower_name":  "Ana",
		"grade":          "3",
		"class_group":    "B",
		"days":           4,
		"borrower_email": "someone-else@school.edu",
	})
	asBorrower(c, "ana@school.edu")
	handler.Create(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "ana@school.edu", srv.created.BorrowerEmail)
	assert.Equal(t, int64(7), srv.created.BookID)

	var view dto.LoanView
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &view))
	assert.Equal(t, 4, view.RemainingDays)
}

func TestLoanHandlerCreateRequiresSession(t *testing.T) {
	handler := NewLoanHandler(&fakeLedgerSrv{})

	c, rec := newContext(http.MethodPost, "/loans", map[string]interface{}{"book_id": 7})
	handler.Create(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoanHandlerCreateOutOfStock(t *testing.T) {
	handler := NewLoanHandler(&fakeLedgerSrv{createErr: appErrors.ErrOutOfStock})

	c, rec := newContext(http.MethodPost, "/loans", map[string]interface{}{"book_id": 7, "days": 3})
	asBorrower(c, "ana@school.edu")
	handler.Create(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, appErrors.ErrOutOfStock.Code, decode(t, rec).Error.Code)
}

func TestLoanHandlerReturn(t *testing.T) {
	srv := &fakeLedgerSrv{}
	handler := NewLoanHandler(srv)

	c, rec := newContext(http.MethodPost, "/admin/loans/12/return", nil)
	c.Params = gin.Params{{Key: "id", Value: "12"}}
	asAdmin(c)
	handler.Return(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(12), srv.returnedID)
}

func TestLoanHandlerReturnInvalidID(t *testing.T) {
	handler := NewLoanHandler(&fakeLedgerSrv{})

	c, rec := newContext(http.MethodPost, "/admin/loans/abc/return", nil)
	c.Params = gin.Params{{Key: "id", Value: "abc"}}
	handler.Return(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoanHandlerReturnTwice(t *testing.T) {
	handler := NewLoanHandler(&fakeLedgerSrv{returnErr: appErrors.ErrAlreadyReturned})

	c, rec := newContext(http.MethodPost, "/admin/loans/12/return", nil)
	c.Params = gin.Params{{Key: "id", Value: "12"}}
	handler.Return(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, appErrors.ErrAlreadyReturned.Code, decode(t, rec).Error.Code)
}

func TestLoanHandlerGet(t *testing.T) {
	handler := NewLoanHandler(&fakeLedgerSrv{})

	c, rec := newContext(http.MethodGet, "/admin/loans/3", nil)
	c.Params = gin.Params{{Key: "id", Value: "3"}}
	handler.Get(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var view dto.LoanView
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &view))
	assert.Equal(t, int64(3), view.ID)
	assert.Equal(t, 2, view.RemainingDays)
}

func TestLoanHandlerGetUnknown(t *testing.T) {
	handler := NewLoanHandler(&fakeLedgerSrv{})

	c, rec := newContext(http.MethodGet, "/admin/loans/99", nil)
	c.Params = gin.Params{{Key: "id", Value: "99"}}
	handler.Get(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoanHandlerMyLoans(t *testing.T) {
	srv := &fakeLedgerSrv{}
	handler := NewLoanHandler(srv)

	c, rec := newContext(http.MethodGet, "/me/loans", nil)
	asBorrower(c, "ana@school.edu")
	handler.MyLoans(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ana@school.edu", srv.loansFor)
}

func TestLoanHandlerHistoryBindsQuery(t *testing.T) {
	srv := &fakeLedgerSrv{}
	handler := NewLoanHandler(srv)

	c, rec := newContext(http.MethodGet, "/admin/loans?q=ana&page=2&page_size=10", nil)
	asAdmin(c)
	handler.History(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ana", srv.history.Search)
	assert.Equal(t, 2, srv.history.Page)

	envelope := decode(t, rec)
	require.NotNil(t, envelope.Pagination)
	assert.Equal(t, 11, envelope.Pagination.TotalCount)
}
