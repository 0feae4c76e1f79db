package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-library-api/internal/dto"
	"github.com/noah-isme/sma-library-api/internal/models"
	appErrors "github.com/noah-isme/sma-library-api/pkg/errors"
	"github.com/noah-isme/sma-library-api/pkg/response"
)

type ledgerService interface {
	CreateLoan(ctx context.Context, req dto.CreateLoanRequest) (*dto.LoanView, error)
	ReturnLoan(ctx context.Context, loanID int64) (*dto.LoanView, error)
	GetLoan(ctx context.Context, loanID int64) (*dto.LoanView, error)
	BorrowerLoans(ctx context.Context, email string) ([]dto.LoanView, error)
	History(ctx context.Context, query dto.LoanHistoryQuery) ([]dto.LoanView, *models.Pagination, error)
}

// LoanHandler exposes loan creation, returns and listings.
type LoanHandler struct {
	service ledgerService
}

// NewLoanHandler constructs the handler.
func NewLoanHandler(service ledgerService) *LoanHandler {
	return &LoanHandler{service: service}
}

// Create godoc
// @Summary Borrow a book
// @Description Lends one copy to the signed-in borrower starting today
// @Tags Loans
// @Accept json
// @Produce json
// @Param payload body dto.CreateLoanRequest true "Loan payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /loans [post]
func (h *LoanHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid loan payload"))
		return
	}
	req.BorrowerEmail = claims.Email

	loan, err := h.service.CreateLoan(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, loan)
}

// MyLoans godoc
// @Summary Borrower profile loans
// @Tags Loans
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/loans [get]
func (h *LoanHandler) MyLoans(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	loans, err := h.service.BorrowerLoans(c.Request.Context(), claims.Email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, loans, nil)
}

// Return godoc
// @Summary Return a loan
// @Tags Loans
// @Produce json
// @Param id path int true "Loan ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/loans/{id}/return [post]
func (h *LoanHandler) Return(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	loan, err := h.service.ReturnLoan(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, loan, nil)
}

// Get godoc
// @Summary Loan detail
// @Tags Loans
// @Produce json
// @Param id path int true "Loan ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/loans/{id} [get]
func (h *LoanHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	loan, err := h.service.GetLoan(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, loan, nil)
}

// History godoc
// @Summary Loan history
// @Description Search every loan by borrower name, email, book title or code
// @Tags Loans
// @Produce json
// @Param q query string false "Search term"
// @Param active query bool false "Only unreturned loans"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/loans [get]
func (h *LoanHandler) History(c *gin.Context) {
	var query dto.LoanHistoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid history query"))
		return
	}
	loans, pagination, err := h.service.History(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, loans, pagination)
}
