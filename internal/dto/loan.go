package dto

import (
	"time"

	"github.com/noah-isme/sma-library-api/internal/models"
)

// CreateLoanRequest is the POST /loans payload. The borrower email comes from the session.
type CreateLoanRequest struct {
	BookID        int64  `json:"book_id" validate:"required,gt=0"`
	BorrowerName  string `json:"borrower_name" validate:"required,max=120"`
	Grade         string `json:"grade" validate:"required,max=20"`
	ClassGroup    string `json:"class_group" validate:"required,max=20"`
	Days          int    `json:"days"`
	BorrowerEmail string `json:"-" validate:"required,email"`
}

// LoanView presents a loan with its due-date arithmetic resolved for today.
type LoanView struct {
	ID             int64             `json:"id"`
	BookID         int64             `json:"book_id"`
	BookTitle      string            `json:"book_title,omitempty"`
	BookCode       *string           `json:"book_code,omitempty"`
	BorrowerName   string            `json:"borrower_name"`
	BorrowerEmail  string            `json:"borrower_email"`
	Grade          string            `json:"grade"`
	ClassGroup     string            `json:"class_group"`
	Days           int               `json:"days"`
	LoanDate       time.Time         `json:"loan_date"`
	DueDate        time.Time         `json:"due_date"`
	RemainingDays  int               `json:"remaining_days"`
	Overdue        bool              `json:"overdue"`
	Returned       bool              `json:"returned"`
	ReturnDate     *time.Time        `json:"return_date,omitempty"`
	Reviewed       bool              `json:"reviewed"`
	ReviewEligible bool              `json:"review_eligible"`
	Status         models.LoanStatus `json:"status"`
}

// LoanHistoryQuery captures GET /admin/loans query parameters.
type LoanHistoryQuery struct {
	Search     string `form:"q"`
	ActiveOnly bool   `form:"active"`
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
}
