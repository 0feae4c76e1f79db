package models

import (
	"time"

	"github.com/noah-isme/sma-library-api/pkg/duedate"
)

// LoanStatus is the derived lifecycle state of a loan.
type LoanStatus string

const (
	LoanStatusActive         LoanStatus = "ACTIVE"
	LoanStatusOverdue        LoanStatus = "OVERDUE"
	LoanStatusReturned       LoanStatus = "RETURNED"
	LoanStatusReviewEligible LoanStatus = "REVIEW_ELIGIBLE"
	LoanStatusReviewed       LoanStatus = "REVIEWED"
)

// Loan records one copy of a book lent to a borrower.
type Loan struct {
	ID            int64      `db:"id" json:"id"`
	BorrowerName  string     `db:"borrower_name" json:"borrower_name"`
	Grade         string     `db:"grade" json:"grade"`
	ClassGroup    string     `db:"class_group" json:"class_group"`
	BookID        int64      `db:"book_id" json:"book_id"`
	Days          int        `db:"days" json:"days"`
	BorrowerEmail string     `db:"borrower_email" json:"borrower_email"`
	LoanDate      time.Time  `db:"loan_date" json:"loan_date"`
	Returned      bool       `db:"returned" json:"returned"`
	ReturnDate    *time.Time `db:"return_date" json:"return_date,omitempty"`
	Reviewed      bool       `db:"reviewed" json:"reviewed"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// DueDate is the loan date plus the requested days.
func (l Loan) DueDate() time.Time {
	return duedate.DueDate(l.LoanDate, l.Days)
}

// RemainingDays delegates to the shared due-date arithmetic.
func (l Loan) RemainingDays(today time.Time) int {
	return duedate.RemainingDays(l.DueDate(), today)
}

// ReviewEligible reports whether the borrower may still leave a review.
func (l Loan) ReviewEligible() bool {
	return l.Returned && !l.Reviewed
}

// Status derives the state machine position for today.
func (l Loan) Status(today time.Time) LoanStatus {
	switch {
	case l.Reviewed:
		return LoanStatusReviewed
	case l.Returned:
		return LoanStatusReviewEligible
	case duedate.Overdue(l.DueDate(), today):
		return LoanStatusOverdue
	default:
		return LoanStatusActive
	}
}

// LoanDetail joins a loan with the book fields shown in listings.
type LoanDetail struct {
	Loan
	BookTitle string  `db:"book_title" json:"book_title"`
	BookCode  *string `db:"book_code" json:"book_code,omitempty"`
}

// LoanHistoryFilter captures admin history search criteria.
type LoanHistoryFilter struct {
	Search     string
	ActiveOnly bool
	Page       int
	PageSize   int
}
