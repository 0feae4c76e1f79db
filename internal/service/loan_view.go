package service

import (
	"strings"
	"time"

	"github.com/noah-isme/sma-library-api/internal/dto"
	"github.com/noah-isme/sma-library-api/internal/models"
	"github.com/noah-isme/sma-library-api/pkg/duedate"
)

func toLoanView(loan models.LoanDetail, today time.Time) dto.LoanView {
	due := loan.DueDate()
	view := dto.LoanView{
		ID:             loan.ID,
		BookID:         loan.BookID,
		BookTitle:      loan.BookTitle,
		BookCode:       loan.BookCode,
		BorrowerName:   loan.BorrowerName,
		BorrowerEmail:  loan.BorrowerEmail,
		Grade:          loan.Grade,
		ClassGroup:     loan.ClassGroup,
		Days:           loan.Days,
		LoanDate:       duedate.Date(loan.LoanDate),
		DueDate:        due,
		Returned:       loan.Returned,
		ReturnDate:     loan.ReturnDate,
		Reviewed:       loan.Reviewed,
		ReviewEligible: loan.ReviewEligible(),
		Status:         loan.Status(today),
	}
	if !loan.Returned {
		view.RemainingDays = duedate.Display(duedate.RemainingDays(due, today))
		view.Overdue = duedate.Overdue(due, today)
	}
	return view
}

func toLoanViews(loans []models.LoanDetail, today time.Time) []dto.LoanView {
	views := make([]dto.LoanView, 0, len(loans))
	for _, loan := range loans {
		views = append(views, toLoanView(loan, today))
	}
	return views
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func pageDefaults(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}
