package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-library-api/internal/models"
)

const loanColumns = `id, borrower_name, grade, class_group, book_id, days, borrower_email, loan_date, returned, return_date, reviewed, created_at`

const loanDetailSelect = `SELECT l.id, l.borrower_name, l.grade, l.class_group, l.book_id, l.days, l.borrower_email,
	l.loan_date, l.returned, l.return_date, l.reviewed, l.created_at,
	b.title AS book_title, b.code AS book_code
FROM loans l
JOIN books b ON b.id = l.book_id`

// LoanRepository provides read access to the loan ledger.
type LoanRepository struct {
	db *sqlx.DB
}

// NewLoanRepository constructs the repository.
func NewLoanRepository(db *sqlx.DB) *LoanRepository {
	return &LoanRepository{db: db}
}

// GetByID fetches a loan with its book title and code.
func (r *LoanRepository) GetByID(ctx context.Context, id int64) (*models.LoanDetail, error) {
	query := loanDetailSelect + ` WHERE l.id = $1`
	var loan models.LoanDetail
	if err := r.db.GetContext(ctx, &loan, query, id); err != nil {
		return nil, fmt.Errorf("get loan: %w", err)
	}
	return &loan, nil
}

// ListByBorrower returns every loan of a borrower, newest first.
func (r *LoanRepository) ListByBorrower(ctx context.Context, email string) ([]models.LoanDetail, error) {
	query := loanDetailSelect + ` WHERE LOWER(l.borrower_email) = LOWER($1) ORDER BY l.loan_date DESC, l.id DESC`
	var loans []models.LoanDetail
	if err := r.db.SelectContext(ctx, &loans, query, email); err != nil {
		return nil, fmt.Errorf("list borrower loans: %w", err)
	}
	return loans, nil
}

// ListHistory searches the full ledger for the admin desk.
func (r *LoanRepository) ListHistory(ctx context.Context, filter models.LoanHistoryFilter) ([]models.LoanDetail, int, error) {
	where, args := historyConditions(filter)

	countQuery := `SELECT COUNT(*) FROM loans l JOIN books b ON b.id = l.book_id` + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count loan history: %w", err)
	}

	page, size := normalisePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("%s%s ORDER BY l.loan_date DESC, l.id DESC LIMIT $%d OFFSET $%d",
		loanDetailSelect, where, len(args)+1, len(args)+2)
	args = append(args, size, (page-1)*size)

	var loans []models.LoanDetail
	if err := r.db.SelectContext(ctx, &loans, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list loan history: %w", err)
	}
	return loans, total, nil
}

// ListForExport returns up to limit matching loans without pagination.
func (r *LoanRepository) ListForExport(ctx context.Context, filter models.LoanHistoryFilter, limit int) ([]models.LoanDetail, error) {
	where, args := historyConditions(filter)
	args = append(args, limit)
	query := fmt.Sprintf("%s%s ORDER BY l.loan_date DESC, l.id DESC LIMIT $%d", loanDetailSelect, where, len(args))

	var loans []models.LoanDetail
	if err := r.db.SelectContext(ctx, &loans, query, args...); err != nil {
		return nil, fmt.Errorf("list loans for export: %w", err)
	}
	return loans, nil
}

func historyConditions(filter models.LoanHistoryFilter) (string, []interface{}) {
	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 3)

	if term := trimmed(filter.Search); term != "" {
		args = append(args, "%"+escapeLike(term)+"%")
		idx := len(args)
		conditions = append(conditions, fmt.Sprintf(
			"(l.borrower_name ILIKE $%[1]d OR l.borrower_email ILIKE $%[1]d OR b.title ILIKE $%[1]d OR b.code ILIKE $%[1]d)", idx))
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "l.returned = FALSE")
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// ListOverdue returns unreturned loans whose due date is before today, oldest due first.
func (r *LoanRepository) ListOverdue(ctx context.Context, today time.Time, limit int) ([]models.LoanDetail, error) {
	query := loanDetailSelect + ` WHERE l.returned = FALSE AND l.loan_date + l.days < $1::date
ORDER BY l.loan_date + l.days ASC, l.id ASC LIMIT $2`
	var loans []models.LoanDetail
	if err := r.db.SelectContext(ctx, &loans, query, today, limit); err != nil {
		return nil, fmt.Errorf("list overdue loans: %w", err)
	}
	return loans, nil
}
