package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-library-api/internal/models"
	"github.com/noah-isme/sma-library-api/pkg/database"
)

// ErrStaleRow is returned when a guarded UPDATE matched no row, meaning the
// row left the expected state between lock and write.
var ErrStaleRow = errors.New("row no longer in expected state")

// LedgerTx exposes the row-level operations available inside a ledger transaction.
type LedgerTx interface {
	LockBook(ctx context.Context, bookID int64) (*models.Book, error)
	AdjustStock(ctx context.Context, bookID int64, delta int) error
	InsertLoan(ctx context.Context, loan *models.Loan) error
	LockLoan(ctx context.Context, loanID int64) (*models.Loan, error)
	MarkReturned(ctx context.Context, loanID int64, returnDate time.Time) error
	InsertReview(ctx context.Context, review *models.Review) error
	MarkReviewed(ctx context.Context, loanID int64) error
}

// LedgerRepository runs loan, return and review mutations atomically.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository constructs the repository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// WithinTx executes fn in a single transaction; any error rolls back every write made through tx.
func (r *LedgerRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return fn(ctx, &ledgerTx{tx: tx})
	})
}

type ledgerTx struct {
	tx *sqlx.Tx
}

func (l *ledgerTx) LockBook(ctx context.Context, bookID int64) (*models.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = $1 FOR UPDATE`
	var book models.Book
	if err := l.tx.GetContext(ctx, &book, query, bookID); err != nil {
		return nil, fmt.Errorf("lock book: %w", err)
	}
	return &book, nil
}

func (l *ledgerTx) AdjustStock(ctx context.Context, bookID int64, delta int) error {
	const query = `UPDATE books SET stock = stock + $1, updated_at = NOW() WHERE id = $2 AND stock + $1 >= 0`
	res, err := l.tx.ExecContext(ctx, query, delta, bookID)
	if err != nil {
		return fmt.Errorf("adjust stock: %w", err)
	}
	return expectOneRow(res, "adjust stock")
}

func (l *ledgerTx) InsertLoan(ctx context.Context, loan *models.Loan) error {
	const query = `INSERT INTO loans (borrower_name, grade, class_group, book_id, days, borrower_email, loan_date, returned, reviewed)
VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, FALSE)
RETURNING id, created_at`
	row := l.tx.QueryRowxContext(ctx, query,
		loan.BorrowerName, loan.Grade, loan.ClassGroup, loan.BookID, loan.Days, loan.BorrowerEmail, loan.LoanDate)
	if err := row.Scan(&loan.ID, &loan.CreatedAt); err != nil {
		return fmt.Errorf("insert loan: %w", err)
	}
	loan.Returned = false
	loan.Reviewed = false
	loan.ReturnDate = nil
	return nil
}

func (l *ledgerTx) LockLoan(ctx context.Context, loanID int64) (*models.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1 FOR UPDATE`
	var loan models.Loan
	if err := l.tx.GetContext(ctx, &loan, query, loanID); err != nil {
		return nil, fmt.Errorf("lock loan: %w", err)
	}
	return &loan, nil
}

func (l *ledgerTx) MarkReturned(ctx context.Context, loanID int64, returnDate time.Time) error {
	const query = `UPDATE loans SET returned = TRUE, return_date = $1 WHERE id = $2 AND returned = FALSE`
	res, err := l.tx.ExecContext(ctx, query, returnDate, loanID)
	if err != nil {
		return fmt.Errorf("mark loan returned: %w", err)
	}
	return expectOneRow(res, "mark loan returned")
}

func (l *ledgerTx) InsertReview(ctx context.Context, review *models.Review) error {
	const query = `INSERT INTO reviews (loan_id, book_id, author_email, rating, comment, review_date)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`
	row := l.tx.QueryRowxContext(ctx, query,
		review.LoanID, review.BookID, review.AuthorEmail, review.Rating, review.Comment, review.ReviewDate)
	if err := row.Scan(&review.ID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return fmt.Errorf("insert review: %w", ErrStaleRow)
		}
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func (l *ledgerTx) MarkReviewed(ctx context.Context, loanID int64) error {
	const query = `UPDATE loans SET reviewed = TRUE WHERE id = $1 AND returned = TRUE AND reviewed = FALSE`
	res, err := l.tx.ExecContext(ctx, query, loanID)
	if err != nil {
		return fmt.Errorf("mark loan reviewed: %w", err)
	}
	return expectOneRow(res, "mark loan reviewed")
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func expectOneRow(res rowsAffecter, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n != 1 {
		return fmt.Errorf("%s: %w", op, ErrStaleRow)
	}
	return nil
}
