package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-library-api/internal/models"
)

// StatsRepository runs the aggregate circulation queries.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository constructs the repository.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// PopularBooks ranks books by historical loan count; ties go to the lower id.
func (r *StatsRepository) PopularBooks(ctx context.Context, limit int) ([]models.PopularBook, error) {
	const query = `SELECT b.id, b.title, b.author, b.publisher, b.stock, b.section, b.code, b.created_at, b.updated_at,
	COUNT(l.id) AS loan_count
FROM books b
JOIN loans l ON l.book_id = b.id
GROUP BY b.id
ORDER BY loan_count DESC, b.id ASC
LIMIT $1`
	var books []models.PopularBook
	if err := r.db.SelectContext(ctx, &books, query, limit); err != nil {
		return nil, fmt.Errorf("popular books: %w", err)
	}
	return books, nil
}

// TopRatedBooks ranks reviewed books by mean rating.
func (r *StatsRepository) TopRatedBooks(ctx context.Context, limit int) ([]models.RatedBook, error) {
	const query = `SELECT b.id, b.title, b.author, b.publisher, b.stock, b.section, b.code, b.created_at, b.updated_at,
	ROUND(AVG(rv.rating)::numeric, 2)::float8 AS average_rating,
	COUNT(rv.id) AS review_count
FROM books b
JOIN reviews rv ON rv.book_id = b.id
GROUP BY b.id
ORDER BY AVG(rv.rating) DESC, b.id ASC
LIMIT $1`
	var books []models.RatedBook
	if err := r.db.SelectContext(ctx, &books, query, limit); err != nil {
		return nil, fmt.Errorf("top rated books: %w", err)
	}
	return books, nil
}

// ActiveUsers ranks borrowers by loan count.
func (r *StatsRepository) ActiveUsers(ctx context.Context, limit int) ([]models.ActiveUser, error) {
	const query = `SELECT MAX(borrower_name) AS borrower_name, LOWER(borrower_email) AS borrower_email, COUNT(*) AS loan_count
FROM loans
GROUP BY LOWER(borrower_email)
ORDER BY loan_count DESC, borrower_email ASC
LIMIT $1`
	var users []models.ActiveUser
	if err := r.db.SelectContext(ctx, &users, query, limit); err != nil {
		return nil, fmt.Errorf("active users: %w", err)
	}
	return users, nil
}

// Totals returns the circulation counters.
func (r *StatsRepository) Totals(ctx context.Context) (*models.LibraryTotals, error) {
	const query = `SELECT
	(SELECT COUNT(*) FROM loans) AS total_loans,
	(SELECT COUNT(*) FROM loans WHERE returned = FALSE) AS active_loans,
	(SELECT COALESCE(SUM(stock), 0) FROM books) AS total_stock,
	(SELECT COUNT(*) FROM books) AS total_titles`
	var totals models.LibraryTotals
	if err := r.db.GetContext(ctx, &totals, query); err != nil {
		return nil, fmt.Errorf("library totals: %w", err)
	}
	return &totals, nil
}

// RatingSummary returns the mean rating and review count of a book.
func (r *StatsRepository) RatingSummary(ctx context.Context, bookID int64) (*float64, int, error) {
	const query = `SELECT AVG(rating)::float8 AS average, COUNT(*) AS total FROM reviews WHERE book_id = $1`
	var row struct {
		Average *float64 `db:"average"`
		Total   int      `db:"total"`
	}
	if err := r.db.GetContext(ctx, &row, query, bookID); err != nil {
		return nil, 0, fmt.Errorf("rating summary: %w", err)
	}
	return row.Average, row.Total, nil
}
