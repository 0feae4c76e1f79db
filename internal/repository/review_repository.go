package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-library-api/internal/models"
)

// ReviewRepository reads book reviews.
type ReviewRepository struct {
	db *sqlx.DB
}

// NewReviewRepository constructs the repository.
func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// ListByBook returns the reviews of a book, newest first.
func (r *ReviewRepository) ListByBook(ctx context.Context, bookID int64) ([]models.Review, error) {
	const query = `SELECT id, loan_id, book_id, author_email, rating, comment, review_date
FROM reviews WHERE book_id = $1 ORDER BY review_date DESC, id DESC`
	var reviews []models.Review
	if err := r.db.SelectContext(ctx, &reviews, query, bookID); err != nil {
		return nil, fmt.Errorf("list book reviews: %w", err)
	}
	return reviews, nil
}
