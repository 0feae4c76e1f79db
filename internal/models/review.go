package models

import "time"

// Review is a rating left after a returned loan.
type Review struct {
	ID          int64     `db:"id" json:"id"`
	LoanID      int64     `db:"loan_id" json:"loan_id"`
	BookID      int64     `db:"book_id" json:"book_id"`
	AuthorEmail string    `db:"author_email" json:"author_email"`
	Rating      int       `db:"rating" json:"rating"`
	Comment     *string   `db:"comment" json:"comment,omitempty"`
	ReviewDate  time.Time `db:"review_date" json:"review_date"`
}
