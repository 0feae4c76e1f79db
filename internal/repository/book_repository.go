package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-library-api/internal/models"
	"github.com/noah-isme/sma-library-api/pkg/database"
)

const bookColumns = `id, title, author, publisher, stock, section, code, created_at, updated_at`

// ErrBookReferenced is returned when a book with loan history is deleted.
var ErrBookReferenced = errors.New("book referenced by loans")

const (
	pqForeignKeyViolation = "23503"
	pqUniqueViolation     = "23505"
)

// BookRepository persists catalog entries.
type BookRepository struct {
	db *sqlx.DB
}

// NewBookRepository constructs the repository.
func NewBookRepository(db *sqlx.DB) *BookRepository {
	return &BookRepository{db: db}
}

// Create inserts a book and stamps its derived catalog code.
func (r *BookRepository) Create(ctx context.Context, book *models.Book) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const insert = `INSERT INTO books (title, author, publisher, stock, section)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at, updated_at`
		row := tx.QueryRowxContext(ctx, insert, book.Title, book.Author, book.Publisher, book.Stock, book.Section)
		if err := row.Scan(&book.ID, &book.CreatedAt, &book.UpdatedAt); err != nil {
			return fmt.Errorf("insert book: %w", err)
		}

		code := models.CatalogCode(book.Section, book.ID)
		if _, err := tx.ExecContext(ctx, `UPDATE books SET code = $1 WHERE id = $2`, code, book.ID); err != nil {
			return fmt.Errorf("stamp book code: %w", err)
		}
		book.Code = &code
		return nil
	})
}

// GetByID fetches a book by identifier.
func (r *BookRepository) GetByID(ctx context.Context, id int64) (*models.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = $1`
	var book models.Book
	if err := r.db.GetContext(ctx, &book, query, id); err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return &book, nil
}

// Update overwrites the editable fields and re-derives the catalog code.
func (r *BookRepository) Update(ctx context.Context, book *models.Book) error {
	code := models.CatalogCode(book.Section, book.ID)
	const query = `UPDATE books
SET title = $1, author = $2, publisher = $3, stock = $4, section = $5, code = $6, updated_at = NOW()
WHERE id = $7
RETURNING created_at, updated_at`
	row := r.db.QueryRowxContext(ctx, query, book.Title, book.Author, book.Publisher, book.Stock, book.Section, code, book.ID)
	if err := row.Scan(&book.CreatedAt, &book.UpdatedAt); err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	book.Code = &code
	return nil
}

// Delete removes a book that no loan has ever referenced.
func (r *BookRepository) Delete(ctx context.Context, id int64) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var lockedID int64
		if err := tx.GetContext(ctx, &lockedID, `SELECT id FROM books WHERE id = $1 FOR UPDATE`, id); err != nil {
			return fmt.Errorf("lock book: %w", err)
		}

		var loans int
		if err := tx.GetContext(ctx, &loans, `SELECT COUNT(*) FROM loans WHERE book_id = $1`, id); err != nil {
			return fmt.Errorf("count book loans: %w", err)
		}
		if loans > 0 {
			return ErrBookReferenced
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && string(pqErr.Code) == pqForeignKeyViolation {
				return ErrBookReferenced
			}
			return fmt.Errorf("delete book: %w", err)
		}
		return nil
	})
}

// ListAvailable returns on-shelf books ordered by section then title.
func (r *BookRepository) ListAvailable(ctx context.Context, search, section string) ([]models.Book, error) {
	query, args, err := availableBooksQuery(search, section)
	if err != nil {
		return nil, fmt.Errorf("build available books query: %w", err)
	}
	var books []models.Book
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, fmt.Errorf("list available books: %w", err)
	}
	return books, nil
}

// List returns a page of books for the admin inventory view.
func (r *BookRepository) List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error) {
	countQuery, countArgs, err := bookCountQuery(filter)
	if err != nil {
		return nil, 0, fmt.Errorf("build book count query: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count books: %w", err)
	}

	query, args, err := bookListQuery(filter)
	if err != nil {
		return nil, 0, fmt.Errorf("build book list query: %w", err)
	}
	var books []models.Book
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list books: %w", err)
	}
	return books, total, nil
}

// Sections returns the distinct section labels.
func (r *BookRepository) Sections(ctx context.Context) ([]string, error) {
	var sections []string
	if err := r.db.SelectContext(ctx, &sections, `SELECT DISTINCT section FROM books ORDER BY section`); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return sections, nil
}

// IsNotFound reports whether err wraps sql.ErrNoRows.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
