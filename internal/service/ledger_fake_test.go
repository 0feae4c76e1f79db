package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/noah-isme/sma-library-api/internal/models"
	"github.com/noah-isme/sma-library-api/internal/repository"
)

// memLedger is an in-memory ledgerStore. Transactions are serialised by a
// mutex and roll back to a snapshot when fn returns an error.
type memLedger struct {
	mu      sync.Mutex
	books   map[int64]models.Book
	loans   map[int64]models.Loan
	reviews []models.Review
	nextID  int64

	failInsertLoan error
}

func newMemLedger(books ...models.Book) *memLedger {
	m := &memLedger{books: map[int64]models.Book{}, loans: map[int64]models.Loan{}}
	for _, b := range books {
		m.books[b.ID] = b
	}
	return m
}

func (m *memLedger) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.LedgerTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	books := make(map[int64]models.Book, len(m.books))
	for k, v := range m.books {
		books[k] = v
	}
	loans := make(map[int64]models.Loan, len(m.loans))
	for k, v := range m.loans {
		loans[k] = v
	}
	reviews := append([]models.Review(nil), m.reviews...)
	nextID := m.nextID

	if err := fn(ctx, &memTx{m: m}); err != nil {
		m.books, m.loans, m.reviews, m.nextID = books, loans, reviews, nextID
		return err
	}
	return nil
}

func (m *memLedger) stock(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.books[id].Stock
}

func (m *memLedger) activeLoans(bookID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, l := range m.loans {
		if l.BookID == bookID && !l.Returned {
			count++
		}
	}
	return count
}

func (m *memLedger) loan(id int64) models.Loan {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loans[id]
}

func (m *memLedger) seedLoan(loan models.Loan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if loan.ID == 0 {
		m.nextID++
		loan.ID = m.nextID
	}
	m.loans[loan.ID] = loan
}

type memTx struct {
	m *memLedger
}

func (t *memTx) LockBook(ctx context.Context, bookID int64) (*models.Book, error) {
	book, ok := t.m.books[bookID]
	if !ok {
		return nil, fmt.Errorf("lock book: %w", sql.ErrNoRows)
	}
	return &book, nil
}

func (t *memTx) AdjustStock(ctx context.Context, bookID int64, delta int) error {
	book := t.m.books[bookID]
	if book.Stock+delta < 0 {
		return repository.ErrStaleRow
	}
	book.Stock += delta
	t.m.books[bookID] = book
	return nil
}

func (t *memTx) InsertLoan(ctx context.Context, loan *models.Loan) error {
	if t.m.failInsertLoan != nil {
		return t.m.failInsertLoan
	}
	t.m.nextID++
	loan.ID = t.m.nextID
	loan.CreatedAt = time.Now()
	t.m.loans[loan.ID] = *loan
	return nil
}

func (t *memTx) LockLoan(ctx context.Context, loanID int64) (*models.Loan, error) {
	loan, ok := t.m.loans[loanID]
	if !ok {
		return nil, fmt.Errorf("lock loan: %w", sql.ErrNoRows)
	}
	return &loan, nil
}

func (t *memTx) MarkReturned(ctx context.Context, loanID int64, returnDate time.Time) error {
	loan := t.m.loans[loanID]
	if loan.Returned {
		return repository.ErrStaleRow
	}
	loan.Returned = true
	loan.ReturnDate = &returnDate
	t.m.loans[loanID] = loan
	return nil
}

func (t *memTx) InsertReview(ctx context.Context, review *models.Review) error {
	for _, r := range t.m.reviews {
		if r.LoanID == review.LoanID {
			return repository.ErrStaleRow
		}
	}
	review.ID = int64(len(t.m.reviews) + 1)
	t.m.reviews = append(t.m.reviews, *review)
	return nil
}

func (t *memTx) MarkReviewed(ctx context.Context, loanID int64) error {
	loan := t.m.loans[loanID]
	if !loan.Returned || loan.Reviewed {
		return repository.ErrStaleRow
	}
	loan.Reviewed = true
	t.m.loans[loanID] = loan
	return nil
}

type invalidatorStub struct {
	mu    sync.Mutex
	calls int
}

func (s *invalidatorStub) InvalidateStats(ctx context.Context) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

func (s *invalidatorStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func fixedClock(day string) func() time.Time {
	t, err := time.Parse("2006-01-02", day)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t.Add(10 * time.Hour) }
}
