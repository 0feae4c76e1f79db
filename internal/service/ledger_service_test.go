package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-library-api/internal/dto"
	"github.com/noah-isme/sma-library-api/internal/models"
	appErrors "github.com/noah-isme/sma-library-api/pkg/errors"
)

// memLoanReader serves read paths from the same memLedger the mutations use.
type memLoanReader struct {
	m          *memLedger
	lastFilter models.LoanHistoryFilter
}

func (r *memLoanReader) detail(l models.Loan) models.LoanDetail {
	return models.LoanDetail{Loan: l, BookTitle: r.m.books[l.BookID].Title, BookCode: r.m.books[l.BookID].Code}
}

func (r *memLoanReader) GetByID(ctx context.Context, id int64) (*models.LoanDetail, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	tx := &memTx{m: r.m}
	loan, err := tx.LockLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	d := r.detail(*loan)
	return &d, nil
}

func (r *memLoanReader) ListByBorrower(ctx context.Context, email string) ([]models.LoanDetail, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []models.LoanDetail
	for _, l := range r.m.loans {
		if strings.EqualFold(l.BorrowerEmail, email) {
			out = append(out, r.detail(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *memLoanReader) ListHistory(ctx context.Context, filter models.LoanHistoryFilter) ([]models.LoanDetail, int, error) {
	r.lastFilter = filter
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []models.LoanDetail
	for _, l := range r.m.loans {
		out = append(out, r.detail(l))
	}
	return out, len(out), nil
}

func newLedgerServiceForTest(t *testing.T, today string, books ...models.Book) (*LedgerService, *memLedger, *invalidatorStub) {
	t.Helper()
	ledger := newMemLedger(books...)
	cache := &invalidatorStub{}
	svc := NewLedgerService(ledger, &memLoanReader{m: ledger}, cache, nil, nil, zap.NewNop(), 62)
	svc.now = fixedClock(today)
	return svc, ledger, cache
}

func loanRequest(bookID int64, days int) dto.CreateLoanRequest {
	return dto.CreateLoanRequest{
		BookID:        bookID,
		BorrowerName:  "Ana Pérez",
		Grade:         "3",
		ClassGroup:    "B",
		Days:          days,
		BorrowerEmail: "Ana@School.edu",
	}
}

func TestLedgerServiceCreateLoan(t *testing.T) {
	svc, ledger, cache := newLedgerServiceForTest(t, "2024-01-01", models.Book{ID: 1, Title: "Historia", Section: "Historia", Stock: 2})

	view, err := svc.CreateLoan(context.Background(), loanRequest(1, 7))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-08", view.DueDate.Format("2006-01-02"))
	assert.Equal(t, 8, view.RemainingDays)
	assert.False(t, view.Overdue)
	assert.Equal(t, "ana@school.edu", view.BorrowerEmail)
	assert.Equal(t, models.LoanStatusActive, view.Status)
	assert.Equal(t, "Historia", view.BookTitle)

	assert.Equal(t, 1, ledger.stock(1))
	assert.Equal(t, 1, ledger.activeLoans(1))
	assert.Equal(t, 1, cache.count())
}

func TestLedgerServiceCreateLoanDurationBounds(t *testing.T) {
	svc, ledger, _ := newLedgerServiceForTest(t, "2024-01-01", models.Book{ID: 1, Title: "Historia", Section: "Historia", Stock: 5})

	for _, days := range []int{0, -1, 63} {
		_, err := svc.CreateLoan(context.Background(), loanRequest(1, days))
		assert.True(t, appErrors.Is(err, appErrors.ErrInvalidDuration), "days=%d", days)
	}
	assert.Equal(t, 5, ledger.stock(1))

	for _, days := range []int{1, 62} {
		_, err := svc.CreateLoan(context.Background(), loanRequest(1, days))
		assert.NoError(t, err, "days=%d", days)
	}
	assert.Equal(t, 3, ledger.stock(1))
}

func TestLedgerServiceCreateLoanConfiguredMaximum(t *testing.T) {
	ledger := newMemLedger(models.Book{ID: 1, Title: "Historia", Section: "Historia", Stock: 5})
	svc := NewLedgerService(ledger, &memLoanReader{m: ledger}, nil, nil, nil, nil, 14)

	_, err := svc.CreateLoan(context.Background(), loanRequest(1, 15))
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidDuration))
	_, err = svc.CreateLoan(context.Background(), loanRequest(1, 14))
	assert.NoError(t, err)
}

func TestLedgerServiceCreateLoanOutOfStock(t *testing.T) {
	svc, ledger, cache := newLedgerServiceForTest(t, "2024-01-01", models.Book{ID: 1, Title: "Historia", Section: "Historia", Stock: 0})

	_, err := svc.CreateLoan(context.Background(), loanRequest(1, 7))
	assert.True(t, appErrors.Is(err, appErrors.ErrOutOfStock))
	assert.Equal(t, 0, ledger.stock(1))
	assert.Equal(t, 0, ledger.activeLoans(1))
	assert.Equal(t, 0, cache.count())
}

func TestLedgerServiceCreateLoanUnknownBook(t *testing.T) {
	svc, _, _ := newLedgerServiceForTest(t, "2024-01-01")
	_, err := svc.CreateLoan(context.Background(), loanRequest(99, 7))
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestLedgerServiceCreateLoanValidation(t *testing.T) {
	svc, ledger, _ := newLedgerServiceForTest(t, "2024-01-01", models.Book{ID: 1, Title: "Historia", Section: "Historia", Stock: 1})
	req := loanRequest(1, 7)
	req.BorrowerName = "   "

	_, err := svc.CreateLoan(context.Background(), req)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Equal(t, 1, ledger.stock(1))
}

func TestLedgerServiceCreateLoanRollsBackStock(t *testing.T) {
	svc, ledger, _ := newLedgerServiceForTest(t, "2024-01-01", models.Book{ID: 1, Title: "Historia", Section: "Historia", Stock: 1})
	ledger.failInsertLoan = errors.New("connection reset")

	_, err := svc.CreateLoan(context.Background(), loanRequest(1, 7))
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
	assert.Equal(t, 1, ledger.stock(1))
	assert.Equal(t, 0, ledger.activeLoans(1))
}

func TestLedgerServiceReturnLoan(t *testing.T) {
	svc, ledger, cache := newLedgerServiceForTest(t, "2024-01-01", models.Book{ID: 1, Title: "Historia", Section: "Historia", Stock: 1})
	created, err := svc.CreateLoan(context.Background(), loanRequest(1, 7))
	require.NoError(t, err)
	require.Equal(t, 0, ledger.stock(1))

	returned, err := svc.ReturnLoan(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, returned.Returned)
	assert.True(t, returned.ReviewEligible)
	assert.Equal(t, models.LoanStatusReviewEligible, returned.Status)
	assert.Equal(t, 1, ledger.stock(1))
	assert.Equal(t, 2, cache.count())

	_, err = svc.ReturnLoan(context.Background(), created.ID)
	assert.True(t, appErrors.Is(err, appErrors.ErrAlreadyReturned))
	assert.Equal(t, 1, ledger.stock(1))
}

func TestLedgerServiceReturnUnknownLoan(t *testing.T) {
	svc, _, _ := newLedgerServiceForTest(t, "2024-01-01")
	_, err := svc.ReturnLoan(context.Background(), 42)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestLedgerServiceDueDateWalkthrough(t *testing.T) {
	svc, ledger, _ := newLedgerServiceForTest(t, "2024-01-01", models.Book{ID: 1, Title: "Historia", Section: "Historia", Stock: 2})
	created, err := svc.CreateLoan(context.Background(), loanRequest(1, 7))
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.stock(1))

	svc.now = fixedClock("2024-01-05")
	view, err := svc.GetLoan(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, view.RemainingDays)
	assert.False(t, view.Overdue)

	svc.now = fixedClock("2024-01-10")
	view, err = svc.GetLoan(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, view.Overdue)
	assert.Equal(t, -1, view.RemainingDays)
	assert.Equal(t, models.LoanStatusOverdue, view.Status)

	returned, err := svc.ReturnLoan(context.Background(), created.ID)
	require.NoError(t, err)
	require.NotNil(t, returned.ReturnDate)
	assert.Equal(t, "2024-01-10", returned.ReturnDate.Format("2006-01-02"))
	assert.False(t, returned.Overdue)
	assert.Zero(t, returned.RemainingDays)
	assert.Equal(t, 2, ledger.stock(1))
}

func TestLedgerServiceConservesCopies(t *testing.T) {
	svc, ledger, _ := newLedgerServiceForTest(t, "2024-01-01", models.Book{ID: 1, Title: "Historia", Section: "Historia", Stock: 3})
	const copies = 3
	check := func() {
		t.Helper()
		assert.Equal(t, copies, ledger.stock(1)+ledger.activeLoans(1))
		assert.GreaterOrEqual(t, ledger.stock(1), 0)
	}

	var ids []int64
	for i := 0; i < 4; i++ {
		view, err := svc.CreateLoan(context.Background(), loanRequest(1, 7))
		if i < copies {
			require.NoError(t, err)
			ids = append(ids, view.ID)
		} else {
			assert.True(t, appErrors.Is(err, appErrors.ErrOutOfStock))
		}
		check()
	}
	for _, id := range ids {
		_, err := svc.ReturnLoan(context.Background(), id)
		require.NoError(t, err)
		check()
		_, err = svc.ReturnLoan(context.Background(), id)
		require.Error(t, err)
		check()
	}
}

func TestLedgerServiceConcurrentLoansOnLastCopy(t *testing.T) {
	svc, ledger, _ := newLedgerServiceForTest(t, "2024-01-01", models.Book{ID: 1, Title: "Historia", Section: "Historia", Stock: 1})

	const workers = 16
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		successes  int
		outOfStock int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateLoan(context.Background(), loanRequest(1, 7))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case appErrors.Is(err, appErrors.ErrOutOfStock):
				outOfStock++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, outOfStock)
	assert.Equal(t, 0, ledger.stock(1))
	assert.Equal(t, 1, ledger.activeLoans(1))
}

func TestLedgerServiceConcurrentReturns(t *testing.T) {
	svc, ledger, _ := newLedgerServiceForTest(t, "2024-01-01", models.Book{ID: 1, Title: "Historia", Section: "Historia", Stock: 1})
	created, err := svc.CreateLoan(context.Background(), loanRequest(1, 7))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ReturnLoan(context.Background(), created.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, appErrors.Is(err, appErrors.ErrAlreadyReturned))
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, ledger.stock(1))
}

func TestLedgerServiceBorrowerLoans(t *testing.T) {
	svc, _, _ := newLedgerServiceForTest(t, "2024-01-01", models.Book{ID: 1, Title: "Historia", Section: "Historia", Stock: 3})
	_, err := svc.CreateLoan(context.Background(), loanRequest(1, 7))
	require.NoError(t, err)
	other := loanRequest(1, 7)
	other.BorrowerEmail = "luis@school.edu"
	_, err = svc.CreateLoan(context.Background(), other)
	require.NoError(t, err)
	second, err := svc.CreateLoan(context.Background(), loanRequest(1, 3))
	require.NoError(t, err)

	loans, err := svc.BorrowerLoans(context.Background(), " ANA@school.edu ")
	require.NoError(t, err)
	require.Len(t, loans, 2)
	assert.Equal(t, second.ID, loans[0].ID)

	_, err = svc.BorrowerLoans(context.Background(), "")
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestLedgerServiceHistoryPagination(t *testing.T) {
	ledger := newMemLedger()
	reader := &memLoanReader{m: ledger}
	svc := NewLedgerService(ledger, reader, nil, nil, nil, nil, 62)

	_, page, err := svc.History(context.Background(), dto.LoanHistoryQuery{Search: "  hist ", PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, "hist", reader.lastFilter.Search)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 100, page.PageSize)
}
