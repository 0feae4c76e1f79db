package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-library-api/internal/dto"
	"github.com/noah-isme/sma-library-api/internal/models"
	"github.com/noah-isme/sma-library-api/internal/repository"
	"github.com/noah-isme/sma-library-api/pkg/config"
	"github.com/noah-isme/sma-library-api/pkg/duedate"
	appErrors "github.com/noah-isme/sma-library-api/pkg/errors"
)

type ledgerStore interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.LedgerTx) error) error
}

type loanReader interface {
	GetByID(ctx context.Context, id int64) (*models.LoanDetail, error)
	ListByBorrower(ctx context.Context, email string) ([]models.LoanDetail, error)
	ListHistory(ctx context.Context, filter models.LoanHistoryFilter) ([]models.LoanDetail, int, error)
}

type statsInvalidator interface {
	InvalidateStats(ctx context.Context)
}

// LedgerService owns loan creation and return. Every mutation runs in one
// transaction that pairs the loan write with its stock adjustment.
type LedgerService struct {
	ledger    ledgerStore
	loans     loanReader
	cache     statsInvalidator
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	maxDays   int
	now       func() time.Time
}

// NewLedgerService builds a LedgerService. maxDays outside 1..62 falls back to 62.
func NewLedgerService(ledger ledgerStore, loans loanReader, cache statsInvalidator, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, maxDays int) *LedgerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxDays <= 0 || maxDays > config.MaxLoanDaysCeiling {
		maxDays = config.MaxLoanDaysCeiling
	}
	return &LedgerService{
		ledger:    ledger,
		loans:     loans,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		maxDays:   maxDays,
		now:       time.Now,
	}
}

// CreateLoan lends one copy of a book to the borrower for req.Days days starting today.
func (s *LedgerService) CreateLoan(ctx context.Context, req dto.CreateLoanRequest) (*dto.LoanView, error) {
	if req.Days < 1 || req.Days > s.maxDays {
		s.metrics.RecordLedgerEvent(LedgerEventLoan, appErrors.ErrInvalidDuration.Code)
		return nil, appErrors.Clone(appErrors.ErrInvalidDuration, fmt.Sprintf("loan duration must be between 1 and %d days", s.maxDays))
	}
	req.BorrowerName = strings.TrimSpace(req.BorrowerName)
	req.Grade = strings.TrimSpace(req.Grade)
	req.ClassGroup = strings.TrimSpace(req.ClassGroup)
	req.BorrowerEmail = normaliseEmail(req.BorrowerEmail)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid loan payload")
	}

	today := duedate.Date(s.now())
	loan := &models.Loan{
		BorrowerName:  req.BorrowerName,
		Grade:         req.Grade,
		ClassGroup:    req.ClassGroup,
		BookID:        req.BookID,
		Days:          req.Days,
		BorrowerEmail: req.BorrowerEmail,
		LoanDate:      today,
	}

	var book *models.Book
	err := s.ledger.WithinTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		locked, err := tx.LockBook(ctx, req.BookID)
		if err != nil {
			if repository.IsNotFound(err) {
				return appErrors.Clone(appErrors.ErrNotFound, "book not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load book")
		}
		if !locked.Available() {
			return appErrors.ErrOutOfStock
		}
		if err := tx.AdjustStock(ctx, locked.ID, -1); err != nil {
			if errors.Is(err, repository.ErrStaleRow) {
				return appErrors.ErrOutOfStock
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve copy")
		}
		if err := tx.InsertLoan(ctx, loan); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create loan")
		}
		locked.Stock--
		book = locked
		return nil
	})
	if err != nil {
		s.recordFailure(LedgerEventLoan, err)
		return nil, err
	}

	s.metrics.RecordLedgerEvent(LedgerEventLoan, ledgerOutcomeOK)
	s.invalidateStats(ctx)
	s.logger.Info("loan created",
		zap.Int64("loan_id", loan.ID),
		zap.Int64("book_id", book.ID),
		zap.Int("stock_after", book.Stock),
		zap.Int("days", loan.Days),
	)

	view := toLoanView(models.LoanDetail{Loan: *loan, BookTitle: book.Title, BookCode: book.Code}, today)
	return &view, nil
}

// ReturnLoan marks a loan returned today and puts the copy back on the shelf.
func (s *LedgerService) ReturnLoan(ctx context.Context, loanID int64) (*dto.LoanView, error) {
	today := duedate.Date(s.now())

	var (
		loan *models.Loan
		book *models.Book
	)
	err := s.ledger.WithinTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		locked, err := tx.LockLoan(ctx, loanID)
		if err != nil {
			if repository.IsNotFound(err) {
				return appErrors.Clone(appErrors.ErrNotFound, "loan not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load loan")
		}
		if locked.Returned {
			return appErrors.ErrAlreadyReturned
		}
		if err := tx.MarkReturned(ctx, locked.ID, today); err != nil {
			if errors.Is(err, repository.ErrStaleRow) {
				return appErrors.ErrAlreadyReturned
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark loan returned")
		}
		lockedBook, err := tx.LockBook(ctx, locked.BookID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load book")
		}
		if err := tx.AdjustStock(ctx, lockedBook.ID, 1); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to restock book")
		}
		lockedBook.Stock++
		returnDate := today
		locked.Returned = true
		locked.ReturnDate = &returnDate
		loan, book = locked, lockedBook
		return nil
	})
	if err != nil {
		s.recordFailure(LedgerEventReturn, err)
		return nil, err
	}

	s.metrics.RecordLedgerEvent(LedgerEventReturn, ledgerOutcomeOK)
	s.invalidateStats(ctx)
	s.logger.Info("loan returned",
		zap.Int64("loan_id", loan.ID),
		zap.Int64("book_id", book.ID),
		zap.Int("stock_after", book.Stock),
	)

	view := toLoanView(models.LoanDetail{Loan: *loan, BookTitle: book.Title, BookCode: book.Code}, today)
	return &view, nil
}

// BorrowerLoans lists the caller's loans, newest first.
func (s *LedgerService) BorrowerLoans(ctx context.Context, email string) ([]dto.LoanView, error) {
	email = normaliseEmail(email)
	if email == "" {
		return nil, appErrors.ErrUnauthorized
	}
	loans, err := s.loans.ListByBorrower(ctx, email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list loans")
	}
	return toLoanViews(loans, duedate.Date(s.now())), nil
}

// GetLoan returns a single loan view.
func (s *LedgerService) GetLoan(ctx context.Context, loanID int64) (*dto.LoanView, error) {
	loan, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "loan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load loan")
	}
	view := toLoanView(*loan, duedate.Date(s.now()))
	return &view, nil
}

// History searches the full ledger for the admin desk.
func (s *LedgerService) History(ctx context.Context, query dto.LoanHistoryQuery) ([]dto.LoanView, *models.Pagination, error) {
	filter := models.LoanHistoryFilter{
		Search:     strings.TrimSpace(query.Search),
		ActiveOnly: query.ActiveOnly,
		Page:       query.Page,
		PageSize:   query.PageSize,
	}
	loans, total, err := s.loans.ListHistory(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list loan history")
	}
	page, size := pageDefaults(filter.Page, filter.PageSize)
	return toLoanViews(loans, duedate.Date(s.now())), &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *LedgerService) recordFailure(event string, err error) {
	if appErr := appErrors.FromError(err); appErr != nil {
		s.metrics.RecordLedgerEvent(event, appErr.Code)
		if appErr.Status >= 500 {
			s.logger.Error("ledger mutation failed", zap.String("event", event), zap.Error(err))
		}
	}
}

func (s *LedgerService) invalidateStats(ctx context.Context) {
	if s.cache != nil {
		s.cache.InvalidateStats(ctx)
	}
}
