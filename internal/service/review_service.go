package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-library-api/internal/dto"
	"github.com/noah-isme/sma-library-api/internal/models"
	"github.com/noah-isme/sma-library-api/internal/repository"
	"github.com/noah-isme/sma-library-api/pkg/duedate"
	appErrors "github.com/noah-isme/sma-library-api/pkg/errors"
)

const (
	minRating = 1
	maxRating = 5
)

// ReviewService gates reviews on returned, unreviewed loans owned by the requester.
type ReviewService struct {
	ledger  ledgerStore
	cache   statsInvalidator
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewReviewService builds a ReviewService.
func NewReviewService(ledger ledgerStore, cache statsInvalidator, metrics *MetricsService, logger *zap.Logger) *ReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewService{ledger: ledger, cache: cache, metrics: metrics, logger: logger, now: time.Now}
}

// SubmitReview records the single review allowed for a returned loan.
func (s *ReviewService) SubmitReview(ctx context.Context, loanID int64, requesterEmail string, req dto.SubmitReviewRequest) (*models.Review, error) {
	if req.Rating == nil || *req.Rating < minRating || *req.Rating > maxRating {
		s.metrics.RecordLedgerEvent(LedgerEventReview, appErrors.ErrInvalidRating.Code)
		return nil, appErrors.ErrInvalidRating
	}
	requester := normaliseEmail(requesterEmail)
	if requester == "" {
		return nil, appErrors.ErrUnauthorized
	}

	review := &models.Review{
		LoanID:      loanID,
		AuthorEmail: requester,
		Rating:      *req.Rating,
		Comment:     optionalText(req.Comment),
		ReviewDate:  duedate.Date(s.now()),
	}

	err := s.ledger.WithinTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		loan, err := tx.LockLoan(ctx, loanID)
		if err != nil {
			if repository.IsNotFound(err) {
				return appErrors.Clone(appErrors.ErrForbidden, "loan not available for review")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load loan")
		}
		if !strings.EqualFold(strings.TrimSpace(loan.BorrowerEmail), requester) {
			return appErrors.Clone(appErrors.ErrForbidden, "loan belongs to another borrower")
		}
		if !loan.Returned {
			return appErrors.Clone(appErrors.ErrForbidden, "loan must be returned before review")
		}
		if loan.Reviewed {
			return appErrors.ErrAlreadyReviewed
		}

		review.BookID = loan.BookID
		if err := tx.InsertReview(ctx, review); err != nil {
			if errors.Is(err, repository.ErrStaleRow) {
				return appErrors.ErrAlreadyReviewed
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save review")
		}
		if err := tx.MarkReviewed(ctx, loan.ID); err != nil {
			if errors.Is(err, repository.ErrStaleRow) {
				return appErrors.ErrAlreadyReviewed
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to flag loan reviewed")
		}
		return nil
	})
	if err != nil {
		if appErr := appErrors.FromError(err); appErr != nil {
			s.metrics.RecordLedgerEvent(LedgerEventReview, appErr.Code)
		}
		return nil, err
	}

	s.metrics.RecordLedgerEvent(LedgerEventReview, ledgerOutcomeOK)
	if s.cache != nil {
		s.cache.InvalidateStats(ctx)
	}
	s.logger.Info("review submitted", zap.Int64("loan_id", loanID), zap.Int64("book_id", review.BookID), zap.Int("rating", review.Rating))
	return review, nil
}

func optionalText(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
