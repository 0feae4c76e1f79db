package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-library-api/internal/models"
)

func TestReviewRepositoryListByBook(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewReviewRepository(db)
	day := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM reviews WHERE book_id = $1 ORDER BY review_date DESC, id DESC")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "loan_id", "book_id", "author_email", "rating", "comment", "review_date"}).
			AddRow(2, 5, 7, "luis@school.edu", 4, nil, day).
			AddRow(1, 3, 7, "ana@school.edu", 5, "great", day.AddDate(0, 0, -1)))

	reviews, err := repo.ListByBook(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	assert.Nil(t, reviews[0].Comment)
	require.NotNil(t, reviews[1].Comment)
	assert.Equal(t, "great", *reviews[1].Comment)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryCreateFillsDefaults(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewAuditRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	actor := models.AdminSubject
	entry := &models.AuditLog{Actor: &actor, Action: models.AuditActionLoanReturn, Resource: "loan"}
	require.NoError(t, repo.CreateAuditLog(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}
