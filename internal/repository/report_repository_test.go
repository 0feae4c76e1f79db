package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-library-api/internal/models"
)

var reportRowColumns = []string{"id", "type", "params", "status", "progress", "result_url", "created_by", "created_at", "finished_at", "error_message"}

func newReportRepoMock(t *testing.T) (*ReportRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewReportRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestReportRepositoryCreateFillsDefaults(t *testing.T) {
	repo, mock := newReportRepoMock(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO report_jobs (" + reportColumns + ")")).
		WithArgs(sqlmock.AnyArg(), "loan_history", sqlmock.AnyArg(), "QUEUED", 0, nil, models.AdminSubject, sqlmock.AnyArg(), nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	job := &models.ReportJob{
		Type:      models.ReportTypeLoanHistory,
		Params:    models.ReportJobParams{Search: "garcia", Format: models.ReportFormatCSV, ActiveOnly: true},
		CreatedBy: models.AdminSubject,
	}
	require.NoError(t, repo.Create(context.Background(), job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.ReportStatusQueued, job.Status)
	assert.False(t, job.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryGetByIDDecodesParams(t *testing.T) {
	repo, mock := newReportRepoMock(t)

	rows := sqlmock.NewRows(reportRowColumns).
		AddRow("job-1", "loan_history", `{"format":"csv","search":"garcia","activeOnly":true}`, "QUEUED", 0, nil, models.AdminSubject, time.Now(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + reportColumns + " FROM report_jobs WHERE id = $1")).
		WithArgs("job-1").
		WillReturnRows(rows)

	fetched, err := repo.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "garcia", fetched.Params.Search)
	assert.Equal(t, models.ReportFormatCSV, fetched.Params.Format)
	assert.True(t, fetched.Params.ActiveOnly)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryGetByIDMissing(t *testing.T) {
	repo, mock := newReportRepoMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM report_jobs WHERE id = $1")).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "nope")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestReportRepositoryUpdateOnlyTouchesSetFields(t *testing.T) {
	repo, mock := newReportRepoMock(t)

	now := time.Now()
	status := models.ReportStatusFinished
	progress := 100
	result := "/api/v1/export/token"
	mock.ExpectExec(`UPDATE "report_jobs" SET "finished_at"=\$1,"progress"=\$2,"result_url"=\$3,"status"=\$4 WHERE \("id" = \$5\)`).
		WithArgs(sqlmock.AnyArg(), progress, result, "FINISHED", "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "job-1", UpdateReportJobParams{
		Status:     &status,
		Progress:   &progress,
		ResultURL:  &result,
		FinishedAt: &now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryUpdateNoop(t *testing.T) {
	repo, mock := newReportRepoMock(t)

	require.NoError(t, repo.Update(context.Background(), "job-1", UpdateReportJobParams{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryListQueued(t *testing.T) {
	repo, mock := newReportRepoMock(t)

	rows := sqlmock.NewRows(reportRowColumns).
		AddRow("job-1", "overdue", `{"format":"pdf"}`, "QUEUED", 0, nil, models.AdminSubject, time.Now(), nil, nil)
	mock.ExpectQuery(`SELECT .* FROM "report_jobs" WHERE \("status" = \$1\) ORDER BY "created_at" ASC LIMIT \$2`).
		WithArgs("QUEUED", defaultQueuedBatch).
		WillReturnRows(rows)

	jobs, err := repo.ListQueued(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.ReportTypeOverdue, jobs[0].Type)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryListFinishedBefore(t *testing.T) {
	repo, mock := newReportRepoMock(t)

	cutoff := time.Now()
	rows := sqlmock.NewRows(reportRowColumns).
		AddRow("job-1", "inventory", `{"format":"csv","section":"Historia"}`, "FINISHED", 100, "/api/v1/export/token", models.AdminSubject, cutoff.Add(-48*time.Hour), cutoff.Add(-25*time.Hour), nil)
	mock.ExpectQuery(`SELECT .* FROM "report_jobs" WHERE .*"status" = \$1.*"finished_at" IS NOT NULL.*"finished_at" < \$2.* ORDER BY "finished_at" ASC LIMIT \$3`).
		WithArgs("FINISHED", sqlmock.AnyArg(), defaultFinishedBatch).
		WillReturnRows(rows)

	jobs, err := repo.ListFinishedBefore(context.Background(), cutoff, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "Historia", jobs[0].Params.Section)
	require.NoError(t, mock.ExpectationsWereMet())
}
