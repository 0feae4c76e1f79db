package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-library-api/internal/models"
)

const (
	reportColumns = "id, type, params, status, progress, result_url, created_by, created_at, finished_at, error_message"

	defaultQueuedBatch   = 20
	defaultFinishedBatch = 50
)

var reportSelect = []interface{}{"id", "type", "params", "status", "progress", "result_url", "created_by", "created_at", "finished_at", "error_message"}

// ReportRepository stores report_jobs rows. A row is the durable half of a
// queued report; the in-memory queue only carries its id.
type ReportRepository struct {
	db *sqlx.DB
}

func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a job, filling id, status and created_at when unset.
func (r *ReportRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ReportStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO report_jobs (` + reportColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.Type, job.Params, job.Status, job.Progress,
		job.ResultURL, job.CreatedBy, job.CreatedAt, job.FinishedAt, job.ErrorMessage)
	if err != nil {
		return fmt.Errorf("insert report job %s: %w", job.ID, err)
	}
	return nil
}

// GetByID returns sql.ErrNoRows (wrapped) for unknown ids.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	var job models.ReportJob
	if err := r.db.GetContext(ctx, &job, `SELECT `+reportColumns+` FROM report_jobs WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("get report job %s: %w", id, err)
	}
	return &job, nil
}

// UpdateReportJobParams lists the columns a worker may change; nil fields are left alone.
type UpdateReportJobParams struct {
	Status       *models.ReportStatus
	Progress     *int
	ResultURL    *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

func (p UpdateReportJobParams) record() goqu.Record {
	rec := goqu.Record{}
	if p.Status != nil {
		rec["status"] = string(*p.Status)
	}
	if p.Progress != nil {
		rec["progress"] = *p.Progress
	}
	if p.ResultURL != nil {
		rec["result_url"] = *p.ResultURL
	}
	if p.ErrorMessage != nil {
		rec["error_message"] = *p.ErrorMessage
	}
	if p.FinishedAt != nil {
		rec["finished_at"] = *p.FinishedAt
	}
	return rec
}

// Update applies the non-nil fields of params to the job.
func (r *ReportRepository) Update(ctx context.Context, id string, params UpdateReportJobParams) error {
	rec := params.record()
	if len(rec) == 0 {
		return nil
	}
	query, args, err := pg.Update("report_jobs").
		Set(rec).
		Where(goqu.C("id").Eq(id)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build report job update: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update report job %s: %w", id, err)
	}
	return nil
}

// ListQueued returns the oldest QUEUED jobs, replayed into the queue at startup.
func (r *ReportRepository) ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error) {
	if limit <= 0 {
		limit = defaultQueuedBatch
	}
	ds := pg.From("report_jobs").
		Select(reportSelect...).
		Where(goqu.C("status").Eq(string(models.ReportStatusQueued))).
		Order(goqu.C("created_at").Asc()).
		Limit(uint(limit))
	return r.selectJobs(ctx, ds, "list queued report jobs")
}

// ListFinishedBefore returns FINISHED jobs whose file is older than cutoff.
func (r *ReportRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	if limit <= 0 {
		limit = defaultFinishedBatch
	}
	ds := pg.From("report_jobs").
		Select(reportSelect...).
		Where(
			goqu.C("status").Eq(string(models.ReportStatusFinished)),
			goqu.C("finished_at").IsNotNull(),
			goqu.C("finished_at").Lt(cutoff),
		).
		Order(goqu.C("finished_at").Asc()).
		Limit(uint(limit))
	return r.selectJobs(ctx, ds, "list finished report jobs")
}

func (r *ReportRepository) selectJobs(ctx context.Context, ds *goqu.SelectDataset, op string) ([]models.ReportJob, error) {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	jobs := make([]models.ReportJob, 0)
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return jobs, nil
}
