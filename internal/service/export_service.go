package service

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-library-api/internal/models"
	"github.com/noah-isme/sma-library-api/pkg/duedate"
	"github.com/noah-isme/sma-library-api/pkg/export"
	"github.com/noah-isme/sma-library-api/pkg/storage"
)

const (
	exportDateLayout   = "2006-01-02"
	defaultExportRows  = 5000
	inventoryPageSize  = 100
	exportFilenameTime = "20060102_150405"
)

type exportLoanReader interface {
	ListForExport(ctx context.Context, filter models.LoanHistoryFilter, limit int) ([]models.LoanDetail, error)
	ListOverdue(ctx context.Context, today time.Time, limit int) ([]models.LoanDetail, error)
}

type inventoryReader interface {
	List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
	MaxRows   int
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	Name      string
	Token     string
	URL       string
	Format    models.ReportFormat
	Rows      int
	ExpiresAt time.Time
}

// ExportService builds report datasets from the ledger and stores the rendered files.
type ExportService struct {
	loans  exportLoanReader
	books  inventoryReader
	store  storage.Store
	signer *storage.SignedURLSigner
	logger *zap.Logger
	cfg    ExportConfig
	now    func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(loans exportLoanReader, books inventoryReader, store storage.Store, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = defaultExportRows
	}
	return &ExportService{
		loans:  loans,
		books:  books,
		store:  store,
		signer: signer,
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Generate renders the job's dataset and stores it, returning a signed download link.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	renderer, err := export.ForFormat(string(job.Params.Format))
	if err != nil {
		return nil, err
	}
	dataset, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}
	payload, err := renderer.Render(dataset)
	if err != nil {
		return nil, fmt.Errorf("render %s report: %w", job.Type, err)
	}

	name, err := s.store.Save(ctx, s.buildFilename(job, renderer.Extension()), payload, renderer.ContentType())
	if err != nil {
		return nil, fmt.Errorf("store report: %w", err)
	}

	token, expiresAt, err := s.signer.Generate(job.ID, name)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Debug("report rendered",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.Int("rows", len(dataset.Rows)),
		zap.Int("bytes", len(payload)),
	)

	return &ExportResult{
		Name:      name,
		Token:     token,
		URL:       fmt.Sprintf("%s/export/%s", prefix, token),
		Format:    job.Params.Format,
		Rows:      len(dataset.Rows),
		ExpiresAt: expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, name string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a reader over a stored report.
func (s *ExportService) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return s.store.Open(ctx, name)
}

// Delete removes a stored report.
func (s *ExportService) Delete(ctx context.Context, name string) error {
	return s.store.Delete(ctx, name)
}

// Cleanup removes reports older than ttl, falling back to the configured TTL.
func (s *ExportService) Cleanup(ctx context.Context, ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.store.CleanupOlderThan(ctx, ttl)
}

// ContentType maps a report format to its MIME type.
func ContentType(format models.ReportFormat) string {
	renderer, err := export.ForFormat(string(format))
	if err != nil {
		return "application/octet-stream"
	}
	return renderer.ContentType()
}

func (s *ExportService) buildFilename(job *models.ReportJob, ext string) string {
	id := job.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s_%s_%s.%s", job.Type, s.now().UTC().Format(exportFilenameTime), id, ext)
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, error) {
	switch job.Type {
	case models.ReportTypeLoanHistory:
		return s.loanHistoryDataset(ctx, job.Params)
	case models.ReportTypeOverdue:
		return s.overdueDataset(ctx)
	case models.ReportTypeInventory:
		return s.inventoryDataset(ctx, job.Params)
	default:
		return export.Dataset{}, fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) loanHistoryDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, error) {
	filter := models.LoanHistoryFilter{Search: params.Search, ActiveOnly: params.ActiveOnly}
	loans, err := s.loans.ListForExport(ctx, filter, s.cfg.MaxRows)
	if err != nil {
		return export.Dataset{}, err
	}
	today := s.now()
	data := export.Dataset{
		Title:   "Loan history",
		Headers: []string{"Loan", "Borrower", "Email", "Grade", "Group", "Book", "Code", "Loan date", "Due date", "Days", "Status", "Returned on"},
		Rows:    make([][]string, 0, len(loans)),
	}
	for _, loan := range loans {
		data.Rows = append(data.Rows, []string{
			strconv.FormatInt(loan.ID, 10),
			loan.BorrowerName,
			loan.BorrowerEmail,
			loan.Grade,
			loan.ClassGroup,
			loan.BookTitle,
			derefString(loan.BookCode),
			loan.LoanDate.Format(exportDateLayout),
			loan.DueDate().Format(exportDateLayout),
			strconv.Itoa(loan.Days),
			string(loan.Status(today)),
			formatOptionalDate(loan.ReturnDate),
		})
	}
	return data, nil
}

func (s *ExportService) overdueDataset(ctx context.Context) (export.Dataset, error) {
	today := duedate.Date(s.now())
	loans, err := s.loans.ListOverdue(ctx, today, s.cfg.MaxRows)
	if err != nil {
		return export.Dataset{}, err
	}
	data := export.Dataset{
		Title:   "Overdue loans " + today.Format(exportDateLayout),
		Headers: []string{"Loan", "Borrower", "Email", "Grade", "Group", "Book", "Code", "Due date", "Days overdue"},
		Rows:    make([][]string, 0, len(loans)),
	}
	for _, loan := range loans {
		due := loan.DueDate()
		data.Rows = append(data.Rows, []string{
			strconv.FormatInt(loan.ID, 10),
			loan.BorrowerName,
			loan.BorrowerEmail,
			loan.Grade,
			loan.ClassGroup,
			loan.BookTitle,
			derefString(loan.BookCode),
			due.Format(exportDateLayout),
			strconv.Itoa(duedate.DaysBetween(due, today)),
		})
	}
	return data, nil
}

func (s *ExportService) inventoryDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, error) {
	data := export.Dataset{
		Title:   "Inventory",
		Headers: []string{"Book", "Code", "Title", "Author", "Publisher", "Section", "Stock"},
	}
	filter := models.BookFilter{Search: params.Search, Section: params.Section, PageSize: inventoryPageSize}
	for page := 1; len(data.Rows) < s.cfg.MaxRows; page++ {
		filter.Page = page
		books, total, err := s.books.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, err
		}
		for _, book := range books {
			data.Rows = append(data.Rows, []string{
				strconv.FormatInt(book.ID, 10),
				derefString(book.Code),
				book.Title,
				book.Author,
				derefString(book.Publisher),
				book.Section,
				strconv.Itoa(book.Stock),
			})
		}
		if len(books) < inventoryPageSize || len(data.Rows) >= total {
			break
		}
	}
	if len(data.Rows) > s.cfg.MaxRows {
		data.Rows = data.Rows[:s.cfg.MaxRows]
	}
	return data, nil
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func formatOptionalDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(exportDateLayout)
}
