package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-library-api/internal/dto"
	"github.com/noah-isme/sma-library-api/internal/models"
	"github.com/noah-isme/sma-library-api/internal/repository"
	appErrors "github.com/noah-isme/sma-library-api/pkg/errors"
)

const bookResource = "book"

type bookStore interface {
	Create(ctx context.Context, book *models.Book) error
	GetByID(ctx context.Context, id int64) (*models.Book, error)
	Update(ctx context.Context, book *models.Book) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error)
}

// AuditMeta carries request metadata recorded with admin mutations.
type AuditMeta struct {
	Actor     string
	IP        string
	UserAgent string
}

// BookService manages the catalog for the library desk.
type BookService struct {
	repo      bookStore
	cache     statsInvalidator
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBookService builds a BookService.
func NewBookService(repo bookStore, cache statsInvalidator, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *BookService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookService{repo: repo, cache: cache, audit: audit, validator: validate, logger: logger}
}

// List returns a page of books with optional search and section filters.
func (s *BookService) List(ctx context.Context, query dto.BookListQuery) ([]models.Book, *models.Pagination, error) {
	filter := models.BookFilter{
		Search:   strings.TrimSpace(query.Search),
		Section:  strings.TrimSpace(query.Section),
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	books, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list books")
	}
	page, size := pageDefaults(filter.Page, filter.PageSize)
	return books, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single book.
func (s *BookService) Get(ctx context.Context, id int64) (*models.Book, error) {
	book, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load book")
	}
	return book, nil
}

// Create adds a book and derives its catalog code.
func (s *BookService) Create(ctx context.Context, req dto.UpsertBookRequest, meta AuditMeta) (*models.Book, error) {
	book, err := s.bookFromRequest(req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, book); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create book")
	}
	s.afterMutation(ctx, models.AuditActionBookCreate, book.ID, book, meta)
	return book, nil
}

// Update overwrites a book. A stock edit is how copies are provisioned or written off.
func (s *BookService) Update(ctx context.Context, id int64, req dto.UpsertBookRequest, meta AuditMeta) (*models.Book, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	book, err := s.bookFromRequest(req)
	if err != nil {
		return nil, err
	}
	book.ID = id
	if err := s.repo.Update(ctx, book); err != nil {
		if repository.IsNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update book")
	}
	s.afterMutation(ctx, models.AuditActionBookUpdate, book.ID, book, meta)
	return book, nil
}

// Delete removes a book that has never been lent.
func (s *BookService) Delete(ctx context.Context, id int64, meta AuditMeta) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		switch {
		case repository.IsNotFound(err):
			return appErrors.Clone(appErrors.ErrNotFound, "book not found")
		case errors.Is(err, repository.ErrBookReferenced):
			return appErrors.ErrBookHasLoans
		default:
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete book")
		}
	}
	s.afterMutation(ctx, models.AuditActionBookDelete, id, nil, meta)
	return nil
}

func (s *BookService) bookFromRequest(req dto.UpsertBookRequest) (*models.Book, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Author = strings.TrimSpace(req.Author)
	req.Section = strings.TrimSpace(req.Section)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid book payload")
	}
	return &models.Book{
		Title:     req.Title,
		Author:    req.Author,
		Publisher: optionalText(req.Publisher),
		Stock:     *req.Stock,
		Section:   req.Section,
	}, nil
}

func (s *BookService) afterMutation(ctx context.Context, action string, id int64, book *models.Book, meta AuditMeta) {
	if s.cache != nil {
		s.cache.InvalidateStats(ctx)
	}
	if s.audit == nil {
		return
	}
	resourceID := strconv.FormatInt(id, 10)
	var payload []byte
	if book != nil {
		payload, _ = json.Marshal(book)
	}
	entry := &models.AuditLog{
		Action:     action,
		Resource:   bookResource,
		ResourceID: &resourceID,
		Payload:    payload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if meta.Actor != "" {
		actor := meta.Actor
		entry.Actor = &actor
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record book audit log", zap.String("action", action), zap.Error(err))
	}
}
