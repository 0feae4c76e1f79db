package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-library-api/internal/dto"
	"github.com/noah-isme/sma-library-api/internal/models"
	"github.com/noah-isme/sma-library-api/internal/service"
	appErrors "github.com/noah-isme/sma-library-api/pkg/errors"
	"github.com/noah-isme/sma-library-api/pkg/response"
)

type bookService interface {
	List(ctx context.Context, query dto.BookListQuery) ([]models.Book, *models.Pagination, error)
	Get(ctx context.Context, id int64) (*models.Book, error)
	Create(ctx context.Context, req dto.UpsertBookRequest, meta service.AuditMeta) (*models.Book, error)
	Update(ctx context.Context, id int64, req dto.UpsertBookRequest, meta service.AuditMeta) (*models.Book, error)
	Delete(ctx context.Context, id int64, meta service.AuditMeta) error
}

// BookHandler manages the catalog for the library desk.
type BookHandler struct {
	service bookService
}

// NewBookHandler constructs the handler.
func NewBookHandler(service bookService) *BookHandler {
	return &BookHandler{service: service}
}

// List godoc
// @Summary List books
// @Tags Books
// @Produce json
// @Param q query string false "Title, author, code or section search"
// @Param section query string false "Section filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/books [get]
func (h *BookHandler) List(c *gin.Context) {
	var query dto.BookListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid book query"))
		return
	}
	books, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, books, pagination)
}

// Get godoc
// @Summary Get book
// @Tags Books
// @Produce json
// @Param id path int true "Book ID"
// @Success 200 {object} response.Envelope
// @Router /admin/books/{id} [get]
func (h *BookHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	book, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, book, nil)
}

// Create godoc
// @Summary Create book
// @Tags Books
// @Accept json
// @Produce json
// @Param payload body dto.UpsertBookRequest true "Book payload"
// @Success 201 {object} response.Envelope
// @Router /admin/books [post]
func (h *BookHandler) Create(c *gin.Context) {
	var req dto.UpsertBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid book payload"))
		return
	}
	book, err := h.service.Create(c.Request.Context(), req, auditMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, book)
}

// Update godoc
// @Summary Update book
// @Description Overwrites a book; editing stock provisions or writes off copies
// @Tags Books
// @Accept json
// @Produce json
// @Param id path int true "Book ID"
// @Param payload body dto.UpsertBookRequest true "Book payload"
// @Success 200 {object} response.Envelope
// @Router /admin/books/{id} [put]
func (h *BookHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.UpsertBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid book payload"))
		return
	}
	book, err := h.service.Update(c.Request.Context(), id, req, auditMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, book, nil)
}

// Delete godoc
// @Summary Delete book
// @Tags Books
// @Param id path int true "Book ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /admin/books/{id} [delete]
func (h *BookHandler) Delete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.Delete(c.Request.Context(), id, auditMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
