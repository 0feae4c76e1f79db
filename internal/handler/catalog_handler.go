package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-library-api/internal/dto"
	"github.com/noah-isme/sma-library-api/internal/middleware"
	appErrors "github.com/noah-isme/sma-library-api/pkg/errors"
	"github.com/noah-isme/sma-library-api/pkg/response"
)

type catalogService interface {
	ListAvailable(ctx context.Context, filter dto.CatalogFilter) ([]dto.SectionGroup, error)
	Sections(ctx context.Context) ([]string, error)
	BookDetail(ctx context.Context, bookID int64) (*dto.BookDetailResponse, error)
	Stats(ctx context.Context, limit int) (*dto.LibraryStatsResponse, bool, error)
}

// CatalogHandler serves the public read side of the library.
type CatalogHandler struct {
	service catalogService
}

// NewCatalogHandler constructs the handler.
func NewCatalogHandler(service catalogService) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// List godoc
// @Summary Available books
// @Description Books with stock on the shelf, grouped by section or as one search bucket
// @Tags Catalog
// @Produce json
// @Param q query string false "Title, author or code search"
// @Param section query string false "Section filter"
// @Success 200 {object} response.Envelope
// @Router /catalog [get]
func (h *CatalogHandler) List(c *gin.Context) {
	var filter dto.CatalogFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid catalog query"))
		return
	}
	groups, err := h.service.ListAvailable(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, nil)
}

// Sections godoc
// @Summary Catalog sections
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /catalog/sections [get]
func (h *CatalogHandler) Sections(c *gin.Context) {
	sections, err := h.service.Sections(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sections, nil)
}

// BookDetail godoc
// @Summary Book page
// @Description Book with its reviews and average rating
// @Tags Catalog
// @Produce json
// @Param id path int true "Book ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /books/{id} [get]
func (h *CatalogHandler) BookDetail(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	detail, err := h.service.BookDetail(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Stats godoc
// @Summary Library statistics
// @Description Popular books, top rated books, most active borrowers and circulation totals
// @Tags Catalog
// @Produce json
// @Param limit query int false "Ranking size (default 5, max 50)"
// @Success 200 {object} response.Envelope
// @Router /catalog/stats [get]
func (h *CatalogHandler) Stats(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}
	start := time.Now()
	stats, cacheHit, err := h.service.Stats(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, stats, nil, meta)
}
