package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/noah-isme/sma-library-api/internal/dto"
	"github.com/noah-isme/sma-library-api/internal/models"
	"github.com/noah-isme/sma-library-api/internal/repository"
	appErrors "github.com/noah-isme/sma-library-api/pkg/errors"
)

const (
	defaultStatsLimit = 5
	maxStatsLimit     = 50
)

type catalogBookReader interface {
	ListAvailable(ctx context.Context, search, section string) ([]models.Book, error)
	GetByID(ctx context.Context, id int64) (*models.Book, error)
	Sections(ctx context.Context) ([]string, error)
}

type reviewLister interface {
	ListByBook(ctx context.Context, bookID int64) ([]models.Review, error)
}

type statsReader interface {
	PopularBooks(ctx context.Context, limit int) ([]models.PopularBook, error)
	TopRatedBooks(ctx context.Context, limit int) ([]models.RatedBook, error)
	ActiveUsers(ctx context.Context, limit int) ([]models.ActiveUser, error)
	Totals(ctx context.Context) (*models.LibraryTotals, error)
	RatingSummary(ctx context.Context, bookID int64) (*float64, int, error)
}

// CatalogServiceConfig tunes catalog presentation.
type CatalogServiceConfig struct {
	CollationLocale string
	StatsLimit      int
	StatsTTL        time.Duration
}

// CatalogService answers the read side: availability listing, book pages and statistics.
type CatalogService struct {
	books   catalogBookReader
	reviews reviewLister
	stats   statsReader
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	locale  language.Tag
	limit   int
	ttl     time.Duration
}

// NewCatalogService builds a CatalogService.
func NewCatalogService(books catalogBookReader, reviews reviewLister, stats statsReader, cache *CacheService, metrics *MetricsService, logger *zap.Logger, cfg CatalogServiceConfig) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	locale := language.Spanish
	if cfg.CollationLocale != "" {
		if tag, err := language.Parse(cfg.CollationLocale); err == nil {
			locale = tag
		} else {
			logger.Warn("unknown collation locale, using default", zap.String("locale", cfg.CollationLocale))
		}
	}
	return &CatalogService{
		books:   books,
		reviews: reviews,
		stats:   stats,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
		locale:  locale,
		limit:   normaliseStatsLimit(cfg.StatsLimit),
		ttl:     cfg.StatsTTL,
	}
}

// ListAvailable returns on-shelf books. An active filter yields one search
// results bucket, omitted when nothing matched; otherwise books are grouped
// by section in natural order.
func (s *CatalogService) ListAvailable(ctx context.Context, filter dto.CatalogFilter) ([]dto.SectionGroup, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Section = strings.TrimSpace(filter.Section)

	books, err := s.books.ListAvailable(ctx, filter.Search, filter.Section)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list catalog")
	}

	col := s.collator()
	if filter.Active() {
		if len(books) == 0 {
			return []dto.SectionGroup{}, nil
		}
		sort.SliceStable(books, func(i, j int) bool {
			if c := col.CompareString(books[i].Section, books[j].Section); c != 0 {
				return c < 0
			}
			return lessByTitle(col, books[i], books[j])
		})
		return []dto.SectionGroup{{Section: dto.SearchResultsSection, Books: books}}, nil
	}

	bySection := make(map[string][]models.Book)
	sections := make([]string, 0)
	for _, book := range books {
		if _, ok := bySection[book.Section]; !ok {
			sections = append(sections, book.Section)
		}
		bySection[book.Section] = append(bySection[book.Section], book)
	}
	sortStrings(col, sections)

	groups := make([]dto.SectionGroup, 0, len(sections))
	for _, section := range sections {
		items := bySection[section]
		sortBooks(col, items)
		groups = append(groups, dto.SectionGroup{Section: section, Books: items})
	}
	return groups, nil
}

// Sections lists the distinct sections in natural order.
func (s *CatalogService) Sections(ctx context.Context) ([]string, error) {
	sections, err := s.books.Sections(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}
	sortStrings(s.collator(), sections)
	return sections, nil
}

// BookDetail returns a book with its reviews, newest first, and the mean rating rounded to one decimal.
func (s *CatalogService) BookDetail(ctx context.Context, bookID int64) (*dto.BookDetailResponse, error) {
	book, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load book")
	}

	reviews, err := s.reviews.ListByBook(ctx, bookID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reviews")
	}
	if reviews == nil {
		reviews = []models.Review{}
	}

	avg, count, err := s.stats.RatingSummary(ctx, bookID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise ratings")
	}
	if avg != nil {
		rounded := math.Round(*avg*10) / 10
		avg = &rounded
	}

	return &dto.BookDetailResponse{Book: *book, Reviews: reviews, AverageRating: avg, ReviewCount: count}, nil
}

// PopularBooks ranks books by total loans, ties by lower id.
func (s *CatalogService) PopularBooks(ctx context.Context, limit int) ([]models.PopularBook, error) {
	start := time.Now()
	books, err := s.stats.PopularBooks(ctx, s.resolveLimit(limit))
	s.metrics.ObserveDBQuery("stats_popular_books", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rank popular books")
	}
	if books == nil {
		books = []models.PopularBook{}
	}
	return books, nil
}

// TopRatedBooks ranks reviewed books by mean rating.
func (s *CatalogService) TopRatedBooks(ctx context.Context, limit int) ([]models.RatedBook, error) {
	start := time.Now()
	books, err := s.stats.TopRatedBooks(ctx, s.resolveLimit(limit))
	s.metrics.ObserveDBQuery("stats_top_rated_books", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rank rated books")
	}
	if books == nil {
		books = []models.RatedBook{}
	}
	return books, nil
}

// ActiveUsers ranks borrowers by loan count.
func (s *CatalogService) ActiveUsers(ctx context.Context, limit int) ([]models.ActiveUser, error) {
	start := time.Now()
	users, err := s.stats.ActiveUsers(ctx, s.resolveLimit(limit))
	s.metrics.ObserveDBQuery("stats_active_users", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rank active users")
	}
	if users == nil {
		users = []models.ActiveUser{}
	}
	return users, nil
}

// Stats aggregates every ranking plus the totals, served from cache when possible.
func (s *CatalogService) Stats(ctx context.Context, limit int) (*dto.LibraryStatsResponse, bool, error) {
	limit = s.resolveLimit(limit)
	key := fmt.Sprintf("library:stats:summary:%d", limit)

	var cached dto.LibraryStatsResponse
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, true, nil
	}

	popular, err := s.PopularBooks(ctx, limit)
	if err != nil {
		return nil, false, err
	}
	rated, err := s.TopRatedBooks(ctx, limit)
	if err != nil {
		return nil, false, err
	}
	users, err := s.ActiveUsers(ctx, limit)
	if err != nil {
		return nil, false, err
	}
	start := time.Now()
	totals, err := s.stats.Totals(ctx)
	s.metrics.ObserveDBQuery("stats_totals", time.Since(start))
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load totals")
	}

	resp := &dto.LibraryStatsResponse{PopularBooks: popular, TopRatedBooks: rated, ActiveUsers: users, Totals: *totals}
	_ = s.cache.Set(ctx, key, resp, s.ttl)
	return resp, false, nil
}

func (s *CatalogService) resolveLimit(limit int) int {
	if limit <= 0 {
		return s.limit
	}
	return normaliseStatsLimit(limit)
}

// collator is built per call; collate.Collator keeps internal buffers and is not safe for concurrent use.
func (s *CatalogService) collator() *collate.Collator {
	return collate.New(s.locale, collate.Numeric, collate.IgnoreCase)
}

func normaliseStatsLimit(limit int) int {
	if limit <= 0 {
		return defaultStatsLimit
	}
	if limit > maxStatsLimit {
		return maxStatsLimit
	}
	return limit
}

func sortStrings(col *collate.Collator, values []string) {
	sort.SliceStable(values, func(i, j int) bool {
		return col.CompareString(values[i], values[j]) < 0
	})
}

func sortBooks(col *collate.Collator, books []models.Book) {
	sort.SliceStable(books, func(i, j int) bool {
		return lessByTitle(col, books[i], books[j])
	})
}

func lessByTitle(col *collate.Collator, a, b models.Book) bool {
	if c := col.CompareString(a.Title, b.Title); c != 0 {
		return c < 0
	}
	return a.ID < b.ID
}
