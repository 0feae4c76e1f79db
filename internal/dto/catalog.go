package dto

import "github.com/noah-isme/sma-library-api/internal/models"

// SearchResultsSection labels the single bucket returned for filtered listings.
const SearchResultsSection = "Search results"

// CatalogFilter captures GET /catalog query parameters.
type CatalogFilter struct {
	Search  string `form:"q"`
	Section string `form:"section"`
}

// Active reports whether any filter narrows the listing.
func (f CatalogFilter) Active() bool {
	return f.Search != "" || f.Section != ""
}

// SectionGroup is one display bucket of available books.
type SectionGroup struct {
	Section string        `json:"section"`
	Books   []models.Book `json:"books"`
}

// BookDetailResponse is the public book page.
type BookDetailResponse struct {
	Book          models.Book     `json:"book"`
	Reviews       []models.Review `json:"reviews"`
	AverageRating *float64        `json:"average_rating,omitempty"`
	ReviewCount   int             `json:"review_count"`
}

// LibraryStatsResponse aggregates the dashboard statistics.
type LibraryStatsResponse struct {
	PopularBooks  []models.PopularBook `json:"popular_books"`
	TopRatedBooks []models.RatedBook   `json:"top_rated_books"`
	ActiveUsers   []models.ActiveUser  `json:"active_users"`
	Totals        models.LibraryTotals `json:"totals"`
}
