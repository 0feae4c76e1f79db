package models

import "time"

// PopularBook pairs a book with its historical loan count.
type PopularBook struct {
	Book
	LoanCount int `db:"loan_count" json:"loan_count"`
}

// RatedBook pairs a book with its mean rating.
type RatedBook struct {
	Book
	AverageRating float64 `db:"average_rating" json:"average_rating"`
	ReviewCount   int     `db:"review_count" json:"review_count"`
}

// ActiveUser aggregates loans by borrower email.
type ActiveUser struct {
	BorrowerName  string `db:"borrower_name" json:"borrower_name"`
	BorrowerEmail string `db:"borrower_email" json:"borrower_email"`
	LoanCount     int    `db:"loan_count" json:"loan_count"`
}

// LibraryTotals summarises circulation counters.
type LibraryTotals struct {
	TotalLoans  int `db:"total_loans" json:"total_loans"`
	ActiveLoans int `db:"active_loans" json:"active_loans"`
	TotalStock  int `db:"total_stock" json:"total_stock"`
	TotalTitles int `db:"total_titles" json:"total_titles"`
}

// SystemMetrics is the JSON summary of the process counters.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	LoansCreated             uint64    `json:"loans_created"`
	LoansReturned            uint64    `json:"loans_returned"`
	ReviewsSubmitted         uint64    `json:"reviews_submitted"`
	LedgerRejections         uint64    `json:"ledger_rejections"`
	ReportsFinished          uint64    `json:"reports_finished"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
