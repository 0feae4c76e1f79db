package dto

import "github.com/noah-isme/sma-library-api/internal/models"

// ReportRequest captures POST /admin/reports payload.
type ReportRequest struct {
	Type    models.ReportType   `json:"type"`
	Format  models.ReportFormat `json:"format"`
	Search  string              `json:"search,omitempty"`
	Section string              `json:"section,omitempty"`
	// ActiveOnly restricts loan_history to unreturned loans.
	ActiveOnly bool `json:"activeOnly,omitempty"`
}

// ReportJobResponse is returned after enqueueing a report.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse exposes job progress metadata.
type ReportStatusResponse struct {
	ID        string              `json:"id"`
	Status    models.ReportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"resultUrl,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
