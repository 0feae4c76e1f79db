package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// ReportType names the dataset a report job renders.
type ReportType string

const (
	ReportTypeLoanHistory ReportType = "loan_history"
	ReportTypeOverdue     ReportType = "overdue"
	ReportTypeInventory   ReportType = "inventory"
)

// ReportFormat is the rendered file type.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ReportStatus moves QUEUED -> PROCESSING -> FINISHED or FAILED.
type ReportStatus string

const (
	ReportStatusQueued     ReportStatus = "QUEUED"
	ReportStatusProcessing ReportStatus = "PROCESSING"
	ReportStatusFinished   ReportStatus = "FINISHED"
	ReportStatusFailed     ReportStatus = "FAILED"
)

// ReportJob is one row of report_jobs.
type ReportJob struct {
	ID           string          `db:"id" json:"id"`
	Type         ReportType      `db:"type" json:"type"`
	Params       ReportJobParams `db:"params" json:"params"`
	Status       ReportStatus    `db:"status" json:"status"`
	Progress     int             `db:"progress" json:"progress"`
	ResultURL    *string         `db:"result_url" json:"result_url,omitempty"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
}

// Terminal reports whether the worker is done with the job.
func (j ReportJob) Terminal() bool {
	return j.Status == ReportStatusFinished || j.Status == ReportStatusFailed
}

// ReportJobParams is the JSONB params column: the dataset filters of the request.
type ReportJobParams struct {
	Format     ReportFormat `json:"format"`
	Search     string       `json:"search,omitempty"`
	Section    string       `json:"section,omitempty"`
	ActiveOnly bool         `json:"activeOnly,omitempty"`
}

var paramsJSON = jsoniter.ConfigCompatibleWithStandardLibrary

func (p ReportJobParams) Value() (driver.Value, error) {
	data, err := paramsJSON.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode report params: %w", err)
	}
	return data, nil
}

func (p *ReportJobParams) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("report params: cannot scan %T", value)
	}
	*p = ReportJobParams{}
	if len(data) == 0 {
		return nil
	}
	if err := paramsJSON.Unmarshal(data, p); err != nil {
		return fmt.Errorf("decode report params: %w", err)
	}
	return nil
}
