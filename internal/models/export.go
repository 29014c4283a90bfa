package models

import "time"

// ExportFormat is an audit export file format.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"
	ExportPDF  ExportFormat = "pdf"
)

// Valid reports whether the format is supported.
func (f ExportFormat) Valid() bool {
	switch f {
	case ExportCSV, ExportJSON, ExportPDF:
		return true
	default:
		return false
	}
}

// ContentType returns the MIME type served for the format.
func (f ExportFormat) ContentType() string {
	switch f {
	case ExportCSV:
		return "text/csv"
	case ExportPDF:
		return "application/pdf"
	default:
		return "application/json"
	}
}

// ExportStatus tracks a queued export.
type ExportStatus string

const (
	ExportQueued     ExportStatus = "QUEUED"
	ExportProcessing ExportStatus = "PROCESSING"
	ExportCompleted  ExportStatus = "COMPLETED"
	ExportFailed     ExportStatus = "FAILED"
)

// ExportJob is an asynchronous audit export written under the exports
// directory.
type ExportJob struct {
	ID          string       `json:"id"`
	Format      ExportFormat `json:"format"`
	Filter      AuditFilter  `json:"-"`
	Actor       string       `json:"actor"`
	Status      ExportStatus `json:"status"`
	Rows        int          `json:"rows"`
	File        string       `json:"file,omitempty"`
	DownloadURL string       `json:"download_url,omitempty"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
}
